package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/adaptive-selector/pkg/discovery"
	"github.com/devicelab-dev/adaptive-selector/pkg/fingerprint"
	"github.com/devicelab-dev/adaptive-selector/pkg/provider"
	"github.com/devicelab-dev/adaptive-selector/pkg/selector"
)

var discoverCommand = &cli.Command{
	Name:  "discover",
	Usage: "Search a page source for an element described by a fingerprint",
	Description: `Run the discovery strategy ladder against a page-source snapshot.
The target is a fingerprint JSON document, typically captured earlier
with inspect.

Examples:
  adaptive-selector discover --source page.xml --target fp.json
  adaptive-selector discover --source page.xml --target fp.json --exclude coordinate_proximity`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "source",
			Aliases:  []string{"s"},
			Usage:    "Page-source XML file",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "target",
			Aliases:  []string{"t"},
			Usage:    "Fingerprint JSON file",
			Required: true,
		},
		&cli.Float64Flag{
			Name:  "budget",
			Usage: "Search budget in seconds (0 uses config)",
		},
		&cli.StringSliceFlag{
			Name:  "exclude",
			Usage: "Strategy names to skip (repeatable)",
		},
	},
	Action: runDiscover,
}

// discoverReport is the discover command's JSON output.
type discoverReport struct {
	Found      bool                 `json:"found"`
	Degraded   bool                 `json:"degraded,omitempty"`
	Strategy   discovery.Strategy   `json:"strategy"`
	Confidence float64              `json:"confidence"`
	Attributes *provider.Attributes `json:"attributes,omitempty"`
	Candidates []selector.Candidate `json:"candidates,omitempty"`
	Trail      []discovery.Attempt  `json:"trail"`
}

func runDiscover(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	p, err := loadProvider(c.String("source"))
	if err != nil {
		return err
	}

	target, err := readFingerprint(c.String("target"))
	if err != nil {
		return err
	}

	budget := c.Float64("budget")
	if budget <= 0 {
		budget = cfg.Discovery.BudgetSeconds
	}

	excluded, err := excludedStrategies(append(cfg.Discovery.Excluded, c.StringSlice("exclude")...))
	if err != nil {
		return err
	}

	fpEngine := fingerprint.NewEngine()
	service := discovery.NewService(p, fpEngine)
	res := service.Discover(discovery.Search{
		Target:   target,
		Budget:   time.Duration(budget * float64(time.Second)),
		Excluded: excluded,
		MaxDepth: cfg.Discovery.MaxDepth,
	})

	report := discoverReport{
		Found:      res.Found,
		Degraded:   res.Degraded,
		Strategy:   res.Strategy,
		Confidence: res.Confidence,
		Attributes: res.Attributes,
		Trail:      res.Trail,
	}
	if res.Found {
		if fp, cerr := fpEngine.Capture(p, res.Node); cerr == nil {
			report.Candidates = selector.NewGenerator().Candidates(fp, res.Attributes.AutomationID)
		}
	}

	if err := printJSON(report); err != nil {
		return err
	}
	if !res.Found {
		return fmt.Errorf("element not found after %d strategies", len(res.Trail))
	}
	return nil
}

func readFingerprint(path string) (*fingerprint.Fingerprint, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided fingerprint file
	if err != nil {
		return nil, fmt.Errorf("failed to read fingerprint: %w", err)
	}
	var fp fingerprint.Fingerprint
	if err := json.Unmarshal(data, &fp); err != nil {
		return nil, fmt.Errorf("invalid fingerprint document: %w", err)
	}
	return &fp, nil
}

func excludedStrategies(names []string) ([]discovery.Strategy, error) {
	var out []discovery.Strategy
	for _, name := range names {
		st, ok := discovery.ParseStrategy(name)
		if !ok {
			return nil, fmt.Errorf("unknown discovery strategy %q", name)
		}
		out = append(out, st)
	}
	return out, nil
}
