package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/adaptive-selector/pkg/cache"
	"github.com/devicelab-dev/adaptive-selector/pkg/fingerprint"
	"github.com/devicelab-dev/adaptive-selector/pkg/pattern"
	"github.com/devicelab-dev/adaptive-selector/pkg/provider"
	"github.com/devicelab-dev/adaptive-selector/pkg/selector"
)

var inspectCommand = &cli.Command{
	Name:  "inspect",
	Usage: "Fingerprint an element in a page source and print selector candidates",
	Description: `Parse a page-source XML snapshot, locate one element and print its
fingerprint, quality score, cache id and generated selector candidates.

Examples:
  adaptive-selector inspect --source page.xml --automation-id btn_save_100
  adaptive-selector inspect --source page.xml --name Save --control-type Button
  adaptive-selector inspect --source page.xml --name Save --store`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "source",
			Aliases:  []string{"s"},
			Usage:    "Page-source XML file",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "automation-id",
			Usage: "Match by automation id",
		},
		&cli.StringFlag{
			Name:  "name",
			Usage: "Match by accessible name",
		},
		&cli.StringFlag{
			Name:  "class",
			Usage: "Match by class name",
		},
		&cli.StringFlag{
			Name:  "control-type",
			Usage: "Restrict matches to a control type",
		},
		&cli.BoolFlag{
			Name:  "store",
			Usage: "Store the best candidate in the selector cache",
		},
	},
	Action: runInspect,
}

// inspectReport is the inspect command's JSON output.
type inspectReport struct {
	CacheID     string                   `json:"cache_id"`
	Attributes  *provider.Attributes     `json:"attributes"`
	Fingerprint *fingerprint.Fingerprint `json:"fingerprint"`
	Quality     float64                  `json:"quality"`
	Candidates  []selector.Candidate     `json:"candidates"`
	Stored      bool                     `json:"stored,omitempty"`
}

func runInspect(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	p, err := loadProvider(c.String("source"))
	if err != nil {
		return err
	}

	wantID := c.String("automation-id")
	wantName := c.String("name")
	wantClass := c.String("class")
	wantType := c.String("control-type")
	if wantID == "" && wantName == "" && wantClass == "" {
		return fmt.Errorf("one of --automation-id, --name or --class is required")
	}

	node, attrs, err := findNode(p, func(a *provider.Attributes) bool {
		if wantID != "" && a.AutomationID != wantID {
			return false
		}
		if wantName != "" && a.Name != wantName {
			return false
		}
		if wantClass != "" && a.ClassName != wantClass {
			return false
		}
		if wantType != "" && a.ControlType != wantType {
			return false
		}
		return true
	})
	if err != nil {
		return err
	}

	fpEngine := fingerprint.NewEngine()
	fp, err := fpEngine.Capture(p, node)
	if err != nil {
		return err
	}

	generator := selector.NewGenerator()
	report := inspectReport{
		CacheID:     cache.CacheID(fp),
		Attributes:  attrs,
		Fingerprint: fp,
		Quality:     fpEngine.Quality(fp),
		Candidates:  generator.Candidates(fp, attrs.AutomationID),
	}

	if c.Bool("store") && len(report.Candidates) > 0 {
		store, cerr := openCache(cfg, fpEngine, pattern.NewEngine())
		if cerr != nil {
			return cerr
		}
		best := report.Candidates[0]
		if _, perr := store.Put(fp, best.Text, best.Strategy, cache.PutOptions{
			CreatedBy:    cache.CreatedByInspector,
			Confidence:   best.Confidence,
			AutomationID: attrs.AutomationID,
		}); perr != nil {
			return perr
		}
		if serr := store.Save(); serr != nil {
			return serr
		}
		report.Stored = true
	}

	return printJSON(report)
}
