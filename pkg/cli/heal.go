package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/adaptive-selector/pkg/fingerprint"
	"github.com/devicelab-dev/adaptive-selector/pkg/healing"
	"github.com/devicelab-dev/adaptive-selector/pkg/pattern"
)

var healCommand = &cli.Command{
	Name:  "heal",
	Usage: "Repair a failed selector against a page-source snapshot",
	Description: `Run a healing request: the failed selector document is repaired using
the cache entry's pattern history, discovery and selector regeneration,
and the repaired selector is written back to the cache.

Examples:
  adaptive-selector heal --source page.xml --selector failed.xml --cache-id cache_a1b2c3d4e5f60718
  adaptive-selector heal --source page.xml --selector failed.xml --target fp.json --priority critical
  adaptive-selector heal --source page.xml --selector failed.xml --cache-id cache_a1b2c3d4e5f60718 --prefer pattern_prediction`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "source",
			Aliases:  []string{"s"},
			Usage:    "Page-source XML file",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "selector",
			Usage:    "Failed selector document (file path or inline XML)",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "cache-id",
			Usage: "Cache entry of the failed element",
		},
		&cli.StringFlag{
			Name:    "target",
			Aliases: []string{"t"},
			Usage:   "Fingerprint JSON file (when the cache id is unknown)",
		},
		&cli.StringFlag{
			Name:  "last-id",
			Usage: "Last known automation id",
		},
		&cli.StringFlag{
			Name:  "reason",
			Usage: "Failure description, recorded on the request",
		},
		&cli.StringFlag{
			Name:  "priority",
			Usage: "Request priority (low, normal, high, critical)",
			Value: "normal",
		},
		&cli.Float64Flag{
			Name:  "budget",
			Usage: "Healing budget in seconds (0 uses config)",
		},
		&cli.StringSliceFlag{
			Name:  "prefer",
			Usage: "Strategy names to try first, in order (repeatable)",
		},
	},
	Action: runHeal,
}

func runHeal(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	p, err := loadProvider(c.String("source"))
	if err != nil {
		return err
	}

	selText, err := readSelector(c.String("selector"))
	if err != nil {
		return err
	}

	req := healing.Request{
		CacheID:               c.String("cache-id"),
		FailedSelector:        selText,
		Reason:                c.String("reason"),
		LastKnownAutomationID: c.String("last-id"),
		Priority:              healing.ParsePriority(c.String("priority")),
	}
	if req.CacheID == "" {
		if path := c.String("target"); path != "" {
			req.Fingerprint, err = readFingerprint(path)
			if err != nil {
				return err
			}
		} else {
			return fmt.Errorf("one of --cache-id or --target is required")
		}
	}

	budget := c.Float64("budget")
	if budget <= 0 {
		budget = cfg.Healing.BudgetSeconds
	}
	req.Budget = time.Duration(budget * float64(time.Second))

	req.Preferred, err = preferredStrategies(append(c.StringSlice("prefer"), cfg.Healing.Preferred...))
	if err != nil {
		return err
	}

	fpEngine := fingerprint.NewEngine()
	patterns := pattern.NewEngine()
	store, err := openCache(cfg, fpEngine, patterns)
	if err != nil {
		return err
	}

	engine := healing.NewEngine(p, store, fpEngine, patterns)
	out := engine.Heal(req)

	if err := store.Save(); err != nil {
		return err
	}
	if err := printJSON(out); err != nil {
		return err
	}
	if !out.Healed {
		return fmt.Errorf("healing failed after %d strategies", len(out.Trail))
	}
	return nil
}

// readSelector accepts either a file path or an inline selector
// document.
func readSelector(arg string) (string, error) {
	if _, err := os.Stat(arg); err == nil {
		data, rerr := os.ReadFile(arg) //#nosec G304 -- user-provided selector file
		if rerr != nil {
			return "", rerr
		}
		return string(data), nil
	}
	return arg, nil
}

func preferredStrategies(names []string) ([]healing.Strategy, error) {
	var out []healing.Strategy
	seen := map[healing.Strategy]bool{}
	for _, name := range names {
		st, ok := healing.ParseStrategy(name)
		if !ok {
			return nil, fmt.Errorf("unknown healing strategy %q", name)
		}
		if !seen[st] {
			out = append(out, st)
			seen[st] = true
		}
	}
	return out, nil
}
