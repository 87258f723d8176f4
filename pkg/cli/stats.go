package cli

import (
	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/adaptive-selector/pkg/cache"
	"github.com/devicelab-dev/adaptive-selector/pkg/fingerprint"
	"github.com/devicelab-dev/adaptive-selector/pkg/pattern"
)

var statsCommand = &cli.Command{
	Name:  "stats",
	Usage: "Print selector cache statistics",
	Description: `Load the selector cache and print its health counters. With
--entries, also list a per-entry summary.

Examples:
  adaptive-selector stats
  adaptive-selector stats --cache /var/lib/selectors/cache.json --entries`,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "entries",
			Usage: "List a summary of every entry",
		},
	},
	Action: runStats,
}

// entrySummary is one row of the --entries listing.
type entrySummary struct {
	CacheID     string  `json:"cache_id"`
	Name        string  `json:"name,omitempty"`
	ControlType string  `json:"control_type,omitempty"`
	Versions    int     `json:"versions"`
	Confidence  float64 `json:"confidence"`
	LastID      string  `json:"last_automation_id,omitempty"`
	PatternKind string  `json:"pattern_kind,omitempty"`
	AccessCount int     `json:"access_count"`
}

// statsReport is the stats command's JSON output.
type statsReport struct {
	Stats   cache.Stats    `json:"stats"`
	HitRate float64        `json:"hit_rate"`
	Entries []entrySummary `json:"entries,omitempty"`
}

func runStats(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	store, err := openCache(cfg, fingerprint.NewEngine(), pattern.NewEngine())
	if err != nil {
		return err
	}

	stats := store.Snapshot()
	report := statsReport{Stats: stats, HitRate: stats.HitRate()}

	if c.Bool("entries") {
		for _, id := range store.IDs() {
			entry, gerr := store.GetByID(id)
			if gerr != nil {
				continue
			}
			row := entrySummary{
				CacheID:     entry.CacheID,
				Versions:    len(entry.Versions),
				Confidence:  entry.Confidence,
				LastID:      entry.LastAutomationID(),
				AccessCount: entry.AccessCnt,
			}
			if entry.Fingerprint != nil {
				row.Name = entry.Fingerprint.Name
				row.ControlType = entry.Fingerprint.ControlType
			}
			if entry.Pattern != nil {
				row.PatternKind = entry.Pattern.Kind.String()
			}
			report.Entries = append(report.Entries, row)
		}
	}

	return printJSON(report)
}
