package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/adaptive-selector/pkg/pattern"
)

var analyzeCommand = &cli.Command{
	Name:  "analyze",
	Usage: "Analyze an automation-id history and forecast upcoming ids",
	Description: `Read an automation-id history file (one id per line, optionally
"id,RFC3339-timestamp") and print the detected pattern. Predictable
patterns also get a forecast.

Examples:
  adaptive-selector analyze --history ids.txt
  adaptive-selector analyze --history ids.txt --steps 3`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "history",
			Usage:    "History file, one automation id per line",
			Required: true,
		},
		&cli.IntFlag{
			Name:  "steps",
			Usage: "Forecast horizon (0 uses config)",
		},
	},
	Action: runAnalyze,
}

// analyzeReport is the analyze command's JSON output.
type analyzeReport struct {
	Analysis    pattern.Analysis     `json:"analysis"`
	Predictions []pattern.Prediction `json:"predictions,omitempty"`
}

func runAnalyze(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	samples, err := readHistory(c.String("history"))
	if err != nil {
		return err
	}

	steps := c.Int("steps")
	if steps <= 0 {
		steps = cfg.Pattern.PredictSteps
	}

	engine := pattern.NewEngine()
	analysis := engine.Analyze(samples)
	report := analyzeReport{Analysis: analysis}

	if analysis.CanPredict {
		for i := 1; i <= steps; i++ {
			pred, perr := engine.Predict(analysis, i)
			if perr != nil {
				break
			}
			report.Predictions = append(report.Predictions, pred)
		}
	}

	return printJSON(report)
}

// readHistory parses one sample per line. Lines without a timestamp
// are spaced a minute apart ending now, so interval-based analyzers
// still have something to work with.
func readHistory(path string) ([]pattern.Sample, error) {
	f, err := os.Open(path) //#nosec G304 -- user-provided history file
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	now := time.Now()
	samples := make([]pattern.Sample, 0, len(lines))
	for i, line := range lines {
		sample := pattern.Sample{
			Value:  line,
			SeenAt: now.Add(-time.Duration(len(lines)-1-i) * time.Minute),
		}
		if idx := strings.LastIndex(line, ","); idx > 0 {
			if ts, terr := time.Parse(time.RFC3339, strings.TrimSpace(line[idx+1:])); terr == nil {
				sample.Value = strings.TrimSpace(line[:idx])
				sample.SeenAt = ts
			}
		}
		samples = append(samples, sample)
	}
	return samples, nil
}
