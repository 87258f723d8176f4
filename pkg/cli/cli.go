// Package cli provides the command-line interface for adaptive-selector.
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/adaptive-selector/pkg/cache"
	"github.com/devicelab-dev/adaptive-selector/pkg/config"
	"github.com/devicelab-dev/adaptive-selector/pkg/fingerprint"
	"github.com/devicelab-dev/adaptive-selector/pkg/logger"
	"github.com/devicelab-dev/adaptive-selector/pkg/pattern"
	"github.com/devicelab-dev/adaptive-selector/pkg/provider"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to config.yaml (defaults to the working directory)",
		EnvVars: []string{"ADAPTIVE_SELECTOR_CONFIG"},
	},
	&cli.StringFlag{
		Name:    "cache",
		Usage:   "Cache file path (overrides config)",
		EnvVars: []string{"ADAPTIVE_SELECTOR_CACHE"},
	},
	&cli.StringFlag{
		Name:  "log",
		Usage: "Log file path",
	},
	&cli.BoolFlag{
		Name:    "verbose",
		Usage:   "Enable verbose logging to stderr",
		EnvVars: []string{"ADAPTIVE_SELECTOR_VERBOSE"},
	},
}

// Execute runs the CLI.
func Execute() {
	app := &cli.App{
		Name:    "adaptive-selector",
		Usage:   "Selector resilience engine for UI automation ids that drift",
		Version: Version,
		Description: `Adaptive Selector keeps element selectors working across sessions by
fingerprinting elements, learning automation-id patterns, and healing
selectors that stopped resolving.

Examples:
  adaptive-selector inspect --source page.xml --automation-id btn_save_100
  adaptive-selector analyze --history ids.txt --steps 3
  adaptive-selector heal --source page.xml --selector failed.xml --cache-id cache_a1b2c3d4e5f60718
  adaptive-selector stats`,
		Flags: GlobalFlags,
		Commands: []*cli.Command{
			inspectCommand,
			discoverCommand,
			analyzeCommand,
			statsCommand,
			healCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig resolves the configuration and wires up logging.
func loadConfig(c *cli.Context) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path := c.String("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cwd, werr := os.Getwd()
		if werr != nil {
			return nil, werr
		}
		cfg, err = config.LoadFromDir(cwd)
	}
	if err != nil {
		return nil, err
	}

	if path := c.String("cache"); path != "" {
		cfg.Cache.Path = path
	}

	logPath := c.String("log")
	if logPath == "" {
		logPath = cfg.Logging.Path
	}
	if logPath != "" {
		if err := logger.Init(logPath); err != nil {
			return nil, err
		}
	}
	if c.Bool("verbose") {
		logger.SetOutput(os.Stderr)
		logger.SetLevel(logger.LevelDebug)
	} else {
		logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	}

	return cfg, nil
}

// loadProvider parses a page-source XML file into a tree provider.
func loadProvider(path string) (*provider.TreeProvider, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided page source
	if err != nil {
		return nil, fmt.Errorf("failed to read page source: %w", err)
	}
	return provider.NewTreeProvider(string(data))
}

// openCache creates the cache over the shared engines and loads the
// persisted file.
func openCache(cfg *config.Config, fpEngine *fingerprint.Engine, patterns *pattern.Engine) (*cache.Cache, error) {
	store := cache.New(cfg.Cache, fpEngine, patterns)
	if err := store.Load(); err != nil {
		return nil, err
	}
	return store, nil
}

// findNode walks the tree and returns the first node whose attributes
// satisfy match.
func findNode(p provider.ElementProvider, match func(a *provider.Attributes) bool) (provider.Node, *provider.Attributes, error) {
	root, err := p.Root()
	if err != nil {
		return nil, nil, err
	}

	var node provider.Node
	var attrs *provider.Attributes
	err = provider.Walk(p, root, -1, func(n provider.Node, depth int) bool {
		if node != nil {
			return false
		}
		a, aerr := p.Attributes(n)
		if aerr == nil && match(a) {
			node = n
			attrs = a
		}
		return true
	})
	if err != nil {
		return nil, nil, err
	}
	if node == nil {
		return nil, nil, fmt.Errorf("no element matched")
	}
	return node, attrs, nil
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
