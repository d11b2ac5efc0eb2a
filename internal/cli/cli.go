// Package cli holds the pulsectl operator commands. Each command boots the
// engine graph from the same config file the service uses.
package cli

import (
	"flag"
	"fmt"
	"io"
	"os"

	"PortfolioPulse/internal/di"
	"PortfolioPulse/pkg/config"

	"github.com/google/subcommands"
)

// Commands is the list of top-level pulsectl commands.
var Commands = []subcommands.Command{
	&quoteCmd{},
	&historyCmd{},
	&analyzeCmd{},
	&runsCmd{},
}

// engineFlags is embedded by every command that needs the engine.
type engineFlags struct {
	configPath string
	jsonOut    bool
}

func (e *engineFlags) setEngineFlags(f *flag.FlagSet) {
	f.StringVar(&e.configPath, "config", "config/config.yaml", "config file path")
	f.BoolVar(&e.jsonOut, "json", false, "print JSON instead of a table")
}

// boot is swapped by tests.
var boot = func(path string) (*di.Engine, error) {
	cfg, err := config.LoadWithEnv(path)
	if err != nil {
		return nil, err
	}
	// the CLI never serves or streams
	cfg.Finnhub.Enabled = false
	cfg.Schedule.Enabled = false
	return di.InitializeEngine(cfg)
}

var stdout io.Writer = os.Stdout

func (e *engineFlags) engine() (*di.Engine, subcommands.ExitStatus) {
	eng, err := boot(e.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: could not start engine: %v\n", err)
		return nil, subcommands.ExitFailure
	}
	return eng, subcommands.ExitSuccess
}
