package cli

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
)

type runsCmd struct {
	engineFlags
	limit int
}

func (*runsCmd) Name() string     { return "runs" }
func (*runsCmd) Synopsis() string { return "list recently recorded analysis runs" }
func (*runsCmd) Usage() string {
	return `pulsectl runs [-n 20]

  Lists runs from the local run log, newest first. Needs recorder.path set.
`
}

func (c *runsCmd) SetFlags(f *flag.FlagSet) {
	c.setEngineFlags(f)
	f.IntVar(&c.limit, "n", 20, "number of runs")
}

func (c *runsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	eng, status := c.engine()
	if eng == nil {
		return status
	}
	defer eng.Recorder.Close()

	runs, err := eng.Recorder.Recent(ctx, c.limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: could not read runs: %v\n", err)
		return subcommands.ExitFailure
	}
	if c.jsonOut {
		return writeJSON(runs)
	}
	renderRuns(stdout, runs)
	return subcommands.ExitSuccess
}
