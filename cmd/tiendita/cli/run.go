package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
)

// Env carries the collaborators subcommands need.
type Env struct {
	Jobs    *JobsCLI
	Credits Backfiller
	Stdout  io.Writer
	Stderr  io.Writer
	Stdin   io.Reader
}

// Usage lists the supported subcommands.
const Usage = `usage:
  tiendita                              start the HTTP server
  tiendita jobs trigger <task>          enqueue a background job
  tiendita jobs stats                   show default queue counters
  tiendita credits backfill [-mode dry|apply] [-json]
`

// Run executes a subcommand and returns the process exit code.
func Run(ctx context.Context, args []string, env Env) int {
	if len(args) < 2 {
		fmt.Fprint(env.Stderr, Usage)
		return 2
	}
	switch args[0] + " " + args[1] {
	case "jobs trigger":
		var name string
		if len(args) > 2 {
			name = args[2]
		}
		return env.Jobs.TriggerCommand(ctx, name, env.Stdout, env.Stderr)
	case "jobs stats":
		return env.Jobs.StatsCommand(ctx, env.Stdout, env.Stderr)
	case "credits backfill":
		fs := flag.NewFlagSet("credits backfill", flag.ContinueOnError)
		fs.SetOutput(env.Stderr)
		mode := fs.String("mode", string(BackfillModeDry), "dry or apply")
		asJSON := fs.Bool("json", false, "print a JSON summary")
		if err := fs.Parse(args[2:]); err != nil {
			return 2
		}
		return BackfillCommand(ctx, env.Credits, BackfillOptions{
			Mode:       BackfillMode(*mode),
			JSONOutput: *asJSON,
			Stdout:     env.Stdout,
			Stderr:     env.Stderr,
			Stdin:      env.Stdin,
		})
	}
	fmt.Fprint(env.Stderr, Usage)
	return 2
}
