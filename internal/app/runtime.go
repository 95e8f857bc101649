package app

// Startup is what an entrypoint does once its configuration is loaded.
type Startup int

const (
	// StartServe runs the long-lived process.
	StartServe Startup = iota
	// StartCommand runs one operator command and exits with its code.
	StartCommand
	// StartSkip connects to nothing. Test binaries call main directly.
	StartSkip
)

func (s Startup) String() string {
	switch s {
	case StartServe:
		return "serve"
	case StartCommand:
		return "command"
	case StartSkip:
		return "skip"
	}
	return "unknown"
}

// PlanStartup picks the startup for args, the process arguments after the
// program name. Test mode wins over everything else.
func PlanStartup(cfg *Config, args []string) Startup {
	switch {
	case cfg == nil || cfg.TestMode:
		return StartSkip
	case len(args) > 0:
		return StartCommand
	}
	return StartServe
}
