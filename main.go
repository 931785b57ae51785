package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions holds the parsed command line
type AppOptions struct {
	ConfigFile string
	StateFile  string
	RenderFile string
	Serve      bool
	Sync       bool
	HTTPPort   int
}

// Runner is implemented by App; tests substitute a fake
type Runner interface {
	ApplyOptions(opts AppOptions)
	RunService() error
	RunSync() error
	RunRender(path string) error
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "blemap: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer, app Runner) error {
	fs := flag.NewFlagSet("blemap", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file (empty for env only)")
	fs.BoolVar(&opts.Serve, "serve", false, "Run the webhook service (default when no other mode is given)")
	fs.BoolVar(&opts.Sync, "sync", false, "Download floor plans from the dashboard; exits unless --serve is set")
	fs.StringVar(&opts.RenderFile, "render", "", "Render one saved webhook body or observation batch and exit")
	fs.StringVar(&opts.StateFile, "state", "", "Override the floor metadata state file")
	fs.IntVar(&opts.HTTPPort, "http-port", 0, "Override the HTTP listen port")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	fmt.Fprintf(out, "blemap version: %s\n", Version)
	app.ApplyOptions(opts)

	switch {
	case opts.RenderFile != "":
		return app.RunRender(opts.RenderFile)
	case opts.Sync && !opts.Serve:
		return app.RunSync()
	default:
		fmt.Fprintln(out, "blemap service starting...")
		return app.RunService()
	}
}
