package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/railyard/railyard/ctl/internal/client"
	"github.com/railyard/railyard/ctl/internal/config"
)

// app holds the global flags shared by every subcommand.
type app struct {
	out        io.Writer
	configPath string
	endpoint   string
	target     string
	output     string
	verbose    bool

	cfg *config.Config
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}

	root := &cobra.Command{
		Use:   "railyardctl",
		Short: "Control a rail yard from the command line",
		Long: `railyardctl talks to railyard-server over its REST API.

Servers are listed in ~/.railyardctl.yaml under "targets"; the first one is
used unless --target names another. --endpoint skips the file entirely.

Examples:
  railyardctl devices
  railyardctl add 0,1 RelayTrainSwitch
  railyardctl toggle 0,1
  railyardctl profiles save evening
  railyardctl status`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level := slog.LevelWarn
			if a.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			switch a.output {
			case "text", "json":
			default:
				return fmt.Errorf("--output must be text or json, got %q", a.output)
			}
			return nil
		},
	}
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", config.DefaultPath(), "CLI config file")
	pf.StringVar(&a.endpoint, "endpoint", "", "server URL, overrides the configured target (e.g. http://192.168.1.20:8080)")
	pf.StringVarP(&a.target, "target", "t", "", "configured target name (default: first target)")
	pf.StringVarP(&a.output, "output", "o", "text", "output format: text | json")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		a.devicesCmd(),
		a.typesCmd(),
		a.addCmd(),
		a.removeCmd(),
		a.actionCmd("toggle", "Flip a device to its other state"),
		a.actionCmd("on", "Drive a device to its on state"),
		a.actionCmd("off", "Drive a device to its off state"),
		a.actionCmd("reset", "Release a device's outputs"),
		a.changeCmd(),
		a.stepsCmd(),
		a.profilesCmd(),
		a.networkCmd(),
		a.scanCmd(),
		a.logCmd(),
		a.credentialsCmd(),
		a.serverCmd(),
		a.statusCmd(),
		a.watchCmd(),
	)
	return root
}

// resolve returns the target the command should talk to.
func (a *app) resolve() (config.Target, error) {
	t, err := a.cfg.Target(a.target)
	if err != nil {
		return config.Target{}, err
	}
	if a.endpoint != "" {
		t.Endpoint = a.endpoint
		if a.target == "" {
			t = config.Target{Name: "cli", Endpoint: a.endpoint}
		}
	}
	return t, nil
}

func (a *app) client() (*client.Client, error) {
	t, err := a.resolve()
	if err != nil {
		return nil, err
	}
	slog.Debug("railyardctl: using target", "name", t.Name, "endpoint", t.Endpoint)
	return client.New(t, a.cfg.Timeout)
}

// request runs fn with a client and a context bounded by the configured
// timeout.
func (a *app) request(cmd *cobra.Command, fn func(ctx context.Context, c *client.Client) error) error {
	c, err := a.client()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Timeout)
	defer cancel()
	return fn(ctx, c)
}

// targets lists every target for fan-out commands: the selected one when
// --target or --endpoint is given, all configured ones otherwise.
func (a *app) targets() ([]config.Target, error) {
	if a.target != "" || a.endpoint != "" || len(a.cfg.Targets) == 0 {
		t, err := a.resolve()
		if err != nil {
			return nil, err
		}
		return []config.Target{t}, nil
	}
	return a.cfg.Targets, nil
}
