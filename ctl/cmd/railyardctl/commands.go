package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/railyard/railyard/ctl/internal/client"
	"github.com/railyard/railyard/pkg/types"
)

func (a *app) devicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List the devices in the yard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.request(cmd, func(ctx context.Context, c *client.Client) error {
				resp, err := c.Devices(ctx)
				if err != nil {
					return err
				}
				return a.printDevices(resp)
			})
		},
	}
}

func (a *app) typesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the device catalogue and the free pins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.request(cmd, func(ctx context.Context, c *client.Client) error {
				resp, err := c.Types(ctx)
				if err != nil {
					return err
				}
				return a.printTypes(resp)
			})
		},
	}
}

func (a *app) addCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add PINS TYPE",
		Short: "Add a device on the given pins",
		Long: `Add a device on a comma separated pin list.

Parameterised types take their parameters in the type string:
  railyardctl add 2 'LightBeam(n=30,g=255,delay=20)'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.request(cmd, func(ctx context.Context, c *client.Client) error {
				resp, err := c.Add(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return a.printDevices(resp)
			})
		},
	}
}

func (a *app) removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove PINS",
		Aliases: []string{"rm"},
		Short:   "Remove the device on the given pins",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.request(cmd, func(ctx context.Context, c *client.Client) error {
				resp, err := c.Remove(ctx, args[0])
				if err != nil {
					return err
				}
				return a.printDevices(resp)
			})
		},
	}
}

func (a *app) actionCmd(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " PINS",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.request(cmd, func(ctx context.Context, c *client.Client) error {
				resp, err := c.Action(ctx, action, args[0])
				if err != nil {
					return err
				}
				return a.printDevices(resp)
			})
		},
	}
}

func (a *app) changeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "change PINS TYPE",
		Short: "Replace the device on the given pins with another type",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.request(cmd, func(ctx context.Context, c *client.Client) error {
				resp, err := c.Change(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return a.printDevices(resp)
			})
		},
	}
}

func (a *app) stepsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "steps PINS [N]",
		Short: "Show or set the step count of a servo or stepper",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.request(cmd, func(ctx context.Context, c *client.Client) error {
				if len(args) == 1 {
					n, err := c.Steps(ctx, args[0])
					if err != nil {
						return err
					}
					return a.printValue(types.StepsResponse{Steps: n}, strconv.Itoa(n))
				}
				n, err := strconv.Atoi(args[1])
				if err != nil {
					return fmt.Errorf("steps: %q is not an integer", args[1])
				}
				resp, err := c.SetSteps(ctx, args[0], n)
				if err != nil {
					return err
				}
				return a.printDevices(resp)
			})
		},
	}
}

func (a *app) profilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Manage saved device layouts",
	}

	profilesOp := func(use, short string, nargs int, fn func(ctx context.Context, c *client.Client, args []string) (types.ProfilesResponse, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.ExactArgs(nargs),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.request(cmd, func(ctx context.Context, c *client.Client) error {
					resp, err := fn(ctx, c, args)
					if err != nil {
						return err
					}
					return a.printProfiles(resp)
				})
			},
		}
	}

	load := &cobra.Command{
		Use:   "load NAME",
		Short: "Replace the yard with a saved profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.request(cmd, func(ctx context.Context, c *client.Client) error {
				resp, err := c.LoadProfile(ctx, args[0])
				if err != nil {
					return err
				}
				return a.printDevices(resp)
			})
		},
	}

	cmd.AddCommand(
		profilesOp("list", "List saved profiles; the favorite is starred", 0,
			func(ctx context.Context, c *client.Client, _ []string) (types.ProfilesResponse, error) {
				return c.Profiles(ctx)
			}),
		load,
		profilesOp("save NAME", "Save the current layout", 1,
			func(ctx context.Context, c *client.Client, args []string) (types.ProfilesResponse, error) {
				return c.SaveProfile(ctx, args[0])
			}),
		profilesOp("delete NAME", "Delete a saved profile", 1,
			func(ctx context.Context, c *client.Client, args []string) (types.ProfilesResponse, error) {
				return c.DeleteProfile(ctx, args[0])
			}),
		profilesOp("favorite NAME", "Load this profile at boot", 1,
			func(ctx context.Context, c *client.Client, args []string) (types.ProfilesResponse, error) {
				return c.SetFavorite(ctx, args[0])
			}),
		profilesOp("unfavorite", "Boot with the default layout", 0,
			func(ctx context.Context, c *client.Client, _ []string) (types.ProfilesResponse, error) {
				return c.ClearFavorite(ctx)
			}),
	)
	return cmd
}

func (a *app) networkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "network",
		Short: "Show the server's network interface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.request(cmd, func(ctx context.Context, c *client.Client) error {
				info, err := c.Network(ctx)
				if err != nil {
					return err
				}
				return a.printNetwork(info)
			})
		},
	}
}

func (a *app) scanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "List Wi-Fi access points seen by the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.request(cmd, func(ctx context.Context, c *client.Client) error {
				res, err := c.Scan(ctx)
				if err != nil {
					return err
				}
				return a.printScan(res)
			})
		},
	}
}

func (a *app) logCmd() *cobra.Command {
	var flush bool
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Print the server event log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.request(cmd, func(ctx context.Context, c *client.Client) error {
				if flush {
					if err := c.FlushLog(ctx); err != nil {
						return err
					}
					fmt.Fprintln(a.out, types.StatusSuccess)
					return nil
				}
				text, err := c.Log(ctx)
				if err != nil {
					return err
				}
				fmt.Fprint(a.out, text)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&flush, "flush", false, "delete every log record instead of printing")
	return cmd
}

func (a *app) credentialsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage the Wi-Fi credentials stored on the server",
	}
	set := &cobra.Command{
		Use:   "set SSID PASSWORD",
		Short: "Store Wi-Fi credentials",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.request(cmd, func(ctx context.Context, c *client.Client) error {
				if err := c.SetCredentials(ctx, args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintln(a.out, types.StatusSuccess)
				return nil
			})
		},
	}
	forget := &cobra.Command{
		Use:   "clear",
		Short: "Forget the stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.request(cmd, func(ctx context.Context, c *client.Client) error {
				if err := c.ClearCredentials(ctx); err != nil {
					return err
				}
				fmt.Fprintln(a.out, types.StatusSuccess)
				return nil
			})
		},
	}
	cmd.AddCommand(set, forget)
	return cmd
}

func (a *app) serverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Stop, restart or update the server",
	}
	for _, op := range []struct{ name, short string }{
		{"shutdown", "Release all devices and stop the server"},
		{"reset", "Restart the server"},
		{"update", "Pull new files over the air, then restart"},
	} {
		cmd.AddCommand(&cobra.Command{
			Use:   op.name,
			Short: op.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.request(cmd, func(ctx context.Context, c *client.Client) error {
					if err := c.Server(ctx, op.name); err != nil {
						return err
					}
					fmt.Fprintln(a.out, types.StatusSuccess)
					return nil
				})
			},
		})
	}
	return cmd
}
