package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/railyard/railyard/ctl/internal/client"
	"github.com/railyard/railyard/ctl/internal/config"
	"github.com/railyard/railyard/pkg/types"
)

// targetStatus is one row of the status table.
type targetStatus struct {
	Target   string          `json:"target"`
	Endpoint string          `json:"endpoint"`
	Up       bool            `json:"up"`
	Error    string          `json:"error,omitempty"`
	Summary  *client.Summary `json:"summary,omitempty"`
	Health   *client.Health  `json:"health,omitempty"`
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Summarise the metrics of every configured server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			targets, err := a.targets()
			if err != nil {
				return err
			}
			rows := a.collectStatus(cmd.Context(), targets)
			if err := a.printStatus(rows); err != nil {
				return err
			}
			down := 0
			for _, r := range rows {
				if !r.Up {
					down++
				}
			}
			if down > 0 {
				return fmt.Errorf("%d of %d targets unreachable", down, len(rows))
			}
			return nil
		},
	}
}

// collectStatus scrapes every target concurrently. A failing target is
// recorded in its row and does not cancel the others.
func (a *app) collectStatus(ctx context.Context, targets []config.Target) []targetStatus {
	rows := make([]targetStatus, len(targets))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, t := range targets {
		rows[i] = targetStatus{Target: t.Name, Endpoint: t.Endpoint}
		g.Go(func() error {
			c, err := client.New(t, a.cfg.Timeout)
			if err != nil {
				rows[i].Error = err.Error()
				return nil
			}
			cctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
			defer cancel()
			sum, err := c.Status(cctx)
			if err != nil {
				slog.Debug("railyardctl: status failed", "target", t.Name, "err", err)
				rows[i].Error = err.Error()
				return nil
			}
			rows[i].Up = true
			rows[i].Summary = &sum
			h := sum.Health()
			rows[i].Health = &h
			return nil
		})
	}
	_ = g.Wait()
	return rows
}

func (a *app) printStatus(rows []targetStatus) error {
	if ok, err := a.printJSON(rows); ok {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TARGET\tENDPOINT\tUP\tHEALTH\tDEVICES\tFREE PINS\tJOBS\tACTIONS\tERRORS\t5XX\tAUTO-OFF\tFALLBACKS")
	for _, r := range rows {
		if r.Summary == nil {
			fmt.Fprintf(tw, "%s\t%s\tno\t-\t-\t-\t-\t-\t-\t-\t-\t-\n", r.Target, r.Endpoint)
			continue
		}
		s := r.Summary
		fmt.Fprintf(tw, "%s\t%s\tyes\t%s (%.0f)\t%.0f\t%.0f\t%.0f\t%.0f\t%.0f\t%.0f\t%.0f\t%.0f\n",
			r.Target, r.Endpoint, r.Health.State, r.Health.Score, s.Devices, s.PinsAvailable, s.SchedulerJobs,
			s.Actions, s.ActionErrors, s.ServerErrors, s.AutoOffs, s.BootFallbacks)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, r := range rows {
		if r.Error != "" {
			fmt.Fprintf(a.out, "%s: %s\n", r.Target, r.Error)
		}
	}
	return nil
}

func (a *app) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow device changes live until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return c.Watch(ctx, func(msg types.StreamMessage) {
				if a.output == "json" {
					_, _ = a.printJSON(msg)
					return
				}
				fmt.Fprintf(a.out, "--- %s %s\n", msg.Event, time.Now().Format(time.TimeOnly))
				_ = a.printDevices(msg.Data)
			})
		},
	}
}
