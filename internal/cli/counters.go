package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/datapowersync/counters/internal"
	"github.com/datapowersync/counters/internal/changefeed"
	"github.com/datapowersync/counters/internal/client"
	"github.com/datapowersync/counters/internal/counter"
	"github.com/spf13/cobra"
)

type (
	cliClient interface {
		client.Syncer

		Create(ctx context.Context, opts counter.CreateOptions) (*counter.Counter, error)
		Get(ctx context.Context, id string) (*counter.Counter, error)
		Latest(ctx context.Context, opts counter.ListOptions) (*counter.Counter, error)
		Update(ctx context.Context, id string, opts counter.UpdateOptions) (*counter.Counter, error)
		Increment(ctx context.Context, id string, opts counter.IncrementOptions) (*counter.Counter, error)
		Delete(ctx context.Context, id string) (counter.DeleteResult, error)
		// WatchWS is Watch over a websocket.
		WatchWS(ctx context.Context) (<-chan changefeed.ChangeEvent, error)
	}

	// wsSyncer syncs a view over a websocket rather than SSE.
	wsSyncer struct {
		cliClient
	}
)

func (s wsSyncer) Watch(ctx context.Context) (<-chan changefeed.ChangeEvent, error) {
	return s.WatchWS(ctx)
}

func (a *CLI) addCounterCommands(cmd *cobra.Command) {
	cmd.AddCommand(a.createCommand())
	cmd.AddCommand(a.getCommand())
	cmd.AddCommand(a.listCommand())
	cmd.AddCommand(a.latestCommand())
	cmd.AddCommand(a.updateCommand())
	cmd.AddCommand(a.incrementCommand())
	cmd.AddCommand(a.deleteCommand())
	cmd.AddCommand(a.watchCommand())
}

func (a *CLI) createCommand() *cobra.Command {
	var (
		count int
		owner string
	)
	cmd := &cobra.Command{
		Use:           "create",
		Short:         "Create a counter",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := counter.CreateOptions{Count: count}
			if owner != "" {
				opts.OwnerID = &owner
			}
			c, err := a.client.Create(cmd.Context(), opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Successfully created counter %s\n", c.ID)
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 0, "Initial count")
	cmd.Flags().StringVar(&owner, "owner", "", "ID of the counter's owner")
	return cmd
}

func (a *CLI) getCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "get [id]",
		Short:         "Show a counter",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), c)
		},
	}
}

func (a *CLI) listCommand() *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List counters, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := a.client.List(cmd.Context(), listOptions(owner))
			if err != nil {
				return fmt.Errorf("retrieving counters: %w", err)
			}
			for _, c := range list {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", c.ID, c.Count)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Only list counters belonging to this owner")
	return cmd
}

func (a *CLI) latestCommand() *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:           "latest",
		Short:         "Show the most recently created counter",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client.Latest(cmd.Context(), listOptions(owner))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), c)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Only consider counters belonging to this owner")
	return cmd
}

func (a *CLI) updateCommand() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:           "update [id]",
		Short:         "Set a counter's count",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client.Update(cmd.Context(), args[0], counter.UpdateOptions{
				Count: internal.Ptr(count),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated counter %s: %d\n", c.ID, c.Count)
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 0, "New count")
	cmd.MarkFlagRequired("count")
	return cmd
}

func (a *CLI) incrementCommand() *cobra.Command {
	var amount int
	cmd := &cobra.Command{
		Use:           "increment [id]",
		Short:         "Increment a counter",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client.Increment(cmd.Context(), args[0], counter.IncrementOptions{
				Amount: internal.Ptr(amount),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated counter %s: %d\n", c.ID, c.Count)
			return nil
		},
	}
	cmd.Flags().IntVarP(&amount, "amount", "n", 1, "Amount by which to increment")
	return cmd
}

func (a *CLI) deleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "delete [id]",
		Short:         "Delete a counter",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.client.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Successfully deleted counter %s\n", args[0])
			return nil
		},
	}
}

func (a *CLI) watchCommand() *cobra.Command {
	var websocket bool
	cmd := &cobra.Command{
		Use:           "watch",
		Short:         "Watch counters change in real time",
		Long:          "Load counters and print each change to them as it happens, until interrupted.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var syncer client.Syncer = a.client
			if websocket {
				syncer = wsSyncer{a.client}
			}
			out := cmd.OutOrStdout()
			view := client.NewView()
			return view.Sync(cmd.Context(), syncer, func(event changefeed.ChangeEvent) {
				switch event.Kind {
				case changefeed.DeletedKind:
					fmt.Fprintf(out, "%s\t%s\n", event.Kind, event.ID)
				default:
					if c, ok := view.Get(event.ID); ok {
						fmt.Fprintf(out, "%s\t%s\t%d\n", event.Kind, event.ID, c.Count)
					}
				}
			})
		},
	}
	cmd.Flags().BoolVar(&websocket, "websocket", false, "Stream changes over a websocket instead of server-sent events")
	return cmd
}

func listOptions(owner string) counter.ListOptions {
	if owner == "" {
		return counter.ListOptions{}
	}
	return counter.ListOptions{OwnerID: &owner}
}

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(out))
	return nil
}
