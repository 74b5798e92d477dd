// Package cli provides the CLI client, i.e. the `counters` binary.
package cli

import (
	"context"
	"io"

	cmdutil "github.com/datapowersync/counters/cmd"
	"github.com/datapowersync/counters/internal/client"
	countershttp "github.com/datapowersync/counters/internal/http"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// CLI is the `counters` cli application
type CLI struct {
	client cliClient
}

func NewCLI() *CLI {
	return &CLI{}
}

func (a *CLI) Run(ctx context.Context, args []string, out io.Writer) error {
	var cfg client.Config

	cmd := &cobra.Command{
		Use:               "counters",
		Short:             "Counters client",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.newClient(&cfg),
	}

	cmd.PersistentFlags().StringVar(&cfg.URL, "url", countershttp.DefaultURL, "URL of counters server")
	cmd.PersistentFlags().BoolVar(&cfg.Insecure, "insecure", false, "Skip TLS verification")
	cmd.PersistentFlags().BoolVar(&cfg.RetryRequests, "retry", true, "Retry requests that fail with a transient error")

	cmd.SetArgs(args)
	cmd.SetOut(out)

	a.addCounterCommands(cmd)

	if err := cmdutil.SetFlagsFromEnvVariables(cmd.PersistentFlags()); err != nil {
		return errors.Wrap(err, "failed to populate config from environment vars")
	}

	return cmd.ExecuteContext(ctx)
}

// newClient constructs the client once flags are parsed, unless a client has
// already been provided.
func (a *CLI) newClient(cfg *client.Config) func(*cobra.Command, []string) error {
	return func(*cobra.Command, []string) error {
		if a.client != nil {
			return nil
		}
		c, err := client.New(*cfg)
		if err != nil {
			return err
		}
		a.client = c
		return nil
	}
}
