package main

import (
	"context"
	"io"
	"os"

	cmdutil "github.com/datapowersync/counters/cmd"
	"github.com/datapowersync/counters/internal"
	"github.com/datapowersync/counters/internal/changefeed"
	"github.com/datapowersync/counters/internal/daemon"
	"github.com/datapowersync/counters/internal/logr"
	"github.com/datapowersync/counters/internal/relay"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func main() {
	// Configure ^C to terminate program
	ctx, cancel := cmdutil.CatchCtrlC(context.Background())
	defer cancel()

	if err := parseFlags(ctx, os.Args[1:], os.Stdout); err != nil {
		cmdutil.PrintError(err)
		os.Exit(1)
	}
}

func parseFlags(ctx context.Context, args []string, out io.Writer) error {
	cfg := daemon.NewConfig()

	cmd := &cobra.Command{
		Use:           "countersd",
		Short:         "counters daemon",
		Long:          "countersd serves counters over HTTP and streams changes to them in real time.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       internal.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Setup logger
			logger, err := logr.New(cfg.LogConfig)
			if err != nil {
				return err
			}

			d, err := daemon.New(cmd.Context(), logger, cfg)
			if err != nil {
				return err
			}
			// block until ^C received
			return d.Start(cmd.Context(), make(chan struct{}))
		},
	}
	cmd.SetArgs(args)
	cmd.SetOut(out)

	cmd.Flags().StringVar(&cfg.Address, "address", cfg.Address, "Listening address")
	cmd.Flags().StringVar(&cfg.Database, "database", "", "Postgres connection string. Not required with --source=memory.")
	cmd.Flags().StringVar(&cfg.Source, "source", cfg.Source, "Source of change events: notify, logical or memory.")
	cmd.Flags().StringVar(&cfg.Publication, "publication", changefeed.DefaultPublication, "Postgres publication for changes, for --source=logical.")
	cmd.Flags().DurationVar(&cfg.SubscribeTimeout, "subscribe-timeout", changefeed.DefaultSubscribeTimeout, "Time permitted to attach to the change feed.")
	cmd.Flags().IntVar(&cfg.SubscriberBufferSize, "subscriber-buffer-size", cfg.SubscriberBufferSize, "Number of events buffered for each subscriber before it is dropped.")

	cmd.Flags().BoolVar(&cfg.SSL, "ssl", false, "Toggle SSL")
	cmd.Flags().StringVar(&cfg.CertFile, "cert-file", "", "Path to SSL certificate (required if enabling SSL)")
	cmd.Flags().StringVar(&cfg.KeyFile, "key-file", "", "Path to SSL key (required if enabling SSL)")
	cmd.Flags().BoolVar(&cfg.EnableRequestLogging, "log-http-requests", false, "Log HTTP requests")

	cmd.Flags().StringVar(&cfg.NATS.URL, "nats-url", "", "Relay change events to the NATS server at this URL.")
	cmd.Flags().StringVar(&cfg.NATS.Subject, "nats-subject", relay.DefaultNATSSubject, "Subject prefix for change events relayed to NATS.")
	cmd.Flags().StringVar(&cfg.PubSub.Topic, "pubsub-topic", "", "Relay change events to this GCP pub/sub topic: gcppubsub://<project>/<topic>.")

	cfg.LogConfig.RegisterFlags(cmd.Flags())

	if err := cmdutil.SetFlagsFromEnvVariables(cmd.Flags()); err != nil {
		return errors.Wrap(err, "failed to populate config from environment vars")
	}

	return cmd.ExecuteContext(ctx)
}
