// Package daemon wires together and runs the counters daemon, countersd.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/datapowersync/counters/internal"
	"github.com/datapowersync/counters/internal/changefeed"
	"github.com/datapowersync/counters/internal/counter"
	countershttp "github.com/datapowersync/counters/internal/http"
	"github.com/datapowersync/counters/internal/inmem"
	"github.com/datapowersync/counters/internal/logr"
	"github.com/datapowersync/counters/internal/pubsub"
	"github.com/datapowersync/counters/internal/relay"
	"github.com/datapowersync/counters/internal/sql"
	"golang.org/x/sync/errgroup"
)

// startupTimeout is the time permitted for a subsystem to signal it has
// started.
const startupTimeout = 30 * time.Second

type (
	Daemon struct {
		Config
		logr.Logger

		Counters *counter.Service
		Broker   *pubsub.Broker[changefeed.ChangeEvent]
		Listener *changefeed.Listener
		// DB is nil when counters are stored in memory.
		DB *sql.DB

		relays   []relaySubsystem
		handlers []countershttp.Handlers

		// ListenAddress is the address the http server is listening on,
		// populated once started.
		ListenAddress *net.TCPAddr
	}

	relaySubsystem struct {
		*relay.Relay
		sink   string
		lockID int64
	}
)

// New builds a new daemon. Unless counters are stored in memory, it
// establishes a connection to the database and migrates it to the latest
// schema.
func New(ctx context.Context, logger logr.Logger, cfg Config) (*Daemon, error) {
	if err := cfg.Valid(); err != nil {
		return nil, err
	}

	broker := pubsub.NewBroker[changefeed.ChangeEvent](logger, "counters",
		pubsub.WithBufferSize(cfg.SubscriberBufferSize))

	d := &Daemon{
		Config: cfg,
		Logger: logger,
		Broker: broker,
	}

	var (
		store  counter.Store
		source changefeed.Source
	)
	switch cfg.Source {
	case MemorySource:
		mem := inmem.NewStore()
		store, source = mem, mem
		logger.Info("storing counters in memory")
	default:
		db, err := sql.New(ctx, logger, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("creating database pool: %w", err)
		}
		d.DB = db
		store = counter.NewPGStore(db)

		if cfg.Source == LogicalSource {
			source = changefeed.NewLogicalSource(changefeed.LogicalSourceOptions{
				Logger:           logger,
				ConnString:       cfg.Database,
				Publication:      cfg.Publication,
				Table:            counter.TableName,
				SubscribeTimeout: cfg.SubscribeTimeout,
			})
		} else {
			source = changefeed.NewNotifySource(changefeed.NotifySourceOptions{
				Logger:           logger,
				Pool:             db.Pool,
				SubscribeTimeout: cfg.SubscribeTimeout,
			})
		}
	}

	d.Listener = changefeed.NewListener(changefeed.ListenerOptions{
		Logger:    logger,
		Source:    source,
		Table:     counter.TableName,
		Publisher: broker,
	})
	d.Counters = counter.NewService(counter.Options{
		Logger: logger,
		Store:  store,
		Events: broker,
	})
	d.handlers = []countershttp.Handlers{d.Counters}

	if err := d.addRelays(ctx); err != nil {
		d.close()
		return nil, err
	}
	return d, nil
}

func (d *Daemon) addRelays(ctx context.Context) error {
	if d.NATS.URL != "" {
		sink, err := relay.NewNATSSink(d.Logger, relay.NATSOptions{
			URL:     d.NATS.URL,
			Subject: d.NATS.Subject,
		})
		if err != nil {
			return fmt.Errorf("setting up nats relay: %w", err)
		}
		d.relays = append(d.relays, relaySubsystem{
			Relay:  relay.New(d.Logger, sink, d.Broker),
			sink:   sink.Name(),
			lockID: sql.NATSRelayLockID,
		})
	}
	if d.PubSub.Topic != "" {
		sink, err := relay.NewPubSubSink(ctx, d.PubSub.Topic)
		if err != nil {
			return fmt.Errorf("setting up gcp pubsub relay: %w", err)
		}
		d.relays = append(d.relays, relaySubsystem{
			Relay:  relay.New(d.Logger, sink, d.Broker),
			sink:   sink.Name(),
			lockID: sql.PubSubRelayLockID,
		})
	}
	return nil
}

// Start the countersd daemon and block until ctx is cancelled or an error is
// returned. The started channel is closed once the daemon has started.
func (d *Daemon) Start(ctx context.Context, started chan struct{}) error {
	// Cancel context the first time a func started with g.Go() fails
	g, ctx := errgroup.WithContext(ctx)

	defer d.close()

	server, err := countershttp.NewServer(d.Logger, countershttp.ServerConfig{
		SSL:                  d.SSL,
		CertFile:             d.CertFile,
		KeyFile:              d.KeyFile,
		EnableRequestLogging: d.EnableRequestLogging,
		Handlers:             d.handlers,
	})
	if err != nil {
		return fmt.Errorf("setting up http server: %w", err)
	}
	ln, err := net.Listen("tcp", d.Address)
	if err != nil {
		return err
	}
	d.ListenAddress = ln.Addr().(*net.TCPAddr)

	defer ln.Close()

	// Subsystems are started in order. The listener is started first so that
	// the change feed is attached before clients can mutate counters.
	subsystems := []*Subsystem{
		{
			Name:   "listener",
			Logger: d.Logger,
			System: d.Listener,
		},
	}
	for _, r := range d.relays {
		ss := &Subsystem{
			Name:   r.sink + "-relay",
			Logger: d.Logger,
			System: r.Relay,
		}
		// With a database, relay from only one daemon amongst those sharing
		// it, otherwise every event would be relayed once per daemon.
		if d.DB != nil {
			ss.DB = d.DB
			ss.LockID = internal.Ptr(r.lockID)
		}
		subsystems = append(subsystems, ss)
	}
	for _, ss := range subsystems {
		if err := ss.Start(ctx, g); err != nil {
			return err
		}
		if err := ss.waitStarted(ctx, startupTimeout); err != nil {
			return err
		}
	}

	g.Go(func() error {
		if err := server.Start(ctx, ln); err != nil {
			return fmt.Errorf("http server terminated: %w", err)
		}
		return nil
	})

	// Inform the caller the daemon has started
	close(started)

	// Block until error or Ctrl-C received.
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// close releases the daemon's resources.
func (d *Daemon) close() {
	for _, r := range d.relays {
		r.Close()
	}
	d.relays = nil
	d.Broker.Close()
	if d.DB != nil {
		d.DB.Close()
	}
}
