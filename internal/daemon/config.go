package daemon

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"time"

	"github.com/datapowersync/counters/internal"
	"github.com/datapowersync/counters/internal/logr"
)

const (
	// NotifySource attaches to the change feed via postgres LISTEN/NOTIFY.
	NotifySource = "notify"
	// LogicalSource attaches to the change feed via postgres logical
	// replication.
	LogicalSource = "logical"
	// MemorySource stores counters in memory, with changes fed directly from
	// the store.
	MemorySource = "memory"
)

var (
	ErrInvalidSource     = errors.New("invalid change source")
	ErrInvalidBufferSize = errors.New("subscriber buffer size must be greater than zero")

	sources = []string{NotifySource, LogicalSource, MemorySource}

	// postgres identifier, unquoted
	identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)
)

// Config configures the countersd daemon. Descriptions of each field can be
// found in the flag definitions in ./cmd/countersd
type Config struct {
	Address              string
	Database             string
	Source               string
	Publication          string
	SubscribeTimeout     time.Duration
	SubscriberBufferSize int
	SSL                  bool
	CertFile, KeyFile    string
	EnableRequestLogging bool
	LogConfig            logr.Config

	NATS   NATSConfig
	PubSub PubSubConfig
}

// NATSConfig configures relaying change events to NATS. Relaying is disabled
// if URL is empty.
type NATSConfig struct {
	URL     string
	Subject string
}

// PubSubConfig configures relaying change events to a GCP pub/sub topic.
// Relaying is disabled if Topic is empty.
type PubSubConfig struct {
	// Topic URL of the form gcppubsub://<project>/<topic>
	Topic string
}

// NewConfig constructs a countersd configuration with defaults.
func NewConfig() Config {
	return Config{
		Address:              ":8080",
		Source:               NotifySource,
		SubscriberBufferSize: 100,
	}
}

func (cfg *Config) Valid() error {
	if !slices.Contains(sources, cfg.Source) {
		return fmt.Errorf("%w: %q: must be one of %v", ErrInvalidSource, cfg.Source, sources)
	}
	if cfg.Source != MemorySource && cfg.Database == "" {
		return &internal.ErrMissingParameter{Parameter: "database"}
	}
	if cfg.SubscriberBufferSize <= 0 {
		return ErrInvalidBufferSize
	}
	if cfg.Publication != "" && !identifier.MatchString(cfg.Publication) {
		return &internal.ErrInvalidParameter{
			Parameter: "publication",
			Reason:    "must be a postgres identifier of letters, digits and underscores",
		}
	}
	return nil
}
