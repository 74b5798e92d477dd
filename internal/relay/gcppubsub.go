package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"

	"cloud.google.com/go/pubsub/v2"
	"github.com/datapowersync/counters/internal/changefeed"
)

var (
	ErrInvalidGoogleProjectID    = errors.New("URL host must be a valid GCP project ID")
	ErrInvalidGooglePubSubTopic  = errors.New("URL path must be a valid GCP pubsub topic ID")
	ErrInvalidGooglePubSubScheme = errors.New("URL scheme must be: " + gcpPubSubScheme)

	_ Sink = (*PubSubSink)(nil)

	// URL scheme for a gcp pubsub topic, e.g.
	// gcppubsub://<project_id>/<topic_name>
	gcpPubSubScheme = "gcppubsub"

	// regex for a google project ID:
	//
	// https://cloud.google.com/resource-manager/docs/creating-managing-projects#before_you_begin
	gcpProjectIDRegex = regexp.MustCompile(`^[a-z][-a-z0-9]{4,28}[a-z0-9]$`)
	// regex for gcp pubsub topic name:
	//
	// https://cloud.google.com/pubsub/docs/create-topic#resource_names
	gcpPubSubTopicRegex = regexp.MustCompile(`^[a-zA-Z][-a-zA-Z0-9]{2,254}$`)
)

const (
	kindAttribute = "counters/v1/kind"
	idAttribute   = "counters/v1/id"
)

// PubSubSink publishes change events to a GCP pub/sub topic. Events for the
// same counter share an ordering key, so subscribers with message ordering
// enabled receive them in the order they occurred.
type PubSubSink struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
}

func NewPubSubSink(ctx context.Context, topicURL string) (*PubSubSink, error) {
	project, topic, err := parsePubSubURL(topicURL)
	if err != nil {
		return nil, err
	}
	client, err := pubsub.NewClient(ctx, project)
	if err != nil {
		return nil, err
	}
	publisher := client.Publisher(topic)
	publisher.EnableMessageOrdering = true
	return &PubSubSink{
		client:    client,
		publisher: publisher,
	}, nil
}

// parsePubSubURL parses a gcppubsub://<project>/<topic> URL.
func parsePubSubURL(topicURL string) (project, topic string, err error) {
	u, err := url.Parse(topicURL)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != gcpPubSubScheme {
		return "", "", ErrInvalidGooglePubSubScheme
	}
	if !gcpProjectIDRegex.MatchString(u.Host) {
		return "", "", ErrInvalidGoogleProjectID
	}
	if len(u.Path) == 0 || u.Path[0] != '/' || !gcpPubSubTopicRegex.MatchString(u.Path[1:]) {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidGooglePubSubTopic, u.Path)
	}
	return u.Host, u.Path[1:], nil
}

func (s *PubSubSink) Name() string { return "gcppubsub" }

// Publish a change event to the topic, waiting for the server to acknowledge
// it.
func (s *PubSubSink) Publish(ctx context.Context, event changefeed.ChangeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	// add attributes to allow subscribers to filter messages:
	//
	// https://cloud.google.com/pubsub/docs/subscription-message-filter#filtering_syntax
	res := s.publisher.Publish(ctx, &pubsub.Message{
		Data:        data,
		OrderingKey: event.ID,
		Attributes: map[string]string{
			kindAttribute: string(event.Kind),
			idAttribute:   event.ID,
		},
	})
	if _, err := res.Get(ctx); err != nil {
		// publishing for an ordering key is paused after a failure until
		// resumed.
		s.publisher.ResumePublish(event.ID)
		return err
	}
	return nil
}

func (s *PubSubSink) Close() {
	s.publisher.Stop()
	s.client.Close()
}
