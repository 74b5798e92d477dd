package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/datapowersync/counters/internal/changefeed"
	"github.com/datapowersync/counters/internal/client"
	"github.com/datapowersync/counters/internal/counter"
	countershttp "github.com/datapowersync/counters/internal/http"
	"github.com/datapowersync/counters/internal/inmem"
	"github.com/datapowersync/counters/internal/logr"
	"github.com/datapowersync/counters/internal/pubsub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCommandTree checks the command tree is as it should be
func TestCommandTree(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		args []string
		err  string
		// want is a regex of wanted output
		want string
	}{
		{
			name: "nothing",
			args: []string{""},
			want: `Usage:\n  counters \[command\]`,
		},
		{
			name: "help",
			args: []string{"-h"},
			want: `Usage:\n  counters \[command\]`,
		},
		{name: "create", args: []string{"create", "-h"}},
		{name: "get", args: []string{"get", "-h"}},
		{name: "list", args: []string{"list", "-h"}},
		{name: "latest", args: []string{"latest", "-h"}},
		{name: "update", args: []string{"update", "-h"}},
		{name: "increment", args: []string{"increment", "-h"}},
		{name: "delete", args: []string{"delete", "-h"}},
		{name: "watch", args: []string{"watch", "-h"}},
		{
			name: "invalid",
			args: []string{"invalid", "-h"},
			err:  "unknown command \"invalid\" for \"counters\"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := new(bytes.Buffer)
			err := NewCLI().Run(ctx, tt.args, got)
			if tt.err != "" {
				require.EqualError(t, err, tt.err)
				return
			}
			require.NoError(t, err)

			assert.Regexp(t, tt.want, got.String())
		})
	}
}

// newTestCLI returns a CLI with a client for a counters server backed by an
// in-memory store.
func newTestCLI(t *testing.T) *CLI {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store := inmem.NewStore()
	broker := pubsub.NewBroker[changefeed.ChangeEvent](logr.Discard(), "counters")
	listener := changefeed.NewListener(changefeed.ListenerOptions{
		Logger:    logr.Discard(),
		Source:    store,
		Table:     counter.TableName,
		Publisher: broker,
	})
	go listener.Start(ctx)
	<-listener.Started()

	svc := counter.NewService(counter.Options{
		Logger: logr.Discard(),
		Store:  store,
		Events: broker,
	})
	srv := httptest.NewServer(countershttp.NewRouter(logr.Discard(), countershttp.ServerConfig{
		Handlers: []countershttp.Handlers{svc},
	}))
	t.Cleanup(srv.Close)

	c, err := client.New(client.Config{URL: srv.URL, Logger: logr.Discard()})
	require.NoError(t, err)
	return &CLI{client: c}
}

func run(t *testing.T, cli *CLI, args ...string) string {
	t.Helper()

	got := new(bytes.Buffer)
	require.NoError(t, cli.Run(context.Background(), args, got))
	return got.String()
}

func TestCounters(t *testing.T) {
	cli := newTestCLI(t)

	got := run(t, cli, "create", "--count", "5", "--owner", "alice")
	require.True(t, strings.HasPrefix(got, "Successfully created counter "))
	id := strings.TrimSpace(strings.TrimPrefix(got, "Successfully created counter "))

	got = run(t, cli, "increment", id, "-n", "3")
	assert.Equal(t, "Updated counter "+id+": 8\n", got)

	got = run(t, cli, "update", id, "--count", "1")
	assert.Equal(t, "Updated counter "+id+": 1\n", got)

	got = run(t, cli, "get", id)
	assert.Contains(t, got, `"count": 1`)
	assert.Contains(t, got, `"owner_id": "alice"`)

	got = run(t, cli, "latest", "--owner", "alice")
	assert.Contains(t, got, id)

	got = run(t, cli, "list")
	assert.Equal(t, id+"\t1\n", got)

	got = run(t, cli, "list", "--owner", "bob")
	assert.Empty(t, got)

	got = run(t, cli, "delete", id)
	assert.Equal(t, "Successfully deleted counter "+id+"\n", got)

	err := cli.Run(context.Background(), []string{"get", id}, new(bytes.Buffer))
	assert.Error(t, err)
}

func TestUpdate_CountRequired(t *testing.T) {
	cli := newTestCLI(t)

	err := cli.Run(context.Background(), []string{"update", "abc"}, new(bytes.Buffer))
	assert.ErrorContains(t, err, "count")
}

func TestWatch(t *testing.T) {
	for _, args := range [][]string{{"watch"}, {"watch", "--websocket"}} {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			cli := newTestCLI(t)

			ctx, cancel := context.WithCancel(context.Background())
			out := &syncBuffer{}
			done := make(chan error, 1)
			go func() {
				done <- cli.Run(ctx, args, out)
			}()

			// Keep creating counters until the watcher has subscribed and
			// reports one of them.
			require.Eventually(t, func() bool {
				_, err := cli.client.Create(context.Background(), counter.CreateOptions{Count: 7})
				assert.NoError(t, err)
				return strings.Contains(out.String(), "inserted\t")
			}, 5*time.Second, 100*time.Millisecond)
			assert.Contains(t, out.String(), "\t7\n")

			cancel()
			select {
			case err := <-done:
				assert.NoError(t, err)
			case <-time.After(5 * time.Second):
				t.Fatal("timed out waiting for watch to stop")
			}
		})
	}
}
