package logr

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// records decodes JSON log records, one per line.
func records(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var got []map[string]any
	for line := range strings.SplitSeq(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		delete(rec, "time")
		got = append(got, rec)
	}
	return got
}

func TestLogger(t *testing.T) {
	tests := []struct {
		name      string
		verbosity int
		log       func(logger Logger)
		want      []map[string]any
	}{
		{
			"info",
			0,
			func(logger Logger) {
				logger.Info("created counter", "id", "c1")
			},
			[]map[string]any{{"level": "INFO", "msg": "created counter", "id": "c1"}},
		},
		{
			"error",
			0,
			func(logger Logger) {
				logger.Error(errors.New("woops"), "relaying change event", "sink", "nats")
			},
			[]map[string]any{{"level": "ERROR", "msg": "relaying change event", "err": "woops", "sink": "nats"}},
		},
		{
			"debug",
			1,
			func(logger Logger) {
				logger.V(1).Info("subscribed", "subscribers", 2)
			},
			[]map[string]any{{"level": "DEBUG", "msg": "subscribed", "subscribers": float64(2)}},
		},
		{
			"more verbose than debug",
			2,
			func(logger Logger) {
				logger.V(2).Info("relayed change event")
			},
			[]map[string]any{{"level": "DEBUG-1", "msg": "relayed change event"}},
		},
		{
			"with values",
			0,
			func(logger Logger) {
				logger.WithValues("component", "broker").Info("closed")
			},
			[]map[string]any{{"level": "INFO", "msg": "closed", "component": "broker"}},
		},
		{
			"hide debug",
			0,
			func(logger Logger) {
				logger.V(1).Info("should not see this")
			},
			nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := New(Config{Verbosity: tt.verbosity, Format: JSONFormat, Output: &buf})
			require.NoError(t, err)

			tt.log(logger)

			assert.Equal(t, tt.want, records(t, &buf))
		})
	}
}

func TestNew(t *testing.T) {
	for _, format := range []Format{"", DefaultFormat, TextFormat, JSONFormat} {
		_, err := New(Config{Format: format})
		assert.NoError(t, err, format)
	}
	_, err := New(Config{Format: "xml"})
	assert.Error(t, err)
}

func TestRegisterFlags(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		var cfg Config
		fs := pflag.NewFlagSet("testing", pflag.ContinueOnError)
		cfg.RegisterFlags(fs)
		require.NoError(t, fs.Parse(nil))
		assert.Equal(t, Config{Format: DefaultFormat}, cfg)
	})
	t.Run("set", func(t *testing.T) {
		var cfg Config
		fs := pflag.NewFlagSet("testing", pflag.ContinueOnError)
		cfg.RegisterFlags(fs)
		require.NoError(t, fs.Parse([]string{"-v", "2", "--log-format", "json"}))
		assert.Equal(t, Config{Verbosity: 2, Format: JSONFormat}, cfg)
	})
	t.Run("invalid format", func(t *testing.T) {
		var cfg Config
		fs := pflag.NewFlagSet("testing", pflag.ContinueOnError)
		fs.SetOutput(&bytes.Buffer{})
		cfg.RegisterFlags(fs)
		assert.Error(t, fs.Parse([]string{"--log-format", "xml"}))
	})
}
