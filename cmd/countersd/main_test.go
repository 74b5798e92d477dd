package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/datapowersync/counters/internal/daemon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHelp(t *testing.T) {
	var out bytes.Buffer
	err := parseFlags(context.Background(), []string{"-h"}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "--subscriber-buffer-size")
	assert.Contains(t, out.String(), "--nats-url")
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	err := parseFlags(context.Background(), []string{"--version"}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "unknown")
}

func TestInvalidConfig(t *testing.T) {
	t.Run("missing database", func(t *testing.T) {
		err := parseFlags(context.Background(), []string{}, &bytes.Buffer{})
		assert.ErrorContains(t, err, "database")
	})
	t.Run("invalid source from env", func(t *testing.T) {
		t.Setenv("COUNTERS_SOURCE", "trigger")
		err := parseFlags(context.Background(), []string{}, &bytes.Buffer{})
		assert.ErrorIs(t, err, daemon.ErrInvalidSource)
	})
}
