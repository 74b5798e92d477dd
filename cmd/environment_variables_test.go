package cmd

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetFlagsFromEnvVariables(t *testing.T) {
	t.Run("override flag with env var", func(t *testing.T) {
		fs := pflag.NewFlagSet("testing", pflag.ContinueOnError)
		got := fs.String("foo", "default", "")
		t.Setenv("COUNTERS_FOO", "bar")
		require.NoError(t, SetFlagsFromEnvVariables(fs))
		require.NoError(t, fs.Parse(nil))
		assert.Equal(t, "bar", *got)
	})
	t.Run("hyphenated flag", func(t *testing.T) {
		fs := pflag.NewFlagSet("testing", pflag.ContinueOnError)
		got := fs.Int("subscriber-buffer-size", 100, "")
		t.Setenv("COUNTERS_SUBSCRIBER_BUFFER_SIZE", "5")
		require.NoError(t, SetFlagsFromEnvVariables(fs))
		require.NoError(t, fs.Parse(nil))
		assert.Equal(t, 5, *got)
	})
	t.Run("explicit flag takes precedence", func(t *testing.T) {
		fs := pflag.NewFlagSet("testing", pflag.ContinueOnError)
		got := fs.String("foo", "default", "")
		t.Setenv("COUNTERS_FOO", "bar")
		require.NoError(t, SetFlagsFromEnvVariables(fs))
		require.NoError(t, fs.Parse([]string{"--foo", "baz"}))
		assert.Equal(t, "baz", *got)
	})
	t.Run("override flag with env var file", func(t *testing.T) {
		fs := pflag.NewFlagSet("testing", pflag.ContinueOnError)
		got := fs.String("foo", "default", "")
		t.Setenv("COUNTERS_FOO_FILE", "./testdata/counters_foo_file")
		require.NoError(t, SetFlagsFromEnvVariables(fs))
		require.NoError(t, fs.Parse(nil))
		assert.Equal(t, "big\nmultiline\nsecret\n", *got)
	})
	t.Run("ignore env var file for flag ending with _file", func(t *testing.T) {
		fs := pflag.NewFlagSet("testing", pflag.ContinueOnError)
		got := fs.String("foo_file", "default", "")
		t.Setenv("COUNTERS_FOO_FILE_FILE", "./testdata/counters_foo_file")
		require.NoError(t, SetFlagsFromEnvVariables(fs))
		require.NoError(t, fs.Parse(nil))
		assert.Equal(t, "default", *got)
	})
	t.Run("non-existent env var file", func(t *testing.T) {
		fs := pflag.NewFlagSet("testing", pflag.ContinueOnError)
		_ = fs.String("foo", "default", "")
		t.Setenv("COUNTERS_FOO_FILE", "./does-not-exist")
		err := SetFlagsFromEnvVariables(fs)
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})
	t.Run("invalid value", func(t *testing.T) {
		fs := pflag.NewFlagSet("testing", pflag.ContinueOnError)
		_ = fs.Int("size", 1, "")
		t.Setenv("COUNTERS_SIZE", "big")
		assert.Error(t, SetFlagsFromEnvVariables(fs))
	})
}

func TestUnsetEnvVariables(t *testing.T) {
	t.Setenv("COUNTERS_FOO", "bar")
	t.Setenv("OTHER_FOO", "bar")

	require.NoError(t, UnsetEnvVariables())

	_, ok := os.LookupEnv("COUNTERS_FOO")
	assert.False(t, ok)
	assert.Equal(t, "bar", os.Getenv("OTHER_FOO"))
}

func TestFprintError(t *testing.T) {
	var buf bytes.Buffer
	FprintError(&buf, errors.New("boom"))
	assert.Contains(t, buf.String(), "boom")
}
