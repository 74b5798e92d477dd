package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
)

const (
	EnvironmentVariablePrefix = "COUNTERS_"

	// fileSuffix is appended to a flag's env var name to set the flag from
	// the contents of a file instead, e.g. COUNTERS_DATABASE_FILE.
	fileSuffix = "_FILE"
)

// SetFlagsFromEnvVariables sets each flag from an env var whose name starts
// with `COUNTERS_`, unless the flag is set explicitly. Alternatively the value
// is read from the file named by the env var with a `_FILE` suffix.
func SetFlagsFromEnvVariables(fs *pflag.FlagSet) error {
	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		envVar := flagToEnvVarName(f)
		if val, present := os.LookupEnv(envVar); present {
			if err := fs.Set(f.Name, val); err != nil {
				errs = append(errs, fmt.Errorf("setting flag %s from %s: %w", f.Name, envVar, err))
			}
			return
		}
		// flags that already refer to a file are not set from a file
		if strings.HasSuffix(envVar, fileSuffix) {
			return
		}
		path, present := os.LookupEnv(envVar + fileSuffix)
		if !present {
			return
		}
		contents, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("reading %s: %w", envVar+fileSuffix, err))
			return
		}
		if err := fs.Set(f.Name, string(contents)); err != nil {
			errs = append(errs, fmt.Errorf("setting flag %s from %s: %w", f.Name, envVar+fileSuffix, err))
		}
	})
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// UnsetEnvVariables unsets env vars prefixed with `COUNTERS_`.
func UnsetEnvVariables() error {
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, EnvironmentVariablePrefix) {
			if err := os.Unsetenv(name); err != nil {
				return err
			}
		}
	}
	return nil
}

func flagToEnvVarName(f *pflag.Flag) string {
	name := strings.ToUpper(f.Name)
	name = strings.NewReplacer("-", "_", ".", "_").Replace(name)
	return EnvironmentVariablePrefix + name
}
