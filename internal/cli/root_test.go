package cli

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the root command with args and returns its standard output.
// Log messages go to the test log.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, logs bytes.Buffer
	t.Cleanup(func() {
		if logs.Len() > 0 {
			t.Log(logs.String())
		}
	})
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&logs)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// isolate clears the settings the environment could inject.
func isolate(t *testing.T) {
	t.Helper()
	for _, v := range []string{"TZRULES_PROVIDER", "TZRULES_DB", "TZRULES_SQLITE", "TZRULES_ZONEINFO", "TZRULES_LOG_LEVEL"} {
		t.Setenv(v, "")
	}
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "tzrules", cmd.Use)
	assert.True(t, cmd.SilenceUsage)
	assert.True(t, cmd.SilenceErrors)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"compile", "fetch", "inspect", "diff", "import", "export", "zones", "offset", "transitions"}

	for _, name := range commands {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err, "command %s should exist", name)
			require.NotNil(t, sub)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)

	levelFlag := cmd.PersistentFlags().Lookup("log-level")
	require.NotNil(t, levelFlag)
	assert.Equal(t, "INFO", levelFlag.DefValue)
	assert.Equal(t, "level", levelFlag.Value.Type())

	require.NotNil(t, cmd.PersistentFlags().Lookup("log-format"))
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		command   string
		flag      string
		shorthand string
		defValue  string
	}{
		{"compile", "output", "o", ""},
		{"compile", "xz", "", "false"},
		{"fetch", "etag", "", ""},
		{"export", "dir", "d", ""},
		{"export", "end-year", "", "2037"},
		{"transitions", "count", "n", "10"},
		{"transitions", "reverse", "r", "false"},
		{"diff", "verbose", "v", "false"},
		{"offset", "local", "", ""},
	}
	cmd := NewRootCommand()
	for _, tt := range tests {
		t.Run(tt.command+"/"+tt.flag, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{tt.command})
			require.NoError(t, err)
			f := sub.Flags().Lookup(tt.flag)
			require.NotNil(t, f)
			assert.Equal(t, tt.shorthand, f.Shorthand)
			assert.Equal(t, tt.defValue, f.DefValue)
		})
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain", errors.New("boom"), ExitFailure},
		{"usage", NewExitError(ExitUsage, "bad"), ExitUsage},
		{"wrapped", WrapExitError(ExitFailure, "outer", errors.New("inner")), ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestExitErrorMessage(t *testing.T) {
	inner := errors.New("inner")
	err := WrapExitError(ExitFailure, "outer", inner)
	assert.Equal(t, "outer: inner", err.Error())
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "bad", NewExitError(ExitUsage, "bad").Error())
}

func TestUsageErrors(t *testing.T) {
	isolate(t)
	tests := []struct {
		name string
		args []string
	}{
		{"missing argument", []string{"offset"}},
		{"extra argument", []string{"zones", "extra"}},
		{"unknown flag", []string{"zones", "--nope"}},
		{"bad log level", []string{"--log-level", "loud", "zones"}},
		{"bad log format", []string{"--log-format", "xml", "zones"}},
		{"unknown zone", []string{"offset", "Mars/Olympus"}},
		{"bad instant", []string{"offset", "Europe/Berlin", "--at", "yesterday"}},
		{"bad count", []string{"transitions", "Europe/Berlin", "-n", "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitUsage, ExitCode(err), "%v", err)
		})
	}
}

func TestConfigFileMissing(t *testing.T) {
	isolate(t)
	_, err := run(t, "--config", "/nonexistent/tzrules.yaml", "zones")
	require.Error(t, err)
	assert.Equal(t, ExitUsage, ExitCode(err))
}
