package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and an env file that does not
// exist, so only the test's environment is configured.
func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	return executeEnv(t, nil, args...)
}

// executeEnv is execute with extra environment variables.
func executeEnv(t *testing.T, env map[string]string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	t.Setenv("QUERYKIT_DSN", "")
	t.Setenv("QUERYKIT_LOG_LEVEL", "info")
	t.Setenv("QUERYKIT_BACKEND", "memory")
	t.Setenv("QUERYKIT_SCHEMA_DIR", schemaDir)
	t.Setenv("QUERYKIT_METRICS", "false")
	for k, v := range env {
		t.Setenv(k, v)
	}

	cmd := NewRootCommand()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(append([]string{"--env", filepath.Join(t.TempDir(), "none.env")}, args...))
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

var (
	schemaDir = filepath.Join("testdata", "schema")
	usersData = filepath.Join("testdata", "users.yaml")
)

func queryPath(name string) string {
	return filepath.Join("testdata", "queries", name)
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "querykit", cmd.Use)
	assert.Contains(t, cmd.Long, "backends")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"compile", "validate", "query", "aggregate"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	envFlag := cmd.PersistentFlags().Lookup("env")
	require.NotNil(t, envFlag)
	assert.Equal(t, "", envFlag.DefValue)
}

func TestBackendFlags(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"compile", "query", "aggregate"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			for _, flag := range []string{"backend", "dsn", "data", "schema", "entity", "table"} {
				f := sub.Flags().Lookup(flag)
				require.NotNil(t, f, "--%s", flag)
				assert.Equal(t, "", f.DefValue, "--%s falls back to config", flag)
			}
		})
	}
}

func TestInvalidFormat(t *testing.T) {
	_, _, err := execute(t, "--format", "xml", "query", "--table", "users", queryPath("adults.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestInvalidLogLevel(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	t.Setenv("QUERYKIT_LOG_LEVEL", "loud")
	cmd.SetArgs([]string{"--env", filepath.Join(t.TempDir(), "none.env"), "query", "--table", "users", queryPath("adults.yaml")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid log level "loud"`)
}

func TestIsValidFormat(t *testing.T) {
	tests := []struct {
		format string
		want   bool
	}{
		{"text", true},
		{"json", true},
		{"xml", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			assert.Equal(t, tt.want, isValidFormat(tt.format))
		})
	}
}
