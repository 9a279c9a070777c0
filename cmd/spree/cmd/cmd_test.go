package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psantana5/spree/pkg/intercept"
	"github.com/psantana5/spree/pkg/loader"
	"github.com/psantana5/spree/pkg/payload"
)

// TestMain doubles as a spree child when SPREE_CMD_HELPER is set: it runs
// the command line it was launched with, exactly as main does.
func TestMain(m *testing.M) {
	child := loader.Init()
	if os.Getenv("SPREE_CMD_HELPER") != "" {
		if err := Execute(child); err != nil {
			var exitErr *ExitError
			if errors.As(err, &exitErr) {
				os.Exit(exitErr.Code)
			}
			os.Exit(1)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	runOpts = runFlags{output: "table"}
	inspectOutput = "yaml"
	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	})

	var stdout, stderr bytes.Buffer
	err := Execute(&payload.Runtime{Stdout: &stdout, Stderr: &stderr, Args: args})
	return stdout.String(), stderr.String(), err
}

func TestBuildPayload(t *testing.T) {
	tests := []struct {
		name    string
		flags   runFlags
		want    payload.Payload
		wantErr bool
	}{
		{"none", runFlags{}, nil, false},
		{
			"redirect",
			runFlags{redirectStdout: "out.txt", appendOutput: true},
			&payload.Redirect{Stdout: "out.txt", Append: true},
			false,
		},
		{
			"sequence",
			runFlags{setenv: []string{"A=1", "B=x=y"}, writeFiles: []string{"f=Hello world"}},
			&payload.Sequence{Steps: []payload.Payload{
				&payload.Setenv{Vars: map[string]string{"A": "1", "B": "x=y"}},
				&payload.WriteFile{Path: "f", Data: "Hello world"},
			}},
			false,
		},
		{
			"call",
			runFlags{call: "spree.print", callArgs: []string{"text=hi"}},
			&payload.Call{Name: "spree.print", Args: map[string]string{"text": "hi"}},
			false,
		},
		{"bad setenv", runFlags{setenv: []string{"novalue"}}, nil, true},
		{"bad write-file", runFlags{writeFiles: []string{"=data"}}, nil, true},
		{"arg without call", runFlags{callArgs: []string{"a=b"}}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildPayload(tt.flags)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEcho(t *testing.T) {
	stdout, _, err := execute(t, "echo", "Hello", "world")
	require.NoError(t, err)
	assert.Equal(t, "Hello world\n", stdout)
}

func TestVersion(t *testing.T) {
	stdout, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "spree "+Version), stdout)
}

func TestConfigShow(t *testing.T) {
	t.Setenv("SPREE_MEDIUM_PATH", "/tmp/envelope.gob")

	stdout, _, err := execute(t, "config", "show", "--log-level", "debug")
	require.NoError(t, err)
	assert.Contains(t, stdout, "path: /tmp/envelope.gob")
	assert.Contains(t, stdout, "level: debug")
}

func TestPayloads(t *testing.T) {
	stdout, _, err := execute(t, "payloads")
	require.NoError(t, err)
	assert.Contains(t, stdout, "spree.print")
	assert.Contains(t, stdout, loader.Module)
}

func helperExe(t *testing.T) string {
	t.Helper()
	exe, err := intercept.Executable()
	require.NoError(t, err)
	return exe
}

func TestRunRedirectsChild(t *testing.T) {
	t.Setenv("SPREE_CMD_HELPER", "1")
	dir := t.TempDir()
	out := filepath.Join(dir, "output.txt")
	medium := filepath.Join(dir, "envelope.gob")

	stdout, stderr, err := execute(t, "run",
		"--redirect-stdout", out,
		"--medium", medium,
		"--output", "json",
		"--", helperExe(t), "echo", "Hello", "world")
	require.NoError(t, err, stderr)
	assert.Empty(t, stdout)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "Hello world\n", string(data))

	// the JSON report is the last thing on stderr
	idx := strings.Index(stderr, "{\n")
	require.GreaterOrEqual(t, idx, 0, stderr)
	var result map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(stderr[idx:]), &result))
	assert.Equal(t, "intercepted", result["mode"])
	assert.Equal(t, medium, result["medium"])
	assert.Equal(t, float64(0), result["exit_code"])

	in, err := inspectMedium(medium)
	require.NoError(t, err)
	assert.False(t, in.DeleteOnLoad)
	assert.Equal(t, "*payload.Redirect", in.Type)

	stdout, _, err = execute(t, "inspect", medium)
	require.NoError(t, err)
	assert.Contains(t, stdout, "*payload.Redirect")
	assert.Contains(t, stdout, "stdout: "+out)
}

func TestRunExitCode(t *testing.T) {
	t.Setenv("SPREE_CMD_HELPER", "1")

	stdout, stderr, err := execute(t, "run", "--call", "unknown.func", "--output", "none",
		"--", helperExe(t), "echo", "never")

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, loader.ExitPayload, exitErr.Code)
	assert.Contains(t, stderr, `function "unknown.func" is not registered`)
	assert.Empty(t, stdout, "the program must not run after a failed payload")
}

func TestRunPassthrough(t *testing.T) {
	stdout, _, err := execute(t, "run", "--write-file", filepath.Join(t.TempDir(), "x")+"=y",
		"--output", "none", "--", "sh", "-c", "echo $0 $1", "a", "b")
	require.NoError(t, err)
	assert.Equal(t, "a b\n", stdout)

	_, stderr, err := execute(t, "run", "--output", "none", "--metrics-textfile", "-", "--", "true")
	require.NoError(t, err)
	assert.Contains(t, stderr, `spree_launches_total{mode="passthrough"}`)

	_, _, err = execute(t, "run", "--output", "none", "--", "sh", "-c", "exit 5")
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 5, exitErr.Code)
}

func TestInspectErrors(t *testing.T) {
	corrupt := filepath.Join(t.TempDir(), "corrupt.gob")
	require.NoError(t, os.WriteFile(corrupt, []byte("garbage"), 0o600))

	_, _, err := execute(t, "inspect", corrupt)
	var derr *payload.DeserializationError
	assert.ErrorAs(t, err, &derr)

	_, _, err = execute(t, "inspect", "--output", "xml", corrupt)
	assert.Error(t, err)
}

func TestClean(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SPREE_MEDIUM_TEMP_DIR", dir)
	stale := filepath.Join(dir, "spree-stale.gob")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o600))
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale, past, past))

	stdout, _, err := execute(t, "clean", "--older-than", "1h")
	require.NoError(t, err)
	assert.Equal(t, stale+"\n", stdout)
	assert.NoFileExists(t, stale)
}

func TestInitConfigRunsBeforeCommands(t *testing.T) {
	require.NotNil(t, rootCmd.PersistentPreRunE)
	cfg, logger = nil, nil

	_, _, err := execute(t, "version")
	require.NoError(t, err)
	require.NotNil(t, cfg, "config not loaded before the command ran")
	assert.NotNil(t, logger)
}

func TestRunFromBinaryDir(t *testing.T) {
	t.Setenv("SPREE_CMD_HELPER", "1")
	dir := t.TempDir()
	t.Chdir(dir)
	// the spree binary sitting next to the user is not a config file
	require.NoError(t, os.WriteFile(filepath.Join(dir, "spree"), []byte("\x7fELF\x02\x01\x01\x00"), 0o755))

	stdout, _, err := execute(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, stdout, "level: info")

	_, stderr, err := execute(t, "run", "--redirect-stdout", "out.txt", "--output", "none",
		"--", helperExe(t), "echo", "Hello", "world")
	require.NoError(t, err, stderr)

	data, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Hello world\n", string(data))
}
