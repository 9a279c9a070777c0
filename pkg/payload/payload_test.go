package payload

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greet struct {
	Name string
}

func (g *greet) Run(rt *Runtime) error {
	_, err := rt.Stdout.Write([]byte("hello " + g.Name + "\n"))
	return err
}

type unregistered struct {
	N int
}

func (*unregistered) Run(*Runtime) error { return nil }

func init() {
	Register(&greet{})
	RegisterFunc("payload_test.shout", func(rt *Runtime, args map[string]string) error {
		_, err := rt.Stdout.Write([]byte(strings.ToUpper(args["word"])))
		return err
	})
	RegisterFunc("payload_test.fail", func(*Runtime, map[string]string) error { return errBoom })
	RegisterFunc("payload_test.once", func(*Runtime, map[string]string) error { return nil })
}

var errBoom = errors.New("boom")

func TestRoundTripEffects(t *testing.T) {
	tests := []struct {
		name    string
		payload Payload
	}{
		{"registered type", &greet{Name: "child"}},
		{"call", &Call{Name: "payload_test.shout", Args: map[string]string{"word": "loud"}}},
		{"sequence", &Sequence{Steps: []Payload{&greet{Name: "a"}, &greet{Name: "b"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var direct bytes.Buffer
			require.NoError(t, tt.payload.Run(&Runtime{Stdout: &direct}))

			var medium bytes.Buffer
			require.NoError(t, Encode(&medium, &Envelope{Payload: tt.payload, DeleteOnLoad: true}))

			env, err := Decode(&medium)
			require.NoError(t, err)
			assert.True(t, env.DeleteOnLoad)

			var delivered bytes.Buffer
			require.NoError(t, env.Payload.Run(&Runtime{Stdout: &delivered}))
			assert.Equal(t, direct.String(), delivered.String())
		})
	}
}

func TestEncodeUnregistered(t *testing.T) {
	var buf bytes.Buffer
	err := Encode(&buf, &Envelope{Payload: &unregistered{N: 1}})

	var serr *SerializationError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "*payload.unregistered", serr.Type)
}

func TestDecodeCorrupt(t *testing.T) {
	_, err := Decode(strings.NewReader("definitely not gob"))

	var derr *DeserializationError
	assert.ErrorAs(t, err, &derr)
}

func TestCallUnknown(t *testing.T) {
	err := (&Call{Name: "nope"}).Run(NewRuntime())
	assert.ErrorContains(t, err, `"nope" is not registered`)
}

func TestSequenceStopsAtFirstError(t *testing.T) {
	var out bytes.Buffer
	seq := &Sequence{Steps: []Payload{
		&Call{Name: "payload_test.fail"},
		&greet{Name: "never"},
	}}
	err := seq.Run(&Runtime{Stdout: &out})

	assert.ErrorIs(t, err, errBoom)
	assert.Empty(t, out.String())
}

func TestRegisterFuncTwicePanics(t *testing.T) {
	assert.Panics(t, func() {
		RegisterFunc("payload_test.once", func(*Runtime, map[string]string) error { return nil })
	})
	assert.Contains(t, Funcs(), "payload_test.once")
}

func TestRedirect(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "output.txt")

	rt := NewRuntime()
	require.NoError(t, (&Redirect{Stdout: out}).Run(rt))
	_, err := rt.Stdout.Write([]byte("Hello world\n"))
	require.NoError(t, err)
	assert.Same(t, os.Stderr, rt.Stderr)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "Hello world\n", string(data))
}

func TestRedirectSameFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	out := filepath.Join(dir, "combined.txt")

	rt := NewRuntime()
	require.NoError(t, (&Redirect{Stdout: out, Stderr: "./combined.txt"}).Run(rt))
	assert.Same(t, rt.Stdout, rt.Stderr)

	_, err := rt.Stdout.Write([]byte("stdout line\n"))
	require.NoError(t, err)
	_, err = rt.Stderr.Write([]byte("ERR\n"))
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "stdout line\nERR\n", string(data))
}

func TestRedirectStderrOpenFails(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.txt")

	rt := NewRuntime()
	err := (&Redirect{Stdout: out, Stderr: filepath.Join(dir, "missing", "err.txt")}).Run(rt)
	require.ErrorIs(t, err, os.ErrNotExist)

	// a failed redirect leaves the runtime untouched
	assert.Same(t, os.Stdout, rt.Stdout)
	assert.Same(t, os.Stderr, rt.Stderr)
}

func TestWriteFileAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log")

	require.NoError(t, (&WriteFile{Path: path, Data: "a"}).Run(nil))
	require.NoError(t, (&WriteFile{Path: path, Data: "b", Append: true}).Run(nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ab", string(data))
}

func TestSetenv(t *testing.T) {
	t.Setenv("SPREE_PAYLOAD_TEST", "")
	require.NoError(t, (&Setenv{Vars: map[string]string{"SPREE_PAYLOAD_TEST": "set"}}).Run(nil))
	assert.Equal(t, "set", os.Getenv("SPREE_PAYLOAD_TEST"))
}

func TestDescribe(t *testing.T) {
	out, err := Describe(&WriteFile{Path: "output.txt", Data: "Hello world"})
	require.NoError(t, err)
	assert.Equal(t, "path: output.txt\ndata: Hello world\n", out)
}
