package payload

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

func init() {
	Register(&Redirect{})
	Register(&Setenv{})
	Register(&WriteFile{})
	Register(&Sequence{})
	Register(&Call{})
}

// Redirect points the runtime's output handles at files.
// The files stay open for the lifetime of the child.
type Redirect struct {
	Stdout string `json:"stdout,omitempty" yaml:"stdout,omitempty"`
	Stderr string `json:"stderr,omitempty" yaml:"stderr,omitempty"`
	Append bool   `json:"append,omitempty" yaml:"append,omitempty"`
}

func (r *Redirect) Run(rt *Runtime) error {
	var stdout *os.File
	if r.Stdout != "" {
		f, err := openOutput(r.Stdout, r.Append)
		if err != nil {
			return err
		}
		stdout = f
	}

	var stderr *os.File
	switch {
	case r.Stderr == "":
	case stdout != nil && samePath(r.Stdout, r.Stderr):
		// 2>&1: one descriptor, one offset.
		stderr = stdout
	default:
		f, err := openOutput(r.Stderr, r.Append)
		if err != nil {
			if stdout != nil {
				stdout.Close()
			}
			return err
		}
		stderr = f
	}

	if stdout != nil {
		rt.Stdout = stdout
	}
	if stderr != nil {
		rt.Stderr = stderr
	}
	return nil
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

// Setenv sets environment variables in the child.
type Setenv struct {
	Vars map[string]string `json:"vars" yaml:"vars"`
}

func (s *Setenv) Run(*Runtime) error {
	keys := make([]string, 0, len(s.Vars))
	for k := range s.Vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := os.Setenv(k, s.Vars[k]); err != nil {
			return fmt.Errorf("setenv %s: %w", k, err)
		}
	}
	return nil
}

// WriteFile writes Data to Path.
type WriteFile struct {
	Path   string `json:"path" yaml:"path"`
	Data   string `json:"data" yaml:"data"`
	Append bool   `json:"append,omitempty" yaml:"append,omitempty"`
}

func (w *WriteFile) Run(*Runtime) error {
	f, err := openOutput(w.Path, w.Append)
	if err != nil {
		return err
	}
	if _, err = f.WriteString(w.Data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func openOutput(name string, appendTo bool) (*os.File, error) {
	flag := os.O_CREATE | os.O_WRONLY
	if appendTo {
		flag |= os.O_APPEND
	} else {
		flag |= os.O_TRUNC
	}
	return os.OpenFile(name, flag, 0o644)
}
