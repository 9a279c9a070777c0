package report

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psantana5/spree/internal/logging"
	"github.com/psantana5/spree/pkg/launch"
	"github.com/psantana5/spree/pkg/loader"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()

	m.IncrLaunch(ModeIntercepted)
	m.IncrLaunch(ModeIntercepted)
	m.IncrLaunch(ModePassthrough)
	m.IncrFailure("encode")
	m.ObserveMedium(128)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Launches.WithLabelValues(ModeIntercepted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Launches.WithLabelValues(ModePassthrough)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Failures.WithLabelValues("encode")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.MediumBytes))
}

func TestRecordResult(t *testing.T) {
	m := NewMetrics()
	m.RecordResult(&Result{ExitCode: 0, ExitReason: "success", Duration: time.Second})
	m.RecordResult(&Result{ExitCode: 4, ExitReason: "error", Duration: time.Second})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Exits.WithLabelValues("success", "0")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Exits.WithLabelValues("error", "4")))
}

func TestWriteText(t *testing.T) {
	m := NewMetrics()
	m.IncrLaunch(ModeIntercepted)

	var buf bytes.Buffer
	require.NoError(t, m.WriteText(&buf))
	assert.Contains(t, buf.String(), `spree_launches_total{mode="intercepted"} 1`)

	path := filepath.Join(t.TempDir(), "spree.prom")
	require.NoError(t, m.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# TYPE spree_launches_total counter")
}

func TestHandler(t *testing.T) {
	m := NewMetrics()
	m.IncrFailure("medium")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `spree_launch_failures_total{stage="medium"} 1`)
}

func TestHistoryRing(t *testing.T) {
	h := NewHistory(3)
	for _, id := range []string{"a", "b", "c", "d"} {
		h.Record(&Result{LaunchID: id})
	}

	assert.Equal(t, 3, h.Count())
	recent := h.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, "d", recent[0].LaunchID)
	assert.Equal(t, "b", recent[2].LaunchID)
	assert.Len(t, h.Recent(1), 1)

	var buf bytes.Buffer
	require.NoError(t, LaunchesJSON(&buf, h, 2))
	var decoded []Result
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Len(t, decoded, 2)
}

func TestNewResult(t *testing.T) {
	tests := []struct {
		name   string
		argv   []string
		mode   string
		medium string
	}{
		{"passthrough", []string{"true", "a"}, ModePassthrough, ""},
		{"intercepted", loader.Command([]string{"true", "a"}, "/tmp/m.gob"), ModeIntercepted, "/tmp/m.gob"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// true ignores its arguments, preload ones included
			child, err := launch.Run(context.Background(), launch.Exec{}, tt.argv, nil)
			require.NoError(t, err)

			r := NewResult("id-1", child, nil)
			assert.Equal(t, tt.mode, r.Mode)
			assert.Equal(t, tt.medium, r.Medium)
			assert.Equal(t, tt.argv, r.Argv)
			assert.Equal(t, child.Pid(), r.PID)
			assert.Equal(t, "success", r.ExitReason)
		})
	}
}

func TestWriteTableAndSummary(t *testing.T) {
	r := &Result{
		LaunchID:   "id-7",
		Argv:       []string{"spree", "echo"},
		Mode:       ModeIntercepted,
		Medium:     "/tmp/m.gob",
		ExitReason: "success",
		Duration:   1500 * time.Millisecond,
	}

	var buf bytes.Buffer
	require.NoError(t, r.WriteTable(&buf))
	out := buf.String()
	assert.Contains(t, out, "id-7")
	assert.Contains(t, out, "/tmp/m.gob")
	assert.Contains(t, out, "1.500s")

	var logBuf bytes.Buffer
	log := logging.NewLogger(logging.INFO, false)
	log.SetOutput(&logBuf)
	r.LogSummary(log)
	assert.True(t, strings.Contains(logBuf.String(), "launch_id=id-7"), logBuf.String())
}
