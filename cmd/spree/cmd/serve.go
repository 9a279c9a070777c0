package cmd

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/psantana5/spree/internal/report"
	"github.com/psantana5/spree/internal/tracing"
)

// newRouter serves the metrics and the recent launches.
func newRouter(metrics *report.Metrics, history *report.History, tp *tracing.Provider) *mux.Router {
	r := mux.NewRouter()
	r.Use(tracing.HTTPMiddleware(tp))

	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/launches", func(w http.ResponseWriter, req *http.Request) {
		n := 0
		if limit := req.URL.Query().Get("limit"); limit != "" {
			v, err := strconv.Atoi(limit)
			if err != nil || v < 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			n = v
		}
		w.Header().Set("Content-Type", "application/json")
		report.LaunchesJSON(w, history, n)
	}).Methods(http.MethodGet)

	return r
}

// startServer listens on addr and serves h in the background.
func startServer(addr string, h http.Handler) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	logger.Info("serving metrics", map[string]interface{}{"addr": ln.Addr().String()})
	return srv, nil
}

func stopServer(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}
