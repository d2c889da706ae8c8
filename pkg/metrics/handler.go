package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rollarc/rollarc/logger"
)

// NewRouter returns the HTTP router serving the Prometheus exposition
// endpoint at /metrics.
func NewRouter() *mux.Router {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	return router
}

// Serve runs the metrics endpoint on addr until ctx is cancelled. Listen
// failures are reported on errChan.
func Serve(ctx context.Context, addr string, errChan chan<- error) {
	server := &http.Server{
		Addr:    addr,
		Handler: NewRouter(),
	}

	go func() {
		<-ctx.Done()
		logger.Info("Metrics: shutting down endpoint")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics: error shutting down endpoint", "error", err)
		}
	}()

	logger.Info("Metrics: serving endpoint", "addr", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed && ctx.Err() == nil {
		errChan <- err
	}
}
