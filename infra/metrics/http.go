package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewServeMux returns a mux serving /metrics plus the extra routes.
func NewServeMux(routes map[string]http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	for path, h := range routes {
		mux.Handle(path, h)
	}
	return mux
}

// StartPromServer serves /metrics and routes on addr until ctx is canceled.
func StartPromServer(ctx context.Context, addr string, routes map[string]http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: NewServeMux(routes), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
