package common

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func StartPromServer(logger *zap.Logger, addr string) {
	logger.Info("serving prom stats on " + addr)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("prom server stopped", zap.Error(err))
		}
	}()
}

// HealthCheck is one dependency probed by /readyz
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// ReadyzHandler fails with the first failing check
func ReadyzHandler(checks ...HealthCheck) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, hc := range checks {
			if err := hc.Check(r.Context()); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(errors.Wrapf(err, "failed pinging %s", hc.Name).Error()))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
}

func BeginReadyzHandler(logger *zap.Logger, addr string, checks ...HealthCheck) {
	logger.Info("enabling health check on port " + addr)
	mux := http.NewServeMux()
	mux.Handle("/readyz", ReadyzHandler(checks...))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("health check server stopped", zap.Error(err))
		}
	}()
}
