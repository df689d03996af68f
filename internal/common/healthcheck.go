package common

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/khanghh/kgate/params"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ReadinessCheck reports whether one backing service is reachable.
type ReadinessCheck func(ctx context.Context) error

func DatabaseCheck(db *gorm.DB) ReadinessCheck {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}

func RedisCheck(rdb redis.UniversalClient) ReadinessCheck {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}

// HealthCheckHandler serves /livez and /readyz. Readiness fails on the first
// check that errors.
func HealthCheckHandler(checks map[string]ReadinessCheck) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		for name, check := range checks {
			if err := check(ctx); err != nil {
				slog.Warn("Readiness check failed", "service", name, "error", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// StartHealthCheckServer blocks until ctx is done or the server stops, then closes done.
func StartHealthCheckServer(ctx context.Context, done chan struct{}, checks map[string]ReadinessCheck) {
	server := &http.Server{
		Addr:    params.HealthCheckServerAddr,
		Handler: HealthCheckHandler(checks),
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		server.Close()
	case err := <-serverErr:
		slog.Error("Health check server stopped", "error", err)
	}
	close(done)
}
