package api

import (
	"log/slog"
	"time"
)

// HTTPServerConfig configures the land registry HTTP server.
type HTTPServerConfig struct {
	// ListenAddr is the address the API listens on.
	ListenAddr string

	// MetricsAddr is the Prometheus listener. Empty disables it.
	MetricsAddr string

	EnablePprof bool

	Log *slog.Logger

	// SignatureWindow is how far a signed request's timestamp may drift from
	// the server clock; zero keeps the handler default.
	SignatureWindow time.Duration

	// MaxBodyBytes caps request bodies; zero means 1 MiB.
	MaxBodyBytes int64

	// DrainDuration is how long Shutdown waits after marking the server not
	// ready, so load balancers can notice.
	DrainDuration time.Duration

	GracefulShutdownDuration time.Duration
	ReadTimeout              time.Duration
	WriteTimeout             time.Duration
}
