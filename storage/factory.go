// Package storage provides content-addressed backends for registry
// checkpoints: local files, S3, IPFS, Vault and Redis, plus a redundant
// multi-backend.
package storage

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/land-registry/interfaces"
)

// StorageBackendFactory creates storage backends from location URIs.
type StorageBackendFactory struct {
	log *slog.Logger
}

func NewStorageBackendFactory(logger *slog.Logger) *StorageBackendFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &StorageBackendFactory{log: logger}
}

// StorageBackendFor creates a backend for one location.
//
// Supported forms:
//   - file:///absolute/path or file://./relative/path
//   - s3://[KEY:SECRET@]bucket/prefix?region=..&endpoint=..&path_style=true
//   - ipfs://host:port/root?timeout=30s
//   - vault://host:port/mount/path?token=..&tls=false
//   - redis://[:password@]host:port/db?prefix=land:&ttl=0s
func (sf *StorageBackendFactory) StorageBackendFor(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating storage backend", slog.String("scheme", loc.Scheme), slog.String("host", loc.Host))

	switch loc.Scheme {
	case "file":
		return sf.createFileBackend(loc)
	case "s3":
		return sf.createS3Backend(loc)
	case "ipfs":
		return sf.createIPFSBackend(loc)
	case "vault":
		return sf.createVaultBackend(loc)
	case "redis":
		return sf.createRedisBackend(loc)
	default:
		return nil, fmt.Errorf("%w: unsupported backend scheme %q", interfaces.ErrInvalidLocationURI, loc.Scheme)
	}
}

// CreateMultiBackend skips locations that fail to produce a backend and errors
// only if none did.
func (sf *StorageBackendFactory) CreateMultiBackend(locations []interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	backends := make([]interfaces.StorageBackend, 0, len(locations))

	for _, loc := range locations {
		backend, err := sf.StorageBackendFor(loc)
		if err != nil {
			sf.log.Warn("Failed to create storage backend",
				"err", err,
				slog.String("scheme", loc.Scheme),
				slog.String("host", loc.Host))
			continue
		}
		backends = append(backends, backend)
	}

	if len(backends) == 0 {
		return nil, fmt.Errorf("no valid storage backends created")
	}

	return NewMultiStorageBackend(backends, sf.log), nil
}

func (sf *StorageBackendFactory) createFileBackend(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	path := loc.Path
	if loc.Host != "" {
		path = loc.Host + "/" + strings.TrimPrefix(path, "/")
	}
	if path == "" {
		return nil, fmt.Errorf("%w: empty path in file URI", interfaces.ErrInvalidLocationURI)
	}
	return NewFileBackend(path, sf.log)
}

func (sf *StorageBackendFactory) createS3Backend(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	cfg := S3Config{
		Bucket:    loc.Host,
		Prefix:    loc.Path,
		Region:    loc.GetParam("region"),
		Endpoint:  loc.GetParam("endpoint"),
		PathStyle: loc.GetParamBool("path_style"),
	}
	if loc.Auth != "" {
		key, secret, _ := strings.Cut(loc.Auth, ":")
		cfg.AccessKey = key
		cfg.SecretKey = secret
	}
	return NewS3Backend(cfg, sf.log)
}

func (sf *StorageBackendFactory) createIPFSBackend(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	host, port, _ := strings.Cut(loc.Host, ":")

	timeout := 30 * time.Second
	if raw := loc.GetParam("timeout"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid timeout %q", interfaces.ErrInvalidLocationURI, raw)
		}
		timeout = parsed
	}

	return NewIPFSBackend(host, port, loc.Path, timeout, sf.log)
}

func (sf *StorageBackendFactory) createVaultBackend(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	if loc.Host == "" {
		return nil, fmt.Errorf("%w: missing Vault host", interfaces.ErrInvalidLocationURI)
	}

	scheme := "https"
	if loc.Query.Has("tls") && !loc.GetParamBool("tls") {
		scheme = "http"
	}

	mount, dataPath, _ := strings.Cut(strings.Trim(loc.Path, "/"), "/")
	return NewVaultBackend(scheme+"://"+loc.Host, loc.GetParam("token"), mount, dataPath, sf.log)
}

func (sf *StorageBackendFactory) createRedisBackend(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	var ttl time.Duration
	if raw := loc.GetParam("ttl"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid ttl %q", interfaces.ErrInvalidLocationURI, raw)
		}
		ttl = parsed
	}

	// go-redis rejects query parameters it doesn't know.
	raw := loc.Raw
	if i := strings.Index(raw, "?"); i >= 0 {
		raw = raw[:i]
	}
	return NewRedisBackendFromURL(raw, loc.GetParam("prefix"), ttl, sf.log)
}
