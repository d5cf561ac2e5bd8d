package flags

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/params"
	"github.com/google/uuid"
	"github.com/ruteri/land-registry/api"
	"github.com/ruteri/land-registry/common"
	"github.com/urfave/cli/v2"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String("log-service")

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, listenAddr string) *api.HTTPServerConfig {
	metricsAddr := cCtx.String(MetricsAddrFlag.Name)
	enablePprof := cCtx.Bool(PprofFlag.Name)
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	return &api.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              metricsAddr,
		Log:                      logger,
		EnablePprof:              enablePprof,
		SignatureWindow:          cCtx.Duration(SignatureWindowFlag.Name),
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

// ParseEther parses a decimal ether amount such as "1" or "0.25" into wei.
// A "wei" suffix takes the integer as wei instead.
func ParseEther(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if raw, ok := strings.CutSuffix(s, "wei"); ok {
		wei, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
		if !ok {
			return nil, fmt.Errorf("invalid wei amount %q", s)
		}
		return wei, nil
	}

	amount, ok := new(big.Rat).SetString(strings.TrimSuffix(s, "ether"))
	if !ok {
		return nil, fmt.Errorf("invalid ether amount %q", s)
	}
	amount.Mul(amount, new(big.Rat).SetInt64(params.Ether))
	if !amount.IsInt() {
		return nil, errors.New("amount has more precision than one wei")
	}
	return amount.Num(), nil
}

var ServerAddrFlag = &cli.StringFlag{
	Name:    "server",
	Value:   "http://127.0.0.1:8080",
	Usage:   "land registry API address",
	EnvVars: []string{"LAND_SERVER"},
}

var PrivateKeyFlag = &cli.StringFlag{
	Name:    "private-key",
	Usage:   "hex secp256k1 key to sign requests with",
	EnvVars: []string{"LAND_PRIVATE_KEY"},
}

var CallerFlag = &cli.StringFlag{
	Name:  "caller",
	Usage: "address to act as when no private key is given",
}

var RequireSignaturesFlag = &cli.BoolFlag{
	Name:  "require-signatures",
	Value: false,
	Usage: "reject mutating requests that are not signed by the caller",
}

var SignatureWindowFlag = &cli.DurationFlag{
	Name:  "signature-window",
	Value: 5 * time.Minute,
	Usage: "maximum drift between a signed request's timestamp and the server clock",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

var LogServiceFlagFn = func(service string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "log-service",
		Value: service,
		Usage: "add 'service' tag to logs",
	}
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to stay not-ready before shutting down",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}
