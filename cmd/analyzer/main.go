package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/courtvision/analysis-client/internal/domain/port"
	"github.com/courtvision/analysis-client/internal/infra/config"
	"github.com/courtvision/analysis-client/internal/infra/httpapi"
	"github.com/courtvision/analysis-client/internal/infra/postgres"
	"github.com/courtvision/analysis-client/internal/infra/render"
	"github.com/courtvision/analysis-client/internal/infra/tracing"
	"github.com/courtvision/analysis-client/internal/infra/websocket"
	"github.com/courtvision/analysis-client/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const usage = `usage: analyzer <command> [flags]

commands:
  upload <file>   upload a video, follow the analysis and print the results
  live            stream the camera to the live analysis endpoint
  history         print recent analyses
  health          check the analysis server
  submit <file>   store a video and queue it for the worker
`

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"upload":  runUpload,
	"live":    runLive,
	"history": runHistory,
	"health":  runHealth,
	"submit":  runSubmit,
}

// errUsage marks errors already explained to the user.
var errUsage = errors.New("usage")

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(2)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.InitTracer(ctx, cfg.JaegerEndpoint, cfg.ServiceName+"-cli")
	if err != nil {
		log.Debug("tracing disabled", zap.Error(err))
	} else {
		defer tp.Shutdown(context.Background())
	}

	a := newApp(cfg, log)
	defer a.close()

	if err := cmd(ctx, a, os.Args[2:]); err != nil {
		if !errors.Is(err, errUsage) && !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		a.close()
		os.Exit(1)
	}
}

// app holds the adapters shared by every command.
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	api    *httpapi.Client
	dialer *websocket.Dialer
	codec  *render.Codec
	pool   *pgxpool.Pool
}

func newApp(cfg *config.Config, log *zap.Logger) *app {
	return &app{
		cfg: cfg,
		log: log,
		api: httpapi.NewClient(httpapi.ClientConfig{
			BaseURL:       cfg.APIURL,
			Mode:          cfg.APIMode,
			Timeout:       cfg.HTTPTimeout,
			UploadTimeout: cfg.UploadTimeout,
		}, log.Named("httpapi")),
		dialer: websocket.NewDialer(websocket.DefaultDialerConfig(), log.Named("websocket")),
		codec:  render.NewCodec(cfg.LiveJPEGQuality, cfg.LiveMaxWidth),
	}
}

// historyStore returns the local result store when enabled. Connection
// problems degrade to server-only history.
func (a *app) historyStore(ctx context.Context, enabled bool) port.HistoryStore {
	if !enabled {
		return nil
	}
	if a.pool == nil {
		pool, err := pgxpool.New(ctx, a.cfg.DatabaseURL)
		if err != nil {
			a.log.Warn("local history unavailable", zap.Error(err))
			return nil
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			a.log.Warn("local history unavailable", zap.Error(err))
			return nil
		}
		a.pool = pool
	}
	return postgres.NewRecordRepository(a.pool)
}

func (a *app) close() {
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}
