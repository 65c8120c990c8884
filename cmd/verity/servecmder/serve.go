package servecmder

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/verity/api"
	"github.com/papercomputeco/verity/cmd/verity/bootstrap"
	"github.com/papercomputeco/verity/cmd/verity/sqlitepath"
	"github.com/papercomputeco/verity/pkg/metrics"
	"github.com/papercomputeco/verity/pkg/pipeline"
)

const serveLongDesc string = `Serve the answering pipeline over HTTP.

Endpoints:
  POST /api/chat                 answer {question, context, model?, temperature?, debug?}
  GET  /health                   liveness
  GET  /metrics                  Prometheus metrics
  GET  /transcripts              recorded transcripts
  GET  /transcripts/:hash        one transcript
  POST /transcripts/nodes        import nodes pushed by "verity push"

Examples:
  verity serve
  verity serve --listen 127.0.0.1:9000 --sqlite ~/.verity/verity.db
  verity serve --config verity.toml --allow-debug`

const serveShortDesc string = "Serve the pipeline over HTTP"

// shutdownTimeout bounds how long in-flight requests may take to finish.
const shutdownTimeout = 30 * time.Second

type serveCommander struct {
	flags bootstrap.Flags

	listen     string
	sqlitePath string
	allowDebug bool

	// listener, when set, is served instead of binding the listen address.
	listener net.Listener
	// ready is closed once the server is accepting requests.
	ready chan struct{}
}

func NewServeCmd() *cobra.Command {
	return newServeCmd(&serveCommander{})
}

func newServeCmd(cmder *serveCommander) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context())
		},
	}

	cmder.flags.Register(cmd)
	cmd.Flags().StringVarP(&cmder.listen, "listen", "l", "", "Address to listen on (default from config, \":8080\")")
	cmd.Flags().StringVarP(&cmder.sqlitePath, "sqlite", "s", "", "Transcript database (default from config, in-memory when unset)")
	cmd.Flags().BoolVar(&cmder.allowDebug, "allow-debug", false, "Let clients request drafts and raw validator output")

	return cmd
}

func (c *serveCommander) run(ctx context.Context) error {
	m := metrics.New()

	env, err := bootstrap.Load(ctx, c.flags, true, pipeline.WithObserver(m))
	if err != nil {
		return err
	}
	defer env.Logger.Sync()

	cfg := env.Config
	if c.listen != "" {
		cfg.Server.ListenAddr = c.listen
	}
	recorder, closeStore, err := bootstrap.OpenRecorder(sqlitepath.ResolveSQLitePath(c.sqlitePath, cfg), env.Logger)
	if err != nil {
		return err
	}
	defer closeStore()

	srv, err := api.NewServer(api.Config{
		ListenAddr: cfg.Server.ListenAddr,
		Settings:   cfg.Settings(),
		Debug:      cfg.Server.Debug || c.allowDebug,
	}, env.Pipeline, recorder, env.Logger, api.WithMetrics(m))
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		if c.listener != nil {
			errCh <- srv.RunWithListener(c.listener)
		} else {
			errCh <- srv.Run()
		}
	}()
	if c.ready != nil {
		close(c.ready)
	}

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	env.Logger.Info("shutting down verity server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		env.Logger.Error("graceful shutdown failed", zap.Error(err))
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}
