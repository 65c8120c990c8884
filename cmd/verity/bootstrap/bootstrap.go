// Package bootstrap wires configuration, logging and the answering pipeline
// for the verity subcommands.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/verity/pkg/backend"
	"github.com/papercomputeco/verity/pkg/config"
	"github.com/papercomputeco/verity/pkg/llm"
	"github.com/papercomputeco/verity/pkg/logger"
	"github.com/papercomputeco/verity/pkg/merkle"
	"github.com/papercomputeco/verity/pkg/pipeline"
	"github.com/papercomputeco/verity/pkg/transcript"
)

// BackendFactory builds the llm.Backend for a configuration.
type BackendFactory func(ctx context.Context, cfg backend.Config, logger *zap.Logger) (llm.Backend, error)

// NewBackend is the factory used by Load. Tests replace it with a scripted
// backend.
var NewBackend BackendFactory = backend.New

// Flags are the flags shared by every command that runs the pipeline.
type Flags struct {
	ConfigPath string
	Debug      bool
}

// Register adds --config and --debug to cmd.
func (f *Flags) Register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.ConfigPath, "config", "c", "", "Path to a TOML config file")
	cmd.Flags().BoolVar(&f.Debug, "debug", false, "Enable debug logging")
}

// Env is everything a command needs to answer questions.
type Env struct {
	Config   *config.Config
	Logger   *zap.Logger
	Backend  llm.Backend
	Pipeline *pipeline.Pipeline
}

// Load reads configuration, builds the backend and assembles the pipeline.
// jsonLogs selects structured logs for long running processes.
func Load(ctx context.Context, flags Flags, jsonLogs bool, opts ...pipeline.Option) (*Env, error) {
	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return nil, err
	}

	var log *zap.Logger
	if jsonLogs {
		log = logger.NewJSONLogger(flags.Debug)
	} else {
		log = logger.NewLogger(flags.Debug)
	}

	b, err := NewBackend(ctx, cfg.Backend, log)
	if err != nil {
		return nil, err
	}

	p, err := pipeline.New(b, log, append(cfg.PipelineOptions(), opts...)...)
	if err != nil {
		return nil, err
	}

	return &Env{
		Config:   cfg,
		Logger:   log,
		Backend:  b,
		Pipeline: p,
	}, nil
}

// OpenRecorder opens a transcript recorder on the SQLite database at path, or
// an in-memory store when path is empty. The returned close function releases
// the store.
func OpenRecorder(path string, log *zap.Logger) (*transcript.Recorder, func() error, error) {
	var storer merkle.Storer
	if path != "" {
		s, err := merkle.NewSQLiteStorer(path)
		if err != nil {
			return nil, nil, fmt.Errorf("could not open transcript database %s: %w", path, err)
		}
		log.Info("using SQLite storage", zap.String("path", path))
		storer = s
	} else {
		storer = merkle.NewMemoryStorer()
		log.Info("using in-memory storage")
	}

	recorder, err := transcript.NewRecorder(storer, log)
	if err != nil {
		storer.Close()
		return nil, nil, err
	}

	return recorder, storer.Close, nil
}
