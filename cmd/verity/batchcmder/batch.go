package batchcmder

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/verity/cmd/verity/bootstrap"
	"github.com/papercomputeco/verity/cmd/verity/sqlitepath"
	"github.com/papercomputeco/verity/pkg/pipeline"
	"github.com/papercomputeco/verity/pkg/transcript"
)

const batchLongDesc string = `Answer many questions from a JSONL file.

Each input line is an object {"id", "context", "question", "model",
"temperature"}; only question is required when --context-file supplies a
shared context. Results are written as JSONL in input order. A failure on
one item is reported on that item and does not stop the batch.

Examples:
  verity batch questions.jsonl
  verity batch --context-file handbook.md --concurrency 8 < questions.jsonl > answers.jsonl`

const batchShortDesc string = "Answer a JSONL file of questions"

// maxLineSize bounds a single JSONL input line.
const maxLineSize = 16 << 20

type batchCommander struct {
	flags bootstrap.Flags

	contextFile string
	concurrency int
	sqlitePath  string
}

// Item is one input line.
type Item struct {
	ID          string   `json:"id,omitempty"`
	Context     string   `json:"context,omitempty"`
	Question    string   `json:"question"`
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// Output is one output line.
type Output struct {
	ID         string            `json:"id"`
	Answer     string            `json:"answer,omitempty"`
	Verdict    pipeline.Decision `json:"verdict,omitempty"`
	Reasons    []string          `json:"reasons,omitempty"`
	FailClosed bool              `json:"fail_closed,omitempty"`
	Transcript string            `json:"transcript,omitempty"`
	Error      string            `json:"error,omitempty"`
}

func NewBatchCmd() *cobra.Command {
	cmder := &batchCommander{}

	cmd := &cobra.Command{
		Use:   "batch [input.jsonl]",
		Short: batchShortDesc,
		Long:  batchLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd, args)
		},
	}

	cmder.flags.Register(cmd)
	cmd.Flags().StringVarP(&cmder.contextFile, "context-file", "f", "", "Shared context for items without one")
	cmd.Flags().IntVarP(&cmder.concurrency, "concurrency", "n", 4, "Questions answered in parallel")
	cmd.Flags().StringVarP(&cmder.sqlitePath, "sqlite", "s", "", "Record transcripts to this SQLite database")

	return cmd
}

func (c *batchCommander) run(ctx context.Context, cmd *cobra.Command, args []string) error {
	if c.concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.concurrency)
	}

	in := cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("could not open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	var shared string
	if c.contextFile != "" {
		data, err := os.ReadFile(c.contextFile)
		if err != nil {
			return fmt.Errorf("could not read context file: %w", err)
		}
		shared = string(data)
	}

	items, parseErrs, err := readItems(in)
	if err != nil {
		return err
	}

	env, err := bootstrap.Load(ctx, c.flags, false)
	if err != nil {
		return err
	}
	defer env.Logger.Sync()

	var recorder *transcript.Recorder
	if sqlitePath := sqlitepath.ResolveSQLitePath(c.sqlitePath, env.Config); sqlitePath != "" {
		r, closeStore, err := bootstrap.OpenRecorder(sqlitePath, env.Logger)
		if err != nil {
			return err
		}
		defer closeStore()
		recorder = r
	}

	defaults := env.Config.Settings()
	outputs := make([]Output, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for i, item := range items {
		if parseErrs[i] != nil {
			outputs[i] = Output{ID: item.ID, Error: parseErrs[i].Error()}
			continue
		}

		g.Go(func() error {
			outputs[i] = c.answer(gctx, env.Pipeline, recorder, env.Logger, defaults, shared, item)
			// Only cancellation of the whole batch stops it
			return ctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	var failed int
	for _, out := range outputs {
		if out.Error != "" {
			failed++
		}
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("could not write output: %w", err)
		}
	}

	env.Logger.Info("batch complete",
		zap.Int("items", len(items)),
		zap.Int("failed", failed),
		zap.Int("concurrency", c.concurrency),
	)

	return nil
}

func (c *batchCommander) answer(
	ctx context.Context,
	p *pipeline.Pipeline,
	recorder *transcript.Recorder,
	log *zap.Logger,
	defaults pipeline.Settings,
	shared string,
	item Item,
) Output {
	out := Output{ID: item.ID}

	settings := defaults
	if item.Model != "" {
		settings.Model = item.Model
	}
	if item.Temperature != nil {
		if *item.Temperature < 0 || *item.Temperature > 1 {
			out.Error = fmt.Sprintf("temperature must be between 0 and 1, got %g", *item.Temperature)
			return out
		}
		settings.Temperature = *item.Temperature
	}

	knowledge := item.Context
	if knowledge == "" {
		knowledge = shared
	}

	req := pipeline.Request{Context: knowledge, Question: item.Question, Settings: settings}
	res, err := p.Ask(ctx, req)
	if err != nil {
		out.Error = err.Error()
		return out
	}

	out.Answer = res.Answer
	out.Verdict = res.Verdict.Decision()
	out.Reasons = res.Verdict.Reasons()
	out.FailClosed = res.Verdict.FailedClosed()

	if recorder != nil {
		head, err := recorder.Record(ctx, req, res)
		if err != nil {
			log.Error("failed to record transcript", zap.String("id", item.ID), zap.Error(err))
		} else {
			out.Transcript = head
		}
	}

	return out
}

// readItems decodes one Item per non-blank line. A line that does not decode
// yields a per-item error rather than failing the batch. Items without an id
// get a generated one.
func readItems(r io.Reader) ([]Item, []error, error) {
	var (
		items []Item
		errs  []error
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var item Item
		err := json.Unmarshal([]byte(line), &item)
		if err != nil {
			err = fmt.Errorf("line %d: invalid JSON: %w", lineNo, err)
		}
		if item.ID == "" {
			item.ID = uuid.NewString()
		}

		items = append(items, item)
		errs = append(errs, err)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("could not read input: %w", err)
	}
	if len(items) == 0 {
		return nil, nil, errors.New("no questions in input")
	}

	return items, errs, nil
}
