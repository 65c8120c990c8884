package transcript

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/papercomputeco/verity/pkg/merkle"
	"github.com/papercomputeco/verity/pkg/pipeline"
)

// ImportStats summarizes a bulk import.
type ImportStats struct {
	New       int `json:"new"`
	Duplicate int `json:"duplicate"`
	Errors    int `json:"errors"`
}

// Recorder writes and reads transcripts through a merkle.Storer.
type Recorder struct {
	storer merkle.Storer
	logger *zap.Logger
}

// NewRecorder creates a Recorder backed by storer.
func NewRecorder(storer merkle.Storer, logger *zap.Logger) (*Recorder, error) {
	if storer == nil {
		return nil, errors.New("transcript recorder requires a storer")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{storer: storer, logger: logger}, nil
}

// Storer returns the underlying node store.
func (r *Recorder) Storer() merkle.Storer {
	return r.storer
}

// Record stores req and res as context -> question -> draft -> verdict ->
// answer and returns the hash of the answer node.
func (r *Recorder) Record(ctx context.Context, req pipeline.Request, res *pipeline.Result) (string, error) {
	if res == nil {
		return "", errors.New("cannot record a nil result")
	}

	temperature := req.Settings.Temperature

	entries := []Entry{
		{Kind: KindContext, Text: req.Context},
		{Kind: KindQuestion, Text: req.Question, Model: req.Settings.Model, Temperature: &temperature},
		{Kind: KindDraft, Text: res.Draft},
		{Kind: KindVerdict, Verdict: newVerdictRecord(res.Verdict)},
		{Kind: KindAnswer, Text: res.Answer},
	}

	var (
		parent  *merkle.Node
		created int
	)
	for _, entry := range entries {
		node, err := merkle.NewNode(entry, parent)
		if err != nil {
			return "", fmt.Errorf("build %s node: %w", entry.Kind, err)
		}
		isNew, err := r.storer.Put(ctx, node)
		if err != nil {
			return "", fmt.Errorf("store %s node: %w", entry.Kind, err)
		}
		if isNew {
			created++
		}
		parent = node
	}

	r.logger.Debug("transcript recorded",
		zap.String("head", parent.Hash),
		zap.Int("new_nodes", created),
	)

	return parent.Hash, nil
}

// Transcript decodes the chain ending at hash.
func (r *Recorder) Transcript(ctx context.Context, hash string) (*Transcript, error) {
	nodes, err := merkle.Lineage(ctx, r.storer, hash)
	if err != nil {
		return nil, err
	}

	t := &Transcript{Head: hash}
	for _, node := range nodes {
		var entry Entry
		if err := node.Decode(&entry); err != nil {
			return nil, fmt.Errorf("decode node %s: %w", node.Hash, err)
		}

		switch entry.Kind {
		case KindContext:
			t.Context = entry.Text
		case KindQuestion:
			t.Question = entry.Text
			t.Model = entry.Model
			t.Temperature = entry.Temperature
		case KindDraft:
			t.Draft = entry.Text
		case KindVerdict:
			t.Verdict = entry.Verdict
		case KindAnswer:
			t.Answer = entry.Text
			t.Complete = true
		default:
			return nil, fmt.Errorf("node %s has unknown kind %q", node.Hash, entry.Kind)
		}
	}

	return t, nil
}

// List returns one transcript per leaf, in insertion order.
func (r *Recorder) List(ctx context.Context) ([]*Transcript, error) {
	leaves, err := r.storer.Leaves(ctx)
	if err != nil {
		return nil, fmt.Errorf("list leaves: %w", err)
	}

	out := make([]*Transcript, 0, len(leaves))
	for _, leaf := range leaves {
		t, err := r.Transcript(ctx, leaf.Hash)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.logger.Warn("skipping undecodable transcript",
				zap.String("head", leaf.Hash),
				zap.Error(err),
			)
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// Import stores nodes produced elsewhere. Nodes whose hash does not match
// their content, whose content is not canonical JSON, or that are not
// transcript entries are counted as errors and skipped.
func (r *Recorder) Import(ctx context.Context, nodes []*merkle.Node) (ImportStats, error) {
	var stats ImportStats
	for _, node := range nodes {
		if err := checkImported(node); err != nil {
			r.logger.Debug("rejecting imported node", zap.Error(err))
			stats.Errors++
			continue
		}

		isNew, err := r.storer.Put(ctx, node)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			r.logger.Warn("import node failed", zap.String("hash", node.Hash), zap.Error(err))
			stats.Errors++
			continue
		}
		if isNew {
			stats.New++
		} else {
			stats.Duplicate++
		}
	}

	r.logger.Info("nodes imported",
		zap.Int("new", stats.New),
		zap.Int("duplicate", stats.Duplicate),
		zap.Int("errors", stats.Errors),
	)

	return stats, nil
}

func checkImported(node *merkle.Node) error {
	if node == nil {
		return errors.New("nil node")
	}
	if !node.Verify() {
		return fmt.Errorf("node %s: hash mismatch", node.Hash)
	}
	if !node.Canonical() {
		return fmt.Errorf("node %s: content is not canonical JSON", node.Hash)
	}

	var entry Entry
	if err := node.Decode(&entry); err != nil {
		return fmt.Errorf("node %s: %w", node.Hash, err)
	}
	if !entry.Kind.Known() {
		return fmt.Errorf("node %s has unknown kind %q", node.Hash, entry.Kind)
	}
	return nil
}
