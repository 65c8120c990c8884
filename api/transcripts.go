package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/verity/pkg/merkle"
)

// handleListTranscripts returns every transcript (one per leaf node).
func (s *Server) handleListTranscripts(c *fiber.Ctx) error {
	transcripts, err := s.recorder.List(c.Context())
	if err != nil {
		s.logger.Error("failed to list transcripts", zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "failed to list transcripts")
	}

	return c.JSON(map[string]any{
		"count":       len(transcripts),
		"transcripts": transcripts,
	})
}

// handleGetTranscript returns the transcript ending at a node.
func (s *Server) handleGetTranscript(c *fiber.Ctx) error {
	hash := c.Params("hash")
	if hash == "" {
		return errorJSON(c, fiber.StatusBadRequest, "hash parameter required")
	}

	t, err := s.recorder.Transcript(c.Context(), hash)
	if err != nil {
		var notFound merkle.ErrNotFound
		if errors.As(err, &notFound) {
			return errorJSON(c, fiber.StatusNotFound, "transcript not found")
		}
		s.logger.Error("failed to build transcript", zap.String("hash", hash), zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "failed to build transcript")
	}

	return c.JSON(t)
}

// handleStats returns statistics about the transcript store.
func (s *Server) handleStats(c *fiber.Ctx) error {
	ctx := c.Context()
	storer := s.recorder.Storer()

	nodes, err := storer.List(ctx)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "failed to list nodes")
	}

	roots, err := storer.Children(ctx, nil)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "failed to get roots")
	}

	leaves, err := storer.Leaves(ctx)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "failed to get leaves")
	}

	return c.JSON(map[string]any{
		"total_nodes": len(nodes),
		"root_count":  len(roots),
		"leaf_count":  len(leaves),
	})
}

// handleGetNode returns a single node by its hash.
func (s *Server) handleGetNode(c *fiber.Ctx) error {
	hash := c.Params("hash")
	if hash == "" {
		return errorJSON(c, fiber.StatusBadRequest, "hash parameter required")
	}

	node, err := s.recorder.Storer().Get(c.Context(), hash)
	if err != nil {
		return errorJSON(c, fiber.StatusNotFound, "node not found")
	}

	return c.JSON(node)
}

// handleImportNodes stores a batch of nodes pushed from another instance.
func (s *Server) handleImportNodes(c *fiber.Ctx) error {
	var nodes []*merkle.Node
	if err := c.BodyParser(&nodes); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid request body")
	}

	stats, err := s.recorder.Import(c.Context(), nodes)
	if err != nil {
		s.logger.Error("failed to import nodes", zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "failed to import nodes")
	}

	return c.JSON(stats)
}
