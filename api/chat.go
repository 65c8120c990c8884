package api

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/verity/pkg/pipeline"
)

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Question    string   `json:"question"`
	Context     string   `json:"context"`
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=1"`

	// Debug asks for the draft and raw validator output. Honored only when
	// the server runs with debug enabled.
	Debug bool `json:"debug,omitempty"`
}

// ChatResponse is the body returned by POST /api/chat.
type ChatResponse struct {
	RequestID   string            `json:"request_id"`
	Verdict     pipeline.Decision `json:"verdict"`
	FinalAnswer string            `json:"finalAnswer"`
	Reasons     []string          `json:"reasons"`

	// Transcript is the hash of the recorded transcript head.
	Transcript string `json:"transcript,omitempty"`

	Draft string `json:"draft,omitempty"`
	Raw   string `json:"raw,omitempty"`
}

// handleChat answers one question against its context.
func (s *Server) handleChat(c *fiber.Ctx) error {
	var req ChatRequest
	if err := c.BodyParser(&req); err != nil {
		s.logger.Error("failed to parse request", zap.Error(err))
		return errorJSON(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "temperature must be between 0 and 1")
	}

	requestID := uuid.NewString()
	logger := s.logger.With(zap.String("request_id", requestID))

	settings := s.config.Settings
	if model := strings.TrimSpace(req.Model); model != "" {
		settings.Model = model
	}
	if req.Temperature != nil {
		settings.Temperature = *req.Temperature
	}

	preq := pipeline.Request{
		Context:  req.Context,
		Question: req.Question,
		Settings: settings,
	}

	logger.Debug("received chat request",
		zap.String("model", settings.Model),
		zap.Float64("temperature", settings.Temperature),
		zap.Int("context_size", len(req.Context)),
	)

	res, err := s.asker.Ask(c.Context(), preq)
	if err != nil {
		var transportErr *pipeline.TransportError
		switch {
		case pipeline.IsEmptyInput(err):
			return errorJSON(c, fiber.StatusBadRequest, err.Error())
		case errors.As(err, &transportErr):
			logger.Error("pipeline backend failed", zap.Error(err))
			return errorJSON(c, fiber.StatusBadGateway, string(transportErr.Stage)+" call failed")
		default:
			logger.Error("pipeline failed", zap.Error(err))
			return errorJSON(c, fiber.StatusInternalServerError, "internal error")
		}
	}

	resp := ChatResponse{
		RequestID:   requestID,
		Verdict:     res.Verdict.Decision(),
		FinalAnswer: res.Answer,
		Reasons:     res.Verdict.Reasons(),
	}

	if s.recorder != nil {
		// Recording is diagnostics only; never fail the request over it
		head, err := s.recorder.Record(c.Context(), preq, res)
		if err != nil {
			logger.Error("failed to record transcript", zap.Error(err))
		} else {
			resp.Transcript = head
		}
	}

	if req.Debug && s.config.Debug {
		resp.Draft = res.Draft
		resp.Raw = res.Verdict.RawOutput()
	}

	return c.JSON(resp)
}
