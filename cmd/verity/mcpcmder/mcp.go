package mcpcmder

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/verity/cmd/verity/bootstrap"
	"github.com/papercomputeco/verity/cmd/verity/sqlitepath"
	"github.com/papercomputeco/verity/pkg/pipeline"
	"github.com/papercomputeco/verity/pkg/transcript"
)

const mcpLongDesc string = `Serve an "ask" tool over MCP on stdio.

Agent orchestrators can call the tool with a context and a question and
receive the validated answer, the verdict and the validator's reasons.
Logs go to stderr so stdout stays reserved for the protocol.

Examples:
  verity mcp
  verity mcp --config verity.toml --sqlite ~/.verity/verity.db`

const mcpShortDesc string = "Serve the pipeline as an MCP tool over stdio"

// Version is reported to MCP clients.
const Version = "v0.1.0"

type mcpCommander struct {
	flags      bootstrap.Flags
	sqlitePath string
}

// AskInput is the argument object of the ask tool.
type AskInput struct {
	Context     string   `json:"context" jsonschema:"the only knowledge the answer may rely on"`
	Question    string   `json:"question" jsonschema:"the question to answer from the context"`
	Model       string   `json:"model,omitempty" jsonschema:"optional model override"`
	Temperature *float64 `json:"temperature,omitempty" jsonschema:"optional sampling temperature between 0 and 1"`
}

// AskOutput is the structured result of the ask tool.
type AskOutput struct {
	Answer     string   `json:"answer"`
	Verdict    string   `json:"verdict"`
	Reasons    []string `json:"reasons"`
	FailClosed bool     `json:"fail_closed"`
	Transcript string   `json:"transcript,omitempty"`
}

func NewMCPCmd() *cobra.Command {
	cmder := &mcpCommander{}

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: mcpShortDesc,
		Long:  mcpLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context())
		},
	}

	cmder.flags.Register(cmd)
	cmd.Flags().StringVarP(&cmder.sqlitePath, "sqlite", "s", "", "Record transcripts to this SQLite database")

	return cmd
}

func (c *mcpCommander) run(ctx context.Context) error {
	env, err := bootstrap.Load(ctx, c.flags, true)
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

	server := NewServer(env.Pipeline, recorder, env.Config.Settings(), env.Logger)

	env.Logger.Info("serving mcp over stdio")
	return server.Run(ctx, &mcp.StdioTransport{})
}

// NewServer builds an MCP server exposing the ask tool.
func NewServer(p *pipeline.Pipeline, recorder *transcript.Recorder, defaults pipeline.Settings, logger *zap.Logger) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "verity", Version: Version}, nil)

	h := &askHandler{pipeline: p, recorder: recorder, defaults: defaults, logger: logger}
	mcp.AddTool(server, &mcp.Tool{
		Name: "ask",
		Description: "Answer a question strictly from the supplied context. The draft answer is " +
			"audited against the context and replaced by \"" + pipeline.FallbackAnswer + "\" " +
			"when the context does not support it.",
	}, h.ask)

	return server
}

type askHandler struct {
	pipeline *pipeline.Pipeline
	recorder *transcript.Recorder
	defaults pipeline.Settings
	logger   *zap.Logger
}

func (h *askHandler) ask(ctx context.Context, _ *mcp.CallToolRequest, in AskInput) (*mcp.CallToolResult, AskOutput, error) {
	settings := h.defaults
	if in.Model != "" {
		settings.Model = in.Model
	}
	if in.Temperature != nil {
		if *in.Temperature < 0 || *in.Temperature > 1 {
			return nil, AskOutput{}, fmt.Errorf("temperature must be between 0 and 1, got %g", *in.Temperature)
		}
		settings.Temperature = *in.Temperature
	}

	req := pipeline.Request{Context: in.Context, Question: in.Question, Settings: settings}
	res, err := h.pipeline.Ask(ctx, req)
	if err != nil {
		return nil, AskOutput{}, err
	}

	out := AskOutput{
		Answer:     res.Answer,
		Verdict:    string(res.Verdict.Decision()),
		Reasons:    res.Verdict.Reasons(),
		FailClosed: res.Verdict.FailedClosed(),
	}

	if h.recorder != nil {
		head, err := h.recorder.Record(ctx, req, res)
		if err != nil {
			h.logger.Error("failed to record transcript", zap.Error(err))
		} else {
			out.Transcript = head
		}
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: res.Answer}},
	}, out, nil
}
