package askcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/papercomputeco/verity/cmd/verity/bootstrap"
	"github.com/papercomputeco/verity/cmd/verity/sqlitepath"
	"github.com/papercomputeco/verity/pkg/pipeline"
)

const askLongDesc string = `Answer a question strictly from a context document.

The context is read from --context-file, or from stdin when it is piped.
A draft answer is produced first, then audited against the same context.
Only an approved draft is printed; anything the context does not support
prints the fallback answer instead.

Examples:
  verity ask --context-file handbook.md "When does the office open?"
  cat handbook.md | verity ask -q "When does the office open?"
  verity ask --context-file kb.txt --details --sqlite ~/.verity/verity.db "Who founded it?"`

const askShortDesc string = "Answer a question from a context document"

type askCommander struct {
	flags bootstrap.Flags

	contextFile string
	question    string
	model       string
	temperature float64
	details     bool
	sqlitePath  string
}

func NewAskCmd() *cobra.Command {
	cmder := &askCommander{}

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: askShortDesc,
		Long:  askLongDesc,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd, args)
		},
	}

	cmder.flags.Register(cmd)
	cmd.Flags().StringVarP(&cmder.contextFile, "context-file", "f", "", "Context document (\"-\" for stdin)")
	cmd.Flags().StringVarP(&cmder.question, "question", "q", "", "Question to answer (instead of arguments)")
	cmd.Flags().StringVarP(&cmder.model, "model", "m", "", "Model override")
	cmd.Flags().Float64VarP(&cmder.temperature, "temperature", "t", 0, "Sampling temperature in [0,1] (default from config)")
	cmd.Flags().BoolVar(&cmder.details, "details", false, "Print the draft, verdict and reasons to stderr")
	cmd.Flags().StringVarP(&cmder.sqlitePath, "sqlite", "s", "", "Record the transcript to this SQLite database")

	return cmd
}

func (c *askCommander) run(ctx context.Context, cmd *cobra.Command, args []string) error {
	question := c.question
	if question == "" {
		question = strings.Join(args, " ")
	}
	if strings.TrimSpace(question) == "" {
		return errors.New("a question is required, as arguments or with --question")
	}

	knowledge, err := c.readContext(cmd)
	if err != nil {
		return err
	}

	env, err := bootstrap.Load(ctx, c.flags, false)
	if err != nil {
		return err
	}
	defer env.Logger.Sync()

	settings := env.Config.Settings()
	if c.model != "" {
		settings.Model = c.model
	}
	if cmd.Flags().Changed("temperature") {
		if c.temperature < 0 || c.temperature > 1 {
			return fmt.Errorf("temperature must be between 0 and 1, got %g", c.temperature)
		}
		settings.Temperature = c.temperature
	}

	req := pipeline.Request{Context: knowledge, Question: question, Settings: settings}
	res, err := env.Pipeline.Ask(ctx, req)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), res.Answer)

	if c.details {
		c.printDetails(cmd.ErrOrStderr(), res)
	}

	if sqlitePath := sqlitepath.ResolveSQLitePath(c.sqlitePath, env.Config); sqlitePath != "" {
		c.record(ctx, cmd, env.Logger, sqlitePath, req, res)
	}

	return nil
}

// readContext loads the context document from --context-file or piped stdin.
func (c *askCommander) readContext(cmd *cobra.Command) (string, error) {
	switch c.contextFile {
	case "-":
		return readAll(cmd.InOrStdin())
	case "":
		in := cmd.InOrStdin()
		if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			return "", errors.New("no context: pass --context-file or pipe a document on stdin")
		}
		return readAll(in)
	default:
		data, err := os.ReadFile(c.contextFile)
		if err != nil {
			return "", fmt.Errorf("could not read context file: %w", err)
		}
		return string(data), nil
	}
}

// record stores the transcript. Failures are reported but never change the
// answer already printed.
func (c *askCommander) record(ctx context.Context, cmd *cobra.Command, log *zap.Logger, path string, req pipeline.Request, res *pipeline.Result) {
	recorder, closeStore, err := bootstrap.OpenRecorder(path, log)
	if err != nil {
		log.Error("failed to open transcript store", zap.Error(err))
		return
	}
	defer closeStore()

	head, err := recorder.Record(ctx, req, res)
	if err != nil {
		log.Error("failed to record transcript", zap.Error(err))
		return
	}

	if c.details {
		fmt.Fprintf(cmd.ErrOrStderr(), "transcript: %s\n", head)
	}
}

func readAll(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("could not read context from stdin: %w", err)
	}
	return string(data), nil
}
