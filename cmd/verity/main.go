package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/verity/cmd/verity/askcmder"
	"github.com/papercomputeco/verity/cmd/verity/batchcmder"
	"github.com/papercomputeco/verity/cmd/verity/mcpcmder"
	"github.com/papercomputeco/verity/cmd/verity/mergecmder"
	"github.com/papercomputeco/verity/cmd/verity/pushcmder"
	"github.com/papercomputeco/verity/cmd/verity/servecmder"
)

const verityLongDesc string = `verity answers questions strictly from a context you supply.

Every answer is drafted, then audited against the same context by a
second, stricter pass. Drafts the audit cannot confirm are replaced, and
anything unverifiable becomes "I don't know based on the provided context."

Configuration is read from --config (TOML) and the environment:
  VERITY_PROVIDER, VERITY_MODEL, VERITY_BASE_URL, VERITY_SQLITE,
  GEMINI_API_KEY / GOOGLE_API_KEY, OPENAI_API_KEY`

const verityShortDesc string = "Context-grounded question answering"

func newVerityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "verity",
		Short:         verityShortDesc,
		Long:          verityLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		askcmder.NewAskCmd(),
		batchcmder.NewBatchCmd(),
		servecmder.NewServeCmd(),
		mcpcmder.NewMCPCmd(),
		mergecmder.NewMergeCmd(),
		pushcmder.NewPushCmd(),
	)

	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newVerityCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
