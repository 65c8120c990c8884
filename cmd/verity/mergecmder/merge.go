package mergecmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/verity/cmd/verity/sqlitepath"
	"github.com/papercomputeco/verity/pkg/config"
	"github.com/papercomputeco/verity/pkg/merkle"
)

const mergeLongDesc string = `Merge one or more transcript databases into a target.

Transcripts are content-addressed, so this is a simple union: nodes that
already exist in the target are skipped (deduped by hash). Nodes whose
hash does not match their content are rejected.

Examples:
  verity merge --config verity.toml laptop.db ci.db
  verity merge --sqlite /tmp/merged.db ~/alice/verity.db ~/bob/verity.db`

const mergeShortDesc string = "Merge transcript databases"

type mergeCommander struct {
	configPath string
	sqlitePath string
}

func NewMergeCmd() *cobra.Command {
	cmder := &mergeCommander{}

	cmd := &cobra.Command{
		Use:   "merge [sources...]",
		Short: mergeShortDesc,
		Long:  mergeLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd, args)
		},
	}

	cmd.Flags().StringVarP(&cmder.configPath, "config", "c", "", "Path to a TOML config file")
	cmd.Flags().StringVarP(&cmder.sqlitePath, "sqlite", "s", "", "Path to target SQLite database (default from config)")

	return cmd
}

func (c *mergeCommander) run(ctx context.Context, cmd *cobra.Command, sources []string) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}

	targetPath, err := sqlitepath.RequireSQLitePath(c.sqlitePath, cfg)
	if err != nil {
		return fmt.Errorf("could not resolve target database: %w", err)
	}

	target, err := merkle.NewSQLiteStorer(targetPath)
	if err != nil {
		return fmt.Errorf("could not open target database %s: %w", targetPath, err)
	}
	defer target.Close()

	var totalNew, totalDuped int

	for _, srcPath := range sources {
		srcNew, srcDuped, err := mergeFrom(ctx, target, srcPath)
		if err != nil {
			return err
		}

		totalNew += srcNew
		totalDuped += srcDuped

		fmt.Fprintf(cmd.OutOrStdout(), "  %s: %d new, %d already existed\n", srcPath, srcNew, srcDuped)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Merged %d new nodes from %d sources (%d already existed) into %s\n",
		totalNew, len(sources), totalDuped, targetPath)

	return nil
}

func mergeFrom(ctx context.Context, target merkle.Storer, srcPath string) (int, int, error) {
	source, err := merkle.NewSQLiteStorer(srcPath)
	if err != nil {
		return 0, 0, fmt.Errorf("could not open source database %s: %w", srcPath, err)
	}
	defer source.Close()

	nodes, err := source.List(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("could not list nodes from %s: %w", srcPath, err)
	}

	var srcNew, srcDuped int
	for _, n := range nodes {
		if !n.Verify() {
			return srcNew, srcDuped, fmt.Errorf("node %s in %s does not match its content", n.Hash, srcPath)
		}

		isNew, err := target.Put(ctx, n)
		if err != nil {
			return srcNew, srcDuped, fmt.Errorf("could not put node %s: %w", n.Hash, err)
		}
		if isNew {
			srcNew++
		} else {
			srcDuped++
		}
	}

	return srcNew, srcDuped, nil
}
