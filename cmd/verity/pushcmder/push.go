package pushcmder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/verity/cmd/verity/sqlitepath"
	"github.com/papercomputeco/verity/pkg/config"
	"github.com/papercomputeco/verity/pkg/merkle"
	"github.com/papercomputeco/verity/pkg/transcript"
)

const pushLongDesc string = `Push local transcripts to a remote verity server.

Reads all nodes from the local SQLite database and POSTs them
to the remote server's /transcripts/nodes endpoint. Content-addressing
ensures duplicates are automatically skipped on the server side.

Examples:
  VERITY_SQLITE=~/.verity/verity.db verity push http://192.168.1.42:8080
  verity push --sqlite ~/.verity/verity.db http://localhost:8080`

const pushShortDesc string = "Push transcripts to a remote verity server"

type pushCommander struct {
	configPath string
	sqlitePath string
	batchSize  int
	httpClient *http.Client
}

func NewPushCmd() *cobra.Command {
	cmder := &pushCommander{
		httpClient: &http.Client{Timeout: time.Minute},
	}

	cmd := &cobra.Command{
		Use:   "push <server-url>",
		Short: pushShortDesc,
		Long:  pushLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd, args[0])
		},
	}

	cmd.Flags().StringVarP(&cmder.configPath, "config", "c", "", "Path to a TOML config file")
	cmd.Flags().StringVarP(&cmder.sqlitePath, "sqlite", "s", "", "Path to local SQLite database (default from config)")
	cmd.Flags().IntVar(&cmder.batchSize, "batch-size", 500, "Nodes per HTTP request")

	return cmd
}

func (c *pushCommander) run(ctx context.Context, cmd *cobra.Command, serverURL string) error {
	if c.batchSize < 1 {
		return fmt.Errorf("batch size must be at least 1, got %d", c.batchSize)
	}
	serverURL = strings.TrimRight(serverURL, "/")

	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}

	dbPath, err := sqlitepath.RequireSQLitePath(c.sqlitePath, cfg)
	if err != nil {
		return fmt.Errorf("could not resolve local database: %w", err)
	}

	storer, err := merkle.NewSQLiteStorer(dbPath)
	if err != nil {
		return fmt.Errorf("could not open local database %s: %w", dbPath, err)
	}
	defer storer.Close()

	nodes, err := storer.List(ctx)
	if err != nil {
		return fmt.Errorf("could not list local nodes: %w", err)
	}

	if len(nodes) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No local nodes to push.")
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Pushing %d nodes from %s to %s\n", len(nodes), dbPath, serverURL)

	var total transcript.ImportStats

	// Nodes are listed in insertion order, so parents reach the server first.
	for i := 0; i < len(nodes); i += c.batchSize {
		end := min(i+c.batchSize, len(nodes))

		resp, err := c.postBatch(ctx, serverURL, nodes[i:end])
		if err != nil {
			return fmt.Errorf("push failed on batch %d-%d: %w", i, end-1, err)
		}

		total.New += resp.New
		total.Duplicate += resp.Duplicate
		total.Errors += resp.Errors
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Pushed %d new nodes (%d already existed, %d errors)\n",
		total.New, total.Duplicate, total.Errors)

	return nil
}

func (c *pushCommander) postBatch(ctx context.Context, serverURL string, nodes []*merkle.Node) (*transcript.ImportStats, error) {
	body, err := json.Marshal(nodes)
	if err != nil {
		return nil, fmt.Errorf("could not marshal nodes: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL+"/transcripts/nodes", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result transcript.ImportStats
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("could not decode response: %w", err)
	}

	return &result, nil
}
