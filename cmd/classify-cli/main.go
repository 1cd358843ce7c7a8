package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"classify-orchestrator/internal/adapter/taxonomy"
	"classify-orchestrator/internal/domain"
	"classify-orchestrator/internal/infra/config"
	"classify-orchestrator/internal/usecase/retrieval"
)

var (
	version = "dev"

	// Global flags
	verbose bool

	// Run command flags
	inputFile string
	serverURL string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "classify",
	Short:   "Classify article titles against the retail taxonomy",
	Version: version,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Classify a batch of titles",
	Long: `Classify a batch of titles from a JSON file of {"id","title"} objects.

With --server, the batch is sent to a running orchestrator and the full
adjudicated response is printed. Without it, retrieval runs locally against
the taxonomy file and the ranked candidates are printed per title.

Examples:
  # Local retrieval only (no LLM)
  classify run --input items.json

  # Full pipeline via a running orchestrator
  classify run --input items.json --server http://localhost:9020`,
	RunE: runClassify,
}

var normalizeCmd = &cobra.Command{
	Use:   "normalize [title]",
	Short: "Print the normalized form of a title",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n := domain.NewTitleNormalizer().Normalize(args[0])
		out, err := json.MarshalIndent(map[string]any{
			"raw":        n.Raw,
			"normalized": n.Normalized,
			"tokens":     n.Tokens,
		}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	runCmd.Flags().StringVarP(&inputFile, "input", "i", "", "JSON file with items to classify (required)")
	runCmd.Flags().StringVar(&serverURL, "server", "", "orchestrator base URL; empty runs local retrieval only")
	_ = runCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(runCmd, normalizeCmd)
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func readItems(path string) ([]domain.TitleItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}
	var items []domain.TitleItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse input file: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("input file contains no items")
	}
	return items, nil
}

func runClassify(cmd *cobra.Command, args []string) error {
	items, err := readItems(inputFile)
	if err != nil {
		return err
	}

	if serverURL != "" {
		return classifyViaServer(cmd.Context(), items)
	}
	return classifyLocally(cmd.Context(), items)
}

func classifyViaServer(ctx context.Context, items []domain.TitleItem) error {
	payload, err := json.Marshal(map[string]any{"items": items})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL+"/v1/classify/batch", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call orchestrator: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("orchestrator returned status %d: %s", resp.StatusCode, body)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		fmt.Println(string(body))
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}

type localResult struct {
	ID              string             `json:"id"`
	Title           string             `json:"title"`
	TitleNormalized string             `json:"title_normalized"`
	Decision        domain.Decision    `json:"decision"`
	Candidates      []domain.Candidate `json:"candidates"`
}

func classifyLocally(ctx context.Context, items []domain.TitleItem) error {
	cfg := config.Load()
	log := newLogger()

	repo := taxonomy.NewFileRepository(cfg.Taxonomy.HierarchyPath, cfg.Taxonomy.SynonymsPath)
	tax, err := repo.Load(ctx)
	if err != nil {
		return err
	}

	normalizer := domain.NewTitleNormalizer()
	idx := retrieval.NewIndex(tax, normalizer)
	retriever := retrieval.NewRetriever(idx, retrieval.Config{
		TopK:               cfg.Retrieval.TopK,
		FuzzyTopN:          cfg.Retrieval.FuzzyTopN,
		FuzzyMinSimilarity: cfg.Retrieval.FuzzyMinSimilarity,
	}, log)

	results := make([]localResult, 0, len(items))
	for _, it := range items {
		n := normalizer.Normalize(it.Title)
		candidates, err := retriever.GetCandidatesForTitle(ctx, n.Normalized)
		if err != nil {
			return fmt.Errorf("retrieval failed for %q: %w", it.ID, err)
		}
		results = append(results, localResult{
			ID:              it.ID,
			Title:           it.Title,
			TitleNormalized: n.Normalized,
			Decision:        domain.GateDecision(candidates),
			Candidates:      candidates,
		})
	}

	out, err := json.MarshalIndent(map[string]any{
		"taxonomy_hash": tax.Hash,
		"results":       results,
	}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
