package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gaborage/llmsdk/llm"
)

const (
	defaultEmbedBatchSize   = 16
	defaultEmbedConcurrency = 4
)

// EmbedOptions holds options for the embed command
type EmbedOptions struct {
	Model       string
	InputFile   string
	BatchSize   int
	Concurrency int
}

// embedResult is written as one JSON line per input, in input order.
type embedResult struct {
	Index     int        `json:"index"`
	Input     string     `json:"input"`
	Embedding llm.Vector `json:"embedding"`
}

// NewEmbedCommand creates the embed command. Inputs are split into batches
// that are sent concurrently.
func NewEmbedCommand(root *RootOptions) *cobra.Command {
	opts := &EmbedOptions{}

	cmd := &cobra.Command{
		Use:   "embed [text]...",
		Short: "Compute embeddings and print them as JSON lines",
		Example: `  llmsdk embed "first sentence" "second sentence"
  llmsdk embed --file sentences.txt --batch-size 64 --concurrency 8`,
	}
	cmd.RunE = withSession(root, func(ctx context.Context, cmd *cobra.Command, s *session, args []string) error {
		inputs := args
		if opts.InputFile != "" {
			lines, err := readLines(opts.InputFile)
			if err != nil {
				return err
			}
			inputs = append(inputs, lines...)
		}
		if len(inputs) == 0 {
			return fmt.Errorf("no input: pass text arguments or --file")
		}

		model := opts.Model
		if model == "" {
			model = s.model("embedding", llm.DefaultEmbeddingModel)
		}

		vectors, err := embedBatches(ctx, s.sdk, model, inputs, opts.BatchSize, opts.Concurrency)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		for i, v := range vectors {
			if err := enc.Encode(embedResult{Index: i, Input: inputs[i], Embedding: v}); err != nil {
				return err
			}
		}
		return nil
	})

	cmd.Flags().StringVarP(&opts.Model, "model", "m", "", "Model (default: models.embedding or "+llm.DefaultEmbeddingModel+")")
	cmd.Flags().StringVar(&opts.InputFile, "file", "", "Read inputs from a file, one per line")
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", defaultEmbedBatchSize, "Inputs per request (max 2048)")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", defaultEmbedConcurrency, "Requests in flight")

	return cmd
}

// embedBatches returns one vector per input. The first failed batch cancels the rest.
func embedBatches(ctx context.Context, sdk *llm.SDK, model string, inputs []string, batchSize, concurrency int) ([]llm.Vector, error) {
	if batchSize <= 0 {
		batchSize = defaultEmbedBatchSize
	}
	if concurrency <= 0 {
		concurrency = defaultEmbedConcurrency
	}

	vectors := make([]llm.Vector, len(inputs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for start := 0; start < len(inputs); start += batchSize {
		end := min(start+batchSize, len(inputs))
		g.Go(func() error {
			req, err := llm.NewEmbeddingRequestBuilder(llm.BatchInput(inputs[start:end]...)).
				WithModel(model).
				Build()
			if err != nil {
				return err
			}
			resp, err := sdk.Embedding(ctx, req)
			if err != nil {
				return err
			}
			for _, d := range resp.Data {
				if d.Index < 0 || start+d.Index >= end {
					return fmt.Errorf("embedding index %d out of range for batch of %d", d.Index, end-start)
				}
				// each goroutine writes a disjoint range
				vectors[start+d.Index] = d.Embedding
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("no embedding returned for input %d", i)
		}
	}
	return vectors, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return lines, nil
}
