package commands

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gaborage/llmsdk/llm"
)

// ImageOptions holds options for the image command
type ImageOptions struct {
	Model     string
	N         int
	Size      string
	Quality   string
	Style     string
	OutputDir string
}

// NewImageCommand creates the image command. Image URLs are printed; with
// --output the images are requested as base64 and written as PNG files.
func NewImageCommand(root *RootOptions) *cobra.Command {
	opts := &ImageOptions{}

	cmd := &cobra.Command{
		Use:   "image <prompt>",
		Short: "Generate images from a prompt",
		Example: `  llmsdk image "A cute baby sea otter"
  llmsdk image --size 1792x1024 --output ./out "A lighthouse at dusk"`,
		Args: cobra.ExactArgs(1),
	}
	cmd.RunE = withSession(root, func(ctx context.Context, cmd *cobra.Command, s *session, args []string) error {
		model := opts.Model
		if model == "" {
			model = s.model("image", llm.DefaultImageModel)
		}

		b := llm.NewImageRequestBuilder(args[0]).WithModel(model)
		if opts.N > 0 {
			b.WithN(opts.N)
		}
		if opts.Size != "" {
			b.WithSize(llm.ImageSize(opts.Size))
		}
		if opts.Quality != "" {
			b.WithQuality(llm.ImageQuality(opts.Quality))
		}
		if opts.Style != "" {
			b.WithStyle(llm.ImageStyle(opts.Style))
		}
		if opts.OutputDir != "" {
			b.WithResponseFormat(llm.ImageResponseFormatB64JSON)
		}

		req, err := b.Build()
		if err != nil {
			return err
		}
		resp, err := s.sdk.CreateImage(ctx, req)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for i, img := range resp.Data {
			if opts.OutputDir == "" {
				fmt.Fprintln(out, img.URL)
				continue
			}
			path, err := writeImage(opts.OutputDir, i, img.B64JSON)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, path)
		}
		return nil
	})

	cmd.Flags().StringVarP(&opts.Model, "model", "m", "", "Model (default: models.image or "+llm.DefaultImageModel+")")
	cmd.Flags().IntVar(&opts.N, "n", 0, "Number of images (1-10)")
	cmd.Flags().StringVar(&opts.Size, "size", "", "Image size (1024x1024|1792x1024|1024x1792)")
	cmd.Flags().StringVar(&opts.Quality, "quality", "", "Image quality (standard|hd)")
	cmd.Flags().StringVar(&opts.Style, "style", "", "Image style (vivid|natural)")
	cmd.Flags().StringVarP(&opts.OutputDir, "output", "o", "", "Write images to this directory instead of printing URLs")

	return cmd
}

func writeImage(dir string, index int, encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode image %d: %w", index, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("image-%d.png", index))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
