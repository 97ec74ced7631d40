package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gaborage/llmsdk/llm"
)

// ChatOptions holds options for the chat command
type ChatOptions struct {
	Model       string
	System      string
	Temperature float64
	MaxTokens   int
	JSON        bool
}

// NewChatCommand creates the chat command
func NewChatCommand(root *RootOptions) *cobra.Command {
	opts := &ChatOptions{}

	cmd := &cobra.Command{
		Use:   "chat <prompt>...",
		Short: "Send a single-turn chat completion",
		Example: `  llmsdk chat "Write a haiku about otters"
  llmsdk chat --system "Answer in French" --temperature 0.2 "Hello"`,
		Args: cobra.MinimumNArgs(1),
	}
	cmd.RunE = withSession(root, func(ctx context.Context, cmd *cobra.Command, s *session, args []string) error {
		model := opts.Model
		if model == "" {
			model = s.model("chat", llm.DefaultChatModel)
		}

		b := llm.NewChatCompletionRequestBuilder(model)
		if opts.System != "" {
			b.WithSystemPrompt(opts.System)
		}
		b.AddMessage(llm.RoleUser, strings.Join(args, " "))
		if cmd.Flags().Changed("temperature") {
			b.WithTemperature(opts.Temperature)
		}
		if opts.MaxTokens > 0 {
			b.WithMaxTokens(opts.MaxTokens)
		}
		if opts.JSON {
			b.WithJSONResponse()
		}

		req, err := b.Build()
		if err != nil {
			return err
		}
		resp, err := s.sdk.ChatCompletion(ctx, req)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), resp.Content())
		return nil
	})

	cmd.Flags().StringVarP(&opts.Model, "model", "m", "", "Model (default: models.chat or "+llm.DefaultChatModel+")")
	cmd.Flags().StringVarP(&opts.System, "system", "s", "", "System prompt")
	cmd.Flags().Float64VarP(&opts.Temperature, "temperature", "t", 1, "Sampling temperature (0-2)")
	cmd.Flags().IntVar(&opts.MaxTokens, "max-tokens", 0, "Maximum tokens to generate")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Request a JSON object response")

	return cmd
}
