package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gaborage/llmsdk/llm"
)

// SpeechOptions holds options for the speech command
type SpeechOptions struct {
	Model      string
	Voice      string
	Format     string
	Speed      float64
	OutputFile string
}

// NewSpeechCommand creates the speech command
func NewSpeechCommand(root *RootOptions) *cobra.Command {
	opts := &SpeechOptions{}

	cmd := &cobra.Command{
		Use:     "speech <text>",
		Short:   "Synthesize speech and write the audio to a file",
		Example: `  llmsdk speech --voice onyx --output fox.mp3 "The quick brown fox jumped over the lazy dog."`,
		Args:    cobra.ExactArgs(1),
	}
	cmd.RunE = withSession(root, func(ctx context.Context, cmd *cobra.Command, s *session, args []string) error {
		model := opts.Model
		if model == "" {
			model = s.model("speech", llm.SpeechModelTTS1)
		}

		b := llm.NewSpeechRequestBuilder(args[0]).
			WithModel(model).
			WithVoice(llm.Voice(opts.Voice)).
			WithResponseFormat(llm.AudioFormat(opts.Format))
		if cmd.Flags().Changed("speed") {
			b.WithSpeed(opts.Speed)
		}

		req, err := b.Build()
		if err != nil {
			return err
		}
		audio, err := s.sdk.Speech(ctx, req)
		if err != nil {
			return err
		}

		path := opts.OutputFile
		if path == "" {
			path = "speech." + opts.Format
		}
		if err := os.WriteFile(path, audio, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%d bytes)\n", path, len(audio))
		return nil
	})

	cmd.Flags().StringVarP(&opts.Model, "model", "m", "", "Model (default: models.speech or "+llm.SpeechModelTTS1+")")
	cmd.Flags().StringVar(&opts.Voice, "voice", string(llm.VoiceNova), "Voice (alloy|echo|fable|onyx|nova|shimmer)")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", string(llm.AudioFormatMP3), "Audio format (mp3|opus|aac|flac)")
	cmd.Flags().Float64Var(&opts.Speed, "speed", 1, "Playback speed (0.25-4.0)")
	cmd.Flags().StringVarP(&opts.OutputFile, "output", "o", "", "Output file (default: speech.<format>)")

	return cmd
}

// WhisperOptions holds options for the transcribe and translate commands
type WhisperOptions struct {
	Model    string
	Language string
	Prompt   string
	Format   string
}

// NewTranscribeCommand creates the transcribe command
func NewTranscribeCommand(root *RootOptions) *cobra.Command {
	return newWhisperCommand(root, llm.WhisperTranscription)
}

// NewTranslateCommand creates the translate command
func NewTranslateCommand(root *RootOptions) *cobra.Command {
	return newWhisperCommand(root, llm.WhisperTranslation)
}

func newWhisperCommand(root *RootOptions, typ llm.WhisperRequestType) *cobra.Command {
	opts := &WhisperOptions{}

	cmd := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Transcribe audio in its spoken language",
		Args:  cobra.ExactArgs(1),
	}
	if typ == llm.WhisperTranslation {
		cmd.Use = "translate <audio-file>"
		cmd.Short = "Translate audio into English text"
	}

	cmd.RunE = withSession(root, func(ctx context.Context, cmd *cobra.Command, s *session, args []string) error {
		audio, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read audio: %w", err)
		}

		model := opts.Model
		if model == "" {
			model = s.model("whisper", llm.DefaultWhisperModel)
		}

		var b *llm.WhisperRequestBuilder
		if typ == llm.WhisperTranslation {
			b = llm.NewTranslationRequestBuilder(audio)
		} else {
			b = llm.NewTranscriptionRequestBuilder(audio).WithLanguage(opts.Language)
		}
		b.WithModel(model).
			WithPrompt(opts.Prompt).
			WithResponseFormat(llm.WhisperResponseFormat(opts.Format))

		req, err := b.Build()
		if err != nil {
			return err
		}
		resp, err := s.sdk.Whisper(ctx, req)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), resp.Text)
		return nil
	})

	cmd.Flags().StringVarP(&opts.Model, "model", "m", "", "Model (default: models.whisper or "+llm.DefaultWhisperModel+")")
	cmd.Flags().StringVar(&opts.Prompt, "prompt", "", "Text to guide style or vocabulary")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", string(llm.WhisperFormatJSON), "Response format (json|text|srt|verbose_json|vtt)")
	if typ == llm.WhisperTranscription {
		cmd.Flags().StringVarP(&opts.Language, "language", "l", "", "ISO-639-1 language of the audio")
	}

	return cmd
}
