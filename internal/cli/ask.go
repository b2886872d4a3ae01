package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"carequery/internal/agent"
	"carequery/internal/audio"
	"carequery/internal/client"
	"carequery/internal/llm"
	"carequery/internal/service"
)

var (
	askPatientID int
	askAudioFile string
	askSpeak     bool
	askSpeakFile string
	askShowSteps bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask one question about a patient's records",
	Long: `Ask a natural-language question about a patient's medical records.

The question is classified first; database-related questions are answered
by generating and running a reviewed, read-only SQL query, everything
else is answered directly.

Examples:
  carequery ask -p 143 "What treatments has the patient had recently?"
  carequery ask -p 132 --audio question.wav
  carequery ask -p 143 "Any visits this year?" --speak -o answer.mp3
  carequery ask -p 143 "Any visits this year?" --server http://localhost:9180`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().IntVarP(&askPatientID, "patient", "p", 0, "patient ID the question is about (required)")
	askCmd.Flags().StringVar(&askAudioFile, "audio", "", "transcribe the question from a recording instead of text")
	askCmd.Flags().BoolVar(&askSpeak, "speak", false, "synthesize the answer to speech")
	askCmd.Flags().StringVarP(&askSpeakFile, "output", "o", "answer.mp3", "file for synthesized speech")
	askCmd.Flags().BoolVar(&askShowSteps, "steps", false, "print agent steps while working")
	_ = askCmd.MarkFlagRequired("patient")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	question, err := resolveQuestion(ctx, args)
	if err != nil {
		return err
	}

	var answer string
	if remoteMode() {
		answer, err = askRemote(ctx, question)
	} else {
		answer, err = askLocal(ctx, question)
	}
	if err != nil {
		slog.Error("question failed", "patient_id", askPatientID, "error", err)
		fmt.Println(service.Friendly(err))
		return nil
	}

	fmt.Println(answer)

	if askSpeak {
		if err := speakAnswer(ctx, answer); err != nil {
			return err
		}
		fmt.Printf("Spoken answer written to %s\n", askSpeakFile)
	}
	return nil
}

// resolveQuestion takes the question from the argument or transcribes the
// recording named by --audio.
func resolveQuestion(ctx context.Context, args []string) (string, error) {
	if askAudioFile == "" {
		if len(args) == 0 {
			return "", fmt.Errorf("provide a question or --audio recording")
		}
		return args[0], nil
	}
	if len(args) > 0 {
		return "", fmt.Errorf("provide either a question or --audio, not both")
	}
	if remoteMode() {
		return "", fmt.Errorf("--audio requires a local model; not available with --server")
	}

	if err := ensureAPIKey(); err != nil {
		return "", err
	}
	model, err := llm.NewFromConfig(ctx, cfg, slog.Default())
	if err != nil {
		return "", err
	}
	question, err := audio.NewTranscriber(model.Underlying(), slog.Default()).TranscribeFile(ctx, askAudioFile)
	if err != nil {
		return "", err
	}
	fmt.Printf("Transcribed question: %s\n", question)
	return question, nil
}

func askLocal(ctx context.Context, question string) (string, error) {
	if err := ensureAPIKey(); err != nil {
		return "", err
	}
	s, err := getService(ctx)
	if err != nil {
		return "", err
	}
	return s.RunCycleObserved(ctx, askPatientID, question, stepPrinter())
}

// stepPrinter prints state transitions when --steps is set.
func stepPrinter() func(from, to agent.State) {
	if !askShowSteps {
		return nil
	}
	return func(from, to agent.State) {
		fmt.Printf("  %s -> %s\n", from, to)
	}
}

func askRemote(ctx context.Context, question string) (string, error) {
	c := client.New(serverURL)
	if askShowSteps {
		return c.AskStreaming(ctx, askPatientID, question, func(f client.StepFrame) {
			fmt.Printf("  %s -> %s\n", f.From, f.To)
		})
	}
	return c.Ask(ctx, askPatientID, question)
}

func speakAnswer(ctx context.Context, answer string) error {
	synth, err := audio.NewSynthesizer(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	return synth.SynthesizeToFile(ctx, answer, askSpeakFile)
}
