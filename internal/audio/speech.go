package audio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"

	"carequery/internal/config"
)

// pollyAPI is the slice of the Polly client the synthesizer uses.
type pollyAPI interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// Synthesizer turns answer text into spoken audio via Amazon Polly.
type Synthesizer struct {
	client pollyAPI
	voice  string
	engine string
	logger *slog.Logger
}

// NewSynthesizer builds a synthesizer from ambient AWS credentials.
func NewSynthesizer(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Synthesizer, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newSynthesizer(polly.NewFromConfig(awsCfg), cfg, logger), nil
}

func newSynthesizer(client pollyAPI, cfg config.Config, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{
		client: client,
		voice:  cfg.SpeechVoice,
		engine: cfg.SpeechEngine,
		logger: logger,
	}
}

// Synthesize returns MP3 audio for the given text.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	out, err := s.client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Text:         aws.String(text),
		OutputFormat: pollytypes.OutputFormatMp3,
		VoiceId:      pollytypes.VoiceId(s.voice),
		Engine:       pollytypes.Engine(s.engine),
	})
	if err != nil {
		return nil, fmt.Errorf("synthesize speech: %w", err)
	}
	defer out.AudioStream.Close()

	data, err := io.ReadAll(out.AudioStream)
	if err != nil {
		return nil, fmt.Errorf("read audio stream: %w", err)
	}
	s.logger.Debug("synthesized speech", "chars", len(text), "bytes", len(data))
	return data, nil
}

// SynthesizeToFile writes MP3 audio for the given text to path.
func (s *Synthesizer) SynthesizeToFile(ctx context.Context, text, path string) error {
	data, err := s.Synthesize(ctx, text)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write audio file: %w", err)
	}
	return nil
}
