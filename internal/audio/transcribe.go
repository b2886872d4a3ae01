// Package audio adds the spoken interface around the question-answer
// cycle: transcribing recorded questions and synthesizing spoken answers.
package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

const transcribePrompt = "Generate a transcript of the speech."

// mimeTypes maps recording file extensions to the MIME types the model
// accepts.
var mimeTypes = map[string]string{
	".wav":  "audio/wav",
	".mp3":  "audio/mpeg",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
	".m4a":  "audio/mp4",
}

// Transcriber turns recorded speech into text using a multimodal model.
type Transcriber struct {
	model  llms.Model
	logger *slog.Logger
}

// NewTranscriber wraps a multimodal model. The model must accept audio
// parts; Gemini models do.
func NewTranscriber(model llms.Model, logger *slog.Logger) *Transcriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transcriber{model: model, logger: logger}
}

// Transcribe returns a transcript of the given audio bytes.
func (t *Transcriber) Transcribe(ctx context.Context, data []byte, mimeType string) (string, error) {
	content := []llms.MessageContent{{
		Role: llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{
			llms.TextPart(transcribePrompt),
			llms.BinaryPart(mimeType, data),
		},
	}}

	resp, err := t.model.GenerateContent(ctx, content)
	if err != nil {
		return "", fmt.Errorf("transcribe audio: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("transcribe audio: empty response")
	}

	transcript := strings.TrimSpace(resp.Choices[0].Content)
	t.logger.Debug("transcribed audio", "bytes", len(data), "chars", len(transcript))
	return transcript, nil
}

// TranscribeFile reads a recording from disk and transcribes it. The MIME
// type is derived from the file extension.
func (t *Transcriber) TranscribeFile(ctx context.Context, path string) (string, error) {
	mimeType, ok := mimeTypes[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return "", fmt.Errorf("transcribe audio: unsupported file type %q", filepath.Ext(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("transcribe audio: %w", err)
	}
	return t.Transcribe(ctx, data, mimeType)
}
