// Package llm wraps a langchaingo model behind the three invocation modes
// the agent needs: plain completion, tool-available completion, and
// tool-forced completion.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/llms"

	"carequery/internal/models"
)

// Recorder receives timing and token counts for each model invocation.
// Implemented by the metrics collector; a nil Recorder disables recording.
type Recorder interface {
	RecordModelCall(mode string, elapsed time.Duration, inputTokens, outputTokens int)
}

// Client wraps a langchaingo model for agent use. Responses are requested
// at temperature 0 so identical cycles stay deterministic.
type Client struct {
	llm       llms.Model
	modelName string
	logger    *slog.Logger
	recorder  Recorder
}

// NewClient wraps an existing langchaingo model. See NewFromConfig for
// provider selection.
func NewClient(model llms.Model, modelName string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{llm: model, modelName: modelName, logger: logger}
}

// WithRecorder attaches a metrics recorder and returns the client.
func (c *Client) WithRecorder(r Recorder) *Client {
	c.recorder = r
	return c
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.modelName
}

// Underlying returns the wrapped langchaingo model for callers that need
// capabilities beyond chat completion, such as audio transcription.
func (c *Client) Underlying() llms.Model {
	return c.llm
}

// Complete sends the messages with no tools offered and returns the reply.
func (c *Client) Complete(ctx context.Context, msgs []models.Message) (models.Message, error) {
	return c.generate(ctx, "complete", msgs)
}

// CompleteWithTools offers the given tools; the model may call one or reply
// in free text.
func (c *Client) CompleteWithTools(ctx context.Context, msgs []models.Message, tools []llms.Tool) (models.Message, error) {
	return c.generate(ctx, "complete_with_tools", msgs, llms.WithTools(tools))
}

// ForceToolCall requires the model to call the single given tool. Providers
// honoring tool choice return a call directly; for the rest the reply is
// validated and retried once with a clarifying instruction. A free-text
// reply after the retry is ErrMalformedToolCall.
func (c *Client) ForceToolCall(ctx context.Context, msgs []models.Message, tool llms.Tool) (models.Message, error) {
	opts := []llms.CallOption{
		llms.WithTools([]llms.Tool{tool}),
		llms.WithToolChoice(llms.ToolChoice{
			Type:     "function",
			Function: &llms.FunctionReference{Name: tool.Function.Name},
		}),
	}

	reply, err := c.generate(ctx, "force_tool_call", msgs, opts...)
	if err != nil {
		return models.Message{}, err
	}
	if validToolCall(reply, tool.Function.Name) {
		return reply, nil
	}

	c.logger.Warn("forced tool call missing from reply, retrying",
		"tool", tool.Function.Name, "model", c.modelName)

	retryMsgs := append(append([]models.Message{}, msgs...), models.UserMessage(
		fmt.Sprintf("You must respond by calling the %s tool with valid JSON arguments. Do not reply with plain text.", tool.Function.Name)))
	reply, err = c.generate(ctx, "force_tool_call", retryMsgs, opts...)
	if err != nil {
		return models.Message{}, err
	}
	if !validToolCall(reply, tool.Function.Name) {
		return models.Message{}, fmt.Errorf("%w: wanted %s", ErrMalformedToolCall, tool.Function.Name)
	}
	return reply, nil
}

func (c *Client) generate(ctx context.Context, mode string, msgs []models.Message, opts ...llms.CallOption) (models.Message, error) {
	opts = append(opts, llms.WithTemperature(0))

	start := time.Now()
	resp, err := c.llm.GenerateContent(ctx, toContent(msgs), opts...)
	elapsed := time.Since(start)
	if err != nil {
		return models.Message{}, fmt.Errorf("generate content: %w", wrapFatalError(err))
	}
	if len(resp.Choices) == 0 {
		return models.Message{}, ErrEmptyResponse
	}

	choice := resp.Choices[0]
	if c.recorder != nil {
		in, out := tokenUsage(choice.GenerationInfo)
		c.recorder.RecordModelCall(mode, elapsed, in, out)
	}
	c.logger.Debug("model call completed",
		"mode", mode, "model", c.modelName,
		"elapsed_ms", elapsed.Milliseconds(),
		"tool_calls", len(choice.ToolCalls))

	return fromChoice(choice), nil
}

// validToolCall reports whether the reply carries a call for the named tool
// with decodable JSON arguments.
func validToolCall(msg models.Message, name string) bool {
	call, ok := msg.FirstToolCall()
	if !ok || call.Name != name {
		return false
	}
	var args map[string]any
	return json.Unmarshal([]byte(call.Arguments), &args) == nil
}

// tokenUsage pulls token counts out of provider generation info; providers
// disagree on key names.
func tokenUsage(info map[string]any) (input, output int) {
	return intFromAny(info, "PromptTokens", "input_tokens", "prompt_tokens"),
		intFromAny(info, "CompletionTokens", "output_tokens", "completion_tokens")
}

func intFromAny(info map[string]any, keys ...string) int {
	for _, key := range keys {
		switch v := info[key].(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return 0
}
