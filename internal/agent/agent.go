// Package agent drives one patient question to one final answer through an
// explicit finite-state machine coordinating a language model and the
// database tools.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"carequery/internal/llm"
	"carequery/internal/models"
	"carequery/internal/tools"
)

// ErrNoAnswer indicates the generate/run loop exceeded the round cap
// without the model producing a final answer.
var ErrNoAnswer = errors.New("no answer produced within the round limit")

// DefaultMaxRounds caps the generate-query/run-query loop.
const DefaultMaxRounds = 8

// Model is the language-model capability the machine depends on.
// *llm.Client satisfies it.
type Model interface {
	Complete(ctx context.Context, msgs []models.Message) (models.Message, error)
	CompleteWithTools(ctx context.Context, msgs []models.Message, tools []llms.Tool) (models.Message, error)
	ForceToolCall(ctx context.Context, msgs []models.Message, tool llms.Tool) (models.Message, error)
}

// ToolRunner is the tool capability the machine depends on.
// *tools.Registry satisfies it.
type ToolRunner interface {
	Definition(name string) (llms.Tool, error)
	Run(ctx context.Context, name, args string) (string, error)
}

// Options tune a machine.
type Options struct {
	// MaxRounds caps generate-query passes; zero means DefaultMaxRounds.
	MaxRounds int
	// OnTransition, when set, observes every state edge taken.
	OnTransition func(from, to State)
}

// Agent owns the state transition logic for question-answer cycles. It
// holds no per-cycle state itself; each Run gets its own Conversation, so
// one Agent may serve concurrent cycles.
type Agent struct {
	model  Model
	tools  ToolRunner
	logger *slog.Logger
	opts   Options
}

// New creates an agent over the given model and tool set.
func New(model Model, runner ToolRunner, logger *slog.Logger, opts Options) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = DefaultMaxRounds
	}
	return &Agent{model: model, tools: runner, logger: logger, opts: opts}
}

// Run drives the question through the machine and returns the final
// answer's text. The conversation is discarded by the caller afterwards;
// no state carries over to the next question.
//
// Cancellation is honored at state boundaries only, so a cancelled cycle
// never leaves a tool call mid-flight.
func (a *Agent) Run(ctx context.Context, conv *models.Conversation, question string) (string, error) {
	conv.Append(models.UserMessage(question))

	state := StateClassify
	rounds := 0
	for state != StateDone {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		next, err := a.step(ctx, conv, state, &rounds)
		if err != nil {
			return "", fmt.Errorf("state %s: %w", state, err)
		}

		a.logger.Debug("state transition", "from", state.String(), "to", next.String())
		if a.opts.OnTransition != nil {
			a.opts.OnTransition(state, next)
		}
		state = next
	}

	if pending := conv.PendingToolCalls(); len(pending) > 0 {
		// Should be unreachable; every path that appends a call appends its
		// result before the machine can terminate.
		a.logger.Warn("conversation terminated with unanswered tool calls", "count", len(pending))
	}

	return conv.Last().Content, nil
}

func (a *Agent) step(ctx context.Context, conv *models.Conversation, state State, rounds *int) (State, error) {
	switch state {
	case StateClassify:
		return a.classify(ctx, conv)
	case StateListTables:
		return a.listTables(ctx, conv)
	case StateGetSchema:
		return a.getSchema(ctx, conv)
	case StateGenerateQuery:
		*rounds++
		if *rounds > a.opts.MaxRounds {
			return StateDone, fmt.Errorf("%w: %d rounds", ErrNoAnswer, a.opts.MaxRounds)
		}
		return a.generateQuery(ctx, conv)
	case StateCheckQuery:
		return a.checkQuery(ctx, conv)
	case StateRunQuery:
		return a.runQuery(ctx, conv)
	default:
		return StateDone, fmt.Errorf("no transition from state %s", state)
	}
}

// classify asks the model whether the question concerns patient data. A
// reply containing the routing marker enters the database path; anything
// else is already the final answer (ambiguous replies fail open).
func (a *Agent) classify(ctx context.Context, conv *models.Conversation) (State, error) {
	payload := append([]models.Message{models.SystemMessage(classifyPrompt)}, conv.Messages()...)

	reply, err := a.model.Complete(ctx, payload)
	if err != nil {
		return StateDone, err
	}

	if strings.Contains(reply.Content, routeMarker) {
		// A synthetic marker message keeps free-form routing chatter out of
		// the log the later states build on.
		conv.Append(models.AssistantMessage(routeMarker))
		return StateListTables, nil
	}

	conv.Append(reply)
	return StateDone, nil
}

// listTables synthesizes the list_tables call itself; no model round trip
// is needed to know the machine wants the table list first.
func (a *Agent) listTables(ctx context.Context, conv *models.Conversation) (State, error) {
	call := models.ToolCall{ID: models.NewID(), Name: tools.ListTablesName, Arguments: "{}"}
	conv.Append(models.AssistantToolCall(call))

	result := a.invoke(ctx, call)
	conv.Append(models.ToolResult(call.ID, call.Name, result))
	conv.Append(models.AssistantMessage("Available tables: " + result))

	return StateGetSchema, nil
}

// getSchema forces the model to pick tables and call get_schema for them.
func (a *Agent) getSchema(ctx context.Context, conv *models.Conversation) (State, error) {
	def, err := a.tools.Definition(tools.GetSchemaName)
	if err != nil {
		return StateDone, err
	}

	reply, err := a.model.ForceToolCall(ctx, conv.Messages(), def)
	if err != nil {
		return StateDone, err
	}
	conv.Append(reply)

	call, _ := reply.FirstToolCall()
	result := a.invoke(ctx, call)
	conv.Append(models.ToolResult(call.ID, call.Name, result))

	return StateGenerateQuery, nil
}

// generateQuery lets the model either draft a query (tool call) or answer
// in free text, which terminates the cycle.
func (a *Agent) generateQuery(ctx context.Context, conv *models.Conversation) (State, error) {
	cctx := conv.Context()
	system := models.SystemMessage(generatePrompt(cctx.PatientID, cctx.Dialect, cctx.RowLimit))
	payload := append([]models.Message{system}, conv.Messages()...)

	def, err := a.tools.Definition(tools.RunQueryName)
	if err != nil {
		return StateDone, err
	}

	reply, err := a.model.CompleteWithTools(ctx, payload, []llms.Tool{def})
	if err != nil {
		return StateDone, err
	}
	conv.Append(reply)

	if _, ok := reply.FirstToolCall(); !ok {
		return StateDone, nil
	}
	return StateCheckQuery, nil
}

// checkQuery runs a dedicated review pass over the drafted SQL. The
// reviewed call keeps the draft's correlation ID and supersedes the draft
// message, so exactly one pending call reaches run-query.
func (a *Agent) checkQuery(ctx context.Context, conv *models.Conversation) (State, error) {
	draft := conv.Last()
	call, ok := draft.FirstToolCall()
	if !ok {
		return StateDone, fmt.Errorf("check-query entered without a pending tool call")
	}

	sqlText, err := call.StringArg("query")
	if err != nil {
		return StateDone, fmt.Errorf("%w: %v", llm.ErrMalformedToolCall, err)
	}

	def, err := a.tools.Definition(tools.RunQueryName)
	if err != nil {
		return StateDone, err
	}

	payload := []models.Message{
		models.SystemMessage(checkPrompt(conv.Context().Dialect)),
		models.UserMessage(sqlText),
	}
	reply, err := a.model.ForceToolCall(ctx, payload, def)
	if err != nil {
		return StateDone, err
	}

	reply.ID = draft.ID
	reply.ToolCalls[0].ID = call.ID
	if reviewed, err := reply.ToolCalls[0].StringArg("query"); err == nil && reviewed != sqlText {
		a.logger.Info("query rewritten during review", "draft", sqlText, "reviewed", reviewed)
	}
	conv.Append(reply)

	return StateRunQuery, nil
}

// runQuery executes the reviewed call and loops back so the model can
// read the result.
func (a *Agent) runQuery(ctx context.Context, conv *models.Conversation) (State, error) {
	call, ok := conv.Last().FirstToolCall()
	if !ok {
		return StateDone, fmt.Errorf("run-query entered without a pending tool call")
	}

	result := a.invoke(ctx, call)
	conv.Append(models.ToolResult(call.ID, call.Name, result))

	return StateGenerateQuery, nil
}

// invoke runs a tool call and renders failures as result text, so database
// errors flow back into the conversation as data the model can react to
// instead of aborting the cycle.
func (a *Agent) invoke(ctx context.Context, call models.ToolCall) string {
	out, err := a.tools.Run(ctx, call.Name, call.Arguments)
	if err != nil {
		a.logger.Warn("tool invocation failed", "tool", call.Name, "error", err)
		return "Error: " + err.Error()
	}
	return out
}
