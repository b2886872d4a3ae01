// Package tools exposes the database operations the agent can invoke:
// listing tables, fetching schema, and running read-only queries.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/llms"

	"carequery/internal/db"
)

// Tool names as the model sees them.
const (
	ListTablesName = "list_tables"
	GetSchemaName  = "get_schema"
	RunQueryName   = "run_query"
)

// Recorder receives timing for each tool invocation. Implemented by the
// metrics collector; nil disables recording.
type Recorder interface {
	RecordToolCall(name string, elapsed time.Duration, failed bool)
}

// Dependencies holds shared services for tool handlers.
type Dependencies struct {
	DB      *db.Client
	Logger  *slog.Logger
	Metrics Recorder
}

// handler executes one tool against the database.
type handler func(ctx context.Context, args string) (string, error)

// descriptor pairs a tool definition (as declared to the model) with its
// handler. Descriptors are process-wide and stateless.
type descriptor struct {
	def llms.Tool
	run handler
}

// Registry is the fixed set of tools for one database connection.
type Registry struct {
	deps  *Dependencies
	tools map[string]descriptor
	order []string
}

// NewRegistry builds the registry over the given dependencies.
func NewRegistry(deps *Dependencies) *Registry {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	r := &Registry{deps: deps, tools: make(map[string]descriptor)}
	r.register(listTablesTool(deps))
	r.register(getSchemaTool(deps))
	r.register(runQueryTool(deps))
	return r
}

func (r *Registry) register(d descriptor) {
	name := d.def.Function.Name
	r.tools[name] = d
	r.order = append(r.order, name)
}

// Definitions returns every tool definition in registration order.
func (r *Registry) Definitions() []llms.Tool {
	defs := make([]llms.Tool, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].def)
	}
	return defs
}

// Definition returns the named tool's definition.
func (r *Registry) Definition(name string) (llms.Tool, error) {
	d, ok := r.tools[name]
	if !ok {
		return llms.Tool{}, fmt.Errorf("unknown tool: %s", name)
	}
	return d.def, nil
}

// Run invokes the named tool with raw JSON arguments and returns its text
// result.
func (r *Registry) Run(ctx context.Context, name, args string) (string, error) {
	d, ok := r.tools[name]
	if !ok {
		return "", fmt.Errorf("unknown tool: %s", name)
	}

	start := time.Now()
	out, err := d.run(ctx, args)
	elapsed := time.Since(start)

	if r.deps.Metrics != nil {
		r.deps.Metrics.RecordToolCall(name, elapsed, err != nil)
	}
	if err != nil {
		r.deps.Logger.Warn("tool call failed", "tool", name, "elapsed_ms", elapsed.Milliseconds(), "error", err)
	} else {
		r.deps.Logger.Debug("tool call completed", "tool", name, "elapsed_ms", elapsed.Milliseconds())
	}
	return out, err
}
