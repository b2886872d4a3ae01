package agent_test

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"carequery/internal/agent"
	"carequery/internal/db"
	"carequery/internal/models"
	"carequery/internal/tools"

	_ "github.com/mattn/go-sqlite3"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// scripted replays a fixed sequence of model replies and records the
// invocation mode of each call.
type scripted struct {
	t       *testing.T
	replies []models.Message
	idx     int
	modes   []string
}

func (s *scripted) next(mode string) (models.Message, error) {
	s.modes = append(s.modes, mode)
	if s.idx >= len(s.replies) {
		return models.Message{}, fmt.Errorf("script exhausted after %d replies", len(s.replies))
	}
	reply := s.replies[s.idx]
	s.idx++
	// Replies need fresh IDs per call so conversation appends don't collide.
	if reply.ID == "" {
		reply.ID = models.NewID()
	}
	return reply, nil
}

func (s *scripted) Complete(_ context.Context, _ []models.Message) (models.Message, error) {
	return s.next("complete")
}

func (s *scripted) CompleteWithTools(_ context.Context, _ []models.Message, _ []llms.Tool) (models.Message, error) {
	return s.next("tools")
}

func (s *scripted) ForceToolCall(_ context.Context, _ []models.Message, tool llms.Tool) (models.Message, error) {
	reply, err := s.next("forced")
	if err != nil {
		return reply, err
	}
	if call, ok := reply.FirstToolCall(); !ok || call.Name != tool.Function.Name {
		s.t.Fatalf("script reply %d is not a %s call", s.idx, tool.Function.Name)
	}
	return reply, nil
}

// spyRunner wraps a real registry and records call order.
type spyRunner struct {
	inner *tools.Registry
	calls []string
}

func (s *spyRunner) Definition(name string) (llms.Tool, error) {
	return s.inner.Definition(name)
}

func (s *spyRunner) Run(ctx context.Context, name, args string) (string, error) {
	s.calls = append(s.calls, name)
	return s.inner.Run(ctx, name, args)
}

func newPatientRegistry(t *testing.T) *spyRunner {
	t.Helper()

	sqlDB, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	stmts := []string{
		`CREATE TABLE patients (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
		`CREATE TABLE treatments (id INTEGER PRIMARY KEY, patient_id INTEGER, description TEXT, date TEXT)`,
		`CREATE TABLE visits (id INTEGER PRIMARY KEY, patient_id INTEGER, reason TEXT)`,
		`INSERT INTO patients VALUES (143, 'Alexander Michael Lewis')`,
		`INSERT INTO treatments VALUES (1, 143, 'physiotherapy', '2026-08-01')`,
		`INSERT INTO treatments VALUES (2, 143, 'blood panel', '2026-08-15')`,
	}
	for _, stmt := range stmts {
		_, err := sqlDB.Exec(stmt)
		require.NoError(t, err)
	}

	reg := tools.NewRegistry(&tools.Dependencies{
		DB:     db.NewClientFromDB(sqlDB, "sqlite", testLogger()),
		Logger: testLogger(),
	})
	return &spyRunner{inner: reg}
}

func toolCallMsg(name, args string) models.Message {
	return models.AssistantToolCall(models.ToolCall{
		ID:        models.NewID(),
		Name:      name,
		Arguments: args,
	})
}

func newConversation() *models.Conversation {
	return models.NewConversation(models.Context{PatientID: 143, Dialect: "sqlite", RowLimit: 100})
}

func TestRunNonDatabaseQuestion(t *testing.T) {
	runner := newPatientRegistry(t)
	model := &scripted{t: t, replies: []models.Message{
		models.AssistantMessage("Paris."),
	}}
	a := agent.New(model, runner, testLogger(), agent.Options{})

	answer, err := a.Run(context.Background(), newConversation(), "What is the capital of France?")
	require.NoError(t, err)

	// The classification reply is returned unchanged and no tool ran.
	assert.Equal(t, "Paris.", answer)
	assert.Empty(t, runner.calls)
	assert.Equal(t, []string{"complete"}, model.modes)
}

func TestRunDatabaseQuestion(t *testing.T) {
	runner := newPatientRegistry(t)

	const query = "SELECT description, date FROM treatments WHERE patient_id = 143 ORDER BY date DESC LIMIT 100"
	model := &scripted{t: t, replies: []models.Message{
		models.AssistantMessage("list_tables"),
		toolCallMsg(tools.GetSchemaName, `{"table_names":["treatments"]}`),
		toolCallMsg(tools.RunQueryName, fmt.Sprintf(`{"query":%q}`, query)),
		toolCallMsg(tools.RunQueryName, fmt.Sprintf(`{"query":%q}`, query)),
		models.AssistantMessage("The patient recently had a blood panel and physiotherapy."),
	}}
	a := agent.New(model, runner, testLogger(), agent.Options{})

	conv := newConversation()
	answer, err := a.Run(context.Background(), conv, "What treatments has the patient had recently?")
	require.NoError(t, err)

	assert.Equal(t, "The patient recently had a blood panel and physiotherapy.", answer)
	// list_tables and get_schema each ran exactly once, before any run_query.
	assert.Equal(t, []string{tools.ListTablesName, tools.GetSchemaName, tools.RunQueryName}, runner.calls)
	// classify, forced schema fetch, draft, forced review, summarize.
	assert.Equal(t, []string{"complete", "forced", "tools", "forced", "tools"}, model.modes)
	// Every tool call got its matching result before termination.
	assert.Empty(t, conv.PendingToolCalls())
}

func TestRunMarkerInsideLongerReply(t *testing.T) {
	runner := newPatientRegistry(t)
	model := &scripted{t: t, replies: []models.Message{
		models.AssistantMessage("This needs a lookup: list_tables"),
		toolCallMsg(tools.GetSchemaName, `{"table_names":["patients"]}`),
		models.AssistantMessage("The patient's name is Alexander Michael Lewis."),
	}}
	a := agent.New(model, runner, testLogger(), agent.Options{})

	answer, err := a.Run(context.Background(), newConversation(), "What is the patient's name?")
	require.NoError(t, err)
	assert.Equal(t, "The patient's name is Alexander Michael Lewis.", answer)
	assert.Equal(t, []string{tools.ListTablesName, tools.GetSchemaName}, runner.calls)
}

func TestCheckQueryKeepsCorrelationID(t *testing.T) {
	runner := newPatientRegistry(t)

	draft := toolCallMsg(tools.RunQueryName, `{"query":"SELECT description FROM treatments WHERE patient_id = 143"}`)
	draftID := draft.ToolCalls[0].ID
	reviewed := toolCallMsg(tools.RunQueryName, `{"query":"SELECT description FROM treatments WHERE patient_id = 143 LIMIT 100"}`)

	model := &scripted{t: t, replies: []models.Message{
		models.AssistantMessage("list_tables"),
		toolCallMsg(tools.GetSchemaName, `{"table_names":["treatments"]}`),
		draft,
		reviewed,
		models.AssistantMessage("done"),
	}}
	a := agent.New(model, runner, testLogger(), agent.Options{})

	conv := newConversation()
	_, err := a.Run(context.Background(), conv, "treatments?")
	require.NoError(t, err)

	// The reviewed call and its result both carry the draft's correlation ID,
	// and the draft message itself was superseded.
	var calls, results int
	for _, m := range conv.Messages() {
		for _, c := range m.ToolCalls {
			if c.ID == draftID {
				calls++
				assert.Contains(t, c.Arguments, "LIMIT 100")
			}
		}
		if m.Role == models.RoleTool && m.ToolCallID == draftID {
			results++
		}
	}
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, results)
	assert.Empty(t, conv.PendingToolCalls())
}

func TestDatabaseErrorFlowsBackAsData(t *testing.T) {
	runner := newPatientRegistry(t)

	bad := `{"query":"SELECT * FROM prescriptions WHERE patient_id = 143"}`
	model := &scripted{t: t, replies: []models.Message{
		models.AssistantMessage("list_tables"),
		toolCallMsg(tools.GetSchemaName, `{"table_names":["treatments"]}`),
		toolCallMsg(tools.RunQueryName, bad),
		toolCallMsg(tools.RunQueryName, bad),
		models.AssistantMessage("I couldn't find prescription records for this patient."),
	}}
	a := agent.New(model, runner, testLogger(), agent.Options{})

	conv := newConversation()
	answer, err := a.Run(context.Background(), conv, "What prescriptions does the patient have?")
	require.NoError(t, err)
	assert.Equal(t, "I couldn't find prescription records for this patient.", answer)

	// The failure surfaced as a tool-result message, not a crash.
	var sawError bool
	for _, m := range conv.Messages() {
		if m.Role == models.RoleTool && m.ToolName == tools.RunQueryName {
			sawError = assert.Contains(t, m.Content, "Error:") || sawError
		}
	}
	assert.True(t, sawError)
}

func TestUnsafeStatementNeverExecutes(t *testing.T) {
	runner := newPatientRegistry(t)

	drop := `{"query":"DROP TABLE patients"}`
	model := &scripted{t: t, replies: []models.Message{
		models.AssistantMessage("list_tables"),
		toolCallMsg(tools.GetSchemaName, `{"table_names":["patients"]}`),
		toolCallMsg(tools.RunQueryName, drop),
		toolCallMsg(tools.RunQueryName, drop),
		models.AssistantMessage("I can't do that."),
	}}
	a := agent.New(model, runner, testLogger(), agent.Options{})

	conv := newConversation()
	_, err := a.Run(context.Background(), conv, "Delete the patient table")
	require.NoError(t, err)

	var rejected bool
	for _, m := range conv.Messages() {
		if m.Role == models.RoleTool && m.ToolName == tools.RunQueryName {
			rejected = assert.Contains(t, m.Content, "read-only") || rejected
		}
	}
	assert.True(t, rejected)

	// The table survived the attempt.
	out, err := runner.Run(context.Background(), tools.RunQueryName, `{"query":"SELECT COUNT(*) FROM patients"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "1")
}

func TestRoundCapTerminatesLoop(t *testing.T) {
	runner := newPatientRegistry(t)

	loop := `{"query":"SELECT id FROM treatments LIMIT 1"}`
	replies := []models.Message{
		models.AssistantMessage("list_tables"),
		toolCallMsg(tools.GetSchemaName, `{"table_names":["treatments"]}`),
	}
	// The model keeps drafting queries and never answers.
	for range 10 {
		replies = append(replies,
			toolCallMsg(tools.RunQueryName, loop),
			toolCallMsg(tools.RunQueryName, loop),
		)
	}

	model := &scripted{t: t, replies: replies}
	a := agent.New(model, runner, testLogger(), agent.Options{MaxRounds: 3})

	_, err := a.Run(context.Background(), newConversation(), "loop forever")
	require.Error(t, err)
	assert.ErrorIs(t, err, agent.ErrNoAnswer)
}

func TestCancellationBetweenStates(t *testing.T) {
	runner := newPatientRegistry(t)
	model := &scripted{t: t, replies: []models.Message{
		models.AssistantMessage("Paris."),
	}}
	a := agent.New(model, runner, testLogger(), agent.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Run(ctx, newConversation(), "anything")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, runner.calls)
}

func TestMalformedDraftArguments(t *testing.T) {
	runner := newPatientRegistry(t)

	model := &scripted{t: t, replies: []models.Message{
		models.AssistantMessage("list_tables"),
		toolCallMsg(tools.GetSchemaName, `{"table_names":["treatments"]}`),
		// Draft carries no "query" argument at all.
		toolCallMsg(tools.RunQueryName, `{"sql":"SELECT 1"}`),
	}}
	a := agent.New(model, runner, testLogger(), agent.Options{})

	_, err := a.Run(context.Background(), newConversation(), "treatments?")
	require.Error(t, err)
}
