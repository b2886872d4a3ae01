package server_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"carequery/internal/agent"
	"carequery/internal/config"
	"carequery/internal/db"
	"carequery/internal/models"
	"carequery/internal/server"
	"carequery/internal/service"
	"carequery/internal/tools"

	_ "github.com/mattn/go-sqlite3"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// scripted replays a fixed sequence of model replies.
type scripted struct {
	replies []models.Message
	idx     int
}

func (s *scripted) next() (models.Message, error) {
	if s.idx >= len(s.replies) {
		return models.Message{}, fmt.Errorf("script exhausted after %d replies", len(s.replies))
	}
	reply := s.replies[s.idx]
	s.idx++
	if reply.ID == "" {
		reply.ID = models.NewID()
	}
	return reply, nil
}

func (s *scripted) Complete(_ context.Context, _ []models.Message) (models.Message, error) {
	return s.next()
}

func (s *scripted) CompleteWithTools(_ context.Context, _ []models.Message, _ []llms.Tool) (models.Message, error) {
	return s.next()
}

func (s *scripted) ForceToolCall(_ context.Context, _ []models.Message, _ llms.Tool) (models.Message, error) {
	return s.next()
}

func toolCallMsg(name, args string) models.Message {
	return models.AssistantToolCall(models.ToolCall{
		ID:        models.NewID(),
		Name:      name,
		Arguments: args,
	})
}

// newTestServer serves the API over an in-memory patient database and a
// model that replays the given script for every question.
func newTestServer(t *testing.T, replies ...models.Message) *httptest.Server {
	t.Helper()

	sqlDB, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	stmts := []string{
		`CREATE TABLE patients (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
		`CREATE TABLE treatments (id INTEGER PRIMARY KEY, patient_id INTEGER, description TEXT, date TEXT)`,
		`INSERT INTO patients VALUES (143, 'Alexander Michael Lewis')`,
		`INSERT INTO treatments VALUES (1, 143, 'physiotherapy', '2026-08-01')`,
	}
	for _, stmt := range stmts {
		_, err := sqlDB.Exec(stmt)
		require.NoError(t, err)
	}

	svc := service.New(config.Load(), db.NewClientFromDB(sqlDB, "sqlite", testLogger()),
		func(context.Context) (agent.Model, error) {
			return &scripted{replies: append([]models.Message{}, replies...)}, nil
		}, testLogger())

	ts := httptest.NewServer(server.New(svc, testLogger()).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestAskEndpoint(t *testing.T) {
	ts := newTestServer(t, models.AssistantMessage("Paris."))

	resp := postJSON(t, ts.URL+"/ask", map[string]any{
		"patient_id": 143,
		"question":   "What is the capital of France?",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Answer string `json:"answer"`
		Error  string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "Paris.", out.Answer)
	assert.Empty(t, out.Error)
}

func TestAskEndpointValidation(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/ask", map[string]any{"question": "no patient"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp2, err := http.Post(ts.URL+"/ask", "application/json", strings.NewReader("not json"))
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestAskEndpointFriendlyFallback(t *testing.T) {
	// Script exhausts immediately, so the cycle fails.
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/ask", map[string]any{
		"patient_id": 143,
		"question":   "anything",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Answer string `json:"answer"`
		Error  string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, service.FallbackAnswer, out.Answer)
	assert.Equal(t, "cycle_failed", out.Error)
}

func TestPatientsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/patients")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var patients []service.Patient
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&patients))
	assert.NotEmpty(t, patients)
}

func TestHealthAndStatsEndpoints(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "sqlite", health["dialect"])

	resp2, err := http.Get(ts.URL + "/stats")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
}

func TestWebsocketStreamsSteps(t *testing.T) {
	const query = "SELECT description FROM treatments WHERE patient_id = 143 LIMIT 100"
	ts := newTestServer(t,
		models.AssistantMessage("list_tables"),
		toolCallMsg(tools.GetSchemaName, `{"table_names":["treatments"]}`),
		toolCallMsg(tools.RunQueryName, fmt.Sprintf(`{"query":%q}`, query)),
		toolCallMsg(tools.RunQueryName, fmt.Sprintf(`{"query":%q}`, query)),
		models.AssistantMessage("The patient had physiotherapy."),
	)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{
		"patient_id": 143,
		"question":   "What treatments has the patient had?",
	}))

	var steps []string
	for {
		var frame struct {
			Type   string `json:"type"`
			From   string `json:"from"`
			To     string `json:"to"`
			Answer string `json:"answer"`
		}
		require.NoError(t, conn.ReadJSON(&frame))
		if frame.Type == "step" {
			steps = append(steps, frame.From+"->"+frame.To)
			continue
		}
		require.Equal(t, "answer", frame.Type)
		assert.Equal(t, "The patient had physiotherapy.", frame.Answer)
		break
	}

	// The whole state walk streamed before the answer.
	assert.Equal(t, []string{
		"classify->list-tables",
		"list-tables->get-schema",
		"get-schema->generate-query",
		"generate-query->check-query",
		"check-query->run-query",
		"run-query->generate-query",
		"generate-query->done",
	}, steps)
}

func TestWebsocketBadFrame(t *testing.T) {
	ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	var frame struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "error", frame.Type)
	assert.NotEmpty(t, frame.Message)
}
