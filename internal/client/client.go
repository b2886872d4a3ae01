// Package client talks to a remote carequery server over its JSON API and
// websocket endpoint.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"carequery/internal/metrics"
	"carequery/internal/service"
)

// Client calls a remote carequery server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client. If baseURL is empty, uses the CAREQUERY_SERVER_URL
// env var or defaults to localhost:9180. Timeout can be configured via
// CAREQUERY_CLIENT_TIMEOUT (default 5m; cycles wait on model calls).
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("CAREQUERY_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:9180"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	timeout := 5 * time.Minute
	if t := os.Getenv("CAREQUERY_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type askRequest struct {
	PatientID int    `json:"patient_id"`
	Question  string `json:"question"`
}

type askResponse struct {
	Answer string `json:"answer"`
	Error  string `json:"error"`
}

// Ask runs one question for one patient on the server and returns the
// answer text. Server-side cycle failures come back as the server's
// fallback answer, not as errors.
func (c *Client) Ask(ctx context.Context, patientID int, question string) (string, error) {
	var resp askResponse
	if err := c.post(ctx, "/ask", askRequest{PatientID: patientID, Question: question}, &resp); err != nil {
		return "", err
	}
	return resp.Answer, nil
}

// Patients fetches the server's patient directory.
func (c *Client) Patients(ctx context.Context) ([]service.Patient, error) {
	var patients []service.Patient
	if err := c.get(ctx, "/patients", &patients); err != nil {
		return nil, err
	}
	return patients, nil
}

// Stats fetches the server's metrics snapshot.
func (c *Client) Stats(ctx context.Context) (metrics.Snapshot, error) {
	var snap metrics.Snapshot
	if err := c.get(ctx, "/stats", &snap); err != nil {
		return metrics.Snapshot{}, err
	}
	return snap, nil
}

// Health reports whether the server is reachable and healthy.
func (c *Client) Health(ctx context.Context) error {
	var health map[string]string
	if err := c.get(ctx, "/healthz", &health); err != nil {
		return err
	}
	if health["status"] != "ok" {
		return fmt.Errorf("server unhealthy: %s", health["status"])
	}
	return nil
}

// StepFrame is one progress update streamed while the server works on a
// question.
type StepFrame struct {
	From string
	To   string
}

// AskStreaming runs one question over the websocket endpoint, invoking
// onStep for each agent transition, and returns the final answer.
func (c *Client) AskStreaming(ctx context.Context, patientID int, question string, onStep func(StepFrame)) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("dial websocket: %w", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	if err := conn.WriteJSON(askRequest{PatientID: patientID, Question: question}); err != nil {
		return "", fmt.Errorf("send question: %w", err)
	}

	for {
		var frame struct {
			Type    string `json:"type"`
			From    string `json:"from"`
			To      string `json:"to"`
			Answer  string `json:"answer"`
			Message string `json:"message"`
		}
		if err := conn.ReadJSON(&frame); err != nil {
			return "", fmt.Errorf("read frame: %w", err)
		}

		switch frame.Type {
		case "step":
			if onStep != nil {
				onStep(StepFrame{From: frame.From, To: frame.To})
			}
		case "answer":
			return frame.Answer, nil
		case "error":
			return "", fmt.Errorf("server error: %s", frame.Message)
		default:
			return "", fmt.Errorf("unexpected frame type %q", frame.Type)
		}
	}
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, result)
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server error: %s - %s", resp.Status, strings.TrimSpace(string(body)))
	}
	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
