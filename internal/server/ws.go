package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"carequery/internal/agent"
	"carequery/internal/service"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // same trust boundary as the JSON API
	},
}

// wsQuestion is one inbound question frame.
type wsQuestion struct {
	PatientID int    `json:"patient_id"`
	Question  string `json:"question"`
}

// wsFrame is one outbound frame. Type is "step" while the agent works,
// then "answer" or "error" to close out the question.
type wsFrame struct {
	Type    string `json:"type"`
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Answer  string `json:"answer,omitempty"`
	Message string `json:"message,omitempty"`
}

// handleWS upgrades the connection and serves question frames until the
// client disconnects. Questions on one connection run sequentially, so
// step frames are never interleaved across questions.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("websocket read failed", "error", err)
			}
			return
		}

		var q wsQuestion
		if err := json.Unmarshal(data, &q); err != nil || q.PatientID <= 0 || q.Question == "" {
			if err := conn.WriteJSON(wsFrame{Type: "error", Message: "expected {patient_id, question}"}); err != nil {
				return
			}
			continue
		}

		answer, err := s.svc.RunCycleObserved(r.Context(), q.PatientID, q.Question, func(from, to agent.State) {
			// Observer runs on the cycle goroutine, so writing here is safe.
			_ = conn.WriteJSON(wsFrame{Type: "step", From: from.String(), To: to.String()})
		})
		if err != nil {
			s.logger.Error("cycle failed", "patient_id", q.PatientID, "error", err)
			if err := conn.WriteJSON(wsFrame{Type: "error", Message: service.Friendly(err)}); err != nil {
				return
			}
			continue
		}
		if err := conn.WriteJSON(wsFrame{Type: "answer", Answer: answer}); err != nil {
			return
		}
	}
}
