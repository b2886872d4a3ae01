// Package models defines the conversation data model shared by the agent,
// the model client, and the external surfaces.
package models

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Role tags a message with its speaker.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a structured request embedded in an assistant message, naming
// a tool and its arguments. ID correlates the call with its eventual result.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON object text
}

// StringArg decodes a single string-valued argument from the call's
// argument mapping.
func (c ToolCall) StringArg(key string) (string, error) {
	var args map[string]any
	if err := json.Unmarshal([]byte(c.Arguments), &args); err != nil {
		return "", fmt.Errorf("decode tool call arguments: %w", err)
	}
	val, ok := args[key]
	if !ok {
		return "", fmt.Errorf("tool call argument %q missing", key)
	}
	s, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("tool call argument %q is not a string", key)
	}
	return s, nil
}

// StringSliceArg decodes a list-of-strings argument. A plain string value is
// accepted and returned as a single-element slice, since models frequently
// emit one table name without the surrounding array.
func (c ToolCall) StringSliceArg(key string) ([]string, error) {
	var args map[string]any
	if err := json.Unmarshal([]byte(c.Arguments), &args); err != nil {
		return nil, fmt.Errorf("decode tool call arguments: %w", err)
	}
	val, ok := args[key]
	if !ok {
		return nil, fmt.Errorf("tool call argument %q missing", key)
	}
	switch v := val.(type) {
	case string:
		return []string{v}, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("tool call argument %q contains a non-string element", key)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("tool call argument %q is not a string or list", key)
	}
}

// Message is one turn in a conversation. Messages are immutable once
// appended to a Conversation.
type Message struct {
	// ID identifies the message within its conversation. A later message
	// carrying the ID of an earlier one supersedes it (see Conversation.Append).
	ID      string     `json:"id"`
	Role    Role       `json:"role"`
	Content string     `json:"content"`
	// ToolCalls holds pending tool requests on an assistant message.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// ToolCallID links a tool-result message back to its invoking call.
	ToolCallID string `json:"tool_call_id,omitempty"`
	// ToolName names the tool that produced a tool-result message.
	ToolName string `json:"tool_name,omitempty"`
}

// NewID returns a fresh message or tool-call correlation identifier.
func NewID() string {
	return uuid.NewString()
}

// SystemMessage builds a system-role message.
func SystemMessage(content string) Message {
	return Message{ID: NewID(), Role: RoleSystem, Content: content}
}

// UserMessage builds a user-role message.
func UserMessage(content string) Message {
	return Message{ID: NewID(), Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant-role message with free-text content.
func AssistantMessage(content string) Message {
	return Message{ID: NewID(), Role: RoleAssistant, Content: content}
}

// AssistantToolCall builds an assistant message carrying a single tool call.
func AssistantToolCall(call ToolCall) Message {
	return Message{ID: NewID(), Role: RoleAssistant, ToolCalls: []ToolCall{call}}
}

// ToolResult builds a tool-role message answering the call with the given
// correlation identifier.
func ToolResult(callID, name, content string) Message {
	return Message{ID: NewID(), Role: RoleTool, Content: content, ToolCallID: callID, ToolName: name}
}

// FirstToolCall returns the message's first pending tool call.
func (m Message) FirstToolCall() (ToolCall, bool) {
	if len(m.ToolCalls) == 0 {
		return ToolCall{}, false
	}
	return m.ToolCalls[0], true
}
