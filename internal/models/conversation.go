package models

// Context carries the read-only parameters of a single question-answer cycle.
type Context struct {
	PatientID int
	Dialect   string
	RowLimit  int
}

// DefaultRowLimit caps generated queries when no limit is configured.
const DefaultRowLimit = 100

// Conversation is the ordered message log of one cycle plus its read-only
// context. It is created at the start of a cycle, owned exclusively by the
// agent for that cycle, and discarded once a final answer is produced.
type Conversation struct {
	ctx  Context
	msgs []Message
}

// NewConversation creates an empty conversation for the given cycle context.
// A zero or negative row limit falls back to DefaultRowLimit.
func NewConversation(ctx Context) *Conversation {
	if ctx.RowLimit <= 0 {
		ctx.RowLimit = DefaultRowLimit
	}
	return &Conversation{ctx: ctx}
}

// Context returns the cycle's read-only context.
func (c *Conversation) Context() Context {
	return c.ctx
}

// Append adds messages to the log. A message carrying the ID of an existing
// entry replaces that entry instead, so a review step can supersede the
// draft it corrects while leaving exactly one pending tool call in the log.
// All other messages are immutable once appended.
func (c *Conversation) Append(msgs ...Message) {
	for _, msg := range msgs {
		if i, ok := c.indexOf(msg.ID); ok {
			c.msgs[i] = msg
			continue
		}
		c.msgs = append(c.msgs, msg)
	}
}

func (c *Conversation) indexOf(id string) (int, bool) {
	if id == "" {
		return 0, false
	}
	for i, m := range c.msgs {
		if m.ID == id {
			return i, true
		}
	}
	return 0, false
}

// Messages returns a copy of the message log.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.msgs))
	copy(out, c.msgs)
	return out
}

// Len returns the number of messages in the log.
func (c *Conversation) Len() int {
	return len(c.msgs)
}

// Last returns the most recent message, or a zero Message for an empty log.
func (c *Conversation) Last() Message {
	if len(c.msgs) == 0 {
		return Message{}
	}
	return c.msgs[len(c.msgs)-1]
}

// PendingToolCalls returns the tool calls that have no matching tool-result
// message yet. A terminated conversation must have none.
func (c *Conversation) PendingToolCalls() []ToolCall {
	answered := make(map[string]bool)
	for _, m := range c.msgs {
		if m.Role == RoleTool && m.ToolCallID != "" {
			answered[m.ToolCallID] = true
		}
	}
	var pending []ToolCall
	for _, m := range c.msgs {
		for _, call := range m.ToolCalls {
			if !answered[call.ID] {
				pending = append(pending, call)
			}
		}
	}
	return pending
}
