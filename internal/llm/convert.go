package llm

import (
	"github.com/tmc/langchaingo/llms"

	"carequery/internal/models"
)

// toContent converts the conversation log into langchaingo message contents.
func toContent(msgs []models.Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case models.RoleSystem:
			out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, m.Content))
		case models.RoleUser:
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, m.Content))
		case models.RoleTool:
			out = append(out, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: m.ToolCallID,
					Name:       m.ToolName,
					Content:    m.Content,
				}},
			})
		case models.RoleAssistant:
			mc := llms.MessageContent{Role: llms.ChatMessageTypeAI}
			if m.Content != "" {
				mc.Parts = append(mc.Parts, llms.TextContent{Text: m.Content})
			}
			for _, call := range m.ToolCalls {
				mc.Parts = append(mc.Parts, llms.ToolCall{
					ID:   call.ID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      call.Name,
						Arguments: call.Arguments,
					},
				})
			}
			out = append(out, mc)
		}
	}
	return out
}

// fromChoice converts a model response choice into an assistant message.
// Tool calls without a provider-assigned ID get a fresh correlation ID.
func fromChoice(choice *llms.ContentChoice) models.Message {
	msg := models.Message{
		ID:      models.NewID(),
		Role:    models.RoleAssistant,
		Content: choice.Content,
	}
	for _, call := range choice.ToolCalls {
		if call.FunctionCall == nil {
			continue
		}
		id := call.ID
		if id == "" {
			id = models.NewID()
		}
		args := call.FunctionCall.Arguments
		if args == "" {
			args = "{}"
		}
		msg.ToolCalls = append(msg.ToolCalls, models.ToolCall{
			ID:        id,
			Name:      call.FunctionCall.Name,
			Arguments: args,
		})
	}
	return msg
}
