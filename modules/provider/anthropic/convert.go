package anthropic

import (
	"encoding/json"
	"log/slog"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/shiftwise/shiftwise/internal/provider"
)

// toMessageParams builds the SDK request. Leading system messages become
// the dedicated System field; the rest of the conversation is converted
// in order.
func toMessageParams(req provider.CompletionRequest, cfg *Config, logger *slog.Logger) sdkanthropic.MessageNewParams {
	system, rest := liftSystemPrompt(req.Messages)

	maxTokens := cfg.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	params := sdkanthropic.MessageNewParams{
		Model:     sdkanthropic.Model(cfg.Model),
		MaxTokens: int64(maxTokens),
		System:    system,
		Messages:  toConversation(rest, logger),
	}
	if req.Temperature != nil {
		params.Temperature = sdkanthropic.Float(*req.Temperature)
	}
	if len(req.Stop) > 0 {
		params.StopSequences = req.Stop
	}
	if len(req.Tools) > 0 {
		params.Tools = toToolParams(req.Tools)
	}
	return params
}

// liftSystemPrompt peels the leading run of system messages off the
// conversation and returns them as System text blocks.
func liftSystemPrompt(msgs []provider.LLMMessage) ([]sdkanthropic.TextBlockParam, []provider.LLMMessage) {
	n := 0
	for n < len(msgs) && msgs[n].Role == provider.MessageRoleSystem {
		n++
	}
	system := make([]sdkanthropic.TextBlockParam, 0, n)
	for _, m := range msgs[:n] {
		system = append(system, sdkanthropic.TextBlockParam{Text: m.Content})
	}
	return system, msgs[n:]
}

// toConversation converts the post-system conversation. The API wants all
// tool results for a turn inside a single user message, so consecutive
// tool messages are folded together. System messages appearing
// mid-conversation have no representation and are dropped with a warning.
func toConversation(msgs []provider.LLMMessage, logger *slog.Logger) []sdkanthropic.MessageParam {
	out := make([]sdkanthropic.MessageParam, 0, len(msgs))

	i := 0
	for i < len(msgs) {
		switch msgs[i].Role {
		case provider.MessageRoleUser:
			out = append(out, sdkanthropic.NewUserMessage(sdkanthropic.NewTextBlock(msgs[i].Content)))
			i++
		case provider.MessageRoleAssistant:
			out = append(out, assistantTurn(msgs[i]))
			i++
		case provider.MessageRoleTool:
			j := i
			for j < len(msgs) && msgs[j].Role == provider.MessageRoleTool {
				j++
			}
			out = append(out, toolResultTurn(msgs[i:j]))
			i = j
		case provider.MessageRoleSystem:
			if logger != nil {
				logger.Warn("dropping mid-conversation system message", "index", i)
			}
			i++
		default:
			i++
		}
	}
	return out
}

func toolResultTurn(results []provider.LLMMessage) sdkanthropic.MessageParam {
	blocks := make([]sdkanthropic.ContentBlockParamUnion, 0, len(results))
	for _, r := range results {
		blocks = append(blocks, sdkanthropic.NewToolResultBlock(r.ToolID, r.Content, false))
	}
	return sdkanthropic.MessageParam{
		Role:    sdkanthropic.MessageParamRoleUser,
		Content: blocks,
	}
}

// assistantTurn renders an assistant message, with any tool calls as
// tool_use blocks after the text.
func assistantTurn(msg provider.LLMMessage) sdkanthropic.MessageParam {
	var blocks []sdkanthropic.ContentBlockParamUnion
	if msg.Content != "" {
		blocks = append(blocks, sdkanthropic.NewTextBlock(msg.Content))
	}
	for _, call := range msg.ToolCalls {
		// json.RawMessage marshals as-is, so arguments are not
		// double-encoded by the SDK.
		args := any(call.Arguments)
		if len(call.Arguments) == 0 {
			args = json.RawMessage("{}")
		}
		blocks = append(blocks, sdkanthropic.NewToolUseBlock(call.ID, args, call.Name))
	}
	return sdkanthropic.NewAssistantMessage(blocks...)
}

func toToolParams(defs []provider.ToolDefinition) []sdkanthropic.ToolUnionParam {
	out := make([]sdkanthropic.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		p := &sdkanthropic.ToolParam{Name: d.Name}
		if d.Description != "" {
			p.Description = sdkanthropic.String(d.Description)
		}
		if len(d.Parameters) > 0 {
			p.InputSchema = toInputSchema(d.Parameters)
		}
		out = append(out, sdkanthropic.ToolUnionParam{OfTool: p})
	}
	return out
}

// toInputSchema maps a raw JSON Schema onto ToolInputSchemaParam. Fields
// the param struct does not model ($defs, oneOf, additionalProperties,
// enum) survive through ExtraFields.
func toInputSchema(raw json.RawMessage) sdkanthropic.ToolInputSchemaParam {
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return sdkanthropic.ToolInputSchemaParam{}
	}

	var schema sdkanthropic.ToolInputSchemaParam
	if props, ok := fields["properties"]; ok {
		schema.Properties = props
		delete(fields, "properties")
	}
	if raw, ok := fields["required"].([]any); ok {
		names := make([]string, 0, len(raw))
		for _, v := range raw {
			if s, ok := v.(string); ok {
				names = append(names, s)
			}
		}
		schema.Required = names
	}
	delete(fields, "required")
	// The param struct pins "type" to "object" on its own.
	delete(fields, "type")

	if len(fields) > 0 {
		schema.ExtraFields = fields
	}
	return schema
}

// fromMessage flattens a completed Message. Multiple text blocks are
// newline-joined.
func fromMessage(msg *sdkanthropic.Message) provider.CompletionResponse {
	resp := provider.CompletionResponse{
		FinishReason: finishReasonFor(msg.StopReason),
		Usage: provider.TokenUsage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}

	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case sdkanthropic.TextBlock:
			if resp.Content != "" {
				resp.Content += "\n"
			}
			resp.Content += b.Text
		case sdkanthropic.ToolUseBlock:
			resp.ToolCalls = append(resp.ToolCalls, provider.ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: b.Input,
			})
		}
	}
	return resp
}

func finishReasonFor(reason sdkanthropic.StopReason) provider.FinishReason {
	switch reason {
	case sdkanthropic.StopReasonMaxTokens:
		return provider.FinishReasonLength
	case sdkanthropic.StopReasonToolUse:
		return provider.FinishReasonToolUse
	case sdkanthropic.StopReasonRefusal:
		return provider.FinishReasonFiltering
	default:
		// end_turn, stop_sequence and anything unrecognized.
		return provider.FinishReasonStop
	}
}
