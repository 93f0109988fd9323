package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shiftwise/shiftwise/internal/capability"
	"github.com/shiftwise/shiftwise/internal/tool"
)

// Interface guards.
var (
	_ tool.Tool                 = (*SendMessage)(nil)
	_ tool.ConfirmationPrompter = (*SendMessage)(nil)
)

// maxMessageLength bounds outbound message bodies.
const maxMessageLength = 2000

// SendMessage queues a message to a team channel. Outbound messages are
// confirmed inline: the user sees exactly what the agent is about to say
// on their behalf before it leaves the building.
type SendMessage struct {
	Store Store
}

type sendMessageArgs struct {
	Channel string `json:"channel"`
	Body    string `json:"body"`
}

func (t *SendMessage) Name() string { return "send_message" }

func (t *SendMessage) Description() string {
	return "Send a message to a team channel."
}

func (t *SendMessage) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"channel": {"type": "string", "description": "Target channel name"},
			"body":    {"type": "string", "description": "Message text"}
		},
		"required": ["channel", "body"],
		"additionalProperties": false
	}`)
}

func (t *SendMessage) RequiredCapability() string    { return capability.CapMessageSend }
func (t *SendMessage) RequiresConfirmation() bool    { return true }
func (t *SendMessage) RequiresApproval() bool        { return false }
func (t *SendMessage) Cooldown() tool.CooldownSpec   { return tool.CooldownSpec{} }
func (t *SendMessage) RateLimit() tool.RateLimitSpec { return tool.RateLimitSpec{MaxPerHour: 20} }

func (t *SendMessage) Validate(args json.RawMessage) error {
	parsed, err := parseSendMessageArgs(args)
	if err != nil {
		return err
	}
	if strings.TrimSpace(parsed.Channel) == "" {
		return fmt.Errorf("channel must not be empty")
	}
	if strings.TrimSpace(parsed.Body) == "" {
		return fmt.Errorf("body must not be empty")
	}
	if len(parsed.Body) > maxMessageLength {
		return fmt.Errorf("body exceeds %d characters", maxMessageLength)
	}
	return nil
}

func (t *SendMessage) Execute(ctx context.Context, args json.RawMessage, ec tool.ExecContext) (tool.Result, error) {
	parsed, err := parseSendMessageArgs(args)
	if err != nil {
		return nil, err
	}

	if ec.DryRun {
		return messageResult{Channel: parsed.Channel, Preview: true}, nil
	}

	id, err := t.Store.QueueMessage(ctx, parsed.Channel, parsed.Body, ec.UserID)
	if err != nil {
		return nil, err
	}
	return messageResult{Channel: parsed.Channel, ID: id}, nil
}

type messageResult struct {
	Channel string
	ID      int64
	Preview bool
}

func (t *SendMessage) FormatResult(res tool.Result) string {
	r, ok := res.(messageResult)
	if !ok {
		return ""
	}
	if r.Preview {
		return fmt.Sprintf("Would send a message to #%s.", r.Channel)
	}
	return fmt.Sprintf("Queued message %d for #%s.", r.ID, r.Channel)
}

func (t *SendMessage) ConfirmationPrompt(args json.RawMessage) string {
	parsed, err := parseSendMessageArgs(args)
	if err != nil {
		return "Send a team message (arguments unreadable)."
	}
	body := parsed.Body
	if len(body) > 200 {
		body = body[:200] + "…"
	}
	return fmt.Sprintf("Send to #%s: %q?", parsed.Channel, body)
}

func parseSendMessageArgs(args json.RawMessage) (sendMessageArgs, error) {
	var parsed sendMessageArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return sendMessageArgs{}, fmt.Errorf("parse arguments: %w", err)
	}
	return parsed, nil
}
