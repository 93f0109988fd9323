package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shiftwise/shiftwise/internal/provider"
)

// ContinueToolName is the pseudo-tool the model calls to keep working past
// a single reply. It is handled inside the loop: it never reaches the
// governor, so it leaves no cooldown or rate-limit footprint.
const ContinueToolName = "continue_work"

var continueSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"remaining_tasks": {
			"type": "array",
			"items": {"type": "string"},
			"description": "Short descriptions of the work still to do, in order."
		}
	},
	"required": ["remaining_tasks"]
}`)

func continueDefinition() provider.ToolDefinition {
	return provider.ToolDefinition{
		Name:        ContinueToolName,
		Description: "Continue working in the next turn. Call this when the current reply is done but tasks remain.",
		Parameters:  continueSchema,
	}
}

type continueArgs struct {
	RemainingTasks []string `json:"remaining_tasks"`
}

// continueAck builds the tool-result text acknowledging a continuation.
// Malformed arguments are tolerated: a continuation must never abort a run.
func continueAck(args json.RawMessage) string {
	var c continueArgs
	if err := json.Unmarshal(args, &c); err != nil || len(c.RemainingTasks) == 0 {
		return "Continuing. Proceed with the remaining work."
	}
	return fmt.Sprintf("Continuing. Remaining tasks: %s. Proceed with the next one.",
		strings.Join(c.RemainingTasks, "; "))
}
