// Package agent defines the boundary this repository calls out to for the
// external LLM-agent collaborator described by the gateway's chat tool. Real
// model plumbing, provider selection, and conversation persistence are out of
// scope; this package only fixes the shape other components depend on.
package agent

import (
	"context"
	"fmt"

	"github.com/mcpfederation/gateway/pkg/mcpmgr"
)

// Reply is the result of one Agent.Run call.
type Reply struct {
	Content        string
	Model          string
	ConversationID string
	MessageID      string
}

// Agent runs one turn of conversation against a set of Toolkits the caller
// has already resolved via mcpmgr.Manager.GetToolkit. An Agent decides which
// tool, if any, to invoke; callers never inspect its internals.
type Agent interface {
	Run(ctx context.Context, message, conversationID, modelKey string, toolkits []*mcpmgr.Toolkit) (*Reply, error)
}

// EchoAgent is a deterministic stand-in for a real LLM-backed agent. It never
// calls a model and never invokes a tool; it exists so the chat tool and the
// gateway's toolkit wiring are testable without a live provider.
type EchoAgent struct {
	// DefaultModel is reported back when the caller supplies no modelKey.
	DefaultModel string
}

// NewEchoAgent constructs an EchoAgent with the given default model label.
func NewEchoAgent(defaultModel string) *EchoAgent {
	if defaultModel == "" {
		defaultModel = "echo-stub"
	}
	return &EchoAgent{DefaultModel: defaultModel}
}

// Run echoes message back as the final text, after touching every toolkit's
// Capabilities() so its wiring to a live Manager is exercised even though no
// tool is actually invoked.
func (a *EchoAgent) Run(ctx context.Context, message, conversationID, modelKey string, toolkits []*mcpmgr.Toolkit) (*Reply, error) {
	model := modelKey
	if model == "" {
		model = a.DefaultModel
	}
	if conversationID == "" {
		conversationID = "echo-conversation"
	}
	total := 0
	for _, tk := range toolkits {
		if tk == nil {
			continue
		}
		total += len(tk.Capabilities())
	}
	return &Reply{
		Content:        message,
		Model:          model,
		ConversationID: conversationID,
		MessageID:      fmt.Sprintf("%s-%d-caps", conversationID, total),
	}, nil
}
