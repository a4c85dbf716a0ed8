// Package ai abstracts the hosted LLM vendor behind a request/response
// gateway returning answer text plus token counts.
package ai

import "context"

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Result is one completed generation with the vendor-reported token usage
// the metering layer prices.
type Result struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// Gateway is the black-box vendor boundary. Implementations must honor ctx
// and carry their own request timeout; failures are surfaced, never retried.
type Gateway interface {
	Complete(ctx context.Context, system string, history []Message, userTurn string) (*Result, error)
}
