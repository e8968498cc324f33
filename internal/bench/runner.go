package bench

import (
	"context"

	"github.com/ratnathegod/inference-profile-bench/internal/providers"
)

// Conversation sends one conversation turn and reports the outcome
type Conversation interface {
	Converse(ctx context.Context, modelID string, messages []providers.Message) providers.Outcome
}

// Runner executes single iterations: pick a prompt, call once, pause.
type Runner struct {
	client  Conversation
	prompts []string
	pacing  Pacing
}

func NewRunner(client Conversation, prompts []string, pacing Pacing) (*Runner, error) {
	if err := validatePrompts(prompts); err != nil {
		return nil, err
	}
	return &Runner{client: client, prompts: append([]string(nil), prompts...), pacing: pacing}, nil
}

// SelectPrompt is a pure function of index with period len(prompts)
func (r *Runner) SelectPrompt(index int) string {
	n := len(r.prompts)
	return r.prompts[((index%n)+n)%n]
}

// RunIteration performs exactly one call and then waits the per-call delay
// whatever the outcome.
func (r *Runner) RunIteration(ctx context.Context, index int, modelID string) providers.Outcome {
	prompt := r.SelectPrompt(index)
	out := r.client.Converse(ctx, modelID, []providers.Message{providers.UserMessage(prompt)})
	_ = r.pacing.afterCall(ctx, index)
	return out
}
