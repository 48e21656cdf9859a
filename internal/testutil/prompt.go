package testutil

import (
	"context"
	"sync"

	"dt-go/internal/dt"
)

// ScriptedPrompter answers prompts with a fixed list of inputs, in order.
// Once the inputs run out it answers with an empty line.
type ScriptedPrompter struct {
	mu      sync.Mutex
	inputs  []string
	Asked   []string
	Options [][]string
}

var _ dt.Prompter = (*ScriptedPrompter)(nil)

func NewScriptedPrompter(inputs ...string) *ScriptedPrompter {
	return &ScriptedPrompter{inputs: inputs}
}

func (p *ScriptedPrompter) Prompt(ctx context.Context, question string, options []string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Asked = append(p.Asked, question)
	p.Options = append(p.Options, append([]string(nil), options...))
	if len(p.inputs) == 0 {
		return "", nil
	}
	in := p.inputs[0]
	p.inputs = p.inputs[1:]
	return in, nil
}
