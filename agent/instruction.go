package agent

import (
	"github.com/hupe1980/agentpipe/core"
	"github.com/hupe1980/agentpipe/internal/util"
)

// Instruction is a parsed instruction template. Placeholders are {key}
// (required) and {key?} (optional); see ParseInstruction.
type Instruction struct {
	tpl *util.Template
}

// ParseInstruction parses an instruction template. Brace text that is not a
// placeholder stays literal and {{ / }} escape a brace.
func ParseInstruction(text string) (Instruction, error) {
	tpl, err := util.ParseTemplate(text)
	if err != nil {
		return Instruction{}, err
	}
	return Instruction{tpl: tpl}, nil
}

// Text returns the template source.
func (i Instruction) Text() string {
	if i.tpl == nil {
		return ""
	}
	return i.tpl.Source()
}

// RequiredKeys lists the state keys the instruction needs.
func (i Instruction) RequiredKeys() []string {
	if i.tpl == nil {
		return nil
	}
	return i.tpl.RequiredKeys()
}

// OptionalKeys lists the state keys the instruction reads when present.
func (i Instruction) OptionalKeys() []string {
	if i.tpl == nil {
		return nil
	}
	return i.tpl.OptionalKeys()
}

// Resolve renders the instruction against the run state.
func (i Instruction) Resolve(runCtx *core.RunContext) (string, error) {
	if i.tpl == nil {
		return "", nil
	}
	return i.tpl.Render(runCtx.State.Get)
}
