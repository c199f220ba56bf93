package runner

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/hupe1980/agentpipe/core"
)

// Result is the outcome of one synchronous run.
type Result struct {
	RunID  string       `json:"run_id"`
	Query  string       `json:"query"`
	Events []core.Event `json:"events"`
	State  *core.State  `json:"state"`

	outputKey string
}

// Output returns the value stored under key.
func (r *Result) Output(key string) (any, bool) {
	if r.State == nil {
		return nil, false
	}
	return r.State.Get(key)
}

// Final returns the run's published artifact: the value of the configured
// output key if present, else the value of the last key written during the
// run, else the text of the last final response.
func (r *Result) Final() any {
	if r.outputKey != "" {
		if v, ok := r.Output(r.outputKey); ok {
			return v
		}
	}
	if r.State != nil {
		if _, v, ok := r.State.LastWritten(); ok {
			return v
		}
	}
	for i := len(r.Events) - 1; i >= 0; i-- {
		if r.Events[i].IsFinalResponse() {
			return r.Events[i].Text()
		}
	}
	return nil
}

// Text renders Final for display. Strings are returned verbatim, other
// values as indented JSON.
func (r *Result) Text() string {
	switch v := r.Final().(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// Steps renders a one-line summary per non-partial event.
func (r *Result) Steps() string {
	var sb strings.Builder
	for _, ev := range r.Events {
		if ev.IsPartial() {
			continue
		}
		fmt.Fprintf(&sb, "[%s]", ev.Author)
		if ev.Branch != "" {
			fmt.Fprintf(&sb, " (%s)", ev.Branch)
		}
		switch {
		case len(ev.GetFunctionCalls()) > 0:
			for _, fc := range ev.GetFunctionCalls() {
				fmt.Fprintf(&sb, " call %s(%s)", fc.Name, fc.Arguments)
			}
		case len(ev.GetFunctionResponses()) > 0:
			for _, fr := range ev.GetFunctionResponses() {
				if fr.Error != "" {
					fmt.Fprintf(&sb, " %s failed: %s", fr.Name, fr.Error)
				} else {
					fmt.Fprintf(&sb, " %s returned", fr.Name)
				}
			}
		case ev.CustomMetadata[core.MetadataLoopOutcome] != "":
			fmt.Fprintf(&sb, " loop %s after %s iterations", ev.CustomMetadata[core.MetadataLoopOutcome], ev.CustomMetadata[core.MetadataLoopIterations])
		default:
			fmt.Fprintf(&sb, " %s", firstLine(ev.Text(), 100))
		}
		for _, k := range slices.Sorted(maps.Keys(ev.Actions.StateDelta)) {
			fmt.Fprintf(&sb, " {%s}", k)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func firstLine(s string, n int) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i] + " ..."
	}
	if utf8.RuneCountInString(s) > n {
		s = string([]rune(s)[:n]) + "..."
	}
	return s
}
