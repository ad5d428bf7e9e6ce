package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/joestump/awschat/internal/chat"
)

// Tool describes one callable tool as advertised by a registry.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// Caller dispatches a tool invocation to the registry that advertised it.
type Caller interface {
	Call(ctx context.Context, name string, input json.RawMessage) (output json.RawMessage, isError bool, err error)
}

// ToolSet is the set of tools active for one request. Every tool in a set
// comes from the same stage's registry.
type ToolSet struct {
	stage  chat.Stage
	caller Caller
	order  []string
	tools  map[string]Tool
}

// NewToolSet builds a ToolSet. Duplicate names keep the first definition.
func NewToolSet(stage chat.Stage, caller Caller, tools ...Tool) *ToolSet {
	ts := &ToolSet{
		stage:  stage,
		caller: caller,
		tools:  make(map[string]Tool, len(tools)),
	}
	for _, t := range tools {
		if _, dup := ts.tools[t.Name]; dup {
			continue
		}
		ts.tools[t.Name] = t
		ts.order = append(ts.order, t.Name)
	}
	return ts
}

// Stage returns the stage the tools were sourced from.
func (ts *ToolSet) Stage() chat.Stage { return ts.stage }

// Len returns the number of tools.
func (ts *ToolSet) Len() int { return len(ts.order) }

// Tools returns the tools in the order the registry listed them.
func (ts *ToolSet) Tools() []Tool {
	out := make([]Tool, len(ts.order))
	for i, name := range ts.order {
		out[i] = ts.tools[name]
	}
	return out
}

// Lookup returns the named tool.
func (ts *ToolSet) Lookup(name string) (Tool, bool) {
	t, ok := ts.tools[name]
	return t, ok
}

// Call invokes the named tool on the set's registry.
func (ts *ToolSet) Call(ctx context.Context, name string, input json.RawMessage) (json.RawMessage, bool, error) {
	if _, ok := ts.tools[name]; !ok {
		return nil, false, fmt.Errorf("tool %q is not available on %s", name, ts.stage)
	}
	return ts.caller.Call(ctx, name, input)
}
