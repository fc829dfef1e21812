package filter

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/rzbill/flagstream/internal/eventsource"
)

// Filter is a compiled CEL program evaluated against each message. The zero
// Filter is disabled and matches everything.
//
// Variables available to expressions:
//
//	event   string  event type ("message" by default)
//	id      string  event id, "" when absent
//	text    string  raw data
//	json    dyn     data parsed as JSON, null when it is not JSON
//	size    int     len(text)
//	now_ms  int     evaluation time in unix milliseconds
type Filter struct {
	prog    cel.Program
	expr    string
	enabled bool
}

// New compiles expr. An empty expression yields a disabled Filter.
func New(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Filter{}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("event", cel.StringType),
		cel.Variable("id", cel.StringType),
		cel.Variable("text", cel.StringType),
		cel.Variable("json", cel.DynType),
		cel.Variable("size", cel.IntType),
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return Filter{}, err
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return Filter{}, fmt.Errorf("filter: compile %q: %w", expr, iss.Err())
	}
	switch ast.OutputType().Kind() {
	case types.BoolKind, types.DynKind:
	default:
		return Filter{}, fmt.Errorf("filter: %q must evaluate to bool, got %s", expr, ast.OutputType())
	}
	prog, err := env.Program(ast)
	if err != nil {
		return Filter{}, err
	}
	return Filter{prog: prog, expr: expr, enabled: true}, nil
}

// Enabled reports whether the filter has an expression.
func (f Filter) Enabled() bool { return f.enabled }

// String returns the source expression.
func (f Filter) String() string { return f.expr }

// Match evaluates the filter. Evaluation errors and non-bool results count as
// no match.
func (f Filter) Match(event, id, data string) bool {
	if !f.enabled {
		return true
	}
	var jsonObj any
	_ = json.Unmarshal([]byte(data), &jsonObj)
	out, _, err := f.prog.Eval(map[string]any{
		"event":  event,
		"id":     id,
		"text":   data,
		"json":   jsonObj,
		"size":   int64(len(data)),
		"now_ms": time.Now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

// Wrap returns a Handler that only passes matching messages to h. Skipped
// messages are still released by the dispatcher. Other callbacks pass through.
func Wrap(h eventsource.Handler, f Filter) eventsource.Handler {
	if !f.enabled {
		return h
	}
	return &filtered{Handler: h, f: f}
}

type filtered struct {
	eventsource.Handler
	f Filter
}

func (h *filtered) OnMessage(event string, msg *eventsource.MessageEvent) error {
	if !h.f.Match(event, msg.ID, msg.Data) {
		return nil
	}
	return h.Handler.OnMessage(event, msg)
}
