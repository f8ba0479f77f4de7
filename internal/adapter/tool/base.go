package tool

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"conductor/internal/infra/tracer"
)

// ActionHandler handles one action (or operation) of a tool.
type ActionHandler[P any] func(ctx context.Context, p P) (any, error)

// ActionMap maps action names to handlers.
type ActionMap[P any] map[string]ActionHandler[P]

// Dispatch builds an Execute handler that routes on the action named by
// getAction:
//
//	return Execute(ctx, "tool.calculator", t.logger, params,
//	    Dispatch(func(p calcParams) string { return p.Operation }, ActionMap[calcParams]{
//	        "add": t.add,
//	    }),
//	)
func Dispatch[P any](
	getAction func(P) string,
	actions ActionMap[P],
) func(ctx context.Context, span trace.Span, p P) (any, error) {
	valid := make([]string, 0, len(actions))
	for name := range actions {
		valid = append(valid, name)
	}
	sort.Strings(valid)

	return func(ctx context.Context, span trace.Span, p P) (any, error) {
		action := getAction(p)
		span.SetAttributes(tracer.StringAttr("tool.action", action))

		handler, ok := actions[action]
		if !ok {
			return nil, BadAction(action, valid...)
		}
		return handler(ctx, p)
	}
}

// BadAction reports an unknown action along with the valid ones.
func BadAction(got string, valid ...string) error {
	return fmt.Errorf("unknown operation %q (want: %s)", got, strings.Join(valid, ", "))
}
