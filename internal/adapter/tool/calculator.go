package tool

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"

	"conductor/internal/domain"
)

// CalculatorTool performs basic arithmetic on two operands.
type CalculatorTool struct {
	logger *slog.Logger
}

// NewCalculatorTool creates the calculator tool.
func NewCalculatorTool(logger *slog.Logger) *CalculatorTool {
	return &CalculatorTool{logger: logger}
}

func (t *CalculatorTool) Name() string { return "calculator" }
func (t *CalculatorTool) Description() string {
	return "Perform basic arithmetic: add, subtract, multiply or divide two numbers"
}

func (t *CalculatorTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"operation": {
					"type": "string",
					"enum": ["add", "subtract", "multiply", "divide"],
					"description": "The arithmetic operation"
				},
				"a": {"type": "number", "description": "First operand"},
				"b": {"type": "number", "description": "Second operand"}
			},
			"required": ["operation", "a", "b"]
		}`),
	}
}

type calcParams struct {
	Operation string  `json:"operation"`
	A         float64 `json:"a"`
	B         float64 `json:"b"`
}

var errDivisionByZero = errors.New("division by zero")

func (t *CalculatorTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.calculator", t.logger, params,
		Dispatch(func(p calcParams) string { return p.Operation }, ActionMap[calcParams]{
			"add":      arith(func(a, b float64) (float64, error) { return a + b, nil }),
			"subtract": arith(func(a, b float64) (float64, error) { return a - b, nil }),
			"multiply": arith(func(a, b float64) (float64, error) { return a * b, nil }),
			"divide": arith(func(a, b float64) (float64, error) {
				if b == 0 {
					return 0, errDivisionByZero
				}
				return a / b, nil
			}),
		}),
	)
}

// arith adapts a binary operation to an action handler. The result is a
// bare JSON number, so integral values render without a fraction (555, not 555.0).
func arith(op func(a, b float64) (float64, error)) ActionHandler[calcParams] {
	return func(_ context.Context, p calcParams) (any, error) {
		v, err := op(p.A, p.B)
		if err != nil {
			return nil, err
		}
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return nil, errors.New("result is not a finite number")
		}
		return v, nil
	}
}
