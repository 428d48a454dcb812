package tools

import (
	"context"
	"math"
	"strconv"
)

// CalculatorTool evaluates arithmetic expressions with a restricted parser
type CalculatorTool struct{}

// NewCalculatorTool creates the calculator tool
func NewCalculatorTool() *CalculatorTool {
	return &CalculatorTool{}
}

func (t *CalculatorTool) Describe() Descriptor {
	return Descriptor{
		Name: "calculator",
		Description: "Evaluate an arithmetic expression. Supports + - * / % ^, parentheses " +
			"and abs, round, min, max, pow, int, float, sqrt.",
		Params: []Param{
			{Name: "expression", Type: "string", Description: "Expression to evaluate, e.g. (3 + 4) * 2", Required: true},
		},
	}
}

func (t *CalculatorTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	expression := stringArg(args, "expression")
	if expression == "" {
		return Result{Success: false, Output: "No expression provided."}, nil
	}

	v, err := evalExpr(expression)
	if err != nil {
		return Result{Success: false, Output: "Calculation error: " + err.Error()}, nil
	}

	return Result{Success: true, Output: formatNumber(v)}, nil
}

func formatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
