// Package eval implements the arithmetic expression evaluator: scalar or
// element-wise evaluation of a monitor's expression against its already
// computed dependency values.
package eval

import (
	"fmt"
	"math"

	"github.com/Knetic/govaluate"
	"github.com/nkazuki-labs/monitor-agent/internal/value"
)

// EvalError reports a bad expression, a non-finite result, or a vector
// size mismatch. The monitor evaluates to absent; the pass continues.
type EvalError struct {
	Expression string
	Reason     string
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("eval: expression %q: %s", e.Expression, e.Reason)
}

// FreeVariables parses expr and returns the names it reads, without
// evaluating it.
func FreeVariables(expr string) ([]string, error) {
	exp, err := govaluate.NewEvaluableExpression(expr)
	if err != nil {
		return nil, fmt.Errorf("eval: parse %q: %w", expr, err)
	}
	return exp.Vars(), nil
}

// Eval evaluates expr against named dependency values. If any dependency is
// a Vector, all Vector dependencies must share the same child count;
// otherwise it returns a size-mismatch EvalError. Scalars broadcast across
// every vector element. Non-finite results (NaN/±Inf) are rejected per
// element with an absent slot rather than propagated. When the result is a
// Vector and reduction is non-empty ("sum" or "mean"), the reduction is
// applied across the present result elements and attached to the Vector,
// per the monitor's own split_op.
func Eval(expr string, deps map[string]*value.Value, reduction string) (*value.Value, error) {
	exp, err := govaluate.NewEvaluableExpression(expr)
	if err != nil {
		return nil, &EvalError{Expression: expr, Reason: err.Error()}
	}

	vecLen := -1
	for name, v := range deps {
		if !v.IsVector() {
			continue
		}
		n := len(v.Children())
		if vecLen == -1 {
			vecLen = n
		} else if vecLen != n {
			return nil, &EvalError{Expression: expr, Reason: fmt.Sprintf("vector size mismatch on %q: %d vs %d", name, n, vecLen)}
		}
	}

	if vecLen == -1 {
		params := make(map[string]interface{}, len(deps))
		for name, v := range deps {
			f, ok := v.Float()
			if !ok {
				return nil, nil
			}
			params[name] = f
		}
		return evalScalar(exp, expr, params)
	}

	children := make([]*value.Value, vecLen)
	for i := 0; i < vecLen; i++ {
		params := make(map[string]interface{}, len(deps))
		present := true
		for name, v := range deps {
			if v.IsVector() {
				c := v.Children()[i]
				f, ok := c.Float()
				if !ok {
					present = false
					break
				}
				params[name] = f
			} else {
				f, ok := v.Float()
				if !ok {
					present = false
					break
				}
				params[name] = f
			}
		}
		if !present {
			continue
		}
		res, err := evalScalar(exp, expr, params)
		if err != nil {
			return nil, err
		}
		children[i] = res
	}

	var red *value.Value
	if reduction != "" {
		if r, ok := value.ParseReduction(reduction); ok {
			red = value.Reduce(children, r)
		}
	}
	return value.Vector(children, red), nil
}

func evalScalar(exp *govaluate.EvaluableExpression, expr string, params map[string]interface{}) (*value.Value, error) {
	raw, err := exp.Evaluate(params)
	if err != nil {
		return nil, &EvalError{Expression: expr, Reason: err.Error()}
	}
	f, ok := raw.(float64)
	if !ok {
		return nil, &EvalError{Expression: expr, Reason: fmt.Sprintf("non-numeric result %T", raw)}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, nil
	}
	return value.Number(f), nil
}
