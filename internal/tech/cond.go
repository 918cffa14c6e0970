package tech

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// condEnv declares the variables a rule condition may use.
var condEnv = map[string]any{
	"width":    0.0,
	"length":   0.0,
	"multicut": false,
}

// compileCondition compiles a boolean rule condition such as
// "width >= 10 && length > 20".
func compileCondition(src string) (*vm.Program, error) {
	return expr.Compile(src, expr.Env(condEnv), expr.AsBool())
}

func evalCondition(prog *vm.Program, ctx Context) (bool, error) {
	out, err := expr.Run(prog, map[string]any{
		"width":    ctx.Width,
		"length":   ctx.Length,
		"multicut": ctx.MultiCut,
	})
	if err != nil {
		return false, err
	}
	ok, isBool := out.(bool)
	if !isBool {
		return false, fmt.Errorf("condition returned %T", out)
	}
	return ok, nil
}
