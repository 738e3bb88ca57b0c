package query

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/syntrixbase/syntrix-client/pkg/model"
)

// compiler turns query filters into one CEL program over the variable "doc".
type compiler struct {
	env *cel.Env
}

// celEnv is built once and shared; a cel.Env is safe for concurrent use.
var celEnv = sync.OnceValues(func() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("doc", cel.MapType(cel.StringType, cel.DynType)),
		cel.CrossTypeNumericComparisons(true),
	)
})

func newCompiler() (*compiler, error) {
	env, err := celEnv()
	if err != nil {
		return nil, fmt.Errorf("CEL environment error: %w", err)
	}
	return &compiler{env: env}, nil
}

// compileFilters ANDs all filters together. No filters yields a nil program (match all).
func (c *compiler) compileFilters(filters []model.Filter) (cel.Program, error) {
	if len(filters) == 0 {
		return nil, nil
	}

	expressions := make([]string, 0, len(filters))
	for _, f := range filters {
		if !f.Validate() {
			return nil, fmt.Errorf("%w: bad filter %q", model.ErrInvalidQuery, f.String())
		}
		expr, err := filterToExpression(f)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrInvalidQuery, err)
		}
		expressions = append(expressions, expr)
	}

	ast, issues := c.env.Compile(strings.Join(expressions, " && "))
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: CEL compile error: %v", model.ErrInvalidQuery, issues.Err())
	}
	prg, err := c.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: CEL program creation error: %v", model.ErrInvalidQuery, err)
	}
	return prg, nil
}

// evaluate reports whether data satisfies prg. Evaluation errors (missing
// fields, mismatched types) count as no match.
func evaluate(prg cel.Program, data map[string]interface{}) bool {
	if prg == nil {
		return true
	}
	out, _, err := prg.Eval(map[string]interface{}{"doc": data})
	if err != nil {
		return false
	}
	result, ok := out.Value().(bool)
	return ok && result
}

func filterToExpression(f model.Filter) (string, error) {
	valStr, err := formatValue(f.Value)
	if err != nil {
		return "", err
	}

	field := "doc"
	for _, p := range strings.Split(f.Field, ".") {
		field += "['" + celQuoteEscaper.Replace(p) + "']"
	}

	switch f.Op {
	case model.OpEq:
		return fmt.Sprintf("%s == %s", field, valStr), nil
	case model.OpNe:
		return fmt.Sprintf("%s != %s", field, valStr), nil
	case model.OpGt:
		return fmt.Sprintf("%s > %s", field, valStr), nil
	case model.OpGte:
		return fmt.Sprintf("%s >= %s", field, valStr), nil
	case model.OpLt:
		return fmt.Sprintf("%s < %s", field, valStr), nil
	case model.OpLte:
		return fmt.Sprintf("%s <= %s", field, valStr), nil
	case model.OpIn:
		return fmt.Sprintf("%s in %s", field, valStr), nil
	case model.OpContains:
		return fmt.Sprintf("%s in %s", valStr, field), nil
	default:
		return "", fmt.Errorf("unsupported operator: %s", f.Op)
	}
}

func formatValue(v interface{}) (string, error) {
	switch val := v.(type) {
	case nil:
		return "null", nil
	case string:
		return "'" + celQuoteEscaper.Replace(val) + "'", nil
	case int:
		return fmt.Sprintf("%d", val), nil
	case int32:
		return fmt.Sprintf("%d", val), nil
	case int64:
		return fmt.Sprintf("%d", val), nil
	case float32:
		return formatFloat(float64(val)), nil
	case float64:
		return formatFloat(val), nil
	case bool:
		return fmt.Sprintf("%v", val), nil
	case []interface{}:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			s, err := formatValue(item)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return fmt.Sprintf("[%s]", strings.Join(parts, ", ")), nil
	default:
		return "", fmt.Errorf("unsupported value type: %T", v)
	}
}

var celQuoteEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// formatFloat keeps a decimal point so CEL parses the literal as a double.
func formatFloat(f float64) string {
	s := fmt.Sprintf("%v", f)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
