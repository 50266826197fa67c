// Package formula is the rule engine's C6: binding formula inputs,
// running calculations through the expression evaluator, and resolving
// effect templates into a concrete effect list the ledger applies.
package formula

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/Djimon/DnDBastionManager/internal/catalog"
	"github.com/Djimon/DnDBastionManager/internal/currency"
	"github.com/Djimon/DnDBastionManager/internal/expr"
	"github.com/Djimon/DnDBastionManager/internal/model"
)

// Engine binds inputs, runs calculations, and resolves effect templates
// for formulas drawn from a Catalog.
type Engine struct {
	Catalog  *catalog.Catalog
	Eval     *expr.Evaluator
	Currency *currency.Model
}

func New(cat *catalog.Catalog, evaluator *expr.Evaluator, cur *currency.Model) *Engine {
	return &Engine{Catalog: cat, Eval: evaluator, Currency: cur}
}

// Result is the outcome of running one formula.
type Result struct {
	Effects []*model.Effect
	Errors  []string
}

// Run resolves formula id against the given session/bastion context and
// any pre-stored user inputs (order.FormulaInputs[formulaID]), producing
// the fully-resolved effect list §4.6 describes. checkRoll is used by
// `check` source inputs; it may be nil when the formula has none.
func (e *Engine) Run(formulaID string, state *model.SessionState, userInputs map[string]float64, checkRoll *int) Result {
	res := Result{}
	def, ok := e.Catalog.Formulas[formulaID]
	if !ok {
		res.Errors = append(res.Errors, fmt.Sprintf("unknown formula %q", formulaID))
		return res
	}

	vars := map[string]float64{}
	for _, in := range def.Inputs {
		v, err := e.resolveInput(in, state, userInputs, checkRoll)
		if err != nil {
			res.Errors = append(res.Errors, err.Error())
			continue
		}
		vars[in.Name] = v
	}

	for _, calc := range def.Calculations {
		sink := &expr.ErrorSink{}
		var v float64
		if calc.Formula != "" {
			v = e.Eval.Eval(calc.Formula, vars, sink)
		} else {
			v = e.evalConditions(calc.Conditions, vars, sink)
		}
		for _, msg := range sink.Errors {
			res.Errors = append(res.Errors, fmt.Sprintf("calculation %q: %s", calc.Name, msg))
		}
		vars[calc.Name] = v
	}

	for _, tmpl := range def.Effects {
		eff := resolveEffectTemplate(tmpl, vars)
		if eff != nil {
			res.Effects = append(res.Effects, eff)
		}
	}

	return res
}

func (e *Engine) evalConditions(conds []catalog.FormulaConditional, vars map[string]float64, sink *expr.ErrorSink) float64 {
	clauses := make([]expr.Clause, 0, len(conds))
	var elseExpr string
	hasElse := false
	for _, c := range conds {
		if c.If == "" && (c.Else != "" || c.IsElse) {
			elseExpr = c.Else
			hasElse = true
			continue
		}
		clauses = append(clauses, expr.Clause{If: c.If, Then: c.Then, ThenFormula: c.ThenFormula})
	}
	return e.Eval.EvalConditional(clauses, elseExpr, hasElse, vars, sink)
}

func (e *Engine) resolveInput(in catalog.FormulaInput, state *model.SessionState, userInputs map[string]float64, checkRoll *int) (float64, error) {
	switch in.Source {
	case "number":
		if v, ok := userInputs[in.Name]; ok {
			return v, nil
		}
		if in.Default != nil {
			return *in.Default, nil
		}
		return 0, fmt.Errorf("missing required input %q", in.Name)
	case "check":
		if checkRoll != nil {
			return float64(*checkRoll), nil
		}
		if v, ok := userInputs[in.Name]; ok {
			return v, nil
		}
		if in.Default != nil {
			return *in.Default, nil
		}
		return 0, fmt.Errorf("missing required check input %q", in.Name)
	case "stat":
		if state != nil && state.Bastion != nil {
			return float64(state.Bastion.Stats[in.Key]), nil
		}
		return 0, nil
	case "item":
		if state != nil && state.Bastion != nil {
			for _, it := range state.Bastion.Inventory {
				if it.Item == in.Key {
					return float64(it.Qty), nil
				}
			}
		}
		return 0, nil
	case "currency":
		if in.Default != nil {
			v := *in.Default
			if e.Currency != nil && in.Key != "" {
				v *= e.Currency.FactorFloat(in.Key)
			}
			return v, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("formula input %q has unknown source %q", in.Name, in.Source)
	}
}

var templateVarPattern = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// resolveEffectTemplate substitutes ${name} references in every string
// field of tmpl against vars, rounds numeric currency/item/stat fields
// to integers (round-half-to-even per spec.md §4.6's "bankers-rounded"
// wording, see DESIGN.md's rounding-mode decision), and drops fields
// whose resolved value is empty.
func resolveEffectTemplate(tmpl map[string]any, vars map[string]float64) *model.Effect {
	eff := &model.Effect{}
	for key, raw := range tmpl {
		str, isStr := raw.(string)
		var resolved string
		var numeric float64
		hasNumeric := false
		if isStr {
			resolved = substituteVars(str, vars)
			if f, err := strconv.ParseFloat(strings.TrimSpace(resolved), 64); err == nil {
				numeric = f
				hasNumeric = true
			}
		} else if f, ok := raw.(float64); ok {
			numeric = f
			hasNumeric = true
		}

		switch key {
		case "log":
			if resolved != "" {
				v := resolved
				eff.Log = &v
			}
		case "stat", "item":
			if resolved == "" {
				continue
			}
			v := resolved
			if key == "stat" {
				eff.Stat = &v
			} else {
				eff.Item = &v
			}
		case "delta", "qty":
			if !hasNumeric {
				continue
			}
			n := int(roundBankers(numeric))
			if key == "delta" {
				eff.Delta = &n
			} else {
				eff.Qty = &n
			}
		case "event", "random_event", "trigger":
			if resolved == "" {
				continue
			}
			v := resolved
			switch key {
			case "event":
				eff.Event = &v
			case "random_event":
				eff.RandomEvent = &v
			case "trigger":
				eff.Trigger = &v
			}
		default:
			// anything else is a currency key.
			if !hasNumeric {
				continue
			}
			if eff.Currency == nil {
				eff.Currency = map[string]int{}
			}
			eff.Currency[key] = int(roundBankers(numeric))
		}
	}
	if eff.IsEmpty() {
		return nil
	}
	return eff
}

func substituteVars(s string, vars map[string]float64) string {
	return templateVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := templateVarPattern.FindStringSubmatch(match)[1]
		v, ok := vars[name]
		if !ok {
			return "0"
		}
		if v == math.Trunc(v) {
			return strconv.FormatFloat(v, 'f', 0, 64)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	})
}

// roundBankers rounds half to even, per the spec text (see DESIGN.md:
// the original Python implementation actually rounds half away from
// zero, but the specification's wording governs here).
func roundBankers(v float64) float64 {
	return math.RoundToEven(v)
}

// ExpandTrigger resolves a {trigger: id, ...rest} effect per §4.6's
// trigger-expansion rule: the formula produces 0..N synthetic effects,
// and the residual fields of the triggering effect (everything but
// `trigger` itself) are appended as one more effect.
func (e *Engine) ExpandTrigger(eff *model.Effect, state *model.SessionState, userInputs map[string]float64, checkRoll *int) ([]*model.Effect, []string) {
	if eff.Trigger == nil {
		return []*model.Effect{eff}, nil
	}
	result := e.Run(*eff.Trigger, state, userInputs, checkRoll)
	out := append([]*model.Effect{}, result.Effects...)

	residual := *eff
	residual.Trigger = nil
	if !residual.IsEmpty() {
		out = append(out, &residual)
	}
	return out, result.Errors
}
