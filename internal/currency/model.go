// Package currency compiles a currency config (types plus directed
// conversion edges) into a base-unit factor map: the rule engine's C2.
package currency

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/Djimon/DnDBastionManager/internal/catalog"
)

// FallbackBase is the artificial base currency the model falls back to
// whenever the configured graph does not cleanly resolve to one base
// (disconnected components, contradictory path products), per §4.2.
const FallbackBase = "[Curr]"

// Model is the compiled currency model: the type list, the chosen base,
// and the factor of one unit of each type in base units.
type Model struct {
	Types  []string
	Base   string
	Factor map[string]*big.Rat
}

// FactorFloat returns the factor for a currency as a float64, 0 if the
// currency is unknown. Used where integer-only ledger arithmetic isn't
// required (display projections, cost estimates).
func (m *Model) FactorFloat(currency string) float64 {
	r, ok := m.Factor[currency]
	if !ok {
		return 0
	}
	f, _ := r.Float64()
	return f
}

// IsIntegral reports whether every factor is an integer, the condition
// under which treasury_base can be kept as a plain integer scalar.
func (m *Model) IsIntegral() bool {
	for _, f := range m.Factor {
		if !f.IsInt() {
			return false
		}
	}
	return true
}

// Build compiles a Model from a currency config by BFS over the
// conversion edges, treated as bidirectional per §3/§4.2: each (u,v,r)
// contributes u->v at factor r and v->u at factor 1/r. On any
// inconsistency (unreachable type, contradictory path product) it falls
// back to a single artificial base currency rather than failing.
func Build(cfg catalog.CurrencyConfig) (*Model, []string) {
	var warnings []string

	types := append([]string{}, cfg.Types...)
	if len(types) == 0 {
		return &Model{Types: []string{FallbackBase}, Base: FallbackBase, Factor: map[string]*big.Rat{FallbackBase: big.NewRat(1, 1)}}, warnings
	}

	base := chooseBase(types, cfg.Conversion)

	adj := map[string][]edge{}
	for _, e := range cfg.Conversion {
		if e.Rate <= 0 {
			warnings = append(warnings, fmt.Sprintf("currency conversion %s->%s has non-positive rate, ignored", e.From, e.To))
			continue
		}
		r := big.NewRat(int64(e.Rate), 1)
		adj[e.From] = append(adj[e.From], edge{to: e.To, factor: r})
		adj[e.To] = append(adj[e.To], edge{to: e.From, factor: new(big.Rat).Inv(r)})
	}

	factor := map[string]*big.Rat{base: big.NewRat(1, 1)}
	queue := []string{base}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		curFactor := factor[cur]
		for _, e := range adj[cur] {
			next := new(big.Rat).Mul(curFactor, e.factor)
			if existing, ok := factor[e.to]; ok {
				if existing.Cmp(next) != 0 {
					warnings = append(warnings, fmt.Sprintf("contradictory conversion path for currency %q, falling back to artificial base", e.to))
					return fallbackModel(types), append(warnings, "currency graph inconsistent")
				}
				continue
			}
			factor[e.to] = next
			queue = append(queue, e.to)
		}
	}

	for _, t := range types {
		if _, ok := factor[t]; !ok {
			warnings = append(warnings, fmt.Sprintf("currency %q unreachable from base %q, falling back to artificial base", t, base))
			return fallbackModel(types), warnings
		}
	}

	return &Model{Types: types, Base: base, Factor: factor}, warnings
}

type edge struct {
	to     string
	factor *big.Rat
}

func fallbackModel(realTypes []string) *Model {
	factor := map[string]*big.Rat{FallbackBase: big.NewRat(1, 1)}
	for _, t := range realTypes {
		factor[t] = big.NewRat(1, 1)
	}
	types := append([]string{FallbackBase}, realTypes...)
	return &Model{Types: types, Base: FallbackBase, Factor: factor}
}

// chooseBase picks the currency type that never appears as a `to` in
// any conversion edge (the legacy-pack detection rule from §4.2).
// Ambiguity (zero or more than one candidate) falls back to the first
// declared type, matching "ambiguity -> configured default" with the
// declaration order standing in for an explicit default when none is
// configured.
func chooseBase(types []string, edges []catalog.ConversionEdge) string {
	isTarget := map[string]bool{}
	for _, e := range edges {
		isTarget[e.To] = true
	}
	var candidates []string
	for _, t := range types {
		if !isTarget[t] {
			candidates = append(candidates, t)
		}
	}
	sort.Strings(candidates)
	if len(candidates) == 1 {
		return candidates[0]
	}
	return types[0]
}
