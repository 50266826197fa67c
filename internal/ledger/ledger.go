// Package ledger is the rule engine's C5: applying a list of effects to
// session state atomically (per the best-effort/per-sub-effect
// semantics of spec.md §4.5), updating the canonical treasury_base
// scalar, recomputing the display-only per-currency wallet, and writing
// one audit entry.
package ledger

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/Djimon/DnDBastionManager/internal/audit"
	"github.com/Djimon/DnDBastionManager/internal/currency"
	"github.com/Djimon/DnDBastionManager/internal/model"
)

// Ledger applies effects against a currency model compiled once per
// config load.
type Ledger struct {
	Currency *currency.Model
	Audit    *audit.Log
}

func New(cur *currency.Model, auditLog *audit.Log) *Ledger {
	return &Ledger{Currency: cur, Audit: auditLog}
}

// Result is the outcome of ApplyEffects.
type Result struct {
	Success bool
	Errors  []string
}

// ApplyEffects applies effects to state in order, per §4.5. It never
// aborts on a malformed sub-effect — it records an error for that one
// field and continues — so Result.Success is errors.empty, not
// "every effect fully applied."
func (l *Ledger) ApplyEffects(state *model.SessionState, effects []*model.Effect, ctx audit.Context) Result {
	res := Result{Success: true}
	if state == nil || state.Bastion == nil {
		res.Success = false
		res.Errors = append(res.Errors, "no session loaded")
		return res
	}
	b := state.Bastion

	var changes []string
	var logParts []string

	for _, eff := range effects {
		if eff == nil {
			continue
		}
		for cur, delta := range eff.Currency {
			factor, ok := l.Currency.Factor[cur]
			if !ok {
				res.Errors = append(res.Errors, fmt.Sprintf("unknown currency %q", cur))
				continue
			}
			deltaBase := new(big.Rat).Mul(big.NewRat(int64(delta), 1), factor)
			if !deltaBase.IsInt() {
				res.Errors = append(res.Errors, fmt.Sprintf("currency %q delta %d does not convert to an integral base amount", cur, delta))
				continue
			}
			b.TreasuryBase += int(deltaBase.Num().Int64() / deltaBase.Denom().Int64())
			if delta != 0 {
				changes = append(changes, fmt.Sprintf("%+d %s", delta, cur))
			}
		}

		if eff.HasItem() {
			applyItemDelta(b, *eff.Item, *eff.Qty)
			if *eff.Qty != 0 {
				changes = append(changes, fmt.Sprintf("%+d %s", *eff.Qty, *eff.Item))
			}
		} else if eff.Item != nil || eff.Qty != nil {
			res.Errors = append(res.Errors, "effect has item without qty (or vice versa)")
		}

		if eff.HasStat() {
			applyStatDelta(b, *eff.Stat, *eff.Delta)
			if *eff.Delta != 0 {
				changes = append(changes, fmt.Sprintf("%+d stat:%s", *eff.Delta, *eff.Stat))
			}
		} else if eff.Stat != nil || eff.Delta != nil {
			res.Errors = append(res.Errors, "effect has stat without delta (or vice versa)")
		}

		if eff.Log != nil && *eff.Log != "" {
			logParts = append(logParts, *eff.Log)
		}
	}

	l.RecomputeWallet(b)

	res.Success = len(res.Errors) == 0
	fullCtx := ctx
	fullCtx.Changes = strings.Join(changes, ", ")
	if fullCtx.LogText == "" {
		fullCtx.LogText = strings.Join(logParts, "; ")
	}
	if fullCtx.Result == "" {
		if res.Success {
			fullCtx.Result = "success"
		} else {
			fullCtx.Result = "partial"
		}
	}
	l.Audit.AddEntry(state, state.CurrentTurn, fullCtx)

	return res
}

// ProjectedTreasuryBase reports what treasury_base would become if
// effects were applied, without mutating state — the policy check
// add_build_facility/add_upgrade_facility use to decide whether a cost
// needs allow_negative confirmation before it is actually charged.
func (l *Ledger) ProjectedTreasuryBase(state *model.SessionState, effects []*model.Effect) int {
	projected := state.Bastion.TreasuryBase
	for _, eff := range effects {
		if eff == nil {
			continue
		}
		for cur, delta := range eff.Currency {
			factor, ok := l.Currency.Factor[cur]
			if !ok {
				continue
			}
			deltaBase := new(big.Rat).Mul(big.NewRat(int64(delta), 1), factor)
			if !deltaBase.IsInt() {
				continue
			}
			projected += int(deltaBase.Num().Int64() / deltaBase.Denom().Int64())
		}
	}
	return projected
}

func applyItemDelta(b *model.Bastion, item string, qty int) {
	for i, it := range b.Inventory {
		if it.Item == item {
			it.Qty += qty
			if it.Qty <= 0 {
				b.Inventory = append(b.Inventory[:i], b.Inventory[i+1:]...)
			}
			return
		}
	}
	if qty > 0 {
		b.Inventory = append(b.Inventory, &model.InventoryItem{Item: item, Qty: qty})
	}
}

func applyStatDelta(b *model.Bastion, stat string, delta int) {
	if b.Stats == nil {
		b.Stats = map[string]int{}
	}
	newVal := b.Stats[stat] + delta
	if desc, ok := b.StatsRegistry[stat]; ok && desc != nil {
		if desc.Min != nil && newVal < *desc.Min {
			newVal = *desc.Min
		}
		if desc.Max != nil && newVal > *desc.Max {
			newVal = *desc.Max
		}
	}
	b.Stats[stat] = newVal
}

// RecomputeWallet rebuilds bastion.treasury as a display projection of
// treasury_base, per §4.5 note 3: a greedy "make change" breakdown from
// the largest-factor currency down when treasury_base >= 0, or a single
// entry in the base currency when it's negative.
func (l *Ledger) RecomputeWallet(b *model.Bastion) {
	wallet := map[string]int{}
	for _, t := range l.Currency.Types {
		wallet[t] = 0
	}

	if b.TreasuryBase < 0 {
		wallet[l.Currency.Base] = b.TreasuryBase
		b.Treasury = wallet
		return
	}

	type entry struct {
		currency string
		factor   *big.Rat
	}
	entries := make([]entry, 0, len(l.Currency.Factor))
	for c, f := range l.Currency.Factor {
		entries = append(entries, entry{c, f})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].factor.Cmp(entries[j].factor) > 0 })

	remaining := big.NewRat(int64(b.TreasuryBase), 1)
	for i, e := range entries {
		if e.factor.Sign() == 0 {
			continue
		}
		if i == len(entries)-1 {
			// smallest unit absorbs whatever remains.
			q := new(big.Rat).Quo(remaining, e.factor)
			wallet[e.currency] = int(roundRat(q))
			continue
		}
		q := new(big.Rat).Quo(remaining, e.factor)
		count := floorRat(q)
		wallet[e.currency] = int(count)
		used := new(big.Rat).Mul(big.NewRat(count, 1), e.factor)
		remaining.Sub(remaining, used)
	}
	b.Treasury = wallet
}

func floorRat(r *big.Rat) int64 {
	q := new(big.Int).Quo(r.Num(), r.Denom())
	if r.Sign() < 0 {
		check := new(big.Rat).SetInt(q)
		if check.Cmp(r) != 0 {
			q.Sub(q, big.NewInt(1))
		}
	}
	return q.Int64()
}

func roundRat(r *big.Rat) int64 {
	f, _ := r.Float64()
	if f >= 0 {
		return int64(f + 0.5)
	}
	return -int64(-f + 0.5)
}
