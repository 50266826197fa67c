package catalog

import (
	"fmt"

	"github.com/Djimon/DnDBastionManager/internal/model"
)

// Validator walks packs in the order they are added and folds valid
// entries into a Catalog, following the cascade policy from §4.4:
// invalid effect -> drop effect; invalid order -> drop order; invalid
// facility -> drop facility, and then any facility whose parent just
// vanished. It runs in two modes: Sanitize (report + drop) or strict
// (report + reject, used by validate_packs).
type Validator struct {
	Sanitize bool
	Warnings []string
	Errors   []string
}

func (v *Validator) warn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}

func (v *Validator) fail(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// AddPack validates one pack against the merged config and, unless a
// fatal structural error rejects the whole pack, folds its surviving
// facilities/mechanics into cat.
func (v *Validator) AddPack(p *Pack, cfg *Config, cat *Catalog) {
	if p.PackID == "" || p.Name == "" {
		v.fail("pack at %s missing pack_id/name", p.Path)
		return
	}

	// First pass: facilities declared in THIS pack, by id, so parent
	// references can resolve within the same pack even before the
	// catalog-wide map is updated.
	localByID := map[string]*FacilityDef{}
	for _, f := range p.Facilities {
		if f == nil || f.ID == "" {
			v.warn("pack %s: facility missing id, dropped", p.PackID)
			continue
		}
		localByID[f.ID] = f
	}

	validFacilities := map[string]*FacilityDef{}
	for _, f := range p.Facilities {
		if f == nil || f.ID == "" {
			continue
		}
		if !v.validateFacilityShape(p, f, localByID, cfg) {
			continue
		}
		if _, exists := cat.Facilities[f.ID]; exists {
			v.warn("pack %s: duplicate facility id %q ignored", p.PackID, f.ID)
			continue
		}
		f.SourcePack = p.PackID
		validFacilities[f.ID] = f
	}

	// Cascade: drop any facility whose parent didn't survive validation
	// (either never existed or was dropped above), repeating until a
	// fixed point since a chain can cascade more than one level.
	for {
		removedAny := false
		for id, f := range validFacilities {
			if f.Tier == 1 || f.Parent == "" {
				continue
			}
			if _, ok := validFacilities[f.Parent]; ok {
				continue
			}
			if _, ok := cat.Facilities[f.Parent]; ok {
				continue
			}
			v.warn("pack %s: facility %q dropped, parent %q missing", p.PackID, id, f.Parent)
			delete(validFacilities, id)
			removedAny = true
		}
		if !removedAny {
			break
		}
	}

	for id, f := range validFacilities {
		cat.Facilities[id] = f
	}

	for _, raw := range p.CustomMechanics {
		mech, err := unmarshalMechanic(raw, p.PackID)
		if err != nil {
			v.warn("pack %s: %v", p.PackID, err)
			continue
		}
		switch m := mech.(type) {
		case EventTableMechanic:
			if _, exists := cat.Events[m.Table.ID]; exists {
				v.warn("pack %s: duplicate event table/id %q ignored", p.PackID, m.Table.ID)
				continue
			}
			for _, ev := range m.Table.Events {
				cat.Events[ev.ID] = ev
			}
		case FormulaEngineMechanic:
			if _, exists := cat.Formulas[m.Formula.ID]; exists {
				v.warn("pack %s: duplicate formula id %q ignored", p.PackID, m.Formula.ID)
				continue
			}
			cat.Formulas[m.Formula.ID] = &m.Formula
		case StatCounterMechanic:
			if _, exists := cat.StatCounters[m.StatKey]; exists {
				v.warn("pack %s: duplicate stat key %q ignored", p.PackID, m.StatKey)
				continue
			}
			cat.StatCounters[m.StatKey] = model_StatCounterEntry{
				Name:       m.Descriptor.Name,
				Min:        m.Descriptor.Min,
				Max:        m.Descriptor.Max,
				SourcePack: m.Descriptor.SourcePack,
				Start:      m.Start,
			}
		case MarketTrackerMechanic:
			// recognized but not yet exercised by any component; carried
			// through for forward compatibility, nothing to index.
		}
	}

	found := false
	for _, id := range cat.LoadedPacks {
		if id == p.PackID {
			found = true
			break
		}
	}
	if !found {
		cat.LoadedPacks = append(cat.LoadedPacks, p.PackID)
	}
}

// validateFacilityShape checks the structural/semantic rules of §4.4
// for one facility, walking into its orders and effects and dropping
// the invalid parts under sanitize; under strict mode any violation
// rejects the whole facility (and is recorded as an error, not just a
// warning).
func (v *Validator) validateFacilityShape(p *Pack, f *FacilityDef, local map[string]*FacilityDef, cfg *Config) bool {
	report := v.warn
	if !v.Sanitize {
		report = v.fail
	}

	if f.Tier <= 0 {
		report("pack %s: facility %q has invalid tier %d", p.PackID, f.ID, f.Tier)
		if !v.Sanitize {
			return false
		}
	}
	if f.Tier == 1 && f.Parent != "" {
		report("pack %s: facility %q is tier 1 but declares a parent", p.PackID, f.ID)
		if !v.Sanitize {
			return false
		}
		f.Parent = ""
	}
	if f.Tier > 1 {
		parent, ok := local[f.Parent]
		if f.Parent == "" || !ok {
			report("pack %s: facility %q (tier %d) has no valid parent in pack", p.PackID, f.ID, f.Tier)
			if !v.Sanitize {
				return false
			}
			return false
		}
		if parent.Tier >= f.Tier {
			report("pack %s: facility %q parent tier %d is not lower", p.PackID, f.ID, parent.Tier)
			if !v.Sanitize {
				return false
			}
		}
	}
	if f.Build.Cost == nil {
		report("pack %s: facility %q build.cost missing", p.PackID, f.ID)
		if !v.Sanitize {
			return false
		}
		f.Build.Cost = map[string]int{}
	}
	if f.Build.DurationTurns <= 0 {
		report("pack %s: facility %q build.duration_turns must be positive", p.PackID, f.ID)
		return false
	}
	if f.NPCSlots < 0 {
		report("pack %s: facility %q npc_slots must be >= 0", p.PackID, f.ID)
		if !v.Sanitize {
			return false
		}
		f.NPCSlots = 0
	}

	validOrders := make([]*OrderDef, 0, len(f.Orders))
	for _, o := range f.Orders {
		if v.validateOrder(p, f, o, cfg) {
			validOrders = append(validOrders, o)
		}
	}
	f.Orders = validOrders
	return true
}

func (v *Validator) validateOrder(p *Pack, f *FacilityDef, o *OrderDef, cfg *Config) bool {
	report := v.warn
	if !v.Sanitize {
		report = v.fail
	}
	if o == nil || o.ID == "" {
		report("pack %s: facility %q has an order with no id, dropped", p.PackID, f.ID)
		return false
	}
	if o.DurationTurns <= 0 {
		report("pack %s: order %s/%s duration_turns must be positive, dropped", p.PackID, f.ID, o.ID)
		return false
	}
	if o.Outcome.CheckProfile != "" {
		if _, ok := cfg.CheckProfiles[o.Outcome.CheckProfile]; !ok {
			report("pack %s: order %s/%s references unknown check_profile %q, dropped", p.PackID, f.ID, o.ID, o.Outcome.CheckProfile)
			return false
		}
	}
	for _, bucket := range []*OutcomeBucket{o.Outcome.OnSuccess, o.Outcome.OnFailure, o.Outcome.OnCriticalSuccess, o.Outcome.OnCriticalFailure} {
		if bucket == nil {
			continue
		}
		valid := make([]*model.Effect, 0, len(bucket.Effects))
		for _, eff := range bucket.Effects {
			if v.validateEffect(p, f, o, eff) {
				valid = append(valid, eff)
			}
		}
		bucket.Effects = valid
	}
	return true
}

func (v *Validator) validateEffect(p *Pack, f *FacilityDef, o *OrderDef, eff *model.Effect) bool {
	if eff == nil || eff.IsEmpty() {
		v.warn("pack %s: order %s/%s has an empty effect, dropped", p.PackID, f.ID, o.ID)
		return false
	}
	if (eff.Item != nil) != (eff.Qty != nil) {
		v.warn("pack %s: order %s/%s effect has item without qty (or vice versa), dropped", p.PackID, f.ID, o.ID)
		return false
	}
	if (eff.Stat != nil) != (eff.Delta != nil) {
		v.warn("pack %s: order %s/%s effect has stat without delta (or vice versa), dropped", p.PackID, f.ID, o.ID)
		return false
	}
	return true
}
