// Package catalog compiles base configuration, settings overrides and
// content packs into an immutable Catalog and a merged Config, and
// validates them on the way in. It is the Go home for C3 (loader) and
// C4 (validator) of the rule engine.
package catalog

import (
	"encoding/json"
	"fmt"

	"github.com/Djimon/DnDBastionManager/internal/model"
)

// BuildSpec is the cost/duration pair carried by a FacilityDef's build
// block and, for upgrade targets, inherited from the target's own build
// block.
type BuildSpec struct {
	Cost          map[string]int `json:"cost"`
	DurationTurns int            `json:"duration_turns"`
}

// OrderDef is the catalog-side definition of one order a facility can run.
type OrderDef struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	DurationTurns int      `json:"duration_turns"`
	MinNPCLevel   *int     `json:"min_npc_level,omitempty"`
	Outcome       Outcome  `json:"outcome"`
}

// Outcome is the outcome-bucket table an order resolves against.
type Outcome struct {
	CheckProfile      string         `json:"check_profile,omitempty"`
	OnSuccess         *OutcomeBucket `json:"on_success,omitempty"`
	OnFailure         *OutcomeBucket `json:"on_failure,omitempty"`
	OnCriticalSuccess *OutcomeBucket `json:"on_critical_success,omitempty"`
	OnCriticalFailure *OutcomeBucket `json:"on_critical_failure,omitempty"`
}

// OutcomeBucket is the list of effects an outcome bucket applies.
type OutcomeBucket struct {
	Effects []*model.Effect `json:"effects"`
}

// FacilityDef is an immutable facility definition loaded from a pack.
type FacilityDef struct {
	ID                    string     `json:"id"`
	Name                  string     `json:"name"`
	Tier                  int        `json:"tier"`
	Parent                string     `json:"parent,omitempty"`
	Build                 BuildSpec  `json:"build"`
	NPCSlots              int        `json:"npc_slots"`
	NPCAllowedProfessions []string   `json:"npc_allowed_professions,omitempty"`
	Orders                []*OrderDef `json:"orders,omitempty"`
	SourcePack            string     `json:"-"`
}

// CheckProfileLevel is one level override (or the default) within a
// CheckProfile: dc plus the critical roll sets.
type CheckProfileLevel struct {
	DC          int   `json:"dc"`
	CritSuccess []int `json:"crit_success"`
	CritFail    []int `json:"crit_fail"`
}

// CheckProfile is a dice-roll template, optionally overridden per NPC
// experience level.
type CheckProfile struct {
	Sides      int                           `json:"sides"`
	Default    CheckProfileLevel             `json:"default"`
	Levels     map[string]*CheckProfileLevel `json:"-"`
}

// LevelFor resolves the effective dc/crit sets for a named experience
// level, merging the level override over the default per-field.
func (c *CheckProfile) LevelFor(levelName string) CheckProfileLevel {
	out := c.Default
	if lvl, ok := c.Levels[levelName]; ok && lvl != nil {
		if lvl.DC != 0 {
			out.DC = lvl.DC
		}
		if lvl.CritSuccess != nil {
			out.CritSuccess = lvl.CritSuccess
		}
		if lvl.CritFail != nil {
			out.CritFail = lvl.CritFail
		}
	}
	return out
}

// EventTable is a named, flat list of narrative events sampled by id.
type EventTable struct {
	ID     string       `json:"id"`
	Events []EventEntry `json:"events"`
}

// EventEntry is one narrative event a pack declares.
type EventEntry struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// EventGroup is a named, weighted list of event references sampled by
// group id.
type EventGroup struct {
	ID      string              `json:"id"`
	Entries []WeightedEventRef `json:"entries"`
}

// WeightedEventRef is one entry of an event group: an event id plus its
// sampling weight (non-positive or missing defaults to 1).
type WeightedEventRef struct {
	EventID string `json:"event_id"`
	Weight  int    `json:"weight"`
}

// FormulaDef is the catalog-side definition of a formula usable from a
// {trigger: id} effect.
type FormulaDef struct {
	ID           string              `json:"id"`
	Inputs       []FormulaInput      `json:"inputs"`
	Calculations []FormulaCalculation `json:"calculations"`
	Effects      []map[string]any    `json:"effects"`
}

// FormulaInput declares one named input a formula consumes.
type FormulaInput struct {
	Name    string  `json:"name"`
	Source  string  `json:"source"` // number | check | stat | item | currency
	Key     string  `json:"key,omitempty"`
	Default *float64 `json:"default,omitempty"`
}

// FormulaCalculation is one step of a formula's calculation pipeline.
type FormulaCalculation struct {
	Name       string               `json:"name"`
	Formula    string               `json:"formula,omitempty"`
	Conditions []FormulaConditional `json:"conditions,omitempty"`
}

// FormulaConditional is one {if, then|then_formula} clause, with an
// optional trailing else.
type FormulaConditional struct {
	If         string  `json:"if,omitempty"`
	Then       *float64 `json:"then,omitempty"`
	ThenFormula string  `json:"then_formula,omitempty"`
	Else       string  `json:"else,omitempty"`
	IsElse     bool    `json:"-"`
}

// Mechanic is the sum type for custom_mechanics entries: a pack mechanic
// is exactly one of these four kinds, so unlike Effect this is modeled
// as a genuine interface rather than a struct of optional fields.
type Mechanic interface {
	MechanicType() string
}

// EventTableMechanic wraps an EventTable declared by a pack.
type EventTableMechanic struct{ Table EventTable }

func (EventTableMechanic) MechanicType() string { return "event_table" }

// FormulaEngineMechanic wraps a FormulaDef declared by a pack.
type FormulaEngineMechanic struct{ Formula FormulaDef }

func (FormulaEngineMechanic) MechanicType() string { return "formula_engine" }

// StatCounterMechanic declares a custom stat tracked on the bastion.
type StatCounterMechanic struct {
	StatKey  string
	Descriptor model.StatDescriptor
	Start    int
}

func (StatCounterMechanic) MechanicType() string { return "stat_counter" }

// MarketTrackerMechanic declares a tracked market/commodity series. No
// component in this engine consumes it yet beyond carrying it through
// the catalog; it is recognized so packs that declare one still load.
type MarketTrackerMechanic struct {
	ID     string
	Config map[string]any
}

func (MarketTrackerMechanic) MechanicType() string { return "market_tracker" }

// unmarshalMechanic decodes one custom_mechanics entry by its "type"
// discriminator.
func unmarshalMechanic(raw json.RawMessage, packID string) (Mechanic, error) {
	var head struct {
		Type string          `json:"type"`
		ID   string          `json:"id"`
		Name string          `json:"name"`
		Config json.RawMessage `json:"config"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("custom_mechanics entry in pack %s: %w", packID, err)
	}
	switch head.Type {
	case "event_table":
		var cfg struct {
			Events []EventEntry `json:"events"`
		}
		_ = json.Unmarshal(head.Config, &cfg)
		id := head.ID
		if id == "" {
			id = head.Name
		}
		return EventTableMechanic{Table: EventTable{ID: id, Events: cfg.Events}}, nil
	case "formula_engine":
		var def FormulaDef
		if err := json.Unmarshal(head.Config, &def); err != nil {
			return nil, fmt.Errorf("formula_engine mechanic in pack %s: %w", packID, err)
		}
		if def.ID == "" {
			def.ID = head.ID
		}
		if def.ID == "" {
			def.ID = head.Name
		}
		return FormulaEngineMechanic{Formula: def}, nil
	case "stat_counter":
		var cfg struct {
			CustomStatName string `json:"custom_stat_name"`
			Name           string `json:"name"`
			MinValue       *int   `json:"min_value"`
			MaxValue       *int   `json:"max_value"`
			Min            *int   `json:"min"`
			Max            *int   `json:"max"`
			Start          int    `json:"start"`
		}
		if err := json.Unmarshal(head.Config, &cfg); err != nil {
			return nil, fmt.Errorf("stat_counter mechanic in pack %s: %w", packID, err)
		}
		statKey := cfg.CustomStatName
		if statKey == "" {
			statKey = head.ID
		}
		if statKey == "" {
			statKey = head.Name
		}
		min := cfg.MinValue
		if min == nil {
			min = cfg.Min
		}
		max := cfg.MaxValue
		if max == nil {
			max = cfg.Max
		}
		displayName := cfg.Name
		if displayName == "" {
			displayName = head.Name
		}
		if displayName == "" {
			displayName = statKey
		}
		return StatCounterMechanic{
			StatKey: statKey,
			Descriptor: model.StatDescriptor{
				Name:       displayName,
				Min:        min,
				Max:        max,
				SourcePack: packID,
			},
			Start: cfg.Start,
		}, nil
	case "market_tracker":
		var cfg map[string]any
		_ = json.Unmarshal(head.Config, &cfg)
		id := head.ID
		if id == "" {
			id = head.Name
		}
		return MarketTrackerMechanic{ID: id, Config: cfg}, nil
	default:
		return nil, fmt.Errorf("unknown custom_mechanics type %q in pack %s", head.Type, packID)
	}
}
