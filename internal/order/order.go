// Package order is the rule engine's C10: starting, progressing, rolling
// and evaluating orders running at a facility, per spec.md §4.10's
// start/lock_roll/evaluate/evaluate_ready_orders state machine.
package order

import (
	"fmt"
	"math/rand/v2"

	"github.com/Djimon/DnDBastionManager/internal/audit"
	"github.com/Djimon/DnDBastionManager/internal/catalog"
	"github.com/Djimon/DnDBastionManager/internal/domainerr"
	"github.com/Djimon/DnDBastionManager/internal/eventtable"
	"github.com/Djimon/DnDBastionManager/internal/formula"
	"github.com/Djimon/DnDBastionManager/internal/ledger"
	"github.com/Djimon/DnDBastionManager/internal/model"
)

// Service drives order start/roll/evaluate against the catalog, ledger,
// formula engine and event service.
type Service struct {
	Catalog    *catalog.Catalog
	Ledger     *ledger.Ledger
	Formula    *formula.Engine
	EventTable *eventtable.Service
	Audit      *audit.Log
	RNG        *rand.Rand
}

func New(cat *catalog.Catalog, led *ledger.Ledger, f *formula.Engine, et *eventtable.Service, auditLog *audit.Log, rng *rand.Rand) *Service {
	return &Service{Catalog: cat, Ledger: led, Formula: f, EventTable: et, Audit: auditLog, RNG: rng}
}

// StartOrder begins a new order at facilityID using npcID, which must be
// assigned there and meet the order's minimum NPC level. Starting an
// order requires the caller to identify themself as the facility's
// owner (a behavior this engine adopted beyond the bare distillation,
// see DESIGN.md's Open Question decision on facility ownership).
func (s *Service) StartOrder(state *model.SessionState, facilityID, orderID, npcID, callerPlayerID string, formulaInputs map[string]float64) (*model.OrderInstance, error) {
	fac := state.Bastion.FindFacility(facilityID)
	if fac == nil {
		return nil, domainerr.New(domainerr.CodeNotFound, fmt.Sprintf("facility %q not found", facilityID), nil)
	}
	if fac.BuildStatus != nil {
		return nil, domainerr.New(domainerr.CodeInvalidState, fmt.Sprintf("facility %q is still under construction", facilityID), nil)
	}
	if fac.OwnerPlayerID == "" {
		return nil, domainerr.New(domainerr.CodeInvalidState, fmt.Sprintf("facility %q has no owner on record", facilityID), nil)
	}
	if callerPlayerID != fac.OwnerPlayerID {
		return nil, domainerr.New(domainerr.CodeInvalidInput, "only the facility's owner may start an order there", nil)
	}

	def, ok := s.Catalog.Facilities[facilityID]
	if !ok {
		return nil, domainerr.New(domainerr.CodeNotFound, fmt.Sprintf("facility definition %q not found", facilityID), nil)
	}
	var orderDef *catalog.OrderDef
	for _, o := range def.Orders {
		if o.ID == orderID {
			orderDef = o
			break
		}
	}
	if orderDef == nil {
		return nil, domainerr.New(domainerr.CodeNotFound, fmt.Sprintf("order %q not found at facility %q", orderID, facilityID), nil)
	}

	npc := fac.FindNPC(npcID)
	if npc == nil {
		return nil, domainerr.New(domainerr.CodeNotFound, fmt.Sprintf("npc %q is not assigned to facility %q", npcID, facilityID), nil)
	}
	if orderDef.MinNPCLevel != nil && npc.Level < *orderDef.MinNPCLevel {
		return nil, domainerr.New(domainerr.CodeInvalidInput, fmt.Sprintf("npc %q (level %d) does not meet minimum level %d", npcID, npc.Level, *orderDef.MinNPCLevel), nil)
	}
	for _, o := range fac.CurrentOrders {
		if o.NPCID == npcID && o.IsActive() {
			return nil, domainerr.New(domainerr.CodeInvalidState, fmt.Sprintf("npc %q already has an active order", npcID), nil)
		}
	}

	inst := &model.OrderInstance{
		OrderID:       orderID,
		NPCID:         npcID,
		NPCLevel:      npc.Level,
		StartedTurn:   state.CurrentTurn,
		DurationTurns: orderDef.DurationTurns,
		Status:        model.OrderStatusInProgress,
	}
	if len(formulaInputs) > 0 {
		inst.FormulaInputs = map[string]map[string]float64{orderID: formulaInputs}
	}
	fac.CurrentOrders = append(fac.CurrentOrders, inst)

	s.Audit.AddEntry(state, state.CurrentTurn, audit.Context{
		EventType: "order", SourceType: "order", SourceID: orderID,
		Action: "start", Result: "success",
		LogText: fmt.Sprintf("%s started at %s by %s", orderID, facilityID, npcID),
	})
	return inst, nil
}

// LockRoll records a manually-supplied check roll for an order that has
// reached model.OrderStatusReady, so evaluation uses it instead of
// rolling automatically. The roll must fall within [1, sides] of the
// order's check_profile; an order with no check_profile accepts no
// roll at all, since nothing ever reads it.
func (s *Service) LockRoll(state *model.SessionState, facilityID, orderID string, roll int) error {
	fac := state.Bastion.FindFacility(facilityID)
	if fac == nil {
		return domainerr.New(domainerr.CodeNotFound, fmt.Sprintf("facility %q not found", facilityID), nil)
	}
	inst := findOrder(fac, orderID)
	if inst == nil {
		return domainerr.New(domainerr.CodeNotFound, fmt.Sprintf("order %q not found at facility %q", orderID, facilityID), nil)
	}
	if inst.Status != model.OrderStatusReady {
		return domainerr.New(domainerr.CodeInvalidState, fmt.Sprintf("order %q is not ready for a roll", orderID), nil)
	}
	if inst.RollLocked {
		return domainerr.New(domainerr.CodeInvalidState, fmt.Sprintf("order %q already has a locked roll", orderID), nil)
	}

	orderDef := s.findOrderDef(fac.FacilityID, orderID)
	if orderDef == nil {
		return domainerr.New(domainerr.CodeNotFound, fmt.Sprintf("order definition %q no longer exists", orderID), nil)
	}
	if orderDef.Outcome.CheckProfile == "" {
		return domainerr.New(domainerr.CodeInvalidInput, fmt.Sprintf("order %q has no check_profile, so it takes no roll", orderID), nil)
	}
	profile, ok := s.Catalog.CheckProfiles[orderDef.Outcome.CheckProfile]
	if !ok {
		return domainerr.New(domainerr.CodeNotFound, fmt.Sprintf("unknown check_profile %q", orderDef.Outcome.CheckProfile), nil)
	}
	sides := profile.Sides
	if sides <= 0 {
		sides = 20
	}
	if roll < 1 || roll > sides {
		return domainerr.New(domainerr.CodeInvalidInput, fmt.Sprintf("roll %d is out of range [1, %d]", roll, sides), nil)
	}

	inst.Roll = &roll
	inst.RollLocked = true
	inst.RollSource = model.RollSourceManual
	return nil
}

func (s *Service) findOrderDef(facilityID, orderID string) *catalog.OrderDef {
	def, ok := s.Catalog.Facilities[facilityID]
	if !ok {
		return nil
	}
	for _, o := range def.Orders {
		if o.ID == orderID {
			return o
		}
	}
	return nil
}

func findOrder(fac *model.FacilityInstance, orderID string) *model.OrderInstance {
	for _, o := range fac.CurrentOrders {
		if o.OrderID == orderID {
			return o
		}
	}
	return nil
}

// AdvanceTurn progresses every in-progress order by one turn, moving
// any that reach their duration to model.OrderStatusReady.
func (s *Service) AdvanceTurn(state *model.SessionState) {
	for _, fac := range state.Bastion.Facilities {
		for _, o := range fac.CurrentOrders {
			if o.Status != model.OrderStatusInProgress {
				continue
			}
			o.Progress++
			if o.Progress >= o.DurationTurns {
				o.Status = model.OrderStatusReady
				turn := state.CurrentTurn
				o.ReadyTurn = &turn
			}
		}
	}
}

// EvalOutcome is the result of evaluating one ready order.
type EvalOutcome struct {
	OrderID       string
	NPCID         string
	Success       bool
	Critical      bool
	Roll          *int
	DurationTurns int
	Errors        []string
}

// HasReadyOrder reports whether any facility currently holds an order
// sitting in model.OrderStatusReady, unevaluated. advance_turn refuses
// to run while this is true (spec invariant: a turn never advances
// over an unresolved roll).
func (s *Service) HasReadyOrder(state *model.SessionState) bool {
	for _, fac := range state.Bastion.Facilities {
		for _, o := range fac.CurrentOrders {
			if o.Status == model.OrderStatusReady {
				return true
			}
		}
	}
	return false
}

// RollAndEvaluateReadyOrders rolls (when not already locked) and
// evaluates every order sitting in model.OrderStatusReady, applying
// their resolved effects and removing them from the facility.
func (s *Service) RollAndEvaluateReadyOrders(state *model.SessionState) []EvalOutcome {
	return s.evaluateReady(state, true)
}

// EvaluateReadyOrders evaluates every ready order that already carries
// a usable roll (no check_profile, or one already locked), leaving
// orders that still need a manual roll untouched at the facility.
func (s *Service) EvaluateReadyOrders(state *model.SessionState) []EvalOutcome {
	return s.evaluateReady(state, false)
}

func (s *Service) evaluateReady(state *model.SessionState, autoRoll bool) []EvalOutcome {
	var results []EvalOutcome
	for _, fac := range state.Bastion.Facilities {
		var remaining []*model.OrderInstance
		for _, o := range fac.CurrentOrders {
			if o.Status != model.OrderStatusReady {
				remaining = append(remaining, o)
				continue
			}
			if !autoRoll && !s.hasUsableRoll(fac.FacilityID, o) {
				remaining = append(remaining, o)
				continue
			}
			results = append(results, s.evaluateOrder(state, fac, o, autoRoll))
		}
		fac.CurrentOrders = remaining
	}
	return results
}

func (s *Service) hasUsableRoll(facilityID string, o *model.OrderInstance) bool {
	orderDef := s.findOrderDef(facilityID, o.OrderID)
	if orderDef == nil || orderDef.Outcome.CheckProfile == "" {
		return true
	}
	return o.RollLocked && o.Roll != nil
}

// EvaluateOrder evaluates a single ready order by id, enforcing that an
// order with a check_profile may only be evaluated once its roll has
// been locked via LockRoll, and that the locked roll is in range. This
// is the strict, no-auto-roll counterpart RollAndEvaluateReadyOrders
// skips for convenience.
func (s *Service) EvaluateOrder(state *model.SessionState, facilityID, orderID string) (EvalOutcome, error) {
	fac := state.Bastion.FindFacility(facilityID)
	if fac == nil {
		return EvalOutcome{}, domainerr.New(domainerr.CodeNotFound, fmt.Sprintf("facility %q not found", facilityID), nil)
	}
	inst := findOrder(fac, orderID)
	if inst == nil {
		return EvalOutcome{}, domainerr.New(domainerr.CodeNotFound, fmt.Sprintf("order %q not found at facility %q", orderID, facilityID), nil)
	}
	if inst.Status != model.OrderStatusReady {
		return EvalOutcome{}, domainerr.New(domainerr.CodeInvalidState, fmt.Sprintf("order %q is not ready to evaluate", orderID), nil)
	}

	orderDef := s.findOrderDef(facilityID, orderID)
	if orderDef == nil {
		return EvalOutcome{}, domainerr.New(domainerr.CodeNotFound, fmt.Sprintf("order definition %q no longer exists", orderID), nil)
	}
	if orderDef.Outcome.CheckProfile != "" {
		if !inst.RollLocked || inst.Roll == nil {
			return EvalOutcome{}, domainerr.New(domainerr.CodeInvalidState, fmt.Sprintf("order %q requires a locked roll before it can be evaluated", orderID), nil)
		}
		profile, ok := s.Catalog.CheckProfiles[orderDef.Outcome.CheckProfile]
		if !ok {
			return EvalOutcome{}, domainerr.New(domainerr.CodeNotFound, fmt.Sprintf("unknown check_profile %q", orderDef.Outcome.CheckProfile), nil)
		}
		sides := profile.Sides
		if sides <= 0 {
			sides = 20
		}
		if *inst.Roll < 1 || *inst.Roll > sides {
			return EvalOutcome{}, domainerr.New(domainerr.CodeInvalidInput, fmt.Sprintf("locked roll %d is out of range [1, %d]", *inst.Roll, sides), nil)
		}
	}

	outcome := s.evaluateOrder(state, fac, inst, false)

	var remaining []*model.OrderInstance
	for _, o := range fac.CurrentOrders {
		if o == inst {
			continue
		}
		remaining = append(remaining, o)
	}
	fac.CurrentOrders = remaining

	return outcome, nil
}

func (s *Service) evaluateOrder(state *model.SessionState, fac *model.FacilityInstance, o *model.OrderInstance, autoRoll bool) EvalOutcome {
	def := s.Catalog.Facilities[fac.FacilityID]
	var orderDef *catalog.OrderDef
	if def != nil {
		for _, od := range def.Orders {
			if od.ID == o.OrderID {
				orderDef = od
				break
			}
		}
	}
	outcome := EvalOutcome{OrderID: o.OrderID, NPCID: o.NPCID, DurationTurns: o.DurationTurns}
	if orderDef == nil {
		outcome.Errors = append(outcome.Errors, fmt.Sprintf("order definition %q no longer exists", o.OrderID))
		return outcome
	}

	var bucket *catalog.OutcomeBucket
	if orderDef.Outcome.CheckProfile == "" {
		bucket = orderDef.Outcome.OnSuccess
		outcome.Success = true
	} else {
		profile, ok := s.Catalog.CheckProfiles[orderDef.Outcome.CheckProfile]
		if !ok {
			outcome.Errors = append(outcome.Errors, fmt.Sprintf("unknown check_profile %q", orderDef.Outcome.CheckProfile))
			return outcome
		}
		roll := o.Roll
		if roll == nil && autoRoll {
			r := s.rollCheck(profile)
			roll = &r
			o.Roll = roll
			o.RollSource = model.RollSourceAuto
		}
		if roll == nil {
			outcome.Errors = append(outcome.Errors, fmt.Sprintf("order %q has no roll to evaluate with", o.OrderID))
			return outcome
		}
		outcome.Roll = roll
		level := profile.LevelFor(levelKey(o.NPCLevel))
		bucket, outcome.Success, outcome.Critical = resolveBucket(orderDef.Outcome, level, *roll)
	}

	if bucket == nil {
		return outcome
	}

	var allEffects []*model.Effect
	for _, eff := range bucket.Effects {
		expanded, errs := s.Formula.ExpandTrigger(eff, state, flattenFormulaInputs(o), outcome.Roll)
		outcome.Errors = append(outcome.Errors, errs...)
		allEffects = append(allEffects, expanded...)
	}
	for _, eff := range allEffects {
		outcome.Errors = append(outcome.Errors, s.EventTable.Resolve(state, eff)...)
	}

	result := "success"
	if !outcome.Success {
		result = "failure"
	}
	roll := "-"
	if outcome.Roll != nil {
		roll = fmt.Sprintf("%d", *outcome.Roll)
	}
	res := s.Ledger.ApplyEffects(state, allEffects, audit.Context{
		EventType: "order", SourceType: "order", SourceID: o.OrderID,
		Action: "evaluate", Roll: roll, Result: result,
	})
	outcome.Errors = append(outcome.Errors, res.Errors...)
	return outcome
}

func flattenFormulaInputs(o *model.OrderInstance) map[string]float64 {
	if o.FormulaInputs == nil {
		return nil
	}
	return o.FormulaInputs[o.OrderID]
}

// levelKey maps a numeric NPC level to the named key check profiles key
// their overrides by ("apprentice"/"experienced"/"master").
func levelKey(level int) string {
	switch level {
	case 2:
		return "experienced"
	case 3:
		return "master"
	default:
		return "apprentice"
	}
}

func (s *Service) rollCheck(profile *catalog.CheckProfile) int {
	sides := profile.Sides
	if sides <= 0 {
		sides = 20
	}
	return 1 + s.RNG.IntN(sides)
}

func resolveBucket(outcome catalog.Outcome, level catalog.CheckProfileLevel, roll int) (*catalog.OutcomeBucket, bool, bool) {
	if containsInt(level.CritSuccess, roll) && outcome.OnCriticalSuccess != nil {
		return outcome.OnCriticalSuccess, true, true
	}
	if containsInt(level.CritFail, roll) && outcome.OnCriticalFailure != nil {
		return outcome.OnCriticalFailure, false, true
	}
	if roll >= level.DC {
		return outcome.OnSuccess, true, false
	}
	return outcome.OnFailure, false, false
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
