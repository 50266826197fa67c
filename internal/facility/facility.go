// Package facility is the rule engine's C9: building, upgrading,
// demolishing facilities and advancing their construction state turn
// by turn.
package facility

import (
	"fmt"

	"github.com/Djimon/DnDBastionManager/internal/audit"
	"github.com/Djimon/DnDBastionManager/internal/catalog"
	"github.com/Djimon/DnDBastionManager/internal/domainerr"
	"github.com/Djimon/DnDBastionManager/internal/ledger"
	"github.com/Djimon/DnDBastionManager/internal/model"
)

// Service drives facility construction/upgrade/demolition against a
// catalog and ledger.
type Service struct {
	Catalog           *catalog.Catalog
	Ledger            *ledger.Ledger
	Audit             *audit.Log
	RefundRatio       float64
	DefaultBuildCosts map[string]catalog.BuildSpec
}

func New(cat *catalog.Catalog, led *ledger.Ledger, auditLog *audit.Log, refundRatio float64, defaultBuildCosts map[string]catalog.BuildSpec) *Service {
	return &Service{Catalog: cat, Ledger: led, Audit: auditLog, RefundRatio: refundRatio, DefaultBuildCosts: defaultBuildCosts}
}

// BuildFacility starts construction of a new tier-1 (parentless) or
// tier>1 facility, charging its build cost immediately and leaving it
// in model.BuildStatusBuilding until AdvanceTurn completes it. When the
// cost would leave treasury_base negative and allowNegative is false,
// nothing is charged or built and a *domainerr.InsufficientFundsError is
// returned carrying the projected balance instead.
func (s *Service) BuildFacility(state *model.SessionState, facilityID, ownerPlayerID string, allowNegative bool) (*model.FacilityInstance, error) {
	def, ok := s.Catalog.Facilities[facilityID]
	if !ok {
		return nil, domainerr.New(domainerr.CodeNotFound, fmt.Sprintf("facility definition %q not found", facilityID), nil)
	}
	if ownerPlayerID == "" {
		return nil, domainerr.New(domainerr.CodeInvalidInput, "facility construction requires an owner_player_id", nil)
	}
	if state.FindPlayer(ownerPlayerID) == nil {
		return nil, domainerr.New(domainerr.CodeNotFound, fmt.Sprintf("player %q not found", ownerPlayerID), nil)
	}
	if def.Tier != 1 && def.Parent == "" {
		return nil, domainerr.New(domainerr.CodeInvariantViolated, fmt.Sprintf("facility %q has tier %d but no parent", facilityID, def.Tier), nil)
	}
	if def.Parent != "" {
		parentInst := s.findOperationalParent(state, def.Parent)
		if parentInst == nil {
			return nil, domainerr.New(domainerr.CodeInvalidState, fmt.Sprintf("parent facility %q is not built and operational", def.Parent), nil)
		}
	}
	if state.Bastion.FindFacility(facilityID) != nil {
		return nil, domainerr.New(domainerr.CodeAlreadyExists, fmt.Sprintf("facility %q already built", facilityID), nil)
	}

	if err := s.chargeCost(state, s.buildCost(def), "build:"+facilityID, allowNegative); err != nil {
		return nil, err
	}

	inst := &model.FacilityInstance{
		FacilityID:    facilityID,
		OwnerPlayerID: ownerPlayerID,
	}
	s.startBuildStatus(inst, model.BuildStatusBuilding, state.CurrentTurn, def.Build.DurationTurns, "")
	state.Bastion.Facilities = append(state.Bastion.Facilities, inst)

	s.Audit.AddEntry(state, state.CurrentTurn, audit.Context{
		EventType: "facility", SourceType: "facility", SourceID: facilityID,
		Action: "build", Result: "success",
		LogText: fmt.Sprintf("construction of %s started", facilityID),
	})
	return inst, nil
}

// AddUpgradeFacility starts upgrading an existing operational facility
// to the next-tier definition that names it as a parent, subject to the
// same allow_negative funding policy as BuildFacility.
func (s *Service) AddUpgradeFacility(state *model.SessionState, facilityID string, allowNegative bool) error {
	inst := state.Bastion.FindFacility(facilityID)
	if inst == nil {
		return domainerr.New(domainerr.CodeNotFound, fmt.Sprintf("facility %q not found", facilityID), nil)
	}
	if inst.BuildStatus != nil {
		return domainerr.New(domainerr.CodeInvalidState, fmt.Sprintf("facility %q is already under construction", facilityID), nil)
	}
	if inst.ActiveOrderCount() > 0 {
		return domainerr.New(domainerr.CodeInvalidState, fmt.Sprintf("facility %q has an active order and cannot be upgraded", facilityID), nil)
	}
	current, ok := s.Catalog.Facilities[facilityID]
	if !ok {
		return domainerr.New(domainerr.CodeNotFound, fmt.Sprintf("facility definition %q not found", facilityID), nil)
	}
	target, err := s.findUpgradeTarget(facilityID)
	if err != nil {
		return err
	}
	if target == nil {
		return domainerr.New(domainerr.CodeNotFound, fmt.Sprintf("facility %q has no upgrade target", facilityID), nil)
	}

	if err := s.chargeCost(state, s.upgradeCost(target, current.Tier), "upgrade:"+target.ID, allowNegative); err != nil {
		return err
	}

	s.startBuildStatus(inst, model.BuildStatusUpgrading, state.CurrentTurn, target.Build.DurationTurns, target.ID)

	s.Audit.AddEntry(state, state.CurrentTurn, audit.Context{
		EventType: "facility", SourceType: "facility", SourceID: facilityID,
		Action: "upgrade", Result: "success",
		LogText: fmt.Sprintf("upgrade of %s to %s started", facilityID, target.ID),
	})
	return nil
}

// DemolishFacility removes a facility instance, refunding RefundRatio
// of its total invested cost (summed across its build chain up to its
// current tier) and returning assigned NPCs to the unassigned pool.
func (s *Service) DemolishFacility(state *model.SessionState, facilityID string) error {
	b := state.Bastion
	idx := -1
	var inst *model.FacilityInstance
	for i, f := range b.Facilities {
		if f.FacilityID == facilityID {
			idx, inst = i, f
			break
		}
	}
	if inst == nil {
		return domainerr.New(domainerr.CodeNotFound, fmt.Sprintf("facility %q not found", facilityID), nil)
	}

	invested := s.sumFacilityChainCost(inst)
	refund := map[string]int{}
	for cur, amt := range invested {
		r := int(float64(amt) * s.RefundRatio)
		if r > 0 {
			refund[cur] = r
		}
	}
	if len(refund) > 0 {
		s.Ledger.ApplyEffects(state, []*model.Effect{{Currency: refund}}, audit.Context{
			EventType: "facility", SourceType: "facility", SourceID: facilityID,
			Action: "demolish_refund", Result: "success",
		})
	}

	b.NPCsUnassigned = append(b.NPCsUnassigned, inst.AssignedNPCs...)
	b.Facilities = append(b.Facilities[:idx], b.Facilities[idx+1:]...)

	s.Audit.AddEntry(state, state.CurrentTurn, audit.Context{
		EventType: "facility", SourceType: "facility", SourceID: facilityID,
		Action: "demolish", Result: "success",
		LogText: fmt.Sprintf("%s demolished", facilityID),
	})
	return nil
}

// AdvanceTurn progresses every building/upgrading facility's remaining
// turns by one, completing any that reach zero.
func (s *Service) AdvanceTurn(state *model.SessionState) []string {
	var completions []string
	for _, inst := range state.Bastion.Facilities {
		if inst.BuildStatus == nil {
			continue
		}
		bs := inst.BuildStatus
		if bs.RemainingTurns == nil {
			s.completeBuildStatus(state, inst)
			completions = append(completions, inst.FacilityID)
			continue
		}
		*bs.RemainingTurns--
		if *bs.RemainingTurns <= 0 {
			s.completeBuildStatus(state, inst)
			completions = append(completions, inst.FacilityID)
		}
	}
	return completions
}

func (s *Service) completeBuildStatus(state *model.SessionState, inst *model.FacilityInstance) {
	bs := inst.BuildStatus
	wasUpgrade := bs.Status == model.BuildStatusUpgrading
	targetID := bs.TargetID
	turn := state.CurrentTurn

	inst.BuildStatus = nil
	if wasUpgrade && targetID != "" {
		inst.FacilityID = targetID
		inst.UpgradedTurn = &turn
	} else {
		inst.BuiltTurn = &turn
	}

	s.Audit.AddEntry(state, turn, audit.Context{
		EventType: "facility", SourceType: "facility", SourceID: inst.FacilityID,
		Action: "construction_complete", Result: "success",
	})
}

// ResolveFacilityStates classifies every facility instance into one of
// the model.FacilityState* buckets for display.
func (s *Service) ResolveFacilityStates(state *model.SessionState) map[string]string {
	out := map[string]string{}
	for _, inst := range state.Bastion.Facilities {
		out[inst.FacilityID] = classify(inst)
	}
	return out
}

func classify(inst *model.FacilityInstance) string {
	if inst.BuildStatus != nil {
		if inst.BuildStatus.Status == model.BuildStatusUpgrading {
			return model.FacilityStateUpgrading
		}
		return model.FacilityStateBuilding
	}
	if inst.ActiveOrderCount() > 0 {
		return model.FacilityStateBusy
	}
	if len(inst.AssignedNPCs) > 0 {
		return model.FacilityStateReady
	}
	return model.FacilityStateFree
}

func (s *Service) startBuildStatus(inst *model.FacilityInstance, status string, turn, duration int, targetID string) {
	bs := &model.BuildStatus{Status: status, StartedTurn: turn, TargetID: targetID}
	if duration > 0 {
		remaining := duration
		bs.RemainingTurns = &remaining
	}
	inst.BuildStatus = bs
}

func (s *Service) chargeCost(state *model.SessionState, cost map[string]int, reason string, allowNegative bool) error {
	if len(cost) == 0 {
		return nil
	}
	neg := make(map[string]int, len(cost))
	for cur, amt := range cost {
		neg[cur] = -amt
	}
	effects := []*model.Effect{{Currency: neg}}

	if !allowNegative {
		projected := s.Ledger.ProjectedTreasuryBase(state, effects)
		if projected < 0 {
			return &domainerr.InsufficientFundsError{ProjectedTreasuryBase: projected}
		}
	}

	res := s.Ledger.ApplyEffects(state, effects, audit.Context{
		EventType: "facility", SourceType: "facility", SourceID: reason,
		Action: "charge_cost",
	})
	if !res.Success {
		return domainerr.New(domainerr.CodeInvalidState, "failed to charge facility cost: "+joinErrors(res.Errors), nil)
	}
	return nil
}

func joinErrors(errs []string) string {
	out := ""
	for i, e := range errs {
		if i > 0 {
			out += "; "
		}
		out += e
	}
	return out
}

func (s *Service) findOperationalParent(state *model.SessionState, parentID string) *model.FacilityInstance {
	inst := state.Bastion.FindFacility(parentID)
	if inst == nil || inst.BuildStatus != nil {
		return nil
	}
	return inst
}

// findUpgradeTarget returns the facility definition one tier above
// currentFacilityID that names it as its parent. More than one
// candidate is an ambiguous pack configuration, not a pick-one: it is
// reported as an error rather than resolved by map iteration order.
func (s *Service) findUpgradeTarget(currentFacilityID string) (*catalog.FacilityDef, error) {
	current, ok := s.Catalog.Facilities[currentFacilityID]
	if !ok {
		return nil, nil
	}
	var candidates []*catalog.FacilityDef
	for _, def := range s.Catalog.Facilities {
		if def.Parent == currentFacilityID && def.Tier == current.Tier+1 {
			candidates = append(candidates, def)
		}
	}
	if len(candidates) > 1 {
		ids := make([]string, len(candidates))
		for i, c := range candidates {
			ids[i] = c.ID
		}
		return nil, domainerr.New(domainerr.CodeInvariantViolated, fmt.Sprintf("facility %q has ambiguous upgrade targets: %v", currentFacilityID, ids), nil)
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	return candidates[0], nil
}

// buildCost resolves a new facility's build cost: its own declared
// cost, else default_build_costs.new_facility.
func (s *Service) buildCost(def *catalog.FacilityDef) map[string]int {
	if len(def.Build.Cost) > 0 {
		return def.Build.Cost
	}
	return s.DefaultBuildCosts["new_facility"].Cost
}

// upgradeCost resolves an upgrade's cost: the target definition's own
// declared cost, else default_build_costs.upgrade_tier_<currentTier>.
func (s *Service) upgradeCost(target *catalog.FacilityDef, currentTier int) map[string]int {
	if len(target.Build.Cost) > 0 {
		return target.Build.Cost
	}
	return s.DefaultBuildCosts[fmt.Sprintf("upgrade_tier_%d", currentTier)].Cost
}

// sumFacilityChainCost sums the build cost of inst's current facility
// and every ancestor in its parent chain, plus its in-progress upgrade
// target's cost if it is mid-upgrade, the total invested amount
// demolition refunds a fraction of.
func (s *Service) sumFacilityChainCost(inst *model.FacilityInstance) map[string]int {
	total := map[string]int{}
	id := inst.FacilityID
	seen := map[string]bool{}
	for id != "" && !seen[id] {
		seen[id] = true
		def, ok := s.Catalog.Facilities[id]
		if !ok {
			break
		}
		for cur, amt := range s.buildCost(def) {
			total[cur] += amt
		}
		id = def.Parent
	}
	if bs := inst.BuildStatus; bs != nil && bs.Status == model.BuildStatusUpgrading && bs.TargetID != "" {
		if target, ok := s.Catalog.Facilities[bs.TargetID]; ok {
			current := s.Catalog.Facilities[inst.FacilityID]
			currentTier := 0
			if current != nil {
				currentTier = current.Tier
			}
			for cur, amt := range s.upgradeCost(target, currentTier) {
				total[cur] += amt
			}
		}
	}
	return total
}
