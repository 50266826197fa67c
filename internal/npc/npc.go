// Package npc is the rule engine's C8: hiring, moving, firing, paying
// upkeep for, and leveling up NPCs assigned to (or unassigned from)
// facilities.
package npc

import (
	"fmt"
	"strings"

	"github.com/Djimon/DnDBastionManager/internal/catalog"
	"github.com/Djimon/DnDBastionManager/internal/domainerr"
	"github.com/Djimon/DnDBastionManager/internal/model"
)

// Service manages NPC lifecycle against a loaded session and catalog.
type Service struct {
	Catalog *catalog.Catalog
}

func New(cat *catalog.Catalog) *Service {
	return &Service{Catalog: cat}
}

// HireNPC creates a new NPC and assigns it to facilityID, honoring the
// facility's slot count and allowed-professions list.
func (s *Service) HireNPC(state *model.SessionState, facilityID, name, profession string) (*model.NPC, error) {
	b := state.Bastion
	fac := b.FindFacility(facilityID)
	if fac == nil {
		return nil, domainerr.New(domainerr.CodeNotFound, fmt.Sprintf("facility %q not found", facilityID), nil)
	}
	def, ok := s.Catalog.Facilities[facilityID]
	if !ok {
		return nil, domainerr.New(domainerr.CodeNotFound, fmt.Sprintf("facility definition %q not found", facilityID), nil)
	}
	if !professionAllowed(def, profession) {
		return nil, domainerr.New(domainerr.CodeInvalidInput, fmt.Sprintf("profession %q is not allowed at %q", profession, facilityID), nil)
	}
	if len(fac.AssignedNPCs) >= def.NPCSlots {
		return nil, domainerr.New(domainerr.CodeInvariantViolated, fmt.Sprintf("facility %q has no free NPC slots", facilityID), nil)
	}

	n := &model.NPC{
		NPCID:      s.generateNPCID(state, name),
		Name:       name,
		Profession: profession,
		Level:      LevelApprentice,
		HiredTurn:  state.CurrentTurn,
		Upkeep:     map[string]int{},
	}
	fac.AssignedNPCs = append(fac.AssignedNPCs, n)
	return n, nil
}

func professionAllowed(def *catalog.FacilityDef, profession string) bool {
	if len(def.NPCAllowedProfessions) == 0 {
		return true
	}
	for _, p := range def.NPCAllowedProfessions {
		if p == profession {
			return true
		}
	}
	return false
}

// MoveNPC relocates an NPC from wherever it currently sits to
// toFacilityID ("" means the unassigned pool), refusing to move an NPC
// with an active order.
func (s *Service) MoveNPC(state *model.SessionState, npcID, toFacilityID string) error {
	b := state.Bastion
	n, sourceFac := locateNPC(b, npcID)
	if n == nil {
		return domainerr.New(domainerr.CodeNotFound, fmt.Sprintf("npc %q not found", npcID), nil)
	}
	if npcHasActiveOrder(sourceFac, npcID) {
		return domainerr.New(domainerr.CodeInvalidState, fmt.Sprintf("npc %q has an active order and cannot be moved", npcID), nil)
	}

	if toFacilityID != "" {
		def, ok := s.Catalog.Facilities[toFacilityID]
		if !ok {
			return domainerr.New(domainerr.CodeNotFound, fmt.Sprintf("facility definition %q not found", toFacilityID), nil)
		}
		targetFac := b.FindFacility(toFacilityID)
		if targetFac == nil {
			return domainerr.New(domainerr.CodeNotFound, fmt.Sprintf("facility %q not found", toFacilityID), nil)
		}
		if !professionAllowed(def, n.Profession) {
			return domainerr.New(domainerr.CodeInvalidInput, fmt.Sprintf("profession %q is not allowed at %q", n.Profession, toFacilityID), nil)
		}
		if len(targetFac.AssignedNPCs) >= def.NPCSlots {
			return domainerr.New(domainerr.CodeInvariantViolated, fmt.Sprintf("facility %q has no free NPC slots", toFacilityID), nil)
		}
	}

	removeNPCFromLocation(b, sourceFac, npcID)
	if toFacilityID == "" {
		b.NPCsUnassigned = append(b.NPCsUnassigned, n)
		return nil
	}
	targetFac := b.FindFacility(toFacilityID)
	targetFac.AssignedNPCs = append(targetFac.AssignedNPCs, n)
	return nil
}

// FireNPC removes an NPC from the session entirely.
func (s *Service) FireNPC(state *model.SessionState, npcID string) error {
	b := state.Bastion
	n, fac := locateNPC(b, npcID)
	if n == nil {
		return domainerr.New(domainerr.CodeNotFound, fmt.Sprintf("npc %q not found", npcID), nil)
	}
	if npcHasActiveOrder(fac, npcID) {
		return domainerr.New(domainerr.CodeInvalidState, fmt.Sprintf("npc %q has an active order and cannot be fired", npcID), nil)
	}
	removeNPCFromLocation(b, fac, npcID)
	return nil
}

func locateNPC(b *model.Bastion, npcID string) (*model.NPC, *model.FacilityInstance) {
	for _, n := range b.NPCsUnassigned {
		if n.NPCID == npcID {
			return n, nil
		}
	}
	for _, fac := range b.Facilities {
		if n := fac.FindNPC(npcID); n != nil {
			return n, fac
		}
	}
	return nil, nil
}

func npcHasActiveOrder(fac *model.FacilityInstance, npcID string) bool {
	if fac == nil {
		return false
	}
	for _, o := range fac.CurrentOrders {
		if o.NPCID == npcID && o.IsActive() {
			return true
		}
	}
	return false
}

func removeNPCFromLocation(b *model.Bastion, fac *model.FacilityInstance, npcID string) {
	if fac != nil {
		for i, n := range fac.AssignedNPCs {
			if n.NPCID == npcID {
				fac.AssignedNPCs = append(fac.AssignedNPCs[:i], fac.AssignedNPCs[i+1:]...)
				return
			}
		}
		return
	}
	for i, n := range b.NPCsUnassigned {
		if n.NPCID == npcID {
			b.NPCsUnassigned = append(b.NPCsUnassigned[:i], b.NPCsUnassigned[i+1:]...)
			return
		}
	}
}

// generateNPCID slugifies name and appends a numeric suffix on
// collision, the way pack-authored ids are derived elsewhere.
func (s *Service) generateNPCID(state *model.SessionState, name string) string {
	base := slugify(name)
	if base == "" {
		base = "npc"
	}
	candidate := base
	for n := 1; npcIDExists(state.Bastion, candidate); n++ {
		candidate = fmt.Sprintf("%s_%d", base, n)
	}
	return candidate
}

func npcIDExists(b *model.Bastion, id string) bool {
	for _, n := range b.NPCsUnassigned {
		if n.NPCID == id {
			return true
		}
	}
	for _, fac := range b.Facilities {
		if fac.FindNPC(id) != nil {
			return true
		}
	}
	return false
}

func slugify(name string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}

// UpkeepResult is the outcome of applying one turn's NPC upkeep.
type UpkeepResult struct {
	Effects []*model.Effect
	LogText string
}

// ApplyUpkeep sums the upkeep owed by every hired NPC (assigned and
// unassigned) into a single set of negative currency effects.
func (s *Service) ApplyUpkeep(state *model.SessionState) UpkeepResult {
	totals := map[string]int{}
	count := 0
	for _, n := range allNPCs(state.Bastion) {
		for cur, amt := range n.Upkeep {
			totals[cur] += amt
		}
		count++
	}

	var effects []*model.Effect
	var parts []string
	for cur, amt := range totals {
		if amt == 0 {
			continue
		}
		effects = append(effects, &model.Effect{Currency: map[string]int{cur: -amt}})
		parts = append(parts, fmt.Sprintf("-%d %s", amt, cur))
	}

	return UpkeepResult{
		Effects: effects,
		LogText: fmt.Sprintf("upkeep for %d npcs: %s", count, strings.Join(parts, ", ")),
	}
}

func allNPCs(b *model.Bastion) []*model.NPC {
	all := append([]*model.NPC{}, b.NPCsUnassigned...)
	for _, fac := range b.Facilities {
		all = append(all, fac.AssignedNPCs...)
	}
	return all
}

// NPC level numbers. LevelNames in NPCProgression maps the named keys
// below to display strings; the numeric level is what orders'
// min_npc_level and progression thresholds actually compare against.
const (
	LevelApprentice  = 1
	LevelExperienced = 2
	LevelMaster      = 3
)

// AwardXP grants XP for every evaluated order regardless of which
// outcome bucket fired, scaled by the order's duration_turns, and
// applies any level-ups the progression config's thresholds now call
// for.
func (s *Service) AwardXP(n *model.NPC, prog catalog.NPCProgression, durationTurns int) (leveledUp bool, newLevel int) {
	n.XP += prog.XPPerSuccess * durationTurns

	switch n.Level {
	case LevelApprentice:
		if t := prog.LevelThresholds.ApprenticeToExperienced; t > 0 && n.XP >= t {
			n.Level = LevelExperienced
			return true, n.Level
		}
	case LevelExperienced:
		if t := prog.LevelThresholds.ExperiencedToMaster; t > 0 && n.XP >= t {
			n.Level = LevelMaster
			return true, n.Level
		}
	}
	return false, n.Level
}

// LevelName resolves a numeric level to its display name via the
// progression config's level_names, falling back to "apprentice" /
// "experienced" / "master".
func LevelName(prog catalog.NPCProgression, level int) string {
	key := map[int]string{LevelApprentice: "apprentice", LevelExperienced: "experienced", LevelMaster: "master"}[level]
	if prog.LevelNames != nil {
		if v, ok := prog.LevelNames[key]; ok && v != "" {
			return v
		}
	}
	return key
}
