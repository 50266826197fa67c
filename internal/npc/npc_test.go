package npc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Djimon/DnDBastionManager/internal/catalog"
	"github.com/Djimon/DnDBastionManager/internal/model"
)

func newTestState() *model.SessionState {
	return &model.SessionState{
		Bastion: &model.Bastion{
			Facilities: []*model.FacilityInstance{
				{FacilityID: "barracks"},
				{FacilityID: "shrine"},
			},
		},
	}
}

func newTestCatalog() *catalog.Catalog {
	return &catalog.Catalog{
		Facilities: map[string]*catalog.FacilityDef{
			"barracks": {ID: "barracks", NPCSlots: 1, NPCAllowedProfessions: []string{"soldier"}},
			"shrine":   {ID: "shrine", NPCSlots: 2},
		},
	}
}

func TestHireNPCAssignsToFacility(t *testing.T) {
	state := newTestState()
	s := New(newTestCatalog())

	n, err := s.HireNPC(state, "barracks", "Gwen", "soldier")
	require.NoError(t, err)
	assert.Equal(t, "gwen", n.NPCID)
	assert.Equal(t, LevelApprentice, n.Level)
	require.Len(t, state.Bastion.Facilities[0].AssignedNPCs, 1)
}

func TestHireNPCRejectsDisallowedProfession(t *testing.T) {
	state := newTestState()
	s := New(newTestCatalog())

	_, err := s.HireNPC(state, "barracks", "Gwen", "cook")
	assert.Error(t, err)
}

func TestHireNPCRejectsWhenSlotsFull(t *testing.T) {
	state := newTestState()
	s := New(newTestCatalog())

	_, err := s.HireNPC(state, "barracks", "Gwen", "soldier")
	require.NoError(t, err)
	_, err = s.HireNPC(state, "barracks", "Tomas", "soldier")
	assert.Error(t, err)
}

func TestHireNPCGeneratesUniqueIDOnCollision(t *testing.T) {
	state := newTestState()
	s := New(newTestCatalog())

	first, err := s.HireNPC(state, "shrine", "Gwen", "cleric")
	require.NoError(t, err)
	second, err := s.HireNPC(state, "shrine", "Gwen", "cleric")
	require.NoError(t, err)

	assert.Equal(t, "gwen", first.NPCID)
	assert.Equal(t, "gwen_1", second.NPCID)
}

func TestMoveNPCBetweenFacilities(t *testing.T) {
	state := newTestState()
	s := New(newTestCatalog())

	n, err := s.HireNPC(state, "shrine", "Gwen", "cleric")
	require.NoError(t, err)

	err = s.MoveNPC(state, n.NPCID, "")
	require.NoError(t, err)
	assert.Empty(t, state.Bastion.Facilities[1].AssignedNPCs)
	require.Len(t, state.Bastion.NPCsUnassigned, 1)
}

func TestMoveNPCWithActiveOrderIsRejected(t *testing.T) {
	state := newTestState()
	s := New(newTestCatalog())
	n, err := s.HireNPC(state, "shrine", "Gwen", "cleric")
	require.NoError(t, err)
	state.Bastion.Facilities[1].CurrentOrders = []*model.OrderInstance{
		{NPCID: n.NPCID, Status: model.OrderStatusInProgress},
	}

	err = s.MoveNPC(state, n.NPCID, "")
	assert.Error(t, err)
}

func TestFireNPCRemovesFromUnassigned(t *testing.T) {
	state := newTestState()
	s := New(newTestCatalog())
	n, err := s.HireNPC(state, "shrine", "Gwen", "cleric")
	require.NoError(t, err)
	require.NoError(t, s.MoveNPC(state, n.NPCID, ""))

	err = s.FireNPC(state, n.NPCID)
	require.NoError(t, err)
	assert.Empty(t, state.Bastion.NPCsUnassigned)
}

func TestApplyUpkeepSumsAcrossAllNPCs(t *testing.T) {
	state := newTestState()
	state.Bastion.NPCsUnassigned = []*model.NPC{
		{NPCID: "a", Upkeep: map[string]int{"gold": 2}},
	}
	state.Bastion.Facilities[0].AssignedNPCs = []*model.NPC{
		{NPCID: "b", Upkeep: map[string]int{"gold": 3}},
	}
	s := New(newTestCatalog())

	res := s.ApplyUpkeep(state)
	require.Len(t, res.Effects, 1)
	assert.Equal(t, -5, res.Effects[0].Currency["gold"])
}

func TestAwardXPLevelsUpAtThreshold(t *testing.T) {
	s := New(newTestCatalog())
	n := &model.NPC{Level: LevelApprentice, XP: 8}
	prog := catalog.NPCProgression{
		XPPerSuccess:    2,
		LevelThresholds: catalog.LevelThresholds{ApprenticeToExperienced: 10},
	}

	leveled, newLevel := s.AwardXP(n, prog, 1)
	assert.True(t, leveled)
	assert.Equal(t, LevelExperienced, newLevel)
	assert.Equal(t, 10, n.XP)
	assert.Equal(t, "experienced", LevelName(prog, newLevel))
}

func TestAwardXPScalesWithOrderDuration(t *testing.T) {
	s := New(newTestCatalog())
	n := &model.NPC{Level: LevelApprentice, XP: 0}
	prog := catalog.NPCProgression{XPPerSuccess: 5}

	leveled, _ := s.AwardXP(n, prog, 3)
	assert.False(t, leveled)
	assert.Equal(t, 15, n.XP, "xp is xp_per_success times the evaluated order's duration_turns")
}

func TestAwardXPGrantedRegardlessOfOutcomeBucket(t *testing.T) {
	s := New(newTestCatalog())
	n := &model.NPC{Level: LevelApprentice, XP: 0}
	prog := catalog.NPCProgression{XPPerSuccess: 5}

	// a failed (or critically failed) order still grants XP; only the
	// effects it applies differ, not whether the NPC gains experience.
	leveled, _ := s.AwardXP(n, prog, 1)
	assert.False(t, leveled)
	assert.Equal(t, 5, n.XP)
}
