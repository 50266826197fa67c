package order

import (
	"math/rand/v2"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Djimon/DnDBastionManager/internal/audit"
	"github.com/Djimon/DnDBastionManager/internal/catalog"
	"github.com/Djimon/DnDBastionManager/internal/currency"
	"github.com/Djimon/DnDBastionManager/internal/eventtable"
	"github.com/Djimon/DnDBastionManager/internal/expr"
	"github.com/Djimon/DnDBastionManager/internal/formula"
	"github.com/Djimon/DnDBastionManager/internal/ledger"
	"github.com/Djimon/DnDBastionManager/internal/model"
)

func newTestService(t *testing.T) (*Service, *model.SessionState) {
	t.Helper()
	cur, warnings := currency.Build(catalog.CurrencyConfig{Types: []string{"gold"}})
	require.Empty(t, warnings)
	minLvl := 1
	cat := &catalog.Catalog{
		Facilities: map[string]*catalog.FacilityDef{
			"workshop": {
				ID: "workshop", Tier: 1, NPCSlots: 2,
				Orders: []*catalog.OrderDef{
					{
						ID: "craft", DurationTurns: 1, MinNPCLevel: &minLvl,
						Outcome: catalog.Outcome{
							CheckProfile: "standard",
							OnSuccess:    &catalog.OutcomeBucket{Effects: []*model.Effect{{Currency: map[string]int{"gold": 5}}}},
							OnFailure:    &catalog.OutcomeBucket{Effects: []*model.Effect{{Currency: map[string]int{"gold": -1}}}},
						},
					},
					{
						ID:            "free_chore",
						DurationTurns: 1,
						Outcome: catalog.Outcome{
							OnSuccess: &catalog.OutcomeBucket{Effects: []*model.Effect{{Currency: map[string]int{"gold": 1}}}},
						},
					},
				},
			},
		},
		CheckProfiles: map[string]*catalog.CheckProfile{
			"standard": {Sides: 20, Default: catalog.CheckProfileLevel{DC: 10}},
		},
	}
	led := ledger.New(cur, audit.New(zerolog.Nop()))
	f := formula.New(cat, expr.New(expr.DefaultLimits()), cur)
	rng := rand.New(rand.NewPCG(7, 11))
	et := eventtable.New(cat, audit.New(zerolog.Nop()), rng)
	s := New(cat, led, f, et, audit.New(zerolog.Nop()), rng)

	state := &model.SessionState{
		Bastion: &model.Bastion{
			Treasury: map[string]int{"gold": 0},
			Facilities: []*model.FacilityInstance{
				{
					FacilityID:    "workshop",
					OwnerPlayerID: "p1",
					AssignedNPCs:  []*model.NPC{{NPCID: "n1", Level: 1}},
				},
			},
		},
		Players: []*model.Player{{PlayerID: "p1"}},
	}
	return s, state
}

func TestStartOrderRequiresFacilityOwner(t *testing.T) {
	s, state := newTestService(t)
	_, err := s.StartOrder(state, "workshop", "craft", "n1", "someone_else", nil)
	assert.Error(t, err)
}

func TestStartOrderRejectsBelowMinLevel(t *testing.T) {
	s, state := newTestService(t)
	state.Bastion.Facilities[0].AssignedNPCs[0].Level = 0
	_, err := s.StartOrder(state, "workshop", "craft", "n1", "p1", nil)
	assert.Error(t, err)
}

func TestStartOrderThenAdvanceTurnMarksReady(t *testing.T) {
	s, state := newTestService(t)
	inst, err := s.StartOrder(state, "workshop", "craft", "n1", "p1", nil)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusInProgress, inst.Status)

	s.AdvanceTurn(state)
	assert.Equal(t, model.OrderStatusReady, inst.Status)
	require.NotNil(t, inst.ReadyTurn)
}

func TestLockRollThenEvaluateUsesLockedRoll(t *testing.T) {
	s, state := newTestService(t)
	_, err := s.StartOrder(state, "workshop", "craft", "n1", "p1", nil)
	require.NoError(t, err)
	s.AdvanceTurn(state)

	require.NoError(t, s.LockRoll(state, "workshop", "craft", 15))

	results := s.RollAndEvaluateReadyOrders(state)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	require.NotNil(t, results[0].Roll)
	assert.Equal(t, 15, *results[0].Roll)
	assert.Equal(t, 5, state.Bastion.Treasury["gold"])
	assert.Empty(t, state.Bastion.Facilities[0].CurrentOrders)
}

func TestEvaluateOrderWithoutCheckProfileAlwaysSucceeds(t *testing.T) {
	s, state := newTestService(t)
	_, err := s.StartOrder(state, "workshop", "free_chore", "n1", "p1", nil)
	require.NoError(t, err)
	s.AdvanceTurn(state)

	results := s.RollAndEvaluateReadyOrders(state)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Nil(t, results[0].Roll)
	assert.Equal(t, 1, state.Bastion.Treasury["gold"])
}

func TestLockRollRejectsSecondLock(t *testing.T) {
	s, state := newTestService(t)
	_, err := s.StartOrder(state, "workshop", "craft", "n1", "p1", nil)
	require.NoError(t, err)
	s.AdvanceTurn(state)

	require.NoError(t, s.LockRoll(state, "workshop", "craft", 15))
	err = s.LockRoll(state, "workshop", "craft", 12)
	assert.Error(t, err)
}

func TestLockRollRejectsRollBelowOneOrAboveSides(t *testing.T) {
	s, state := newTestService(t)
	_, err := s.StartOrder(state, "workshop", "craft", "n1", "p1", nil)
	require.NoError(t, err)
	s.AdvanceTurn(state)

	assert.Error(t, s.LockRoll(state, "workshop", "craft", 0))
	assert.Error(t, s.LockRoll(state, "workshop", "craft", 21))
}

func TestLockRollAcceptsBoundaryRolls(t *testing.T) {
	s, state := newTestService(t)
	_, err := s.StartOrder(state, "workshop", "craft", "n1", "p1", nil)
	require.NoError(t, err)
	s.AdvanceTurn(state)
	assert.NoError(t, s.LockRoll(state, "workshop", "craft", 1))

	s2, state2 := newTestService(t)
	_, err = s2.StartOrder(state2, "workshop", "craft", "n1", "p1", nil)
	require.NoError(t, err)
	s2.AdvanceTurn(state2)
	assert.NoError(t, s2.LockRoll(state2, "workshop", "craft", 20))
}

func TestEvaluateOrderRejectsUnlockedCheckProfileOrder(t *testing.T) {
	s, state := newTestService(t)
	_, err := s.StartOrder(state, "workshop", "craft", "n1", "p1", nil)
	require.NoError(t, err)
	s.AdvanceTurn(state)

	_, err = s.EvaluateOrder(state, "workshop", "craft")
	assert.Error(t, err)
	require.NotEmpty(t, state.Bastion.Facilities[0].CurrentOrders, "a rejected evaluation must not consume the order")
}

func TestEvaluateOrderSucceedsOnceRollIsLocked(t *testing.T) {
	s, state := newTestService(t)
	_, err := s.StartOrder(state, "workshop", "craft", "n1", "p1", nil)
	require.NoError(t, err)
	s.AdvanceTurn(state)
	require.NoError(t, s.LockRoll(state, "workshop", "craft", 15))

	outcome, err := s.EvaluateOrder(state, "workshop", "craft")
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Empty(t, state.Bastion.Facilities[0].CurrentOrders)
}

func TestEvaluateOrderAcceptsCheckProfilelessOrderWithoutLockRoll(t *testing.T) {
	s, state := newTestService(t)
	_, err := s.StartOrder(state, "workshop", "free_chore", "n1", "p1", nil)
	require.NoError(t, err)
	s.AdvanceTurn(state)

	outcome, err := s.EvaluateOrder(state, "workshop", "free_chore")
	require.NoError(t, err)
	assert.True(t, outcome.Success)
}

func TestHasReadyOrderReflectsUnresolvedOrders(t *testing.T) {
	s, state := newTestService(t)
	assert.False(t, s.HasReadyOrder(state))

	_, err := s.StartOrder(state, "workshop", "craft", "n1", "p1", nil)
	require.NoError(t, err)
	s.AdvanceTurn(state)
	assert.True(t, s.HasReadyOrder(state))

	require.NoError(t, s.LockRoll(state, "workshop", "craft", 15))
	_, err = s.EvaluateOrder(state, "workshop", "craft")
	require.NoError(t, err)
	assert.False(t, s.HasReadyOrder(state))
}

func TestEvaluateReadyOrdersSkipsOrdersAwaitingManualRoll(t *testing.T) {
	s, state := newTestService(t)
	_, err := s.StartOrder(state, "workshop", "craft", "n1", "p1", nil)
	require.NoError(t, err)
	s.AdvanceTurn(state)

	results := s.EvaluateReadyOrders(state)
	assert.Empty(t, results)
	require.Len(t, state.Bastion.Facilities[0].CurrentOrders, 1, "unevaluated order stays put, awaiting LockRoll")

	require.NoError(t, s.LockRoll(state, "workshop", "craft", 15))
	results = s.EvaluateReadyOrders(state)
	require.Len(t, results, 1)
	assert.Empty(t, state.Bastion.Facilities[0].CurrentOrders)
}
