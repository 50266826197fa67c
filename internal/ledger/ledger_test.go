package ledger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Djimon/DnDBastionManager/internal/audit"
	"github.com/Djimon/DnDBastionManager/internal/catalog"
	"github.com/Djimon/DnDBastionManager/internal/currency"
	"github.com/Djimon/DnDBastionManager/internal/model"
)

func newTestLedger(t *testing.T) (*Ledger, *model.SessionState) {
	t.Helper()
	cur, warnings := currency.Build(catalog.CurrencyConfig{
		Types: []string{"copper", "silver", "gold"},
		Conversion: []catalog.ConversionEdge{
			{From: "silver", To: "copper", Rate: 10},
			{From: "gold", To: "silver", Rate: 10},
		},
	})
	require.Empty(t, warnings)
	l := New(cur, audit.New(zerolog.Nop()))
	state := &model.SessionState{
		Bastion: &model.Bastion{Treasury: map[string]int{}},
	}
	return l, state
}

func TestApplyEffectsUpdatesTreasuryBase(t *testing.T) {
	l, state := newTestLedger(t)
	effect := &model.Effect{Currency: map[string]int{"gold": 1}}

	res := l.ApplyEffects(state, []*model.Effect{effect}, audit.Context{EventType: "test"})
	require.True(t, res.Success)
	assert.Equal(t, 100, state.Bastion.TreasuryBase)
	assert.Len(t, state.AuditLog, 1)
}

func TestApplyEffectsInvariantHoldsAfterSuccess(t *testing.T) {
	l, state := newTestLedger(t)
	effects := []*model.Effect{
		{Currency: map[string]int{"gold": 2, "silver": 3}},
	}
	res := l.ApplyEffects(state, effects, audit.Context{EventType: "test"})
	require.True(t, res.Success)

	total := 0
	for c, amt := range state.Bastion.Treasury {
		total += amt * int(l.Currency.FactorFloat(c))
	}
	assert.Equal(t, state.Bastion.TreasuryBase, total)
}

func TestApplyEffectsItemDelta(t *testing.T) {
	l, state := newTestLedger(t)
	item := "rope"
	qty := 3
	res := l.ApplyEffects(state, []*model.Effect{{Item: &item, Qty: &qty}}, audit.Context{EventType: "test"})
	require.True(t, res.Success)
	require.Len(t, state.Bastion.Inventory, 1)
	assert.Equal(t, "rope", state.Bastion.Inventory[0].Item)
	assert.Equal(t, 3, state.Bastion.Inventory[0].Qty)

	negQty := -3
	res = l.ApplyEffects(state, []*model.Effect{{Item: &item, Qty: &negQty}}, audit.Context{EventType: "test"})
	require.True(t, res.Success)
	assert.Empty(t, state.Bastion.Inventory)
}

func TestApplyEffectsUnknownCurrencyRecordsError(t *testing.T) {
	l, state := newTestLedger(t)
	effect := &model.Effect{Currency: map[string]int{"gems": 1}}
	res := l.ApplyEffects(state, []*model.Effect{effect}, audit.Context{EventType: "test"})
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Errors)
}

func TestRecomputeWalletNegativeCollapsesToBase(t *testing.T) {
	l, state := newTestLedger(t)
	state.Bastion.TreasuryBase = -50
	l.RecomputeWallet(state.Bastion)
	assert.Equal(t, -50, state.Bastion.Treasury["copper"])
	assert.Equal(t, 0, state.Bastion.Treasury["gold"])
}
