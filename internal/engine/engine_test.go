package engine

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Djimon/DnDBastionManager/internal/audit"
	"github.com/Djimon/DnDBastionManager/internal/catalog"
	"github.com/Djimon/DnDBastionManager/internal/model"
	"github.com/Djimon/DnDBastionManager/internal/session"
)

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	data, err := json.MarshalIndent(v, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()

	writeJSON(t, filepath.Join(dir, "data", "config", "bastion_config.json"), map[string]any{
		"currency": map[string]any{
			"types": []string{"gold"},
		},
		"npc_progression": map[string]any{
			"xp_per_success": 5,
			"level_thresholds": map[string]any{
				"apprentice_to_experienced": 10,
			},
		},
		"internal_settings": map[string]any{
			"facility_refund_ratio": 0.5,
			"dice_max_count":        20,
			"dice_max_sides":        100,
			"formula_max_len":       500,
			"audit_log_keep_turns":  0,
		},
	})

	minLvl := 1
	writeJSON(t, filepath.Join(dir, "data", "facilities", "core.json"), map[string]any{
		"pack_id": "core",
		"name":    "Core Pack",
		"facilities": []map[string]any{
			{
				"id":        "workshop",
				"name":      "Workshop",
				"tier":      1,
				"npc_slots": 2,
				"build": map[string]any{
					"cost":           map[string]any{"gold": 10},
					"duration_turns": 1,
				},
				"orders": []map[string]any{
					{
						"id":             "craft",
						"name":           "Craft",
						"duration_turns": 1,
						"min_npc_level":  minLvl,
						"outcome": map[string]any{
							"on_success": map[string]any{
								"effects": []map[string]any{{"gold": 5}},
							},
						},
					},
				},
			},
		},
	})

	sessDir := filepath.Join(dir, "sessions")
	store, err := session.NewFileStore(sessDir, zerolog.Nop())
	require.NoError(t, err)

	e, err := New(dir, store, zerolog.Nop())
	require.NoError(t, err)
	return e
}

func TestEngineBuildHireStartAdvanceFlow(t *testing.T) {
	e := newTestEngine(t)
	state := e.NewSession("Test Game", "DM Dana", []*model.Player{{PlayerID: "p1", Name: "Alice"}})
	state.Bastion.TreasuryBase = 100
	state.Bastion.Treasury["gold"] = 100

	res, err := e.BuildFacility("workshop", "p1", false)
	require.NoError(t, err)
	require.False(t, res.RequiresConfirmation)
	require.NotNil(t, res.Instance.BuildStatus, "construction always starts in the building state")
	assert.Equal(t, 90, state.Bastion.TreasuryBase)

	firstTurn, err := e.AdvanceTurn()
	require.NoError(t, err)
	assert.Contains(t, firstTurn.FacilitiesBuilt, "workshop")
	assert.Nil(t, state.Bastion.FindFacility("workshop").BuildStatus)

	n, err := e.HireNPC("workshop", "Gwen", "")
	require.NoError(t, err)
	assert.Equal(t, 1, n.Level)

	_, err = e.StartOrder("workshop", "craft", n.NPCID, "p1", nil)
	require.NoError(t, err)

	report, err := e.AdvanceTurn()
	require.NoError(t, err)
	assert.Equal(t, 2, report.Turn)

	evalReport, err := e.RollAndEvaluateReadyOrders()
	require.NoError(t, err)
	require.Len(t, evalReport.Outcomes, 1)
	assert.True(t, evalReport.Outcomes[0].Success)
	assert.Equal(t, 95, state.Bastion.TreasuryBase)
}

func TestEngineAdvanceTurnRefusesWhileOrderReady(t *testing.T) {
	e := newTestEngine(t)
	state := e.NewSession("Test Game", "DM Dana", []*model.Player{{PlayerID: "p1", Name: "Alice"}})
	state.Bastion.TreasuryBase = 100
	state.Bastion.Treasury["gold"] = 100

	res, err := e.BuildFacility("workshop", "p1", false)
	require.NoError(t, err)
	require.NotNil(t, res.Instance)
	_, err = e.AdvanceTurn()
	require.NoError(t, err)

	n, err := e.HireNPC("workshop", "Gwen", "")
	require.NoError(t, err)
	_, err = e.StartOrder("workshop", "craft", n.NPCID, "p1", nil)
	require.NoError(t, err)
	_, err = e.AdvanceTurn()
	require.NoError(t, err)

	_, err = e.AdvanceTurn()
	assert.Error(t, err, "a ready, unevaluated order must block the next advance_turn")
}

func TestEngineBuildFacilityRequiresConfirmationWhenTreasuryWouldGoNegative(t *testing.T) {
	e := newTestEngine(t)
	e.NewSession("Test Game", "DM Dana", []*model.Player{{PlayerID: "p1", Name: "Alice"}})

	res, err := e.BuildFacility("workshop", "p1", false)
	require.NoError(t, err)
	assert.True(t, res.RequiresConfirmation)
	assert.Equal(t, -10, res.ProjectedTreasuryBase)
	assert.Nil(t, e.CurrentState().Bastion.FindFacility("workshop"))

	res, err = e.BuildFacility("workshop", "p1", true)
	require.NoError(t, err)
	require.False(t, res.RequiresConfirmation)
	require.NotNil(t, res.Instance)
	assert.Equal(t, -10, e.CurrentState().Bastion.TreasuryBase)
}

func TestEngineSaveAndLoadSessionRoundTrips(t *testing.T) {
	e := newTestEngine(t)
	e.NewSession("Persisted Game", "DM Dana", nil)

	require.NoError(t, e.SaveSession(context.Background()))

	names, err := e.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, names, 1)

	require.NoError(t, e.LoadLatestSession(context.Background()))
	assert.Equal(t, "Persisted Game", e.CurrentState().SessionName)
}

func TestEngineValidatePacksReturnsNoErrorsForFixture(t *testing.T) {
	e := newTestEngine(t)
	res, err := e.ValidatePacks()
	require.NoError(t, err)
	assert.Empty(t, res.Errors)
}

func TestEngineAdvanceTurnWithoutSessionErrors(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.AdvanceTurn()
	assert.Error(t, err)
}

func TestEngineSetFacilityOwnerReassignsOwner(t *testing.T) {
	e := newTestEngine(t)
	state := e.NewSession("Test Game", "DM Dana", []*model.Player{{PlayerID: "p1"}, {PlayerID: "p2"}})
	state.Bastion.TreasuryBase = 100
	state.Bastion.Treasury["gold"] = 100

	_, err := e.BuildFacility("workshop", "p1", false)
	require.NoError(t, err)

	require.NoError(t, e.SetFacilityOwner("workshop", "p2"))
	assert.Equal(t, "p2", state.Bastion.FindFacility("workshop").OwnerPlayerID)
}

func TestEngineApplyEffectsUpdatesTreasury(t *testing.T) {
	e := newTestEngine(t)
	state := e.NewSession("Test Game", "DM Dana", nil)
	state.Bastion.TreasuryBase = 0
	state.Bastion.Treasury["gold"] = 0

	res, err := e.ApplyEffects([]*model.Effect{{Currency: map[string]int{"gold": 7}}}, audit.Context{
		EventType: "manual", SourceType: "test", SourceID: "t1", Action: "grant",
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 7, state.Bastion.TreasuryBase)
}

func TestEngineGetCurrencyModelAndBastionConfig(t *testing.T) {
	e := newTestEngine(t)
	cur := e.GetCurrencyModel()
	require.NotNil(t, cur)
	assert.Contains(t, cur.Types, "gold")

	cfg := e.GetBastionConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, 5, cfg.NPCProgression.XPPerSuccess)
}

func TestEngineSaveSettingsPersistsAndReloads(t *testing.T) {
	e := newTestEngine(t)
	override := &catalog.SettingsOverride{
		NPCProgression: map[string]any{"xp_per_success": float64(9)},
	}
	require.NoError(t, e.SaveSettings(override))

	cfg := e.GetBastionConfig()
	assert.Equal(t, 9, cfg.NPCProgression.XPPerSuccess)

	settings, err := e.GetSettings()
	require.NoError(t, err)
	require.NotNil(t, settings)
}
