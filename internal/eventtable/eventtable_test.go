package eventtable

import (
	"math/rand/v2"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Djimon/DnDBastionManager/internal/audit"
	"github.com/Djimon/DnDBastionManager/internal/catalog"
	"github.com/Djimon/DnDBastionManager/internal/model"
)

func newTestService(t *testing.T, cat *catalog.Catalog) (*Service, *model.SessionState) {
	t.Helper()
	rng := rand.New(rand.NewPCG(1, 2))
	s := New(cat, audit.New(zerolog.Nop()), rng)
	state := &model.SessionState{Bastion: &model.Bastion{}, CurrentTurn: 3}
	return s, state
}

func TestResolveEventIDAppendsHistory(t *testing.T) {
	cat := &catalog.Catalog{
		Events: map[string]catalog.EventEntry{
			"bandit_raid": {ID: "bandit_raid", Text: "Bandits raid the storehouse."},
		},
	}
	s, state := newTestService(t, cat)
	id := "bandit_raid"
	warnings := s.Resolve(state, &model.Effect{Event: &id})

	assert.Empty(t, warnings)
	require.Len(t, state.EventHistory, 1)
	assert.Equal(t, "bandit_raid", state.EventHistory[0].EventID)
	assert.Equal(t, 3, state.EventHistory[0].Turn)
	require.Len(t, state.AuditLog, 1)
}

func TestResolveUnknownEventWarns(t *testing.T) {
	cat := &catalog.Catalog{Events: map[string]catalog.EventEntry{}}
	s, state := newTestService(t, cat)
	id := "ghost"
	warnings := s.Resolve(state, &model.Effect{Event: &id})
	assert.NotEmpty(t, warnings)
	assert.Empty(t, state.EventHistory)
}

func TestResolveRandomEventPicksFromGroupDeterministically(t *testing.T) {
	cat := &catalog.Catalog{
		Events: map[string]catalog.EventEntry{
			"common":    {ID: "common", Text: "A common happening."},
			"rare":      {ID: "rare", Text: "A rare happening."},
		},
		EventGroups: map[string]*catalog.EventGroup{
			"wilderness": {
				ID: "wilderness",
				Entries: []catalog.WeightedEventRef{
					{EventID: "common", Weight: 9},
					{EventID: "rare", Weight: 1},
				},
			},
		},
	}
	s, state := newTestService(t, cat)
	ref := "group:wilderness"
	warnings := s.Resolve(state, &model.Effect{RandomEvent: &ref})

	assert.Empty(t, warnings)
	require.Len(t, state.EventHistory, 1)
	assert.Contains(t, []string{"common", "rare"}, state.EventHistory[0].EventID)
}

func TestResolveRandomEventEmptyGroupWarns(t *testing.T) {
	cat := &catalog.Catalog{
		EventGroups: map[string]*catalog.EventGroup{
			"empty": {ID: "empty"},
		},
	}
	s, state := newTestService(t, cat)
	ref := "group:empty"
	warnings := s.Resolve(state, &model.Effect{RandomEvent: &ref})
	assert.NotEmpty(t, warnings)
}

func TestSampleGroupDefaultsMissingWeightToOne(t *testing.T) {
	group := &catalog.EventGroup{
		Entries: []catalog.WeightedEventRef{
			{EventID: "a", Weight: 0},
			{EventID: "b", Weight: 0},
		},
	}
	s, _ := newTestService(t, &catalog.Catalog{})
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id, ok := s.sampleGroup(group)
		require.True(t, ok)
		seen[id] = true
	}
	assert.True(t, seen["a"] || seen["b"])
}
