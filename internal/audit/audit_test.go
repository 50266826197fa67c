package audit

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Djimon/DnDBastionManager/internal/model"
)

func newTestState() *model.SessionState {
	return &model.SessionState{SessionName: "Test", CurrentTurn: 5}
}

func TestAddEntryAppendsWithDefaultRollDash(t *testing.T) {
	l := New(zerolog.Nop())
	state := newTestState()

	l.AddEntry(state, 5, Context{
		EventType: "facility", SourceType: "facility", SourceID: "workshop",
		Action: "build", Result: "success",
	})

	require.Len(t, state.AuditLog, 1)
	entry := state.AuditLog[0]
	assert.Equal(t, 5, entry.Turn)
	assert.Equal(t, "workshop", entry.SourceID)
	assert.Equal(t, "-", entry.Roll)
}

func TestAddEntryOnNilStateIsNoop(t *testing.T) {
	l := New(zerolog.Nop())
	assert.NotPanics(t, func() {
		l.AddEntry(nil, 1, Context{})
	})
}

func TestNewEntryIDReturnsUniqueValues(t *testing.T) {
	a := NewEntryID()
	b := NewEntryID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestTrimDropsEntriesOlderThanCutoff(t *testing.T) {
	l := New(zerolog.Nop())
	state := newTestState()
	state.CurrentTurn = 10
	for turn := 1; turn <= 10; turn++ {
		state.AuditLog = append(state.AuditLog, &model.AuditEntry{Turn: turn, SourceID: "x"})
	}

	l.Trim(state, 3) // cutoff = 10 - 3 = 7, keep turns >= 7

	require.Len(t, state.AuditLog, 4)
	for _, e := range state.AuditLog {
		assert.GreaterOrEqual(t, e.Turn, 7)
	}
}

func TestTrimWithNonPositiveKeepTurnsKeepsEverything(t *testing.T) {
	l := New(zerolog.Nop())
	state := newTestState()
	state.AuditLog = []*model.AuditEntry{{Turn: 1}, {Turn: 2}}

	l.Trim(state, 0)

	assert.Len(t, state.AuditLog, 2)
}

func TestTrimWithCutoffAtOrBelowZeroKeepsEverything(t *testing.T) {
	l := New(zerolog.Nop())
	state := newTestState()
	state.CurrentTurn = 2
	state.AuditLog = []*model.AuditEntry{{Turn: 1}, {Turn: 2}}

	l.Trim(state, 5) // cutoff = 2 - 5 = -3

	assert.Len(t, state.AuditLog, 2)
}
