// Package audit is the append-only audit trail: one entry per
// state-mutating operation, grounded on core_engine/audit_log.py's
// add_entry/add_entry_from_event shape.
package audit

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Djimon/DnDBastionManager/internal/model"
)

// Context carries the fields one audit entry needs beyond the session
// and turn number; operations construct one inline at the call site,
// matching the original's lightweight dict-of-fields context objects.
type Context struct {
	EventType  string
	SourceType string
	SourceID   string
	Action     string
	Roll       string
	Result     string
	Changes    string
	LogText    string
}

// Log appends audit entries to a session and can trim the oldest ones
// on request.
type Log struct {
	log zerolog.Logger
}

func New(log zerolog.Logger) *Log {
	return &Log{log: log.With().Str("component", "audit").Logger()}
}

// AddEntry appends one audit entry for the given turn and context.
func (l *Log) AddEntry(state *model.SessionState, turn int, ctx Context) {
	if state == nil {
		return
	}
	roll := ctx.Roll
	if roll == "" {
		roll = "-"
	}
	entry := &model.AuditEntry{
		Turn:       turn,
		EventType:  ctx.EventType,
		SourceType: ctx.SourceType,
		SourceID:   ctx.SourceID,
		Action:     ctx.Action,
		Roll:       roll,
		Result:     ctx.Result,
		Changes:    ctx.Changes,
		LogText:    ctx.LogText,
	}
	state.AuditLog = append(state.AuditLog, entry)
	l.log.Info().
		Int("turn", turn).
		Str("event_type", ctx.EventType).
		Str("source_type", ctx.SourceType).
		Str("source_id", ctx.SourceID).
		Str("action", ctx.Action).
		Str("result", ctx.Result).
		Msg("audit entry")
}

// NewEntryID returns a fresh, collision-resistant id suffix for audit
// entries that need one beyond their position in the log (the original
// never numbered entries explicitly). model.AuditEntry has no id field,
// and the session stores do not call this.
func NewEntryID() string {
	return uuid.NewString()
}

// Trim drops audit entries older than keepTurns behind the current
// turn. A non-positive keepTurns means "keep everything" — this is the
// mandatory-but-conditional policy decided in DESIGN.md for the
// audit_log_keep_turns open question.
func (l *Log) Trim(state *model.SessionState, keepTurns int) {
	if state == nil || keepTurns <= 0 || len(state.AuditLog) == 0 {
		return
	}
	cutoff := state.CurrentTurn - keepTurns
	if cutoff <= 0 {
		return
	}
	kept := state.AuditLog[:0:0]
	for _, e := range state.AuditLog {
		if e.Turn >= cutoff {
			kept = append(kept, e)
		}
	}
	dropped := len(state.AuditLog) - len(kept)
	state.AuditLog = kept
	if dropped > 0 {
		l.log.Debug().Int("dropped", dropped).Int("cutoff_turn", cutoff).Msg("audit log trimmed")
	}
}
