// Package eventtable is the rule engine's C7: resolving event and
// random_event effect references against the catalog's event/event-group
// index, with weighted random selection for groups.
package eventtable

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/Djimon/DnDBastionManager/internal/audit"
	"github.com/Djimon/DnDBastionManager/internal/catalog"
	"github.com/Djimon/DnDBastionManager/internal/model"
)

// Service resolves event references and appends them to a session's
// event history.
type Service struct {
	Catalog *catalog.Catalog
	Audit   *audit.Log
	RNG     *rand.Rand
}

func New(cat *catalog.Catalog, auditLog *audit.Log, rng *rand.Rand) *Service {
	return &Service{Catalog: cat, Audit: auditLog, RNG: rng}
}

// Resolve handles one effect's event/random_event reference (if any),
// appending to event_history and writing an audit entry. It never
// mutates treasury/inventory itself, per §4.7 — events are informational.
func (s *Service) Resolve(state *model.SessionState, eff *model.Effect) []string {
	var warnings []string
	if eff.Event != nil {
		s.resolveEventID(state, *eff.Event, &warnings)
	}
	if eff.RandomEvent != nil {
		s.resolveRandomEvent(state, *eff.RandomEvent, &warnings)
	}
	return warnings
}

func (s *Service) resolveEventID(state *model.SessionState, eventID string, warnings *[]string) {
	entry, ok := s.Catalog.Events[eventID]
	if !ok {
		*warnings = append(*warnings, fmt.Sprintf("unknown event %q", eventID))
		return
	}
	s.appendHistory(state, entry)
}

func (s *Service) resolveRandomEvent(state *model.SessionState, ref string, warnings *[]string) {
	gid := strings.TrimPrefix(ref, "group:")
	group, ok := s.Catalog.EventGroups[gid]
	if !ok {
		*warnings = append(*warnings, fmt.Sprintf("unknown event group %q", gid))
		return
	}
	entry, ok := s.sampleGroup(group)
	if !ok {
		*warnings = append(*warnings, fmt.Sprintf("event group %q is empty", gid))
		return
	}
	ev, ok := s.Catalog.Events[entry]
	if !ok {
		*warnings = append(*warnings, fmt.Sprintf("event group %q references unknown event %q", gid, entry))
		return
	}
	s.appendHistory(state, ev)
}

// sampleGroup draws one weighted entry, per §4.7: uniformly pick an
// integer from [1, sum(weights)] and walk the list subtracting weights.
// Non-positive or missing weights default to 1.
func (s *Service) sampleGroup(group *catalog.EventGroup) (string, bool) {
	if len(group.Entries) == 0 {
		return "", false
	}
	total := 0
	weights := make([]int, len(group.Entries))
	for i, e := range group.Entries {
		w := e.Weight
		if w <= 0 {
			w = 1
		}
		weights[i] = w
		total += w
	}
	pick := 1 + s.RNG.IntN(total)
	for i, w := range weights {
		pick -= w
		if pick <= 0 {
			return group.Entries[i].EventID, true
		}
	}
	return group.Entries[len(group.Entries)-1].EventID, true
}

func (s *Service) appendHistory(state *model.SessionState, entry catalog.EventEntry) {
	state.EventHistory = append(state.EventHistory, &model.EventHistoryEntry{
		Turn:    state.CurrentTurn,
		EventID: entry.ID,
		Text:    entry.Text,
	})
	s.Audit.AddEntry(state, state.CurrentTurn, audit.Context{
		EventType:  "event",
		SourceType: "event",
		SourceID:   entry.ID,
		Action:     "resolve",
		Result:     "success",
		LogText:    entry.Text,
	})
}
