package model

import "encoding/json"

// Effect is a declarative mutation to session state. It is a flat JSON
// object whose fields are tagged by presence, not an exclusive union — a
// single physical effect can carry a currency delta, an item delta, a
// log line and an event reference all at once. That is why this is a
// struct of optional fields rather than a Go sum type; Mechanic (see
// catalog) is the place a true sum type fits, because a pack mechanic
// really is exactly one kind.
type Effect struct {
	// Currency holds any configured currency key mapped to its integer
	// delta; several currencies may appear in one effect.
	Currency map[string]int

	Item *string
	Qty  *int

	Stat  *string
	Delta *int

	Log *string

	Event *string
	// RandomEvent is a "group:<id>" reference into the event-group index.
	RandomEvent *string
	// Trigger names a formula id; expanded by the formula engine before
	// the residual fields of this same effect are applied.
	Trigger *string
}

// HasItem reports whether this effect carries a complete {item, qty}
// inventory delta.
func (e *Effect) HasItem() bool { return e.Item != nil && e.Qty != nil }

// HasStat reports whether this effect carries a complete {stat, delta}
// stat delta.
func (e *Effect) HasStat() bool { return e.Stat != nil && e.Delta != nil }

// IsEmpty reports whether the effect carries no field at all.
func (e *Effect) IsEmpty() bool {
	return len(e.Currency) == 0 && e.Item == nil && e.Qty == nil &&
		e.Stat == nil && e.Delta == nil && e.Log == nil &&
		e.Event == nil && e.RandomEvent == nil && e.Trigger == nil
}

var effectReservedKeys = map[string]bool{
	"item": true, "qty": true, "stat": true, "delta": true, "log": true,
	"event": true, "random_event": true, "trigger": true,
}

// UnmarshalJSON decodes an effect from its flat JSON object; every key
// not in the reserved set is treated as a currency delta.
func (e *Effect) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key, val := range raw {
		if !effectReservedKeys[key] {
			var amount int
			if err := json.Unmarshal(val, &amount); err != nil {
				continue
			}
			if e.Currency == nil {
				e.Currency = make(map[string]int)
			}
			e.Currency[key] = amount
			continue
		}
		switch key {
		case "item":
			var s string
			if err := json.Unmarshal(val, &s); err == nil {
				e.Item = &s
			}
		case "qty":
			var n int
			if err := json.Unmarshal(val, &n); err == nil {
				e.Qty = &n
			}
		case "stat":
			var s string
			if err := json.Unmarshal(val, &s); err == nil {
				e.Stat = &s
			}
		case "delta":
			var n int
			if err := json.Unmarshal(val, &n); err == nil {
				e.Delta = &n
			}
		case "log":
			var s string
			if err := json.Unmarshal(val, &s); err == nil {
				e.Log = &s
			}
		case "event":
			var s string
			if err := json.Unmarshal(val, &s); err == nil {
				e.Event = &s
			}
		case "random_event":
			var s string
			if err := json.Unmarshal(val, &s); err == nil {
				e.RandomEvent = &s
			}
		case "trigger":
			var s string
			if err := json.Unmarshal(val, &s); err == nil {
				e.Trigger = &s
			}
		}
	}
	return nil
}

// MarshalJSON encodes the effect back into the flat shape UnmarshalJSON
// accepts.
func (e *Effect) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Currency)+6)
	for k, v := range e.Currency {
		out[k] = v
	}
	if e.Item != nil {
		out["item"] = *e.Item
	}
	if e.Qty != nil {
		out["qty"] = *e.Qty
	}
	if e.Stat != nil {
		out["stat"] = *e.Stat
	}
	if e.Delta != nil {
		out["delta"] = *e.Delta
	}
	if e.Log != nil {
		out["log"] = *e.Log
	}
	if e.Event != nil {
		out["event"] = *e.Event
	}
	if e.RandomEvent != nil {
		out["random_event"] = *e.RandomEvent
	}
	if e.Trigger != nil {
		out["trigger"] = *e.Trigger
	}
	return json.Marshal(out)
}
