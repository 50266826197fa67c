// Package model defines the typed records that make up a bastion session:
// the aggregate root (SessionState), the bastion it owns, and everything
// nested under it. None of these carry behavior beyond small query
// helpers — mutation lives in the ledger, facility, npc and order
// packages, which is where the invariants they enforce actually live.
package model

// BuildStatus values for FacilityInstance.BuildStatus.Status.
const (
	BuildStatusBuilding    = "building"
	BuildStatusUpgrading   = "upgrading"
	BuildStatusOperational = "operational"
)

// Order instance statuses.
const (
	OrderStatusInProgress = "in_progress"
	OrderStatusReady      = "ready"
)

// Roll sources for OrderInstance.RollSource.
const (
	RollSourceManual = "manual"
	RollSourceAuto   = "auto"
)

// Facility classification returned by FacilityStates queries.
const (
	FacilityStateBuilding  = "building"
	FacilityStateUpgrading = "upgrading"
	FacilityStateReady     = "ready"
	FacilityStateBusy      = "busy"
	FacilityStateFree      = "free"
)

// InventoryItem is one stack in the bastion's inventory.
type InventoryItem struct {
	Item string `json:"item"`
	Qty  int    `json:"qty"`
}

// StatDescriptor documents one entry of Bastion.StatsRegistry, carried
// through from a pack's stat_counter custom mechanic.
type StatDescriptor struct {
	Name       string `json:"name"`
	Min        *int   `json:"min,omitempty"`
	Max        *int   `json:"max,omitempty"`
	SourcePack string `json:"source_pack,omitempty"`
}

// BuildStatus tracks an in-progress build or upgrade on a FacilityInstance.
type BuildStatus struct {
	Status         string `json:"status"`
	StartedTurn    int    `json:"started_turn"`
	RemainingTurns *int   `json:"remaining_turns,omitempty"`
	TargetID       string `json:"target_id,omitempty"`
}

// NPC is a hired non-player character, either assigned to a facility or
// sitting in the bastion's unassigned reserve.
type NPC struct {
	NPCID      string         `json:"npc_id"`
	Name       string         `json:"name"`
	Profession string         `json:"profession"`
	Level      int            `json:"level"`
	XP         int            `json:"xp"`
	Upkeep     map[string]int `json:"upkeep"`
	HiredTurn  int            `json:"hired_turn"`
}

// OrderInstance is a per-session unit of work running at a facility.
type OrderInstance struct {
	OrderID       string                         `json:"order_id"`
	NPCID         string                         `json:"npc_id"`
	NPCLevel      int                            `json:"npc_level"`
	StartedTurn   int                            `json:"started_turn"`
	DurationTurns int                            `json:"duration_turns"`
	Progress      int                            `json:"progress"`
	Status        string                         `json:"status"`
	Roll          *int                           `json:"roll,omitempty"`
	RollLocked    bool                           `json:"roll_locked"`
	RollSource    string                         `json:"roll_source,omitempty"`
	FormulaInputs map[string]map[string]float64 `json:"formula_inputs,omitempty"`
	ReadyTurn     *int                           `json:"ready_turn,omitempty"`
}

// IsActive reports whether the instance still occupies an NPC slot
// (in_progress or ready, but not yet evaluated/removed).
func (o *OrderInstance) IsActive() bool {
	if o == nil {
		return false
	}
	return o.Status == OrderStatusInProgress || o.Status == OrderStatusReady
}

// FacilityInstance is a per-session facility backed by a catalog entry.
type FacilityInstance struct {
	FacilityID    string           `json:"facility_id"`
	BuiltTurn     *int             `json:"built_turn,omitempty"`
	UpgradedTurn  *int             `json:"upgraded_turn,omitempty"`
	BuildStatus   *BuildStatus     `json:"build_status,omitempty"`
	AssignedNPCs  []*NPC           `json:"assigned_npcs,omitempty"`
	CurrentOrders []*OrderInstance `json:"current_orders,omitempty"`
	OwnerPlayerID string           `json:"owner_player_id,omitempty"`
	CustomStats   map[string]int   `json:"custom_stats,omitempty"`
}

// ActiveOrderCount returns the number of orders still occupying a slot.
func (f *FacilityInstance) ActiveOrderCount() int {
	n := 0
	for _, o := range f.CurrentOrders {
		if o.IsActive() {
			n++
		}
	}
	return n
}

// FindNPC returns the assigned NPC with the given id, or nil.
func (f *FacilityInstance) FindNPC(npcID string) *NPC {
	for _, n := range f.AssignedNPCs {
		if n.NPCID == npcID {
			return n
		}
	}
	return nil
}

// Bastion is the player group's managed base, the aggregate the rest of
// the session hangs off of.
type Bastion struct {
	Name           string                     `json:"name"`
	Location       string                     `json:"location,omitempty"`
	Description    string                     `json:"description,omitempty"`
	Treasury       map[string]int             `json:"treasury"`
	TreasuryBase   int                        `json:"treasury_base"`
	Inventory      []*InventoryItem           `json:"inventory,omitempty"`
	Stats          map[string]int             `json:"stats,omitempty"`
	StatsRegistry  map[string]*StatDescriptor `json:"stats_registry,omitempty"`
	Facilities     []*FacilityInstance        `json:"facilities,omitempty"`
	NPCsUnassigned []*NPC                     `json:"npcs_unassigned,omitempty"`
}

// FindFacility returns the facility instance with the given id, or nil.
func (b *Bastion) FindFacility(facilityID string) *FacilityInstance {
	for _, f := range b.Facilities {
		if f.FacilityID == facilityID {
			return f
		}
	}
	return nil
}

// Player is a member of the table, referenced by facilities as an owner.
type Player struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name,omitempty"`
}

// AuditEntry is one append-only record of a state-mutating operation.
type AuditEntry struct {
	Turn       int    `json:"turn"`
	EventType  string `json:"event_type"`
	SourceType string `json:"source_type"`
	SourceID   string `json:"source_id"`
	Action     string `json:"action"`
	Roll       string `json:"roll"`
	Result     string `json:"result"`
	Changes    string `json:"changes"`
	LogText    string `json:"log_text"`
}

// EventHistoryEntry records a resolved event or random_event reference.
type EventHistoryEntry struct {
	Turn    int    `json:"turn"`
	EventID string `json:"event_id"`
	Text    string `json:"text"`
}

// SessionState is the single persisted aggregate the engine operates on.
type SessionState struct {
	SessionID    string `json:"session_id"`
	SessionName  string `json:"session_name"`
	DMName       string `json:"dm_name,omitempty"`
	Created      string `json:"created,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
	CurrentTurn  int    `json:"current_turn"`

	Bastion *Bastion `json:"bastion"`

	Players     []*Player `json:"players,omitempty"`
	LoadedPacks []string  `json:"loaded_packs,omitempty"`

	TurnLog      []string             `json:"turn_log,omitempty"`
	AuditLog     []*AuditEntry        `json:"audit_log,omitempty"`
	EventHistory []*EventHistoryEntry `json:"event_history,omitempty"`

	// SessionFilename is attached on load, not part of the logical state.
	SessionFilename string `json:"_session_filename,omitempty"`
}

// FindPlayer returns the player with the given id, or nil.
func (s *SessionState) FindPlayer(playerID string) *Player {
	for _, p := range s.Players {
		if p.PlayerID == playerID {
			return p
		}
	}
	return nil
}
