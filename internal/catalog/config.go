package catalog

import "encoding/json"

// CurrencyConfig is the currency block of the base config / a pack's
// config override: a list of currency types plus conversion edges.
type CurrencyConfig struct {
	Types      []string         `json:"types"`
	Conversion []ConversionEdge `json:"conversion"`
	Hidden     []string         `json:"hidden,omitempty"`
}

// ConversionEdge is one directed conversion edge as declared in a pack;
// the currency model treats it as bidirectional (rate and 1/rate).
type ConversionEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Rate int    `json:"rate"`
}

// NPCProgression configures XP gain and level-up thresholds.
type NPCProgression struct {
	XPPerSuccess    int               `json:"xp_per_success"`
	LevelThresholds LevelThresholds   `json:"level_thresholds"`
	LevelNames      map[string]string `json:"level_names,omitempty"`
}

// LevelThresholds are the XP thresholds NPC Service checks on award.
type LevelThresholds struct {
	ApprenticeToExperienced int `json:"apprentice_to_experienced"`
	ExperiencedToMaster     int `json:"experienced_to_master"`
}

// InternalSettings are the engine-tuning knobs from bastion_config.json.
type InternalSettings struct {
	FacilityRefundRatio float64 `json:"facility_refund_ratio"`
	DiceMaxCount        int     `json:"dice_max_count"`
	DiceMaxSides        int     `json:"dice_max_sides"`
	FormulaMaxLen       int     `json:"formula_max_len"`
	AuditLogKeepTurns   int     `json:"audit_log_keep_turns"`
}

// PlayerClass is an additive, pack-contributed player class entry. Its
// shape is opaque to the engine beyond id/name; nothing in this domain
// currently keys behavior off player class, so it is carried through
// for the shell to render.
type PlayerClass struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Extra map[string]any `json:"-"`
}

// Config is the merged configuration produced by loading the base
// config, applying a settings override, and folding in pack-contributed
// allow-listed keys.
type Config struct {
	Currency          CurrencyConfig           `json:"currency"`
	CheckProfiles     map[string]*CheckProfile `json:"check_profiles"`
	DefaultBuildCosts map[string]BuildSpec     `json:"default_build_costs"`
	NPCProgression    NPCProgression           `json:"npc_progression"`
	PlayerClasses     []PlayerClass            `json:"player_classes,omitempty"`
	InternalSettings  InternalSettings         `json:"internal_settings"`
}

// decodeCheckProfile decodes the default block plus arbitrary named
// level overrides (apprentice/experienced/master) sitting next to it.
func decodeCheckProfile(raw json.RawMessage) (*CheckProfile, error) {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	cp := &CheckProfile{Levels: map[string]*CheckProfileLevel{}}
	if v, ok := generic["sides"]; ok {
		_ = json.Unmarshal(v, &cp.Sides)
	}
	if v, ok := generic["default"]; ok {
		_ = json.Unmarshal(v, &cp.Default)
	}
	for _, lvl := range []string{"apprentice", "experienced", "master"} {
		if v, ok := generic[lvl]; ok {
			var level CheckProfileLevel
			if err := json.Unmarshal(v, &level); err == nil {
				cp.Levels[lvl] = &level
			}
		}
	}
	return cp, nil
}

// DefaultConfig returns the zero-value configuration a brand new
// process starts from before any pack is loaded.
func DefaultConfig() *Config {
	return &Config{
		CheckProfiles:     map[string]*CheckProfile{},
		DefaultBuildCosts: map[string]BuildSpec{},
		InternalSettings: InternalSettings{
			FacilityRefundRatio: 0.3,
			DiceMaxCount:        20,
			DiceMaxSides:        100,
			FormulaMaxLen:       500,
			AuditLogKeepTurns:   0,
		},
	}
}
