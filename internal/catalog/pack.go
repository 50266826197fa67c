package catalog

import "encoding/json"

// Pack is the raw shape of one content-pack JSON file, per spec.md §6:
// {pack_id, name, version, facilities, custom_mechanics, config?}.
type Pack struct {
	PackID          string            `json:"pack_id"`
	Name            string            `json:"name"`
	Version         string            `json:"version,omitempty"`
	Facilities      []*FacilityDef    `json:"facilities,omitempty"`
	CustomMechanics []json.RawMessage `json:"custom_mechanics,omitempty"`
	Config          *PackConfigOverride `json:"config,omitempty"`

	// Path is the filesystem path the pack was loaded from, set by the
	// loader, not present in the JSON itself.
	Path string `json:"-"`
}

// PackConfigOverride is the allow-listed subset of Config a pack may
// contribute to (currency, check_profiles, player_classes — see §4.3).
type PackConfigOverride struct {
	Currency      *CurrencyConfig          `json:"currency,omitempty"`
	CheckProfiles map[string]json.RawMessage `json:"check_profiles,omitempty"`
	PlayerClasses []PlayerClass            `json:"player_classes,omitempty"`
}

// SettingsOverride is the allow-listed shape of data/config/settings.json.
type SettingsOverride struct {
	Currency          *SettingsCurrencyOverride `json:"currency,omitempty"`
	DefaultBuildCosts map[string]map[string]any `json:"default_build_costs,omitempty"`
	NPCProgression    map[string]any            `json:"npc_progression,omitempty"`
	CheckProfiles     map[string]json.RawMessage `json:"check_profiles,omitempty"`
}

// SettingsCurrencyOverride is the only shape settings.json may use for
// currency: replace the conversion edges outright, or hide types.
type SettingsCurrencyOverride struct {
	Conversion []ConversionEdge `json:"conversion,omitempty"`
	Hidden     []string         `json:"hidden,omitempty"`
}
