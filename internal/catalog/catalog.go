package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// Catalog is the immutable, load-once compilation of every pack's
// content: facilities keyed by id, the event/event-group/formula
// indexes. Nothing after Load mutates a Catalog in place —
// Engine.ReloadConfig (internal/engine) loads a fresh one and swaps an
// atomic pointer to it, matching the teacher's hot-reloadable registry
// pattern.
type Catalog struct {
	Facilities    map[string]*FacilityDef
	Events        map[string]EventEntry
	EventGroups   map[string]*EventGroup
	Formulas      map[string]*FormulaDef
	StatCounters  map[string]model_StatCounterEntry
	CheckProfiles map[string]*CheckProfile
	LoadedPacks   []string
	Warnings      []string
}

// model_StatCounterEntry avoids importing model just for one small
// struct; kept local since only the loader needs the start value
// alongside the descriptor (the descriptor itself lives on the session
// the first time it is seen, per stats_registry semantics).
type model_StatCounterEntry struct {
	Name       string
	Min        *int
	Max        *int
	SourcePack string
	Start      int
}

// Loader reads base config, settings override, and content packs from a
// data directory laid out the way spec.md §6 describes
// (data/config/bastion_config.json, data/config/settings.json,
// data/facilities/*.json core packs, custom_packs/*.json overrides).
type Loader struct {
	RootDir    string
	Sanitize   bool // true: drop invalid entries and continue; false: strict
	Log        zerolog.Logger
}

// NewLoader builds a Loader rooted at dir, defaulting to sanitize mode
// (matching the shell's normal "keep going with warnings" behavior;
// strict mode is opt-in, used by validate_packs).
func NewLoader(dir string, log zerolog.Logger) *Loader {
	return &Loader{RootDir: dir, Sanitize: true, Log: log}
}

// LoadResult is the outcome of a full catalog/config load.
type LoadResult struct {
	Config   *Config
	Catalog  *Catalog
	Warnings []string
	Errors   []string
}

// Load reads the base config, optional settings override, and every
// pack under data/facilities (core) and custom_packs (user), merges
// them per §4.3, validates per §4.4, and returns the merged Config and
// compiled Catalog.
func (l *Loader) Load() (*LoadResult, error) {
	res := &LoadResult{Catalog: &Catalog{
		Facilities:   map[string]*FacilityDef{},
		Events:       map[string]EventEntry{},
		EventGroups:  map[string]*EventGroup{},
		Formulas:     map[string]*FormulaDef{},
		StatCounters: map[string]model_StatCounterEntry{},
	}}

	baseConfig, err := l.readBaseConfig()
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		baseConfig = DefaultConfig()
	}

	packs, packWarnings := l.readPacks()
	res.Warnings = append(res.Warnings, packWarnings...)

	merged := l.mergeConfigPacks(baseConfig, packs, res)

	settings, settingsWarnings, settingsErrors := l.readSettings(merged)
	res.Warnings = append(res.Warnings, settingsWarnings...)
	if len(settingsErrors) > 0 {
		res.Warnings = append(res.Warnings, settingsErrors...)
	} else if settings != nil {
		applySettings(merged, settings)
	}

	v := &Validator{Sanitize: l.Sanitize}
	for _, p := range packs {
		v.AddPack(p, merged, res.Catalog)
	}
	res.Warnings = append(res.Warnings, v.Warnings...)
	res.Errors = append(res.Errors, v.Errors...)

	res.Config = merged
	res.Catalog.CheckProfiles = merged.CheckProfiles
	sort.Strings(res.Catalog.LoadedPacks)
	return res, nil
}

func (l *Loader) readBaseConfig() (*Config, error) {
	path := filepath.Join(l.RootDir, "data", "config", "bastion_config.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read base config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	var raw struct {
		Currency         CurrencyConfig             `json:"currency"`
		CheckProfiles    map[string]json.RawMessage `json:"check_profiles"`
		DefaultBuildCosts map[string]BuildSpec       `json:"default_build_costs"`
		NPCProgression   NPCProgression             `json:"npc_progression"`
		PlayerClasses    []PlayerClass              `json:"player_classes"`
		InternalSettings InternalSettings           `json:"internal_settings"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse base config %s: %w", path, err)
	}
	cfg.Currency = raw.Currency
	cfg.DefaultBuildCosts = raw.DefaultBuildCosts
	cfg.NPCProgression = raw.NPCProgression
	cfg.PlayerClasses = raw.PlayerClasses
	if raw.InternalSettings != (InternalSettings{}) {
		cfg.InternalSettings = raw.InternalSettings
	}
	for name, rawProfile := range raw.CheckProfiles {
		cp, err := decodeCheckProfile(rawProfile)
		if err != nil {
			continue
		}
		cfg.CheckProfiles[name] = cp
	}
	return cfg, nil
}

func (l *Loader) readSettings(base *Config) (*SettingsOverride, []string, []string) {
	override, err := l.ReadSettingsFile()
	if err != nil {
		return nil, nil, nil // absent settings file is not an error
	}
	errs := validateSettings(override, base)
	if len(errs) > 0 {
		return nil, nil, errs
	}
	return override, nil, nil
}

// ReadSettingsFile reads data/config/settings.json as-is, with no merge
// applied against a base config — the get_settings operation's raw
// view of the override file, distinct from the Load-time merge.
func (l *Loader) ReadSettingsFile() (*SettingsOverride, error) {
	path := filepath.Join(l.RootDir, "data", "config", "settings.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var override SettingsOverride
	if err := json.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return &override, nil
}

// WriteSettingsFile validates override against base and, if it passes,
// writes it to data/config/settings.json so the next Load/ReloadConfig
// picks it up.
func (l *Loader) WriteSettingsFile(override *SettingsOverride, base *Config) error {
	if errs := validateSettings(override, base); len(errs) > 0 {
		return fmt.Errorf("invalid settings: %s", strings.Join(errs, "; "))
	}
	data, err := json.MarshalIndent(override, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	path := filepath.Join(l.RootDir, "data", "config", "settings.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write settings %s: %w", path, err)
	}
	return nil
}

func (l *Loader) readPacks() ([]*Pack, []string) {
	var packs []*Pack
	var warnings []string

	dirs := []string{
		filepath.Join(l.RootDir, "data", "facilities"),
		filepath.Join(l.RootDir, "custom_packs"),
	}
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		var names []string
		for _, e := range entries {
			if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)
		for _, name := range names {
			full := filepath.Join(dir, name)
			data, err := os.ReadFile(full)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("failed to read pack %s: %v", full, err))
				continue
			}
			var p Pack
			if err := json.Unmarshal(data, &p); err != nil {
				warnings = append(warnings, fmt.Sprintf("failed to parse pack %s: %v", full, err))
				continue
			}
			p.Path = full
			packs = append(packs, &p)
		}
	}
	return packs, warnings
}

// mergeConfigPacks folds every pack's allow-listed config contribution
// (currency, check_profiles, player_classes) into base, per §4.3.
func (l *Loader) mergeConfigPacks(base *Config, packs []*Pack, res *LoadResult) *Config {
	merged := cloneConfig(base)
	seenTypes := map[string]bool{}
	for _, t := range merged.Currency.Types {
		seenTypes[t] = true
	}
	for _, p := range packs {
		if p.Config == nil {
			continue
		}
		if p.Config.Currency != nil {
			for _, t := range p.Config.Currency.Types {
				if seenTypes[t] {
					res.Warnings = append(res.Warnings, fmt.Sprintf("pack %s: duplicate currency type %q ignored", p.PackID, t))
					continue
				}
				seenTypes[t] = true
				merged.Currency.Types = append(merged.Currency.Types, t)
			}
			merged.Currency.Conversion = append(merged.Currency.Conversion, p.Config.Currency.Conversion...)
		}
		for name, raw := range p.Config.CheckProfiles {
			if _, exists := merged.CheckProfiles[name]; exists {
				res.Warnings = append(res.Warnings, fmt.Sprintf("pack %s: check_profile %q already defined, ignored", p.PackID, name))
				continue
			}
			cp, err := decodeCheckProfile(raw)
			if err != nil {
				res.Warnings = append(res.Warnings, fmt.Sprintf("pack %s: invalid check_profile %q: %v", p.PackID, name, err))
				continue
			}
			merged.CheckProfiles[name] = cp
		}
		merged.PlayerClasses = append(merged.PlayerClasses, p.Config.PlayerClasses...)
	}
	merged.Currency = dedupeCurrency(merged.Currency)
	return merged
}

func cloneConfig(c *Config) *Config {
	out := *c
	out.Currency.Types = append([]string{}, c.Currency.Types...)
	out.Currency.Conversion = append([]ConversionEdge{}, c.Currency.Conversion...)
	out.CheckProfiles = map[string]*CheckProfile{}
	for k, v := range c.CheckProfiles {
		cp := *v
		out.CheckProfiles[k] = &cp
	}
	out.DefaultBuildCosts = map[string]BuildSpec{}
	for k, v := range c.DefaultBuildCosts {
		out.DefaultBuildCosts[k] = v
	}
	out.PlayerClasses = append([]PlayerClass{}, c.PlayerClasses...)
	return &out
}

// dedupeCurrency deduplicates currency types preserving first order and
// collapses conversion edges by (from,to) with the last occurrence
// winning, per §4.3 normalization rules.
func dedupeCurrency(c CurrencyConfig) CurrencyConfig {
	seen := map[string]bool{}
	var types []string
	for _, t := range c.Types {
		if !seen[t] {
			seen[t] = true
			types = append(types, t)
		}
	}
	type key struct{ from, to string }
	byKey := map[key]ConversionEdge{}
	var order []key
	for _, e := range c.Conversion {
		k := key{e.From, e.To}
		if _, exists := byKey[k]; !exists {
			order = append(order, k)
		}
		byKey[k] = e
	}
	edges := make([]ConversionEdge, 0, len(order))
	for _, k := range order {
		edges = append(edges, byKey[k])
	}
	return CurrencyConfig{Types: types, Conversion: edges, Hidden: c.Hidden}
}

func applySettings(merged *Config, s *SettingsOverride) {
	if s.Currency != nil {
		if s.Currency.Conversion != nil {
			merged.Currency.Conversion = s.Currency.Conversion
		}
		if len(s.Currency.Hidden) > 0 {
			hidden := map[string]bool{}
			for _, h := range s.Currency.Hidden {
				hidden[h] = true
			}
			var kept []string
			for _, t := range merged.Currency.Types {
				if !hidden[t] {
					kept = append(kept, t)
				}
			}
			merged.Currency.Types = kept
			var keptEdges []ConversionEdge
			for _, e := range merged.Currency.Conversion {
				if hidden[e.From] || hidden[e.To] {
					continue
				}
				keptEdges = append(keptEdges, e)
			}
			merged.Currency.Conversion = keptEdges
		}
	}
	for name, fields := range s.DefaultBuildCosts {
		spec, ok := merged.DefaultBuildCosts[name]
		if !ok {
			continue // settings may only override fields of existing keys, never add new ones
		}
		if cost, ok := fields["cost"].(map[string]any); ok {
			newCost := map[string]int{}
			for k, v := range cost {
				if f, ok := v.(float64); ok {
					newCost[k] = int(f)
				}
			}
			spec.Cost = newCost
		}
		if dur, ok := fields["duration_turns"].(float64); ok {
			spec.DurationTurns = int(dur)
		}
		merged.DefaultBuildCosts[name] = spec
	}
	applyNPCProgressionSettings(merged, s.NPCProgression)
	for name, raw := range s.CheckProfiles {
		existing, ok := merged.CheckProfiles[name]
		if !ok {
			continue
		}
		applyCheckProfileSettings(existing, raw)
	}
}

func applyNPCProgressionSettings(merged *Config, fields map[string]any) {
	if fields == nil {
		return
	}
	if v, ok := fields["xp_per_success"].(float64); ok {
		merged.NPCProgression.XPPerSuccess = int(v)
	}
	if thresholds, ok := fields["level_thresholds"].(map[string]any); ok {
		if v, ok := thresholds["apprentice_to_experienced"].(float64); ok {
			merged.NPCProgression.LevelThresholds.ApprenticeToExperienced = int(v)
		}
		if v, ok := thresholds["experienced_to_master"].(float64); ok {
			merged.NPCProgression.LevelThresholds.ExperiencedToMaster = int(v)
		}
	}
}

// applyCheckProfileSettings overrides per-level fields only; "sides" and
// the existence of "default" itself may never be touched by settings.
func applyCheckProfileSettings(cp *CheckProfile, raw json.RawMessage) {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return
	}
	delete(generic, "sides")
	delete(generic, "default")
	for lvl, lvlRaw := range generic {
		var fields map[string]any
		if err := json.Unmarshal(lvlRaw, &fields); err != nil {
			continue
		}
		level := cp.Levels[lvl]
		if level == nil {
			level = &CheckProfileLevel{}
			cp.Levels[lvl] = level
		}
		if v, ok := fields["dc"].(float64); ok {
			level.DC = int(v)
		}
		if v, ok := fields["crit_success"].([]any); ok {
			level.CritSuccess = toIntSlice(v)
		}
		if v, ok := fields["crit_fail"].([]any); ok {
			level.CritFail = toIntSlice(v)
		}
	}
}

func toIntSlice(vs []any) []int {
	out := make([]int, 0, len(vs))
	for _, v := range vs {
		if f, ok := v.(float64); ok {
			out = append(out, int(f))
		}
	}
	return out
}
