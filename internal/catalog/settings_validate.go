package catalog

import (
	"encoding/json"
	"fmt"
)

// validateSettings enforces the allow-list from §4.3: settings.json may
// only touch currency.conversion/hidden, default_build_costs.* fields
// on existing keys, npc_progression.*, and check_profiles.* per-level
// fields (never sides, never removing default).
func validateSettings(s *SettingsOverride, base *Config) []string {
	var errs []string
	for name := range s.DefaultBuildCosts {
		if _, ok := base.DefaultBuildCosts[name]; !ok {
			errs = append(errs, fmt.Sprintf("settings.default_build_costs.%s does not exist in base config", name))
		}
	}
	for name, raw := range s.CheckProfiles {
		if _, ok := base.CheckProfiles[name]; !ok {
			errs = append(errs, fmt.Sprintf("settings.check_profiles.%s does not exist in base config", name))
			continue
		}
		var generic map[string]json.RawMessage
		if err := json.Unmarshal(raw, &generic); err == nil {
			if _, has := generic["sides"]; has {
				errs = append(errs, fmt.Sprintf("settings.check_profiles.%s may not set sides", name))
			}
			if _, has := generic["default"]; has {
				errs = append(errs, fmt.Sprintf("settings.check_profiles.%s may not replace default", name))
			}
		}
	}
	return errs
}
