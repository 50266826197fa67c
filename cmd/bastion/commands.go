package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/Djimon/DnDBastionManager/internal/audit"
	"github.com/Djimon/DnDBastionManager/internal/catalog"
	"github.com/Djimon/DnDBastionManager/internal/engine"
	"github.com/Djimon/DnDBastionManager/internal/model"
)

func cmdValidatePacks(eng *engine.Engine) error {
	res, err := eng.ValidatePacks()
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"loaded_packs": res.Catalog.LoadedPacks,
		"warnings":     res.Warnings,
		"errors":       res.Errors,
	})
}

// parsePlayers accepts a comma-separated list of id:name pairs, e.g.
// "p1:Alice,p2:Bob", the CLI's stand-in for a richer player-roster input.
func parsePlayers(raw string) []*model.Player {
	if raw == "" {
		return nil
	}
	var players []*model.Player
	for _, pair := range strings.Split(raw, ",") {
		id, name, ok := strings.Cut(pair, ":")
		if !ok || id == "" {
			continue
		}
		players = append(players, &model.Player{PlayerID: id, Name: name})
	}
	return players
}

func cmdNewSession(eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("new-session", flag.ExitOnError)
	name := fs.String("name", "New Session", "session name")
	dm := fs.String("dm", "", "DM name")
	players := fs.String("players", "", "comma-separated id:name pairs")
	if err := fs.Parse(args); err != nil {
		return err
	}
	state := eng.NewSession(*name, *dm, parsePlayers(*players))
	return printJSON(state)
}

func cmdSave(ctx context.Context, eng *engine.Engine) error {
	if err := eng.SaveSession(ctx); err != nil {
		return err
	}
	return printJSON(map[string]any{"saved": true})
}

func cmdLoad(ctx context.Context, eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("load", flag.ExitOnError)
	file := fs.String("file", "", "session filename")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("load requires -file")
	}
	if err := eng.LoadSession(ctx, *file); err != nil {
		return err
	}
	return printJSON(eng.CurrentState())
}

func cmdLoadLatest(ctx context.Context, eng *engine.Engine) error {
	if err := eng.LoadLatestSession(ctx); err != nil {
		return err
	}
	return printJSON(eng.CurrentState())
}

func cmdListSessions(ctx context.Context, eng *engine.Engine) error {
	names, err := eng.ListSessions(ctx)
	if err != nil {
		return err
	}
	return printJSON(names)
}

func cmdDeleteSession(ctx context.Context, eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("delete-session", flag.ExitOnError)
	file := fs.String("file", "", "session filename")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("delete-session requires -file")
	}
	if err := eng.DeleteSession(ctx, *file); err != nil {
		return err
	}
	return printJSON(map[string]any{"deleted": *file})
}

func cmdBuildFacility(eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("build-facility", flag.ExitOnError)
	id := fs.String("id", "", "facility id")
	owner := fs.String("owner", "", "owning player id")
	allowNegative := fs.Bool("allow-negative", false, "force the charge through even if it leaves treasury_base negative")
	if err := fs.Parse(args); err != nil {
		return err
	}
	res, err := eng.BuildFacility(*id, *owner, *allowNegative)
	if err != nil {
		return err
	}
	return printJSON(buildResultPayload(res))
}

func cmdUpgradeFacility(eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("upgrade-facility", flag.ExitOnError)
	id := fs.String("id", "", "facility id")
	allowNegative := fs.Bool("allow-negative", false, "force the charge through even if it leaves treasury_base negative")
	if err := fs.Parse(args); err != nil {
		return err
	}
	res, err := eng.UpgradeFacility(*id, *allowNegative)
	if err != nil {
		return err
	}
	return printJSON(buildResultPayload(res))
}

func buildResultPayload(res *engine.BuildResult) map[string]any {
	if res.RequiresConfirmation {
		return map[string]any{
			"success":                 false,
			"requires_confirmation":   true,
			"projected_treasury_base": res.ProjectedTreasuryBase,
		}
	}
	return map[string]any{"success": true, "facility": res.Instance}
}

func cmdDemolishFacility(eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("demolish-facility", flag.ExitOnError)
	id := fs.String("id", "", "facility id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := eng.DemolishFacility(*id); err != nil {
		return err
	}
	return printJSON(map[string]any{"demolished": *id})
}

func cmdFacilityStates(eng *engine.Engine) error {
	states, err := eng.FacilityStates()
	if err != nil {
		return err
	}
	return printJSON(states)
}

func cmdHireNPC(eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("hire-npc", flag.ExitOnError)
	facility := fs.String("facility", "", "facility id")
	name := fs.String("name", "", "npc name")
	profession := fs.String("profession", "", "npc profession")
	if err := fs.Parse(args); err != nil {
		return err
	}
	npc, err := eng.HireNPC(*facility, *name, *profession)
	if err != nil {
		return err
	}
	return printJSON(npc)
}

func cmdMoveNPC(eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("move-npc", flag.ExitOnError)
	npc := fs.String("npc", "", "npc id")
	to := fs.String("to", "", "destination facility id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := eng.MoveNPC(*npc, *to); err != nil {
		return err
	}
	return printJSON(map[string]any{"moved": *npc, "to": *to})
}

func cmdFireNPC(eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("fire-npc", flag.ExitOnError)
	npc := fs.String("npc", "", "npc id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := eng.FireNPC(*npc); err != nil {
		return err
	}
	return printJSON(map[string]any{"fired": *npc})
}

func cmdStartOrder(eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("start-order", flag.ExitOnError)
	facility := fs.String("facility", "", "facility id")
	order := fs.String("order", "", "order id")
	npc := fs.String("npc", "", "npc id")
	owner := fs.String("owner", "", "calling player id, must own the facility")
	inputs := fs.String("inputs", "", "comma-separated name=value formula inputs")
	if err := fs.Parse(args); err != nil {
		return err
	}
	formulaInputs, err := parseFormulaInputs(*inputs)
	if err != nil {
		return err
	}
	inst, err := eng.StartOrder(*facility, *order, *npc, *owner, formulaInputs)
	if err != nil {
		return err
	}
	return printJSON(inst)
}

func parseFormulaInputs(raw string) (map[string]float64, error) {
	if raw == "" {
		return nil, nil
	}
	out := map[string]float64{}
	for _, pair := range strings.Split(raw, ",") {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid formula input %q, want name=value", pair)
		}
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid formula input %q: %w", pair, err)
		}
		out[name] = f
	}
	return out, nil
}

func cmdLockRoll(eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("lock-roll", flag.ExitOnError)
	facility := fs.String("facility", "", "facility id")
	order := fs.String("order", "", "order id")
	roll := fs.Int("roll", 0, "locked roll value")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := eng.LockRoll(*facility, *order, *roll); err != nil {
		return err
	}
	return printJSON(map[string]any{"locked": *order, "roll": *roll})
}

func cmdEvaluateOrder(eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("evaluate-order", flag.ExitOnError)
	facility := fs.String("facility", "", "facility id")
	order := fs.String("order", "", "order id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	report, err := eng.EvaluateOrder(*facility, *order)
	if err != nil {
		return err
	}
	return printJSON(report)
}

func cmdEvaluateReadyOrders(eng *engine.Engine) error {
	report, err := eng.EvaluateReadyOrders()
	if err != nil {
		return err
	}
	return printJSON(report)
}

func cmdRollAndEvaluateReadyOrders(eng *engine.Engine) error {
	report, err := eng.RollAndEvaluateReadyOrders()
	if err != nil {
		return err
	}
	return printJSON(report)
}

func cmdSetFacilityOwner(eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("set-facility-owner", flag.ExitOnError)
	id := fs.String("id", "", "facility id")
	owner := fs.String("owner", "", "new owning player id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := eng.SetFacilityOwner(*id, *owner); err != nil {
		return err
	}
	return printJSON(map[string]any{"facility": *id, "owner": *owner})
}

func cmdApplyEffects(eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("apply-effects", flag.ExitOnError)
	raw := fs.String("effects", "", "JSON array of effects, e.g. [{\"gold\":10}]")
	source := fs.String("source", "manual", "audit source id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var effects []*model.Effect
	if err := json.Unmarshal([]byte(*raw), &effects); err != nil {
		return fmt.Errorf("invalid -effects JSON: %w", err)
	}
	res, err := eng.ApplyEffects(effects, audit.Context{
		EventType: "manual", SourceType: "cli", SourceID: *source, Action: "apply_effects",
	})
	if err != nil {
		return err
	}
	return printJSON(res)
}

func cmdAddAuditEntry(eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("add-audit-entry", flag.ExitOnError)
	text := fs.String("text", "", "free-form audit log text")
	source := fs.String("source", "manual", "audit source id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := eng.AddAuditEntry(audit.Context{
		EventType: "manual", SourceType: "cli", SourceID: *source, Action: "note", LogText: *text,
	}); err != nil {
		return err
	}
	return printJSON(map[string]any{"logged": *text})
}

func cmdGetCurrencyModel(eng *engine.Engine) error {
	return printJSON(eng.GetCurrencyModel())
}

func cmdGetBastionConfig(eng *engine.Engine) error {
	return printJSON(eng.GetBastionConfig())
}

func cmdGetSettings(eng *engine.Engine) error {
	settings, err := eng.GetSettings()
	if err != nil {
		return err
	}
	return printJSON(settings)
}

func cmdSaveSettings(eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("save-settings", flag.ExitOnError)
	raw := fs.String("settings", "", "JSON-encoded settings override")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var override catalog.SettingsOverride
	if err := json.Unmarshal([]byte(*raw), &override); err != nil {
		return fmt.Errorf("invalid -settings JSON: %w", err)
	}
	if err := eng.SaveSettings(&override); err != nil {
		return err
	}
	return printJSON(map[string]any{"saved": true})
}

func cmdAdvanceTurn(eng *engine.Engine) error {
	report, err := eng.AdvanceTurn()
	if err != nil {
		return err
	}
	return printJSON(report)
}

func cmdState(eng *engine.Engine) error {
	state := eng.CurrentState()
	if state == nil {
		return fmt.Errorf("no session loaded")
	}
	return printJSON(state)
}
