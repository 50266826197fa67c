package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/Djimon/DnDBastionManager/internal/config"
	"github.com/Djimon/DnDBastionManager/internal/engine"
	"github.com/Djimon/DnDBastionManager/internal/log"
	"github.com/Djimon/DnDBastionManager/internal/session"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg := config.Load()
	zlog := log.Setup(cfg.LogLevel)

	var store session.Store
	if cfg.UsesPostgres() {
		bunStore := session.NewBunStore(cfg.DatabaseDSN)
		ctx := context.Background()
		if err := bunStore.InitSchema(ctx); err != nil {
			zlog.Error().Err(err).Msg("failed to initialize postgres schema")
			os.Exit(1)
		}
		store = bunStore
		zlog.Info().Str("dsn", maskDSN(cfg.DatabaseDSN)).Msg("using postgres session store")
	} else {
		fileStore, err := session.NewFileStore(cfg.SessionsDir, zlog)
		if err != nil {
			zlog.Error().Err(err).Msg("failed to open file session store")
			os.Exit(1)
		}
		store = fileStore
		zlog.Info().Str("dir", cfg.SessionsDir).Msg("using file session store")
	}

	eng, err := engine.New(cfg.ContentDir, store, zlog)
	if err != nil {
		zlog.Error().Err(err).Msg("failed to load content")
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]
	ctx := context.Background()

	var runErr error
	switch cmd {
	case "validate-packs":
		runErr = cmdValidatePacks(eng)
	case "new-session":
		runErr = cmdNewSession(eng, args)
	case "save":
		runErr = cmdSave(ctx, eng)
	case "load":
		runErr = cmdLoad(ctx, eng, args)
	case "load-latest":
		runErr = cmdLoadLatest(ctx, eng)
	case "list-sessions":
		runErr = cmdListSessions(ctx, eng)
	case "delete-session":
		runErr = cmdDeleteSession(ctx, eng, args)
	case "build-facility":
		runErr = cmdBuildFacility(eng, args)
	case "upgrade-facility":
		runErr = cmdUpgradeFacility(eng, args)
	case "demolish-facility":
		runErr = cmdDemolishFacility(eng, args)
	case "facility-states":
		runErr = cmdFacilityStates(eng)
	case "hire-npc":
		runErr = cmdHireNPC(eng, args)
	case "move-npc":
		runErr = cmdMoveNPC(eng, args)
	case "fire-npc":
		runErr = cmdFireNPC(eng, args)
	case "start-order":
		runErr = cmdStartOrder(eng, args)
	case "lock-roll":
		runErr = cmdLockRoll(eng, args)
	case "evaluate-order":
		runErr = cmdEvaluateOrder(eng, args)
	case "evaluate-ready-orders":
		runErr = cmdEvaluateReadyOrders(eng)
	case "roll-and-evaluate-ready-orders":
		runErr = cmdRollAndEvaluateReadyOrders(eng)
	case "set-facility-owner":
		runErr = cmdSetFacilityOwner(eng, args)
	case "apply-effects":
		runErr = cmdApplyEffects(eng, args)
	case "add-audit-entry":
		runErr = cmdAddAuditEntry(eng, args)
	case "get-currency-model":
		runErr = cmdGetCurrencyModel(eng)
	case "get-bastion-config":
		runErr = cmdGetBastionConfig(eng)
	case "get-settings":
		runErr = cmdGetSettings(eng)
	case "save-settings":
		runErr = cmdSaveSettings(eng, args)
	case "advance-turn":
		runErr = cmdAdvanceTurn(eng)
	case "reload-config":
		runErr = eng.ReloadConfig()
	case "state":
		runErr = cmdState(eng)
	default:
		usage()
		os.Exit(1)
	}

	if runErr != nil {
		zlog.Error().Err(runErr).Str("command", cmd).Msg("command failed")
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `bastion is a turn-based bastion management rule engine.

Usage:
  bastion <command> [flags]

Commands:
  validate-packs                    load data/ in strict mode and report errors/warnings
  new-session -name -dm             start a fresh session
  save                              save the loaded session
  load -file <name>                 load a session by filename
  load-latest                       load the most recently saved session
  list-sessions                     list saved session filenames
  delete-session -file <name>       delete a saved session
  build-facility -id -owner [-allow-negative]
  upgrade-facility -id [-allow-negative]
  demolish-facility -id             demolish a facility, refunding part of its cost
  facility-states                   print every facility's display state
  set-facility-owner -id -owner
  hire-npc -facility -name [-profession]
  move-npc -npc -to
  fire-npc -npc
  start-order -facility -order -npc -owner
  lock-roll -facility -order -roll
  evaluate-order -facility -order   evaluate one ready order, requires a locked roll if it has a check_profile
  evaluate-ready-orders             evaluate every ready order that already has a usable roll
  roll-and-evaluate-ready-orders    roll (if unlocked) and evaluate every ready order
  apply-effects -effects <json> [-source]
  add-audit-entry -text [-source]
  get-currency-model                print the compiled currency model
  get-bastion-config                print the merged config
  get-settings                      print the raw settings.json override, if any
  save-settings -settings <json>    validate and persist a settings override, then reload
  advance-turn                      run upkeep and construction/order progression for one turn;
                                     refuses while any order is ready and unevaluated
  reload-config                     re-read data/ into a fresh hot-reloaded snapshot
  state                             print the current session state as JSON`)
}

func maskDSN(dsn string) string {
	start, end := -1, -1
	for i := 0; i < len(dsn); i++ {
		if dsn[i] == ':' && start == -1 && i+1 < len(dsn) && dsn[i+1] != '/' {
			start = i + 1
		}
		if dsn[i] == '@' && start != -1 {
			end = i
			break
		}
	}
	if start != -1 && end != -1 && end > start {
		return dsn[:start] + "***" + dsn[end:]
	}
	return dsn
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
