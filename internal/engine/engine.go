// Package engine is the top-level orchestrator: it owns the hot-reloadable
// catalog/config/currency triple behind atomic pointers, the currently
// loaded session, and exposes every rule-engine operation as one method
// surface the shell (cmd/bastion) drives.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/Djimon/DnDBastionManager/internal/audit"
	"github.com/Djimon/DnDBastionManager/internal/catalog"
	"github.com/Djimon/DnDBastionManager/internal/currency"
	"github.com/Djimon/DnDBastionManager/internal/domainerr"
	"github.com/Djimon/DnDBastionManager/internal/eventtable"
	"github.com/Djimon/DnDBastionManager/internal/expr"
	"github.com/Djimon/DnDBastionManager/internal/facility"
	"github.com/Djimon/DnDBastionManager/internal/formula"
	"github.com/Djimon/DnDBastionManager/internal/ledger"
	"github.com/Djimon/DnDBastionManager/internal/model"
	"github.com/Djimon/DnDBastionManager/internal/npc"
	"github.com/Djimon/DnDBastionManager/internal/order"
	"github.com/Djimon/DnDBastionManager/internal/session"
)

// snapshot is the immutable triple produced by one content load: the
// compiled catalog, its merged config, and the currency model derived
// from that config's currency block. Reload builds a fresh snapshot and
// swaps it in atomically so a load in progress never blocks a turn
// already underway against the old one.
type snapshot struct {
	catalog  *catalog.Catalog
	config   *catalog.Config
	currency *currency.Model
}

// Engine wires every rule-engine component together against a
// hot-reloadable content snapshot and a single loaded session.
type Engine struct {
	dataDir string
	store   session.Store
	log     zerolog.Logger

	current atomic.Pointer[snapshot]

	mu    sync.Mutex
	state *model.SessionState
	rng   *rand.Rand
}

// New loads the initial snapshot from dataDir and returns a ready
// Engine backed by store.
func New(dataDir string, store session.Store, log zerolog.Logger) (*Engine, error) {
	e := &Engine{
		dataDir: dataDir,
		store:   store,
		log:     log,
		rng:     rand.New(rand.NewPCG(1, 2)),
	}
	if err := e.ReloadConfig(); err != nil {
		return nil, err
	}
	return e, nil
}

// ReloadConfig re-reads the content directory and atomically swaps in
// the freshly compiled catalog/config/currency triple. A session
// already in progress keeps running against catalog entries it already
// resolved; only subsequent lookups see the new snapshot.
func (e *Engine) ReloadConfig() error {
	loader := catalog.NewLoader(e.dataDir, e.log)
	res, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	for _, w := range res.Warnings {
		e.log.Warn().Str("component", "catalog").Msg(w)
	}
	cur, warnings := currency.Build(res.Config.Currency)
	for _, w := range warnings {
		e.log.Warn().Str("component", "currency").Msg(w)
	}
	e.current.Store(&snapshot{catalog: res.Catalog, config: res.Config, currency: cur})
	return nil
}

// ValidatePacks loads the content directory in strict mode, returning
// every validation error/warning without touching the live snapshot.
func (e *Engine) ValidatePacks() (*catalog.LoadResult, error) {
	loader := catalog.NewLoader(e.dataDir, e.log)
	loader.Sanitize = false
	return loader.Load()
}

func (e *Engine) snap() *snapshot {
	return e.current.Load()
}

func (e *Engine) auditLog() *audit.Log { return audit.New(e.log) }

func (e *Engine) ledger() *ledger.Ledger {
	s := e.snap()
	return ledger.New(s.currency, e.auditLog())
}

func (e *Engine) formula() *formula.Engine {
	s := e.snap()
	return formula.New(s.catalog, expr.New(expr.Limits{
		DiceMaxCount: s.config.InternalSettings.DiceMaxCount,
		DiceMaxSides: s.config.InternalSettings.DiceMaxSides,
		MaxLen:       s.config.InternalSettings.FormulaMaxLen,
	}), s.currency)
}

func (e *Engine) events() *eventtable.Service {
	s := e.snap()
	return eventtable.New(s.catalog, e.auditLog(), e.rng)
}

func (e *Engine) npc() *npc.Service {
	return npc.New(e.snap().catalog)
}

func (e *Engine) facility() *facility.Service {
	s := e.snap()
	return facility.New(s.catalog, e.ledger(), e.auditLog(), s.config.InternalSettings.FacilityRefundRatio, s.config.DefaultBuildCosts)
}

func (e *Engine) order() *order.Service {
	s := e.snap()
	return order.New(s.catalog, e.ledger(), e.formula(), e.events(), e.auditLog(), e.rng)
}

func (e *Engine) requireState() (*model.SessionState, error) {
	if e.state == nil {
		return nil, domainerr.New(domainerr.CodeInvalidState, "no session loaded", nil)
	}
	return e.state, nil
}

// NewSession creates a fresh session with an empty bastion, seeded
// stats registry from the current catalog's stat_counter mechanics.
func (e *Engine) NewSession(sessionName, dmName string, players []*model.Player) *model.SessionState {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.snap()
	b := &model.Bastion{
		Treasury:      map[string]int{},
		Stats:         map[string]int{},
		StatsRegistry: map[string]*model.StatDescriptor{},
	}
	for key, entry := range s.catalog.StatCounters {
		desc := entry
		b.StatsRegistry[key] = &model.StatDescriptor{Name: desc.Name, Min: desc.Min, Max: desc.Max, SourcePack: desc.SourcePack}
		b.Stats[key] = desc.Start
	}

	state := &model.SessionState{
		SessionName: sessionName,
		DMName:      dmName,
		Bastion:     b,
		Players:     players,
		LoadedPacks: append([]string{}, s.catalog.LoadedPacks...),
	}
	e.state = state
	return state
}

// CurrentState returns the session presently loaded, or nil.
func (e *Engine) CurrentState() *model.SessionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) SaveSession(ctx context.Context) error {
	e.mu.Lock()
	state, err := e.requireState()
	e.mu.Unlock()
	if err != nil {
		return err
	}
	return e.store.Save(ctx, state)
}

func (e *Engine) LoadSession(ctx context.Context, filename string) error {
	state, err := e.store.Load(ctx, filename)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.state = state
	e.mu.Unlock()
	return nil
}

func (e *Engine) LoadLatestSession(ctx context.Context) error {
	state, err := e.store.LoadLatest(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.state = state
	e.mu.Unlock()
	return nil
}

func (e *Engine) ListSessions(ctx context.Context) ([]string, error) {
	return e.store.List(ctx)
}

func (e *Engine) DeleteSession(ctx context.Context, filename string) error {
	return e.store.Delete(ctx, filename)
}

// BuildResult carries the outcome of a cost-gated facility operation:
// either the mutation went through, or it was refused for want of funds
// and the caller must retry with allowNegative to force it through.
type BuildResult struct {
	Instance              *model.FacilityInstance
	RequiresConfirmation  bool
	ProjectedTreasuryBase int
}

// BuildFacility starts construction of facilityID for the current
// session. When charging the cost would leave treasury_base negative
// and allowNegative is false, no state is mutated and the result comes
// back with RequiresConfirmation set instead of an error.
func (e *Engine) BuildFacility(facilityID, ownerPlayerID string, allowNegative bool) (*BuildResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, err := e.requireState()
	if err != nil {
		return nil, err
	}
	inst, err := e.facility().BuildFacility(state, facilityID, ownerPlayerID, allowNegative)
	return newBuildResult(inst, err)
}

func (e *Engine) UpgradeFacility(facilityID string, allowNegative bool) (*BuildResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, err := e.requireState()
	if err != nil {
		return nil, err
	}
	err = e.facility().AddUpgradeFacility(state, facilityID, allowNegative)
	return newBuildResult(nil, err)
}

func newBuildResult(inst *model.FacilityInstance, err error) (*BuildResult, error) {
	var insufficient *domainerr.InsufficientFundsError
	if errors.As(err, &insufficient) {
		return &BuildResult{RequiresConfirmation: true, ProjectedTreasuryBase: insufficient.ProjectedTreasuryBase}, nil
	}
	if err != nil {
		return nil, err
	}
	return &BuildResult{Instance: inst}, nil
}

// SetFacilityOwner reassigns a built facility's owning player, e.g.
// after a trade between players.
func (e *Engine) SetFacilityOwner(facilityID, newOwnerPlayerID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, err := e.requireState()
	if err != nil {
		return err
	}
	inst := state.Bastion.FindFacility(facilityID)
	if inst == nil {
		return domainerr.New(domainerr.CodeNotFound, fmt.Sprintf("facility %q not found", facilityID), nil)
	}
	if newOwnerPlayerID != "" && state.FindPlayer(newOwnerPlayerID) == nil {
		return domainerr.New(domainerr.CodeNotFound, fmt.Sprintf("player %q not found", newOwnerPlayerID), nil)
	}
	prev := inst.OwnerPlayerID
	inst.OwnerPlayerID = newOwnerPlayerID
	e.auditLog().AddEntry(state, state.CurrentTurn, audit.Context{
		EventType: "facility", SourceType: "facility", SourceID: facilityID,
		Action: "set_owner", Result: "success",
		LogText: fmt.Sprintf("owner changed from %q to %q", prev, newOwnerPlayerID),
	})
	return nil
}

// ApplyEffects applies an arbitrary batch of effects directly, the
// operation most custom_mechanics and manual DM adjustments go through
// outside any facility/order context.
func (e *Engine) ApplyEffects(effects []*model.Effect, ctx audit.Context) (ledger.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, err := e.requireState()
	if err != nil {
		return ledger.Result{}, err
	}
	return e.ledger().ApplyEffects(state, effects, ctx), nil
}

// AddAuditEntry appends a free-form audit entry, e.g. a DM note not
// tied to an effect application.
func (e *Engine) AddAuditEntry(ctx audit.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, err := e.requireState()
	if err != nil {
		return err
	}
	e.auditLog().AddEntry(state, state.CurrentTurn, ctx)
	return nil
}

// GetCurrencyModel returns the currency model compiled from the
// currently loaded config.
func (e *Engine) GetCurrencyModel() *currency.Model {
	return e.snap().currency
}

// GetBastionConfig returns the merged config from the currently loaded
// snapshot (base config + pack contributions + settings override).
func (e *Engine) GetBastionConfig() *catalog.Config {
	return e.snap().config
}

// GetSettings returns the raw data/config/settings.json override, or
// nil if no override file exists.
func (e *Engine) GetSettings() (*catalog.SettingsOverride, error) {
	loader := catalog.NewLoader(e.dataDir, e.log)
	override, err := loader.ReadSettingsFile()
	if err != nil {
		return nil, nil
	}
	return override, nil
}

// SaveSettings validates override against the currently loaded base
// config, writes it to data/config/settings.json, and reloads the live
// snapshot so it takes effect immediately.
func (e *Engine) SaveSettings(override *catalog.SettingsOverride) error {
	loader := catalog.NewLoader(e.dataDir, e.log)
	if err := loader.WriteSettingsFile(override, e.snap().config); err != nil {
		return domainerr.New(domainerr.CodeValidationFailed, err.Error(), err)
	}
	return e.ReloadConfig()
}

func (e *Engine) DemolishFacility(facilityID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, err := e.requireState()
	if err != nil {
		return err
	}
	return e.facility().DemolishFacility(state, facilityID)
}

func (e *Engine) FacilityStates() (map[string]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, err := e.requireState()
	if err != nil {
		return nil, err
	}
	return e.facility().ResolveFacilityStates(state), nil
}

func (e *Engine) HireNPC(facilityID, name, profession string) (*model.NPC, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, err := e.requireState()
	if err != nil {
		return nil, err
	}
	return e.npc().HireNPC(state, facilityID, name, profession)
}

func (e *Engine) MoveNPC(npcID, toFacilityID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, err := e.requireState()
	if err != nil {
		return err
	}
	return e.npc().MoveNPC(state, npcID, toFacilityID)
}

func (e *Engine) FireNPC(npcID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, err := e.requireState()
	if err != nil {
		return err
	}
	return e.npc().FireNPC(state, npcID)
}

func (e *Engine) StartOrder(facilityID, orderID, npcID, callerPlayerID string, formulaInputs map[string]float64) (*model.OrderInstance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, err := e.requireState()
	if err != nil {
		return nil, err
	}
	return e.order().StartOrder(state, facilityID, orderID, npcID, callerPlayerID, formulaInputs)
}

func (e *Engine) LockRoll(facilityID, orderID string, roll int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, err := e.requireState()
	if err != nil {
		return err
	}
	return e.order().LockRoll(state, facilityID, orderID, roll)
}

// TurnReport summarizes what advancing one turn did.
type TurnReport struct {
	Turn            int
	FacilitiesBuilt []string
	UpkeepLogText   string
	Errors          []string
}

// AdvanceTurn runs one full turn: charges NPC upkeep, progresses
// facility construction and order duration, and trims the audit log
// per the catalog's configured retention window. It refuses to run
// while any order sits unevaluated in model.OrderStatusReady from a
// previous turn — callers must drain those first via EvaluateOrder,
// EvaluateReadyOrders or RollAndEvaluateReadyOrders.
func (e *Engine) AdvanceTurn() (*TurnReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, err := e.requireState()
	if err != nil {
		return nil, err
	}
	s := e.snap()

	orderSvc := e.order()
	if orderSvc.HasReadyOrder(state) {
		return nil, domainerr.New(domainerr.CodeInvalidState, "cannot advance turn while an order is ready and unevaluated", nil)
	}

	state.CurrentTurn++
	report := &TurnReport{Turn: state.CurrentTurn}

	npcSvc := e.npc()
	upkeep := npcSvc.ApplyUpkeep(state)
	report.UpkeepLogText = upkeep.LogText
	if len(upkeep.Effects) > 0 {
		res := e.ledger().ApplyEffects(state, upkeep.Effects, audit.Context{
			EventType: "upkeep", SourceType: "turn", SourceID: fmt.Sprintf("%d", state.CurrentTurn),
			Action: "apply_upkeep", LogText: upkeep.LogText,
		})
		report.Errors = append(report.Errors, res.Errors...)
	}

	report.FacilitiesBuilt = e.facility().AdvanceTurn(state)
	orderSvc.AdvanceTurn(state)

	if keep := s.config.InternalSettings.AuditLogKeepTurns; keep > 0 {
		e.auditLog().Trim(state, keep)
	}

	return report, nil
}

// OrderEvalReport summarizes a batch order-evaluation call.
type OrderEvalReport struct {
	Outcomes []order.EvalOutcome
	Errors   []string
}

// RollAndEvaluateReadyOrders rolls (when not already locked) and
// evaluates every ready order, awarding NPC XP for each outcome.
func (e *Engine) RollAndEvaluateReadyOrders() (*OrderEvalReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, err := e.requireState()
	if err != nil {
		return nil, err
	}
	outcomes := e.order().RollAndEvaluateReadyOrders(state)
	return e.finishOrderEval(state, outcomes), nil
}

// EvaluateReadyOrders evaluates every ready order that already carries
// a usable roll, leaving any still awaiting a manual LockRoll in place.
func (e *Engine) EvaluateReadyOrders() (*OrderEvalReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, err := e.requireState()
	if err != nil {
		return nil, err
	}
	outcomes := e.order().EvaluateReadyOrders(state)
	return e.finishOrderEval(state, outcomes), nil
}

// EvaluateOrder evaluates a single ready order, rejecting it unless any
// check_profile it carries already has a locked, in-range roll.
func (e *Engine) EvaluateOrder(facilityID, orderID string) (*OrderEvalReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, err := e.requireState()
	if err != nil {
		return nil, err
	}
	outcome, err := e.order().EvaluateOrder(state, facilityID, orderID)
	if err != nil {
		return nil, err
	}
	return e.finishOrderEval(state, []order.EvalOutcome{outcome}), nil
}

func (e *Engine) finishOrderEval(state *model.SessionState, outcomes []order.EvalOutcome) *OrderEvalReport {
	s := e.snap()
	npcSvc := e.npc()
	report := &OrderEvalReport{Outcomes: outcomes}

	for _, outcome := range outcomes {
		report.Errors = append(report.Errors, outcome.Errors...)
		n, fac := locateNPCAcrossSession(state, outcome.NPCID)
		if n == nil || fac == nil {
			continue
		}
		leveled, newLevel := npcSvc.AwardXP(n, s.config.NPCProgression, outcome.DurationTurns)
		if leveled {
			e.auditLog().AddEntry(state, state.CurrentTurn, audit.Context{
				EventType: "npc", SourceType: "npc", SourceID: n.NPCID,
				Action: "level_up", Result: "success",
				LogText: fmt.Sprintf("%s reached level %d", n.Name, newLevel),
			})
		}
	}
	return report
}

func locateNPCAcrossSession(state *model.SessionState, npcID string) (*model.NPC, *model.FacilityInstance) {
	if npcID == "" {
		return nil, nil
	}
	for _, fac := range state.Bastion.Facilities {
		if n := fac.FindNPC(npcID); n != nil {
			return n, fac
		}
	}
	return nil, nil
}
