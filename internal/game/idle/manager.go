package idle

import (
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"idlerealm.gg/internal/game/catalogs"
	"idlerealm.gg/internal/game/combat"
	"idlerealm.gg/internal/game/stats"
	"idlerealm.gg/internal/game/tuning"
	"idlerealm.gg/internal/ledger"
	"idlerealm.gg/internal/protocol"
)

// ManagerConfig wires the idle engine to its collaborators. Store and
// NowMs default to the in-memory store and the wall clock.
type ManagerConfig struct {
	Logger    *log.Logger
	Tuning    *tuning.Tuning
	Catalogs  *catalogs.Catalogs
	Inventory InventoryStore
	Creatures CreatureStore
	Ledger    Ledger
	Notifier  Notifier
	Bridge    Bridge
	Journal   Journal
	Store     ActivityStore
	NowMs     func() int64
	Seed      int64
}

// Manager is the command boundary of the idle engine: it validates and
// executes start/stop/login/logout, owns per-user liveness, and builds
// the completion callbacks that run on the scheduler goroutine.
type Manager struct {
	logger *log.Logger
	tun    *tuning.Tuning
	cats   *catalogs.Catalogs

	inv       InventoryStore
	creatures CreatureStore
	ledger    Ledger
	notifier  Notifier
	bridge    Bridge
	journal   Journal

	sched *Scheduler
	reg   *Registry
	locks *KeyedMutex
	nowMs func() int64

	liveMu sync.RWMutex
	live   map[string]struct{}

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewManager(cfg ManagerConfig) *Manager {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	nowMs := cfg.NowMs
	if nowMs == nil {
		nowMs = func() int64 { return time.Now().UnixMilli() }
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	m := &Manager{
		logger:    cfg.Logger,
		tun:       cfg.Tuning,
		cats:      cfg.Catalogs,
		inv:       cfg.Inventory,
		creatures: cfg.Creatures,
		ledger:    cfg.Ledger,
		notifier:  cfg.Notifier,
		bridge:    cfg.Bridge,
		journal:   cfg.Journal,
		locks:     NewKeyedMutex(),
		nowMs:     nowMs,
		live:      map[string]struct{}{},
		rng:       rand.New(rand.NewSource(seed)),
	}
	m.sched = NewScheduler(cfg.Logger)
	m.reg = NewRegistry(store, m.sched, cfg.Bridge, cfg.Tuning.MaxConcurrentIdleActivities, cfg.Logger, nowMs)
	return m
}

// Close stops the scheduler. Callers snapshot live users first.
func (m *Manager) Close() {
	m.sched.Close()
}

// Activities lists a user's registered activities for read-only
// surfaces.
func (m *Manager) Activities(userID string) []Info {
	return m.reg.List(userID)
}

func (m *Manager) isLive(userID string) bool {
	m.liveMu.RLock()
	_, ok := m.live[userID]
	m.liveMu.RUnlock()
	return ok
}

func (m *Manager) setLive(userID string, v bool) {
	m.liveMu.Lock()
	if v {
		m.live[userID] = struct{}{}
	} else {
		delete(m.live, userID)
	}
	m.liveMu.Unlock()
}

// newRNG derives an independent generator; rand.Rand is not safe for
// concurrent use, so each simulation gets its own.
func (m *Manager) newRNG() *rand.Rand {
	m.rngMu.Lock()
	seed := m.rng.Int63()
	m.rngMu.Unlock()
	return rand.New(rand.NewSource(seed))
}

func (m *Manager) emit(userID string, ev protocol.Event) {
	if m.notifier == nil {
		return
	}
	m.notifier.Emit(userID, ev)
}

func (m *Manager) journalWrite(event string, v interface{}) {
	if m.journal == nil {
		return
	}
	m.journal.Write(event, v)
}

func (m *Manager) capMs() int64 {
	return int64(m.tun.MaxOfflineIdleProgressS) * 1000
}

// Login marks the user live, reconciles every persisted activity and
// re-registers the survivors. The batched progress updates are emitted
// as one idle-progress-update event and returned.
func (m *Manager) Login(userID string) []protocol.ProgressUpdate {
	unlock := m.locks.Lock(userID)
	defer unlock()

	m.setLive(userID, true)
	now := m.nowMs()

	recs, err := m.bridge.Load(userID)
	if err != nil {
		m.logger.Printf("[idle] %s: load activities: %v", userID, err)
		return nil
	}
	if err := m.bridge.DeleteAll(userID); err != nil {
		m.logger.Printf("[idle] %s: delete persisted activities: %v", userID, err)
	}
	if len(recs) == 0 {
		return nil
	}

	updates := make([]protocol.ProgressUpdate, 0, len(recs))
	for _, rec := range recs {
		a, err := decodeRecord(rec, m.cats)
		if err != nil {
			m.logger.Printf("[idle] %s: restore: %v", userID, err)
			continue
		}
		upd, resume := m.reconcile(a, now)
		updates = append(updates, upd)
		if resume != nil {
			if err := m.register(resume); err != nil {
				m.logger.Printf("[idle] %s: resume %s: %v", userID, resume.Kind, err)
			}
		}
	}
	if len(updates) > 0 {
		m.emit(userID, protocol.IdleProgressEvent(updates))
		m.journalWrite("reconcile", map[string]interface{}{
			"user": userID, "activities": len(updates), "at_ms": now,
		})
	}
	return updates
}

// Logout suspends the user: the liveness flag drops first so in-flight
// completion callbacks stop re-arming, then every activity is stamped
// and persisted.
func (m *Manager) Logout(userID string) int {
	unlock := m.locks.Lock(userID)
	defer unlock()

	m.setLive(userID, false)
	n := m.reg.SnapshotAndClearForLogout(userID)
	if n > 0 {
		m.journalWrite("logout", map[string]interface{}{"user": userID, "activities": n})
	}
	return n
}

func (m *Manager) reconcile(a *Activity, nowMs int64) (protocol.ProgressUpdate, *Activity) {
	switch a.Payload.(type) {
	case FarmingPayload:
		return m.reconcileFarming(a, nowMs)
	case CraftingPayload:
		return m.reconcileCrafting(a, nowMs)
	case BreedingPayload:
		return m.reconcileBreeding(a, nowMs)
	case CombatPayload:
		return m.reconcileCombat(a, nowMs)
	default:
		m.logger.Printf("[idle] %s: reconcile: unknown payload %T", a.UserID, a.Payload)
		return protocol.ProgressUpdate{Kind: string(a.Kind)}, nil
	}
}

// StartFarming validates and registers a repeating farm on one
// farmable, replacing an existing farm of the same item.
func (m *Manager) StartFarming(userID, itemID string) error {
	unlock := m.locks.Lock(userID)
	defer unlock()

	if !m.isLive(userID) {
		return startErr(protocol.ErrNotLive, "not logged in")
	}
	def, ok := m.cats.Farmables.ByID[itemID]
	if !ok {
		return startErr(protocol.ErrNotFound, "unknown farmable %s", itemID)
	}
	if lvl := m.inv.Level(userID, stats.SkillFarming); lvl < def.RequiredLevel {
		return startErr(protocol.ErrLevelTooLow, "farming level %d, need %d", lvl, def.RequiredLevel)
	}
	if !m.inv.CanMintMore(userID, "item", itemID) {
		return startErr(protocol.ErrNoCapacity, "inventory full")
	}

	m.reg.Remove(userID, KindFarming, MatchKey(itemID))
	a := &Activity{
		ID:         uuid.New(),
		UserID:     userID,
		Kind:       KindFarming,
		StartMs:    m.nowMs(),
		DurationMs: int64(def.DurationS) * 1000,
		Payload:    FarmingPayload{Farmable: def},
	}
	return m.register(a)
}

func (m *Manager) StopFarming(userID, itemID string) error {
	unlock := m.locks.Lock(userID)
	defer unlock()

	if !m.isLive(userID) {
		return startErr(protocol.ErrNotLive, "not logged in")
	}
	if m.reg.Remove(userID, KindFarming, MatchKey(itemID)) == 0 {
		return startErr(protocol.ErrNotFound, "not farming %s", itemID)
	}
	return nil
}

func (m *Manager) StartCrafting(userID, equipmentID string) error {
	unlock := m.locks.Lock(userID)
	defer unlock()

	if !m.isLive(userID) {
		return startErr(protocol.ErrNotLive, "not logged in")
	}
	recipe, ok := m.cats.Recipes.ByID[equipmentID]
	if !ok {
		return startErr(protocol.ErrNotFound, "unknown recipe %s", equipmentID)
	}
	if lvl := m.inv.Level(userID, stats.SkillCrafting); lvl < recipe.RequiredLevel {
		return startErr(protocol.ErrLevelTooLow, "crafting level %d, need %d", lvl, recipe.RequiredLevel)
	}
	ids, qtys := recipeLines(recipe, 1)
	if !m.inv.OwnsItems(userID, ids, qtys) {
		return startErr(protocol.ErrNoResource, "missing materials for %s", equipmentID)
	}
	if !m.inv.CanMintMore(userID, "equipment", equipmentID) {
		return startErr(protocol.ErrNoCapacity, "equipment storage full")
	}

	m.reg.Remove(userID, KindCrafting, MatchKey(equipmentID))
	a := &Activity{
		ID:         uuid.New(),
		UserID:     userID,
		Kind:       KindCrafting,
		StartMs:    m.nowMs(),
		DurationMs: int64(recipe.DurationS) * 1000,
		Payload:    CraftingPayload{Recipe: recipe},
	}
	return m.register(a)
}

func (m *Manager) StopCrafting(userID, equipmentID string) error {
	unlock := m.locks.Lock(userID)
	defer unlock()

	if !m.isLive(userID) {
		return startErr(protocol.ErrNotLive, "not logged in")
	}
	if m.reg.Remove(userID, KindCrafting, MatchKey(equipmentID)) == 0 {
		return startErr(protocol.ErrNotFound, "not crafting %s", equipmentID)
	}
	return nil
}

func (m *Manager) StartBreeding(userID, sireID, dameID string) error {
	unlock := m.locks.Lock(userID)
	defer unlock()

	if !m.isLive(userID) {
		return startErr(protocol.ErrNotLive, "not logged in")
	}
	sid, err := uuid.Parse(sireID)
	if err != nil {
		return startErr(protocol.ErrBadRequest, "bad sire id")
	}
	did, err := uuid.Parse(dameID)
	if err != nil {
		return startErr(protocol.ErrBadRequest, "bad dame id")
	}
	if sid == did {
		return startErr(protocol.ErrBadRequest, "sire and dame must differ")
	}
	sire, ok := m.creatures.Slime(userID, sid)
	if !ok {
		return startErr(protocol.ErrNotOwner, "sire is not your slime")
	}
	dame, ok := m.creatures.Slime(userID, did)
	if !ok {
		return startErr(protocol.ErrNotOwner, "dame is not your slime")
	}
	if eq, ok := m.creatures.GetEquippedID(userID); ok && (eq == sid || eq == did) {
		return startErr(protocol.ErrConflict, "slime is equipped for battle")
	}
	if !m.creatures.CanMintCreature(userID) {
		return startErr(protocol.ErrNoCapacity, "slime roster full")
	}

	m.reg.Remove(userID, KindBreeding, MatchKey(PairKey(sid, did)))
	a := &Activity{
		ID:         uuid.New(),
		UserID:     userID,
		Kind:       KindBreeding,
		StartMs:    m.nowMs(),
		DurationMs: int64(stats.BreedingDurationS(sire.Generation, dame.Generation)) * 1000,
		Payload:    BreedingPayload{Sire: sire, Dame: dame},
	}
	return m.register(a)
}

func (m *Manager) StopBreeding(userID, sireID, dameID string) error {
	unlock := m.locks.Lock(userID)
	defer unlock()

	if !m.isLive(userID) {
		return startErr(protocol.ErrNotLive, "not logged in")
	}
	sid, err := uuid.Parse(sireID)
	if err != nil {
		return startErr(protocol.ErrBadRequest, "bad sire id")
	}
	did, err := uuid.Parse(dameID)
	if err != nil {
		return startErr(protocol.ErrBadRequest, "bad dame id")
	}
	if m.reg.Remove(userID, KindBreeding, MatchKey(PairKey(sid, did))) == 0 {
		return startErr(protocol.ErrNotFound, "no such breeding pair")
	}
	return nil
}

// StartCombat opens an automated fight in a domain or dungeon. Combat
// is a singleton per user; an existing session is replaced.
func (m *Manager) StartCombat(userID, mode, domainID, dungeonID string) error {
	unlock := m.locks.Lock(userID)
	defer unlock()

	if !m.isLive(userID) {
		return startErr(protocol.ErrNotLive, "not logged in")
	}

	cs, hp, err := m.creatures.CombatProfile(userID)
	if err != nil {
		return startErr(protocol.ErrInternal, "combat profile: %v", err)
	}

	var st combat.State
	switch combat.Mode(mode) {
	case combat.ModeDomain:
		def, ok := m.cats.Domains.ByID[domainID]
		if !ok {
			return startErr(protocol.ErrNotFound, "unknown domain %s", domainID)
		}
		if lvl := m.inv.Level(userID, stats.SkillCombat); lvl < def.RequiredLevel {
			return startErr(protocol.ErrLevelTooLow, "combat level %d, need %d", lvl, def.RequiredLevel)
		}
		st, err = combat.NewDomainState(def, m.cats, cs, hp, m.newRNG())
	case combat.ModeDungeon:
		def, ok := m.cats.Dungeons.ByID[dungeonID]
		if !ok {
			return startErr(protocol.ErrNotFound, "unknown dungeon %s", dungeonID)
		}
		if lvl := m.inv.Level(userID, stats.SkillCombat); lvl < def.RequiredLevel {
			return startErr(protocol.ErrLevelTooLow, "combat level %d, need %d", lvl, def.RequiredLevel)
		}
		st, err = combat.NewDungeonState(def, m.cats, cs, hp)
	default:
		return startErr(protocol.ErrBadRequest, "mode must be domain or dungeon")
	}
	if err != nil {
		return startErr(protocol.ErrInternal, "open fight: %v", err)
	}

	m.reg.Remove(userID, KindCombat, MatchAny)
	a := &Activity{
		ID:         uuid.New(),
		UserID:     userID,
		Kind:       KindCombat,
		StartMs:    m.nowMs(),
		DurationMs: int64(m.tun.Combat.LiveRoundS) * 1000,
		Payload:    CombatPayload{State: &st},
	}
	return m.register(a)
}

func (m *Manager) StopCombat(userID string) error {
	unlock := m.locks.Lock(userID)
	defer unlock()

	if !m.isLive(userID) {
		return startErr(protocol.ErrNotLive, "not logged in")
	}
	if m.reg.Remove(userID, KindCombat, MatchAny) == 0 {
		return startErr(protocol.ErrNotFound, "not in combat")
	}
	return nil
}

// register builds the kind's stop callback and completion callback,
// arms the timer and emits the start event. Used by the start commands
// and by login resumption.
func (m *Manager) register(a *Activity) error {
	userID := a.UserID
	durS := int(a.DurationMs / 1000)

	switch p := a.Payload.(type) {
	case FarmingPayload:
		a.OnStop = func() { m.emit(userID, protocol.FarmingStopEvent(p.Farmable.ItemID)) }
		m.reg.Register(a, m.guarded(a, m.farmingFire(a)))
		m.emit(userID, protocol.FarmingStartEvent(p.Farmable.ItemID, a.StartMs, durS))
	case CraftingPayload:
		a.OnStop = func() { m.emit(userID, protocol.CraftingStopEvent(p.Recipe.EquipmentID)) }
		m.reg.Register(a, m.guarded(a, m.craftingFire(a)))
		m.emit(userID, protocol.CraftingStartEvent(p.Recipe.EquipmentID, p.Recipe.Name, a.StartMs, durS))
	case BreedingPayload:
		a.OnStop = func() {
			m.emit(userID, protocol.BreedingStopEvent(p.Sire.ID.String(), p.Dame.ID.String()))
		}
		m.reg.Register(a, m.guarded(a, m.breedingFire(a)))
		m.emit(userID, protocol.BreedingStartEvent(p.Sire.ID.String(), p.Dame.ID.String(), a.StartMs, durS))
	case CombatPayload:
		runner, err := combat.NewRunner(p.State, m.tun.Combat.TickMs, m.cats, m.newRNG())
		if err != nil {
			return startErr(protocol.ErrInternal, "combat runner: %v", err)
		}
		a.OnStop = func() {
			if err := m.creatures.SetCurrentHP(userID, p.State.PlayerHP); err != nil {
				m.logger.Printf("[idle] %s: write back hp: %v", userID, err)
			}
			m.emit(userID, protocol.CombatStopEvent())
		}
		m.reg.Register(a, m.guarded(a, m.combatFire(a, runner)))
		m.emit(userID, protocol.CombatStartEvent(
			string(p.State.Mode), p.State.DomainID, p.State.DungeonID,
			p.State.Monster.MonsterID, a.StartMs))
	default:
		return startErr(protocol.ErrInternal, "unknown payload %T", a.Payload)
	}
	return nil
}

// guarded converts a completion-callback panic into teardown of that
// one activity; nothing may cross the scheduler boundary.
func (m *Manager) guarded(a *Activity, fn func() bool) func() bool {
	return func() (cont bool) {
		defer func() {
			if r := recover(); r != nil {
				m.logger.Printf("[idle] %s: %s callback panic: %v", a.UserID, a.Kind, r)
				m.reg.RemoveActivity(a)
				cont = false
			}
		}()
		return fn()
	}
}

// stop tears one activity down from inside its own callback chain: the
// registry removal fires the stop callback and cancels the token.
func (m *Manager) stop(a *Activity, reason string) {
	m.logger.Printf("[idle] %s: %s %s stopped: %s", a.UserID, a.Kind, a.Key(), reason)
	m.reg.RemoveActivity(a)
}

func (m *Manager) fail(a *Activity, err error) {
	m.logger.Printf("[idle] %s: %s completion: %v", a.UserID, a.Kind, err)
	m.reg.RemoveActivity(a)
}

// farmingFire is the live completion callback: one repetition mints
// the yield and grants exp. Exhausted inventory stops the activity;
// the user logging out mid-flight stops re-arming without an event.
func (m *Manager) farmingFire(a *Activity) func() bool {
	p := a.Payload.(FarmingPayload)
	userID := a.UserID
	return func() bool {
		if !m.isLive(userID) {
			return false
		}
		if !m.inv.CanMintMore(userID, "item", p.Farmable.ItemID) {
			m.stop(a, "inventory full")
			return false
		}
		if _, err := m.inv.MintItem(userID, p.Farmable.ItemID, p.Farmable.YieldQty); err != nil {
			m.fail(a, err)
			return false
		}
		if !m.isLive(userID) {
			return false
		}
		gain, err := m.inv.AddExp(userID, stats.SkillFarming, p.Farmable.Exp)
		if err != nil {
			m.fail(a, err)
			return false
		}
		if !m.isLive(userID) {
			return false
		}

		upd := protocol.ProgressUpdate{
			Kind:         string(KindFarming),
			Repetitions:  1,
			Items:        []protocol.ItemDelta{m.itemDelta(p.Farmable.ItemID, p.Farmable.YieldQty)},
			Skill:        stats.SkillFarming,
			Exp:          p.Farmable.Exp,
			LevelsGained: gain.LevelsGained,
			NewLevel:     gain.NewLevel,
		}
		m.emit(userID, protocol.IdleProgressEvent([]protocol.ProgressUpdate{upd}))
		return true
	}
}

// craftingFire consumes one recipe's inputs and mints the equipment.
// Missing materials are exhaustion, not an error.
func (m *Manager) craftingFire(a *Activity) func() bool {
	p := a.Payload.(CraftingPayload)
	userID := a.UserID
	return func() bool {
		if !m.isLive(userID) {
			return false
		}
		ids, qtys := recipeLines(p.Recipe, 1)
		if !m.inv.OwnsItems(userID, ids, qtys) {
			m.stop(a, "out of materials")
			return false
		}
		if !m.inv.CanMintMore(userID, "equipment", p.Recipe.EquipmentID) {
			m.stop(a, "equipment storage full")
			return false
		}
		if err := m.inv.DeleteItems(userID, ids, qtys); err != nil {
			m.fail(a, err)
			return false
		}
		if !m.isLive(userID) {
			return false
		}
		if _, err := m.inv.MintEquipment(userID, p.Recipe.EquipmentID, 1); err != nil {
			m.fail(a, err)
			return false
		}
		gain, err := m.inv.AddExp(userID, stats.SkillCrafting, p.Recipe.Exp)
		if err != nil {
			m.fail(a, err)
			return false
		}
		if !m.isLive(userID) {
			return false
		}

		upd := protocol.ProgressUpdate{
			Kind:         string(KindCrafting),
			Repetitions:  1,
			Items:        m.consumedDeltas(p.Recipe, 1),
			Equipment:    []protocol.ItemDelta{{ID: p.Recipe.EquipmentID, Name: p.Recipe.Name, Icon: p.Recipe.Icon, Qty: 1}},
			Skill:        stats.SkillCrafting,
			Exp:          p.Recipe.Exp,
			LevelsGained: gain.LevelsGained,
			NewLevel:     gain.NewLevel,
		}
		m.emit(userID, protocol.IdleProgressEvent([]protocol.ProgressUpdate{upd}))
		return true
	}
}

// breedingFire appends one offspring per cycle until the roster fills.
func (m *Manager) breedingFire(a *Activity) func() bool {
	p := a.Payload.(BreedingPayload)
	userID := a.UserID
	return func() bool {
		if !m.isLive(userID) {
			return false
		}
		if !m.creatures.CanMintCreature(userID) {
			m.stop(a, "slime roster full")
			return false
		}
		child, err := m.creatures.Breed(userID, p.Sire.ID, p.Dame.ID)
		if err != nil {
			m.fail(a, err)
			return false
		}
		if !m.isLive(userID) {
			return false
		}
		exp := stats.BreedingExp(child.Generation)
		gain, err := m.inv.AddExp(userID, stats.SkillBreeding, exp)
		if err != nil {
			m.fail(a, err)
			return false
		}
		if !m.isLive(userID) {
			return false
		}

		upd := protocol.ProgressUpdate{
			Kind:        string(KindBreeding),
			Repetitions: 1,
			Slimes: []protocol.SlimeDelta{{
				ID: child.ID.String(), Species: child.Species, Generation: child.Generation,
			}},
			Skill:        stats.SkillBreeding,
			Exp:          exp,
			LevelsGained: gain.LevelsGained,
			NewLevel:     gain.NewLevel,
		}
		m.emit(userID, protocol.IdleProgressEvent([]protocol.ProgressUpdate{upd}))
		return true
	}
}

// combatFire advances the live fight one round. Rewards apply at full
// strength; death and dungeon clear end the session.
func (m *Manager) combatFire(a *Activity, runner *combat.Runner) func() bool {
	p := a.Payload.(CombatPayload)
	userID := a.UserID
	return func() bool {
		if !m.isLive(userID) {
			return false
		}
		res, err := runner.Advance(a.DurationMs)
		if err != nil {
			m.fail(a, err)
			return false
		}
		if !m.isLive(userID) {
			return false
		}

		if res.Kills > 0 || res.UserDied || res.DungeonCleared {
			upd, err := m.applyCombatResult(userID, res)
			if err != nil {
				m.fail(a, err)
				return false
			}
			m.emit(userID, protocol.IdleProgressEvent([]protocol.ProgressUpdate{upd}))
		}

		if res.UserDied {
			m.journalWrite("combat_death", map[string]interface{}{
				"user": userID, "mode": string(p.State.Mode), "live": true,
			})
			m.stop(a, "player died")
			return false
		}
		if res.DungeonCleared {
			m.stop(a, "dungeon cleared")
			return false
		}
		return true
	}
}

// applyCombatResult pushes a combat result's rewards through the
// collaborator interfaces and assembles the progress update. Shared by
// the live round callback and offline reconciliation; the nerfs, when
// any, are already baked into the result.
func (m *Manager) applyCombatResult(userID string, res combat.Result) (protocol.ProgressUpdate, error) {
	upd := protocol.ProgressUpdate{
		Kind:           string(KindCombat),
		Kills:          res.Kills,
		UserDied:       res.UserDied,
		DungeonCleared: res.DungeonCleared,
		DamageDealt:    res.DamageDealt,
		DamageTaken:    res.DamageTaken,
	}
	if res.Exp > 0 {
		gain, err := m.inv.AddExp(userID, stats.SkillCombat, res.Exp)
		if err != nil {
			return upd, err
		}
		upd.Skill = stats.SkillCombat
		upd.Exp = res.Exp
		upd.LevelsGained = gain.LevelsGained
		upd.NewLevel = gain.NewLevel
	}
	if res.Gold > 0 {
		if _, err := m.inv.AddGold(userID, res.Gold); err != nil {
			return upd, err
		}
		upd.Gold = res.Gold
	}
	if res.Tokens != nil && res.Tokens.Sign() > 0 {
		if err := m.ledger.Transfer(ledger.TreasuryKey, userID, res.Tokens, "combat drops"); err != nil {
			return upd, err
		}
		upd.Tokens = ledger.FormatAmount(res.Tokens)
	}
	for _, itemID := range sortedDropIDs(res.Drops) {
		qty := res.Drops[itemID]
		if !m.inv.CanMintMore(userID, "item", itemID) {
			m.logger.Printf("[idle] %s: drop %s lost, inventory full", userID, itemID)
			continue
		}
		if _, err := m.inv.MintItem(userID, itemID, qty); err != nil {
			return upd, err
		}
		upd.Items = append(upd.Items, m.itemDelta(itemID, qty))
	}
	return upd, nil
}

func (m *Manager) itemDelta(itemID string, qty int) protocol.ItemDelta {
	d := protocol.ItemDelta{ID: itemID, Qty: qty}
	if def, ok := m.cats.Items.ByID[itemID]; ok {
		d.Name = def.Name
		d.Icon = def.Icon
	}
	return d
}

// consumedDeltas renders n repetitions of a recipe's inputs as
// negative item deltas.
func (m *Manager) consumedDeltas(r catalogs.RecipeDef, n int) []protocol.ItemDelta {
	out := make([]protocol.ItemDelta, 0, len(r.Inputs))
	for _, in := range r.Inputs {
		out = append(out, m.itemDelta(in.Item, -in.Count*n))
	}
	return out
}

func recipeLines(r catalogs.RecipeDef, n int) ([]string, []int) {
	ids := make([]string, len(r.Inputs))
	qtys := make([]int, len(r.Inputs))
	for i, in := range r.Inputs {
		ids[i] = in.Item
		qtys[i] = in.Count * n
	}
	return ids, qtys
}

func sortedDropIDs(drops map[string]int) []string {
	if len(drops) == 0 {
		return nil
	}
	ids := make([]string, 0, len(drops))
	for id := range drops {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
