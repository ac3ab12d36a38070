package combat

import (
	"fmt"
	"math"
	"math/big"
	"math/rand"

	"idlerealm.gg/internal/game/catalogs"
	"idlerealm.gg/internal/game/stats"
	"idlerealm.gg/internal/ledger"
)

// OfflineConfig carries the offline-simulation tuning knobs.
type OfflineConfig struct {
	TickMs          int
	SpeedMultiplier float64 // fraction of real elapsed time simulated
	StatNerf        float64 // applied to every player combat stat
	ExpNerf         float64 // applied to per-kill exp
	DropNerf        float64 // applied to gold, tokens and drop rates
	MaxOfflineMs    int64
}

// Result accumulates the effects of a simulated stretch of combat.
// Tokens is in base units; Drops is item id -> quantity.
type Result struct {
	Kills       int
	Exp         int64
	Gold        int64
	Tokens      *big.Int
	Drops       map[string]int
	DamageDealt int64
	DamageTaken int64

	TicksRun   int64
	TotalTicks int64

	UserDied       bool
	DungeonCleared bool

	// FinalHP is the player's HP on the un-nerfed scale after the
	// window: zero on death, at least 1 otherwise.
	FinalHP int

	// Resume is the combat state to re-register, nil when the session
	// ended (death or dungeon cleared). ResumeStartMs is the start
	// timestamp for the resumed activity.
	Resume        *State
	ResumeStartMs int64
}

// SimulateOffline replays an offline combat window as a tick loop. The
// simulated time is the real gap compressed by SpeedMultiplier and
// capped at MaxOfflineMs; the player fights with nerfed stats and
// earns nerfed rewards. The input state is not mutated.
func SimulateOffline(st State, logoutMs, nowMs int64, cfg OfflineConfig, cats *catalogs.Catalogs, rng *rand.Rand) (Result, error) {
	elapsed := nowMs - logoutMs
	if elapsed < 0 {
		elapsed = 0
	}
	offlineMs := int64(float64(elapsed) * cfg.SpeedMultiplier)
	if offlineMs > cfg.MaxOfflineMs {
		offlineMs = cfg.MaxOfflineMs
	}
	totalTicks := offlineMs / int64(cfg.TickMs)

	orig := st.PlayerStats
	work := st
	work.PlayerStats = stats.Scale(orig, cfg.StatNerf)
	nerfedMax := work.PlayerStats.MaxHP
	if work.PlayerHP > nerfedMax {
		work.PlayerHP = nerfedMax
	}

	eng, err := newEngine(&work, cfg.TickMs, cats, rng, cfg.ExpNerf, cfg.DropNerf)
	if err != nil {
		return Result{}, err
	}
	eng.run(totalTicks)
	if eng.err != nil {
		return Result{}, eng.err
	}

	res := eng.res
	res.TotalTicks = totalTicks
	res.ResumeStartMs = logoutMs + totalTicks*int64(cfg.TickMs)

	if !res.UserDied {
		// Survivor HP carries over as a ratio of the nerfed max
		// re-projected onto the un-nerfed max, never below 1.
		hp := int(math.Round(float64(work.PlayerHP) / float64(nerfedMax) * float64(orig.MaxHP)))
		if hp < 1 {
			hp = 1
		}
		if hp > orig.MaxHP {
			hp = orig.MaxHP
		}
		res.FinalHP = hp
		if !res.DungeonCleared {
			resume := work
			resume.PlayerStats = orig
			resume.PlayerHP = hp
			res.Resume = &resume
		}
	}
	return res, nil
}

// engine is the tick loop shared by the offline simulator and the live
// round runner; they differ only in stat scaling and reward
// multipliers. It mutates the State it was given.
type engine struct {
	st   *State
	cats *catalogs.Catalogs
	rng  *rand.Rand

	tickMs   int
	expMult  float64
	dropMult float64

	mdef   catalogs.MonsterDef
	mstats stats.Combat

	// Countdowns in ticks; a zero cadence disables the action.
	pAtkCad, pAtkIn int64
	mAtkCad, mAtkIn int64
	pRegCad, pRegIn int64
	mRegCad, mRegIn int64

	res     Result
	died    bool
	cleared bool
	err     error
}

func newEngine(st *State, tickMs int, cats *catalogs.Catalogs, rng *rand.Rand, expMult, dropMult float64) (*engine, error) {
	def, ok := cats.Monsters.ByID[st.Monster.MonsterID]
	if !ok {
		return nil, fmt.Errorf("combat: unknown monster %s", st.Monster.MonsterID)
	}
	e := &engine{
		st:       st,
		cats:     cats,
		rng:      rng,
		tickMs:   tickMs,
		expMult:  expMult,
		dropMult: dropMult,
	}
	e.resetResult()
	e.pAtkCad = cadenceTicks(st.PlayerStats.AttackSpeed, tickMs)
	e.pAtkIn = e.pAtkCad
	e.pRegCad = cadenceTicks(st.PlayerStats.RegenRate, tickMs)
	e.pRegIn = e.pRegCad
	e.setMonster(def)
	return e, nil
}

func (e *engine) resetResult() {
	e.res = Result{Tokens: new(big.Int), Drops: map[string]int{}}
}

// setMonster points the engine at def without touching the encounter
// HP, so a half-fought monster restored from a snapshot keeps its
// wounds. spawn resets HP to full.
func (e *engine) setMonster(def catalogs.MonsterDef) {
	e.mdef = def
	e.mstats = MonsterCombat(def)
	e.mAtkCad = cadenceTicks(e.mstats.AttackSpeed, e.tickMs)
	e.mAtkIn = e.mAtkCad
	e.mRegCad = cadenceTicks(e.mstats.RegenRate, e.tickMs)
	e.mRegIn = e.mRegCad
}

func (e *engine) spawn(def catalogs.MonsterDef) {
	e.setMonster(def)
	e.st.Monster = MonsterState{MonsterID: def.ID, HP: def.MaxHP}
}

func (e *engine) done() bool {
	return e.died || e.cleared || e.err != nil
}

func (e *engine) run(ticks int64) {
	for i := int64(0); i < ticks && !e.done(); i++ {
		e.tick()
		e.res.TicksRun++
	}
	e.res.UserDied = e.died
	e.res.DungeonCleared = e.cleared
}

// tick resolves one time slice: player attack, monster attack, player
// regen, monster regen, in that order. A kill ends the tick; the
// replacement acts from the next tick on. A player death ends the run
// immediately.
func (e *engine) tick() {
	if e.pAtkCad > 0 {
		e.pAtkIn--
		if e.pAtkIn <= 0 {
			e.pAtkIn = e.pAtkCad
			dmg := DamageRoll(e.st.PlayerStats, e.mstats, e.rng)
			if dmg > 0 {
				e.st.Monster.HP -= dmg
				e.st.DamageDealt += int64(dmg)
				e.res.DamageDealt += int64(dmg)
				if e.st.Monster.HP <= 0 {
					e.onKill()
					return
				}
			}
		}
	}
	if e.mAtkCad > 0 {
		e.mAtkIn--
		if e.mAtkIn <= 0 {
			e.mAtkIn = e.mAtkCad
			dmg := DamageRoll(e.mstats, e.st.PlayerStats, e.rng)
			if dmg > 0 {
				e.st.PlayerHP -= dmg
				e.st.DamageTaken += int64(dmg)
				e.res.DamageTaken += int64(dmg)
				if e.st.PlayerHP <= 0 {
					e.st.PlayerHP = 0
					e.died = true
					return
				}
			}
		}
	}
	if e.pRegCad > 0 {
		e.pRegIn--
		if e.pRegIn <= 0 {
			e.pRegIn = e.pRegCad
			if e.st.PlayerHP < e.st.PlayerStats.MaxHP {
				e.st.PlayerHP += int(math.Round(e.st.PlayerStats.RegenAmount))
				if e.st.PlayerHP > e.st.PlayerStats.MaxHP {
					e.st.PlayerHP = e.st.PlayerStats.MaxHP
				}
			}
		}
	}
	if e.mRegCad > 0 {
		e.mRegIn--
		if e.mRegIn <= 0 {
			e.mRegIn = e.mRegCad
			if e.st.Monster.HP < e.mdef.MaxHP {
				e.st.Monster.HP += int(math.Round(e.mstats.RegenAmount))
				if e.st.Monster.HP > e.mdef.MaxHP {
					e.st.Monster.HP = e.mdef.MaxHP
				}
			}
		}
	}
}

func (e *engine) onKill() {
	e.res.Kills++
	e.res.Exp += int64(math.Round(float64(e.mdef.Exp) * e.expMult))

	gold := e.mdef.GoldMin
	if span := e.mdef.GoldMax - e.mdef.GoldMin; span > 0 {
		gold += e.rng.Int63n(span + 1)
	}
	e.res.Gold += int64(math.Round(float64(gold) * e.dropMult))

	if t := e.mdef.Tokens; t != "" {
		if tok, err := ledger.ParseAmount(t); err == nil {
			e.res.Tokens.Add(e.res.Tokens, ledger.Scale(tok, e.dropMult))
		}
	}

	for _, d := range e.mdef.Drops {
		if e.rng.Float64() >= d.Rate*e.dropMult {
			continue
		}
		qty := d.MinQty
		if d.MaxQty > d.MinQty {
			qty += e.rng.Intn(d.MaxQty - d.MinQty + 1)
		}
		if qty < 1 {
			qty = 1
		}
		e.res.Drops[d.ItemID] += qty
	}

	e.nextMonster()
}

// nextMonster replaces a defeated monster: domains respawn a random
// entry from the spawn table, dungeons advance the floor cursor and
// end the session when the last floor is cleared.
func (e *engine) nextMonster() {
	switch e.st.Mode {
	case ModeDomain:
		dom, ok := e.cats.Domains.ByID[e.st.DomainID]
		if !ok {
			e.err = fmt.Errorf("combat: unknown domain %s", e.st.DomainID)
			return
		}
		id := dom.Spawns[e.rng.Intn(len(dom.Spawns))]
		def, ok := e.cats.Monsters.ByID[id]
		if !ok {
			e.err = fmt.Errorf("combat: unknown monster %s", id)
			return
		}
		e.spawn(def)
	case ModeDungeon:
		dun, ok := e.cats.Dungeons.ByID[e.st.DungeonID]
		if !ok {
			e.err = fmt.Errorf("combat: unknown dungeon %s", e.st.DungeonID)
			return
		}
		if e.st.Floor < 0 || e.st.Floor >= len(dun.Floors) {
			e.err = fmt.Errorf("combat: dungeon %s: floor %d out of range", e.st.DungeonID, e.st.Floor)
			return
		}
		e.st.MonsterIdx++
		if e.st.MonsterIdx >= len(dun.Floors[e.st.Floor].Monsters) {
			e.st.Floor++
			e.st.MonsterIdx = 0
		}
		if e.st.Floor >= len(dun.Floors) {
			e.cleared = true
			return
		}
		id := dun.Floors[e.st.Floor].Monsters[e.st.MonsterIdx]
		def, ok := e.cats.Monsters.ByID[id]
		if !ok {
			e.err = fmt.Errorf("combat: unknown monster %s", id)
			return
		}
		e.spawn(def)
	default:
		e.err = fmt.Errorf("combat: unknown mode %q", e.st.Mode)
	}
}

func cadenceTicks(rate float64, tickMs int) int64 {
	if rate <= 0 {
		return 0
	}
	t := int64(math.Round(1000 / (rate * float64(tickMs))))
	if t < 1 {
		t = 1
	}
	return t
}
