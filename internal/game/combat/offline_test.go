package combat

import (
	"math/big"
	"math/rand"
	"testing"

	"idlerealm.gg/internal/game/catalogs"
	"idlerealm.gg/internal/game/stats"
)

// testCatalogs builds a small in-memory catalog set: one open-world
// domain with a single weak spawn, one brutal monster for death tests,
// and one two-monster dungeon.
func testCatalogs() *catalogs.Catalogs {
	dummy := catalogs.MonsterDef{
		ID: "dummy", Name: "Training Dummy", Level: 1,
		MaxHP: 10, AttackSpeed: 0.5, Accuracy: 1, PhysDamage: 0,
		Exp: 10, GoldMin: 4, GoldMax: 6,
		Tokens: "1000000000000000000",
		Drops:  []catalogs.DropDef{{ItemID: "gel", Rate: 1.0, MinQty: 1, MaxQty: 1}},
	}
	reaper := catalogs.MonsterDef{
		ID: "reaper", Name: "Reaper", Level: 50,
		MaxHP: 1000000000, AttackSpeed: 10, Accuracy: 100000, PhysDamage: 1000,
		Exp: 500,
	}
	// A zero attack-speed monster never acts; cadence zero disables the
	// countdown entirely.
	statue := catalogs.MonsterDef{
		ID: "statue", Name: "Statue", Level: 1,
		MaxHP: 10, AttackSpeed: 0,
	}
	return &catalogs.Catalogs{
		Items: catalogs.ItemCatalog{ByID: map[string]catalogs.ItemDef{
			"gel": {ID: "gel", Name: "Gel", Kind: "MATERIAL"},
		}},
		Monsters: catalogs.MonsterCatalog{ByID: map[string]catalogs.MonsterDef{
			"dummy":  dummy,
			"reaper": reaper,
			"statue": statue,
		}},
		Domains: catalogs.DomainCatalog{ByID: map[string]catalogs.DomainDef{
			"meadow": {ID: "meadow", Name: "Meadow", RequiredLevel: 1, Spawns: []string{"dummy"}},
			"abyss":  {ID: "abyss", Name: "Abyss", RequiredLevel: 40, Spawns: []string{"reaper"}},
			"garden": {ID: "garden", Name: "Garden", RequiredLevel: 1, Spawns: []string{"statue"}},
		}},
		Dungeons: catalogs.DungeonCatalog{ByID: map[string]catalogs.DungeonDef{
			"crypt": {ID: "crypt", Name: "Crypt", RequiredLevel: 1, Floors: []catalogs.DungeonFloor{
				{Monsters: []string{"dummy", "dummy"}},
			}},
		}},
	}
}

func strongPlayer() stats.Combat {
	return stats.Combat{
		MaxHP: 1000, AttackSpeed: 10, Accuracy: 1000000,
		PhysDamage: 1000, CritChance: 0, CritMult: 1.5,
	}
}

func testConfig() OfflineConfig {
	return OfflineConfig{
		TickMs:          100,
		SpeedMultiplier: 0.25,
		StatNerf:        0.8,
		ExpNerf:         0.5,
		DropNerf:        0.5,
		MaxOfflineMs:    43200 * 1000,
	}
}

func TestSimulateOffline_DeathTerminates(t *testing.T) {
	cats := testCatalogs()
	st := State{
		Mode:        ModeDomain,
		DomainID:    "abyss",
		Monster:     MonsterState{MonsterID: "reaper", HP: 1000000000},
		PlayerStats: stats.Combat{MaxHP: 10, AttackSpeed: 1, Accuracy: 10, PhysDamage: 1},
		PlayerHP:    10,
	}
	rng := rand.New(rand.NewSource(1))

	// 400s real -> 100s simulated -> 1000 ticks against a monster that
	// one-shots the player on its first landed hit.
	res, err := SimulateOffline(st, 0, 400_000, testConfig(), cats, rng)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if !res.UserDied {
		t.Fatalf("expected death, got %d ticks run of %d", res.TicksRun, res.TotalTicks)
	}
	if res.Resume != nil {
		t.Fatalf("dead player must not get a resume state")
	}
	if res.TicksRun > res.TotalTicks {
		t.Fatalf("ran %d ticks, budget was %d", res.TicksRun, res.TotalTicks)
	}
	if res.DungeonCleared {
		t.Fatalf("domain fight cannot clear a dungeon")
	}
}

func TestSimulateOffline_DomainRespawnAndNerfedRewards(t *testing.T) {
	cats := testCatalogs()
	st := State{
		Mode:        ModeDomain,
		DomainID:    "meadow",
		Monster:     MonsterState{MonsterID: "dummy", HP: 10},
		PlayerStats: strongPlayer(),
		PlayerHP:    1000,
	}
	rng := rand.New(rand.NewSource(7))

	res, err := SimulateOffline(st, 0, 400_000, testConfig(), cats, rng)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if res.UserDied {
		t.Fatalf("harmless dummy killed the player")
	}
	if res.Kills == 0 {
		t.Fatalf("expected kills over %d ticks", res.TotalTicks)
	}

	// Per kill: exp 10*0.5, gold in [4,6] halved, tokens 1e18 halved.
	if want := int64(res.Kills) * 5; res.Exp != want {
		t.Fatalf("exp = %d, want %d", res.Exp, want)
	}
	if res.Gold < int64(res.Kills)*2 || res.Gold > int64(res.Kills)*3 {
		t.Fatalf("gold = %d outside [%d,%d]", res.Gold, int64(res.Kills)*2, int64(res.Kills)*3)
	}
	wantTok := new(big.Int).Mul(big.NewInt(int64(res.Kills)), big.NewInt(500000000000000000))
	if res.Tokens.Cmp(wantTok) != 0 {
		t.Fatalf("tokens = %s, want %s", res.Tokens, wantTok)
	}
	if got := res.Drops["gel"]; got < 1 || got > res.Kills {
		t.Fatalf("gel drops = %d with %d kills", got, res.Kills)
	}

	if res.Resume == nil {
		t.Fatalf("survivor must resume")
	}
	if res.Resume.PlayerStats.MaxHP != 1000 {
		t.Fatalf("resume stats must be un-nerfed, got max hp %d", res.Resume.PlayerStats.MaxHP)
	}
	if res.Resume.PlayerHP < 1 || res.Resume.PlayerHP > 1000 {
		t.Fatalf("resume hp %d out of range", res.Resume.PlayerHP)
	}
	if want := int64(100_000); res.ResumeStartMs != want {
		t.Fatalf("resume start = %d, want %d", res.ResumeStartMs, want)
	}
}

func TestSimulateOffline_CapBoundsSimulatedTime(t *testing.T) {
	cats := testCatalogs()
	cfg := testConfig()
	cfg.MaxOfflineMs = 10_000

	mk := func() State {
		return State{
			Mode:        ModeDomain,
			DomainID:    "meadow",
			Monster:     MonsterState{MonsterID: "dummy", HP: 10},
			PlayerStats: strongPlayer(),
			PlayerHP:    1000,
		}
	}

	// Exactly at the cap vs far beyond it: same tick budget, and with
	// the same seed an identical outcome.
	atCap, err := SimulateOffline(mk(), 0, 40_000, cfg, cats, rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatalf("simulate at cap: %v", err)
	}
	wayPast, err := SimulateOffline(mk(), 0, 40_000_000, cfg, cats, rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatalf("simulate past cap: %v", err)
	}
	if atCap.TotalTicks != 100 || wayPast.TotalTicks != 100 {
		t.Fatalf("tick budgets %d and %d, want 100", atCap.TotalTicks, wayPast.TotalTicks)
	}
	if atCap.Kills != wayPast.Kills || atCap.Exp != wayPast.Exp {
		t.Fatalf("capped runs diverged: %d/%d kills, %d/%d exp",
			atCap.Kills, wayPast.Kills, atCap.Exp, wayPast.Exp)
	}
	if atCap.ResumeStartMs != wayPast.ResumeStartMs {
		t.Fatalf("resume starts diverged: %d vs %d", atCap.ResumeStartMs, wayPast.ResumeStartMs)
	}
}

func TestSimulateOffline_DungeonClearEndsSession(t *testing.T) {
	cats := testCatalogs()
	st := State{
		Mode:        ModeDungeon,
		DungeonID:   "crypt",
		Monster:     MonsterState{MonsterID: "dummy", HP: 10},
		PlayerStats: strongPlayer(),
		PlayerHP:    1000,
	}
	rng := rand.New(rand.NewSource(11))

	res, err := SimulateOffline(st, 0, 400_000, testConfig(), cats, rng)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if !res.DungeonCleared {
		t.Fatalf("expected cleared dungeon, kills=%d ticks=%d", res.Kills, res.TicksRun)
	}
	if res.Kills != 2 {
		t.Fatalf("kills = %d, want 2", res.Kills)
	}
	if res.Resume != nil {
		t.Fatalf("cleared dungeon must not resume")
	}
	if res.UserDied {
		t.Fatalf("player died in a dummy dungeon")
	}
	if res.TicksRun >= res.TotalTicks {
		t.Fatalf("clear should terminate early: ran %d of %d", res.TicksRun, res.TotalTicks)
	}
}

func TestSimulateOffline_HPReprojection(t *testing.T) {
	cats := testCatalogs()
	// Both sides inert: no attacks, no regen. The only effect is the
	// nerf clamp and the re-projection back.
	st := State{
		Mode:        ModeDomain,
		DomainID:    "garden",
		Monster:     MonsterState{MonsterID: "statue", HP: 10},
		PlayerStats: stats.Combat{MaxHP: 100},
		PlayerHP:    25,
	}
	cfg := testConfig()
	cfg.StatNerf = 0.5

	res, err := SimulateOffline(st, 0, 400_000, cfg, cats, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if res.Resume == nil {
		t.Fatalf("inert fight must resume")
	}
	// 25/50 of the nerfed pool projects to 50/100 un-nerfed.
	if res.Resume.PlayerHP != 50 {
		t.Fatalf("resume hp = %d, want 50", res.Resume.PlayerHP)
	}
	if res.Kills != 0 || res.DamageDealt != 0 || res.DamageTaken != 0 {
		t.Fatalf("inert fight produced effects: %+v", res)
	}
}

func TestSimulateOffline_ZeroGap(t *testing.T) {
	cats := testCatalogs()
	st := State{
		Mode:        ModeDomain,
		DomainID:    "meadow",
		Monster:     MonsterState{MonsterID: "dummy", HP: 7},
		PlayerStats: strongPlayer(),
		PlayerHP:    800,
	}

	res, err := SimulateOffline(st, 5000, 5000, testConfig(), cats, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if res.TotalTicks != 0 || res.TicksRun != 0 {
		t.Fatalf("zero gap ran %d/%d ticks", res.TicksRun, res.TotalTicks)
	}
	if res.Kills != 0 {
		t.Fatalf("zero gap produced %d kills", res.Kills)
	}
	if res.Resume == nil {
		t.Fatalf("zero gap must still resume")
	}
	if res.Resume.Monster.HP != 7 {
		t.Fatalf("monster hp changed: %d", res.Resume.Monster.HP)
	}
	if res.ResumeStartMs != 5000 {
		t.Fatalf("resume start = %d, want logout timestamp", res.ResumeStartMs)
	}
}

func TestRunner_CooldownsSpanRounds(t *testing.T) {
	cats := testCatalogs()
	// Regen every 2s (cadence 20 ticks) is the only live effect; a 1s
	// round is 10 ticks, so the pulse lands in the second round only if
	// the countdown survives the round boundary.
	st := &State{
		Mode:        ModeDomain,
		DomainID:    "garden",
		Monster:     MonsterState{MonsterID: "statue", HP: 10},
		PlayerStats: stats.Combat{MaxHP: 100, RegenRate: 0.5, RegenAmount: 4},
		PlayerHP:    50,
	}
	r, err := NewRunner(st, 100, cats, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("runner: %v", err)
	}

	if _, err := r.Advance(1000); err != nil {
		t.Fatalf("advance 1: %v", err)
	}
	if st.PlayerHP != 50 {
		t.Fatalf("regen fired early: hp %d", st.PlayerHP)
	}
	if _, err := r.Advance(1000); err != nil {
		t.Fatalf("advance 2: %v", err)
	}
	if st.PlayerHP != 54 {
		t.Fatalf("hp = %d after second round, want 54", st.PlayerHP)
	}
}
