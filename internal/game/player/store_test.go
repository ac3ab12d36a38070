package player

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"

	"idlerealm.gg/internal/game/stats"
	"idlerealm.gg/internal/game/tuning"
)

func testStore(mutate func(*tuning.Tuning)) *Store {
	tun := tuning.Defaults()
	if mutate != nil {
		mutate(&tun)
	}
	return NewStore(&tun, rand.New(rand.NewSource(1)))
}

func TestEnsureCreatesStarterPlayer(t *testing.T) {
	s := testStore(nil)
	p := s.Ensure("u1", "Asha")

	if p.Name != "Asha" || p.Gold != 100 {
		t.Fatalf("starter player = %+v", p)
	}
	if len(p.Slimes) != 2 {
		t.Fatalf("starter slimes = %d, want 2", len(p.Slimes))
	}
	if p.EquippedSlimeID != p.Slimes[0].ID {
		t.Fatalf("first slime not equipped")
	}
	if lvl := s.Level("u1", stats.SkillFarming); lvl != 1 {
		t.Fatalf("fresh farming level = %d", lvl)
	}

	// Second Ensure must not reset state.
	if _, err := s.AddGold("u1", 50); err != nil {
		t.Fatalf("gold: %v", err)
	}
	again := s.Ensure("u1", "")
	if again.Gold != 150 {
		t.Fatalf("Ensure reset gold to %d", again.Gold)
	}
	if again.Name != "Asha" {
		t.Fatalf("empty name overwrote stored name: %q", again.Name)
	}
}

func TestAddExpResolvesLevels(t *testing.T) {
	s := testStore(nil)
	s.Ensure("u1", "a")

	gain, err := s.AddExp("u1", stats.SkillFarming, 100)
	if err != nil {
		t.Fatalf("add exp: %v", err)
	}
	if gain.NewLevel != 2 || gain.LevelsGained != 1 || gain.NewExp != 100 {
		t.Fatalf("gain = %+v", gain)
	}

	gain, err = s.AddExp("u1", stats.SkillFarming, 50)
	if err != nil {
		t.Fatalf("add exp: %v", err)
	}
	if gain.NewLevel != 2 || gain.LevelsGained != 0 {
		t.Fatalf("gain = %+v", gain)
	}

	if _, err := s.AddExp("u1", stats.SkillFarming, -1); err == nil {
		t.Fatalf("negative exp accepted")
	}
}

func TestDeleteItemsIsAtomic(t *testing.T) {
	s := testStore(nil)
	s.Ensure("u1", "a")

	if _, err := s.MintItem("u1", "ore", 3); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := s.MintItem("u1", "wood", 1); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if !s.OwnsItems("u1", []string{"ore", "wood"}, []int{3, 1}) {
		t.Fatalf("ownership check failed")
	}

	// One line short: nothing may change.
	if err := s.DeleteItems("u1", []string{"ore", "wood"}, []int{2, 2}); err == nil {
		t.Fatalf("partial delete accepted")
	}
	if !s.OwnsItems("u1", []string{"ore", "wood"}, []int{3, 1}) {
		t.Fatalf("failed delete mutated inventory")
	}

	if err := s.DeleteItems("u1", []string{"ore", "wood"}, []int{3, 1}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	p, _ := s.Get("u1")
	if len(p.Inventory) != 0 {
		t.Fatalf("inventory not emptied: %v", p.Inventory)
	}
}

func TestCanMintMoreCountsSlots(t *testing.T) {
	s := testStore(func(tun *tuning.Tuning) { tun.MaxInventorySlots = 2 })
	s.Ensure("u1", "a")

	s.MintItem("u1", "a", 1)
	s.MintItem("u1", "b", 1)

	if s.CanMintMore("u1", "item", "c") {
		t.Fatalf("new item accepted past slot cap")
	}
	if !s.CanMintMore("u1", "item", "a") {
		t.Fatalf("existing stack rejected")
	}
	if !s.CanMintMore("u1", "equipment", "sword") {
		t.Fatalf("equipment slots unaffected by item cap")
	}
	if s.CanMintMore("u1", "creature", "x") {
		t.Fatalf("unknown kind accepted")
	}
}

func TestBreedAppendsOffspring(t *testing.T) {
	s := testStore(func(tun *tuning.Tuning) { tun.MaxSlimes = 3 })
	p := s.Ensure("u1", "a")
	sire, dame := p.Slimes[0], p.Slimes[1]

	child, err := s.Breed("u1", sire.ID, dame.ID)
	if err != nil {
		t.Fatalf("breed: %v", err)
	}
	if child.Generation != 1 {
		t.Fatalf("child generation = %d, want 1", child.Generation)
	}
	if child.Species != sire.Species && child.Species != dame.Species {
		t.Fatalf("child species %q from nowhere", child.Species)
	}
	if s.CanMintCreature("u1") {
		t.Fatalf("roster full but capacity reported free")
	}
	if _, err := s.Breed("u1", sire.ID, dame.ID); err == nil {
		t.Fatalf("breed past roster cap accepted")
	}
	if _, err := s.Breed("u1", sire.ID, sire.ID); err == nil {
		t.Fatalf("self-breeding accepted")
	}
	if _, err := s.Breed("u1", uuid.New(), dame.ID); err == nil {
		t.Fatalf("unknown sire accepted")
	}
}

func TestCombatProfileRevivesDowned(t *testing.T) {
	s := testStore(nil)
	s.Ensure("u1", "a")

	cs, hp, err := s.CombatProfile("u1")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if hp != cs.MaxHP {
		t.Fatalf("fresh player hp = %d, max %d", hp, cs.MaxHP)
	}

	if err := s.SetCurrentHP("u1", 0); err != nil {
		t.Fatalf("set hp: %v", err)
	}
	_, hp, err = s.CombatProfile("u1")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if hp != cs.MaxHP {
		t.Fatalf("downed player not revived: hp = %d", hp)
	}

	if err := s.SetCurrentHP("u1", 5); err != nil {
		t.Fatalf("set hp: %v", err)
	}
	_, hp, _ = s.CombatProfile("u1")
	if hp != 5 {
		t.Fatalf("hp = %d, want 5", hp)
	}
}
