package combat

import (
	"fmt"
	"math/rand"

	"idlerealm.gg/internal/game/catalogs"
	"idlerealm.gg/internal/game/stats"
)

type Mode string

const (
	ModeDomain  Mode = "domain"
	ModeDungeon Mode = "dungeon"
)

// MonsterState is the current or pending encounter.
type MonsterState struct {
	MonsterID string `json:"monster_id"`
	HP        int    `json:"hp"`
}

// State is the mutable combat payload carried by a combat activity. It
// holds a copy of the player's derived stats; the authoritative player
// record is only touched when effects are applied through the store
// interfaces.
type State struct {
	Mode      Mode   `json:"mode"`
	DomainID  string `json:"domain_id,omitempty"`
	DungeonID string `json:"dungeon_id,omitempty"`

	// Dungeon cursor: current floor and index within the floor.
	Floor      int `json:"floor"`
	MonsterIdx int `json:"monster_idx"`

	Monster MonsterState `json:"monster"`

	PlayerStats stats.Combat `json:"player_stats"`
	PlayerHP    int          `json:"player_hp"`

	// Cumulative across the whole session, live and offline.
	DamageDealt int64 `json:"damage_dealt"`
	DamageTaken int64 `json:"damage_taken"`
}

// MonsterCombat converts a catalog definition into the derived stat
// block the battle loop consumes.
func MonsterCombat(def catalogs.MonsterDef) stats.Combat {
	return stats.Combat{
		MaxHP:         def.MaxHP,
		AttackSpeed:   def.AttackSpeed,
		Accuracy:      def.Accuracy,
		Evasion:       def.Evasion,
		PhysDamage:    def.PhysDamage,
		MagDamage:     def.MagDamage,
		CritChance:    def.CritChance,
		CritMult:      def.CritMult,
		PhysReduction: def.PhysReduction,
		MagReduction:  def.MagReduction,
		RegenRate:     def.RegenRate,
		RegenAmount:   def.RegenAmount,
	}
}

// NewDomainState opens an open-world fight against a random monster
// from the domain's spawn table.
func NewDomainState(d catalogs.DomainDef, cats *catalogs.Catalogs, pc stats.Combat, hp int, rng *rand.Rand) (State, error) {
	id := d.Spawns[rng.Intn(len(d.Spawns))]
	def, ok := cats.Monsters.ByID[id]
	if !ok {
		return State{}, fmt.Errorf("domain %s: unknown monster %s", d.ID, id)
	}
	return State{
		Mode:        ModeDomain,
		DomainID:    d.ID,
		Monster:     MonsterState{MonsterID: def.ID, HP: def.MaxHP},
		PlayerStats: pc,
		PlayerHP:    clampHP(hp, pc.MaxHP),
	}, nil
}

// NewDungeonState opens an instanced run at floor 0, monster 0.
func NewDungeonState(d catalogs.DungeonDef, cats *catalogs.Catalogs, pc stats.Combat, hp int) (State, error) {
	id := d.Floors[0].Monsters[0]
	def, ok := cats.Monsters.ByID[id]
	if !ok {
		return State{}, fmt.Errorf("dungeon %s: unknown monster %s", d.ID, id)
	}
	return State{
		Mode:        ModeDungeon,
		DungeonID:   d.ID,
		Monster:     MonsterState{MonsterID: def.ID, HP: def.MaxHP},
		PlayerStats: pc,
		PlayerHP:    clampHP(hp, pc.MaxHP),
	}, nil
}

func clampHP(hp, max int) int {
	if hp > max {
		return max
	}
	if hp < 0 {
		return 0
	}
	return hp
}
