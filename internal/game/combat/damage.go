package combat

import (
	"math"
	"math/rand"

	"idlerealm.gg/internal/game/stats"
)

// DamageRoll resolves a single attack. Hit chance is the attacker's
// accuracy against the combined accuracy+evasion pool, clamped to
// [0.05, 0.95] so no fight is ever a foregone conclusion. A miss deals
// zero; a hit deals at least one point.
func DamageRoll(atk, def stats.Combat, rng *rand.Rand) int {
	den := atk.Accuracy + def.Evasion
	hitChance := 0.5
	if den > 0 {
		hitChance = atk.Accuracy / den
	}
	if hitChance < 0.05 {
		hitChance = 0.05
	} else if hitChance > 0.95 {
		hitChance = 0.95
	}
	if rng.Float64() >= hitChance {
		return 0
	}

	phys := atk.PhysDamage * (1 - def.PhysReduction)
	mag := atk.MagDamage * (1 - def.MagReduction)
	dmg := phys + mag
	if rng.Float64() < atk.CritChance {
		dmg *= atk.CritMult
	}
	n := int(math.Round(dmg))
	if n < 1 {
		n = 1
	}
	return n
}
