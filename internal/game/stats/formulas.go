package stats

import "math"

// Skill names used for exp/level tracking.
const (
	SkillFarming  = "farming"
	SkillCrafting = "crafting"
	SkillBreeding = "breeding"
	SkillCombat   = "combat"
)

// Attributes are a player's base combat attributes.
type Attributes struct {
	Strength  int `json:"strength"`
	Agility   int `json:"agility"`
	Intellect int `json:"intellect"`
	Vitality  int `json:"vitality"`
}

// Combat is the derived stat block consumed by the battle loops. Rates
// are per second; reductions are fractions in [0,1).
type Combat struct {
	MaxHP       int     `json:"max_hp"`
	AttackSpeed float64 `json:"attack_speed"`
	Accuracy    float64 `json:"accuracy"`
	Evasion     float64 `json:"evasion"`

	PhysDamage float64 `json:"phys_damage"`
	MagDamage  float64 `json:"mag_damage"`
	CritChance float64 `json:"crit_chance"`
	CritMult   float64 `json:"crit_mult"`

	PhysReduction float64 `json:"phys_reduction"`
	MagReduction  float64 `json:"mag_reduction"`

	RegenRate   float64 `json:"regen_rate"`
	RegenAmount float64 `json:"regen_amount"`
}

// LevelForExp maps cumulative skill exp to a level, starting at 1.
// Inverse of ExpForLevel.
func LevelForExp(exp int64) int {
	if exp <= 0 {
		return 1
	}
	return 1 + int(math.Sqrt(float64(exp)/100.0))
}

// ExpForLevel is the cumulative exp needed to reach level.
func ExpForLevel(level int) int64 {
	if level <= 1 {
		return 0
	}
	n := int64(level - 1)
	return 100 * n * n
}

// BreedingDurationS is additive across both parents: each parent
// contributes a duration derived from its own generation.
func BreedingDurationS(sireGen, dameGen int) int {
	return parentBreedS(sireGen) + parentBreedS(dameGen)
}

func parentBreedS(gen int) int {
	if gen < 0 {
		gen = 0
	}
	return 300 + 180*gen
}

// BreedingExp is the skill exp granted per offspring, growing with the
// child's generation.
func BreedingExp(childGen int) int64 {
	if childGen < 0 {
		childGen = 0
	}
	return 50 + 25*int64(childGen)
}

// DeriveCombat computes the live (un-nerfed) stat block from base
// attributes and combat level.
func DeriveCombat(a Attributes, level int) Combat {
	if level < 1 {
		level = 1
	}
	c := Combat{
		MaxHP:       50 + 12*a.Vitality + 5*level,
		AttackSpeed: 0.8 + 0.01*float64(a.Agility),
		Accuracy:    50 + 2.5*float64(a.Agility) + float64(level),
		Evasion:     5 + 1.5*float64(a.Agility),

		PhysDamage: 3 + 1.8*float64(a.Strength),
		MagDamage:  1.2 * float64(a.Intellect),
		CritChance: 0.03 + 0.002*float64(a.Agility),
		CritMult:   1.5 + 0.01*float64(a.Strength),

		PhysReduction: 0.005*float64(a.Strength) + 0.004*float64(a.Vitality),
		MagReduction:  0.005 * float64(a.Intellect),

		RegenRate:   0.2 + 0.002*float64(a.Vitality),
		RegenAmount: 1 + 0.25*float64(a.Vitality),
	}
	if c.AttackSpeed > 2.5 {
		c.AttackSpeed = 2.5
	}
	if c.CritChance > 0.5 {
		c.CritChance = 0.5
	}
	if c.CritMult > 2.5 {
		c.CritMult = 2.5
	}
	if c.PhysReduction > 0.6 {
		c.PhysReduction = 0.6
	}
	if c.MagReduction > 0.6 {
		c.MagReduction = 0.6
	}
	return c
}

// Scale multiplies every derived stat by mult. Used for the offline
// combat nerf; callers owning a current-HP value must clamp it to the
// scaled MaxHP afterwards.
func Scale(c Combat, mult float64) Combat {
	c.MaxHP = int(math.Round(float64(c.MaxHP) * mult))
	if c.MaxHP < 1 {
		c.MaxHP = 1
	}
	c.AttackSpeed *= mult
	c.Accuracy *= mult
	c.Evasion *= mult
	c.PhysDamage *= mult
	c.MagDamage *= mult
	c.CritChance *= mult
	c.CritMult *= mult
	c.PhysReduction *= mult
	c.MagReduction *= mult
	c.RegenRate *= mult
	c.RegenAmount *= mult
	return c
}
