package stats

import "testing"

func TestLevelCurveRoundTrip(t *testing.T) {
	for level := 1; level <= 60; level++ {
		exp := ExpForLevel(level)
		if got := LevelForExp(exp); got != level {
			t.Fatalf("level %d: exp %d maps back to %d", level, exp, got)
		}
		// One point short of the threshold stays at the previous level.
		if level > 1 {
			if got := LevelForExp(exp - 1); got != level-1 {
				t.Fatalf("level %d: exp %d maps to %d, want %d", level, exp-1, got, level-1)
			}
		}
	}
}

func TestLevelForExpMonotonic(t *testing.T) {
	prev := LevelForExp(0)
	for exp := int64(0); exp < 50000; exp += 37 {
		l := LevelForExp(exp)
		if l < prev {
			t.Fatalf("level decreased: exp=%d level=%d prev=%d", exp, l, prev)
		}
		prev = l
	}
}

func TestBreedingDurationAdditive(t *testing.T) {
	base := BreedingDurationS(0, 0)
	if base != 600 {
		t.Fatalf("gen0 pair: %d", base)
	}
	// Each parent contributes its own generation-derived share.
	if got := BreedingDurationS(2, 0); got != parentBreedS(2)+parentBreedS(0) {
		t.Fatalf("asymmetric pair: %d", got)
	}
	if BreedingDurationS(1, 2) != BreedingDurationS(2, 1) {
		t.Fatalf("breeding duration should be symmetric")
	}
	if BreedingDurationS(3, 3) <= BreedingDurationS(1, 1) {
		t.Fatalf("higher generations must breed slower")
	}
}

func TestDeriveCombatCaps(t *testing.T) {
	c := DeriveCombat(Attributes{Strength: 500, Agility: 500, Intellect: 500, Vitality: 500}, 99)
	if c.AttackSpeed > 2.5 || c.CritChance > 0.5 || c.CritMult > 2.5 {
		t.Fatalf("offensive caps not applied: %+v", c)
	}
	if c.PhysReduction > 0.6 || c.MagReduction > 0.6 {
		t.Fatalf("reduction caps not applied: %+v", c)
	}
}

func TestScaleClampsFloor(t *testing.T) {
	c := DeriveCombat(Attributes{Vitality: 1}, 1)
	s := Scale(c, 0.8)
	if s.MaxHP >= c.MaxHP {
		t.Fatalf("scale did not reduce max hp: %d -> %d", c.MaxHP, s.MaxHP)
	}
	if s.AttackSpeed >= c.AttackSpeed || s.PhysDamage >= c.PhysDamage {
		t.Fatalf("scale did not reduce rates: %+v", s)
	}
	tiny := Scale(Combat{MaxHP: 1}, 0.1)
	if tiny.MaxHP < 1 {
		t.Fatalf("max hp floor violated: %d", tiny.MaxHP)
	}
}
