package idle

import (
	"idlerealm.gg/internal/game/stats"
	"idlerealm.gg/internal/observability"
	"idlerealm.gg/internal/protocol"
)

// Per-kind offline reconciliation. Each function fast-forwards one
// restored activity to login time, applies the earned effects through
// the collaborator interfaces and returns the progress update plus the
// activity to re-register, nil when it does not survive. Transient
// apply errors are logged and forfeit the resume; nothing retries.

func (m *Manager) reconcileFarming(a *Activity, nowMs int64) (protocol.ProgressUpdate, *Activity) {
	p := a.Payload.(FarmingPayload)
	userID := a.UserID

	// The yield stacks, so capacity is a property of the whole window:
	// either the stack exists (or a slot is free) and every repetition
	// fits, or none do.
	check := func(rep int) bool {
		return m.inv.CanMintMore(userID, "item", p.Farmable.ItemID)
	}
	reps, resumeStart, exhausted := FastForward(a.StartMs, a.DurationMs, a.LogoutMs, nowMs, m.capMs(), check)
	observability.RecordReconciliation(string(KindFarming), reps)

	upd := protocol.ProgressUpdate{Kind: string(KindFarming), Repetitions: reps}
	if reps > 0 {
		if _, err := m.inv.MintItem(userID, p.Farmable.ItemID, p.Farmable.YieldQty*reps); err != nil {
			m.logger.Printf("[idle] %s: farming reconcile: %v", userID, err)
			return upd, nil
		}
		gain, err := m.inv.AddExp(userID, stats.SkillFarming, p.Farmable.Exp*int64(reps))
		if err != nil {
			m.logger.Printf("[idle] %s: farming reconcile: %v", userID, err)
			return upd, nil
		}
		upd.Items = []protocol.ItemDelta{m.itemDelta(p.Farmable.ItemID, p.Farmable.YieldQty*reps)}
		upd.Skill = stats.SkillFarming
		upd.Exp = p.Farmable.Exp * int64(reps)
		upd.LevelsGained = gain.LevelsGained
		upd.NewLevel = gain.NewLevel
	}
	if exhausted {
		return upd, nil
	}
	a.StartMs = resumeStart
	return upd, a
}

func (m *Manager) reconcileCrafting(a *Activity, nowMs int64) (protocol.ProgressUpdate, *Activity) {
	p := a.Payload.(CraftingPayload)
	userID := a.UserID

	// Materials gate the count: the rep-th completion needs rep recipes'
	// worth of inputs still owned, since earlier prospective reps have
	// not been deducted yet. Output capacity uses the same stacking rule
	// as farming.
	check := func(rep int) bool {
		if !m.inv.CanMintMore(userID, "equipment", p.Recipe.EquipmentID) {
			return false
		}
		ids, qtys := recipeLines(p.Recipe, rep)
		return m.inv.OwnsItems(userID, ids, qtys)
	}
	reps, resumeStart, exhausted := FastForward(a.StartMs, a.DurationMs, a.LogoutMs, nowMs, m.capMs(), check)
	observability.RecordReconciliation(string(KindCrafting), reps)

	upd := protocol.ProgressUpdate{Kind: string(KindCrafting), Repetitions: reps}
	if reps > 0 {
		ids, qtys := recipeLines(p.Recipe, reps)
		if err := m.inv.DeleteItems(userID, ids, qtys); err != nil {
			m.logger.Printf("[idle] %s: crafting reconcile: %v", userID, err)
			return upd, nil
		}
		if _, err := m.inv.MintEquipment(userID, p.Recipe.EquipmentID, reps); err != nil {
			m.logger.Printf("[idle] %s: crafting reconcile: %v", userID, err)
			return upd, nil
		}
		gain, err := m.inv.AddExp(userID, stats.SkillCrafting, p.Recipe.Exp*int64(reps))
		if err != nil {
			m.logger.Printf("[idle] %s: crafting reconcile: %v", userID, err)
			return upd, nil
		}
		upd.Items = m.consumedDeltas(p.Recipe, reps)
		upd.Equipment = []protocol.ItemDelta{{
			ID: p.Recipe.EquipmentID, Name: p.Recipe.Name, Icon: p.Recipe.Icon, Qty: reps,
		}}
		upd.Skill = stats.SkillCrafting
		upd.Exp = p.Recipe.Exp * int64(reps)
		upd.LevelsGained = gain.LevelsGained
		upd.NewLevel = gain.NewLevel
	}
	if exhausted {
		return upd, nil
	}
	a.StartMs = resumeStart
	return upd, a
}

func (m *Manager) reconcileBreeding(a *Activity, nowMs int64) (protocol.ProgressUpdate, *Activity) {
	p := a.Payload.(BreedingPayload)
	userID := a.UserID

	// Roster space is consumed one slot per offspring, so the rep-th
	// completion is checked against the roster as it will be after the
	// first rep-1 births.
	base := m.creatures.SlimeCount(userID)
	check := func(rep int) bool {
		return base+rep <= m.tun.MaxSlimes
	}
	reps, resumeStart, exhausted := FastForward(a.StartMs, a.DurationMs, a.LogoutMs, nowMs, m.capMs(), check)
	observability.RecordReconciliation(string(KindBreeding), reps)

	upd := protocol.ProgressUpdate{Kind: string(KindBreeding), Repetitions: reps}
	var exp int64
	for i := 0; i < reps; i++ {
		child, err := m.creatures.Breed(userID, p.Sire.ID, p.Dame.ID)
		if err != nil {
			m.logger.Printf("[idle] %s: breeding reconcile: %v", userID, err)
			return upd, nil
		}
		upd.Slimes = append(upd.Slimes, protocol.SlimeDelta{
			ID: child.ID.String(), Species: child.Species, Generation: child.Generation,
		})
		exp += stats.BreedingExp(child.Generation)
	}
	if exp > 0 {
		gain, err := m.inv.AddExp(userID, stats.SkillBreeding, exp)
		if err != nil {
			m.logger.Printf("[idle] %s: breeding reconcile: %v", userID, err)
			return upd, nil
		}
		upd.Skill = stats.SkillBreeding
		upd.Exp = exp
		upd.LevelsGained = gain.LevelsGained
		upd.NewLevel = gain.NewLevel
	}
	if exhausted {
		return upd, nil
	}
	a.StartMs = resumeStart
	return upd, a
}
