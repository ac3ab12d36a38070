package idle

import (
	"idlerealm.gg/internal/game/combat"
	"idlerealm.gg/internal/observability"
	"idlerealm.gg/internal/protocol"
)

// reconcileCombat replays the offline window through the tick
// simulator and applies the nerfed rewards. A surviving session
// resumes as a live fight from the simulated end of the window; death
// and dungeon clear end it.
func (m *Manager) reconcileCombat(a *Activity, nowMs int64) (protocol.ProgressUpdate, *Activity) {
	p := a.Payload.(CombatPayload)
	userID := a.UserID

	cfg := combat.OfflineConfig{
		TickMs:          m.tun.Combat.TickMs,
		SpeedMultiplier: m.tun.Combat.OfflineSpeedMultiplier,
		StatNerf:        m.tun.Combat.OfflineStatNerf,
		ExpNerf:         m.tun.Combat.OfflineExpNerf,
		DropNerf:        m.tun.Combat.OfflineDropNerf,
		MaxOfflineMs:    m.capMs(),
	}
	res, err := combat.SimulateOffline(*p.State, a.LogoutMs, nowMs, cfg, m.cats, m.newRNG())
	if err != nil {
		m.logger.Printf("[idle] %s: combat reconcile: %v", userID, err)
		return protocol.ProgressUpdate{Kind: string(KindCombat)}, nil
	}
	observability.RecordCombatTicks(res.TicksRun)
	observability.RecordReconciliation(string(KindCombat), res.Kills)

	upd, err := m.applyCombatResult(userID, res)
	if err != nil {
		m.logger.Printf("[idle] %s: combat reconcile: %v", userID, err)
		return upd, nil
	}
	if err := m.creatures.SetCurrentHP(userID, res.FinalHP); err != nil {
		m.logger.Printf("[idle] %s: combat reconcile: write back hp: %v", userID, err)
	}
	m.journalWrite("offline_combat", map[string]interface{}{
		"user":  userID,
		"mode":  string(p.State.Mode),
		"ticks": res.TicksRun,
		"kills": res.Kills,
		"died":  res.UserDied,
	})

	if res.Resume == nil {
		return upd, nil
	}
	a.Payload = CombatPayload{State: res.Resume}
	a.StartMs = res.ResumeStartMs
	a.DurationMs = int64(m.tun.Combat.LiveRoundS) * 1000
	return upd, a
}
