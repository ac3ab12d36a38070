package player

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"

	"idlerealm.gg/internal/game/stats"
	"idlerealm.gg/internal/game/tuning"
)

// Store holds every logged-in player's state. The outer lock guards
// the map; each entry carries its own lock so read-modify-write on one
// player is atomic without serializing unrelated users.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry

	tun *tuning.Tuning

	rngMu sync.Mutex
	rng   *rand.Rand
}

type entry struct {
	mu sync.Mutex
	p  *Player
}

func NewStore(tun *tuning.Tuning, rng *rand.Rand) *Store {
	return &Store{
		entries: map[string]*entry{},
		tun:     tun,
		rng:     rng,
	}
}

func (s *Store) lookup(userID string) (*entry, bool) {
	s.mu.RLock()
	e, ok := s.entries[userID]
	s.mu.RUnlock()
	return e, ok
}

// Ensure returns the player, creating a starter one on first login.
func (s *Store) Ensure(userID, name string) Player {
	s.mu.Lock()
	e, ok := s.entries[userID]
	if !ok {
		e = &entry{p: New(userID, name)}
		s.entries[userID] = e
	}
	s.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if name != "" {
		e.p.Name = name
	}
	return e.p.Clone()
}

// Put installs a restored player snapshot, replacing any current state.
func (s *Store) Put(p Player) {
	cp := p.Clone()
	s.mu.Lock()
	e, ok := s.entries[p.UserID]
	if !ok {
		s.entries[p.UserID] = &entry{p: &cp}
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	e.mu.Lock()
	e.p = &cp
	e.mu.Unlock()
}

func (s *Store) Get(userID string) (Player, bool) {
	e, ok := s.lookup(userID)
	if !ok {
		return Player{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.p.Clone(), true
}

// Users lists every tracked user id, for the admin surface and the
// shutdown snapshot pass.
func (s *Store) Users() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.entries))
	for id := range s.entries {
		out = append(out, id)
	}
	return out
}

// Level reports the user's level in a skill; unknown users are level 1.
func (s *Store) Level(userID, skill string) int {
	e, ok := s.lookup(userID)
	if !ok {
		return 1
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return stats.LevelForExp(e.p.SkillExp[skill])
}

func (s *Store) Exp(userID, skill string) int64 {
	e, ok := s.lookup(userID)
	if !ok {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.p.SkillExp[skill]
}

func (s *Store) AddExp(userID, skill string, amount int64) (ExpGain, error) {
	if amount < 0 {
		return ExpGain{}, fmt.Errorf("player %s: negative exp %d", userID, amount)
	}
	e, ok := s.lookup(userID)
	if !ok {
		return ExpGain{}, fmt.Errorf("player %s: not found", userID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	before := e.p.SkillExp[skill]
	after := before + amount
	e.p.SkillExp[skill] = after
	oldLevel := stats.LevelForExp(before)
	newLevel := stats.LevelForExp(after)
	return ExpGain{NewLevel: newLevel, NewExp: after, LevelsGained: newLevel - oldLevel}, nil
}

func (s *Store) AddGold(userID string, amount int64) (int64, error) {
	e, ok := s.lookup(userID)
	if !ok {
		return 0, fmt.Errorf("player %s: not found", userID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.p.Gold+amount < 0 {
		return e.p.Gold, fmt.Errorf("player %s: gold would go negative", userID)
	}
	e.p.Gold += amount
	return e.p.Gold, nil
}

// MintItem adds qty of an item and returns the new stack size.
func (s *Store) MintItem(userID, itemID string, qty int) (int, error) {
	return s.mint(userID, itemID, qty, false)
}

func (s *Store) MintEquipment(userID, equipmentID string, qty int) (int, error) {
	return s.mint(userID, equipmentID, qty, true)
}

func (s *Store) mint(userID, id string, qty int, equipment bool) (int, error) {
	if qty <= 0 {
		return 0, fmt.Errorf("player %s: mint qty %d", userID, qty)
	}
	e, ok := s.lookup(userID)
	if !ok {
		return 0, fmt.Errorf("player %s: not found", userID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	m := e.p.Inventory
	if equipment {
		m = e.p.Equipment
	}
	m[id] += qty
	return m[id], nil
}

// OwnsItems reports whether every id is held in at least the paired
// quantity. Mismatched slice lengths are a caller bug and read as false.
func (s *Store) OwnsItems(userID string, ids []string, qtys []int) bool {
	if len(ids) != len(qtys) {
		return false
	}
	e, ok := s.lookup(userID)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, id := range ids {
		if e.p.Inventory[id] < qtys[i] {
			return false
		}
	}
	return true
}

// DeleteItems consumes quantities atomically: either every line item
// is present and deducted, or nothing changes.
func (s *Store) DeleteItems(userID string, ids []string, qtys []int) error {
	if len(ids) != len(qtys) {
		return fmt.Errorf("player %s: %d ids, %d qtys", userID, len(ids), len(qtys))
	}
	e, ok := s.lookup(userID)
	if !ok {
		return fmt.Errorf("player %s: not found", userID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, id := range ids {
		if e.p.Inventory[id] < qtys[i] {
			return fmt.Errorf("player %s: missing %dx %s", userID, qtys[i], id)
		}
	}
	for i, id := range ids {
		e.p.Inventory[id] -= qtys[i]
		if e.p.Inventory[id] == 0 {
			delete(e.p.Inventory, id)
		}
	}
	return nil
}

// CanMintMore checks slot capacity for kind "item" or "equipment".
// An id already stacked takes no new slot.
func (s *Store) CanMintMore(userID, kind, id string) bool {
	e, ok := s.lookup(userID)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	switch kind {
	case "item":
		if _, held := e.p.Inventory[id]; held {
			return true
		}
		return len(e.p.Inventory) < s.tun.MaxInventorySlots
	case "equipment":
		if _, held := e.p.Equipment[id]; held {
			return true
		}
		return len(e.p.Equipment) < s.tun.MaxEquipmentSlots
	default:
		return false
	}
}

func (s *Store) CanMintCreature(userID string) bool {
	e, ok := s.lookup(userID)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.p.Slimes) < s.tun.MaxSlimes
}

func (s *Store) SlimeCount(userID string) int {
	e, ok := s.lookup(userID)
	if !ok {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.p.Slimes)
}

// Breed appends an offspring of the two parents and returns it.
func (s *Store) Breed(userID string, sireID, dameID uuid.UUID) (Slime, error) {
	if sireID == dameID {
		return Slime{}, fmt.Errorf("player %s: sire and dame are the same slime", userID)
	}
	e, ok := s.lookup(userID)
	if !ok {
		return Slime{}, fmt.Errorf("player %s: not found", userID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	sire, ok := e.p.slime(sireID)
	if !ok {
		return Slime{}, fmt.Errorf("player %s: unknown sire %s", userID, sireID)
	}
	dame, ok := e.p.slime(dameID)
	if !ok {
		return Slime{}, fmt.Errorf("player %s: unknown dame %s", userID, dameID)
	}
	if len(e.p.Slimes) >= s.tun.MaxSlimes {
		return Slime{}, fmt.Errorf("player %s: slime roster full", userID)
	}

	s.rngMu.Lock()
	child := offspring(sire, dame, s.rng)
	s.rngMu.Unlock()

	e.p.Slimes = append(e.p.Slimes, child)
	return child, nil
}

func (s *Store) Slime(userID string, id uuid.UUID) (Slime, bool) {
	e, ok := s.lookup(userID)
	if !ok {
		return Slime{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.p.slime(id)
}

// GetEquippedID reports the battle slime, if any is equipped.
func (s *Store) GetEquippedID(userID string) (uuid.UUID, bool) {
	e, ok := s.lookup(userID)
	if !ok {
		return uuid.Nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.p.EquippedSlimeID == uuid.Nil {
		return uuid.Nil, false
	}
	return e.p.EquippedSlimeID, true
}

// CombatProfile derives the user's current combat stat block and HP.
// A downed player re-enters at full health.
func (s *Store) CombatProfile(userID string) (stats.Combat, int, error) {
	e, ok := s.lookup(userID)
	if !ok {
		return stats.Combat{}, 0, fmt.Errorf("player %s: not found", userID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	level := stats.LevelForExp(e.p.SkillExp[stats.SkillCombat])
	cs := stats.DeriveCombat(e.p.Attributes, level)
	if e.p.CurrentHP <= 0 || e.p.CurrentHP > cs.MaxHP {
		e.p.CurrentHP = cs.MaxHP
	}
	return cs, e.p.CurrentHP, nil
}

func (s *Store) SetCurrentHP(userID string, hp int) error {
	e, ok := s.lookup(userID)
	if !ok {
		return fmt.Errorf("player %s: not found", userID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if hp < 0 {
		hp = 0
	}
	e.p.CurrentHP = hp
	return nil
}
