package player

import (
	"github.com/google/uuid"

	"idlerealm.gg/internal/game/stats"
)

// Player is the mutable per-user game state held in memory while the
// user is logged in. All mutation goes through Store methods; callers
// only ever see copies.
type Player struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`

	Attributes stats.Attributes `json:"attributes"`
	CurrentHP  int              `json:"current_hp"`

	SkillExp  map[string]int64 `json:"skill_exp"`
	Inventory map[string]int   `json:"inventory"`
	Equipment map[string]int   `json:"equipment"`
	Gold      int64            `json:"gold"`

	Slimes          []Slime   `json:"slimes"`
	EquippedSlimeID uuid.UUID `json:"equipped_slime_id"`
}

// ExpGain reports the outcome of one AddExp call.
type ExpGain struct {
	NewLevel     int
	NewExp       int64
	LevelsGained int
}

// New builds a fresh player with the starter kit: balanced attributes,
// a little gold and two generation-zero slimes, the first equipped.
func New(userID, name string) *Player {
	slimes := StarterSlimes()
	attrs := stats.Attributes{Strength: 5, Agility: 5, Intellect: 5, Vitality: 5}
	return &Player{
		UserID:          userID,
		Name:            name,
		Attributes:      attrs,
		CurrentHP:       stats.DeriveCombat(attrs, 1).MaxHP,
		SkillExp:        map[string]int64{},
		Inventory:       map[string]int{},
		Equipment:       map[string]int{},
		Gold:            100,
		Slimes:          slimes,
		EquippedSlimeID: slimes[0].ID,
	}
}

// Clone deep-copies the player so callers can hold it without racing
// the store.
func (p *Player) Clone() Player {
	out := *p
	out.SkillExp = make(map[string]int64, len(p.SkillExp))
	for k, v := range p.SkillExp {
		out.SkillExp[k] = v
	}
	out.Inventory = make(map[string]int, len(p.Inventory))
	for k, v := range p.Inventory {
		out.Inventory[k] = v
	}
	out.Equipment = make(map[string]int, len(p.Equipment))
	for k, v := range p.Equipment {
		out.Equipment[k] = v
	}
	out.Slimes = append([]Slime(nil), p.Slimes...)
	return out
}

func (p *Player) slime(id uuid.UUID) (Slime, bool) {
	for _, s := range p.Slimes {
		if s.ID == id {
			return s, true
		}
	}
	return Slime{}, false
}
