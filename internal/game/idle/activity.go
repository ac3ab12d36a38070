package idle

import (
	"strings"

	"github.com/google/uuid"

	"idlerealm.gg/internal/game/catalogs"
	"idlerealm.gg/internal/game/combat"
	"idlerealm.gg/internal/game/player"
)

type Kind string

const (
	KindFarming  Kind = "farming"
	KindCrafting Kind = "crafting"
	KindBreeding Kind = "breeding"
	KindCombat   Kind = "combat"
)

// Activity is one in-progress repeating task. The token is attached
// before the record is published to the store, so a firing timer can
// always be cancelled through the record it belongs to.
type Activity struct {
	ID         uuid.UUID
	UserID     string
	Kind       Kind
	StartMs    int64
	DurationMs int64
	LogoutMs   int64 // stamped only while persisted offline

	Payload Payload

	token *Token

	// OnStop runs when the activity is removed, evicted or replaced.
	// It is not run for logout suspension.
	OnStop func()
}

// Payload is the closed per-kind variant set.
type Payload interface {
	kind() Kind
}

type FarmingPayload struct {
	Farmable catalogs.FarmableDef
}

type CraftingPayload struct {
	Recipe catalogs.RecipeDef
}

type BreedingPayload struct {
	Sire player.Slime
	Dame player.Slime
}

type CombatPayload struct {
	State *combat.State
}

func (FarmingPayload) kind() Kind  { return KindFarming }
func (CraftingPayload) kind() Kind { return KindCrafting }
func (BreedingPayload) kind() Kind { return KindBreeding }
func (CombatPayload) kind() Kind   { return KindCombat }

// Key is the uniqueness key within a user+kind: farming by farmable,
// crafting by equipment, breeding by unordered parent pair, combat is
// a singleton.
func (a *Activity) Key() string {
	switch p := a.Payload.(type) {
	case FarmingPayload:
		return p.Farmable.ItemID
	case CraftingPayload:
		return p.Recipe.EquipmentID
	case BreedingPayload:
		return PairKey(p.Sire.ID, p.Dame.ID)
	default:
		return ""
	}
}

// PairKey canonicalizes a parent pair so (a,b) and (b,a) collide.
func PairKey(sire, dame uuid.UUID) string {
	s, d := sire.String(), dame.String()
	if strings.Compare(s, d) > 0 {
		s, d = d, s
	}
	return s + "|" + d
}

// Matcher selects activities within one user's list of a kind.
type Matcher func(*Activity) bool

func MatchKey(key string) Matcher {
	return func(a *Activity) bool { return a.Key() == key }
}

func MatchAny(*Activity) bool { return true }

func matchIdentity(target *Activity) Matcher {
	return func(a *Activity) bool { return a == target }
}
