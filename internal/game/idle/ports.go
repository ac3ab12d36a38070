package idle

import (
	"math/big"

	"github.com/google/uuid"

	"idlerealm.gg/internal/game/player"
	"idlerealm.gg/internal/game/stats"
	"idlerealm.gg/internal/protocol"
)

// Collaborator contracts the idle engine consumes. The engine never
// mutates player state directly; every effect goes through these.

// InventoryStore is the stat/inventory side of the player store.
// CanMintMore takes kind "item" or "equipment".
type InventoryStore interface {
	Level(userID, skill string) int
	AddExp(userID, skill string, amount int64) (player.ExpGain, error)
	AddGold(userID string, amount int64) (int64, error)
	MintItem(userID, itemID string, qty int) (int, error)
	MintEquipment(userID, equipmentID string, qty int) (int, error)
	DeleteItems(userID string, ids []string, qtys []int) error
	OwnsItems(userID string, ids []string, qtys []int) bool
	CanMintMore(userID, kind, id string) bool
}

// CreatureStore is the slime side of the player store.
type CreatureStore interface {
	Breed(userID string, sireID, dameID uuid.UUID) (player.Slime, error)
	Slime(userID string, id uuid.UUID) (player.Slime, bool)
	SlimeCount(userID string) int
	GetEquippedID(userID string) (uuid.UUID, bool)
	CanMintCreature(userID string) bool
	CombatProfile(userID string) (stats.Combat, int, error)
	SetCurrentHP(userID string, hp int) error
}

// Ledger moves token balances; drops flow from the treasury account to
// the user's account.
type Ledger interface {
	Transfer(from, to string, amount *big.Int, note string) error
}

// Notifier delivers events to a possibly-disconnected client.
// Delivery is at-most-once and best-effort; implementations log and
// swallow failures.
type Notifier interface {
	Emit(userID string, ev protocol.Event)
}

// Bridge persists activity records across logout/login.
type Bridge interface {
	Store(userID string, recs []RecordV1) error
	Load(userID string) ([]RecordV1, error)
	DeleteAll(userID string) error
}

// Journal is the append-only activity log; a nil journal is allowed
// and drops everything.
type Journal interface {
	Write(event string, v interface{})
}
