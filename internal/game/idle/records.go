package idle

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"idlerealm.gg/internal/game/catalogs"
	"idlerealm.gg/internal/game/combat"
	"idlerealm.gg/internal/game/player"
)

// RecordV1 is the persisted form of an Activity: plain data only.
// Callbacks and timer tokens are re-derived from the kind and the
// current collaborator set when the record is restored.
type RecordV1 struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	Kind       Kind            `json:"kind"`
	StartMs    int64           `json:"start_ms"`
	DurationMs int64           `json:"duration_ms"`
	LogoutMs   int64           `json:"logout_ms"`
	Payload    json.RawMessage `json:"payload"`
}

// Farming and crafting persist only the definition id; the definition
// itself is re-resolved from the current catalogs on restore.
type farmingRecordV1 struct {
	ItemID string `json:"item_id"`
}

type craftingRecordV1 struct {
	EquipmentID string `json:"equipment_id"`
}

type breedingRecordV1 struct {
	Sire player.Slime `json:"sire"`
	Dame player.Slime `json:"dame"`
}

type combatRecordV1 struct {
	State *combat.State `json:"state"`
}

// Record strips the activity down to its persistable fields.
func (a *Activity) Record() (RecordV1, error) {
	var payload interface{}
	switch p := a.Payload.(type) {
	case FarmingPayload:
		payload = farmingRecordV1{ItemID: p.Farmable.ItemID}
	case CraftingPayload:
		payload = craftingRecordV1{EquipmentID: p.Recipe.EquipmentID}
	case BreedingPayload:
		payload = breedingRecordV1{Sire: p.Sire, Dame: p.Dame}
	case CombatPayload:
		payload = combatRecordV1{State: p.State}
	default:
		return RecordV1{}, fmt.Errorf("activity %s: unknown payload %T", a.ID, a.Payload)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return RecordV1{}, fmt.Errorf("activity %s: %w", a.ID, err)
	}
	return RecordV1{
		ID:         a.ID.String(),
		UserID:     a.UserID,
		Kind:       a.Kind,
		StartMs:    a.StartMs,
		DurationMs: a.DurationMs,
		LogoutMs:   a.LogoutMs,
		Payload:    raw,
	}, nil
}

// decodeRecord rebuilds a callback-less Activity from its persisted
// form, re-resolving definitions against the current catalogs. A
// definition that no longer exists is a fatal-config error for that
// one record.
func decodeRecord(rec RecordV1, cats *catalogs.Catalogs) (*Activity, error) {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", rec.ID, err)
	}
	a := &Activity{
		ID:         id,
		UserID:     rec.UserID,
		Kind:       rec.Kind,
		StartMs:    rec.StartMs,
		DurationMs: rec.DurationMs,
		LogoutMs:   rec.LogoutMs,
	}
	switch rec.Kind {
	case KindFarming:
		var p farmingRecordV1
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return nil, fmt.Errorf("record %s: %w", rec.ID, err)
		}
		def, ok := cats.Farmables.ByID[p.ItemID]
		if !ok {
			return nil, fmt.Errorf("record %s: unknown farmable %s", rec.ID, p.ItemID)
		}
		a.Payload = FarmingPayload{Farmable: def}
	case KindCrafting:
		var p craftingRecordV1
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return nil, fmt.Errorf("record %s: %w", rec.ID, err)
		}
		def, ok := cats.Recipes.ByID[p.EquipmentID]
		if !ok {
			return nil, fmt.Errorf("record %s: unknown recipe %s", rec.ID, p.EquipmentID)
		}
		a.Payload = CraftingPayload{Recipe: def}
	case KindBreeding:
		var p breedingRecordV1
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return nil, fmt.Errorf("record %s: %w", rec.ID, err)
		}
		a.Payload = BreedingPayload{Sire: p.Sire, Dame: p.Dame}
	case KindCombat:
		var p combatRecordV1
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return nil, fmt.Errorf("record %s: %w", rec.ID, err)
		}
		if p.State == nil {
			return nil, fmt.Errorf("record %s: empty combat state", rec.ID)
		}
		a.Payload = CombatPayload{State: p.State}
	default:
		return nil, fmt.Errorf("record %s: unknown kind %q", rec.ID, rec.Kind)
	}
	return a, nil
}
