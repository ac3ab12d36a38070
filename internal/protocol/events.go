package protocol

// Event is a server-push payload delivered inside an EVENT message.
// The "type" key identifies the event; remaining keys are event-specific.
type Event map[string]interface{}

// Event names. Payload key spelling is part of the client contract
// (see schemas/events.schema.json).
const (
	EvFarmingStart  = "farming-start"
	EvFarmingStop   = "farming-stop"
	EvCraftingStart = "crafting-start"
	EvCraftingStop  = "crafting-stop"
	EvBreedingStart = "breeding-start"
	EvBreedingStop  = "breeding-stop"
	EvCombatStart   = "combat-start"
	EvCombatStop    = "combat-stop"
	EvIdleProgress  = "idle-progress-update"
	EvError         = "error"
)

// ProgressUpdate describes what one live completion or one reconciled
// activity changed. A login delivers a batch of these in a single
// idle-progress-update event.
type ProgressUpdate struct {
	Kind        string `json:"kind"`
	Repetitions int    `json:"repetitions"`

	Items     []ItemDelta  `json:"items,omitempty"`
	Equipment []ItemDelta  `json:"equipment,omitempty"`
	Slimes    []SlimeDelta `json:"slimes,omitempty"`

	Skill        string `json:"skill,omitempty"`
	Exp          int64  `json:"exp,omitempty"`
	LevelsGained int    `json:"levelsGained,omitempty"`
	NewLevel     int    `json:"newLevel,omitempty"`

	Gold   int64  `json:"gold,omitempty"`
	Tokens string `json:"tokens,omitempty"` // token base units, decimal string

	Kills          int   `json:"kills,omitempty"`
	UserDied       bool  `json:"userDied,omitempty"`
	DungeonCleared bool  `json:"dungeonCleared,omitempty"`
	DamageDealt    int64 `json:"damageDealt,omitempty"`
	DamageTaken    int64 `json:"damageTaken,omitempty"`
}

type ItemDelta struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon,omitempty"`
	Qty  int    `json:"qty"`
}

type SlimeDelta struct {
	ID         string `json:"id"`
	Species    string `json:"species"`
	Generation int    `json:"generation"`
}

func FarmingStartEvent(itemID string, startMs int64, durationS int) Event {
	return Event{"type": EvFarmingStart, "itemId": itemID, "startTimestamp": startMs, "durationS": durationS}
}

func FarmingStopEvent(itemID string) Event {
	return Event{"type": EvFarmingStop, "itemId": itemID}
}

func CraftingStartEvent(equipmentID, name string, startMs int64, durationS int) Event {
	return Event{"type": EvCraftingStart, "equipmentId": equipmentID, "name": name, "startTimestamp": startMs, "durationS": durationS}
}

func CraftingStopEvent(equipmentID string) Event {
	return Event{"type": EvCraftingStop, "equipmentId": equipmentID}
}

func BreedingStartEvent(sireID, dameID string, startMs int64, durationS int) Event {
	return Event{"type": EvBreedingStart, "sireId": sireID, "dameId": dameID, "startTimestamp": startMs, "durationS": durationS}
}

func BreedingStopEvent(sireID, dameID string) Event {
	return Event{"type": EvBreedingStop, "sireId": sireID, "dameId": dameID}
}

func CombatStartEvent(mode, domainID, dungeonID, monsterID string, startMs int64) Event {
	e := Event{"type": EvCombatStart, "mode": mode, "monsterId": monsterID, "startTimestamp": startMs}
	if domainID != "" {
		e["domainId"] = domainID
	}
	if dungeonID != "" {
		e["dungeonId"] = dungeonID
	}
	return e
}

func CombatStopEvent() Event {
	return Event{"type": EvCombatStop}
}

func IdleProgressEvent(updates []ProgressUpdate) Event {
	if updates == nil {
		updates = []ProgressUpdate{}
	}
	return Event{"type": EvIdleProgress, "payload": updates}
}

func ErrorEvent(code, message string) Event {
	return Event{"type": EvError, "code": code, "message": message}
}
