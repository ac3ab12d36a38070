package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type Catalogs struct {
	Items     ItemCatalog
	Farmables FarmableCatalog
	Recipes   RecipeCatalog
	Monsters  MonsterCatalog
	Domains   DomainCatalog
	Dungeons  DungeonCatalog
}

type ItemCatalog struct {
	ByID   map[string]ItemDef
	Digest string
}

type ItemDef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon,omitempty"`
	Kind string `json:"kind"` // "MATERIAL","CONSUMABLE","TROPHY"
}

type FarmableCatalog struct {
	ByID   map[string]FarmableDef
	Digest string
}

// FarmableDef is keyed by the item it yields; one rep mints YieldQty of it.
type FarmableDef struct {
	ItemID        string `json:"item_id"`
	RequiredLevel int    `json:"required_level"`
	DurationS     int    `json:"duration_s"`
	Exp           int64  `json:"exp"`
	YieldQty      int    `json:"yield_qty"`
}

type RecipeCatalog struct {
	ByID   map[string]RecipeDef
	Digest string
}

// RecipeDef is keyed by the equipment it produces.
type RecipeDef struct {
	EquipmentID   string      `json:"equipment_id"`
	Name          string      `json:"name"`
	Icon          string      `json:"icon,omitempty"`
	Slot          string      `json:"slot"` // "WEAPON","ARMOR","ACCESSORY"
	Inputs        []ItemCount `json:"inputs"`
	DurationS     int         `json:"duration_s"`
	RequiredLevel int         `json:"required_level"`
	Exp           int64       `json:"exp"`
}

type ItemCount struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}

type MonsterCatalog struct {
	ByID   map[string]MonsterDef
	Digest string
}

type MonsterDef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Level int    `json:"level"`

	MaxHP         int     `json:"max_hp"`
	AttackSpeed   float64 `json:"attack_speed"` // attacks per second
	Accuracy      float64 `json:"accuracy"`
	Evasion       float64 `json:"evasion"`
	PhysDamage    float64 `json:"phys_damage"`
	MagDamage     float64 `json:"mag_damage"`
	CritChance    float64 `json:"crit_chance"`
	CritMult      float64 `json:"crit_mult"`
	PhysReduction float64 `json:"phys_reduction"` // 0..1
	MagReduction  float64 `json:"mag_reduction"`  // 0..1
	RegenRate     float64 `json:"regen_rate"` // pulses per second
	RegenAmount   float64 `json:"regen_amount"`

	Exp     int64     `json:"exp"`
	GoldMin int64     `json:"gold_min"`
	GoldMax int64     `json:"gold_max"`
	Tokens  string    `json:"tokens,omitempty"` // token base units, decimal string
	Drops   []DropDef `json:"drops,omitempty"`
}

type DropDef struct {
	ItemID string  `json:"item_id"`
	Rate   float64 `json:"rate"` // 0..1, before offline drop nerf
	MinQty int     `json:"min_qty"`
	MaxQty int     `json:"max_qty"`
}

type DomainCatalog struct {
	ByID   map[string]DomainDef
	Digest string
}

// DomainDef is an open-world hunting area; offline combat respawns a
// random monster from Spawns after each kill.
type DomainDef struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	RequiredLevel int      `json:"required_level"`
	Spawns        []string `json:"spawns"`
}

type DungeonCatalog struct {
	ByID   map[string]DungeonDef
	Digest string
}

// DungeonDef is an instanced run; monsters come in fixed floor order.
type DungeonDef struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	RequiredLevel int            `json:"required_level"`
	Floors        []DungeonFloor `json:"floors"`
}

type DungeonFloor struct {
	Monsters []string `json:"monsters"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadItems(filepath.Join(configDir, "items.json"), &c.Items); err != nil {
		return nil, err
	}
	if err := loadFarmables(filepath.Join(configDir, "farmables.json"), &c.Farmables); err != nil {
		return nil, err
	}
	if err := loadRecipes(filepath.Join(configDir, "recipes.json"), &c.Recipes); err != nil {
		return nil, err
	}
	if err := loadMonsters(filepath.Join(configDir, "monsters.json"), &c.Monsters); err != nil {
		return nil, err
	}
	if err := loadDomains(filepath.Join(configDir, "domains.json"), &c.Domains); err != nil {
		return nil, err
	}
	if err := loadDungeons(filepath.Join(configDir, "dungeons.json"), &c.Dungeons); err != nil {
		return nil, err
	}

	if err := c.validateRefs(); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadItems(path string, out *ItemCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []ItemDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("items.json: %w", err)
	}
	out.ByID = map[string]ItemDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("items.json: empty id")
		}
		out.ByID[d.ID] = d
	}
	return nil
}

func loadFarmables(path string, out *FarmableCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []FarmableDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("farmables.json: %w", err)
	}
	out.ByID = map[string]FarmableDef{}
	for _, d := range defs {
		if d.ItemID == "" {
			return fmt.Errorf("farmables.json: empty item_id")
		}
		if d.DurationS <= 0 {
			return fmt.Errorf("farmables.json: %s: duration_s must be > 0", d.ItemID)
		}
		if d.YieldQty <= 0 {
			d.YieldQty = 1
		}
		out.ByID[d.ItemID] = d
	}
	return nil
}

func loadRecipes(path string, out *RecipeCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []RecipeDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("recipes.json: %w", err)
	}
	out.ByID = map[string]RecipeDef{}
	for _, r := range defs {
		if r.EquipmentID == "" {
			return fmt.Errorf("recipes.json: empty equipment_id")
		}
		if r.DurationS <= 0 {
			return fmt.Errorf("recipes.json: %s: duration_s must be > 0", r.EquipmentID)
		}
		if len(r.Inputs) == 0 {
			return fmt.Errorf("recipes.json: %s: no inputs", r.EquipmentID)
		}
		out.ByID[r.EquipmentID] = r
	}
	return nil
}

func loadMonsters(path string, out *MonsterCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []MonsterDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("monsters.json: %w", err)
	}
	out.ByID = map[string]MonsterDef{}
	for _, m := range defs {
		if m.ID == "" {
			return fmt.Errorf("monsters.json: empty id")
		}
		if m.MaxHP <= 0 {
			return fmt.Errorf("monsters.json: %s: max_hp must be > 0", m.ID)
		}
		if m.AttackSpeed <= 0 {
			return fmt.Errorf("monsters.json: %s: attack_speed must be > 0", m.ID)
		}
		for _, ch := range m.Tokens {
			if ch < '0' || ch > '9' {
				return fmt.Errorf("monsters.json: %s: tokens must be a decimal integer", m.ID)
			}
		}
		out.ByID[m.ID] = m
	}
	return nil
}

func loadDomains(path string, out *DomainCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []DomainDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("domains.json: %w", err)
	}
	out.ByID = map[string]DomainDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("domains.json: empty id")
		}
		if len(d.Spawns) == 0 {
			return fmt.Errorf("domains.json: %s: empty spawn table", d.ID)
		}
		out.ByID[d.ID] = d
	}
	return nil
}

func loadDungeons(path string, out *DungeonCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []DungeonDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("dungeons.json: %w", err)
	}
	out.ByID = map[string]DungeonDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("dungeons.json: empty id")
		}
		if len(d.Floors) == 0 {
			return fmt.Errorf("dungeons.json: %s: no floors", d.ID)
		}
		for i, f := range d.Floors {
			if len(f.Monsters) == 0 {
				return fmt.Errorf("dungeons.json: %s: floor %d empty", d.ID, i)
			}
		}
		out.ByID[d.ID] = d
	}
	return nil
}

// validateRefs rejects dangling cross-catalog references at boot rather
// than at activity-start time.
func (c *Catalogs) validateRefs() error {
	for id, f := range c.Farmables.ByID {
		if _, ok := c.Items.ByID[f.ItemID]; !ok {
			return fmt.Errorf("farmable %s: unknown item %s", id, f.ItemID)
		}
	}
	for id, r := range c.Recipes.ByID {
		for _, in := range r.Inputs {
			if _, ok := c.Items.ByID[in.Item]; !ok {
				return fmt.Errorf("recipe %s: unknown input item %s", id, in.Item)
			}
			if in.Count <= 0 {
				return fmt.Errorf("recipe %s: input %s count must be > 0", id, in.Item)
			}
		}
	}
	for id, m := range c.Monsters.ByID {
		for _, d := range m.Drops {
			if _, ok := c.Items.ByID[d.ItemID]; !ok {
				return fmt.Errorf("monster %s: unknown drop item %s", id, d.ItemID)
			}
			if d.Rate < 0 || d.Rate > 1 {
				return fmt.Errorf("monster %s: drop %s rate out of range", id, d.ItemID)
			}
		}
	}
	for id, d := range c.Domains.ByID {
		for _, mid := range d.Spawns {
			if _, ok := c.Monsters.ByID[mid]; !ok {
				return fmt.Errorf("domain %s: unknown monster %s", id, mid)
			}
		}
	}
	for id, d := range c.Dungeons.ByID {
		for fi, f := range d.Floors {
			for _, mid := range f.Monsters {
				if _, ok := c.Monsters.ByID[mid]; !ok {
					return fmt.Errorf("dungeon %s: floor %d: unknown monster %s", id, fi, mid)
				}
			}
		}
	}
	return nil
}
