package catalogs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadShippedCatalogs(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "..", "configs", "catalogs"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(c.Items.ByID) == 0 || len(c.Farmables.ByID) == 0 || len(c.Recipes.ByID) == 0 {
		t.Fatalf("empty catalogs: items=%d farmables=%d recipes=%d",
			len(c.Items.ByID), len(c.Farmables.ByID), len(c.Recipes.ByID))
	}
	if len(c.Monsters.ByID) == 0 || len(c.Domains.ByID) == 0 || len(c.Dungeons.ByID) == 0 {
		t.Fatalf("empty combat catalogs: monsters=%d domains=%d dungeons=%d",
			len(c.Monsters.ByID), len(c.Domains.ByID), len(c.Dungeons.ByID))
	}
	for name, digest := range map[string]string{
		"items":     c.Items.Digest,
		"farmables": c.Farmables.Digest,
		"recipes":   c.Recipes.Digest,
		"monsters":  c.Monsters.Digest,
		"domains":   c.Domains.Digest,
		"dungeons":  c.Dungeons.Digest,
	} {
		if len(digest) != 64 {
			t.Fatalf("%s digest not sha256 hex: %q", name, digest)
		}
	}
	// Farmable yield defaults to 1 when the file omits it.
	for id, f := range c.Farmables.ByID {
		if f.YieldQty < 1 {
			t.Fatalf("farmable %s: yield %d", id, f.YieldQty)
		}
	}
}

func writeCatalogDir(t *testing.T, overrides map[string]string) string {
	t.Helper()
	base := map[string]string{
		"items.json":     `[{"id":"gel","name":"Gel","kind":"MATERIAL"}]`,
		"farmables.json": `[{"item_id":"gel","required_level":1,"duration_s":10,"exp":5}]`,
		"recipes.json":   `[{"equipment_id":"charm","name":"Charm","slot":"ACCESSORY","inputs":[{"item":"gel","count":2}],"duration_s":30,"required_level":1,"exp":10}]`,
		"monsters.json":  `[{"id":"blob","name":"Blob","level":1,"max_hp":10,"attack_speed":1,"accuracy":50,"evasion":5,"phys_damage":2,"crit_mult":1.5,"regen_rate":0.1,"regen_amount":1,"exp":5,"gold_min":1,"gold_max":2,"drops":[{"item_id":"gel","rate":0.5,"min_qty":1,"max_qty":1}]}]`,
		"domains.json":   `[{"id":"field","name":"Field","required_level":1,"spawns":["blob"]}]`,
		"dungeons.json":  `[{"id":"pit","name":"Pit","required_level":1,"floors":[{"monsters":["blob"]}]}]`,
	}
	for k, v := range overrides {
		base[k] = v
	}
	dir := t.TempDir()
	for name, body := range base {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestLoadMinimalValid(t *testing.T) {
	dir := writeCatalogDir(t, nil)
	if _, err := Load(dir); err != nil {
		t.Fatalf("load: %v", err)
	}
}

func TestLoadRejectsDanglingRefs(t *testing.T) {
	cases := map[string]map[string]string{
		"farmable item": {"farmables.json": `[{"item_id":"nope","required_level":1,"duration_s":10,"exp":5}]`},
		"recipe input":  {"recipes.json": `[{"equipment_id":"charm","name":"Charm","slot":"ACCESSORY","inputs":[{"item":"nope","count":2}],"duration_s":30,"required_level":1,"exp":10}]`},
		"domain spawn":  {"domains.json": `[{"id":"field","name":"Field","required_level":1,"spawns":["nope"]}]`},
		"dungeon floor": {"dungeons.json": `[{"id":"pit","name":"Pit","required_level":1,"floors":[{"monsters":["nope"]}]}]`},
		"drop item":     {"monsters.json": `[{"id":"blob","name":"Blob","level":1,"max_hp":10,"attack_speed":1,"accuracy":50,"evasion":5,"phys_damage":2,"crit_mult":1.5,"regen_rate":0.1,"regen_amount":1,"exp":5,"gold_min":1,"gold_max":2,"drops":[{"item_id":"nope","rate":0.5,"min_qty":1,"max_qty":1}]}]`},
	}
	for name, ov := range cases {
		dir := writeCatalogDir(t, ov)
		if _, err := Load(dir); err == nil {
			t.Fatalf("%s: expected referential error", name)
		}
	}
}

func TestLoadRejectsBadTokenAmount(t *testing.T) {
	dir := writeCatalogDir(t, map[string]string{
		"monsters.json": `[{"id":"blob","name":"Blob","level":1,"max_hp":10,"attack_speed":1,"accuracy":50,"evasion":5,"phys_damage":2,"crit_mult":1.5,"regen_rate":0.1,"regen_amount":1,"exp":5,"gold_min":1,"gold_max":2,"tokens":"1.5"}]`,
	})
	if _, err := Load(dir); err == nil {
		t.Fatalf("expected token format error")
	}
}
