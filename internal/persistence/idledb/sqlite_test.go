package idledb

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"
	"testing"

	"idlerealm.gg/internal/game/catalogs"
	"idlerealm.gg/internal/game/idle"
	"idlerealm.gg/internal/game/tuning"
	"idlerealm.gg/internal/persistence/snapshot"
)

func testLogger() *log.Logger {
	return log.New(os.Stderr, "[test] ", log.LstdFlags)
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "idle.db"), 64, testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func actRec(id, userID string, startMs int64) idle.RecordV1 {
	return idle.RecordV1{
		ID:         id,
		UserID:     userID,
		Kind:       idle.KindFarming,
		StartMs:    startMs,
		DurationMs: 60_000,
		LogoutMs:   startMs + 500,
		Payload:    json.RawMessage(`{"item_id":"wheat"}`),
	}
}

func TestDB_StoreLoadRoundTrip(t *testing.T) {
	d := openTestDB(t)

	want := []idle.RecordV1{actRec("act-a", "u1", 0), actRec("act-b", "u1", 100)}
	if err := d.Store("u1", want); err != nil {
		t.Fatalf("Store: %v", err)
	}

	got, err := d.Load("u1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	for i := range want {
		if got[i].ID != want[i].ID || got[i].UserID != want[i].UserID || got[i].Kind != want[i].Kind {
			t.Fatalf("record %d = %+v, want %+v", i, got[i], want[i])
		}
		if got[i].StartMs != want[i].StartMs || got[i].DurationMs != want[i].DurationMs || got[i].LogoutMs != want[i].LogoutMs {
			t.Fatalf("record %d times = %+v, want %+v", i, got[i], want[i])
		}
		if string(got[i].Payload) != string(want[i].Payload) {
			t.Fatalf("record %d payload = %s", i, got[i].Payload)
		}
	}

	other, err := d.Load("u2")
	if err != nil {
		t.Fatalf("Load u2: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("u2 has %d records, want none", len(other))
	}
}

func TestDB_StoreReplacesPrevious(t *testing.T) {
	d := openTestDB(t)

	if err := d.Store("u1", []idle.RecordV1{actRec("act-a", "u1", 0), actRec("act-b", "u1", 100)}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := d.Store("u2", []idle.RecordV1{actRec("act-c", "u2", 0)}); err != nil {
		t.Fatalf("Store u2: %v", err)
	}
	if err := d.Store("u1", []idle.RecordV1{actRec("act-d", "u1", 200)}); err != nil {
		t.Fatalf("Store replace: %v", err)
	}

	got, err := d.Load("u1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 || got[0].ID != "act-d" {
		t.Fatalf("got %+v, want just act-d", got)
	}

	other, err := d.Load("u2")
	if err != nil {
		t.Fatalf("Load u2: %v", err)
	}
	if len(other) != 1 || other[0].ID != "act-c" {
		t.Fatalf("u2 records disturbed: %+v", other)
	}
}

func TestDB_DeleteAllScopesToUser(t *testing.T) {
	d := openTestDB(t)

	if err := d.Store("u1", []idle.RecordV1{actRec("act-a", "u1", 0)}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := d.Store("u2", []idle.RecordV1{actRec("act-b", "u2", 0)}); err != nil {
		t.Fatalf("Store u2: %v", err)
	}
	if err := d.DeleteAll("u1"); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}

	got, err := d.Load("u1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("u1 still has %d records", len(got))
	}
	other, err := d.Load("u2")
	if err != nil {
		t.Fatalf("Load u2: %v", err)
	}
	if len(other) != 1 {
		t.Fatalf("u2 lost records: %+v", other)
	}
}

func TestDB_SnapshotRoundTrip(t *testing.T) {
	d := openTestDB(t)

	st := snapshot.Stored{
		UserID:     "u1",
		Version:    snapshot.Version,
		LogoutMs:   123456,
		Compressed: true,
		RawSize:    999,
		Data:       []byte{0x1f, 0x8b, 0x01, 0x02},
	}
	if err := d.SaveSnapshot(st); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	got, ok, err := d.LoadSnapshot("u1")
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if !ok {
		t.Fatalf("snapshot missing")
	}
	if got.Version != st.Version || got.LogoutMs != st.LogoutMs || !got.Compressed || got.RawSize != st.RawSize {
		t.Fatalf("metadata = %+v, want %+v", got, st)
	}
	if !bytes.Equal(got.Data, st.Data) {
		t.Fatalf("data = %x, want %x", got.Data, st.Data)
	}

	st.LogoutMs = 999999
	st.Compressed = false
	if err := d.SaveSnapshot(st); err != nil {
		t.Fatalf("SaveSnapshot overwrite: %v", err)
	}
	got, ok, err = d.LoadSnapshot("u1")
	if err != nil || !ok {
		t.Fatalf("LoadSnapshot after overwrite: ok=%v err=%v", ok, err)
	}
	if got.LogoutMs != 999999 || got.Compressed {
		t.Fatalf("overwrite not applied: %+v", got)
	}

	if _, ok, err := d.LoadSnapshot("missing"); err != nil || ok {
		t.Fatalf("missing snapshot: ok=%v err=%v", ok, err)
	}
}

func TestDB_LedgerAccountsRoundTrip(t *testing.T) {
	d := openTestDB(t)

	if err := d.SaveAccount("treasury", "1000000000000000000000000"); err != nil {
		t.Fatalf("SaveAccount: %v", err)
	}
	if err := d.SaveAccount("user:u1", "5"); err != nil {
		t.Fatalf("SaveAccount: %v", err)
	}
	if err := d.SaveAccount("user:u1", "7"); err != nil {
		t.Fatalf("SaveAccount overwrite: %v", err)
	}

	got, err := d.LoadAccounts()
	if err != nil {
		t.Fatalf("LoadAccounts: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d accounts, want 2: %v", len(got), got)
	}
	if got["treasury"] != "1000000000000000000000000" {
		t.Fatalf("treasury = %q", got["treasury"])
	}
	if got["user:u1"] != "7" {
		t.Fatalf("user:u1 = %q, want last write", got["user:u1"])
	}
}

func TestDB_ReopenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idle.db")

	d, err := Open(path, 64, testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := d.Store("u1", []idle.RecordV1{actRec("act-a", "u1", 42)}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := d.SaveAccount("user:u1", "11"); err != nil {
		t.Fatalf("SaveAccount: %v", err)
	}
	if err := d.SaveSnapshot(snapshot.Stored{UserID: "u1", Version: 1, LogoutMs: 42, RawSize: 2, Data: []byte("{}")}); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	d2, err := Open(path, 64, testLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer d2.Close()

	recs, err := d2.Load("u1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != "act-a" || recs[0].StartMs != 42 {
		t.Fatalf("records after reopen: %+v", recs)
	}
	accounts, err := d2.LoadAccounts()
	if err != nil {
		t.Fatalf("LoadAccounts: %v", err)
	}
	if accounts["user:u1"] != "11" {
		t.Fatalf("accounts after reopen: %v", accounts)
	}
	if _, ok, err := d2.LoadSnapshot("u1"); err != nil || !ok {
		t.Fatalf("snapshot after reopen: ok=%v err=%v", ok, err)
	}
}

func TestDB_CloseIsIdempotent(t *testing.T) {
	d, err := Open(filepath.Join(t.TempDir(), "idle.db"), 64, testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if err := d.Store("u1", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("Store after Close = %v, want ErrClosed", err)
	}
	if err := d.DeleteAll("u1"); !errors.Is(err, ErrClosed) {
		t.Fatalf("DeleteAll after Close = %v, want ErrClosed", err)
	}
	if err := d.SaveAccount("user:u1", "1"); err != nil {
		t.Fatalf("SaveAccount after Close should drop silently, got %v", err)
	}
}

func TestDB_UpsertCatalogsRecordsDigests(t *testing.T) {
	d := openTestDB(t)

	cats := &catalogs.Catalogs{
		Items:     catalogs.ItemCatalog{Digest: "aaa"},
		Farmables: catalogs.FarmableCatalog{Digest: "bbb"},
		Recipes:   catalogs.RecipeCatalog{Digest: "ccc"},
		Monsters:  catalogs.MonsterCatalog{Digest: "ddd"},
		Domains:   catalogs.DomainCatalog{Digest: "eee"},
		Dungeons:  catalogs.DungeonCatalog{Digest: "fff"},
	}
	if err := d.UpsertCatalogs(cats, tuning.Defaults()); err != nil {
		t.Fatalf("UpsertCatalogs: %v", err)
	}

	var digest string
	if err := d.db.QueryRow(`SELECT digest FROM catalogs WHERE name='farmables'`).Scan(&digest); err != nil {
		t.Fatalf("query: %v", err)
	}
	if digest != "bbb" {
		t.Fatalf("farmables digest = %q", digest)
	}
	if err := d.db.QueryRow(`SELECT digest FROM catalogs WHERE name='tuning'`).Scan(&digest); err != nil {
		t.Fatalf("tuning row: %v", err)
	}
	if len(digest) != 64 {
		t.Fatalf("tuning digest = %q, want sha256 hex", digest)
	}
}
