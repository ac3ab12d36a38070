// Package snapshot defines the versioned player record persisted at
// logout. Bodies above a size threshold are gzip-compressed; the
// metadata rides beside the blob so the database can report on it
// without decoding.
package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"idlerealm.gg/internal/game/player"
)

const Version = 1

// PlayerSnapshotV1 is the persisted form of a player: plain data only.
// The version inside the body is authoritative; the column beside the
// blob is a convenience copy.
type PlayerSnapshotV1 struct {
	Version  int           `json:"version"`
	UserID   string        `json:"user_id"`
	LogoutMs int64         `json:"logout_ms"`
	Player   player.Player `json:"player"`
}

// Stored is the encoded snapshot plus its metadata: what the database
// keeps in the player_snapshots row.
type Stored struct {
	UserID     string
	Version    int
	LogoutMs   int64
	Compressed bool
	RawSize    int
	Data       []byte
}

// Encode marshals the player and compresses the body when the JSON
// exceeds gzipThreshold bytes. A threshold of zero compresses
// everything.
func Encode(p player.Player, logoutMs int64, gzipThreshold int) (Stored, error) {
	snap := PlayerSnapshotV1{
		Version:  Version,
		UserID:   p.UserID,
		LogoutMs: logoutMs,
		Player:   p,
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return Stored{}, fmt.Errorf("snapshot %s: %w", p.UserID, err)
	}
	st := Stored{
		UserID:   p.UserID,
		Version:  Version,
		LogoutMs: logoutMs,
		RawSize:  len(raw),
		Data:     raw,
	}
	if len(raw) > gzipThreshold {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(raw); err != nil {
			return Stored{}, fmt.Errorf("snapshot %s: %w", p.UserID, err)
		}
		if err := zw.Close(); err != nil {
			return Stored{}, fmt.Errorf("snapshot %s: %w", p.UserID, err)
		}
		st.Compressed = true
		st.Data = buf.Bytes()
	}
	return st, nil
}

// Decode reverses Encode and rejects versions this build does not
// understand.
func Decode(st Stored) (PlayerSnapshotV1, error) {
	var snap PlayerSnapshotV1
	raw := st.Data
	if st.Compressed {
		zr, err := gzip.NewReader(bytes.NewReader(st.Data))
		if err != nil {
			return snap, fmt.Errorf("snapshot %s: %w", st.UserID, err)
		}
		raw, err = io.ReadAll(zr)
		if cerr := zr.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return snap, fmt.Errorf("snapshot %s: %w", st.UserID, err)
		}
	}
	if err := json.Unmarshal(raw, &snap); err != nil {
		return snap, fmt.Errorf("snapshot %s: %w", st.UserID, err)
	}
	if snap.Version != Version {
		return snap, fmt.Errorf("snapshot %s: unsupported version %d", st.UserID, snap.Version)
	}
	return snap, nil
}
