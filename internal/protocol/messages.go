package protocol

// HELLO (client -> server): claims a user id and opens the session.
// Authentication is out of scope; the id is taken at face value.
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	UserID          string `json:"user_id"`
	ClientName      string `json:"client_name,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	UserID          string         `json:"user_id"`
	ServerTimeMs    int64          `json:"server_time_ms"`
	Catalogs        CatalogDigests `json:"catalogs"`
	Limits          SessionLimits  `json:"limits"`
}

type SessionLimits struct {
	MaxConcurrentActivities int `json:"max_concurrent_activities"`
	MaxOfflineProgressS     int `json:"max_offline_progress_s"`
}

type CatalogDigests struct {
	Items     DigestRef `json:"items"`
	Farmables DigestRef `json:"farmables"`
	Recipes   DigestRef `json:"recipes"`
	Monsters  DigestRef `json:"monsters"`
	Domains   DigestRef `json:"domains"`
	Dungeons  DigestRef `json:"dungeons"`
}

type DigestRef struct {
	Digest string `json:"digest"`
	Count  int    `json:"count"`
}

// CMD (client -> server): one activity command. Unused id fields stay empty.
type CmdMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
	ReqID           string `json:"req_id,omitempty"`
	Op              string `json:"op"`

	ItemID      string `json:"item_id,omitempty"`
	EquipmentID string `json:"equipment_id,omitempty"`
	SireID      string `json:"sire_id,omitempty"`
	DameID      string `json:"dame_id,omitempty"`
	Mode        string `json:"mode,omitempty"`
	DomainID    string `json:"domain_id,omitempty"`
	DungeonID   string `json:"dungeon_id,omitempty"`
}

// ACK (server -> client): command outcome.
type AckMsg struct {
	Type     string `json:"type"`
	ReqID    string `json:"req_id,omitempty"`
	Accepted bool   `json:"accepted"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message,omitempty"`
}

// EVENT (server -> client): wraps one Event payload.
type EventMsg struct {
	Type  string `json:"type"`
	Event Event  `json:"event"`
}
