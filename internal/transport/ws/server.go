// Package ws is the websocket front door: HELLO/WELCOME handshake,
// CMD dispatch into the idle manager, server-push events through the
// hub, player snapshot restore/persist around the session.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"idlerealm.gg/internal/game/catalogs"
	"idlerealm.gg/internal/game/idle"
	"idlerealm.gg/internal/game/player"
	"idlerealm.gg/internal/game/tuning"
	"idlerealm.gg/internal/observability"
	"idlerealm.gg/internal/persistence/snapshot"
	"idlerealm.gg/internal/protocol"
)

// SnapshotStore persists player snapshots across sessions. A nil store
// disables restore/persist.
type SnapshotStore interface {
	SaveSnapshot(st snapshot.Stored) error
	LoadSnapshot(userID string) (snapshot.Stored, bool, error)
}

type Config struct {
	Manager   *idle.Manager
	Players   *player.Store
	Hub       *Hub
	Catalogs  *catalogs.Catalogs
	Tuning    tuning.Tuning
	Snapshots SnapshotStore
	Logger    *log.Logger
}

type Server struct {
	cfg      Config
	upgrader websocket.Upgrader
	wg       sync.WaitGroup
}

func NewServer(cfg Config) *Server {
	return &Server{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Shutdown kicks every connection and waits for the handlers to finish
// their logout work, so callers can close the manager and the database
// behind them.
func (s *Server) Shutdown(timeout time.Duration) {
	s.cfg.Hub.CloseAll()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		s.cfg.Logger.Printf("[ws] shutdown timed out with connections still open")
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		s.wg.Add(1)
		defer s.wg.Done()
		defer conn.Close()

		conn.SetReadLimit(int64(s.cfg.Tuning.WSMaxMessageSize))

		sess := s.handshake(conn)
		if sess == nil {
			return
		}
		observability.WSConnected()
		defer observability.WSDisconnected()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		writeWait := time.Duration(s.cfg.Tuning.WSWriteTimeoutS) * time.Second
		pongWait := time.Duration(s.cfg.Tuning.WSPongTimeoutS) * time.Second

		// Writer: drains the session queue, pings on a cadence, and
		// closes the connection on exit so a superseded session's
		// reader unblocks promptly.
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			defer conn.Close()
			ticker := time.NewTicker(pongWait * 9 / 10)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-sess.out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				case <-ticker.C:
					_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})

	read:
		for {
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			switch base.Type {
			case protocol.TypePing:
				if b, err := json.Marshal(protocol.BaseMessage{Type: protocol.TypePong}); err == nil {
					s.cfg.Hub.send(sess, b)
				}
			case protocol.TypeCmd:
				var cmd protocol.CmdMsg
				if err := json.Unmarshal(msg, &cmd); err != nil {
					s.ack(sess, "", false, protocol.ErrProtoBadRequest, "malformed CMD")
					continue
				}
				if cmd.ProtocolVersion != "" && cmd.ProtocolVersion != protocol.Version {
					s.ack(sess, cmd.ReqID, false, protocol.ErrProtoBadRequest, "unsupported protocol_version")
					continue
				}
				if cmd.Op == protocol.OpLogout {
					s.ack(sess, cmd.ReqID, true, "", "")
					break read
				}
				if err := s.dispatch(sess.userID, cmd); err != nil {
					s.ack(sess, cmd.ReqID, false, idle.CodeOf(err), err.Error())
				} else {
					s.ack(sess, cmd.ReqID, true, "", "")
				}
			default:
				// Repeated HELLOs and unknown types are ignored.
			}
		}

		// Detach closes the queue; the writer finishes flushing what is
		// buffered (the logout ACK included) before the teardown runs.
		owned := s.cfg.Hub.Detach(sess)
		<-writerDone
		if owned {
			n := s.cfg.Manager.Logout(sess.userID)
			s.persistPlayer(sess.userID)
			s.cfg.Logger.Printf("[ws] %s disconnected, %d activities suspended", sess.userID, n)
		}
	}
}

// handshake reads HELLO, restores the player, answers WELCOME and
// marks the user live. The session attaches to the hub only after the
// WELCOME made it out, so a failed handshake never strands a kicked
// predecessor.
func (s *Server) handshake(conn *websocket.Conn) *session {
	writeWait := time.Duration(s.cfg.Tuning.WSWriteTimeoutS) * time.Second

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closePolicy(conn, "expected HELLO")
		return nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		closePolicy(conn, "malformed HELLO")
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closePolicy(conn, "unsupported protocol_version")
		return nil
	}
	userID := strings.TrimSpace(hello.UserID)
	if userID == "" {
		closePolicy(conn, "missing user_id")
		return nil
	}
	name := strings.TrimSpace(hello.ClientName)
	if name == "" {
		name = userID
	}

	s.restorePlayer(userID, name)

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		UserID:          userID,
		ServerTimeMs:    time.Now().UnixMilli(),
		Catalogs:        digestsOf(s.cfg.Catalogs),
		Limits: protocol.SessionLimits{
			MaxConcurrentActivities: s.cfg.Tuning.MaxConcurrentIdleActivities,
			MaxOfflineProgressS:     s.cfg.Tuning.MaxOfflineIdleProgressS,
		},
	}
	if err := writeJSON(conn, welcome, writeWait); err != nil {
		return nil
	}

	sess := s.cfg.Hub.Attach(userID, s.cfg.Tuning.WSOutQueueSize)
	s.cfg.Manager.Login(userID)
	return sess
}

func (s *Server) dispatch(userID string, cmd protocol.CmdMsg) error {
	m := s.cfg.Manager
	switch cmd.Op {
	case protocol.OpFarmStart:
		return m.StartFarming(userID, cmd.ItemID)
	case protocol.OpFarmStop:
		return m.StopFarming(userID, cmd.ItemID)
	case protocol.OpCraftStart:
		return m.StartCrafting(userID, cmd.EquipmentID)
	case protocol.OpCraftStop:
		return m.StopCrafting(userID, cmd.EquipmentID)
	case protocol.OpBreedStart:
		return m.StartBreeding(userID, cmd.SireID, cmd.DameID)
	case protocol.OpBreedStop:
		return m.StopBreeding(userID, cmd.SireID, cmd.DameID)
	case protocol.OpCombatStart:
		return m.StartCombat(userID, cmd.Mode, cmd.DomainID, cmd.DungeonID)
	case protocol.OpCombatStop:
		return m.StopCombat(userID)
	default:
		return &idle.StartError{Code: protocol.ErrBadRequest, Msg: "unknown op " + cmd.Op}
	}
}

func (s *Server) ack(sess *session, reqID string, accepted bool, code, message string) {
	b, err := json.Marshal(protocol.AckMsg{
		Type:     protocol.TypeAck,
		ReqID:    reqID,
		Accepted: accepted,
		Code:     code,
		Message:  message,
	})
	if err != nil {
		return
	}
	s.cfg.Hub.send(sess, b)
}

// restorePlayer rebuilds the in-memory player from the stored snapshot
// when the user is not resident, then ensures one exists either way. A
// corrupt snapshot logs and falls back to a fresh player.
func (s *Server) restorePlayer(userID, name string) {
	if _, ok := s.cfg.Players.Get(userID); !ok && s.cfg.Snapshots != nil {
		st, found, err := s.cfg.Snapshots.LoadSnapshot(userID)
		switch {
		case err != nil:
			s.cfg.Logger.Printf("[ws] %s: load snapshot: %v", userID, err)
		case found:
			snap, err := snapshot.Decode(st)
			if err != nil {
				s.cfg.Logger.Printf("[ws] %s: decode snapshot: %v", userID, err)
			} else {
				s.cfg.Players.Put(snap.Player)
			}
		}
	}
	s.cfg.Players.Ensure(userID, name)
}

func (s *Server) persistPlayer(userID string) {
	if s.cfg.Snapshots == nil {
		return
	}
	p, ok := s.cfg.Players.Get(userID)
	if !ok {
		return
	}
	st, err := snapshot.Encode(p, time.Now().UnixMilli(), s.cfg.Tuning.SnapshotGzipThreshold)
	if err != nil {
		s.cfg.Logger.Printf("[ws] %s: encode snapshot: %v", userID, err)
		return
	}
	if err := s.cfg.Snapshots.SaveSnapshot(st); err != nil {
		s.cfg.Logger.Printf("[ws] %s: save snapshot: %v", userID, err)
	}
}

func digestsOf(c *catalogs.Catalogs) protocol.CatalogDigests {
	return protocol.CatalogDigests{
		Items:     protocol.DigestRef{Digest: c.Items.Digest, Count: len(c.Items.ByID)},
		Farmables: protocol.DigestRef{Digest: c.Farmables.Digest, Count: len(c.Farmables.ByID)},
		Recipes:   protocol.DigestRef{Digest: c.Recipes.Digest, Count: len(c.Recipes.ByID)},
		Monsters:  protocol.DigestRef{Digest: c.Monsters.Digest, Count: len(c.Monsters.ByID)},
		Domains:   protocol.DigestRef{Digest: c.Domains.Digest, Count: len(c.Domains.ByID)},
		Dungeons:  protocol.DigestRef{Digest: c.Dungeons.Digest, Count: len(c.Dungeons.ByID)},
	}
}

func closePolicy(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
		time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v interface{}, writeWait time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, b)
}
