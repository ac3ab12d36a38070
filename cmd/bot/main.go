// A headless client that logs in, starts an activity, disconnects and
// reconnects so the offline reconciliation path gets exercised against
// a running server.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"idlerealm.gg/internal/protocol"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "server ws url")
		user     = flag.String("user", "bot_1", "user id")
		name     = flag.String("name", "bot", "display name")
		farm     = flag.String("farm", "wheat", "farmable item to start each session")
		online   = flag.Duration("online", 90*time.Second, "time connected per session")
		offline  = flag.Duration("offline", 3*time.Minute, "time disconnected between sessions")
		sessions = flag.Int("sessions", 0, "sessions to run (0 = until interrupted)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	for i := 0; *sessions == 0 || i < *sessions; i++ {
		if i > 0 {
			logger.Printf("offline for %s", *offline)
			select {
			case <-stop:
				return
			case <-time.After(*offline):
			}
		}
		if err := runSession(logger, *url, *user, *name, *farm, *online, stop); err != nil {
			logger.Printf("session %d: %v", i+1, err)
		}
		select {
		case <-stop:
			return
		default:
		}
	}
}

func runSession(logger *log.Logger, url, user, name, farm string, online time.Duration, stop <-chan os.Signal) error {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		UserID:          user,
		ClientName:      name,
	}
	if err := conn.WriteJSON(hello); err != nil {
		return fmt.Errorf("send HELLO: %w", err)
	}

	msgs := make(chan []byte, 32)
	go func() {
		defer close(msgs)
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msgs <- b
		}
	}()

	done := time.After(online)
	ping := time.NewTicker(25 * time.Second)
	defer ping.Stop()

	reqSeq := 0
	for {
		select {
		case <-stop:
			return nil
		case <-ping.C:
			_ = conn.WriteJSON(protocol.BaseMessage{Type: protocol.TypePing})
		case <-done:
			// Clean logout: the server suspends the farm and closes.
			reqSeq++
			_ = conn.WriteJSON(protocol.CmdMsg{
				Type:  protocol.TypeCmd,
				ReqID: fmt.Sprintf("r%d", reqSeq),
				Op:    protocol.OpLogout,
			})
			drainUntilClosed(msgs, logger)
			return nil
		case b, ok := <-msgs:
			if !ok {
				return fmt.Errorf("connection closed by server")
			}
			base, err := protocol.DecodeBase(b)
			if err != nil {
				continue
			}
			switch base.Type {
			case protocol.TypeWelcome:
				var w protocol.WelcomeMsg
				if err := json.Unmarshal(b, &w); err != nil {
					continue
				}
				logger.Printf("WELCOME user=%s server_time_ms=%d farmables=%d limits=%d/%ds",
					w.UserID, w.ServerTimeMs, w.Catalogs.Farmables.Count,
					w.Limits.MaxConcurrentActivities, w.Limits.MaxOfflineProgressS)
				reqSeq++
				if err := conn.WriteJSON(protocol.CmdMsg{
					Type:   protocol.TypeCmd,
					ReqID:  fmt.Sprintf("r%d", reqSeq),
					Op:     protocol.OpFarmStart,
					ItemID: farm,
				}); err != nil {
					return fmt.Errorf("send farm-start: %w", err)
				}

			case protocol.TypeAck:
				var ack protocol.AckMsg
				if err := json.Unmarshal(b, &ack); err != nil {
					continue
				}
				if ack.Accepted {
					logger.Printf("ACK %s accepted", ack.ReqID)
				} else {
					logger.Printf("ACK %s rejected: %s %s", ack.ReqID, ack.Code, ack.Message)
				}

			case protocol.TypeEvent:
				logEvent(logger, b)
			}
		}
	}
}

func logEvent(logger *log.Logger, b []byte) {
	var em struct {
		Event protocol.Event `json:"event"`
	}
	if err := json.Unmarshal(b, &em); err != nil {
		return
	}
	switch em.Event["type"] {
	case protocol.EvIdleProgress:
		payload, _ := em.Event["payload"].([]interface{})
		for _, entry := range payload {
			upd, ok := entry.(map[string]interface{})
			if !ok {
				continue
			}
			logger.Printf("progress: kind=%v repetitions=%v exp=%v", upd["kind"], upd["repetitions"], upd["exp"])
		}
	case protocol.EvError:
		logger.Printf("server error: %v %v", em.Event["code"], em.Event["message"])
	default:
		logger.Printf("event: %v", em.Event["type"])
	}
}

// drainUntilClosed reads out the final ACK and waits for the server to
// drop the connection.
func drainUntilClosed(msgs <-chan []byte, logger *log.Logger) {
	timeout := time.After(5 * time.Second)
	for {
		select {
		case b, ok := <-msgs:
			if !ok {
				return
			}
			if base, err := protocol.DecodeBase(b); err == nil && base.Type == protocol.TypeAck {
				logger.Printf("logout acknowledged")
			}
		case <-timeout:
			return
		}
	}
}
