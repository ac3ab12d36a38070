package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"idlerealm.gg/internal/game/catalogs"
	"idlerealm.gg/internal/game/idle"
	"idlerealm.gg/internal/game/player"
	"idlerealm.gg/internal/game/tuning"
	"idlerealm.gg/internal/ledger"
	"idlerealm.gg/internal/persistence/idledb"
	persistlog "idlerealm.gg/internal/persistence/log"
	"idlerealm.gg/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", getEnv("IDLE_ADDR", ":8080"), "http listen address")
		configDir  = flag.String("configs", getEnv("IDLE_CONFIG_DIR", "./configs"), "config directory")
		dataDir    = flag.String("data", getEnv("IDLE_DATA_DIR", "./data"), "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		seed       = flag.Int64("seed", 0, "rng seed for slime rolls and combat (0 = time-based)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", tp)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}

	cats, err := catalogs.Load(filepath.Join(*configDir, "catalogs"))
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}
	logger.Printf("catalogs: items=%d/%s farmables=%d/%s recipes=%d/%s monsters=%d/%s domains=%d/%s dungeons=%d/%s",
		len(cats.Items.ByID), shortDigest(cats.Items.Digest),
		len(cats.Farmables.ByID), shortDigest(cats.Farmables.Digest),
		len(cats.Recipes.ByID), shortDigest(cats.Recipes.Digest),
		len(cats.Monsters.ByID), shortDigest(cats.Monsters.Digest),
		len(cats.Domains.ByID), shortDigest(cats.Domains.Digest),
		len(cats.Dungeons.ByID), shortDigest(cats.Dungeons.Digest))

	db, err := idledb.Open(filepath.Join(*dataDir, "idle.db"), tune.DBQueueSize, logger)
	if err != nil {
		logger.Fatalf("open db: %v", err)
	}
	if err := db.UpsertCatalogs(cats, tune); err != nil {
		logger.Printf("[db] upsert catalogs: %v", err)
	}

	led, err := ledger.New(db, logger)
	if err != nil {
		logger.Fatalf("ledger: %v", err)
	}

	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}
	players := player.NewStore(&tune, rand.New(rand.NewSource(rngSeed)))

	journal := persistlog.NewActivityJournal(*dataDir, logger)

	hub := ws.NewHub(logger)
	mgr := idle.NewManager(idle.ManagerConfig{
		Logger:    logger,
		Tuning:    &tune,
		Catalogs:  cats,
		Inventory: players,
		Creatures: players,
		Ledger:    led,
		Notifier:  hub,
		Bridge:    db,
		Journal:   journal,
		Seed:      rngSeed,
	})

	wsrv := ws.NewServer(ws.Config{
		Manager:   mgr,
		Players:   players,
		Hub:       hub,
		Catalogs:  cats,
		Tuning:    tune,
		Snapshots: db,
		Logger:    logger,
	})

	ctx, cancel := signalContext()
	defer cancel()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/v1/ws", wsrv.Handler())

	if envBool("IDLE_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		// Local-only inspection endpoint.
		mux.HandleFunc("/admin/v1/users", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			type userRow struct {
				UserID     string      `json:"user_id"`
				Activities []idle.Info `json:"activities"`
			}
			users := hub.Users()
			rows := make([]userRow, 0, len(users))
			for _, u := range users {
				rows = append(rows, userRow{UserID: u, Activities: mgr.Activities(u)})
			}
			_ = json.NewEncoder(rw).Encode(struct {
				Users []userRow `json:"users"`
			}{Users: rows})
		})
	} else {
		logger.Printf("admin endpoints disabled (IDLE_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("IDLE_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	// The listener is down but websocket handlers run on hijacked
	// connections: kick them so every live user gets a logout snapshot,
	// then drain the engine and the writer queue.
	wsrv.Shutdown(10 * time.Second)
	mgr.Close()
	journal.Close()
	if err := db.Close(); err != nil {
		logger.Printf("[db] close: %v", err)
	}
	logger.Printf("shutdown complete")
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func shortDigest(d string) string {
	if len(d) > 8 {
		return d[:8]
	}
	return d
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
