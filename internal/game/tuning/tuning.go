package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	// Idle engine.
	MaxConcurrentIdleActivities int `yaml:"max_concurrent_idle_activities"`
	MaxOfflineIdleProgressS     int `yaml:"max_offline_idle_progress_s"`

	// Offline combat.
	Combat Combat `yaml:"combat"`

	// Capacities consulted by resource checks.
	MaxInventorySlots int `yaml:"max_inventory_slots"`
	MaxEquipmentSlots int `yaml:"max_equipment_slots"`
	MaxSlimes         int `yaml:"max_slimes"`

	// Persistence.
	SnapshotGzipThreshold int `yaml:"snapshot_gzip_threshold"`
	DBQueueSize           int `yaml:"db_queue_size"`

	// Transport.
	WSWriteTimeoutS  int `yaml:"ws_write_timeout_s"`
	WSPongTimeoutS   int `yaml:"ws_pong_timeout_s"`
	WSOutQueueSize   int `yaml:"ws_out_queue_size"`
	WSMaxMessageSize int `yaml:"ws_max_message_size"`
}

type Combat struct {
	TickMs int `yaml:"tick_ms"`

	// Offline sessions run at a fraction of real elapsed time and with
	// deliberately weakened stats and rewards.
	OfflineSpeedMultiplier float64 `yaml:"offline_speed_multiplier"`
	OfflineStatNerf        float64 `yaml:"offline_stat_nerf"`
	OfflineExpNerf         float64 `yaml:"offline_exp_nerf"`
	OfflineDropNerf        float64 `yaml:"offline_drop_nerf"`

	// Live fights advance this often per registry timer fire.
	LiveRoundS int `yaml:"live_round_s"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:             "1.0",
		MaxConcurrentIdleActivities: 6,
		MaxOfflineIdleProgressS:     43200, // 12h
		Combat: Combat{
			TickMs:                 100,
			OfflineSpeedMultiplier: 0.25,
			OfflineStatNerf:        0.80,
			OfflineExpNerf:         0.50,
			OfflineDropNerf:        0.50,
			LiveRoundS:             1,
		},
		MaxInventorySlots:     64,
		MaxEquipmentSlots:     32,
		MaxSlimes:             16,
		SnapshotGzipThreshold: 4096,
		DBQueueSize:           1024,
		WSWriteTimeoutS:       10,
		WSPongTimeoutS:        60,
		WSOutQueueSize:        256,
		WSMaxMessageSize:      1 << 16,
	}
}

// Load reads tuning.yaml over the compiled-in defaults, so a partial
// file overrides only the keys it names.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, t.Validate()
}

func (t Tuning) Validate() error {
	if t.MaxConcurrentIdleActivities < 1 {
		return fmt.Errorf("max_concurrent_idle_activities must be >= 1")
	}
	if t.MaxOfflineIdleProgressS < 0 {
		return fmt.Errorf("max_offline_idle_progress_s must be >= 0")
	}
	if t.Combat.TickMs <= 0 {
		return fmt.Errorf("combat.tick_ms must be > 0")
	}
	if t.Combat.OfflineSpeedMultiplier <= 0 || t.Combat.OfflineSpeedMultiplier > 1 {
		return fmt.Errorf("combat.offline_speed_multiplier must be in (0,1]")
	}
	for name, v := range map[string]float64{
		"combat.offline_stat_nerf": t.Combat.OfflineStatNerf,
		"combat.offline_exp_nerf":  t.Combat.OfflineExpNerf,
		"combat.offline_drop_nerf": t.Combat.OfflineDropNerf,
	} {
		if v <= 0 || v > 1 {
			return fmt.Errorf("%s must be in (0,1]", name)
		}
	}
	if t.Combat.LiveRoundS < 1 {
		return fmt.Errorf("combat.live_round_s must be >= 1")
	}
	return nil
}
