// Package config holds the typed, defaulted runtime options recognized by
// the core (spec §4.I), loadable from environment variables and an
// optional file via viper the way _examples/0x5844-goMsg wires pflag and
// viper together — generalized here to a library config struct rather
// than a flag-parsing main.
package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full set of options the core consults. Every field has a
// spec-mandated default; callers only need to override what they care
// about.
type Config struct {
	ListenPort           int
	ConnectTimeout       time.Duration
	HandshakeTimeout     time.Duration
	HeartbeatInterval    time.Duration
	RekeyMsgThreshold    uint64
	RekeyTime            time.Duration
	MaxFrameBytes        uint32
	MaxFileBytes         int64
	ReconnectMaxAttempts int
	Argon2TimeCost       uint32
	Argon2MemoryKiB      uint32
	Argon2Parallelism    uint8
	ReplayWindow         int
}

// Default returns the spec §4.I defaults.
func Default() Config {
	return Config{
		ListenPort:           5555,
		ConnectTimeout:       10 * time.Second,
		HandshakeTimeout:     10 * time.Second,
		HeartbeatInterval:    30 * time.Second,
		RekeyMsgThreshold:    1000,
		RekeyTime:            24 * time.Hour,
		MaxFrameBytes:        10 * 1024 * 1024,
		MaxFileBytes:         10 * 1024 * 1024,
		ReconnectMaxAttempts: 5,
		Argon2TimeCost:       2,
		Argon2MemoryKiB:      100 * 1024,
		Argon2Parallelism:    8,
		ReplayWindow:         1024,
	}
}

// Load starts from Default and overlays values from environment variables
// prefixed P2PMSG_ (e.g. P2PMSG_LISTEN_PORT) and, if non-empty and the
// file exists, a config file at path (TOML/YAML/JSON, detected by
// extension).
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix("p2pmsg")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			_, notFound := err.(viper.ConfigFileNotFoundError)
			if !notFound && !errors.Is(err, fs.ErrNotExist) {
				return cfg, err
			}
		}
	}

	cfg.ListenPort = v.GetInt("listen_port")
	cfg.ConnectTimeout = v.GetDuration("connect_timeout")
	cfg.HandshakeTimeout = v.GetDuration("handshake_timeout")
	cfg.HeartbeatInterval = v.GetDuration("heartbeat_interval")
	cfg.RekeyMsgThreshold = v.GetUint64("rekey_msg_threshold")
	cfg.RekeyTime = v.GetDuration("rekey_time")
	cfg.MaxFrameBytes = uint32(v.GetUint("max_frame_bytes"))
	cfg.MaxFileBytes = v.GetInt64("max_file_bytes")
	cfg.ReconnectMaxAttempts = v.GetInt("reconnect_max_attempts")
	cfg.Argon2TimeCost = uint32(v.GetUint("argon2_time_cost"))
	cfg.Argon2MemoryKiB = uint32(v.GetUint("argon2_memory_kib"))
	cfg.Argon2Parallelism = uint8(v.GetUint("argon2_parallelism"))
	cfg.ReplayWindow = v.GetInt("replay_window")
	return cfg, nil
}

func bindDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("listen_port", cfg.ListenPort)
	v.SetDefault("connect_timeout", cfg.ConnectTimeout)
	v.SetDefault("handshake_timeout", cfg.HandshakeTimeout)
	v.SetDefault("heartbeat_interval", cfg.HeartbeatInterval)
	v.SetDefault("rekey_msg_threshold", cfg.RekeyMsgThreshold)
	v.SetDefault("rekey_time", cfg.RekeyTime)
	v.SetDefault("max_frame_bytes", cfg.MaxFrameBytes)
	v.SetDefault("max_file_bytes", cfg.MaxFileBytes)
	v.SetDefault("reconnect_max_attempts", cfg.ReconnectMaxAttempts)
	v.SetDefault("argon2_time_cost", cfg.Argon2TimeCost)
	v.SetDefault("argon2_memory_kib", cfg.Argon2MemoryKiB)
	v.SetDefault("argon2_parallelism", cfg.Argon2Parallelism)
	v.SetDefault("replay_window", cfg.ReplayWindow)
}
