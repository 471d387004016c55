package config

import (
	"fmt"
	"runtime"
	"time"
)

// Tuning holds buffer and rate settings for the outer surfaces.
type Tuning struct {
	// Channel buffer sizes
	EventSubscriberBuffer  int `yaml:"event_subscriber_buffer"`
	BroadcastChannelBuffer int `yaml:"broadcast_channel_buffer"`
	ClientSendBuffer       int `yaml:"client_send_buffer"`

	// Connection pools
	DBMaxOpenConns int `yaml:"db_max_open_conns"`
	RedisPoolSize  int `yaml:"redis_pool_size"`

	// Rate limiting
	MinActionInterval time.Duration `yaml:"min_action_interval"`
	MaxClients        int           `yaml:"max_clients"`
}

// Profiles accepted by the "profile" key.
const (
	ProfileDefault = "default"
	ProfileStress  = "stress"
	ProfileLow     = "low"
)

// TuningFor returns the preset for profile.
func TuningFor(profile string) (Tuning, error) {
	switch profile {
	case "", ProfileDefault:
		return DefaultTuning(), nil
	case ProfileStress:
		return StressTuning(), nil
	case ProfileLow:
		return LowResourceTuning(), nil
	default:
		return Tuning{}, fmt.Errorf("unknown profile %q", profile)
	}
}

// DefaultTuning returns sensible defaults for a single simulation server.
func DefaultTuning() Tuning {
	numCPU := runtime.NumCPU()

	return Tuning{
		EventSubscriberBuffer:  1024, // Handle bursts
		BroadcastChannelBuffer: 256,
		ClientSendBuffer:       64, // Per WebSocket

		DBMaxOpenConns: 1, // sqlite: single writer
		RedisPoolSize:  numCPU * 2,

		MinActionInterval: 100 * time.Millisecond,
		MaxClients:        200,
	}
}

// StressTuning returns aggressive settings for the agitator runs.
func StressTuning() Tuning {
	numCPU := runtime.NumCPU()

	return Tuning{
		EventSubscriberBuffer:  4096,
		BroadcastChannelBuffer: 1024,
		ClientSendBuffer:       256,

		DBMaxOpenConns: 1,
		RedisPoolSize:  numCPU * 4,

		MinActionInterval: 10 * time.Millisecond,
		MaxClients:        500,
	}
}

// LowResourceTuning returns minimal settings for development.
func LowResourceTuning() Tuning {
	return Tuning{
		EventSubscriberBuffer:  64,
		BroadcastChannelBuffer: 16,
		ClientSendBuffer:       8,

		DBMaxOpenConns: 1,
		RedisPoolSize:  5,

		MinActionInterval: 500 * time.Millisecond,
		MaxClients:        20,
	}
}
