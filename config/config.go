// Package config holds the tunables for a download session, loadable
// from YAML.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config collects every tunable of a single-peer sequential download.
type Config struct {

	// TrackerTimeout bounds a single tracker announce request.
	TrackerTimeout time.Duration `yaml:"tracker_timeout"`

	// TrackerNumWant is the numwant sent on announce; 0 omits the field.
	TrackerNumWant int `yaml:"tracker_numwant"`

	// PeerDialTimeout bounds the TCP connect and handshake exchange.
	PeerDialTimeout time.Duration `yaml:"peer_dial_timeout"`

	// PeerReadDeadline bounds how long a single piece download may wait
	// on a peer before it is considered stalled.
	PeerReadDeadline time.Duration `yaml:"peer_read_deadline"`

	// InitBudget bounds how many messages may be read while waiting
	// for the peer's first Unchoke before giving up on it.
	InitBudget int `yaml:"init_budget"`

	// MaxPipelined is loaded but not read by the downloader, which
	// requests every block of a piece before reading any reply.
	MaxPipelined int `yaml:"max_pipelined"`

	// BlockSize is the size of one requested block, in bytes.
	BlockSize int `yaml:"block_size"`

	// EventBufferSize sizes the best-effort progress event channel.
	EventBufferSize int `yaml:"event_buffer_size"`

	// LogDevelopment selects the human-readable console log encoding
	// over the default JSON production encoding.
	LogDevelopment bool `yaml:"log_development"`
}

// Default returns the tunables this client ships with.
func Default() Config {
	return Config{
		TrackerTimeout:   30 * time.Second,
		TrackerNumWant:   50,
		PeerDialTimeout:  5 * time.Second,
		PeerReadDeadline: 15 * time.Second,
		InitBudget:       10,
		MaxPipelined:     5,
		BlockSize:        1 << 14,
		EventBufferSize:  64,
	}
}

// Load reads a YAML config file, applying it on top of Default so
// unset fields keep their defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "config: reading file")
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, errors.Wrap(err, "config: parsing yaml")
	}
	return cfg, nil
}
