package ledger

import (
	"fmt"
	"os"
	"time"

	"offerdex/pkg/model"
)

// Config holds the ledger feed settings.
type Config struct {
	// URL is the NATS server carrying the ledger stream. Empty runs
	// the node against the in-process bus, which has no history.
	URL string `yaml:"url"`

	// Stream is the JetStream stream holding the record feed.
	Stream string `yaml:"stream"`

	// Subject is the subject prefix for ledger records. Records are
	// published under Subject + ".records.<provider>".
	Subject string `yaml:"subject"`

	// Buffer is the consumer delivery channel capacity.
	Buffer int `yaml:"buffer"`

	// MaxRecordBytes drops records larger than this before decoding.
	// Zero disables the limit.
	MaxRecordBytes int `yaml:"max_record_bytes"`

	// MaxDeliver is how many delivery attempts a record that fails to
	// apply gets before it is dropped.
	MaxDeliver int `yaml:"max_deliver"`

	// ApplyTimeout bounds applying one record to the catalog.
	ApplyTimeout model.Duration `yaml:"apply_timeout"`

	// ReplaySettle is the quiet period after the last delivered record
	// that marks the startup backlog as applied.
	ReplaySettle model.Duration `yaml:"replay_settle"`

	// ReplayWait bounds how long startup waits for the backlog before
	// serving anyway. Zero skips the wait.
	ReplayWait model.Duration `yaml:"replay_wait"`

	// PublishRetries is the number of retries when appending a record
	// to the feed.
	PublishRetries int `yaml:"publish_retries"`
}

// DefaultConfig returns the ledger defaults for a standalone node.
func DefaultConfig() Config {
	return Config{
		Stream:         "OFFERDEX_LEDGER",
		Subject:        "offerdex.ledger",
		Buffer:         256,
		MaxRecordBytes: 1 << 20,
		MaxDeliver:     5,
		ApplyTimeout:   model.Duration(10 * time.Second),
		ReplaySettle:   model.Duration(2 * time.Second),
		ReplayWait:     model.Duration(30 * time.Second),
		PublishRetries: 2,
	}
}

// ApplyDefaults fills zero fields with defaults.
func (c *Config) ApplyDefaults() {
	def := DefaultConfig()
	if c.Stream == "" {
		c.Stream = def.Stream
	}
	if c.Subject == "" {
		c.Subject = def.Subject
	}
	if c.Buffer == 0 {
		c.Buffer = def.Buffer
	}
	if c.MaxRecordBytes == 0 {
		c.MaxRecordBytes = def.MaxRecordBytes
	}
	if c.MaxDeliver == 0 {
		c.MaxDeliver = def.MaxDeliver
	}
	if c.ApplyTimeout == 0 {
		c.ApplyTimeout = def.ApplyTimeout
	}
	if c.ReplaySettle == 0 {
		c.ReplaySettle = def.ReplaySettle
	}
	if c.PublishRetries == 0 {
		c.PublishRetries = def.PublishRetries
	}
}

// ApplyEnvOverrides applies environment variable overrides.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("OFFERDEX_NATS_URL"); v != "" {
		c.URL = v
	}
	if v := os.Getenv("OFFERDEX_LEDGER_STREAM"); v != "" {
		c.Stream = v
	}
	if v := os.Getenv("OFFERDEX_LEDGER_SUBJECT"); v != "" {
		c.Subject = v
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Stream == "" {
		return fmt.Errorf("stream must not be empty")
	}
	if c.Subject == "" {
		return fmt.Errorf("subject must not be empty")
	}
	if c.Buffer < 0 {
		return fmt.Errorf("buffer must not be negative, got %d", c.Buffer)
	}
	if c.MaxRecordBytes < 0 {
		return fmt.Errorf("max_record_bytes must not be negative, got %d", c.MaxRecordBytes)
	}
	if c.MaxDeliver < 0 {
		return fmt.Errorf("max_deliver must not be negative, got %d", c.MaxDeliver)
	}
	if c.ApplyTimeout < 0 {
		return fmt.Errorf("apply_timeout must not be negative, got %s", c.ApplyTimeout)
	}
	if c.ReplaySettle < 0 {
		return fmt.Errorf("replay_settle must not be negative, got %s", c.ReplaySettle)
	}
	if c.ReplayWait < 0 {
		return fmt.Errorf("replay_wait must not be negative, got %s", c.ReplayWait)
	}
	return nil
}
