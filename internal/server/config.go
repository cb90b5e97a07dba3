package server

import (
	"fmt"
	"time"
)

type Config struct {
	// WebSocketAddr and QUICAddr are the listen addresses. An empty
	// address disables the transport.
	WebSocketAddr string `yaml:"websocket_addr" env:"WEBSOCKET_ADDR"`
	QUICAddr      string `yaml:"quic_addr" env:"QUIC_ADDR"`
	// TLSCert and TLSKey are used by QUIC. Without them a self-signed
	// certificate is generated.
	TLSCert string `yaml:"tls_cert" env:"TLS_CERT"`
	TLSKey  string `yaml:"tls_key" env:"TLS_KEY"`

	TickRate   time.Duration `yaml:"tick_rate" env:"TICK_RATE"`
	MaxClients int           `yaml:"max_clients" env:"MAX_CLIENTS"`

	// SendQueue bounds the outbound messages of one session. A session
	// whose queue overflows is disconnected.
	SendQueue    int `yaml:"send_queue" env:"SEND_QUEUE"`
	InboundQueue int `yaml:"inbound_queue" env:"INBOUND_QUEUE"`

	HandshakeTimeout time.Duration `yaml:"handshake_timeout" env:"HANDSHAKE_TIMEOUT"`

	// IntentRate is the sustained number of intents per second one session
	// may send, with bursts up to IntentBurst.
	IntentRate  float64 `yaml:"intent_rate" env:"INTENT_RATE"`
	IntentBurst int     `yaml:"intent_burst" env:"INTENT_BURST"`

	// RefreshTicks resends unreliable components every so many ticks.
	RefreshTicks uint64 `yaml:"refresh_ticks" env:"REFRESH_TICKS"`

	// VerifyEveryTick rebuilds the spatial state from scratch after each
	// tick and halts on a mismatch.
	VerifyEveryTick bool `yaml:"verify_every_tick" env:"VERIFY_EVERY_TICK"`

	AutosaveInterval time.Duration `yaml:"autosave_interval" env:"AUTOSAVE_INTERVAL"`

	// EditorToken must be presented by sessions asking for the editor
	// role. Empty disables editors.
	EditorToken string `yaml:"editor_token" env:"EDITOR_TOKEN"`

	// StartingBudget is given to families created by players.
	StartingBudget int64 `yaml:"starting_budget" env:"STARTING_BUDGET"`

	ReloadQueue int `yaml:"reload_queue" env:"RELOAD_QUEUE"`
}

func DefaultConfig() Config {
	return Config{
		WebSocketAddr:    ":8080",
		QUICAddr:         ":8443",
		TickRate:         50 * time.Millisecond,
		MaxClients:       256,
		SendQueue:        256,
		InboundQueue:     4096,
		HandshakeTimeout: 5 * time.Second,
		IntentRate:       20,
		IntentBurst:      40,
		RefreshTicks:     40,
		AutosaveInterval: 5 * time.Minute,
		StartingBudget:   20000,
		ReloadQueue:      16,
	}
}

func (c Config) Validate() error {
	switch {
	case c.TickRate <= 0:
		return fmt.Errorf("%w: tick rate must be positive", ErrInvalidConfig)
	case c.MaxClients <= 0:
		return fmt.Errorf("%w: max clients must be positive", ErrInvalidConfig)
	case c.SendQueue <= 0 || c.InboundQueue <= 0 || c.ReloadQueue <= 0:
		return fmt.Errorf("%w: queue sizes must be positive", ErrInvalidConfig)
	case c.IntentRate <= 0 || c.IntentBurst <= 0:
		return fmt.Errorf("%w: intent rate and burst must be positive", ErrInvalidConfig)
	case c.HandshakeTimeout <= 0:
		return fmt.Errorf("%w: handshake timeout must be positive", ErrInvalidConfig)
	case c.StartingBudget < 0:
		return fmt.Errorf("%w: starting budget must not be negative", ErrInvalidConfig)
	case (c.TLSCert == "") != (c.TLSKey == ""):
		return fmt.Errorf("%w: tls cert and key go together", ErrInvalidConfig)
	}
	return nil
}
