// Package config loads and validates the two external YAML documents the
// server depends on (§6): server.yaml (listen/transport/auction/ledger/
// fanout/recommendation/analytics/classifier knobs) and bidders.yaml (the
// bidder roster). Both use strict, unknown-key-rejecting decoding via
// gopkg.in/yaml.v3's KnownFields, matching the typed-and-validated config
// loading convention of the reference corpus's own service bootstraps
// (each reads a small YAML/env document into a typed struct before
// constructing its dependencies).
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Server is the top-level server.yaml document.
type Server struct {
	ListenAddr     string               `yaml:"listen_addr"`
	Transport      TransportConfig      `yaml:"transport"`
	Auction        AuctionConfig        `yaml:"auction"`
	Ledger         LedgerConfig         `yaml:"ledger"`
	Fanout         FanoutConfig         `yaml:"fanout"`
	Recommendation RecommendationConfig `yaml:"recommendation"`
	Analytics      AnalyticsConfig      `yaml:"analytics"`
	Classifier     ClassifierConfig     `yaml:"classifier"`
	Platforms      []PlatformConfig     `yaml:"platforms"`
}

// PlatformConfig is one trusted platform principal allowed to POST
// ContextRequests, analogous to BidderConfig but loaded alongside the rest
// of server.yaml rather than from the bidder roster document.
type PlatformConfig struct {
	PlatformID   string `yaml:"platform_id"`
	PublicKeyPEM string `yaml:"public_key_pem"`
}

type TransportConfig struct {
	NonceTTLSeconds int `yaml:"nonce_ttl_seconds"`
	MaxClockSkewMS  int `yaml:"max_clock_skew_ms"`
}

type AuctionConfig struct {
	WindowMS int `yaml:"window_ms"`
}

// LedgerBackend is one of the recognized ledger backend identifiers.
type LedgerBackend string

const (
	LedgerInMemory  LedgerBackend = "in_memory"
	LedgerRedis     LedgerBackend = "redis"
	LedgerPostgres  LedgerBackend = "postgres"
	LedgerFirestore LedgerBackend = "firestore"
)

type LedgerConfig struct {
	Backend     LedgerBackend `yaml:"backend"`
	RedisAddr   string        `yaml:"redis_addr"`
	PostgresDSN string        `yaml:"postgres_dsn"`
}

// FanoutBackend is one of the recognized fanout backend identifiers.
type FanoutBackend string

const (
	FanoutLocal  FanoutBackend = "local"
	FanoutPubsub FanoutBackend = "pubsub"
)

type FanoutConfig struct {
	Backend     FanoutBackend `yaml:"backend"`
	TopicPrefix string        `yaml:"topic_prefix"`
}

type RecommendationConfig struct {
	WindowMS     int `yaml:"window_ms"`
	RetryAfterMS int `yaml:"retry_after_ms"`
}

type AnalyticsConfig struct {
	Enabled        bool   `yaml:"enabled"`
	ClickhouseAddr string `yaml:"clickhouse_addr"`
}

type ClassifierConfig struct {
	Pools map[string][]string `yaml:"pools"`
}

// BidderConfig is one entry of bidders.yaml.
type BidderConfig struct {
	Name         string   `yaml:"name"`
	Endpoint     string   `yaml:"endpoint"`
	PublicKeyPEM string   `yaml:"public_key_pem"`
	TimeoutMS    int      `yaml:"timeout_ms"`
	Pools        []string `yaml:"pools"`
}

// LoadServer parses a server.yaml document with strict, unknown-key
// rejection, applying sane defaults for anything the document omits.
func LoadServer(data []byte) (*Server, error) {
	var s Server
	if err := decodeStrict(data, &s); err != nil {
		return nil, fmt.Errorf("config: decode server document: %w", err)
	}
	applyServerDefaults(&s)
	return &s, nil
}

// LoadServerFile reads and parses path via LoadServer.
func LoadServerFile(path string) (*Server, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return LoadServer(data)
}

// LoadBidders parses a bidders.yaml document with strict decoding.
func LoadBidders(data []byte) ([]BidderConfig, error) {
	var bidders []BidderConfig
	if err := decodeStrict(data, &bidders); err != nil {
		return nil, fmt.Errorf("config: decode bidders document: %w", err)
	}
	return bidders, nil
}

// LoadBiddersFile reads and parses path via LoadBidders.
func LoadBiddersFile(path string) ([]BidderConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return LoadBidders(data)
}

// decodeStrict decodes data into v, rejecting unrecognized YAML keys.
func decodeStrict(data []byte, v interface{}) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(v)
}

func applyServerDefaults(s *Server) {
	if s.ListenAddr == "" {
		s.ListenAddr = ":8080"
	}
	if s.Transport.NonceTTLSeconds <= 0 {
		s.Transport.NonceTTLSeconds = 60
	}
	if s.Transport.MaxClockSkewMS <= 0 {
		s.Transport.MaxClockSkewMS = 500
	}
	if s.Auction.WindowMS <= 0 {
		s.Auction.WindowMS = 50
	}
	if s.Ledger.Backend == "" {
		s.Ledger.Backend = LedgerInMemory
	}
	if s.Fanout.Backend == "" {
		s.Fanout.Backend = FanoutLocal
	}
	if s.Fanout.TopicPrefix == "" {
		s.Fanout.TopicPrefix = "aip."
	}
	if s.Recommendation.WindowMS <= 0 {
		s.Recommendation.WindowMS = 500
	}
	if s.Recommendation.RetryAfterMS <= 0 {
		s.Recommendation.RetryAfterMS = 150
	}
}
