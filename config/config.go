// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config loads node configuration from a YAML file and then applies
// EVENTRPC_* environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/luxfi/eventrpc"
	"github.com/luxfi/eventrpc/schema"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "EVENTRPC_"

var (
	ErrNoSchema  = errors.New("config: schema file is required")
	ErrBadRole   = errors.New("config: role must be Client or Server")
	ErrNoAddress = errors.New("config: address is required")
	ErrBadTick   = errors.New("config: tick interval must be positive")
	ErrBadLimit  = errors.New("config: limit must be positive")
)

// Config is the configuration of one node process.
type Config struct {
	// Role is the network side of the process: Client dials, Server
	// listens.
	Role string `yaml:"role" env:"ROLE"`

	// Site is the schema site the process handles. Empty means the site
	// named like the role.
	Site string `yaml:"site" env:"SITE"`

	// Transport names a registered transport (zap, ws, grpc, mem).
	Transport string `yaml:"transport" env:"TRANSPORT"`

	// Listen is the address a Server accepts peers on.
	Listen string `yaml:"listen" env:"LISTEN"`

	// Dial is the address a Client connects to.
	Dial string `yaml:"dial" env:"DIAL"`

	// Schema is the path of the YAML event schema.
	Schema string `yaml:"schema" env:"SCHEMA"`

	Tick      time.Duration `yaml:"tick" env:"TICK"`
	MaxPeers  int           `yaml:"max_peers" env:"MAX_PEERS"`
	QueueSize int           `yaml:"queue_size" env:"QUEUE_SIZE"`
	MaxFrame  int           `yaml:"max_frame" env:"MAX_FRAME"`

	// Catalog is the HTTP address of the JSON-RPC catalog. Empty disables it.
	Catalog string `yaml:"catalog" env:"CATALOG"`

	// Metrics is the HTTP address of the Prometheus endpoint. Empty
	// disables it.
	Metrics string `yaml:"metrics" env:"METRICS"`
}

// Default returns the configuration used for unset values.
func Default() Config {
	return Config{
		Role:      string(schema.Server),
		Transport: eventrpc.DefaultTransport,
		Listen:    "127.0.0.1:9700",
		Dial:      "127.0.0.1:9700",
		Tick:      15 * time.Millisecond,
		QueueSize: eventrpc.DefaultQueueSize,
		MaxFrame:  eventrpc.DefaultMaxFrameSize,
	}
}

// Parse decodes YAML over the defaults and applies environment overrides.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	data, err := io.ReadAll(r)
	if err != nil {
		return cfg, err
	}
	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("parse yaml: %w", err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Load reads path, or only the defaults and environment when path is empty.
func Load(path string) (Config, error) {
	if path == "" {
		return Parse(bytes.NewReader(nil))
	}
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	cfg, err := Parse(f)
	if err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// HandledSite returns the schema site the node runs.
func (c Config) HandledSite() schema.Site {
	if c.Site != "" {
		return schema.Site(c.Site)
	}
	return schema.Site(c.Role)
}

// IsServer reports whether the node listens for peers.
func (c Config) IsServer() bool { return schema.Site(c.Role) == schema.Server }

// Validate checks the fields a node needs to start.
func (c Config) Validate() error {
	if c.Schema == "" {
		return ErrNoSchema
	}
	switch schema.Site(c.Role) {
	case schema.Server:
		if c.Listen == "" {
			return fmt.Errorf("%w: listen", ErrNoAddress)
		}
	case schema.Client:
		if c.Dial == "" {
			return fmt.Errorf("%w: dial", ErrNoAddress)
		}
	default:
		return fmt.Errorf("%w: %q", ErrBadRole, c.Role)
	}
	if !eventrpc.HasTransport(c.Transport) {
		return fmt.Errorf("%w: %q", eventrpc.ErrUnknownTransport, c.Transport)
	}
	if c.Tick <= 0 {
		return ErrBadTick
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("%w: queue_size %d", ErrBadLimit, c.QueueSize)
	}
	if c.MaxFrame <= 0 {
		return fmt.Errorf("%w: max_frame %d", ErrBadLimit, c.MaxFrame)
	}
	if c.MaxPeers < 0 {
		return fmt.Errorf("%w: max_peers %d", ErrBadLimit, c.MaxPeers)
	}
	return nil
}

// NodeOptions returns the node options the configuration selects.
func (c Config) NodeOptions() []eventrpc.NodeOption {
	role := eventrpc.RoleClient
	if c.IsServer() {
		role = eventrpc.RoleServer
	}
	return []eventrpc.NodeOption{
		eventrpc.WithQueueSize(c.QueueSize),
		eventrpc.WithRole(role),
	}
}

// DialOptions returns the client transport options.
func (c Config) DialOptions() []eventrpc.DialOption {
	return []eventrpc.DialOption{
		eventrpc.WithTransport(c.Transport),
		eventrpc.WithMaxFrameSize(c.MaxFrame),
	}
}

// ServerOptions returns the server transport options.
func (c Config) ServerOptions() []eventrpc.ServerOption {
	return []eventrpc.ServerOption{
		eventrpc.WithServerTransport(c.Transport),
		eventrpc.WithServerMaxFrameSize(c.MaxFrame),
		eventrpc.WithMaxPeers(c.MaxPeers),
	}
}
