// Package config loads the replicated-servers configuration: the node list,
// scan interval, read mode and connection settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	"github.com/dreamware/replwatch/internal/cluster"
	"github.com/dreamware/replwatch/internal/transport"
)

// ReadMode selects which nodes serve reads.
type ReadMode string

const (
	ReadModeMaster      ReadMode = "MASTER"
	ReadModeSlave       ReadMode = "SLAVE"
	ReadModeMasterSlave ReadMode = "MASTER_SLAVE"
)

// SubscriptionMode selects which nodes serve pub/sub subscriptions.
type SubscriptionMode string

const (
	SubscriptionModeMaster SubscriptionMode = "MASTER"
	SubscriptionModeSlave  SubscriptionMode = "SLAVE"
)

var (
	readModes         = []ReadMode{ReadModeMaster, ReadModeSlave, ReadModeMasterSlave}
	subscriptionModes = []SubscriptionMode{SubscriptionModeMaster, SubscriptionModeSlave}
)

// ErrNoNodes is returned when no node address is configured.
var ErrNoNodes = errors.New("no node addresses configured")

// Section is the top-level YAML key the replicated configuration lives under.
// A file without it is read as a bare configuration block.
const Section = "replicatedServersConfig"

// Config mirrors the replicated-servers configuration block. Durations are
// in milliseconds, as in the YAML file.
type Config struct {
	ReadMode         ReadMode         `yaml:"readMode"`
	SubscriptionMode SubscriptionMode `yaml:"subscriptionMode"`
	Password         string           `yaml:"password"`
	NodeAddresses    []string         `yaml:"nodeAddresses"`
	ScanInterval     int              `yaml:"scanInterval"`
	ConnectTimeout   int              `yaml:"connectTimeout"`
	Timeout          int              `yaml:"timeout"`
	Database         int              `yaml:"database"`
}

// Default returns a configuration with every default filled in and no nodes.
func Default() Config {
	return Config{
		ScanInterval:     1000,
		ReadMode:         ReadModeSlave,
		SubscriptionMode: SubscriptionModeMaster,
		ConnectTimeout:   10000,
		Timeout:          3000,
	}
}

// Load reads and parses a YAML file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of Default. Unset keys keep their defaults.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Config{}, err
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return cfg, nil
	}

	target := doc.Content[0]
	if target.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(target.Content); i += 2 {
			if target.Content[i].Value == Section {
				target = target.Content[i+1]
				break
			}
		}
	}
	if err := target.Decode(&cfg); err != nil {
		return Config{}, err
	}
	cfg.normalize()
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables:
//
//	REPLWATCH_NODES          comma separated node addresses
//	REPLWATCH_SCAN_INTERVAL  milliseconds
//	REPLWATCH_READ_MODE      MASTER | SLAVE | MASTER_SLAVE
//	REPLWATCH_PASSWORD       node password
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("REPLWATCH_NODES"); v != "" {
		var nodes []string
		for _, n := range strings.Split(v, ",") {
			if n = strings.TrimSpace(n); n != "" {
				nodes = append(nodes, n)
			}
		}
		c.NodeAddresses = nodes
	}
	if v := getenv("REPLWATCH_SCAN_INTERVAL"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REPLWATCH_SCAN_INTERVAL: %w", err)
		}
		c.ScanInterval = ms
	}
	if v := getenv("REPLWATCH_READ_MODE"); v != "" {
		c.ReadMode = ReadMode(v)
	}
	if v := getenv("REPLWATCH_PASSWORD"); v != "" {
		c.Password = v
	}
	c.normalize()
	return nil
}

func (c *Config) normalize() {
	c.ReadMode = ReadMode(strings.ToUpper(strings.TrimSpace(string(c.ReadMode))))
	c.SubscriptionMode = SubscriptionMode(strings.ToUpper(strings.TrimSpace(string(c.SubscriptionMode))))
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	if len(c.NodeAddresses) == 0 {
		return ErrNoNodes
	}
	if _, err := c.Nodes(); err != nil {
		return err
	}
	if c.ScanInterval <= 0 {
		return fmt.Errorf("scanInterval must be positive, got %d", c.ScanInterval)
	}
	if c.ConnectTimeout < 0 || c.Timeout < 0 {
		return errors.New("timeouts cannot be negative")
	}
	if c.Database < 0 {
		return fmt.Errorf("database must not be negative, got %d", c.Database)
	}
	if !slices.Contains(readModes, c.ReadMode) {
		return fmt.Errorf("unknown readMode %q", c.ReadMode)
	}
	if !slices.Contains(subscriptionModes, c.SubscriptionMode) {
		return fmt.Errorf("unknown subscriptionMode %q", c.SubscriptionMode)
	}
	return nil
}

// Nodes parses NodeAddresses, rejecting duplicates.
func (c Config) Nodes() ([]cluster.NodeAddress, error) {
	nodes := make([]cluster.NodeAddress, 0, len(c.NodeAddresses))
	for _, raw := range c.NodeAddresses {
		addr, err := cluster.ParseNodeAddress(raw)
		if err != nil {
			return nil, err
		}
		if slices.Contains(nodes, addr) {
			return nil, fmt.Errorf("duplicate node address %s", addr)
		}
		nodes = append(nodes, addr)
	}
	return nodes, nil
}

// ScanIntervalDuration returns the scan interval as a time.Duration.
func (c Config) ScanIntervalDuration() time.Duration {
	return time.Duration(c.ScanInterval) * time.Millisecond
}

// SkipSlavesInit reports whether replicas are never used, in which case the
// monitor does not bring slaves up.
func (c Config) SkipSlavesInit() bool {
	return c.ReadMode == ReadModeMaster && c.SubscriptionMode == SubscriptionModeMaster
}

// TransportOptions returns the connection settings for node connections.
func (c Config) TransportOptions() transport.Options {
	return transport.Options{
		ConnectTimeout: time.Duration(c.ConnectTimeout) * time.Millisecond,
		Timeout:        time.Duration(c.Timeout) * time.Millisecond,
		Password:       c.Password,
		Database:       c.Database,
	}
}
