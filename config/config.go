// Package config holds the JSON-serializable tunables for the out-of-order
// pipeline: superscalar width, structural capacities, and cache geometry.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sarchlab/rvoo/lsq"
	"github.com/sarchlab/rvoo/memsys"
)

// Config holds every tunable of the simulated machine.
type Config struct {
	// Width is the superscalar fetch/rename/issue width.
	Width int `json:"width"`

	// NumPhysRegs is the size of the physical register file.
	NumPhysRegs int `json:"num_phys_regs"`

	// ROBCapacity bounds the number of in-flight instructions.
	ROBCapacity int `json:"rob_capacity"`

	// RSCapacity bounds the reservation station.
	RSCapacity int `json:"rs_capacity"`

	// LoadQueueCapacity and StoreQueueCapacity bound the LSQ.
	LoadQueueCapacity  int `json:"load_queue_capacity"`
	StoreQueueCapacity int `json:"store_queue_capacity"`

	// MemSpeculation selects "conservative" or "aggressive" load/store
	// ordering.
	MemSpeculation string `json:"mem_speculation"`

	// AluUnits, LoadStoreUnits, BranchUnits, SpecialUnits size the
	// execution back end; EuConcurrency bounds how many entries a single
	// unit may hold in flight at once.
	AluUnits       int `json:"alu_units"`
	LoadStoreUnits int `json:"load_store_units"`
	BranchUnits    int `json:"branch_units"`
	SpecialUnits   int `json:"special_units"`
	EuConcurrency  int `json:"eu_concurrency"`

	// BHTSize, BTBSize, BTBWays, RASDepth size the branch predictor.
	BHTSize  int `json:"bht_size"`
	BTBSize  int `json:"btb_size"`
	BTBWays  int `json:"btb_ways"`
	RASDepth int `json:"ras_depth"`

	// L1, L2, L3 size and time the cache hierarchy; DRAMLatency is the
	// flat main-memory access time charged on an L3 miss.
	L1          LevelConfig `json:"l1"`
	L2          LevelConfig `json:"l2"`
	L3          LevelConfig `json:"l3"`
	DRAMLatency uint64      `json:"dram_latency"`

	// MaxCycles aborts the simulation with a diagnostic if exceeded,
	// guarding against an infinite loop in the simulated program.
	MaxCycles uint64 `json:"max_cycles"`
}

// LevelConfig is the JSON shape of one cache level's geometry and timing.
type LevelConfig struct {
	SizeBytes     int    `json:"size_bytes"`
	Associativity int    `json:"associativity"`
	BlockSize     int    `json:"block_size"`
	HitLatency    uint64 `json:"hit_latency"`
	MissLatency   uint64 `json:"miss_latency"`
}

func (l LevelConfig) toCacheConfig() memsys.CacheConfig {
	return memsys.CacheConfig{
		Size:          l.SizeBytes,
		Associativity: l.Associativity,
		BlockSize:     l.BlockSize,
		HitLatency:    l.HitLatency,
		MissLatency:   l.MissLatency,
	}
}

func levelFrom(c memsys.CacheConfig) LevelConfig {
	return LevelConfig{
		SizeBytes:     c.Size,
		Associativity: c.Associativity,
		BlockSize:     c.BlockSize,
		HitLatency:    c.HitLatency,
		MissLatency:   c.MissLatency,
	}
}

// Default returns a width-4 superscalar configuration with a reasonable
// three-level cache hierarchy.
func Default() *Config {
	return &Config{
		Width:              4,
		NumPhysRegs:        96,
		ROBCapacity:        64,
		RSCapacity:         32,
		LoadQueueCapacity:  16,
		StoreQueueCapacity: 16,
		MemSpeculation:     "conservative",
		AluUnits:           2,
		LoadStoreUnits:     2,
		BranchUnits:        1,
		SpecialUnits:       1,
		EuConcurrency:      4,
		BHTSize:            1024,
		BTBSize:            256,
		BTBWays:            4,
		RASDepth:           16,
		L1:                 levelFrom(memsys.DefaultL1Config()),
		L2:                 levelFrom(memsys.DefaultL2Config()),
		L3:                 levelFrom(memsys.DefaultL3Config()),
		DRAMLatency:        memsys.DefaultDRAMLatency,
		MaxCycles:          10_000_000,
	}
}

// DualIssueConfig is a narrower, two-wide preset useful for comparison
// runs.
func DualIssueConfig() *Config {
	c := Default()
	c.Width = 2
	c.AluUnits = 1
	c.LoadStoreUnits = 1
	return c
}

// QuadIssueConfig is the wide, four-issue preset (the same as Default, kept
// as an explicit named preset for benchmark configuration files).
func QuadIssueConfig() *Config {
	return Default()
}

// HierarchyConfig extracts the memsys-level cache hierarchy configuration.
func (c *Config) HierarchyConfig() memsys.HierarchyConfig {
	return memsys.HierarchyConfig{
		L1:          c.L1.toCacheConfig(),
		L2:          c.L2.toCacheConfig(),
		L3:          c.L3.toCacheConfig(),
		DRAMLatency: c.DRAMLatency,
	}
}

// Speculation resolves the MemSpeculation string to an lsq.Speculation.
func (c *Config) Speculation() lsq.Speculation {
	if c.MemSpeculation == "aggressive" {
		return lsq.Aggressive
	}
	return lsq.Conservative
}

// LoadConfig reads a Config from a JSON file, starting from Default() so
// that a partial file only overrides what it sets.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse: %w", err)
	}

	return cfg, nil
}

// SaveConfig writes cfg to path as indented JSON.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("config: failed to serialize: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: failed to write file: %w", err)
	}

	return nil
}

// Validate checks that every capacity and width is usable.
func (c *Config) Validate() error {
	if c.Width <= 0 {
		return fmt.Errorf("width must be > 0")
	}
	if c.NumPhysRegs < 32 {
		return fmt.Errorf("num_phys_regs must be >= 32")
	}
	if c.ROBCapacity <= 0 || c.RSCapacity <= 0 {
		return fmt.Errorf("rob_capacity and rs_capacity must be > 0")
	}
	if c.LoadQueueCapacity <= 0 || c.StoreQueueCapacity <= 0 {
		return fmt.Errorf("load_queue_capacity and store_queue_capacity must be > 0")
	}
	if c.MemSpeculation != "conservative" && c.MemSpeculation != "aggressive" {
		return fmt.Errorf("mem_speculation must be \"conservative\" or \"aggressive\"")
	}
	if c.AluUnits <= 0 || c.LoadStoreUnits <= 0 || c.BranchUnits <= 0 || c.SpecialUnits <= 0 {
		return fmt.Errorf("every execution unit count must be > 0")
	}
	if c.MaxCycles == 0 {
		return fmt.Errorf("max_cycles must be > 0")
	}
	return nil
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
