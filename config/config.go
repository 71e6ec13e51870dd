// Package config provides configuration loading and access for the
// simulation.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation configuration parameters.
type Config struct {
	Simulation  SimulationConfig  `yaml:"simulation"`
	Cells       CellsConfig       `yaml:"cells"`
	Gravitation GravitationConfig `yaml:"gravitation"`
	Universe    UniverseConfig    `yaml:"universe"`
	Spawning    SpawningConfig    `yaml:"spawning"`
	Spatial     SpatialConfig     `yaml:"spatial"`
	Logging     LoggingConfig     `yaml:"logging"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Debug       DebugConfig       `yaml:"debug"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// SimulationConfig holds the fixed-timestep parameters.
type SimulationConfig struct {
	TickRate  int   `yaml:"tick_rate"`  // simulation frames per second
	WorldSeed int64 `yaml:"world_seed"` // shared by all session peers
}

// CellsConfig holds cell activation parameters.
type CellsConfig struct {
	CheckInterval     int64   `yaml:"check_interval"`      // frames between activation sweeps
	DeathDelaySeconds float64 `yaml:"death_delay_seconds"` // grace window before eviction
}

// GravitationConfig holds gravitation solver parameters.
type GravitationConfig struct {
	G              float64 `yaml:"g"`                // gravitational constant
	SearchRadius   float64 `yaml:"search_radius"`    // attractee lookup radius
	NearDistanceSq float64 `yaml:"near_distance_sq"` // near-core threshold, squared units
	DockDistanceSq float64 `yaml:"dock_distance_sq"` // docking distance, squared units
	DockVelocitySq float64 `yaml:"dock_velocity_sq"` // docking speed limit, squared units
	EpsilonSq      float64 `yaml:"epsilon_sq"`       // NaN guard for near-coincident bodies
}

// UniverseConfig holds procedural generation parameters.
type UniverseConfig struct {
	Factions          int     `yaml:"factions"`            // number of NPC factions
	TechLevels        int     `yaml:"tech_levels"`         // tech level range [0, n)
	PlanetCountLambda float64 `yaml:"planet_count_lambda"` // Poisson mean for non-origin cells
	MoonTrials        int     `yaml:"moon_trials"`         // Binomial trials per planet
	MoonChance        float64 `yaml:"moon_chance"`         // Binomial success probability
	StationChance     float64 `yaml:"station_chance"`      // Bernoulli scale per tech level
	SunMass           float64 `yaml:"sun_mass"`
	PlanetMass        float64 `yaml:"planet_mass"`
	MoonMass          float64 `yaml:"moon_mass"`

	AsteroidFieldsMax int     `yaml:"asteroid_fields_max"` // per sub-cell
	AsteroidsPerField int     `yaml:"asteroids_per_field"` // mean asteroids per field
	SpiralAngleStep   float64 `yaml:"spiral_angle_step"`   // radians per asteroid
	SpiralRadiusStep  float64 `yaml:"spiral_radius_step"`  // radius growth per radian
	AsteroidJitter    float64 `yaml:"asteroid_jitter"`     // noise displacement scale
}

// SpawningConfig holds ship spawn scheduling parameters.
type SpawningConfig struct {
	BatchesPerCell  int     `yaml:"batches_per_cell"`  // queue entries start with this many
	ShipsPerBatch   int     `yaml:"ships_per_batch"`   // max ships per batch
	SpawnerInterval float64 `yaml:"spawner_interval"`  // seconds between station spawns
	SquadSpacing    float64 `yaml:"squad_spacing"`     // formation spacing in world units
}

// SpatialConfig holds spatial index parameters.
type SpatialConfig struct {
	IndexCellSize float64 `yaml:"index_cell_size"` // hash-grid bucket edge length
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	JSONFormat bool   `yaml:"json_format"`
}

// TelemetryConfig holds telemetry output settings.
type TelemetryConfig struct {
	Enabled       bool    `yaml:"enabled"`
	WindowSeconds float64 `yaml:"window_seconds"`
	OutputDir     string  `yaml:"output_dir"`
}

// DebugConfig holds development-only switches.
type DebugConfig struct {
	Checks bool `yaml:"checks"` // enable invariant assertions
}

// DerivedConfig holds values computed from the raw configuration.
type DerivedConfig struct {
	DT               float64 // seconds per tick
	DeathDelayFrames int64   // grace window in frames
	SpawnerFrames    int32   // station spawn interval in frames
	WindowFrames     int64   // telemetry window in frames
}

// Load parses the embedded defaults and merges an optional user file
// over them. An empty path loads defaults only.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parse embedded defaults: %w", err)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()
	return cfg, nil
}

// Validate rejects configurations the simulation cannot run with.
func (c *Config) Validate() error {
	if c.Simulation.TickRate <= 0 {
		return fmt.Errorf("simulation.tick_rate must be positive, got %d", c.Simulation.TickRate)
	}
	if c.Cells.CheckInterval <= 0 {
		return fmt.Errorf("cells.check_interval must be positive, got %d", c.Cells.CheckInterval)
	}
	if c.Cells.DeathDelaySeconds < 0 {
		return fmt.Errorf("cells.death_delay_seconds must not be negative, got %g", c.Cells.DeathDelaySeconds)
	}
	if c.Gravitation.SearchRadius <= 0 {
		return fmt.Errorf("gravitation.search_radius must be positive, got %g", c.Gravitation.SearchRadius)
	}
	if c.Spatial.IndexCellSize <= 0 {
		return fmt.Errorf("spatial.index_cell_size must be positive, got %g", c.Spatial.IndexCellSize)
	}
	if c.Universe.Factions <= 0 {
		return fmt.Errorf("universe.factions must be positive, got %d", c.Universe.Factions)
	}
	return nil
}

func (c *Config) computeDerived() {
	c.Derived.DT = 1.0 / float64(c.Simulation.TickRate)
	c.Derived.DeathDelayFrames = int64(c.Cells.DeathDelaySeconds * float64(c.Simulation.TickRate))
	c.Derived.SpawnerFrames = int32(c.Spawning.SpawnerInterval * float64(c.Simulation.TickRate))
	c.Derived.WindowFrames = int64(c.Telemetry.WindowSeconds * float64(c.Simulation.TickRate))
}
