// Package config assembles the configuration of every component. Values
// come from the defaults, then an optional YAML file, then HOMESTEAD_
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/zeusync/homestead/internal/core/geom"
	"github.com/zeusync/homestead/internal/core/navigation"
	"github.com/zeusync/homestead/internal/core/observability/log"
	"github.com/zeusync/homestead/internal/core/placement"
	"github.com/zeusync/homestead/internal/core/sim"
	"github.com/zeusync/homestead/internal/core/storage"
	"github.com/zeusync/homestead/internal/core/transport"
	"github.com/zeusync/homestead/internal/server"
)

const EnvPrefix = "HOMESTEAD_"

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`

	World      World                       `yaml:"world" envPrefix:"WORLD_"`
	Navigation navigation.Config           `yaml:"navigation"`
	Pathfinder navigation.PathfinderConfig `yaml:"pathfinder" envPrefix:"PATHFINDER_"`
	Placement  placement.Config            `yaml:"placement"`
	Sim        sim.Config                  `yaml:"sim" envPrefix:"SIM_"`
	Transport  transport.Config            `yaml:"transport" envPrefix:"TRANSPORT_"`
	Server     server.Config               `yaml:"server" envPrefix:"SERVER_"`
	Storage    storage.Config              `yaml:"storage" envPrefix:"STORAGE_"`
}

// World describes the world created when no save exists.
type World struct {
	Width  float64 `yaml:"width" env:"WIDTH"`
	Height float64 `yaml:"height" env:"HEIGHT"`
	// Assets is the directory of object descriptors.
	Assets string `yaml:"assets" env:"ASSETS"`
	// Lots are laid out unowned in a new world.
	Lots []Lot `yaml:"lots"`
	// Restore loads the latest save at start.
	Restore bool `yaml:"restore" env:"RESTORE"`
}

type Lot struct {
	Min [2]float64 `yaml:"min"`
	Max [2]float64 `yaml:"max"`
}

func (l Lot) Rect() geom.Rect {
	return geom.Rect{Min: geom.V(l.Min[0], l.Min[1]), Max: geom.V(l.Max[0], l.Max[1])}
}

func (w World) Bounds() geom.Rect {
	return geom.Rect{Min: geom.V(0, 0), Max: geom.V(w.Width, w.Height)}
}

func Default() Config {
	return Config{
		LogLevel: log.LevelInfo.String(),
		World: World{
			Width:   128,
			Height:  128,
			Assets:  "testdata/assets",
			Restore: true,
		},
		Navigation: navigation.DefaultConfig(),
		Pathfinder: navigation.DefaultPathfinderConfig(),
		Placement:  placement.DefaultConfig(),
		Sim:        sim.DefaultConfig(),
		Transport:  transport.DefaultConfig(),
		Server:     server.DefaultConfig(),
		Storage:    storage.DefaultConfig(),
	}
}

// Load reads the configuration. An empty path skips the file.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err = yaml.Unmarshal(data, &c); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(&c, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.World.Width <= 0 || c.World.Height <= 0 {
		return fmt.Errorf("%w: world size must be positive", ErrInvalidConfig)
	}
	bounds := c.World.Bounds()
	for i, lot := range c.World.Lots {
		r := lot.Rect()
		if r.Min.X() >= r.Max.X() || r.Min.Y() >= r.Max.Y() {
			return fmt.Errorf("%w: lot %d is empty", ErrInvalidConfig, i)
		}
		if !bounds.Contains(r.Min) || !bounds.Contains(r.Max) {
			return fmt.Errorf("%w: lot %d outside the world", ErrInvalidConfig, i)
		}
	}
	if c.Navigation.CellSize <= 0 || c.Navigation.TileSize <= 0 {
		return fmt.Errorf("%w: navigation cell and tile size must be positive", ErrInvalidConfig)
	}
	if c.Pathfinder.Workers <= 0 || c.Pathfinder.QueueSize <= 0 {
		return fmt.Errorf("%w: pathfinder workers and queue must be positive", ErrInvalidConfig)
	}
	if c.Sim.MaxTasks <= 0 || c.Sim.WalkSpeed <= 0 {
		return fmt.Errorf("%w: sim max tasks and walk speed must be positive", ErrInvalidConfig)
	}
	if c.Transport.MaxMessageSize <= 0 || c.Transport.InboxSize <= 0 {
		return fmt.Errorf("%w: transport message size and inbox must be positive", ErrInvalidConfig)
	}
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if c.Storage.Keep < 0 {
		return fmt.Errorf("%w: storage keep must not be negative", ErrInvalidConfig)
	}
	return nil
}
