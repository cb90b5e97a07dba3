package injector

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/wire"

	"github.com/zeusync/homestead/internal/config"
	"github.com/zeusync/homestead/internal/core/asset"
	"github.com/zeusync/homestead/internal/core/events"
	"github.com/zeusync/homestead/internal/core/navigation"
	"github.com/zeusync/homestead/internal/core/observability/log"
	"github.com/zeusync/homestead/internal/core/placement"
	"github.com/zeusync/homestead/internal/core/sim"
	"github.com/zeusync/homestead/internal/core/spatial"
	"github.com/zeusync/homestead/internal/core/storage"
	"github.com/zeusync/homestead/internal/core/storage/sqlite"
	"github.com/zeusync/homestead/internal/core/world"
	"github.com/zeusync/homestead/internal/server"
)

// App is everything a server process needs.
type App struct {
	Config config.Config
	Logger log.Log
	Server *server.Server
	Store  storage.Store
}

var ConfigSet = wire.NewSet(
	wire.FieldsOf(new(config.Config), "World", "Navigation", "Pathfinder", "Placement", "Sim", "Server", "Storage"),
)

var CoreSet = wire.NewSet(
	ProvideLogger,
	ProvideLibrary,
	ProvideStore,
	ProvideWorld,
	spatial.Build,
	events.NewBus,
	placement.NewEngine,
	navigation.NewPathfinder,
	sim.New,
	server.New,
	wire.Bind(new(log.Log), new(*log.Logger)),
	wire.Bind(new(navigation.MeshSource), new(*spatial.Layer)),
	wire.Bind(new(sim.PathPlanner), new(*navigation.Pathfinder)),
	wire.Bind(new(sim.WorldObserver), new(*placement.Engine)),
	wire.Bind(new(server.Store), new(*sqlite.Store)),
	wire.Bind(new(storage.Store), new(*sqlite.Store)),
)

func ProvideLogger(c config.Config) *log.Logger {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		level = log.LevelInfo
	}
	return log.New(level)
}

func ProvideLibrary(c config.World, logger log.Log) (*asset.Library, error) {
	library := asset.NewLibrary(logger)
	if c.Assets == "" {
		return library, nil
	}
	n, err := library.LoadDir(c.Assets)
	if err != nil {
		return nil, fmt.Errorf("load assets: %w", err)
	}
	logger.Info("Assets loaded", log.String("dir", c.Assets), log.Int("descriptors", n))
	return library, nil
}

func ProvideStore(c storage.Config, logger log.Log) (*sqlite.Store, func(), error) {
	store, err := sqlite.Open(c, logger)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {
		if err := store.Close(); err != nil {
			logger.Warn("Closing store failed", log.Error(err))
		}
	}, nil
}

// ProvideWorld restores the latest save, or lays out a new world with the
// configured lots.
func ProvideWorld(c config.World, library *asset.Library, store storage.Store, logger log.Log) (*world.World, error) {
	if c.Restore {
		snap, err := store.Latest(context.Background())
		switch {
		case err == nil:
			w, err := world.Restore(snap, library.Get)
			if err != nil {
				return nil, fmt.Errorf("restore world: %w", err)
			}
			logger.Info("World restored", log.Uint64("tick", w.Tick), log.Int("objects", len(w.Objects())))
			return w, nil
		case !errors.Is(err, storage.ErrNotFound):
			return nil, err
		}
	}

	w := world.New(c.Bounds())
	for _, l := range c.Lots {
		r := l.Rect()
		lot := &world.Lot{
			ID:      w.NewID(),
			Polygon: r.Polygon(),
			Owner:   world.City,
		}
		if err := w.AddLot(lot); err != nil {
			return nil, err
		}
	}
	logger.Info("World created", log.Int("lots", len(c.Lots)))
	return w, nil
}
