//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/homestead/internal/config"
)

func InitializeApp(c config.Config) (*App, func(), error) {
	wire.Build(ConfigSet, CoreSet, wire.Struct(new(App), "*"))
	return nil, nil, nil
}
