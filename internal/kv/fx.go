package kv

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/invites/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("kv",
	fx.Provide(NewStore),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Log       *zap.Logger
}

// NewStore opens the backend selected by KV_DRIVER and closes it on stop.
func NewStore(p Params) (Store, error) {
	log := p.Log.Named("kv")
	cfg := p.Config.KV

	var (
		store Store
		err   error
	)
	switch cfg.Driver {
	case config.DriverMemory:
		store, err = OpenMemory()
	case config.DriverRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		store, err = OpenRedis(ctx, &redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.Redis.Namespace)
	case config.DriverSQLite:
		path := cfg.DSN
		if path == "" {
			path = cfg.Path + ".db"
		}
		store, err = OpenSQLite(path, SQLOptions{Logger: NewSQLLogger(log), Tracing: p.Config.Observability.OtelEnabled})
	case config.DriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("kv driver %s requires KV_DSN", cfg.Driver)
		}
		store, err = OpenPostgres(cfg.DSN, SQLOptions{Logger: NewSQLLogger(log), Tracing: p.Config.Observability.OtelEnabled})
	case config.DriverLevelDB, "":
		store, err = OpenLevelDB(cfg.Path)
	default:
		err = fmt.Errorf("unsupported kv driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	log.Info("kv store opened",
		zap.String("driver", cfg.Driver),
		zap.String("path", cfg.Path),
	)

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info("closing kv store")
			return store.Close()
		},
	})
	return store, nil
}
