package store

import (
	"context"

	"github.com/StricklySoft/tokengate/pkg/clients/postgres"
	"github.com/StricklySoft/tokengate/pkg/clients/redis"
	sserr "github.com/StricklySoft/tokengate/pkg/errors"
)

// Open validates cfg and connects the selected backend. Options given here
// override the ones derived from cfg.
func Open(ctx context.Context, cfg Config, opts ...Option) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts = append([]Option{
		WithMaxToken(cfg.MaxToken),
		WithDefaultExpire(cfg.DefaultExpire),
	}, opts...)

	switch cfg.Backend {
	case BackendPostgres:
		client, err := postgres.NewClient(ctx, cfg.Postgres)
		if err != nil {
			return nil, sserr.Wrap(err, sserr.CodeUnavailableTokenStore, "store: failed to open postgres")
		}
		s := NewPostgres(client, opts...)
		if cfg.AutoMigrate {
			if err := s.Migrate(ctx); err != nil {
				client.Close()
				return nil, err
			}
		}
		return s, nil

	case BackendRedis:
		client, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, sserr.Wrap(err, sserr.CodeUnavailableTokenStore, "store: failed to open redis")
		}
		return NewRedis(client, opts...), nil

	default:
		return NewEphemeral(cfg.Ephemeral.Secret.Value(), opts...)
	}
}
