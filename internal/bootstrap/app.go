package bootstrap

import (
	"context"
	"net/http"

	"trackstore/internal/application"
	"trackstore/internal/config"
	httpserver "trackstore/internal/infrastructure/http"
	"trackstore/internal/infrastructure/metrics"

	"go.uber.org/zap"
)

// API holds the assembled HTTP application and releases its resources on Close.
type API struct {
	Handler  http.Handler
	Service  *application.AccountService
	UoW      application.UnitOfWorkFactory
	Metrics  *metrics.Registry
	cleanups []func()
}

// Close runs cleanups in reverse acquisition order.
func (a *API) Close() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
}

func BuildAPI(ctx context.Context, log *zap.Logger, cfg config.Config) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	api := &API{Metrics: metrics.NewRegistry()}

	storage, err := ProvideStorage(ctx, log, cfg)
	if err != nil {
		return nil, err
	}
	api.cleanups = append(api.cleanups, storage.Close)

	idem, closeIdem, err := ProvideIdempotency(ctx, log, cfg)
	if err != nil {
		api.Close()
		return nil, err
	}
	api.cleanups = append(api.cleanups, closeIdem)

	api.UoW = ProvideUnitOfWorkFactory(storage.Sessions, api.Metrics, log, cfg)
	api.Service = ProvideAccountService(api.UoW, idem, log)

	srv := httpserver.NewServer(api.Service, log)
	if storage.Ping != nil {
		srv.SetReadyCheck(storage.Ping)
	}
	api.Handler = httpserver.NewRouter(srv, api.Metrics)
	return api, nil
}

// BuildUnitOfWork opens storage for one-off commands and returns a factory plus
// the cleanup that closes the storage.
func BuildUnitOfWork(ctx context.Context, log *zap.Logger, cfg config.Config) (application.UnitOfWorkFactory, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, func() {}, err
	}
	storage, err := ProvideStorage(ctx, log, cfg)
	if err != nil {
		return nil, func() {}, err
	}
	return ProvideUnitOfWorkFactory(storage.Sessions, metrics.NewRegistry(), log, cfg), storage.Close, nil
}
