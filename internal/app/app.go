package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mochaeng/payment-dispatcher/internal/config"
	"github.com/mochaeng/payment-dispatcher/internal/metrics"
	"github.com/mochaeng/payment-dispatcher/internal/services"
	"github.com/mochaeng/payment-dispatcher/internal/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

type Application struct {
	config   *config.Config
	store    *store.RedisStore
	services *services.Service
	logger   *zap.Logger
	metrics  fasthttp.RequestHandler
}

func NewApp(cfg *config.Config, logger *zap.Logger) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	store, err := store.NewRedisStore(cfg.RedisURL, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	return &Application{
		config:   cfg,
		store:    store,
		services: services.NewServices(cfg, store, logger),
		logger:   logger,
		metrics:  fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler()),
	}, nil
}

// Mount builds the HTTP server. In worker mode only /metrics is exposed.
func (app *Application) Mount() *fasthttp.Server {
	return &fasthttp.Server{
		Name:    "payment-dispatcher",
		Handler: app.route,
	}
}

func (app *Application) route(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())

	if path == "/metrics" {
		if !ctx.IsGet() {
			methodNotAllowed(ctx)
			return
		}
		app.metrics(ctx)
		return
	}

	ctx.Response.Header.Set("Content-Type", "application/json")

	if app.config.Mode == config.ModeWorker {
		notFound(ctx)
		return
	}

	switch path {
	case "/payments":
		if !ctx.IsPost() {
			methodNotAllowed(ctx)
			return
		}
		app.paymentsHandler(ctx)
	case "/payments-summary":
		if !ctx.IsGet() {
			methodNotAllowed(ctx)
			return
		}
		app.summaryHandler(ctx)
	case "/purge-payments":
		if !ctx.IsPost() {
			methodNotAllowed(ctx)
			return
		}
		app.purgeHandler(ctx)
	default:
		notFound(ctx)
	}
}

// Run serves HTTP and, unless running in api mode, the dispatch loop until
// ctx is cancelled or the server fails.
func (app *Application) Run(ctx context.Context, server *fasthttp.Server) error {
	if err := app.store.Ping(ctx); err != nil {
		return errors.Join(err, app.store.Close())
	}

	if depth, err := app.store.QueueSize(ctx); err != nil {
		app.logger.Warn("failed to read queue backlog", zap.Error(err))
	} else {
		metrics.QueueDepth.Set(float64(depth))
		app.logger.Info("queue backlog", zap.Int64("depth", depth))
	}

	// the dispatcher also stops when the server fails on its own
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if app.config.Mode != config.ModeAPI {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := app.services.Dispatcher.Run(ctx); err != nil {
				app.logger.Error("dispatcher stopped with error", zap.Error(err))
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		app.logger.Info("starting server",
			zap.String("port", app.config.Port),
			zap.String("mode", string(app.config.Mode)),
		)
		serveErr <- server.ListenAndServe(":" + app.config.Port)
	}()

	var err error
	select {
	case <-ctx.Done():
		if shutdownErr := server.Shutdown(); shutdownErr != nil {
			err = fmt.Errorf("failed to shut down server: %w", shutdownErr)
		}
	case serveErr := <-serveErr:
		if serveErr != nil {
			err = fmt.Errorf("server stopped: %w", serveErr)
		}
	}

	cancel()
	wg.Wait()
	return errors.Join(err, app.store.Close())
}

// requestContext bounds store calls made on behalf of a request. It is not
// derived from the fasthttp.RequestCtx, which is only usable inside a server.
func (app *Application) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), app.config.RequestTimeout)
}

func methodNotAllowed(ctx *fasthttp.RequestCtx) {
	ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
	ctx.SetBodyString(`{"error":"Method not allowed"}`)
}

func notFound(ctx *fasthttp.RequestCtx) {
	ctx.SetStatusCode(fasthttp.StatusNotFound)
	ctx.SetBodyString(`{"error":"Not found"}`)
}
