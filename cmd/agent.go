package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"

	cartController "github.com/copperbear/storefront/internal/cart/controller"
	cartService "github.com/copperbear/storefront/internal/cart/service"
	"github.com/copperbear/storefront/internal/config"
	"github.com/copperbear/storefront/internal/constants"
	"github.com/copperbear/storefront/internal/debounce"
	"github.com/copperbear/storefront/internal/guest"
	"github.com/copperbear/storefront/internal/infra"
	"github.com/copperbear/storefront/internal/log"
	"github.com/copperbear/storefront/internal/middleware"
	"github.com/copperbear/storefront/internal/otel"
	"github.com/copperbear/storefront/internal/session"
	"github.com/copperbear/storefront/internal/upstream"
	wishlistController "github.com/copperbear/storefront/internal/wishlist/controller"
	wishlistService "github.com/copperbear/storefront/internal/wishlist/service"
)

func RunSessionAgent(c context.Context) {
	c, span := otel.Tracer.Start(c, "RunSessionAgent")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyAppName, constants.AppSessionAgent).
		Str(log.KeyTag, "main RunSessionAgent").
		Logger()

	logger = logger.With().Str(log.KeyProcess, "init config").Logger()
	logger.Info().Msg("initializing config")
	c = logger.WithContext(c)
	cfg := config.InitConfig(c, constants.AppSessionAgent)
	logger = logger.With().Any(log.KeyConfig, cfg).Logger()
	logger.Info().Msg("initialized config")

	logger = logger.With().Str(log.KeyProcess, "initializing otel sdk").Logger()
	logger.Info().Msg("initializing otel sdk")
	c = logger.WithContext(c)
	otelShutdowns, err := otel.InitOtelSdk(c, cfg.Otel)
	if err != nil {
		err = fmt.Errorf("failed initializing otel sdk with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return
	}
	defer func() {
		logger.Info().Msg("shutting down otel")
		c = logger.WithContext(c)
		if err := otel.ShutdownOtel(c, otelShutdowns); err != nil {
			err = fmt.Errorf("failed shutting down otel with error=%w", err)
			otel.RecordError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			return
		}
		logger.Info().Msg("shutdown otel")
	}()
	logger.Info().Msg("initialized otel sdk")

	logger = logger.With().Str(log.KeyProcess, "initializing guest store").Logger()
	logger.Info().Msg("initializing guest store")
	c = logger.WithContext(c)
	var store guest.Store
	storeOpts := []guest.Option{guest.WithExpiryHours(cfg.Store.WishlistExpiryHours)}
	switch cfg.Store.Backend {
	case "redis":
		cache, err := infra.NewCacheClient(c, cfg.Cache)
		if err != nil {
			err = fmt.Errorf("failed initializing cache with error=%w", err)
			otel.RecordError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			return
		}
		defer func() {
			logger.Info().Msg("shutting down cache")
			if err := cache.Close(); err != nil {
				logger.Error().Err(err).Msg("failed shutting down cache")
				return
			}
			logger.Info().Msg("shutdown cache")
		}()
		store = guest.NewRedisStore(cache, constants.AppSessionAgent, storeOpts...)
	default:
		store, err = guest.NewFileStore(cfg.Store.Dir, storeOpts...)
		if err != nil {
			err = fmt.Errorf("failed initializing file store with error=%w", err)
			otel.RecordError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			return
		}
	}
	logger = logger.With().Str(log.KeyStoreBackend, cfg.Store.Backend).Logger()
	logger.Info().Msg("initialized guest store")

	logger = logger.With().Str(log.KeyProcess, "initializing upstream client").Logger()
	logger.Info().Msg("initializing upstream client")
	client := upstream.NewClient(cfg.Upstream)
	logger.Info().Msg("initialized upstream client")

	logger = logger.With().Str(log.KeyProcess, "initializing session manager").Logger()
	logger.Info().Msg("initializing session manager")
	sessions := session.NewManager(cfg.Application.SecretKey)
	logger.Info().Msg("initialized session manager")

	logger = logger.With().Str(log.KeyProcess, "initializing services").Logger()
	logger.Info().Msg("initializing services")
	queueOpts := []debounce.Option{}
	if cfg.Store.DebounceMillis > 0 {
		window := time.Duration(cfg.Store.DebounceMillis) * time.Millisecond
		queueOpts = append(queueOpts, debounce.WithWindow(window))
	}
	carts := cartService.NewCartService(c, store, client, sessions, queueOpts...)
	defer carts.Close()
	wishlists := wishlistService.NewWishlistService(store, client, sessions, carts.Refresh)
	sessions.Register(session.Handler{OnSignIn: carts.OnSignIn, OnSignOut: carts.OnSignOut})
	sessions.Register(session.Handler{OnSignIn: wishlists.OnSignIn, OnSignOut: wishlists.OnSignOut})
	logger.Info().Msg("initialized services")

	logger = logger.With().Str(log.KeyProcess, "loading initial state").Logger()
	logger.Info().Msg("loading initial state")
	c = logger.WithContext(c)
	if err := carts.Refresh(c); err != nil {
		logger.Warn().Err(err).Msg("failed loading initial cart state")
	}
	if err := wishlists.Refresh(c); err != nil {
		logger.Warn().Err(err).Msg("failed loading initial wishlist state")
	}
	logger.Info().Msg("loaded initial state")

	logger = logger.With().Str(log.KeyProcess, "initializing router").Logger()
	logger.Info().Msg("initializing router")
	router := mux.NewRouter()
	router.Use(
		otelmux.Middleware(constants.AppSessionAgent),
		middleware.Logging,
		middleware.RecoverPanic,
	)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	cartController.AttachCartController(router, carts)
	wishlistController.AttachWishlistController(router, wishlists)
	session.AttachSessionController(router, sessions)
	logger.Info().Msg("initialized router")

	logger = logger.With().Str(log.KeyProcess, "initializing server").Logger()
	logger.Info().Msg("initializing server")
	httpServer := http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Application.Host, cfg.Application.Port),
		BaseContext:  func(net.Listener) context.Context { return c },
		Handler:      router,
		ReadTimeout:  45 * time.Second,
		WriteTimeout: 45 * time.Second,
	}
	logger.Info().Msg("initialized server")

	go func() {
		logger = logger.With().Str(log.KeyProcess, "start server").Logger()
		logger.Info().Msgf("start listening request at %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			err = fmt.Errorf("error=%w occured while server is running", err)
			otel.RecordError(err, span)
			logger.Error().Err(err).Msg(err.Error())
		}
	}()

	<-c.Done()
	logger = logger.With().Str(log.KeyProcess, "shutdown server").Logger()
	logger.Info().Msg("received interuption signal shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		err = fmt.Errorf("failed shutting down http server with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return
	}
	logger.Info().Msg("shutdown http server")
}
