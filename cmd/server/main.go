package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/richxcame/dispatch-core/internal/creditledger"
	"github.com/richxcame/dispatch-core/internal/dispatch"
	"github.com/richxcame/dispatch-core/internal/geo"
	"github.com/richxcame/dispatch-core/internal/geozone"
	"github.com/richxcame/dispatch-core/internal/messaging"
	"github.com/richxcame/dispatch-core/internal/otp"
	"github.com/richxcame/dispatch-core/internal/reconciliation"
	"github.com/richxcame/dispatch-core/internal/routing"
	"github.com/richxcame/dispatch-core/internal/settlement"
	"github.com/richxcame/dispatch-core/internal/spatial"
	"github.com/richxcame/dispatch-core/internal/trip"
	"github.com/richxcame/dispatch-core/internal/users"
	"github.com/richxcame/dispatch-core/pkg/config"
	"github.com/richxcame/dispatch-core/pkg/database"
	"github.com/richxcame/dispatch-core/pkg/errors"
	"github.com/richxcame/dispatch-core/pkg/eventbus"
	"github.com/richxcame/dispatch-core/pkg/health"
	"github.com/richxcame/dispatch-core/pkg/jwtkeys"
	"github.com/richxcame/dispatch-core/pkg/logger"
	"github.com/richxcame/dispatch-core/pkg/middleware"
	"github.com/richxcame/dispatch-core/pkg/models"
	"github.com/richxcame/dispatch-core/pkg/ratelimit"
	redisclient "github.com/richxcame/dispatch-core/pkg/redis"
	"github.com/richxcame/dispatch-core/pkg/tracing"
	"go.uber.org/zap"
)

const (
	serviceName = "dispatch-core"
	version     = "1.0.0"
)

// tripLookupAdapter bridges geo.ActiveTripLookup to trip.Service.
// ActiveRouteLeg, converting between the two packages' structurally
// identical but separately-named RouteLeg types so neither package has
// to import the other's concrete types.
type tripLookupAdapter struct {
	svc *trip.Service
}

func (a tripLookupAdapter) ActiveRouteLeg(ctx context.Context, driverID uuid.UUID) (geo.RouteLeg, bool, error) {
	leg, ok, err := a.svc.ActiveRouteLeg(ctx, driverID)
	if err != nil || !ok {
		return geo.RouteLeg{}, ok, err
	}
	return geo.RouteLeg{
		FromLat: leg.FromLat,
		FromLng: leg.FromLng,
		ToLat:   leg.ToLat,
		ToLng:   leg.ToLng,
	}, true, nil
}

// tripRegistrarAdapter bridges trip.ActiveTripRegistrar to
// geo.ETATracker, converting trip.ActiveTripInfo to geo.ActiveTripInfo
// for the same reason as tripLookupAdapter above.
type tripRegistrarAdapter struct {
	tracker *geo.ETATracker
}

func (a tripRegistrarAdapter) RegisterActiveTrip(ctx context.Context, info *trip.ActiveTripInfo) error {
	return a.tracker.RegisterActiveTrip(ctx, &geo.ActiveTripInfo{
		TripID:      info.TripID,
		RiderID:     info.RiderID,
		DriverID:    info.DriverID,
		PickupLat:   info.PickupLat,
		PickupLng:   info.PickupLng,
		DropoffLat:  info.DropoffLat,
		DropoffLng:  info.DropoffLng,
		Status:      info.Status,
	})
}

func (a tripRegistrarAdapter) UnregisterActiveTrip(ctx context.Context, driverID uuid.UUID) {
	a.tracker.UnregisterActiveTrip(ctx, driverID)
}

// locationUpdaterAdapter bridges spatial.LocationUpdater to geo.Service,
// converting the result shape between the two packages' mirrored types.
type locationUpdaterAdapter struct {
	svc *geo.Service
}

func (a locationUpdaterAdapter) UpdateDriverLocation(ctx context.Context, driverID uuid.UUID, lat, lng, bearing float64) (*spatial.LocationResult, error) {
	res, err := a.svc.UpdateDriverLocation(ctx, driverID, lat, lng, bearing)
	if err != nil {
		return nil, err
	}
	return &spatial.LocationResult{
		SnappedLat:   res.SnappedLat,
		SnappedLng:   res.SnappedLng,
		Flagged:      res.Flagged,
		AnomalyCount: res.AnomalyCount,
	}, nil
}

// offerResponderAdapter narrows dispatch.Service's accept path (which
// returns the accepted trip) to the error-only shape the client
// protocol needs.
type offerResponderAdapter struct {
	svc *dispatch.Service
}

func (a offerResponderAdapter) AcceptOfferForTrip(ctx context.Context, tripID, driverID uuid.UUID) error {
	_, err := a.svc.AcceptOfferForTrip(ctx, tripID, driverID)
	return err
}

func (a offerResponderAdapter) RejectOfferForTrip(ctx context.Context, tripID, driverID uuid.UUID) error {
	return a.svc.RejectOfferForTrip(ctx, tripID, driverID)
}

// tripFlowAdapter drives trip transitions for socket events, acting as
// the connected driver.
type tripFlowAdapter struct {
	svc *trip.Service
}

func (a tripFlowAdapter) Arrive(ctx context.Context, userID, tripID uuid.UUID) error {
	_, err := a.svc.Transition(ctx, trip.Actor{UserID: userID, Role: models.RoleDriver}, tripID, models.TripArrived, "")
	return err
}

func (a tripFlowAdapter) Start(ctx context.Context, userID, tripID uuid.UUID) error {
	_, err := a.svc.Transition(ctx, trip.Actor{UserID: userID, Role: models.RoleDriver}, tripID, models.TripInProgress, "")
	return err
}

func (a tripFlowAdapter) Complete(ctx context.Context, userID, tripID uuid.UUID) error {
	_, err := a.svc.CompleteTripAsPlanned(ctx, trip.Actor{UserID: userID, Role: models.RoleDriver}, tripID)
	return err
}

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	defer cfg.Close()

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	if err := logger.Init(cfg.Server.Environment); err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting dispatch core service",
		zap.String("service", serviceName),
		zap.String("version", version),
		zap.String("environment", cfg.Server.Environment),
	)

	sentryConfig := errors.DefaultSentryConfig()
	sentryConfig.ServerName = serviceName
	sentryConfig.Release = version
	if err := errors.InitSentry(sentryConfig); err != nil {
		logger.Warn("Failed to initialize Sentry, continuing without error tracking", zap.Error(err))
	} else {
		defer errors.Flush(2 * time.Second)
		logger.Info("Sentry error tracking initialized successfully")
	}

	tracerEnabled := os.Getenv("OTEL_ENABLED") == "true"
	if tracerEnabled {
		tracerCfg := tracing.Config{
			ServiceName:    os.Getenv("OTEL_SERVICE_NAME"),
			ServiceVersion: os.Getenv("OTEL_SERVICE_VERSION"),
			Environment:    cfg.Server.Environment,
			OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			Enabled:        true,
		}
		tp, err := tracing.InitTracer(tracerCfg, logger.Get())
		if err != nil {
			logger.Warn("Failed to initialize tracer, continuing without tracing", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tp.Shutdown(shutdownCtx); err != nil {
					logger.Warn("Failed to shutdown tracer", zap.Error(err))
				}
			}()
			logger.Info("OpenTelemetry tracing initialized successfully")
		}
	}

	if envOr("RUN_MIGRATIONS", "true") == "true" {
		if err := database.Migrate(cfg.Database.URL(), envOr("MIGRATIONS_PATH", "file://db/migrations")); err != nil {
			logger.Fatal("Failed to apply database migrations", zap.Error(err))
		}
		logger.Info("Database migrations applied")
	}

	db, err := database.NewPostgresPool(&cfg.Database, cfg.Timeout.DatabaseQueryTimeout)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)
	logger.Info("Connected to database")

	dbMetrics := database.NewPoolMetrics("dispatch_core")
	go dbMetrics.Collect(rootCtx, db)

	redisClient, err := redisclient.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("Failed to close redis client", zap.Error(err))
		}
	}()
	logger.Info("Connected to redis")

	bus, err := eventbus.New(eventbus.Config{
		URL:        envOr("NATS_URL", "nats://localhost:4222"),
		Name:       serviceName,
		StreamName: "DISPATCH",
	})
	if err != nil {
		logger.Fatal("Failed to connect to event bus", zap.Error(err))
	}
	defer bus.Close()
	logger.Info("Connected to event bus")

	jwtProvider, err := jwtkeys.NewManagerFromConfig(rootCtx, cfg.JWT, true)
	if err != nil {
		logger.Fatal("Failed to initialize JWT key manager", zap.Error(err))
	}
	jwtProvider.StartAutoRefresh(rootCtx, time.Duration(cfg.JWT.RefreshMinutes)*time.Minute)

	// --- domain wiring ---
	// Each domain builds its own Repository + Service + Handler, one
	// component at a time, bottom-up through the collaborator interfaces
	// each package's collaborators.go declares.

	usersRepo := users.NewRepository(db)

	alertRepo := routing.NewAlertRepository(db)

	routingTimeout := time.Duration(cfg.Routing.TimeoutMS) * time.Millisecond
	routingProvider := routing.NewGoogleProvider(cfg.Routing.GoogleAPIKey, routingTimeout)
	routingClient := routing.NewTunedClient(routingProvider, alertRepo, routing.Tuning{
		RequestTimeout:  routingTimeout,
		BreakerFailures: cfg.Routing.CircuitThreshold,
		BreakerOpenFor:  time.Duration(cfg.Routing.ResetSeconds) * time.Second,
	})

	geozoneSvc := geozone.NewService(redisClient)

	hub := spatial.NewHub(bus)
	go func() {
		// Start subscribes the cross-instance fan-out and then runs the
		// hub loop until shutdown.
		if err := hub.Start(rootCtx); err != nil {
			logger.Fatal("Failed to start spatial hub", zap.Error(err))
		}
	}()

	etaTracker := geo.NewETATracker(redisClient, hub)

	messagingRepo := messaging.NewRepository(db)
	otpRepo := otp.NewRepository(db)

	var primarySMS messaging.SMSProvider
	if cfg.Notifications.TwilioAccountSID != "" {
		primarySMS = messaging.NewTwilioSMS(cfg.Notifications.TwilioAccountSID, cfg.Notifications.TwilioAuthToken, cfg.Notifications.TwilioFromNumber)
	}

	var pushProvider messaging.PushProvider
	if cfg.Firebase.Enabled {
		fp, err := messaging.NewFirebasePush(rootCtx, cfg.Firebase.CredentialsPath)
		if err != nil {
			logger.Warn("Failed to initialize Firebase push provider, continuing without push", zap.Error(err))
		} else {
			pushProvider = fp
		}
	}

	messagingSvc := messaging.NewService(messagingRepo, primarySMS, nil, pushProvider, otpRepo, messaging.DefaultConfig())
	retryQueue := messaging.NewRetryQueue(messagingSvc, 30*time.Second, 50)
	go retryQueue.Start(rootCtx)

	otpCfg := otp.DefaultConfig()
	otpCfg.MaxPerHour = cfg.OTP.MaxPerHour
	otpCfg.LockThreshold = cfg.OTP.LockThreshold
	otpCfg.LockMinutes = cfg.OTP.LockMinutes
	otpSvc := otp.NewService(otpRepo, usersRepo, messagingSvc, jwtProvider, otpCfg)
	otpSweeper := otp.NewSweeper(otpSvc)
	go otpSweeper.Start(rootCtx)

	creditRepo := creditledger.NewRepository(db)
	creditSvc := creditledger.NewService(creditRepo)

	var stripeClient *settlement.StripeClient
	var stripeTransferer settlement.StripeTransferer
	if cfg.Payments.StripeAPIKey != "" {
		stripeClient = settlement.NewStripeClient(cfg.Payments.StripeAPIKey)
		stripeTransferer = stripeClient
	}
	settlementRepo := settlement.NewRepository(db, creditRepo)
	settlementSvc := settlement.NewService(settlementRepo, stripeTransferer, bus, settlement.Config{CommissionRate: cfg.Settlement.CommissionRate})

	tripRepo := trip.NewRepository(db)
	tripSvc := trip.NewService(tripRepo, tripRegistrarAdapter{tracker: etaTracker}, hub, settlementSvc, bus)
	etaTracker.SetArrivalNotifier(tripSvc)

	// geo.Service's deviation check needs trip.Service's ActiveRouteLeg,
	// which is why geo.Service is constructed after trip.Service here
	// rather than alongside the rest of the location stack above.
	geoRepo := geo.NewRepository(db)
	geoSvc := geo.NewService(geoRepo, redisClient, bus, tripLookupAdapter{svc: tripSvc})
	anomalyCfg := geo.DefaultAnomalyConfig()
	anomalyCfg.MaxJumpKm = cfg.Anomaly.MaxJumpKm
	anomalyCfg.MaxSpeedKmh = cfg.Anomaly.MaxSpeedKmh
	anomalyCfg.MaxDeviationM = cfg.Anomaly.MaxDeviationM
	geoSvc.SetAnomalyConfig(anomalyCfg)
	geoSvc.SetSearchRadiusKm(cfg.Dispatch.SearchRadiusKm)
	geoSvc.SetRoomMover(hub)
	geoSvc.SetETATracker(etaTracker)
	locationBuffer := geo.NewLocationBuffer(redisClient, geo.DefaultLocationBufferConfig())
	defer locationBuffer.Stop()
	geoSvc.SetLocationBuffer(locationBuffer)

	dispatchRepo := dispatch.NewRepository(db)
	dispatchSeed := models.DefaultDispatchConfig()
	dispatchSeed.OfferTimeoutSec = cfg.Dispatch.OfferTimeoutSec
	dispatchSeed.MaxOffers = cfg.Dispatch.MaxOffers
	dispatchSeed.SearchRadiusKm = cfg.Dispatch.SearchRadiusKm
	dispatchSeed.CommissionRate = cfg.Settlement.CommissionRate
	if err := dispatchRepo.EnsureDispatchConfig(rootCtx, dispatchSeed); err != nil {
		logger.Warn("Failed to seed dispatch config, continuing with code defaults", zap.Error(err))
	}
	dispatchSvc := dispatch.NewService(dispatchRepo, geoSvc, routingClient, messagingSvc, bus)
	dispatchSvc.SetBroadcaster(hub)
	dispatchSvc.SetDemandRecorder(geozoneSvc)
	dispatchScheduler := dispatch.NewScheduler(dispatchSvc, 50)
	go dispatchScheduler.Start(rootCtx)

	// Inbound socket events route into the domain services through the
	// same narrow collaborator seams the services expose to each other.
	spatial.BindHandlers(hub, spatial.Bindings{
		Locations: locationUpdaterAdapter{svc: geoSvc},
		Offers:    offerResponderAdapter{svc: dispatchSvc},
		Trips:     tripFlowAdapter{svc: tripSvc},
		Nearby:    geoSvc,
	})

	reconciliationRepo := reconciliation.NewRepository(db)
	reconciliationSvc := reconciliation.NewService(reconciliationRepo, stripeClientOrNil(stripeClient), alertRepo, creditSvc)
	reconciliationScheduler := reconciliation.NewScheduler(reconciliationSvc)
	go reconciliationScheduler.Start(rootCtx)

	// --- HTTP ---
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RecoveryWithSentry())
	router.Use(middleware.SentryMiddleware())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestTimeout(&cfg.Timeout))
	router.Use(middleware.RequestLogger(serviceName))
	router.Use(middleware.CORS())
	router.Use(middleware.SanitizeRequest())
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.NewLimiter(redisClient.Client, cfg.RateLimit)
		router.Use(middleware.RateLimit(limiter, cfg.RateLimit))
	}
	if tracerEnabled {
		router.Use(middleware.TracingMiddleware(serviceName))
	}
	router.Use(middleware.ErrorHandler())

	// Health/version/metrics and the OTP + WhatsApp webhook routes are
	// registered before the auth middleware is added to the engine's
	// handler chain, so none of them require a bearer token — Gin only
	// applies a router.Use() call to routes registered after it.
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": serviceName, "version": version})
	})
	router.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "alive"})
	})
	healthRegistry := health.NewRegistry(version)
	healthRegistry.Register("database", health.DatabaseChecker(db))
	healthRegistry.Register("redis", health.RedisChecker(redisClient.Client))
	healthRegistry.Register("nats", health.ConnectedChecker("nats", bus.Connected))
	router.GET("/health/ready", healthRegistry.GinHandler())
	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"service": serviceName, "version": version})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	otpHandler := otp.NewHandler(otpSvc)
	otpHandler.RegisterRoutes(router)

	messagingWebhookHandler := messaging.NewHandler(messagingRepo, envOr("WHATSAPP_APP_SECRET", ""), envOr("WHATSAPP_VERIFY_TOKEN", ""))
	messagingWebhookHandler.RegisterRoutes(router)

	// Everything registered from here on requires a valid bearer token.
	router.Use(middleware.AuthMiddlewareWithProvider(jwtProvider))

	dispatchHandler := dispatch.NewHandler(dispatchSvc, dispatchRepo)
	dispatchHandler.RegisterRoutes(router)

	tripHandler := trip.NewHandler(tripSvc)
	tripHandler.RegisterRoutes(router)

	// settlement.Handler.RegisterRoutes also binds POST /trips/:id/settle,
	// which trip.Handler already owns as the trip-to-settlement entry point (it
	// validates the caller, stamps trip metrics, then calls into
	// settlement itself) — only the wallet/payout routes are registered
	// here to avoid a duplicate route registration.
	settlementHandler := settlement.NewHandler(settlementSvc)
	router.GET("/wallet/balance", settlementHandler.GetBalance)
	router.POST("/wallet/process-trip-payment", settlementHandler.ProcessTripPayment)
	router.POST("/payouts", settlementHandler.RequestPayout)
	router.POST("/payouts/:id/process", middleware.RequireRole(models.RoleAdmin), settlementHandler.ProcessPayout)

	creditHandler := creditledger.NewHandler(creditSvc)
	creditHandler.RegisterRoutes(router)

	reconciliationHandler := reconciliation.NewHandler(reconciliationRepo)
	reconciliationHandler.RegisterRoutes(router)

	spatialHandler := spatial.NewHandler(hub)
	router.GET("/ws", spatialHandler.HandleWebSocket)
	admin := router.Group("/admin/spatial")
	admin.Use(middleware.RequireRole(models.RoleAdmin))
	admin.GET("/stats", spatialHandler.GetStats)

	geozoneHandler := geozone.NewHandler(geozoneSvc)
	zones := router.Group("/admin/zones")
	zones.Use(middleware.RequireRole(models.RoleAdmin))
	geozoneHandler.RegisterRoutes(zones)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("Server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server stopped")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// stripeClientOrNil returns a reconciliation.ProviderAggregator backed by
// stripe, or nil when Stripe isn't configured — RunWindow then records a
// provider total of 0, so any non-zero DB total is logged as a mismatch
// and alerted.
func stripeClientOrNil(stripe *settlement.StripeClient) reconciliation.ProviderAggregator {
	if stripe == nil {
		return nil
	}
	return stripe
}
