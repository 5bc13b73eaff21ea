package main

import (
	"fmt"
	"os"

	"github.com/cenamoradol/crm-autolote-backend/internal/audit"
	"github.com/cenamoradol/crm-autolote-backend/internal/gate"
	"github.com/cenamoradol/crm-autolote-backend/internal/handler"
	"github.com/cenamoradol/crm-autolote-backend/internal/lifecycle"
	"github.com/cenamoradol/crm-autolote-backend/internal/membership"
	appmiddleware "github.com/cenamoradol/crm-autolote-backend/internal/middleware"
	"github.com/cenamoradol/crm-autolote-backend/internal/model"
	"github.com/cenamoradol/crm-autolote-backend/internal/storage"
	"github.com/cenamoradol/crm-autolote-backend/internal/tenant"
	"github.com/cenamoradol/crm-autolote-backend/pkg/config"
	"github.com/cenamoradol/crm-autolote-backend/pkg/database"
	"github.com/cenamoradol/crm-autolote-backend/pkg/jwtutil"
	"github.com/cenamoradol/crm-autolote-backend/pkg/logger"
	"github.com/cenamoradol/crm-autolote-backend/pkg/metrics"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

func main() {
	conf, err := config.Load("crm-autolote")
	if err != nil {
		fmt.Printf("Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	err = logger.InitLogger(&logger.LogConfig{
		Level:       conf.Log.Level,
		Environment: conf.Server.Env,
		ServiceName: conf.ServiceName,
	})
	if err != nil {
		fmt.Printf("Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.GetLogger()
	log.Info("configuration loaded", conf.LogConfig()...)

	_, err = database.InitDB(&conf.DB)
	if err != nil {
		log.Fatal("Failed to initialize database")
	}

	if err := database.MigrateModels(
		&model.Store{},
		&model.StoreDomain{},
		&model.StoreSubscription{},
		&model.User{},
		&model.PermissionSet{},
		&model.Membership{},
		&model.Customer{},
		&model.CustomerNote{},
		&model.Lead{},
		&model.Vehicle{},
		&model.VehicleReservation{},
		&model.VehicleSale{},
		&model.VehicleStatusHistory{},
		&model.AuditEvent{},
	); err != nil {
		log.Fatal("Failed to migrate database models")
	}

	store := storage.NewGormStore(database.GetDB())

	// Tenant cache: Redis when configured, in-process otherwise.
	var tenantCache tenant.Cache = tenant.NewMemoryCache()
	if conf.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     conf.Redis.Addr,
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB,
		})
		tenantCache = tenant.NewRedisCache(client, log)
		log.Info("tenant cache backed by redis")
	}
	tenantResolver := tenant.NewResolver(store, tenantCache, conf.Tenant.MasterDomains, conf.Tenant.CacheTTL)

	memberships := membership.NewResolver(store)
	accessGate := gate.New(memberships, store)

	auditSink := audit.NewAsyncSink(store, log, 256)
	defer auditSink.Close()

	lifecycleMetrics := metrics.NewLifecycleMetrics(conf.ServiceName)
	engine := lifecycle.NewEngine(store, auditSink, lifecycleMetrics, log)

	jwt := jwtutil.NewJWTUtil(&jwtutil.JWTConfig{
		SigningKey:      conf.JWT.SigningKey,
		ExpirationHours: conf.JWT.ExpirationHours,
	})

	httpMetrics := metrics.NewHTTPMetrics(conf.ServiceName)

	e := echo.New()
	e.HideBanner = true

	e.Use(appmiddleware.RequestIDMiddleware())
	e.Use(logger.Middleware())
	e.Use(httpMetrics.Middleware())
	e.Use(appmiddleware.TenantContextMiddleware(tenantResolver))

	e.GET("/metrics", echo.WrapHandler(metrics.GetPrometheusHandler()))
	e.GET("/health", handler.Health)

	authHandler := handler.NewAuthHandler(store, jwt)
	vehicleHandler := handler.NewVehicleHandler(accessGate, engine)
	saleHandler := handler.NewSaleHandler(accessGate, engine)
	membershipHandler := handler.NewMembershipHandler(accessGate, memberships)
	permissionSetHandler := handler.NewPermissionSetHandler(accessGate, store)

	// Public routes
	e.GET("/context", handler.ResolveContext)
	e.POST("/auth/login", authHandler.Login)

	// Secured routes
	authed := e.Group("")
	authed.Use(appmiddleware.JWTAuthMiddleware(jwt))

	authed.GET("/me", authHandler.Me)

	authed.POST("/vehicles", vehicleHandler.Create)
	authed.POST("/vehicles/:id/reserve", vehicleHandler.Reserve)
	authed.GET("/vehicles/:id/reservation", vehicleHandler.GetReservation)
	authed.DELETE("/vehicles/:id/reservation", vehicleHandler.Release)
	authed.POST("/vehicles/:id/sell", vehicleHandler.Sell)
	authed.POST("/vehicles/:id/archive", vehicleHandler.Archive)
	authed.PUT("/vehicles/:id/publish", vehicleHandler.Publish)
	authed.GET("/vehicles/:id/history", vehicleHandler.History)

	authed.PUT("/sales/:id", saleHandler.Update)

	authed.POST("/memberships", membershipHandler.Assign)
	authed.GET("/permission-sets", permissionSetHandler.List)
	authed.POST("/permission-sets", permissionSetHandler.Create)
	authed.PUT("/permission-sets/:id", permissionSetHandler.Update)
	authed.DELETE("/permission-sets/:id", permissionSetHandler.Delete)

	log.Info("Starting crm-autolote on port " + conf.Server.Port)
	e.Logger.Fatal(e.Start(":" + conf.Server.Port))
}
