package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/nurpe/tms-trips/internal/auth"
	"github.com/nurpe/tms-trips/internal/cache"
	"github.com/nurpe/tms-trips/internal/config"
	"github.com/nurpe/tms-trips/internal/consentfeed"
	"github.com/nurpe/tms-trips/internal/db"
	httphandler "github.com/nurpe/tms-trips/internal/http"
	"github.com/nurpe/tms-trips/internal/http/middleware"
	"github.com/nurpe/tms-trips/internal/logger"
	"github.com/nurpe/tms-trips/internal/repository"
	"github.com/nurpe/tms-trips/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Environment)

	database, err := db.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}

	tripRepo := repository.NewTripRepository(database)
	fleetRepo := repository.NewFleetRepository(database)
	consentRepo := repository.NewConsentRepository(database)
	shipmentRepo := repository.NewShipmentRepository(database)

	var positions service.LocationReader = fleetRepo
	if cfg.Redis.Addr != "" {
		client := cache.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer client.Close()
		positions = cache.NewPositionCache(client, fleetRepo, cfg.Redis.PositionTTL, log)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("position cache enabled")
	}

	admission := service.NewAdmissionService(tripRepo, fleetRepo, positions, consentRepo, shipmentRepo,
		service.AdmissionConfigFrom(cfg), log)
	shipments := service.NewShipmentService(shipmentRepo, tripRepo, fleetRepo, cfg.Trips.StoreTimeout, log)

	var notifier service.ConsentNotifier = service.NopNotifier{}
	mqttClient, err := connectFeed(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect consent feed")
	}
	if mqttClient != nil {
		defer mqttClient.Disconnect(250)
		notifier = consentfeed.NewPublisher(mqttClient, cfg.MQTT.RequestTopic, log)
	}

	consents := service.NewConsentService(consentRepo, tripRepo, notifier, cfg.Consent.TTL, cfg.Trips.StoreTimeout, log)

	if mqttClient != nil {
		subscriber := consentfeed.NewSubscriber(consents, cfg.Trips.StoreTimeout, log)
		if err := subscriber.Subscribe(mqttClient, cfg.MQTT.DecisionTopic); err != nil {
			log.Fatal().Err(err).Msg("failed to subscribe to consent decisions")
		}
	}

	tokenParser := auth.NewParser(cfg.Auth.AccessSecret)
	handler := httphandler.NewHandler(admission, consents, shipments, log)
	authMiddleware := middleware.Auth(tokenParser)
	router := httphandler.NewRouter(handler, authMiddleware, cfg.Environment, cfg.HTTP.AllowedOrigins, log)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("addr", addr).Msg("starting trips service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server stopped")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("trips service stopped")
}

func connectFeed(cfg *config.Config, log zerolog.Logger) (mqtt.Client, error) {
	if cfg.MQTT.BrokerURL == "" {
		log.Info().Msg("consent feed disabled, MQTT_BROKER_URL is empty")
		return nil, nil
	}
	return consentfeed.Connect(cfg.MQTT, log)
}
