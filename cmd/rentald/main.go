package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vacuum-rental-backend/config"
	"vacuum-rental-backend/internal/api"
	"vacuum-rental-backend/internal/db"
	"vacuum-rental-backend/internal/device"
	"vacuum-rental-backend/internal/payment"
	"vacuum-rental-backend/internal/realtime"
	"vacuum-rental-backend/internal/session"
	"vacuum-rental-backend/internal/store"
	"vacuum-rental-backend/internal/sweeper"
)

func main() {
	logger := log.New(os.Stdout, "rentald ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	appStore := store.NewGormStore(gormDB)

	channel, err := device.NewChannel(&cfg.Device)
	if err != nil {
		logger.Fatalf("failed to connect device command channel: %v", err)
	}
	defer channel.Close()

	dispatcher := device.NewDispatcher(channel, cfg.Device.TopicPrefix, cfg.Device.SafetyCeiling)
	hub := realtime.NewHub(cfg.Realtime.SendBufferSize)
	gateway := payment.NewGateway(payment.NewHTTPProvider(&cfg.Payment))

	sessions := session.NewManager(appStore, dispatcher, hub, gateway, cfg.Payment.PricePerMinuteCents)
	confirmations := payment.NewConfirmationHandler(appStore, gateway, sessions, hub)

	sweep := sweeper.New(appStore, sessions, dispatcher)
	if err := sweep.Start(cfg.Sweeper.Interval); err != nil {
		logger.Fatalf("failed to start sweeper: %v", err)
	}
	defer sweep.Stop()

	handler := api.NewHandler(appStore, sessions, confirmations, hub)
	router := api.NewRouter(handler, &cfg.Server)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
