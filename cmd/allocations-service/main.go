package main

import (
	"context"
	"fmt"
	"os"

	"github.com/nurpe/weighbridge-allocations/internal/config"
	"github.com/nurpe/weighbridge-allocations/internal/db"
	"github.com/nurpe/weighbridge-allocations/internal/engine"
	"github.com/nurpe/weighbridge-allocations/internal/excel"
	httphandler "github.com/nurpe/weighbridge-allocations/internal/http"
	"github.com/nurpe/weighbridge-allocations/internal/logger"
	"github.com/nurpe/weighbridge-allocations/internal/pdf"
	"github.com/nurpe/weighbridge-allocations/internal/repository"
	"github.com/nurpe/weighbridge-allocations/internal/service"
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

	allocRepo := repository.NewAllocationRepository(database)
	fleetRepo := repository.NewFleetRepository(database)

	eng, err := engine.New(cfg.Engine, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init engine")
	}

	pdfGenerator, err := pdf.NewGenerator()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init pdf generator")
	}

	allocService := service.NewAllocationService(eng, allocRepo, fleetRepo, excel.NewGenerator(), pdfGenerator, log)
	if err := allocService.Hydrate(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to hydrate engine")
	}

	handler := httphandler.NewHandler(allocService, log)
	router := httphandler.NewRouter(handler, cfg.Environment)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	log.Info().Str("addr", addr).Strs("route", cfg.Engine.Route).Msg("starting allocations service")

	if err := router.Run(addr); err != nil {
		log.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}
