package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"github.com/octobees/leads-generator/miner/internal/auth"
	"github.com/octobees/leads-generator/miner/internal/config"
	"github.com/octobees/leads-generator/miner/internal/database"
	"github.com/octobees/leads-generator/miner/internal/handler"
	"github.com/octobees/leads-generator/miner/internal/jobs"
	middlewarepkg "github.com/octobees/leads-generator/miner/internal/middleware"
	"github.com/octobees/leads-generator/miner/internal/repository"
	"github.com/octobees/leads-generator/miner/internal/router"
	"github.com/octobees/leads-generator/miner/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		log.Fatalf("failed to apply schema: %v", err)
	}

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL)

	usersRepo := repository.NewPGXUsersRepository(pool)
	companiesRepo := repository.NewPGXCompaniesRepository(pool)
	contactsRepo := repository.NewPGXContactsRepository(pool)
	emailsRepo := repository.NewPGXContactEmailsRepository(pool)
	jobsRepo := repository.NewPGXJobsRepository(pool)
	searchRunsRepo := repository.NewPGXSearchRunsRepository(pool)

	authService := service.NewAuthService(usersRepo, jwtManager)
	companiesService := service.NewCompaniesService(companiesRepo)
	verifier := service.NewVerifier()
	oracle := service.NewOracle(cfg.OracleURL, cfg.OracleToken, verifier,
		service.WithOracleConcurrency(cfg.OracleConcurrency))
	discoverer := service.NewDiscoverer(cfg.SearxngURL)
	miner := service.NewMiner(contactsRepo, emailsRepo, discoverer, verifier, cfg.MaxSearchPages)

	manager := jobs.NewManager(jobsRepo, companiesRepo, miner, jobs.NewHub(),
		jobs.WithCompanyDelay(cfg.CompanyDelay),
		jobs.WithDefaultContactsPerCompany(cfg.ContactsPerCompany),
	)
	if err := manager.Reconcile(ctx); err != nil {
		log.Fatalf("failed to reconcile stale jobs: %v", err)
	}

	httpClient := &http.Client{Timeout: 15 * time.Second}
	handlers := router.Handlers{
		Auth:        handler.NewAuthHandler(authService),
		Companies:   handler.NewCompaniesHandler(companiesService),
		Contacts:    handler.NewContactsHandler(contactsRepo),
		Jobs:        handler.NewJobsHandler(manager),
		Validate:    handler.NewValidateHandler(oracle),
		Search:      handler.NewSearchHandler(httpClient, cfg.MapsWorkerURL, companiesService, searchRunsRepo),
		AdminUpload: handler.NewAdminUploadHandler(companiesService),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middlewarepkg.RequestID())
	e.Use(middlewarepkg.Logging())
	e.Use(echoMiddleware.Recover())

	router.Register(e, cfg, jwtManager, handlers)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- e.Start(":" + cfg.Port)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("received signal %s, shutting down", sig)
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
		return
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
	if err := manager.Close(shutdownCtx); err != nil {
		log.Printf("worker shutdown incomplete: %v", err)
	}
}
