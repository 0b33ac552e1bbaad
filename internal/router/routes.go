package router

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/octobees/leads-generator/miner/internal/auth"
	"github.com/octobees/leads-generator/miner/internal/config"
	"github.com/octobees/leads-generator/miner/internal/handler"
	middlewarepkg "github.com/octobees/leads-generator/miner/internal/middleware"
)

// Handlers aggregates HTTP handlers used by the router.
type Handlers struct {
	Auth        *handler.AuthHandler
	Companies   *handler.CompaniesHandler
	Contacts    *handler.ContactsHandler
	Jobs        *handler.JobsHandler
	Validate    *handler.ValidateHandler
	Search      *handler.SearchHandler
	AdminUpload *handler.AdminUploadHandler
}

// Register wires all HTTP routes for the API.
func Register(e *echo.Echo, cfg *config.Config, jwtManager *auth.JWTManager, handlers Handlers) {
	e.GET("/healthz", func(c echo.Context) error {
		return handler.Success(c, http.StatusOK, "service healthy", map[string]any{"status": "ok"})
	})

	e.POST("/auth/register", handlers.Auth.Register)
	e.POST("/auth/login", handlers.Auth.Login)

	secured := e.Group("")
	secured.Use(middlewarepkg.JWT(jwtManager))

	secured.GET("/auth/me", handlers.Auth.Me)

	secured.GET("/companies", handlers.Companies.List)
	secured.GET("/companies/:id", handlers.Companies.Get)
	secured.GET("/companies/:id/contacts", handlers.Contacts.ListByCompany)
	secured.GET("/contacts/:id", handlers.Contacts.Get)

	secured.POST("/jobs", handlers.Jobs.Create)
	secured.GET("/jobs", handlers.Jobs.List)
	secured.GET("/jobs/:id", handlers.Jobs.Get)
	secured.GET("/jobs/:id/progress", handlers.Jobs.Progress)
	secured.GET("/jobs/:id/events", handlers.Jobs.Stream)
	secured.POST("/jobs/:id/start", handlers.Jobs.Start, middlewarepkg.RouteRateLimiter("/jobs/:id/start", cfg.RateLimitJobs))
	secured.POST("/jobs/:id/pause", handlers.Jobs.Pause)
	secured.POST("/jobs/:id/resume", handlers.Jobs.Resume)
	secured.POST("/jobs/:id/stop", handlers.Jobs.Stop)
	secured.POST("/jobs/:id/restart", handlers.Jobs.Restart)
	secured.DELETE("/jobs/:id", handlers.Jobs.Delete)

	secured.POST("/validate-email", handlers.Validate.ValidateOne)
	secured.POST("/validate-emails", handlers.Validate.ValidateBatch)

	if handlers.Search != nil {
		secured.POST("/search-runs", handlers.Search.Run, middlewarepkg.RouteRateLimiter("/search-runs", cfg.RateLimitJobs))
	}

	admin := secured.Group("/admin", middlewarepkg.RequireRole("admin"))
	admin.POST("/upload-csv", handlers.AdminUpload.UploadCSV)
}
