package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/propertyline/triage/internal/config"
	"github.com/propertyline/triage/internal/conversation"
	"github.com/propertyline/triage/internal/db"
	"github.com/propertyline/triage/internal/dispatch"
	"github.com/propertyline/triage/internal/escalation"
	"github.com/propertyline/triage/internal/http/handlers"
	"github.com/propertyline/triage/internal/http/middleware"

	_ "github.com/propertyline/triage/docs"
)

// Services are the components the HTTP layer drives.
type Services struct {
	Repo    db.Repository
	Agent   *conversation.Agent
	Engine  *dispatch.Engine
	Sweeper *escalation.Sweeper
}

func Router(cfg config.Config, svc Services, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Key", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" || cfg.CORSAllowed == "" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Repo:      svc.Repo,
		Agent:     svc.Agent,
		Engine:    svc.Engine,
		Sweeper:   svc.Sweeper,
		Validator: validator.New(),
		Logger:    logger,
	}

	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	{
		api.POST("/calls", h.StartCall)
		api.GET("/calls/:id", h.CallDetails)
		api.POST("/calls/:id/utterances", h.Utterance)
		api.POST("/calls/:id/hangup", h.Hangup)

		api.GET("/tickets", h.TicketsList)
		api.GET("/tickets/:id", h.TicketDetails)
		api.GET("/tickets/:id/escalation", h.EscalationCheck)
		api.GET("/technicians", h.TechniciansList)
	}

	admin := api.Group("")
	admin.Use(middleware.AdminKey(cfg.AdminKey))
	{
		admin.POST("/tickets/:id/dispatch", h.Dispatch)
		admin.PATCH("/tickets/:id/status", h.UpdateStatus)
		admin.POST("/dispatch/batch", h.BatchDispatch)
		admin.PUT("/technicians/:id", h.UpsertTechnician)
		admin.POST("/technicians/:id/release", h.ReleaseTechnician)
		admin.POST("/escalations/sweep", h.EscalationSweep)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
