// Package api serves the HTTP surface: auth, alert CRUD, on-demand scans,
// ledger history and catalog lookups.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/vincentgaul/VintScout/internal/api/auth"
	"github.com/vincentgaul/VintScout/internal/api/middleware"
	"github.com/vincentgaul/VintScout/internal/config"
	"github.com/vincentgaul/VintScout/internal/model"
	"github.com/vincentgaul/VintScout/internal/pkg/queue"
	"github.com/vincentgaul/VintScout/internal/scheduler"
	"github.com/vincentgaul/VintScout/internal/storage"
	"github.com/vincentgaul/VintScout/internal/vinted"
)

// Runner is the slice of the scheduler the API drives directly.
type Runner interface {
	RunAlertNow(ctx context.Context, alertID, userID string) (*scheduler.RunResult, error)
	Stats() queue.Stats
}

// AlertStorage is the persistence surface the alert handlers need.
type AlertStorage interface {
	Create(ctx context.Context, alert *model.Alert) error
	Get(ctx context.Context, id, userID string) (*model.Alert, error)
	ListByUser(ctx context.Context, userID string) ([]model.Alert, error)
	Update(ctx context.Context, alert *model.Alert) error
	Delete(ctx context.Context, id, userID string) error
	SetActive(ctx context.Context, id, userID string, active bool) (*model.Alert, error)
}

// LedgerStorage is the read surface for per-alert scan history.
type LedgerStorage interface {
	List(ctx context.Context, alertID string, limit, offset int) ([]model.SeenItem, error)
	Count(ctx context.Context, alertID string) (int64, error)
}

// CatalogSource resolves brand and category lookups against the marketplace.
type CatalogSource interface {
	Brands(ctx context.Context, countryCode, keyword string, limit int) ([]vinted.Brand, error)
	Categories(ctx context.Context, countryCode string) ([]vinted.Category, error)
}

// Server wires the HTTP routes to storage and the scheduler.
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      *gorm.DB
	rdb     *redis.Client
	router  *gin.Engine
	auth    *auth.Handler
	alerts  AlertStorage
	ledger  LedgerStorage
	runner  Runner
	catalog CatalogSource
}

func NewServer(cfg *config.Config, logger *slog.Logger, db *gorm.DB, rdb *redis.Client, runner Runner, catalog CatalogSource) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		rdb:     rdb,
		router:  r,
		auth:    auth.NewHandler(db, cfg.Security.JWTSecret, cfg.Security.TokenExpiry, logger),
		alerts:  storage.NewAlertStore(db),
		ledger:  storage.NewLedger(db),
		runner:  runner,
		catalog: catalog,
	}
	s.registerRoutes()
	return s
}

// Router returns the HTTP handler, for the server and for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/healthz", s.handleHealthz)

	s.router.POST("/register", s.auth.Register)
	s.router.POST("/login", s.auth.Login)

	authed := s.router.Group("/")
	authed.Use(middleware.AuthMiddleware(s.cfg.Security.JWTSecret))

	authed.POST("/alerts", s.handleCreateAlert)
	authed.GET("/alerts", s.handleListAlerts)
	authed.GET("/alerts/:id", s.handleGetAlert)
	authed.PATCH("/alerts/:id", s.handleUpdateAlert)
	authed.DELETE("/alerts/:id", s.handleDeleteAlert)
	authed.POST("/alerts/:id/active", s.handleSetActive)
	authed.POST("/alerts/:id/run", s.handleRunNow)
	authed.GET("/alerts/:id/items", s.handleListItems)

	authed.GET("/brands", s.handleSearchBrands)
	authed.GET("/categories", s.handleCategories)
	authed.GET("/stats", s.handleStats)
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	var one int
	if err := s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}
	if s.rdb != nil {
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStats(c *gin.Context) {
	stats := s.runner.Stats()
	c.JSON(http.StatusOK, gin.H{
		"enqueued":  stats.TotalEnqueued,
		"processed": stats.TotalProcessed,
		"succeeded": stats.TotalSucceeded,
		"failed":    stats.TotalFailed,
		"dropped":   stats.TotalDropped,
		"panics":    stats.TotalPanics,
	})
}

func (s *Server) handleRunNow(c *gin.Context) {
	res, err := s.runner.RunAlertNow(c.Request.Context(), c.Param("id"), middleware.GetUserID(c))
	if err != nil {
		switch {
		case errors.Is(err, scheduler.ErrAlertNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
		case errors.Is(err, scheduler.ErrAlertBusy):
			c.JSON(http.StatusConflict, gin.H{"error": "scan already in progress"})
		case errors.Is(err, scheduler.ErrStopped):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleSearchBrands(c *gin.Context) {
	country := c.DefaultQuery("country", "fr")
	keyword := c.Query("keyword")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	brands, err := s.catalog.Brands(c.Request.Context(), country, keyword, limit)
	if err != nil {
		s.logger.Warn("brand lookup failed", slog.String("error", err.Error()))
		c.JSON(http.StatusBadGateway, gin.H{"error": "brand lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"brands": brands})
}

func (s *Server) handleCategories(c *gin.Context) {
	country := c.DefaultQuery("country", "fr")

	cats, err := s.catalog.Categories(c.Request.Context(), country)
	if err != nil {
		s.logger.Warn("category lookup failed", slog.String("error", err.Error()))
		c.JSON(http.StatusBadGateway, gin.H{"error": "category lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": cats})
}
