package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vincentgaul/VintScout/internal/api/middleware"
	"github.com/vincentgaul/VintScout/internal/model"
	"github.com/vincentgaul/VintScout/internal/storage"
	"github.com/vincentgaul/VintScout/internal/vinted"
)

type createAlertRequest struct {
	Name                 string          `json:"name" binding:"required"`
	CountryCode          string          `json:"country_code" binding:"required"`
	SearchText           string          `json:"search_text"`
	BrandIDs             []int           `json:"brand_ids"`
	BrandNames           []string        `json:"brand_names"`
	CatalogIDs           []int           `json:"catalog_ids"`
	CatalogNames         []string        `json:"catalog_names"`
	SizeIDs              []int           `json:"size_ids"`
	ConditionIDs         []int           `json:"condition_ids"`
	PriceMin             *float64        `json:"price_min"`
	PriceMax             *float64        `json:"price_max"`
	Currency             string          `json:"currency"`
	NotificationConfig   json.RawMessage `json:"notification_config"`
	CheckIntervalMinutes int             `json:"check_interval_minutes"`
}

type updateAlertRequest struct {
	Name                 *string         `json:"name"`
	SearchText           *string         `json:"search_text"`
	BrandIDs             []int           `json:"brand_ids"`
	BrandNames           []string        `json:"brand_names"`
	CatalogIDs           []int           `json:"catalog_ids"`
	CatalogNames         []string        `json:"catalog_names"`
	SizeIDs              []int           `json:"size_ids"`
	ConditionIDs         []int           `json:"condition_ids"`
	PriceMin             *float64        `json:"price_min"`
	PriceMax             *float64        `json:"price_max"`
	Currency             *string         `json:"currency"`
	NotificationConfig   json.RawMessage `json:"notification_config"`
	CheckIntervalMinutes *int            `json:"check_interval_minutes"`
}

type setActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

type alertResponse struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	CountryCode          string     `json:"country_code"`
	SearchText           string     `json:"search_text"`
	BrandIDs             []int      `json:"brand_ids"`
	CatalogIDs           []int      `json:"catalog_ids"`
	SizeIDs              []int      `json:"size_ids"`
	ConditionIDs         []int      `json:"condition_ids"`
	PriceMin             *float64   `json:"price_min,omitempty"`
	PriceMax             *float64   `json:"price_max,omitempty"`
	Currency             string     `json:"currency"`
	CheckIntervalMinutes int        `json:"check_interval_minutes"`
	IsActive             bool       `json:"is_active"`
	LastCheckedAt        *time.Time `json:"last_checked_at,omitempty"`
	LastFoundCount       int        `json:"last_found_count"`
	TotalFoundCount      int        `json:"total_found_count"`
	CreatedAt            time.Time  `json:"created_at"`
}

func toAlertResponse(a *model.Alert) alertResponse {
	return alertResponse{
		ID:                   a.ID,
		Name:                 a.Name,
		CountryCode:          a.CountryCode,
		SearchText:           a.SearchText,
		BrandIDs:             a.BrandIDList(),
		CatalogIDs:           a.CatalogIDList(),
		SizeIDs:              a.SizeIDList(),
		ConditionIDs:         a.ConditionIDList(),
		PriceMin:             a.PriceMin,
		PriceMax:             a.PriceMax,
		Currency:             a.Currency,
		CheckIntervalMinutes: a.CheckIntervalMinutes,
		IsActive:             a.IsActive,
		LastCheckedAt:        a.LastCheckedAt,
		LastFoundCount:       a.LastFoundCount,
		TotalFoundCount:      a.TotalFoundCount,
		CreatedAt:            a.CreatedAt,
	}
}

// clampInterval keeps per-alert cadence inside the configured window.
func (s *Server) clampInterval(minutes int) int {
	floor := int(s.cfg.Scanner.MinCheckInterval.Minutes())
	ceil := int(s.cfg.Scanner.MaxCheckInterval.Minutes())
	if minutes <= 0 {
		return 15
	}
	if floor > 0 && minutes < floor {
		return floor
	}
	if ceil > 0 && minutes > ceil {
		return ceil
	}
	return minutes
}

func (s *Server) handleCreateAlert(c *gin.Context) {
	var req createAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	country := strings.ToLower(strings.TrimSpace(req.CountryCode))
	if _, ok := vinted.Domains[country]; !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported country code"})
		return
	}
	if req.PriceMin != nil && req.PriceMax != nil && *req.PriceMin > *req.PriceMax {
		c.JSON(http.StatusBadRequest, gin.H{"error": "price_min above price_max"})
		return
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "EUR"
	}

	alert := model.Alert{
		UserID:               middleware.GetUserID(c),
		Name:                 strings.TrimSpace(req.Name),
		CountryCode:          country,
		SearchText:           strings.TrimSpace(req.SearchText),
		BrandIDs:             model.JoinIDs(req.BrandIDs),
		BrandNames:           strings.Join(req.BrandNames, ","),
		CatalogIDs:           model.JoinIDs(req.CatalogIDs),
		CatalogNames:         strings.Join(req.CatalogNames, ","),
		SizeIDs:              model.JoinIDs(req.SizeIDs),
		ConditionIDs:         model.JoinIDs(req.ConditionIDs),
		PriceMin:             req.PriceMin,
		PriceMax:             req.PriceMax,
		Currency:             currency,
		NotificationConfig:   string(req.NotificationConfig),
		CheckIntervalMinutes: s.clampInterval(req.CheckIntervalMinutes),
		IsActive:             true,
	}

	if err := s.alerts.Create(c.Request.Context(), &alert); err != nil {
		s.logger.Error("create alert failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create alert failed"})
		return
	}

	s.logger.Info("alert created",
		slog.String("alert_id", alert.ID),
		slog.String("country", alert.CountryCode))
	c.JSON(http.StatusCreated, toAlertResponse(&alert))
}

func (s *Server) handleListAlerts(c *gin.Context) {
	alerts, err := s.alerts.ListByUser(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list alerts failed"})
		return
	}

	out := make([]alertResponse, 0, len(alerts))
	for i := range alerts {
		out = append(out, toAlertResponse(&alerts[i]))
	}
	c.JSON(http.StatusOK, gin.H{"alerts": out})
}

func (s *Server) handleGetAlert(c *gin.Context) {
	alert, err := s.alerts.Get(c.Request.Context(), c.Param("id"), middleware.GetUserID(c))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load alert failed"})
		return
	}
	c.JSON(http.StatusOK, toAlertResponse(alert))
}

func (s *Server) handleUpdateAlert(c *gin.Context) {
	var req updateAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	alert, err := s.alerts.Get(c.Request.Context(), c.Param("id"), middleware.GetUserID(c))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load alert failed"})
		return
	}

	if req.Name != nil {
		alert.Name = strings.TrimSpace(*req.Name)
	}
	if req.SearchText != nil {
		alert.SearchText = strings.TrimSpace(*req.SearchText)
	}
	if req.BrandIDs != nil {
		alert.BrandIDs = model.JoinIDs(req.BrandIDs)
	}
	if req.BrandNames != nil {
		alert.BrandNames = strings.Join(req.BrandNames, ",")
	}
	if req.CatalogIDs != nil {
		alert.CatalogIDs = model.JoinIDs(req.CatalogIDs)
	}
	if req.CatalogNames != nil {
		alert.CatalogNames = strings.Join(req.CatalogNames, ",")
	}
	if req.SizeIDs != nil {
		alert.SizeIDs = model.JoinIDs(req.SizeIDs)
	}
	if req.ConditionIDs != nil {
		alert.ConditionIDs = model.JoinIDs(req.ConditionIDs)
	}
	if req.PriceMin != nil {
		alert.PriceMin = req.PriceMin
	}
	if req.PriceMax != nil {
		alert.PriceMax = req.PriceMax
	}
	if alert.PriceMin != nil && alert.PriceMax != nil && *alert.PriceMin > *alert.PriceMax {
		c.JSON(http.StatusBadRequest, gin.H{"error": "price_min above price_max"})
		return
	}
	if req.Currency != nil {
		alert.Currency = strings.ToUpper(strings.TrimSpace(*req.Currency))
	}
	if req.NotificationConfig != nil {
		alert.NotificationConfig = string(req.NotificationConfig)
	}
	if req.CheckIntervalMinutes != nil {
		alert.CheckIntervalMinutes = s.clampInterval(*req.CheckIntervalMinutes)
	}

	if err := s.alerts.Update(c.Request.Context(), alert); err != nil {
		s.logger.Error("update alert failed",
			slog.String("alert_id", alert.ID),
			slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update alert failed"})
		return
	}
	c.JSON(http.StatusOK, toAlertResponse(alert))
}

func (s *Server) handleDeleteAlert(c *gin.Context) {
	err := s.alerts.Delete(c.Request.Context(), c.Param("id"), middleware.GetUserID(c))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete alert failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
}

func (s *Server) handleSetActive(c *gin.Context) {
	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Active == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "active flag required"})
		return
	}

	alert, err := s.alerts.SetActive(c.Request.Context(), c.Param("id"), middleware.GetUserID(c), *req.Active)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
			return
		}
		s.logger.Error("set active failed",
			slog.String("alert_id", c.Param("id")),
			slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update alert failed"})
		return
	}
	c.JSON(http.StatusOK, toAlertResponse(alert))
}

func (s *Server) handleListItems(c *gin.Context) {
	userID := middleware.GetUserID(c)
	alertID := c.Param("id")

	// Ownership check before touching the ledger.
	if _, err := s.alerts.Get(c.Request.Context(), alertID, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load alert failed"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	items, err := s.ledger.List(c.Request.Context(), alertID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list items failed"})
		return
	}
	total, err := s.ledger.Count(c.Request.Context(), alertID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count items failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total})
}
