package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront-svc/middleware"
	"storefront-svc/models"
)

type StatsSource interface {
	Recompute(ctx context.Context) (models.DashboardStats, error)
	MonthlyRevenue(ctx context.Context, year int) ([]models.MonthlyRevenue, error)
	Subscribe() (<-chan models.DashboardStats, func())
}

type LoginRequest struct {
	Password string `json:"password" form:"password" binding:"required"`
}

type AdminHandler struct {
	auth   *middleware.AdminAuth
	stats  StatsSource
	logger *zap.Logger
	now    func() time.Time
}

func NewAdminHandler(auth *middleware.AdminAuth, stats StatsSource, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{auth: auth, stats: stats, logger: logger, now: time.Now}
}

// LoginPage sends signed-in admins straight to the order list.
func (h *AdminHandler) LoginPage(c *gin.Context) {
	if h.auth.HasSession(c) {
		c.Redirect(http.StatusSeeOther, "/admin/orders")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Login required"})
}

func (h *AdminHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !h.auth.CheckPassword(req.Password) {
		h.logger.Warn("Admin login failed", zap.String("ip", c.ClientIP()))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "wrong password"})
		return
	}

	token, err := h.auth.IssueToken()
	if err != nil {
		internalError(c, h.logger, "Failed to issue session", err)
		return
	}
	h.auth.SetSessionCookie(c, token)

	h.logger.Info("Admin logged in",
		zap.String("trace_id", middleware.GetTraceID(c.Request.Context())),
		zap.String("ip", c.ClientIP()))
	c.JSON(http.StatusOK, gin.H{"message": "Logged in"})
}

func (h *AdminHandler) Logout(c *gin.Context) {
	h.auth.ClearSessionCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// GetStats rescans the store on every load; events only carry the figures
// between loads.
func (h *AdminHandler) GetStats(c *gin.Context) {
	stats, err := h.stats.Recompute(c.Request.Context())
	if err != nil {
		internalError(c, h.logger, "Failed to compute stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetChart returns delivered revenue per month; year defaults to the
// current one.
func (h *AdminHandler) GetChart(c *gin.Context) {
	year := h.now().Year()
	if raw := c.Query("year"); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil || y < 1970 || y > 9999 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid year"})
			return
		}
		year = y
	}

	months, err := h.stats.MonthlyRevenue(c.Request.Context(), year)
	if err != nil {
		internalError(c, h.logger, "Failed to compute chart", err)
		return
	}
	c.JSON(http.StatusOK, months)
}

// StreamStats pushes the dashboard figures as server-sent events, first the
// current values and then one event per change.
func (h *AdminHandler) StreamStats(c *gin.Context) {
	ctx := c.Request.Context()
	current, err := h.stats.Recompute(ctx)
	if err != nil {
		internalError(c, h.logger, "Failed to compute stats", err)
		return
	}

	updates, cancel := h.stats.Subscribe()
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("stats", current)
	c.Writer.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-updates:
			if !ok {
				return
			}
			c.SSEvent("stats", s)
			c.Writer.Flush()
		}
	}
}
