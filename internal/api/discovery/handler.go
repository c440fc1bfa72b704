// Package discovery provides REST API handlers for the discovery and
// gamification engine: leaderboards, trending lists, recommendations,
// preference profiles, badges and the points pipeline.
package discovery

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/givehub/discovery-engine/internal/models"
	"github.com/givehub/discovery-engine/internal/service/badges"
	"github.com/givehub/discovery-engine/internal/service/leaderboard"
	"github.com/givehub/discovery-engine/internal/service/points"
	"github.com/givehub/discovery-engine/internal/service/preferences"
	"github.com/givehub/discovery-engine/internal/service/recommend"
	"github.com/givehub/discovery-engine/internal/service/trending"
	"github.com/givehub/discovery-engine/pkg/logger"
)

// LeaderboardService interface for ranking operations.
type LeaderboardService interface {
	GetLeaderboard(ctx context.Context, category leaderboard.Category, period leaderboard.Period, limit int, requestingUserID uint) (*leaderboard.Result, error)
	GetUserRank(ctx context.Context, userID uint, category leaderboard.Category, period leaderboard.Period) (*leaderboard.Entry, error)
	GetNearbyUsers(ctx context.Context, userID uint, category leaderboard.Category, period leaderboard.Period, rng int) ([]leaderboard.Entry, error)
	GetUserStats(ctx context.Context, userID uint) (*leaderboard.UserStats, error)
}

// TrendingService interface for trending lists.
type TrendingService interface {
	GetTrendingNeeds(ctx context.Context, period trending.Period, limit int) ([]trending.TrendingNeed, error)
	GetTrendingUsers(ctx context.Context, period trending.Period, limit int) ([]trending.TrendingUser, error)
	GetTrendingTags(ctx context.Context, period trending.Period, limit int) ([]trending.TrendingTag, error)
}

// RecommendationService interface for recommendation operations.
type RecommendationService interface {
	RecommendNeeds(ctx context.Context, userID uint, strategy recommend.Strategy, limit int) ([]recommend.NeedRecommendation, error)
	RecommendUsers(ctx context.Context, userID uint, limit int) ([]recommend.UserRecommendation, error)
	RecommendTeams(ctx context.Context, userID uint, limit int) ([]recommend.TeamRecommendation, error)
}

// PreferenceService interface for profile building.
type PreferenceService interface {
	BuildProfile(ctx context.Context, userID uint) (*preferences.Profile, error)
}

// BadgeService interface for badge reads.
type BadgeService interface {
	GetUserBadges(ctx context.Context, userID uint) ([]models.UserBadge, error)
	Catalog(ctx context.Context) ([]badges.CatalogBadge, error)
}

// PointsService interface for the award pipeline and reconciliation.
type PointsService interface {
	Award(ctx context.Context, userID uint, action models.Action, opts points.AwardOptions) (*models.PointTransaction, error)
	Penalize(ctx context.Context, userID uint, pts int, description string) (*models.PointTransaction, error)
	RecomputeFromLedger(ctx context.Context, userID uint) (*models.UserAggregate, error)
	VerifyAggregate(ctx context.Context, userID uint) (bool, error)
}

// Handler handles discovery API requests.
type Handler struct {
	leaderboardService    LeaderboardService
	trendingService       TrendingService
	recommendationService RecommendationService
	preferenceService     PreferenceService
	badgeService          BadgeService
	pointsService         PointsService
	log                   *logger.Logger
}

// NewHandler creates a new discovery handler.
func NewHandler(
	leaderboardService *leaderboard.Service,
	trendingService *trending.Service,
	recommendationService *recommend.Service,
	preferenceService *preferences.Service,
	badgeService *badges.Service,
	pointsService *points.Service,
	log *logger.Logger,
) *Handler {
	return NewHandlerWithInterfaces(leaderboardService, trendingService, recommendationService, preferenceService, badgeService, pointsService, log)
}

// NewHandlerWithInterfaces creates a new discovery handler with interface
// dependencies (useful for testing).
func NewHandlerWithInterfaces(
	leaderboardService LeaderboardService,
	trendingService TrendingService,
	recommendationService RecommendationService,
	preferenceService PreferenceService,
	badgeService BadgeService,
	pointsService PointsService,
	log *logger.Logger,
) *Handler {
	return &Handler{
		leaderboardService:    leaderboardService,
		trendingService:       trendingService,
		recommendationService: recommendationService,
		preferenceService:     preferenceService,
		badgeService:          badgeService,
		pointsService:         pointsService,
		log:                   log,
	}
}

// RegisterRoutes mounts the discovery API under /api/v1.
func (h *Handler) RegisterRoutes(router gin.IRouter) {
	v1 := router.Group("/api/v1")
	{
		v1.GET("/leaderboard", h.GetLeaderboard)
		v1.GET("/leaderboard/nearby", h.GetNearbyUsers)
		v1.GET("/trending/:kind", h.GetTrending)
		v1.GET("/badges", h.GetBadgeCatalog)
		v1.GET("/users/:id/rank", h.GetUserRank)
		v1.GET("/users/:id/stats", h.GetUserStats)
		v1.GET("/users/:id/badges", h.GetUserBadges)
		v1.GET("/users/:id/preferences", h.GetUserPreferences)
		v1.GET("/recommendations/:kind", h.GetRecommendations)
		v1.POST("/users/:id/points", h.AwardPoints)
		v1.POST("/users/:id/reconcile", h.ReconcileUser)
	}
}

// GetLeaderboard returns a ranked leaderboard slice.
// GET /api/v1/leaderboard?category=points&period=all_time&limit=10&user_id=1.
func (h *Handler) GetLeaderboard(c *gin.Context) {
	category := leaderboard.ParseCategory(c.DefaultQuery("category", "points"))
	period := leaderboard.ParsePeriod(c.DefaultQuery("period", "all_time"))
	limit, err := h.parseLimit(c, 10)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	requestingUserID, err := h.parseOptionalUserID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := context.Background()
	result, err := h.leaderboardService.GetLeaderboard(ctx, category, period, limit, requestingUserID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get leaderboard")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve leaderboard")
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetNearbyUsers returns the entries ranked around a user.
// GET /api/v1/leaderboard/nearby?user_id=1&category=points&period=all_time&range=2.
func (h *Handler) GetNearbyUsers(c *gin.Context) {
	userID, err := h.parseOptionalUserID(c)
	if err != nil || userID == 0 {
		h.errorResponse(c, http.StatusBadRequest, "user_id parameter is required")
		return
	}
	category := leaderboard.ParseCategory(c.DefaultQuery("category", "points"))
	period := leaderboard.ParsePeriod(c.DefaultQuery("period", "all_time"))
	rng, err := h.parsePositiveInt(c, "range", 5)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := context.Background()
	entries, err := h.leaderboardService.GetNearbyUsers(ctx, userID, category, period, rng)
	if err != nil {
		h.log.Error().Err(err).Uint("user_id", userID).Msg("Failed to get nearby users")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve nearby users")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":      userID,
		"category":     category,
		"period":       period,
		"entries":      entries,
		"generated_at": time.Now().UTC(),
	})
}

// GetUserRank returns a user's rank entry, or 404 when the user has no rank
// in the requested result set. A missing rank is distinct from a zero score.
// GET /api/v1/users/:id/rank?category=points&period=all_time.
func (h *Handler) GetUserRank(c *gin.Context) {
	userID, err := h.parseUserID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	category := leaderboard.ParseCategory(c.DefaultQuery("category", "points"))
	period := leaderboard.ParsePeriod(c.DefaultQuery("period", "all_time"))

	ctx := context.Background()
	entry, err := h.leaderboardService.GetUserRank(ctx, userID, category, period)
	if err != nil {
		h.log.Error().Err(err).Uint("user_id", userID).Msg("Failed to get user rank")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve user rank")
		return
	}
	if entry == nil {
		h.errorResponse(c, http.StatusNotFound, "User has no rank for this category and period")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"category":     category,
		"period":       period,
		"entry":        entry,
		"generated_at": time.Now().UTC(),
	})
}

// GetUserStats returns a user's aggregate snapshot with badges, global rank
// and windowed activity.
// GET /api/v1/users/:id/stats.
func (h *Handler) GetUserStats(c *gin.Context) {
	userID, err := h.parseUserID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := context.Background()
	stats, err := h.leaderboardService.GetUserStats(ctx, userID)
	if err != nil {
		h.log.Error().Err(err).Uint("user_id", userID).Msg("Failed to get user stats")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve user statistics")
		return
	}
	if stats == nil {
		h.errorResponse(c, http.StatusNotFound, "User has no recorded activity")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stats":        stats,
		"generated_at": time.Now().UTC(),
	})
}

// GetUserBadges returns the badges a user has earned.
// GET /api/v1/users/:id/badges.
func (h *Handler) GetUserBadges(c *gin.Context) {
	userID, err := h.parseUserID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := context.Background()
	userBadges, err := h.badgeService.GetUserBadges(ctx, userID)
	if err != nil {
		h.log.Error().Err(err).Uint("user_id", userID).Msg("Failed to get user badges")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve user badges")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":      userID,
		"badges":       userBadges,
		"total_badges": len(userBadges),
		"generated_at": time.Now().UTC(),
	})
}

// GetBadgeCatalog returns all badge definitions.
// GET /api/v1/badges.
func (h *Handler) GetBadgeCatalog(c *gin.Context) {
	ctx := context.Background()
	catalog, err := h.badgeService.Catalog(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get badge catalog")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve badge catalog")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"badges":       catalog,
		"total_badges": len(catalog),
		"generated_at": time.Now().UTC(),
	})
}

// GetUserPreferences returns a user's derived preference profile.
// GET /api/v1/users/:id/preferences.
func (h *Handler) GetUserPreferences(c *gin.Context) {
	userID, err := h.parseUserID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := context.Background()
	profile, err := h.preferenceService.BuildProfile(ctx, userID)
	if err != nil {
		h.log.Error().Err(err).Uint("user_id", userID).Msg("Failed to build preference profile")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to build preference profile")
		return
	}

	c.JSON(http.StatusOK, profile)
}

// GetTrending returns a ranked trending list for needs, users or tags.
// GET /api/v1/trending/:kind?period=24h&limit=10.
func (h *Handler) GetTrending(c *gin.Context) {
	kind := c.Param("kind")
	period := trending.ParsePeriod(c.DefaultQuery("period", "24h"))
	limit, err := h.parseLimit(c, 10)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := context.Background()
	var payload interface{}
	switch kind {
	case "needs":
		payload, err = h.trendingService.GetTrendingNeeds(ctx, period, limit)
	case "users":
		payload, err = h.trendingService.GetTrendingUsers(ctx, period, limit)
	case "tags":
		payload, err = h.trendingService.GetTrendingTags(ctx, period, limit)
	default:
		h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid trending kind: %s (valid: needs, users, tags)", kind))
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("kind", kind).Msg("Failed to get trending list")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve trending list")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"kind":         kind,
		"period":       period,
		"items":        payload,
		"generated_at": time.Now().UTC(),
	})
}

// GetRecommendations returns scored recommendations for needs, users or teams.
// GET /api/v1/recommendations/:kind?user_id=1&strategy=hybrid&limit=10.
func (h *Handler) GetRecommendations(c *gin.Context) {
	userID, err := h.parseOptionalUserID(c)
	if err != nil || userID == 0 {
		h.errorResponse(c, http.StatusBadRequest, "user_id parameter is required")
		return
	}
	kind := c.Param("kind")
	limit, err := h.parseLimit(c, 10)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := context.Background()
	var payload interface{}
	strategy := recommend.ParseStrategy(c.Query("strategy"))
	switch kind {
	case "needs":
		payload, err = h.recommendationService.RecommendNeeds(ctx, userID, strategy, limit)
	case "users":
		payload, err = h.recommendationService.RecommendUsers(ctx, userID, limit)
	case "teams":
		payload, err = h.recommendationService.RecommendTeams(ctx, userID, limit)
	default:
		h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid recommendation kind: %s (valid: needs, users, teams)", kind))
		return
	}
	if err != nil {
		h.log.Error().Err(err).Uint("user_id", userID).Str("kind", kind).Msg("Failed to get recommendations")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve recommendations")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":         userID,
		"kind":            kind,
		"strategy":        strategy,
		"recommendations": payload,
		"generated_at":    time.Now().UTC(),
	})
}

// awardRequest is the body of POST /users/:id/points.
type awardRequest struct {
	Action       string `json:"action" binding:"required"`
	Points       int    `json:"points"`
	Description  string `json:"description"`
	RelatedModel string `json:"related_model"`
	RelatedID    uint   `json:"related_id"`
}

// AwardPoints appends a scored action to a user's ledger. Negative point
// values are routed through the penalty path.
// POST /api/v1/users/:id/points.
func (h *Handler) AwardPoints(c *gin.Context) {
	userID, err := h.parseUserID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	var req awardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ctx := context.Background()
	var tx *models.PointTransaction
	if req.Points < 0 {
		tx, err = h.pointsService.Penalize(ctx, userID, -req.Points, req.Description)
	} else {
		tx, err = h.pointsService.Award(ctx, userID, models.Action(req.Action), points.AwardOptions{
			Points:       req.Points,
			Description:  req.Description,
			RelatedModel: req.RelatedModel,
			RelatedID:    req.RelatedID,
		})
	}
	if err != nil {
		h.log.Error().Err(err).Uint("user_id", userID).Str("action", req.Action).Msg("Failed to award points")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to award points")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"transaction": tx})
}

// ReconcileUser verifies a user's aggregate against a full ledger replay and
// rebuilds it when it diverges.
// POST /api/v1/users/:id/reconcile.
func (h *Handler) ReconcileUser(c *gin.Context) {
	userID, err := h.parseUserID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := context.Background()
	consistent, err := h.pointsService.VerifyAggregate(ctx, userID)
	if err != nil {
		h.log.Error().Err(err).Uint("user_id", userID).Msg("Failed to verify aggregate")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to verify aggregate")
		return
	}
	if consistent {
		c.JSON(http.StatusOK, gin.H{"user_id": userID, "consistent": true, "rebuilt": false})
		return
	}

	agg, err := h.pointsService.RecomputeFromLedger(ctx, userID)
	if err != nil {
		h.log.Error().Err(err).Uint("user_id", userID).Msg("Failed to rebuild aggregate")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to rebuild aggregate")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":    userID,
		"consistent": false,
		"rebuilt":    true,
		"aggregate":  agg,
	})
}

// Helper functions

// parseUserID extracts and validates the user ID from the URL parameter.
func (h *Handler) parseUserID(c *gin.Context) (uint, error) {
	idStr := c.Param("id")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid user ID: %s", idStr)
	}
	return uint(id), nil
}

// parseOptionalUserID reads the user_id query parameter; zero means absent.
func (h *Handler) parseOptionalUserID(c *gin.Context) (uint, error) {
	idStr := c.Query("user_id")
	if idStr == "" {
		return 0, nil
	}
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid user_id parameter: %s", idStr)
	}
	return uint(id), nil
}

// parseLimit extracts and validates the limit query parameter.
func (h *Handler) parseLimit(c *gin.Context, defaultLimit int) (int, error) {
	return h.parsePositiveInt(c, "limit", defaultLimit)
}

// parsePositiveInt reads a bounded positive integer query parameter.
func (h *Handler) parsePositiveInt(c *gin.Context, name string, defaultValue int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s parameter: %s", name, raw)
	}
	if value < 1 {
		return 0, fmt.Errorf("%s must be greater than 0", name)
	}
	if value > 1000 {
		return 0, fmt.Errorf("%s cannot exceed 1000", name)
	}
	return value, nil
}

// errorResponse sends a standardized error response.
func (h *Handler) errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}
