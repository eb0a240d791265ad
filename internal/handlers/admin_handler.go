package handlers

import (
	"net/http"
	"time"

	"clauth/internal/models"
	"clauth/internal/repository"
	"clauth/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AdminHandler carries the admin-only operational surface: challenge
// scheduling, room stats, item management and the capture/refund flows.
type AdminHandler struct {
	repo     *repository.Repository
	phases   *services.PhaseService
	rooms    *services.RoomService
	checkout *services.CheckoutService
}

func NewAdminHandler(repo *repository.Repository, phases *services.PhaseService, rooms *services.RoomService, checkout *services.CheckoutService) *AdminHandler {
	return &AdminHandler{repo: repo, phases: phases, rooms: rooms, checkout: checkout}
}

// CreateChallenge schedules a new daily challenge
// POST /api/admin/challenges
func (h *AdminHandler) CreateChallenge(c *gin.Context) {
	var req models.CreateChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	day, err := h.phases.ParseDay(req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, expected YYYY-MM-DD"})
		return
	}

	challenge := &models.Challenge{
		ID:                 uuid.New(),
		Date:               day,
		Theme:              req.Theme,
		MainItem:           req.MainItem,
		Description:        req.Description,
		SubmissionDeadline: req.SubmissionDeadline,
		CompetitionStart:   req.CompetitionStart,
		CompetitionEnd:     req.CompetitionEnd,
		CreatedAt:          time.Now(),
	}

	if err := h.repo.CreateChallenge(c.Request.Context(), challenge); err != nil {
		if repository.IsUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "a challenge already exists for that date"})
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, challenge)
}

// ChallengeRoomStats aggregates per-room participant and submission counts
// GET /api/admin/challenges/:id/rooms
func (h *AdminHandler) ChallengeRoomStats(c *gin.Context) {
	challengeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid challenge id"})
		return
	}

	stats, err := h.rooms.ChallengeRoomStats(c.Request.Context(), challengeID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"rooms": stats})
}

type createItemRequest struct {
	Name        string `json:"name" binding:"required"`
	Slug        string `json:"slug" binding:"required"`
	Description string `json:"description"`
	Price       string `json:"price" binding:"required"`
	MinimumGoal int    `json:"minimum_goal" binding:"required,min=1"`
}

// CreateItem registers a preorderable plushie item
// POST /api/admin/plushies
func (h *AdminHandler) CreateItem(c *gin.Context) {
	var req createItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.IsNegative() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid price"})
		return
	}

	item := &models.PlushieItem{
		ID:          uuid.New(),
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
		Price:       price,
		MinimumGoal: req.MinimumGoal,
		Status:      models.ItemStatusPending,
		CreatedAt:   time.Now(),
	}

	if err := h.repo.CreateItem(c.Request.Context(), item); err != nil {
		if repository.IsUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "slug already in use"})
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, item)
}

// ApproveItem runs the batch capture for an item that reached its goal
// POST /api/admin/plushies/:id/approve
func (h *AdminHandler) ApproveItem(c *gin.Context) {
	itemID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
		return
	}

	report, err := h.checkout.ApproveItem(c.Request.Context(), itemID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// RefundPreorder issues a refund for one preorder
// POST /api/admin/preorders/:id/refund
func (h *AdminHandler) RefundPreorder(c *gin.Context) {
	preorderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid preorder id"})
		return
	}

	if err := h.checkout.RefundPreorder(c.Request.Context(), preorderID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"refunded": true})
}
