package handlers

import (
	"net/http"

	"clauth/internal/auth"
	"clauth/internal/models"
	"clauth/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type CheckoutHandler struct {
	checkout *services.CheckoutService
}

func NewCheckoutHandler(checkout *services.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout}
}

// CreateCheckout opens a gateway checkout session. Authenticated callers
// checkout under their account; anonymous callers must supply a guest
// email in the payload.
// POST /api/checkout
func (h *CheckoutHandler) CreateCheckout(c *gin.Context) {
	var req models.CreateCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user *models.AuthenticatedUser
	if u, ok := auth.GetUser(c); ok {
		user = &u
	}

	session, err := h.checkout.CreateCheckout(c.Request.Context(), user, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, session)
}

// CancelPreorder deletes the caller's preorder while still pre-capture
// DELETE /api/preorders/:id
func (h *CheckoutHandler) CancelPreorder(c *gin.Context) {
	user, ok := auth.GetUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	preorderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid preorder id"})
		return
	}

	if err := h.checkout.CancelPreorder(c.Request.Context(), user, preorderID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"canceled": true})
}
