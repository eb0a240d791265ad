package handlers

import (
	"net/http"
	"time"

	"clauth/internal/auth"
	"clauth/internal/models"
	"clauth/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ChallengeHandler struct {
	phases      *services.PhaseService
	rooms       *services.RoomService
	submissions *services.SubmissionService
	ranking     *services.RankingService
}

func NewChallengeHandler(
	phases *services.PhaseService,
	rooms *services.RoomService,
	submissions *services.SubmissionService,
	ranking *services.RankingService,
) *ChallengeHandler {
	return &ChallengeHandler{
		phases:      phases,
		rooms:       rooms,
		submissions: submissions,
		ranking:     ranking,
	}
}

// CurrentChallenge resolves the phase for today's challenge
// GET /api/challenges/current
func (h *ChallengeHandler) CurrentChallenge(c *gin.Context) {
	user, ok := auth.GetUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	now := time.Now()
	challenge, err := h.phases.ChallengeForDay(c.Request.Context(), now)
	if err != nil {
		respondError(c, err)
		return
	}

	// A missing challenge and an unrevealed one look identical to regular
	// users: there is no challenge today.
	if challenge == nil || !h.phases.IsRevealed(challenge, now, user.IsAdmin()) {
		c.JSON(http.StatusOK, gin.H{"challenge": nil})
		return
	}

	info := h.phases.ResolvePhase(challenge, now)

	submission, err := h.submissions.UserSubmission(c.Request.Context(), challenge.ID, user.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"challenge":      challenge,
		"phase":          info,
		"my_submission":  submission,
		"time_remaining": info.TimeRemaining.Seconds(),
	})
}

// MyCompetitionRoom looks up, or idempotently creates, the caller's room
// assignment for today's challenge
// GET /api/challenges/my-competition-room
func (h *ChallengeHandler) MyCompetitionRoom(c *gin.Context) {
	user, ok := auth.GetUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	now := time.Now()
	challenge, err := h.phases.ChallengeForDay(c.Request.Context(), now)
	if err != nil {
		respondError(c, err)
		return
	}
	if challenge == nil || !h.phases.IsRevealed(challenge, now, user.IsAdmin()) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no challenge today"})
		return
	}

	room, err := h.rooms.AssignParticipant(c.Request.Context(), challenge.ID, user.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	ranked, err := h.ranking.RankRoom(c.Request.Context(), challenge.ID, room.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"room":        room,
		"submissions": ranked,
	})
}

// SubmitDesign creates the caller's submission for a challenge
// POST /api/challenges/submit-design
func (h *ChallengeHandler) SubmitDesign(c *gin.Context) {
	user, ok := auth.GetUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req models.SubmitDesignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	submission, err := h.submissions.SubmitDesign(c.Request.Context(), user, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, submission)
}

// ToggleUpvote casts or retracts the caller's vote on a submission
// POST /api/submissions/:id/upvote
func (h *ChallengeHandler) ToggleUpvote(c *gin.Context) {
	user, ok := auth.GetUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	submissionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid submission id"})
		return
	}

	result, err := h.submissions.ToggleUpvote(c.Request.Context(), submissionID, user.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// PastTopWinners returns the winners for a past challenge day
// GET /api/challenges/past/:date/top-winners
func (h *ChallengeHandler) PastTopWinners(c *gin.Context) {
	user, ok := auth.GetUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	day, err := h.phases.ParseDay(c.Param("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, expected YYYY-MM-DD"})
		return
	}

	challenge, err := h.phases.ChallengeForDay(c.Request.Context(), day)
	if err != nil {
		respondError(c, err)
		return
	}
	if challenge == nil || !h.phases.IsRevealed(challenge, time.Now(), user.IsAdmin()) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no challenge for that date"})
		return
	}

	winners, err := h.ranking.PastWinners(c.Request.Context(), challenge.ID, 3)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"challenge": challenge,
		"winners":   winners,
	})
}

// Leaderboard returns the general leaderboard for a challenge, all
// submissions included regardless of eligibility
// GET /api/challenges/:id/leaderboard
func (h *ChallengeHandler) Leaderboard(c *gin.Context) {
	user, ok := auth.GetUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	challengeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid challenge id"})
		return
	}

	// Direct id lookups get the same disclosure gate as date lookups, or
	// an unrevealed challenge's submissions leak through its id.
	challenge, err := h.phases.ChallengeByID(c.Request.Context(), challengeID)
	if err != nil {
		respondError(c, err)
		return
	}
	if challenge == nil || !h.phases.IsRevealed(challenge, time.Now(), user.IsAdmin()) {
		c.JSON(http.StatusNotFound, gin.H{"error": "challenge not found"})
		return
	}

	limit := 50
	ranked, err := h.ranking.TopSubmissions(c.Request.Context(), challengeID, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"submissions": ranked})
}
