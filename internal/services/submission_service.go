package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clauth/internal/apperrors"
	"clauth/internal/models"
	"clauth/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SubmissionService enforces the one-submission-per-user-per-challenge
// ledger and the upvote toggle, and derives competition eligibility.
type SubmissionService struct {
	repo                 *repository.Repository
	phases               *PhaseService
	rooms                *RoomService
	eligibilityThreshold int
}

func NewSubmissionService(repo *repository.Repository, phases *PhaseService, rooms *RoomService, eligibilityThreshold int) *SubmissionService {
	return &SubmissionService{
		repo:                 repo,
		phases:               phases,
		rooms:                rooms,
		eligibilityThreshold: eligibilityThreshold,
	}
}

// SubmitDesign records a user's single entry for a challenge and assigns
// them to a competition room. The duplicate check is global across rooms.
func (ss *SubmissionService) SubmitDesign(ctx context.Context, user models.AuthenticatedUser, req *models.SubmitDesignRequest) (*models.ChallengeSubmission, error) {
	challenge, err := ss.repo.GetChallengeByID(ctx, req.ChallengeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Wrap(apperrors.ErrNotFound, "challenge %s", req.ChallengeID)
		}
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}

	now := time.Now()
	if !ss.phases.IsRevealed(challenge, now, user.IsAdmin()) {
		// Unrevealed challenges do not exist as far as regular users know
		return nil, apperrors.Wrap(apperrors.ErrNotFound, "challenge %s", req.ChallengeID)
	}

	if info := ss.phases.ResolvePhase(challenge, now); !info.SubmissionsOpen {
		return nil, apperrors.Wrap(apperrors.ErrConflict, "submissions are closed for this challenge")
	}

	existing, err := ss.repo.GetUserSubmission(ctx, challenge.ID, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing submission: %w", err)
	}
	if existing != nil {
		return nil, apperrors.Wrap(apperrors.ErrConflict, "already submitted to this challenge")
	}

	room, err := ss.rooms.AssignParticipant(ctx, challenge.ID, user.ID)
	if err != nil {
		return nil, err
	}

	submission := &models.ChallengeSubmission{
		ID:                uuid.New(),
		ChallengeID:       challenge.ID,
		UserID:            user.ID,
		OutfitDescription: req.OutfitDescription,
		GeneratedImageURL: req.GeneratedImageURL,
		CompetitionRoomID: &room.ID,
		SubmittedAt:       now,
	}

	if err := ss.repo.CreateSubmission(ctx, submission); err != nil {
		if repository.IsUniqueViolation(err) {
			// Lost a race against the same user's double-submit
			return nil, apperrors.Wrap(apperrors.ErrConflict, "already submitted to this challenge")
		}
		return nil, fmt.Errorf("failed to create submission: %w", err)
	}

	return submission, nil
}

// ToggleUpvote casts or retracts the caller's vote on a submission.
// Self-votes are rejected. The read-check-write runs inside a transaction
// with the unique (submission_id, user_id) index as backstop, so a
// concurrent double-click cannot double-count.
func (ss *SubmissionService) ToggleUpvote(ctx context.Context, submissionID, userID uuid.UUID) (*models.UpvoteToggleResult, error) {
	submission, err := ss.repo.GetSubmissionByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Wrap(apperrors.ErrNotFound, "submission %s", submissionID)
		}
		return nil, fmt.Errorf("failed to load submission: %w", err)
	}

	if submission.UserID == userID {
		return nil, apperrors.Wrap(apperrors.ErrForbidden, "cannot upvote your own submission")
	}

	challenge, err := ss.repo.GetChallengeByID(ctx, submission.ChallengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}
	if info := ss.phases.ResolvePhase(challenge, time.Now()); info.Phase == models.PhaseEnded {
		return nil, apperrors.Wrap(apperrors.ErrConflict, "voting has ended for this challenge")
	}

	var upvoted bool
	err = ss.repo.Transaction(ctx, func(tx *repository.Repository) error {
		existing, err := tx.GetUpvote(ctx, submissionID, userID)
		if err != nil {
			return err
		}

		if existing != nil {
			upvoted = false
			return tx.DeleteUpvote(ctx, existing.ID)
		}

		upvoted = true
		return tx.CreateUpvote(ctx, &models.SubmissionUpvote{
			ID:           uuid.New(),
			SubmissionID: submissionID,
			UserID:       userID,
			CreatedAt:    time.Now(),
		})
	})
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, apperrors.Wrap(apperrors.ErrConflict, "vote already recorded")
		}
		return nil, fmt.Errorf("failed to toggle upvote: %w", err)
	}

	count, err := ss.repo.CountUpvotes(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to count upvotes: %w", err)
	}

	return &models.UpvoteToggleResult{
		SubmissionID: submissionID,
		Upvoted:      upvoted,
		UpvoteCount:  count,
	}, nil
}

// EligibleForCompetition reports whether a user qualifies for winner
// ranking in a challenge: they must have upvoted at least the threshold
// number of distinct other-author submissions. Derived state, recomputed
// whenever it is consulted.
func (ss *SubmissionService) EligibleForCompetition(ctx context.Context, challengeID, userID uuid.UUID) (bool, error) {
	voted, err := ss.repo.CountDistinctUpvotedOthers(ctx, challengeID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to count votes cast: %w", err)
	}
	return voted >= ss.eligibilityThreshold, nil
}

// UserSubmission returns the caller's entry for a challenge, nil when they
// have not entered.
func (ss *SubmissionService) UserSubmission(ctx context.Context, challengeID, userID uuid.UUID) (*models.ChallengeSubmission, error) {
	return ss.repo.GetUserSubmission(ctx, challengeID, userID)
}
