package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clauth/internal/models"
	"clauth/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PhaseService resolves a challenge's time phase. All day bracketing runs
// in a single fixed timezone so a "day" is unambiguous regardless of the
// caller's locale.
type PhaseService struct {
	repo *repository.Repository
	loc  *time.Location
}

func NewPhaseService(repo *repository.Repository) (*PhaseService, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, fmt.Errorf("failed to load competition timezone: %w", err)
	}
	return &PhaseService{repo: repo, loc: loc}, nil
}

// Location exposes the competition timezone for callers that parse dates.
func (ps *PhaseService) Location() *time.Location {
	return ps.loc
}

// ResolvePhase computes the current phase for a challenge. Callers must
// gate disclosure with IsRevealed before handing phase data to non-admins.
func (ps *PhaseService) ResolvePhase(challenge *models.Challenge, now time.Time) models.PhaseInfo {
	submissionsOpen := now.Before(challenge.SubmissionDeadline)
	votingDeadline := challenge.VotingDeadline()
	votingOpen := now.Before(votingDeadline)

	info := models.PhaseInfo{
		SubmissionsOpen: submissionsOpen,
		VotingOpen:      votingOpen,
	}

	switch {
	case submissionsOpen:
		info.Phase = models.PhaseSubmission
		info.TimeRemaining = challenge.SubmissionDeadline.Sub(now)
	case votingOpen:
		info.Phase = models.PhaseVoting
		info.TimeRemaining = votingDeadline.Sub(now)
	default:
		info.Phase = models.PhaseEnded
		info.TimeRemaining = 0
	}

	return info
}

// IsRevealed reports whether a challenge may be disclosed to the caller.
// A future CompetitionStart hides the challenge entirely from non-admins;
// this is a disclosure control, not a display state.
func (ps *PhaseService) IsRevealed(challenge *models.Challenge, now time.Time, isAdmin bool) bool {
	if isAdmin {
		return true
	}
	if challenge.CompetitionStart != nil && now.Before(*challenge.CompetitionStart) {
		return false
	}
	return true
}

// DayBounds brackets the full Eastern calendar day containing t.
func (ps *PhaseService) DayBounds(t time.Time) (time.Time, time.Time) {
	local := t.In(ps.loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, ps.loc)
	return start, start.AddDate(0, 0, 1)
}

// ParseDay parses a YYYY-MM-DD string as an Eastern calendar day.
func (ps *PhaseService) ParseDay(day string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, ps.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", day, err)
	}
	return t, nil
}

// ChallengeByID looks up a challenge by id. An unknown id returns
// (nil, nil), not an error.
func (ps *PhaseService) ChallengeByID(ctx context.Context, id uuid.UUID) (*models.Challenge, error) {
	challenge, err := ps.repo.GetChallengeByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return challenge, nil
}

// ChallengeForDay looks up the challenge for the Eastern calendar day
// containing t. A day without a challenge returns (nil, nil), not an error.
func (ps *PhaseService) ChallengeForDay(ctx context.Context, t time.Time) (*models.Challenge, error) {
	from, to := ps.DayBounds(t)
	challenge, err := ps.repo.GetChallengeBetween(ctx, from, to)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return challenge, nil
}
