package services

import (
	"context"
	"fmt"

	"clauth/internal/cache"
	"clauth/internal/models"
	"clauth/internal/repository"

	"github.com/google/uuid"
)

// RankingService orders submissions by upvote count (ties broken by
// earliest submission) and selects competition winners among eligible
// entrants.
type RankingService struct {
	repo                 *repository.Repository
	leaderboards         *cache.LeaderboardCache
	eligibilityThreshold int
}

func NewRankingService(repo *repository.Repository, leaderboards *cache.LeaderboardCache, eligibilityThreshold int) *RankingService {
	return &RankingService{
		repo:                 repo,
		leaderboards:         leaderboards,
		eligibilityThreshold: eligibilityThreshold,
	}
}

// rank builds the ordered submission list for a challenge, room-scoped when
// roomID is non-nil. Eligibility is recomputed from the live upvote ledger
// on every call; it is derived state, never trusted from storage.
func (rs *RankingService) rank(ctx context.Context, challengeID uuid.UUID, roomID *uuid.UUID) ([]models.RankedSubmission, error) {
	rows, err := rs.repo.SubmissionsWithCounts(ctx, challengeID, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to load submissions: %w", err)
	}

	voterRows, err := rs.repo.VoterCountsForChallenge(ctx, challengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load voter counts: %w", err)
	}
	votesCast := make(map[uuid.UUID]int, len(voterRows))
	for _, row := range voterRows {
		votesCast[row.UserID] = row.Voted
	}

	ranked := make([]models.RankedSubmission, 0, len(rows))
	for _, row := range rows {
		ranked = append(ranked, models.RankedSubmission{
			Submission: row.ChallengeSubmission,
			Upvotes:    row.Upvotes,
			Eligible:   votesCast[row.ChallengeSubmission.UserID] >= rs.eligibilityThreshold,
		})
	}
	return ranked, nil
}

// RankGlobal orders all of a challenge's submissions.
func (rs *RankingService) RankGlobal(ctx context.Context, challengeID uuid.UUID) ([]models.RankedSubmission, error) {
	return rs.rank(ctx, challengeID, nil)
}

// RankRoom orders one room's submissions.
func (rs *RankingService) RankRoom(ctx context.Context, challengeID, roomID uuid.UUID) ([]models.RankedSubmission, error) {
	return rs.rank(ctx, challengeID, &roomID)
}

// TopWinners selects the top n eligible, room-assigned submissions and
// attaches ranks 1..n. Winning requires eligibility; browsing does not.
func (rs *RankingService) TopWinners(ctx context.Context, challengeID uuid.UUID, n int) ([]models.RankedSubmission, error) {
	ranked, err := rs.rank(ctx, challengeID, nil)
	if err != nil {
		return nil, err
	}

	winners := make([]models.RankedSubmission, 0, n)
	for _, entry := range ranked {
		if !entry.Eligible || entry.Submission.CompetitionRoomID == nil {
			continue
		}
		entry.Rank = len(winners) + 1
		winners = append(winners, entry)
		if len(winners) == n {
			break
		}
	}
	return winners, nil
}

// TopSubmissions is the general leaderboard: same ordering, no eligibility
// filter. Served from the redis cache when available.
func (rs *RankingService) TopSubmissions(ctx context.Context, challengeID uuid.UUID, limit int) ([]models.RankedSubmission, error) {
	if cached, ok := rs.leaderboards.GetTopSubmissions(ctx, challengeID, limit); ok {
		return cached, nil
	}

	ranked, err := rs.rank(ctx, challengeID, nil)
	if err != nil {
		return nil, err
	}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	rs.leaderboards.SetTopSubmissions(ctx, challengeID, limit, ranked)
	return ranked, nil
}

// PastWinners serves the finalized snapshot when the finalizer has run,
// falling back to a live computation for challenges not yet finalized.
func (rs *RankingService) PastWinners(ctx context.Context, challengeID uuid.UUID, n int) ([]models.ChallengeWinner, error) {
	winners, err := rs.repo.GetWinners(ctx, challengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load winner snapshot: %w", err)
	}
	if len(winners) > 0 {
		return winners, nil
	}

	ranked, err := rs.TopWinners(ctx, challengeID, n)
	if err != nil {
		return nil, err
	}

	live := make([]models.ChallengeWinner, 0, len(ranked))
	for _, entry := range ranked {
		live = append(live, models.ChallengeWinner{
			ChallengeID:  challengeID,
			SubmissionID: entry.Submission.ID,
			UserID:       entry.Submission.UserID,
			Rank:         entry.Rank,
			Upvotes:      entry.Upvotes,
		})
	}
	return live, nil
}
