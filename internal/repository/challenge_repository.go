package repository

import (
	"context"
	"errors"
	"time"

	"clauth/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateChallenge creates a new challenge
func (r *Repository) CreateChallenge(ctx context.Context, challenge *models.Challenge) error {
	return r.db.WithContext(ctx).Create(challenge).Error
}

// GetChallengeByID retrieves a challenge by ID
func (r *Repository) GetChallengeByID(ctx context.Context, id uuid.UUID) (*models.Challenge, error) {
	var challenge models.Challenge
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&challenge).Error
	if err != nil {
		return nil, err
	}
	return &challenge, nil
}

// GetChallengeBetween retrieves the challenge whose date falls inside the
// given half-open window. Callers bracket a full Eastern calendar day.
func (r *Repository) GetChallengeBetween(ctx context.Context, from, to time.Time) (*models.Challenge, error) {
	var challenge models.Challenge
	err := r.db.WithContext(ctx).
		Where("date >= ? AND date < ?", from, to).
		First(&challenge).Error
	if err != nil {
		return nil, err
	}
	return &challenge, nil
}

// GetRoomsForChallenge retrieves all rooms for a challenge ordered by room number
func (r *Repository) GetRoomsForChallenge(ctx context.Context, challengeID uuid.UUID) ([]models.CompetitionRoom, error) {
	var rooms []models.CompetitionRoom
	err := r.db.WithContext(ctx).
		Where("challenge_id = ?", challengeID).
		Order("room_number ASC").
		Find(&rooms).Error
	return rooms, err
}

// GetRoomByID retrieves a room by ID
func (r *Repository) GetRoomByID(ctx context.Context, id uuid.UUID) (*models.CompetitionRoom, error) {
	var room models.CompetitionRoom
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&room).Error
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// LockRoom re-reads a room under FOR UPDATE so the capacity check and the
// participant insert are serialized per room. Only meaningful inside a
// transaction-bound Repository. sqlite has no row locks; its single-writer
// model serializes transactions for us there.
func (r *Repository) LockRoom(ctx context.Context, id uuid.UUID) (*models.CompetitionRoom, error) {
	query := r.db.WithContext(ctx)
	if r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var room models.CompetitionRoom
	err := query.Where("id = ?", id).First(&room).Error
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// CreateRoom creates a new competition room
func (r *Repository) CreateRoom(ctx context.Context, room *models.CompetitionRoom) error {
	return r.db.WithContext(ctx).Create(room).Error
}

// MaxRoomNumber returns the highest room number assigned for a challenge,
// zero when no rooms exist yet.
func (r *Repository) MaxRoomNumber(ctx context.Context, challengeID uuid.UUID) (int, error) {
	var max *int
	err := r.db.WithContext(ctx).
		Model(&models.CompetitionRoom{}).
		Where("challenge_id = ?", challengeID).
		Select("MAX(room_number)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}

// CountParticipants counts participants assigned to a room
func (r *Repository) CountParticipants(ctx context.Context, roomID uuid.UUID) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.CompetitionParticipant{}).
		Where("room_id = ?", roomID).
		Count(&count).Error
	return int(count), err
}

// CreateParticipant records a room assignment
func (r *Repository) CreateParticipant(ctx context.Context, participant *models.CompetitionParticipant) error {
	return r.db.WithContext(ctx).Create(participant).Error
}

// GetParticipantRoom finds the room a user is already assigned to within a
// challenge, across all of that challenge's rooms. Returns nil when the
// user has no assignment yet.
func (r *Repository) GetParticipantRoom(ctx context.Context, challengeID, userID uuid.UUID) (*models.CompetitionRoom, error) {
	var room models.CompetitionRoom
	err := r.db.WithContext(ctx).
		Joins("JOIN competition_participants ON competition_participants.room_id = competition_rooms.id").
		Where("competition_rooms.challenge_id = ? AND competition_participants.user_id = ?", challengeID, userID).
		First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &room, nil
}

// RoomStatsRow is the scan target for the per-room aggregation.
type RoomStatsRow struct {
	RoomID           uuid.UUID
	RoomNumber       int
	MaxParticipants  int
	ParticipantCount int
	SubmissionCount  int
}

// GetChallengeRoomStats aggregates participant and submission counts per
// room for a challenge. Pure read, no mutation.
func (r *Repository) GetChallengeRoomStats(ctx context.Context, challengeID uuid.UUID) ([]RoomStatsRow, error) {
	var rows []RoomStatsRow
	err := r.db.WithContext(ctx).
		Table("competition_rooms r").
		Select(`r.id as room_id,
			r.room_number,
			r.max_participants,
			COUNT(DISTINCT p.id) as participant_count,
			COUNT(DISTINCT s.id) as submission_count`).
		Joins("LEFT JOIN competition_participants p ON p.room_id = r.id").
		Joins("LEFT JOIN challenge_submissions s ON s.competition_room_id = r.id").
		Where("r.challenge_id = ?", challengeID).
		Group("r.id, r.room_number, r.max_participants").
		Order("r.room_number ASC").
		Scan(&rows).Error
	return rows, err
}

// CreateSubmission creates a challenge submission
func (r *Repository) CreateSubmission(ctx context.Context, submission *models.ChallengeSubmission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

// GetSubmissionByID retrieves a submission by ID
func (r *Repository) GetSubmissionByID(ctx context.Context, id uuid.UUID) (*models.ChallengeSubmission, error) {
	var submission models.ChallengeSubmission
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&submission).Error
	if err != nil {
		return nil, err
	}
	return &submission, nil
}

// GetUserSubmission retrieves a user's submission for a challenge, nil when
// the user has not entered yet.
func (r *Repository) GetUserSubmission(ctx context.Context, challengeID, userID uuid.UUID) (*models.ChallengeSubmission, error) {
	var submission models.ChallengeSubmission
	err := r.db.WithContext(ctx).
		Where("challenge_id = ? AND user_id = ?", challengeID, userID).
		First(&submission).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &submission, nil
}

// UpdateSubmission updates a submission
func (r *Repository) UpdateSubmission(ctx context.Context, submission *models.ChallengeSubmission) error {
	return r.db.WithContext(ctx).Save(submission).Error
}

// GetUpvote retrieves an upvote row for a (submission, user) pair, nil when absent
func (r *Repository) GetUpvote(ctx context.Context, submissionID, userID uuid.UUID) (*models.SubmissionUpvote, error) {
	var upvote models.SubmissionUpvote
	err := r.db.WithContext(ctx).
		Where("submission_id = ? AND user_id = ?", submissionID, userID).
		First(&upvote).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &upvote, nil
}

// CreateUpvote records an upvote
func (r *Repository) CreateUpvote(ctx context.Context, upvote *models.SubmissionUpvote) error {
	return r.db.WithContext(ctx).Create(upvote).Error
}

// DeleteUpvote removes an upvote row
func (r *Repository) DeleteUpvote(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.SubmissionUpvote{}, "id = ?", id).Error
}

// CountUpvotes counts upvotes on a submission
func (r *Repository) CountUpvotes(ctx context.Context, submissionID uuid.UUID) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.SubmissionUpvote{}).
		Where("submission_id = ?", submissionID).
		Count(&count).Error
	return int(count), err
}

// CountDistinctUpvotedOthers counts how many distinct submissions by OTHER
// authors within the challenge the user has upvoted. Drives eligibility.
func (r *Repository) CountDistinctUpvotedOthers(ctx context.Context, challengeID, userID uuid.UUID) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Table("submission_upvotes u").
		Joins("JOIN challenge_submissions s ON s.id = u.submission_id").
		Where("s.challenge_id = ? AND u.user_id = ? AND s.user_id <> ?", challengeID, userID, userID).
		Distinct("u.submission_id").
		Count(&count).Error
	return int(count), err
}

// VoterCountRow maps a voting user to how many distinct other-author
// submissions they upvoted within one challenge.
type VoterCountRow struct {
	UserID uuid.UUID
	Voted  int
}

// VoterCountsForChallenge aggregates CountDistinctUpvotedOthers for every
// voter in a challenge in one query, for ranking reads.
func (r *Repository) VoterCountsForChallenge(ctx context.Context, challengeID uuid.UUID) ([]VoterCountRow, error) {
	var rows []VoterCountRow
	err := r.db.WithContext(ctx).
		Table("submission_upvotes u").
		Select("u.user_id, COUNT(DISTINCT u.submission_id) as voted").
		Joins("JOIN challenge_submissions s ON s.id = u.submission_id").
		Where("s.challenge_id = ? AND s.user_id <> u.user_id", challengeID).
		Group("u.user_id").
		Scan(&rows).Error
	return rows, err
}

// SubmissionCountRow is a submission joined with its upvote count.
type SubmissionCountRow struct {
	models.ChallengeSubmission
	Upvotes int
}

// SubmissionsWithCounts lists a challenge's submissions with their upvote
// counts, ordered by count descending then submission time ascending.
// Room scope is applied when roomID is non-nil.
func (r *Repository) SubmissionsWithCounts(ctx context.Context, challengeID uuid.UUID, roomID *uuid.UUID) ([]SubmissionCountRow, error) {
	query := r.db.WithContext(ctx).
		Table("challenge_submissions s").
		Select("s.*, COUNT(u.id) as upvotes").
		Joins("LEFT JOIN submission_upvotes u ON u.submission_id = s.id").
		Where("s.challenge_id = ?", challengeID)

	if roomID != nil {
		query = query.Where("s.competition_room_id = ?", *roomID)
	}

	var rows []SubmissionCountRow
	err := query.
		Group("s.id").
		Order("upvotes DESC, s.submitted_at ASC").
		Scan(&rows).Error
	return rows, err
}

// CreateWinner writes one finalized winner row
func (r *Repository) CreateWinner(ctx context.Context, winner *models.ChallengeWinner) error {
	return r.db.WithContext(ctx).Create(winner).Error
}

// GetWinners retrieves the finalized winner snapshot for a challenge
func (r *Repository) GetWinners(ctx context.Context, challengeID uuid.UUID) ([]models.ChallengeWinner, error) {
	var winners []models.ChallengeWinner
	err := r.db.WithContext(ctx).
		Where("challenge_id = ?", challengeID).
		Order("rank ASC").
		Find(&winners).Error
	return winners, err
}

// ChallengesNeedingFinalize lists challenges whose voting window has closed
// but which have no winner snapshot yet.
func (r *Repository) ChallengesNeedingFinalize(ctx context.Context, now time.Time, limit int) ([]models.Challenge, error) {
	var challenges []models.Challenge
	err := r.db.WithContext(ctx).
		Where("COALESCE(competition_end, submission_deadline) < ?", now).
		Where("finalized_at IS NULL").
		Order("date ASC").
		Limit(limit).
		Find(&challenges).Error
	return challenges, err
}

// MarkChallengeFinalized stamps a challenge's winner snapshot as written
func (r *Repository) MarkChallengeFinalized(ctx context.Context, challengeID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Challenge{}).
		Where("id = ?", challengeID).
		Update("finalized_at", at).Error
}

// CreateUser creates an identity row
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// GetUserByID retrieves a user by ID
func (r *Repository) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}
