package models

import (
	"time"

	"github.com/google/uuid"
)

type ChallengePhase string

const (
	PhaseSubmission ChallengePhase = "SUBMISSION"
	PhaseVoting     ChallengePhase = "VOTING"
	PhaseEnded      ChallengePhase = "ENDED"
)

// Challenge is a single day's themed design prompt with submission and
// voting time windows. One challenge per calendar day (US Eastern).
//
// Date holds Eastern midnight as a full timestamp, not a date column: a
// date column would truncate and then compare in the session timezone,
// shifting the day-range lookup by the UTC offset. The unique index stays
// one-per-day because writers only ever store Eastern midnight.
type Challenge struct {
	ID                 uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Date               time.Time  `gorm:"uniqueIndex;not null" json:"date"`
	Theme              string     `gorm:"size:255;not null" json:"theme"`
	MainItem           string     `gorm:"size:255" json:"main_item"`
	Description        string     `gorm:"type:text" json:"description"`
	SubmissionDeadline time.Time  `gorm:"not null" json:"submission_deadline"`
	CompetitionStart   *time.Time `json:"competition_start"` // nil: visible immediately
	CompetitionEnd     *time.Time `json:"competition_end"`   // nil: falls back to SubmissionDeadline
	FinalizedAt        *time.Time `json:"finalized_at"`      // set once the winner snapshot is written
	CreatedAt          time.Time  `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Challenge) TableName() string {
	return "challenges"
}

// VotingDeadline returns CompetitionEnd, falling back to the submission
// deadline for challenges created before the field existed.
func (c *Challenge) VotingDeadline() time.Time {
	if c.CompetitionEnd != nil {
		return *c.CompetitionEnd
	}
	return c.SubmissionDeadline
}

// CompetitionRoom is a capacity-bounded bucket of participants within a
// challenge. Room numbers are contiguous per challenge, starting at 1.
type CompetitionRoom struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ChallengeID     uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_rooms_challenge_number,priority:1" json:"challenge_id"`
	RoomNumber      int       `gorm:"not null;uniqueIndex:idx_rooms_challenge_number,priority:2" json:"room_number"`
	MaxParticipants int       `gorm:"not null" json:"max_participants"`
	CreatedAt       time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (CompetitionRoom) TableName() string {
	return "competition_rooms"
}

// CompetitionParticipant records a user's assignment to a room. Uniqueness
// is scoped per room; per-challenge uniqueness needs the cross-room check
// in the room service.
type CompetitionParticipant struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RoomID     uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_participants_room_user,priority:1" json:"room_id"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_participants_room_user,priority:2" json:"user_id"`
	AssignedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"assigned_at"`
}

func (CompetitionParticipant) TableName() string {
	return "competition_participants"
}

// ChallengeWinner is the finalized winner snapshot written by the
// finalizer job once a challenge's voting window closes.
type ChallengeWinner struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ChallengeID  uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_winners_challenge_rank,priority:1" json:"challenge_id"`
	SubmissionID uuid.UUID `gorm:"type:uuid;not null" json:"submission_id"`
	UserID       uuid.UUID `gorm:"type:uuid;not null" json:"user_id"`
	Rank         int       `gorm:"not null;uniqueIndex:idx_winners_challenge_rank,priority:2" json:"rank"`
	Upvotes      int       `gorm:"not null" json:"upvotes"`
	FinalizedAt  time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"finalized_at"`
}

func (ChallengeWinner) TableName() string {
	return "challenge_winners"
}

// PhaseInfo is the resolved time-phase view of a challenge.
type PhaseInfo struct {
	Phase           ChallengePhase `json:"phase"`
	SubmissionsOpen bool           `json:"submissions_open"`
	VotingOpen      bool           `json:"voting_open"`
	TimeRemaining   time.Duration  `json:"time_remaining"`
}

// RoomStats is the per-room aggregation returned to admins.
type RoomStats struct {
	RoomID           uuid.UUID `json:"room_id"`
	RoomNumber       int       `json:"room_number"`
	MaxParticipants  int       `json:"max_participants"`
	ParticipantCount int       `json:"participant_count"`
	SubmissionCount  int       `json:"submission_count"`
}

// CreateChallengeRequest is the admin scheduling payload.
type CreateChallengeRequest struct {
	Date               string     `json:"date" binding:"required"` // YYYY-MM-DD, Eastern
	Theme              string     `json:"theme" binding:"required"`
	MainItem           string     `json:"main_item"`
	Description        string     `json:"description"`
	SubmissionDeadline time.Time  `json:"submission_deadline" binding:"required"`
	CompetitionStart   *time.Time `json:"competition_start"`
	CompetitionEnd     *time.Time `json:"competition_end"`
}
