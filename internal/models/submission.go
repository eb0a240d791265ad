package models

import (
	"time"

	"github.com/google/uuid"
)

// ChallengeSubmission is a user's single entry for a challenge. At most one
// submission exists per (challenge, user) pair, enforced globally across
// rooms. Eligibility is derived at read time, never stored.
type ChallengeSubmission struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ChallengeID       uuid.UUID  `gorm:"type:uuid;not null;index;uniqueIndex:idx_submissions_challenge_user,priority:1" json:"challenge_id"`
	UserID            uuid.UUID  `gorm:"type:uuid;not null;index;uniqueIndex:idx_submissions_challenge_user,priority:2" json:"user_id"`
	OutfitDescription string     `gorm:"type:text;not null" json:"outfit_description"`
	GeneratedImageURL string     `gorm:"size:500" json:"generated_image_url"`
	CompetitionRoomID *uuid.UUID `gorm:"type:uuid;index" json:"competition_room_id"`
	SubmittedAt       time.Time  `gorm:"not null;index" json:"submitted_at"`
}

func (ChallengeSubmission) TableName() string {
	return "challenge_submissions"
}

// SubmissionUpvote records one user's vote on one submission.
type SubmissionUpvote struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SubmissionID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_upvotes_submission_user,priority:1" json:"submission_id"`
	UserID       uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_upvotes_submission_user,priority:2" json:"user_id"`
	CreatedAt    time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (SubmissionUpvote) TableName() string {
	return "submission_upvotes"
}

// SubmitDesignRequest is the payload for entering a challenge.
type SubmitDesignRequest struct {
	ChallengeID       uuid.UUID `json:"challenge_id" binding:"required"`
	OutfitDescription string    `json:"outfit_description" binding:"required"`
	GeneratedImageURL string    `json:"generated_image_url"`
}

// RankedSubmission is a submission joined with its vote count and derived
// eligibility, ordered by the ranking service.
type RankedSubmission struct {
	Submission ChallengeSubmission `json:"submission"`
	Upvotes    int                 `json:"upvotes"`
	Eligible   bool                `json:"eligible_for_competition"`
	Rank       int                 `json:"rank,omitempty"`
}

// UpvoteToggleResult reports the outcome of an upvote toggle.
type UpvoteToggleResult struct {
	SubmissionID uuid.UUID `json:"submission_id"`
	Upvoted      bool      `json:"upvoted"`
	UpvoteCount  int       `json:"upvote_count"`
}
