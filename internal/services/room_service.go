package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"clauth/internal/apperrors"
	"clauth/internal/models"
	"clauth/internal/repository"

	"github.com/google/uuid"
)

const assignMaxRetries = 3

// RoomService assigns submitting users to bounded-capacity competition
// rooms, creating rooms lazily as earlier ones fill.
type RoomService struct {
	repo     *repository.Repository
	capacity int
}

func NewRoomService(repo *repository.Repository, capacity int) *RoomService {
	return &RoomService{repo: repo, capacity: capacity}
}

// AssignParticipant places a user in the lowest-numbered room with space
// for the challenge, creating the next sequential room when all are full.
// Idempotent: a user already assigned anywhere under this challenge gets
// their existing room back.
//
// The capacity check and the participant insert run inside one transaction
// with a row lock on the candidate room, so two concurrent assignments
// cannot both squeeze into the last slot. Racing room creation is caught by
// the unique (challenge_id, room_number) index and retried.
func (rs *RoomService) AssignParticipant(ctx context.Context, challengeID, userID uuid.UUID) (*models.CompetitionRoom, error) {
	// Fast path outside the transaction
	existing, err := rs.repo.GetParticipantRoom(ctx, challengeID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing assignment: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	for attempt := 0; attempt < assignMaxRetries; attempt++ {
		room, err := rs.tryAssign(ctx, challengeID, userID)
		if err == nil {
			return room, nil
		}

		if repository.IsUniqueViolation(err) {
			// A concurrent request either created the room number we
			// wanted or assigned this same user. Re-check and retry.
			existing, lookupErr := rs.repo.GetParticipantRoom(ctx, challengeID, userID)
			if lookupErr == nil && existing != nil {
				return existing, nil
			}
			continue
		}

		return nil, err
	}

	log.Printf("[RoomService] Assignment for user %s in challenge %s lost %d races", userID, challengeID, assignMaxRetries)
	return nil, apperrors.Wrap(apperrors.ErrConflict, "room assignment contention, retry")
}

func (rs *RoomService) tryAssign(ctx context.Context, challengeID, userID uuid.UUID) (*models.CompetitionRoom, error) {
	var assigned *models.CompetitionRoom

	err := rs.repo.Transaction(ctx, func(tx *repository.Repository) error {
		// Re-check idempotency under the transaction
		existing, err := tx.GetParticipantRoom(ctx, challengeID, userID)
		if err != nil {
			return err
		}
		if existing != nil {
			assigned = existing
			return nil
		}

		rooms, err := tx.GetRoomsForChallenge(ctx, challengeID)
		if err != nil {
			return err
		}

		for i := range rooms {
			locked, err := tx.LockRoom(ctx, rooms[i].ID)
			if err != nil {
				return err
			}

			count, err := tx.CountParticipants(ctx, locked.ID)
			if err != nil {
				return err
			}
			if count >= locked.MaxParticipants {
				continue
			}

			if err := tx.CreateParticipant(ctx, &models.CompetitionParticipant{
				ID:         uuid.New(),
				RoomID:     locked.ID,
				UserID:     userID,
				AssignedAt: time.Now(),
			}); err != nil {
				return err
			}
			assigned = locked
			return nil
		}

		// Every room is full. The initial idempotency check ran before any
		// row locks were taken, so a concurrent assignment for this same
		// user may have landed while we waited on them. Re-check before
		// opening a fresh room or the user ends up in two.
		existing, err = tx.GetParticipantRoom(ctx, challengeID, userID)
		if err != nil {
			return err
		}
		if existing != nil {
			assigned = existing
			return nil
		}

		// Open the next one
		maxNumber, err := tx.MaxRoomNumber(ctx, challengeID)
		if err != nil {
			return err
		}

		room := &models.CompetitionRoom{
			ID:              uuid.New(),
			ChallengeID:     challengeID,
			RoomNumber:      maxNumber + 1,
			MaxParticipants: rs.capacity,
			CreatedAt:       time.Now(),
		}
		if err := tx.CreateRoom(ctx, room); err != nil {
			return err
		}

		if err := tx.CreateParticipant(ctx, &models.CompetitionParticipant{
			ID:         uuid.New(),
			RoomID:     room.ID,
			UserID:     userID,
			AssignedAt: time.Now(),
		}); err != nil {
			return err
		}

		assigned = room
		return nil
	})
	if err != nil {
		return nil, err
	}

	return assigned, nil
}

// ChallengeRoomStats returns participant and submission counts per room.
func (rs *RoomService) ChallengeRoomStats(ctx context.Context, challengeID uuid.UUID) ([]models.RoomStats, error) {
	rows, err := rs.repo.GetChallengeRoomStats(ctx, challengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate room stats: %w", err)
	}

	stats := make([]models.RoomStats, 0, len(rows))
	for _, row := range rows {
		stats = append(stats, models.RoomStats{
			RoomID:           row.RoomID,
			RoomNumber:       row.RoomNumber,
			MaxParticipants:  row.MaxParticipants,
			ParticipantCount: row.ParticipantCount,
			SubmissionCount:  row.SubmissionCount,
		})
	}
	return stats, nil
}
