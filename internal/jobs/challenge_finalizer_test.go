package jobs

import (
	"context"
	"fmt"
	"testing"
	"time"

	"clauth/internal/database"
	"clauth/internal/models"
	"clauth/internal/repository"
	"clauth/internal/services"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	return db
}

func TestFinalizeWritesWinnerSnapshot(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewRepository(db)
	ranking := services.NewRankingService(repo, nil, 1)
	finalizer := NewChallengeFinalizer(repo, ranking, 3, time.Minute)
	ctx := context.Background()

	end := time.Now().Add(-time.Hour)
	challenge := &models.Challenge{
		ID:                 uuid.New(),
		Date:               end.AddDate(0, 0, -1),
		Theme:              "Deep Sea Disco",
		SubmissionDeadline: end.Add(-2 * time.Hour),
		CompetitionEnd:     &end,
	}
	if err := db.Create(challenge).Error; err != nil {
		t.Fatalf("seed challenge: %v", err)
	}

	room := &models.CompetitionRoom{ID: uuid.New(), ChallengeID: challenge.ID, RoomNumber: 1, MaxParticipants: 50}
	if err := db.Create(room).Error; err != nil {
		t.Fatalf("seed room: %v", err)
	}

	alice := &models.User{ID: uuid.New(), Handle: "alice"}
	bob := &models.User{ID: uuid.New(), Handle: "bob"}
	for _, u := range []*models.User{alice, bob} {
		if err := db.Create(u).Error; err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}

	subAlice := &models.ChallengeSubmission{
		ID: uuid.New(), ChallengeID: challenge.ID, UserID: alice.ID,
		OutfitDescription: "bioluminescent flares", CompetitionRoomID: &room.ID,
		SubmittedAt: end.Add(-3 * time.Hour),
	}
	subBob := &models.ChallengeSubmission{
		ID: uuid.New(), ChallengeID: challenge.ID, UserID: bob.ID,
		OutfitDescription: "anglerfish lantern hat", CompetitionRoomID: &room.ID,
		SubmittedAt: end.Add(-3*time.Hour + time.Minute),
	}
	for _, s := range []*models.ChallengeSubmission{subAlice, subBob} {
		if err := db.Create(s).Error; err != nil {
			t.Fatalf("seed submission: %v", err)
		}
	}

	// Mutual votes make both eligible at threshold 1; alice also picks up a
	// second vote so the order is deterministic
	carol := &models.User{ID: uuid.New(), Handle: "carol"}
	if err := db.Create(carol).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	votes := []*models.SubmissionUpvote{
		{ID: uuid.New(), SubmissionID: subAlice.ID, UserID: bob.ID},
		{ID: uuid.New(), SubmissionID: subBob.ID, UserID: alice.ID},
		{ID: uuid.New(), SubmissionID: subAlice.ID, UserID: carol.ID},
	}
	for _, v := range votes {
		if err := db.Create(v).Error; err != nil {
			t.Fatalf("seed vote: %v", err)
		}
	}

	pending, err := repo.ChallengesNeedingFinalize(ctx, time.Now(), 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 challenge pending finalization, got %d", len(pending))
	}

	if err := finalizer.Finalize(ctx, challenge); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	winners, err := repo.GetWinners(ctx, challenge.ID)
	if err != nil {
		t.Fatalf("load winners: %v", err)
	}
	if len(winners) != 2 {
		t.Fatalf("expected 2 winners, got %d", len(winners))
	}
	if winners[0].UserID != alice.ID || winners[0].Rank != 1 || winners[0].Upvotes != 2 {
		t.Errorf("expected alice first with 2 votes, got user=%s rank=%d votes=%d",
			winners[0].UserID, winners[0].Rank, winners[0].Upvotes)
	}
	if winners[1].UserID != bob.ID || winners[1].Rank != 2 {
		t.Errorf("expected bob second, got user=%s rank=%d", winners[1].UserID, winners[1].Rank)
	}

	// The stamp takes the challenge out of the scan set
	pending, err = repo.ChallengesNeedingFinalize(ctx, time.Now(), 10)
	if err != nil {
		t.Fatalf("list pending after finalize: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("finalized challenge must not be rescanned, got %d pending", len(pending))
	}
}

func TestFinalizeStampsChallengeWithoutWinners(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewRepository(db)
	ranking := services.NewRankingService(repo, nil, 3)
	finalizer := NewChallengeFinalizer(repo, ranking, 3, time.Minute)
	ctx := context.Background()

	end := time.Now().Add(-time.Hour)
	challenge := &models.Challenge{
		ID:                 uuid.New(),
		Date:               end.AddDate(0, 0, -1),
		Theme:              "Empty Day",
		SubmissionDeadline: end,
	}
	if err := db.Create(challenge).Error; err != nil {
		t.Fatalf("seed challenge: %v", err)
	}

	if err := finalizer.Finalize(ctx, challenge); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	winners, _ := repo.GetWinners(ctx, challenge.ID)
	if len(winners) != 0 {
		t.Errorf("expected no winners, got %d", len(winners))
	}

	pending, err := repo.ChallengesNeedingFinalize(ctx, time.Now(), 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Error("a winnerless challenge must still be stamped as finalized")
	}
}
