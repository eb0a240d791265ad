package jobs

import (
	"context"
	"log"
	"time"

	"clauth/internal/models"
	"clauth/internal/repository"
	"clauth/internal/services"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
)

// ChallengeFinalizer periodically snapshots winners for challenges whose
// voting window has closed, so past-winner reads stop depending on the
// live upvote ledger.
type ChallengeFinalizer struct {
	repo         *repository.Repository
	ranking      *services.RankingService
	winnersCount int
	interval     time.Duration
	scheduler    gocron.Scheduler
}

func NewChallengeFinalizer(repo *repository.Repository, ranking *services.RankingService, winnersCount int, interval time.Duration) *ChallengeFinalizer {
	return &ChallengeFinalizer{
		repo:         repo,
		ranking:      ranking,
		winnersCount: winnersCount,
		interval:     interval,
	}
}

// Start schedules the finalizer loop.
func (cf *ChallengeFinalizer) Start() error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(cf.interval),
		gocron.NewTask(cf.run),
	)
	if err != nil {
		return err
	}

	sched.Start()
	cf.scheduler = sched
	log.Printf("[Finalizer] Challenge finalizer started (interval: %v)", cf.interval)
	return nil
}

// Stop shuts the scheduler down.
func (cf *ChallengeFinalizer) Stop() {
	if cf.scheduler != nil {
		_ = cf.scheduler.Shutdown()
	}
}

func (cf *ChallengeFinalizer) run() {
	ctx := context.Background()

	challenges, err := cf.repo.ChallengesNeedingFinalize(ctx, time.Now(), 20)
	if err != nil {
		log.Printf("[Finalizer] Error listing challenges: %v", err)
		return
	}

	for i := range challenges {
		if err := cf.Finalize(ctx, &challenges[i]); err != nil {
			log.Printf("[Finalizer] Error finalizing challenge %s: %v", challenges[i].ID, err)
		}
	}
}

// Finalize writes the winner snapshot for one ended challenge. The winner
// rows and the finalized stamp commit together; a challenge with no
// eligible submissions is still stamped so it is not rescanned forever.
func (cf *ChallengeFinalizer) Finalize(ctx context.Context, challenge *models.Challenge) error {
	winners, err := cf.ranking.TopWinners(ctx, challenge.ID, cf.winnersCount)
	if err != nil {
		return err
	}

	now := time.Now()
	err = cf.repo.Transaction(ctx, func(tx *repository.Repository) error {
		for _, entry := range winners {
			winner := &models.ChallengeWinner{
				ID:           uuid.New(),
				ChallengeID:  challenge.ID,
				SubmissionID: entry.Submission.ID,
				UserID:       entry.Submission.UserID,
				Rank:         entry.Rank,
				Upvotes:      entry.Upvotes,
				FinalizedAt:  now,
			}
			if err := tx.CreateWinner(ctx, winner); err != nil {
				return err
			}
		}
		return tx.MarkChallengeFinalized(ctx, challenge.ID, now)
	})
	if err != nil {
		return err
	}

	log.Printf("[Finalizer] Challenge %s finalized with %d winners", challenge.ID, len(winners))
	return nil
}
