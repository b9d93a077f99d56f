package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"fitleague/internal/store"
	"fitleague/internal/strava"
)

// SyncService pulls a user's recent Strava activities on demand
type SyncService struct {
	db          *store.DB
	client      *strava.Client
	credentials *Credentials
	ingestor    *Ingestor
	log         *zap.Logger
	now         func() time.Time
}

// NewSyncService creates a new sync service
func NewSyncService(db *store.DB, client *strava.Client, credentials *Credentials, ingestor *Ingestor, log *zap.Logger) *SyncService {
	return &SyncService{
		db:          db,
		client:      client,
		credentials: credentials,
		ingestor:    ingestor,
		log:         log,
		now:         time.Now,
	}
}

// SyncUser imports every supported activity started after the user's
// last-sync marker. The marker only advances when no item failed, so a
// failed run is retried in full next time and already imported activities
// are skipped as duplicates.
func (s *SyncService) SyncUser(ctx context.Context, userID int64) (*BatchReport, error) {
	env, err := s.credentials.Fresh(ctx, userID)
	if err != nil {
		return nil, err
	}

	after, err := s.db.GetLastSync(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	started := s.now()

	activities, err := s.client.GetAllActivities(ctx, env.AccessToken, after, func(fetched int) {
		s.log.Debug("fetched activities", zap.Int64("user_id", userID), zap.Int("count", fetched))
	})
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(activities))
	ignored := 0
	for i := range activities {
		c, ok := CandidateFromStrava(&activities[i])
		if !ok {
			ignored++
			continue
		}
		candidates = append(candidates, c)
	}

	report, err := s.ingestor.AdmitBatch(ctx, userID, candidates)
	if err != nil {
		return nil, err
	}
	report.Ignored = ignored

	if report.Failed == 0 {
		if err := s.db.SetLastSync(ctx, userID, started); err != nil {
			return nil, storeErr(err)
		}
	}

	s.log.Info("strava sync complete",
		zap.Int64("user_id", userID),
		zap.Int("fetched", len(activities)),
		zap.Int("inserted", report.Inserted),
		zap.Int("skipped", report.Skipped),
		zap.Int("rejected", report.Rejected),
		zap.Int("failed", report.Failed),
		zap.Int("ignored", report.Ignored),
	)
	return report, nil
}
