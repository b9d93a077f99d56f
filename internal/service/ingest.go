package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"fitleague/internal/analysis"
	"fitleague/internal/apperr"
	"fitleague/internal/metrics"
	"fitleague/internal/store"
)

// Candidate is an activity submitted manually or built from an import
type Candidate struct {
	Type           string    `json:"type"`
	Date           time.Time `json:"date"`
	Distance       float64   `json:"distance"` // km
	Duration       int       `json:"duration"` // seconds
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	ProofLink      string    `json:"proof_link,omitempty"`
	ProofImage     string    `json:"proof_image,omitempty"`
	ExternalID     string    `json:"external_id,omitempty"`
	ExternalSource string    `json:"external_source,omitempty"`
	ElevationGain  *float64  `json:"elevation_gain,omitempty"`
	AvgHeartRate   *float64  `json:"avg_heart_rate,omitempty"`

	// Malformed is set by decoders when an input field could not be parsed.
	// The candidate is rejected with it as the reason.
	Malformed string `json:"-"`
}

// Outcome is the result of admitting one candidate
type Outcome string

const (
	OutcomeInserted Outcome = "inserted"
	OutcomeSkipped  Outcome = "skipped" // duplicate import, not an error
	OutcomeRejected Outcome = "rejected"
	OutcomeFailed   Outcome = "failed"
)

// AdmitResult reports what happened to a candidate. Activity is set for
// inserted candidates, Reason for rejected ones.
type AdmitResult struct {
	Outcome  Outcome         `json:"outcome"`
	Activity *store.Activity `json:"activity,omitempty"`
	Reason   string          `json:"reason,omitempty"`
}

// Err returns the rejection as a validation error, or nil
func (r *AdmitResult) Err() error {
	if r.Outcome != OutcomeRejected {
		return nil
	}
	return apperr.New(apperr.CodeValidation, r.Reason)
}

// BatchItem is the per-candidate entry of a BatchReport
type BatchItem struct {
	Index      int     `json:"index"`
	Outcome    Outcome `json:"outcome"`
	ActivityID int64   `json:"activity_id,omitempty"`
	ExternalID string  `json:"external_id,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

// BatchReport counts each outcome separately so skips are never failures
type BatchReport struct {
	Items    []BatchItem `json:"items"`
	Inserted int         `json:"inserted"`
	Skipped  int         `json:"skipped"`
	Rejected int         `json:"rejected"`
	Failed   int         `json:"failed"`
	Ignored  int         `json:"ignored"` // remote activities of unsupported types
}

func (b *BatchReport) add(item BatchItem) {
	b.Items = append(b.Items, item)
	switch item.Outcome {
	case OutcomeInserted:
		b.Inserted++
	case OutcomeSkipped:
		b.Skipped++
	case OutcomeRejected:
		b.Rejected++
	case OutcomeFailed:
		b.Failed++
	}
}

// NormalizeActivityType maps a submitted or remote type name to the
// canonical vocabulary. ok is false for unsupported types.
func NormalizeActivityType(t string) (string, bool) {
	key := strings.ToLower(strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.TrimSpace(t)))
	canonical, ok := activityTypeAliases[key]
	return canonical, ok
}

// Ingestor applies the admission policy and persists accepted activities
type Ingestor struct {
	db      *store.DB
	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewIngestor creates an Ingestor
func NewIngestor(db *store.DB, m *metrics.Metrics, log *zap.Logger) *Ingestor {
	return &Ingestor{db: db, metrics: m, log: log}
}

// Admit validates a candidate for ownerID and stores it. Policy rejections
// and duplicate skips are reported in the result; the error is reserved for
// an unknown owner or a storage failure.
func (i *Ingestor) Admit(ctx context.Context, ownerID int64, c Candidate) (*AdmitResult, error) {
	if _, err := i.db.GetUser(ctx, ownerID); err != nil {
		return nil, storeErr(err)
	}
	return i.admit(ctx, ownerID, c)
}

// AdmitBatch admits each candidate independently. One candidate's rejection
// or failure never stops the rest.
func (i *Ingestor) AdmitBatch(ctx context.Context, ownerID int64, candidates []Candidate) (*BatchReport, error) {
	if _, err := i.db.GetUser(ctx, ownerID); err != nil {
		return nil, storeErr(err)
	}

	report := &BatchReport{Items: make([]BatchItem, 0, len(candidates))}
	for idx, c := range candidates {
		item := BatchItem{Index: idx, ExternalID: c.ExternalID}

		res, err := i.admit(ctx, ownerID, c)
		if err != nil {
			item.Outcome = OutcomeFailed
			item.Reason = err.Error()
		} else {
			item.Outcome = res.Outcome
			item.Reason = res.Reason
			if res.Activity != nil {
				item.ActivityID = res.Activity.ID
			}
		}
		report.add(item)
	}
	return report, nil
}

func (i *Ingestor) admit(ctx context.Context, ownerID int64, c Candidate) (*AdmitResult, error) {
	activityType, reason := checkCandidate(c)
	if reason == "" {
		if v := analysis.ValidateDuration(c.Distance, c.Duration); !v.Valid {
			reason = v.Message
		}
	}
	if reason == "" && c.Distance >= ProofRequiredKm && c.ProofLink == "" && c.ProofImage == "" {
		reason = "proof link or image is required for activities of 10KM or more"
	}
	if reason != "" {
		i.metrics.ActivityAdmitted(string(OutcomeRejected))
		i.log.Debug("activity rejected", zap.Int64("user_id", ownerID), zap.String("reason", reason))
		return &AdmitResult{Outcome: OutcomeRejected, Reason: reason}, nil
	}

	a := &store.Activity{
		UserID:         ownerID,
		Type:           activityType,
		Date:           c.Date,
		Distance:       c.Distance,
		Duration:       c.Duration,
		Title:          strings.TrimSpace(c.Title),
		Description:    c.Description,
		ProofLink:      c.ProofLink,
		ProofImage:     c.ProofImage,
		ExternalID:     c.ExternalID,
		ExternalSource: c.ExternalSource,
		ElevationGain:  c.ElevationGain,
		AvgHeartRate:   c.AvgHeartRate,
	}

	outcome, err := i.db.InsertActivity(ctx, a)
	if err != nil {
		i.metrics.ActivityAdmitted(string(OutcomeFailed))
		return nil, apperr.Wrap(err, apperr.CodeInternal, "storing activity")
	}

	if outcome == store.SkippedDuplicate {
		i.metrics.ActivityAdmitted(string(OutcomeSkipped))
		i.log.Debug("duplicate activity skipped",
			zap.Int64("user_id", ownerID), zap.String("external_id", c.ExternalID))
		return &AdmitResult{Outcome: OutcomeSkipped}, nil
	}

	i.metrics.ActivityAdmitted(string(OutcomeInserted))
	return &AdmitResult{Outcome: OutcomeInserted, Activity: a}, nil
}

// checkCandidate performs structural validation and returns the canonical
// type, or a rejection reason
func checkCandidate(c Candidate) (string, string) {
	if c.Malformed != "" {
		return "", c.Malformed
	}
	if strings.TrimSpace(c.Type) == "" {
		return "", "type is required"
	}
	activityType, ok := NormalizeActivityType(c.Type)
	if !ok {
		return "", "unsupported activity type " + c.Type
	}
	switch {
	case c.Date.IsZero():
		return "", "date is required"
	case c.Distance <= 0:
		return "", "distance must be greater than 0"
	case c.Duration <= 0:
		return "", "duration must be greater than 0"
	case strings.TrimSpace(c.Title) == "":
		return "", "title is required"
	}
	return activityType, ""
}

// GetActivity returns one stored activity
func (i *Ingestor) GetActivity(ctx context.Context, id int64) (*store.Activity, error) {
	a, err := i.db.GetActivity(ctx, id)
	if err != nil {
		return nil, storeErr(err)
	}
	return a, nil
}

// ListActivities returns a user's activities, most recent first
func (i *Ingestor) ListActivities(ctx context.Context, ownerID int64) ([]store.Activity, error) {
	if _, err := i.db.GetUser(ctx, ownerID); err != nil {
		return nil, storeErr(err)
	}
	activities, err := i.db.ListActivitiesByUser(ctx, ownerID)
	if err != nil {
		return nil, storeErr(err)
	}
	return activities, nil
}
