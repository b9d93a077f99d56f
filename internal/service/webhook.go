package service

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fitleague/internal/apperr"
	"fitleague/internal/metrics"
	"fitleague/internal/strava"
)

// EventOutcome is the result of processing one webhook event
type EventOutcome string

const (
	EventIgnored  EventOutcome = "ignored"
	EventImported EventOutcome = "imported"
	EventSkipped  EventOutcome = "skipped"
	EventRejected EventOutcome = "rejected"
	EventFailed   EventOutcome = "failed"
)

// WebhookOptions sizes the worker pool
type WebhookOptions struct {
	Workers      int
	QueueSize    int
	EventTimeout time.Duration
}

type queuedEvent struct {
	id    string
	event strava.WebhookEvent
}

// WebhookProcessor turns provider push events into imported activities on a
// fixed pool of background workers. Events are processed at most once; a
// failed event is logged and left to provider redelivery.
type WebhookProcessor struct {
	resolver    *IdentityResolver
	credentials *Credentials
	client      *strava.Client
	ingestor    *Ingestor
	metrics     *metrics.Metrics
	log         *zap.Logger

	opts   WebhookOptions
	queue  chan queuedEvent
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewWebhookProcessor creates a processor. Start must be called before
// queued events are handled.
func NewWebhookProcessor(
	resolver *IdentityResolver,
	credentials *Credentials,
	client *strava.Client,
	ingestor *Ingestor,
	m *metrics.Metrics,
	log *zap.Logger,
	opts WebhookOptions,
) *WebhookProcessor {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1
	}
	if opts.EventTimeout <= 0 {
		opts.EventTimeout = 30 * time.Second
	}
	return &WebhookProcessor{
		resolver:    resolver,
		credentials: credentials,
		client:      client,
		ingestor:    ingestor,
		metrics:     m,
		log:         log,
		opts:        opts,
		queue:       make(chan queuedEvent, opts.QueueSize),
	}
}

// Enqueue hands an event to the workers without blocking. It returns false
// when the queue is full or the processor is stopped; the event is dropped.
func (p *WebhookProcessor) Enqueue(event strava.WebhookEvent) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.log.Warn("webhook processor stopped, dropping event", eventFields("", event)...)
		p.metrics.WebhookDropped()
		return false
	}

	qe := queuedEvent{id: uuid.NewString(), event: event}
	select {
	case p.queue <- qe:
		p.metrics.SetWebhookQueueDepth(len(p.queue))
		return true
	default:
		p.log.Warn("webhook queue full, dropping event", eventFields(qe.id, event)...)
		p.metrics.WebhookDropped()
		return false
	}
}

// Start launches the workers. Each event runs on a context derived from
// ctx with its own timeout.
func (p *WebhookProcessor) Start(ctx context.Context) {
	p.log.Info("starting webhook workers",
		zap.Int("workers", p.opts.Workers), zap.Int("queue_size", p.opts.QueueSize))

	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Add(1)
		go p.work(ctx, i)
	}
}

// Stop refuses new events, lets the workers drain the queue and waits for
// them to exit
func (p *WebhookProcessor) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	p.log.Info("webhook workers stopped")
}

func (p *WebhookProcessor) work(ctx context.Context, worker int) {
	defer p.wg.Done()

	for qe := range p.queue {
		p.metrics.SetWebhookQueueDepth(len(p.queue))

		eventCtx, cancel := context.WithTimeout(ctx, p.opts.EventTimeout)
		start := time.Now()
		outcome, err := p.Process(eventCtx, qe.event)
		cancel()

		fields := append(eventFields(qe.id, qe.event),
			zap.Int("worker", worker),
			zap.String("outcome", string(outcome)),
			zap.Duration("elapsed", time.Since(start)),
		)
		if err != nil {
			p.log.Error("webhook event failed", append(fields, zap.Error(err))...)
			continue
		}
		p.log.Info("webhook event processed", fields...)
	}
}

// Process handles one event synchronously. Irrelevant events are ignored,
// policy rejections are an outcome, and only resolution, credential,
// upstream or storage failures return an error.
func (p *WebhookProcessor) Process(ctx context.Context, event strava.WebhookEvent) (outcome EventOutcome, err error) {
	defer func() { p.metrics.WebhookProcessed(string(outcome)) }()

	if event.ObjectType != strava.ObjectTypeActivity {
		return EventIgnored, nil
	}
	// Updates and deletes of already imported activities are not mirrored
	if event.AspectType != strava.AspectTypeCreate {
		return EventIgnored, nil
	}

	user, err := p.resolver.ResolveByProviderAthleteID(ctx, event.OwnerID)
	if apperr.IsCode(err, apperr.CodeNotFound) {
		p.log.Debug("webhook owner not linked", zap.Int64("owner_id", event.OwnerID))
		return EventIgnored, nil
	}
	if err != nil {
		return EventFailed, err
	}

	env, err := p.credentials.Fresh(ctx, user.ID)
	if err != nil {
		return EventFailed, err
	}

	activity, err := p.client.GetActivity(ctx, env.AccessToken, event.ObjectID)
	if apperr.IsCode(err, apperr.CodeNotFound) {
		// Deleted or made private before we got to it
		return EventIgnored, nil
	}
	if err != nil {
		return EventFailed, err
	}

	candidate, ok := CandidateFromStrava(activity)
	if !ok {
		return EventIgnored, nil
	}

	result, err := p.ingestor.admit(ctx, user.ID, candidate)
	if err != nil {
		return EventFailed, err
	}
	switch result.Outcome {
	case OutcomeInserted:
		return EventImported, nil
	case OutcomeSkipped:
		return EventSkipped, nil
	default:
		p.log.Info("imported activity rejected",
			zap.Int64("user_id", user.ID), zap.Int64("activity_id", activity.ID), zap.String("reason", result.Reason))
		return EventRejected, nil
	}
}

// CandidateFromStrava converts a provider activity. ok is false when its
// type is outside the supported set.
func CandidateFromStrava(a *strava.Activity) (Candidate, bool) {
	sport := a.SportType
	if sport == "" {
		sport = a.Type
	}
	if _, ok := NormalizeActivityType(sport); !ok {
		return Candidate{}, false
	}

	duration := a.MovingTime
	if duration <= 0 {
		duration = a.ElapsedTime
	}
	title := a.Name
	if title == "" {
		title = "Strava activity"
	}

	c := Candidate{
		Type:           sport,
		Date:           a.StartDate,
		Distance:       a.DistanceKm(),
		Duration:       duration,
		Title:          title,
		Description:    a.Description,
		ProofLink:      strava.ActivityURL(a.ID),
		ExternalID:     strconv.FormatInt(a.ID, 10),
		ExternalSource: ExternalSourceStrava,
	}
	if a.TotalElevationGain > 0 {
		gain := a.TotalElevationGain
		c.ElevationGain = &gain
	}
	if a.HasHeartrate && a.AverageHeartrate > 0 {
		hr := a.AverageHeartrate
		c.AvgHeartRate = &hr
	}
	return c, true
}

func eventFields(id string, e strava.WebhookEvent) []zap.Field {
	fields := []zap.Field{
		zap.String("object_type", e.ObjectType),
		zap.String("aspect_type", e.AspectType),
		zap.Int64("object_id", e.ObjectID),
		zap.Int64("owner_id", e.OwnerID),
	}
	if id != "" {
		fields = append(fields, zap.String("event_id", id))
	}
	return fields
}
