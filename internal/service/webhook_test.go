package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fitleague/internal/strava"
)

func TestProcess_ImportsCreateEvent(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "male")
	f.connect(t, u, 500, fixedNow.Add(time.Hour))

	run := stravaRun(1001, 10.2, 3000)
	run.TotalElevationGain = 42
	run.HasHeartrate = true
	run.AverageHeartrate = 151.5
	f.fake.addActivity(run)

	outcome, err := f.processor.Process(context.Background(), createEvent(1001, 500))
	require.NoError(t, err)
	assert.Equal(t, EventImported, outcome)

	activities, err := f.db.ListActivitiesByUser(context.Background(), u.ID)
	require.NoError(t, err)
	require.Len(t, activities, 1)
	a := activities[0]
	assert.Equal(t, TypeRunning, a.Type)
	assert.InDelta(t, 10.2, a.Distance, 1e-9)
	assert.Equal(t, 3000, a.Duration)
	assert.Equal(t, "1001", a.ExternalID)
	assert.Equal(t, ExternalSourceStrava, a.ExternalSource)
	assert.Equal(t, "https://www.strava.com/activities/1001", a.ProofLink)
	require.NotNil(t, a.ElevationGain)
	assert.Equal(t, 42.0, *a.ElevationGain)
	require.NotNil(t, a.AvgHeartRate)
	assert.Equal(t, 151.5, *a.AvgHeartRate)

	assert.Equal(t, 1.0, counterValue(t, f.metrics, "fitleague_webhook_events_total", "imported"))
}

func TestProcess_RedeliveryIsSkipped(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "male")
	f.connect(t, u, 500, fixedNow.Add(time.Hour))
	f.fake.addActivity(stravaRun(1001, 5, 1500))

	outcome, err := f.processor.Process(context.Background(), createEvent(1001, 500))
	require.NoError(t, err)
	assert.Equal(t, EventImported, outcome)

	outcome, err = f.processor.Process(context.Background(), createEvent(1001, 500))
	require.NoError(t, err)
	assert.Equal(t, EventSkipped, outcome)

	count, err := f.db.CountActivities(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestProcess_Ignored(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "male")
	f.connect(t, u, 500, fixedNow.Add(time.Hour))

	swim := stravaRun(2002, 1, 1200)
	swim.Type, swim.SportType = "Swim", "Swim"
	f.fake.addActivity(swim)
	f.fake.addActivity(stravaRun(1001, 5, 1500))

	tests := []struct {
		name  string
		event strava.WebhookEvent
	}{
		{"athlete event", strava.WebhookEvent{ObjectType: strava.ObjectTypeAthlete, AspectType: strava.AspectTypeUpdate, ObjectID: 500, OwnerID: 500}},
		{"activity update", func() strava.WebhookEvent {
			e := createEvent(1001, 500)
			e.AspectType = strava.AspectTypeUpdate
			return e
		}()},
		{"activity delete", func() strava.WebhookEvent {
			e := createEvent(1001, 500)
			e.AspectType = strava.AspectTypeDelete
			return e
		}()},
		{"unknown owner", createEvent(1001, 999)},
		{"unsupported type", createEvent(2002, 500)},
		{"activity gone", createEvent(3003, 500)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, err := f.processor.Process(context.Background(), tt.event)
			require.NoError(t, err)
			assert.Equal(t, EventIgnored, outcome)
		})
	}

	count, err := f.db.CountActivities(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Zero(t, f.fake.refreshCalls.Load())
}

func TestProcess_PolicyRejection(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "male")
	f.connect(t, u, 500, fixedNow.Add(time.Hour))
	f.fake.addActivity(stravaRun(1001, 10, 600)) // 10KM in 10 minutes

	outcome, err := f.processor.Process(context.Background(), createEvent(1001, 500))
	require.NoError(t, err)
	assert.Equal(t, EventRejected, outcome)

	count, err := f.db.CountActivities(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestProcess_RefreshesExpiredToken(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "male")
	f.connect(t, u, 500, fixedNow.Add(-time.Minute))
	f.fake.addActivity(stravaRun(1001, 5, 1500))

	outcome, err := f.processor.Process(context.Background(), createEvent(1001, 500))
	require.NoError(t, err)
	assert.Equal(t, EventImported, outcome)
	assert.Equal(t, int32(1), f.fake.refreshCalls.Load())
}

func TestProcess_Failures(t *testing.T) {
	t.Run("refresh rejected", func(t *testing.T) {
		f := newFixture(t)
		u := f.user(t, "male")
		f.connect(t, u, 500, fixedNow.Add(-time.Minute))
		f.fake.tokenStatus = http.StatusBadRequest

		outcome, err := f.processor.Process(context.Background(), createEvent(1001, 500))
		assert.Error(t, err)
		assert.Equal(t, EventFailed, outcome)
	})

	t.Run("upstream error", func(t *testing.T) {
		f := newFixture(t)
		u := f.user(t, "male")
		f.connect(t, u, 500, fixedNow.Add(time.Hour))
		f.fake.activityStatus = http.StatusInternalServerError

		outcome, err := f.processor.Process(context.Background(), createEvent(1001, 500))
		assert.Error(t, err)
		assert.Equal(t, EventFailed, outcome)
		assert.Equal(t, 1.0, counterValue(t, f.metrics, "fitleague_webhook_events_total", "failed"))
	})
}

func TestWorkers_ProcessQueuedEvents(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "male")
	f.connect(t, u, 500, fixedNow.Add(time.Hour))
	for id := int64(1); id <= 4; id++ {
		f.fake.addActivity(stravaRun(id, 5, 1500))
	}

	f.processor.Start(context.Background())
	for id := int64(1); id <= 4; id++ {
		assert.True(t, f.processor.Enqueue(createEvent(id, 500)))
	}
	f.processor.Stop()

	activities, err := f.db.ListActivitiesByUser(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Len(t, activities, 4)

	// Stopped processors refuse new work
	assert.False(t, f.processor.Enqueue(createEvent(5, 500)))
	f.processor.Stop()
}

func TestEnqueue_FullQueueDrops(t *testing.T) {
	f := newFixture(t)
	p := NewWebhookProcessor(f.resolver, f.credentials, f.client, f.ingestor, f.metrics, zap.NewNop(),
		WebhookOptions{Workers: 1, QueueSize: 1})

	// Not started, so nothing drains the queue
	assert.True(t, p.Enqueue(createEvent(1, 1)))
	assert.False(t, p.Enqueue(createEvent(2, 1)))
	assert.Equal(t, 1.0, counterValue(t, f.metrics, "fitleague_webhook_dropped_total", ""))

	p.Start(context.Background())
	p.Stop()
}

func TestCandidateFromStrava(t *testing.T) {
	a := &strava.Activity{
		ID:          9,
		SportType:   "",
		Type:        "Ride",
		StartDate:   fixedNow,
		Distance:    25000,
		ElapsedTime: 3600,
	}

	c, ok := CandidateFromStrava(a)
	require.True(t, ok)
	assert.Equal(t, "Ride", c.Type)
	assert.Equal(t, 25.0, c.Distance)
	assert.Equal(t, 3600, c.Duration, "falls back to elapsed time")
	assert.Equal(t, "Strava activity", c.Title)
	assert.Nil(t, c.ElevationGain)
	assert.Nil(t, c.AvgHeartRate)

	_, ok = CandidateFromStrava(&strava.Activity{SportType: "Kayaking"})
	assert.False(t, ok)
}
