package activitymap_test

import (
	"testing"
	"time"

	auth "github.com/goliatone/go-courier-auth"
	"github.com/goliatone/go-courier-auth/activitymap"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeStageChange(t *testing.T) {
	ts := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	event := auth.ActivityEvent{
		EventType:  auth.ActivityEventOnboardingStageChanged,
		Actor:      auth.ActorRef{ID: "admin-42", Type: "admin"},
		AccountID:  "acc-100",
		Role:       auth.RoleCourier,
		FromStage:  auth.StageEmailVerified,
		ToStage:    auth.StageApproved,
		Metadata:   map[string]any{"courier_id": "cou-7"},
		OccurredAt: ts,
	}

	out := activitymap.Normalize(event)

	assert.Equal(t, "admin-42", out.ActorID)
	assert.Equal(t, string(auth.ActivityEventOnboardingStageChanged), out.Verb)
	assert.Equal(t, "account", out.ObjectType)
	assert.Equal(t, "acc-100", out.ObjectID)
	assert.Equal(t, "auth", out.Channel)
	assert.True(t, out.OccurredAt.Equal(ts))

	assert.Equal(t, "admin", out.Metadata[activitymap.MetadataKeyActorType])
	assert.Equal(t, "COURIER", out.Metadata[activitymap.MetadataKeyRole])
	assert.Equal(t, "email_verified", out.Metadata[activitymap.MetadataKeyFromStage])
	assert.Equal(t, "approved", out.Metadata[activitymap.MetadataKeyToStage])
	assert.Len(t, event.Metadata, 1, "source metadata must not be mutated")
}

func TestNormalizeOptions(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	event := auth.ActivityEvent{
		EventType: auth.ActivityEventCourierApproved,
		AccountID: "acc-1",
		Metadata: map[string]any{
			"courier_id":                     "cou-1",
			activitymap.MetadataKeyActorType: "existing",
		},
	}

	out := activitymap.Normalize(event,
		activitymap.WithChannel("onboarding"),
		activitymap.WithObjectType("courier"),
		activitymap.WithCourierObjects(),
		activitymap.WithClock(func() time.Time { return fixed }),
	)

	assert.Equal(t, "onboarding", out.Channel)
	assert.Equal(t, "courier", out.ObjectType)
	assert.Equal(t, "cou-1", out.ObjectID)
	assert.Equal(t, "existing", out.Metadata[activitymap.MetadataKeyActorType])
	assert.Equal(t, fixed, out.OccurredAt)
}

func TestNormalizeActorFallback(t *testing.T) {
	tests := []struct {
		name   string
		event  auth.ActivityEvent
		opts   []activitymap.Option
		expect string
	}{
		{
			name:   "actor id wins",
			event:  auth.ActivityEvent{Actor: auth.ActorRef{ID: "actor-1"}, AccountID: "acc-1"},
			expect: "actor-1",
		},
		{
			name:   "account id when actor is anonymous",
			event:  auth.ActivityEvent{Actor: auth.ActorRef{Type: "system"}, AccountID: "acc-1"},
			expect: "acc-1",
		},
		{
			name:   "system by default",
			event:  auth.ActivityEvent{},
			expect: "system",
		},
		{
			name:   "custom fallback",
			event:  auth.ActivityEvent{},
			opts:   []activitymap.Option{activitymap.WithActorFallback("scheduler")},
			expect: "scheduler",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := activitymap.Normalize(tt.event, tt.opts...)
			assert.Equal(t, tt.expect, out.ActorID)
		})
	}
}

func TestNormalizeWithoutMetadata(t *testing.T) {
	out := activitymap.Normalize(auth.ActivityEvent{EventType: auth.ActivityEventLogout})
	assert.Nil(t, out.Metadata)
}
