package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-courier-auth"
)

func newStageFixture(stage auth.OnboardingStage) (*auth.Courier, *auth.Account) {
	account := auth.NewAccount("rider@example.com", "254722000001", auth.RoleCourier, testNow)
	courier := auth.NewCourier(account.ID, "Rider", "One", auth.EmploymentEmployee, "12345678", "DL-1", testNow.AddDate(2, 0, 0), testNow)

	switch stage {
	case auth.StageCredentialsSet:
		account.SetCredentials("rider_one", "hash", testNow)
		fallthrough
	case auth.StageApproved:
		courier.Approve(nil, "COU-2025-0001", testNow)
		fallthrough
	case auth.StageEmailVerified:
		account.MarkEmailVerified(testNow)
	}
	return courier, account
}

func TestStageOf(t *testing.T) {
	for _, stage := range []auth.OnboardingStage{
		auth.StageSubmitted,
		auth.StageEmailVerified,
		auth.StageApproved,
		auth.StageCredentialsSet,
	} {
		courier, account := newStageFixture(stage)
		assert.Equal(t, stage, auth.StageOf(courier, account))
	}

	assert.Empty(t, auth.StageOf(nil, nil))
}

func TestOnboardingStateMachine_Graph(t *testing.T) {
	sm := auth.NewOnboardingStateMachine()

	assert.True(t, sm.CanTransition(auth.StageSubmitted, auth.StageEmailVerified))
	assert.True(t, sm.CanTransition(auth.StageEmailVerified, auth.StageApproved))
	assert.True(t, sm.CanTransition(auth.StageApproved, auth.StageCredentialsSet))

	assert.False(t, sm.CanTransition(auth.StageSubmitted, auth.StageApproved), "approval needs a verified email")
	assert.False(t, sm.CanTransition(auth.StageApproved, auth.StageApproved))
	assert.False(t, sm.CanTransition(auth.StageCredentialsSet, auth.StageSubmitted))
	assert.False(t, sm.CanTransition(auth.StageEmailVerified, auth.StageSubmitted))
}

func TestOnboardingStateMachine_Transition(t *testing.T) {
	ctx := context.Background()
	actor := auth.ActorRef{ID: uuid.NewString(), Type: "admin"}
	occurred := time.Date(2025, time.April, 1, 12, 0, 0, 0, time.UTC)

	t.Run("applies and records the stage change", func(t *testing.T) {
		log := &activityLog{}
		sm := auth.NewOnboardingStateMachine(
			auth.WithStateMachineActivitySink(log),
			auth.WithStateMachineClock(func() time.Time { return occurred }),
		)
		courier, account := newStageFixture(auth.StageEmailVerified)

		var order []string
		change, err := sm.Transition(ctx, actor, courier, account, auth.StageApproved,
			func(context.Context) error {
				order = append(order, "apply")
				courier.Approve(nil, "", testNow)
				return nil
			},
			auth.WithTransitionReason("documents checked"),
			auth.WithTransitionMetadata(map[string]any{"approved_by": actor.ID}),
			auth.WithBeforeTransitionHook(func(_ context.Context, tc auth.TransitionContext) error {
				order = append(order, "before")
				assert.Equal(t, auth.StageEmailVerified, tc.From)
				assert.Equal(t, auth.StageApproved, tc.To)
				return nil
			}),
			auth.WithAfterTransitionHook(func(_ context.Context, tc auth.TransitionContext) error {
				order = append(order, "after")
				assert.Equal(t, "documents checked", tc.Meta.Reason)
				return nil
			}),
		)
		require.NoError(t, err)
		require.NotNil(t, change)
		assert.Equal(t, []string{"before", "apply", "after"}, order)
		assert.Equal(t, auth.StageApproved, sm.CurrentStage(courier, account))
		assert.Empty(t, log.Of(auth.ActivityEventOnboardingStageChanged), "nothing is recorded before Publish")

		sm.Publish(ctx, change, nil)

		events := log.Of(auth.ActivityEventOnboardingStageChanged)
		require.Len(t, events, 1)
		event := events[0]
		assert.Equal(t, actor, event.Actor)
		assert.Equal(t, occurred, event.OccurredAt)
		assert.Equal(t, auth.StageEmailVerified, event.FromStage)
		assert.Equal(t, auth.StageApproved, event.ToStage)
		assert.Equal(t, courier.ID.String(), event.Metadata["courier_id"])
		assert.Equal(t, "documents checked", event.Metadata["reason"])
		assert.Equal(t, actor.ID, event.Metadata["approved_by"])
	})

	t.Run("rejects a skipped stage without applying", func(t *testing.T) {
		log := &activityLog{}
		sm := auth.NewOnboardingStateMachine(auth.WithStateMachineActivitySink(log))
		courier, account := newStageFixture(auth.StageSubmitted)

		applied := false
		change, err := sm.Transition(ctx, actor, courier, account, auth.StageApproved, func(context.Context) error {
			applied = true
			return nil
		})
		require.Error(t, err)
		assert.Nil(t, change)
		assert.True(t, errors.Is(err, auth.ErrInvalidTransition) || auth.HasTextCode(err, textCodeInvalidTransition))
		assert.Equal(t, 400, auth.StatusForError(err))
		assert.False(t, applied)
		assert.Empty(t, log.Of(auth.ActivityEventOnboardingStageChanged))
	})

	t.Run("nil courier", func(t *testing.T) {
		sm := auth.NewOnboardingStateMachine()
		_, err := sm.Transition(ctx, actor, nil, nil, auth.StageEmailVerified, nil)
		assert.True(t, auth.HasTextCode(err, textCodeInvalidTransition))
	})

	t.Run("apply failure records nothing", func(t *testing.T) {
		log := &activityLog{}
		sm := auth.NewOnboardingStateMachine(auth.WithStateMachineActivitySink(log))
		courier, account := newStageFixture(auth.StageSubmitted)

		change, err := sm.Transition(ctx, actor, courier, account, auth.StageEmailVerified, func(context.Context) error {
			return assert.AnError
		})
		assert.ErrorIs(t, err, assert.AnError)
		sm.Publish(ctx, change)
		assert.Empty(t, log.Of(auth.ActivityEventOnboardingStageChanged))
	})

	t.Run("hook failures go through the handler", func(t *testing.T) {
		var phases []auth.TransitionHookPhase
		sm := auth.NewOnboardingStateMachine(
			auth.WithStateMachineHookErrorHandler(func(_ context.Context, phase auth.TransitionHookPhase, err error, _ auth.TransitionContext) error {
				phases = append(phases, phase)
				return err
			}),
		)
		courier, account := newStageFixture(auth.StageSubmitted)

		applied := false
		_, err := sm.Transition(ctx, actor, courier, account, auth.StageEmailVerified,
			func(context.Context) error {
				applied = true
				return nil
			},
			auth.WithBeforeTransitionHook(func(context.Context, auth.TransitionContext) error {
				return assert.AnError
			}),
		)
		assert.ErrorIs(t, err, assert.AnError)
		assert.False(t, applied)
		assert.Equal(t, []auth.TransitionHookPhase{auth.HookPhaseBefore}, phases)
	})

	t.Run("default hook handler wraps as internal", func(t *testing.T) {
		sm := auth.NewOnboardingStateMachine()
		courier, account := newStageFixture(auth.StageSubmitted)

		_, err := sm.Transition(ctx, actor, courier, account, auth.StageEmailVerified, nil,
			auth.WithAfterTransitionHook(func(context.Context, auth.TransitionContext) error {
				return assert.AnError
			}),
		)
		require.Error(t, err)
		assert.Equal(t, 500, auth.StatusForError(err))
	})
}
