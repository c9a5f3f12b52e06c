package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const textCodeInvalidTransition = "INVALID_ONBOARDING_TRANSITION"

// ErrInvalidTransition is returned when a requested stage change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid onboarding transition", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// OnboardingStage is where a courier is in the onboarding flow
type OnboardingStage string

const (
	StageSubmitted      OnboardingStage = "submitted"
	StageEmailVerified  OnboardingStage = "email_verified"
	StageApproved       OnboardingStage = "approved"
	StageCredentialsSet OnboardingStage = "credentials_set"
)

// StageOf derives the stage from persisted courier and account state
func StageOf(courier *Courier, account *Account) OnboardingStage {
	switch {
	case courier == nil || account == nil:
		return ""
	case account.Username != "" && account.PasswordHash != "":
		return StageCredentialsSet
	case !courier.PendingApproval:
		return StageApproved
	case account.EmailVerified:
		return StageEmailVerified
	default:
		return StageSubmitted
	}
}

// ActorRef identifies who/what triggered a transition.
type ActorRef struct {
	ID   string `json:"id,omitempty"`
	Type string `json:"type"`
}

// TransitionMetadata captures extra context for a transition.
type TransitionMetadata struct {
	Reason   string
	Metadata map[string]any
}

// TransitionContext is passed into hooks for additional processing.
type TransitionContext struct {
	Actor   ActorRef
	Courier *Courier
	Account *Account
	From    OnboardingStage
	To      OnboardingStage
	Meta    TransitionMetadata
}

// TransitionHook is executed before or after a transition.
type TransitionHook func(ctx context.Context, tc TransitionContext) error

// TransitionHookPhase identifies whether a hook ran before or after persistence.
type TransitionHookPhase string

const (
	HookPhaseBefore TransitionHookPhase = "before_transition"
	HookPhaseAfter  TransitionHookPhase = "after_transition"
)

// TransitionOption customizes a single transition.
type TransitionOption func(*transitionOptions)

// OnboardingStateMachine guards the courier onboarding stage graph. The
// apply func persists the change; the machine only validates and runs
// hooks around it. Transition returns the stage change event unpublished,
// callers hand it to Publish once the enclosing transaction commits.
type OnboardingStateMachine interface {
	Transition(ctx context.Context, actor ActorRef, courier *Courier, account *Account, target OnboardingStage, apply func(ctx context.Context) error, opts ...TransitionOption) (*ActivityEvent, error)
	Publish(ctx context.Context, changes ...*ActivityEvent)
	CurrentStage(courier *Courier, account *Account) OnboardingStage
	CanTransition(from, to OnboardingStage) bool
}

// HookErrorHandler handles errors surfaced by transition hooks.
type HookErrorHandler func(ctx context.Context, phase TransitionHookPhase, err error, tc TransitionContext) error

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*onboardingStateMachine)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock func() time.Time) StateMachineOption {
	return func(sm *onboardingStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineActivitySink sets the ActivitySink used to publish stage changes.
func WithStateMachineActivitySink(sink ActivitySink) StateMachineOption {
	return func(sm *onboardingStateMachine) {
		sm.activitySink = normalizeActivitySink(sink)
	}
}

// WithStateMachineHookErrorHandler overrides how hook failures are propagated.
func WithStateMachineHookErrorHandler(handler HookErrorHandler) StateMachineOption {
	return func(sm *onboardingStateMachine) {
		if handler != nil {
			sm.hookErrorHandler = handler
		}
	}
}

// WithStateMachineLogger overrides the logger used for sink failures.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *onboardingStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// WithTransitionReason sets the human-readable reason for the transition.
func WithTransitionReason(reason string) TransitionOption {
	return func(opts *transitionOptions) {
		opts.metadata.Reason = reason
	}
}

// WithTransitionMetadata merges metadata into the transition context.
func WithTransitionMetadata(metadata map[string]any) TransitionOption {
	return func(opts *transitionOptions) {
		if len(metadata) == 0 {
			return
		}
		if opts.metadata.Metadata == nil {
			opts.metadata.Metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			opts.metadata.Metadata[k] = v
		}
	}
}

// WithBeforeTransitionHook adds a hook executed before the change is applied.
func WithBeforeTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.beforeHooks = append(opts.beforeHooks, h)
		}
	}
}

// WithAfterTransitionHook adds a hook executed after the change is applied.
func WithAfterTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.afterHooks = append(opts.afterHooks, h)
		}
	}
}

// NewOnboardingStateMachine returns the default courier onboarding graph.
func NewOnboardingStateMachine(opts ...StateMachineOption) OnboardingStateMachine {
	sm := &onboardingStateMachine{
		transitions: map[OnboardingStage]map[OnboardingStage]struct{}{
			StageSubmitted: {
				StageEmailVerified: {},
			},
			StageEmailVerified: {
				StageApproved: {},
			},
			StageApproved: {
				StageCredentialsSet: {},
			},
		},
		now:          time.Now,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
		hookErrorHandler: func(_ context.Context, phase TransitionHookPhase, err error, tc TransitionContext) error {
			return goerrors.Wrap(err, goerrors.CategoryInternal, string(phase)+" hook failed").
				WithMetadata(map[string]any{"from": tc.From, "to": tc.To})
		},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

type onboardingStateMachine struct {
	transitions      map[OnboardingStage]map[OnboardingStage]struct{}
	now              func() time.Time
	activitySink     ActivitySink
	logger           Logger
	hookErrorHandler HookErrorHandler
}

type transitionOptions struct {
	metadata    TransitionMetadata
	beforeHooks []TransitionHook
	afterHooks  []TransitionHook
}

func (o *transitionOptions) cloneMetadata() TransitionMetadata {
	var cloned map[string]any
	if len(o.metadata.Metadata) > 0 {
		cloned = make(map[string]any, len(o.metadata.Metadata))
		for k, v := range o.metadata.Metadata {
			cloned[k] = v
		}
	}

	return TransitionMetadata{
		Reason:   o.metadata.Reason,
		Metadata: cloned,
	}
}

func (sm *onboardingStateMachine) Transition(ctx context.Context, actor ActorRef, courier *Courier, account *Account, target OnboardingStage, apply func(ctx context.Context) error, opts ...TransitionOption) (*ActivityEvent, error) {
	if courier == nil || account == nil {
		return nil, ErrInvalidTransition.Clone().WithMetadata(map[string]any{
			"target": target,
			"reason": "courier or account is nil",
		})
	}

	from := sm.CurrentStage(courier, account)
	if !sm.CanTransition(from, target) {
		return nil, ErrInvalidTransition.Clone().WithMetadata(map[string]any{
			"from": from,
			"to":   target,
		})
	}

	options := sm.buildTransitionOptions(opts...)
	tc := TransitionContext{
		Actor:   actor,
		Courier: courier,
		Account: account,
		From:    from,
		To:      target,
		Meta:    options.cloneMetadata(),
	}

	if err := sm.runHooks(ctx, options.beforeHooks, tc, HookPhaseBefore); err != nil {
		return nil, err
	}

	if apply != nil {
		if err := apply(ctx); err != nil {
			return nil, err
		}
	}

	if err := sm.runHooks(ctx, options.afterHooks, tc, HookPhaseAfter); err != nil {
		return nil, err
	}

	return &ActivityEvent{
		EventType:  ActivityEventOnboardingStageChanged,
		Actor:      actor,
		AccountID:  account.ID.String(),
		Role:       account.Role,
		FromStage:  from,
		ToStage:    target,
		Metadata:   sm.transitionMetadata(courier, tc.Meta),
		OccurredAt: sm.now(),
	}, nil
}

// Publish records stage changes on the activity sink. Nil changes are
// skipped so a rolled back or rejected transition can be passed as is.
func (sm *onboardingStateMachine) Publish(ctx context.Context, changes ...*ActivityEvent) {
	for _, change := range changes {
		if change == nil {
			continue
		}
		recordActivity(ctx, sm.activitySink, sm.logger, sm.now(), *change)
	}
}

func (sm *onboardingStateMachine) CurrentStage(courier *Courier, account *Account) OnboardingStage {
	return StageOf(courier, account)
}

func (sm *onboardingStateMachine) CanTransition(from, to OnboardingStage) bool {
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

func (sm *onboardingStateMachine) runHooks(ctx context.Context, hooks []TransitionHook, data TransitionContext, phase TransitionHookPhase) error {
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx, data); err != nil {
			if sm.hookErrorHandler == nil {
				return err
			}
			return sm.hookErrorHandler(ctx, phase, err, data)
		}
	}
	return nil
}

func (sm *onboardingStateMachine) buildTransitionOptions(opts ...TransitionOption) *transitionOptions {
	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}
	return options
}

func (sm *onboardingStateMachine) transitionMetadata(courier *Courier, meta TransitionMetadata) map[string]any {
	result := map[string]any{
		"courier_id":      courier.ID.String(),
		"employment_type": courier.EmploymentType,
	}
	if meta.Reason != "" {
		result["reason"] = meta.Reason
	}
	for k, v := range meta.Metadata {
		result[k] = v
	}
	return result
}
