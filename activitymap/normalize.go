package activitymap

import (
	"strings"
	"time"

	auth "github.com/goliatone/go-courier-auth"
)

const (
	MetadataKeyActorType = "actor_type"
	MetadataKeyRole      = "role"
	// MetadataKeyFromStage and MetadataKeyToStage carry onboarding transitions
	MetadataKeyFromStage = "from_stage"
	MetadataKeyToStage   = "to_stage"
)

const (
	defaultChannel    = "auth"
	defaultObjectType = "account"
	defaultActorID    = "system"
)

// Normalized is the transport shape published to downstream auditors
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel          string
	objectType       string
	actorFallback    string
	objectIDResolver func(auth.ActivityEvent) string
	now              func() time.Time
}

// Normalize flattens an activity event. The actor falls back to the
// account the event is about, then to "system".
func Normalize(event auth.ActivityEvent, opts ...Option) Normalized {
	options := normalizeOptions{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = options.now()
	}

	return Normalized{
		ActorID: firstNonEmpty(
			strings.TrimSpace(event.Actor.ID),
			strings.TrimSpace(event.AccountID),
			options.actorFallback,
		),
		Verb:       string(event.EventType),
		ObjectType: options.objectType,
		ObjectID:   objectID(event, options.objectIDResolver),
		Channel:    options.channel,
		Metadata:   metadataOf(event),
		OccurredAt: occurredAt.UTC(),
	}
}

func WithChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		opts.channel = strings.TrimSpace(channel)
	}
}

func WithObjectType(objectType string) Option {
	return func(opts *normalizeOptions) {
		opts.objectType = strings.TrimSpace(objectType)
	}
}

// WithCourierObjects reports courier events against the courier id
// found in their metadata instead of the account
func WithCourierObjects() Option {
	return func(opts *normalizeOptions) {
		opts.objectIDResolver = func(e auth.ActivityEvent) string {
			if id, ok := e.Metadata["courier_id"].(string); ok {
				return id
			}
			return e.AccountID
		}
	}
}

func WithObjectIDResolver(resolver func(auth.ActivityEvent) string) Option {
	return func(opts *normalizeOptions) {
		opts.objectIDResolver = resolver
	}
}

func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		if actorID = strings.TrimSpace(actorID); actorID != "" {
			opts.actorFallback = actorID
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(opts *normalizeOptions) {
		if now != nil {
			opts.now = now
		}
	}
}

func objectID(event auth.ActivityEvent, resolver func(auth.ActivityEvent) string) string {
	if resolver != nil {
		return strings.TrimSpace(resolver(event))
	}
	return strings.TrimSpace(event.AccountID)
}

// metadataOf copies the event metadata and adds the structured fields.
// Keys already present in the event win.
func metadataOf(event auth.ActivityEvent) map[string]any {
	out := make(map[string]any, len(event.Metadata)+4)
	for k, v := range event.Metadata {
		out[k] = v
	}

	setDefault(out, MetadataKeyActorType, strings.TrimSpace(event.Actor.Type))
	setDefault(out, MetadataKeyRole, string(event.Role))
	setDefault(out, MetadataKeyFromStage, string(event.FromStage))
	setDefault(out, MetadataKeyToStage, string(event.ToStage))

	if len(out) == 0 {
		return nil
	}
	return out
}

func setDefault(m map[string]any, key, value string) {
	if value == "" {
		return
	}
	if _, exists := m[key]; !exists {
		m[key] = value
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
