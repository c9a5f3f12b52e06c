package auth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
)

type InitializePasswordResetMessage struct {
	Email string `json:"email" example:"pepe.rone@example.com" doc:"Account email."`
}

func (p InitializePasswordResetMessage) Type() string { return "account.password_reset.request" }

func (p InitializePasswordResetMessage) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, emailRules...),
	)
}

// InitializePasswordResetHandler issues a PASSWORD_RESET token. Unknown
// emails succeed silently so callers can not enumerate accounts.
type InitializePasswordResetHandler struct {
	deps Deps
}

func NewInitializePasswordResetHandler(d Deps) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{deps: d}
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	if err := validateMessage(event); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	account, err := h.deps.Repos.Accounts().GetByEmail(ctx, event.Email)
	if err != nil {
		if goerrors.IsNotFound(err) {
			h.deps.Logger.Debug("password reset requested for unknown email")
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account for password reset")
	}

	token, err := h.deps.Verification.Issue(ctx, account.ID, TokenPasswordReset)
	if err != nil {
		return unwrapOrInternal(err, "failed to initialize password reset")
	}

	h.deps.notify(ctx, NewNotification(NotifyPasswordReset, account.Email, map[string]string{
		"link": h.deps.Links.PasswordReset(token.Token),
	}))

	h.deps.record(ctx, ActivityEvent{
		EventType: ActivityEventPasswordResetRequested,
		Actor:     accountActor(account),
		AccountID: account.ID.String(),
		Role:      account.Role,
	})

	return nil
}
