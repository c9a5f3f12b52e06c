package auth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
)

type ResendVerificationMessage struct {
	Email string `json:"email" example:"pepe.rone@example.com" doc:"Account email."`
}

func (m ResendVerificationMessage) Type() string { return "account.verification.resend" }

func (m ResendVerificationMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Email, emailRules...),
	)
}

// ResendVerificationHandler reissues the EMAIL_VERIFICATION token, which
// invalidates the one sent before. Unknown or verified emails are a no-op.
type ResendVerificationHandler struct {
	deps Deps
}

func NewResendVerificationHandler(d Deps) *ResendVerificationHandler {
	return &ResendVerificationHandler{deps: d}
}

func (h *ResendVerificationHandler) Execute(ctx context.Context, event ResendVerificationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during verification resend")
	default:
		return h.execute(ctx, event)
	}
}

func (h *ResendVerificationHandler) execute(ctx context.Context, event ResendVerificationMessage) error {
	if err := validateMessage(event); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	account, err := h.deps.Repos.Accounts().GetByEmail(ctx, event.Email)
	if err != nil {
		// if the record is not found, is part of expected flow, not an application error
		if goerrors.IsNotFound(err) {
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account for verification resend")
	}

	if account.EmailVerified {
		return nil
	}

	token, err := h.deps.Verification.Issue(ctx, account.ID, TokenEmailVerification)
	if err != nil {
		return unwrapOrInternal(err, "failed to reissue verification token")
	}

	kind, link := NotifyCustomerVerification, h.deps.Links.CustomerVerification(token.Token)
	if account.Role == RoleCourier {
		kind, link = NotifyCourierVerification, h.deps.Links.CourierVerification(token.Token)
	}

	h.deps.notify(ctx, NewNotification(kind, account.Email, map[string]string{"link": link}))

	h.deps.record(ctx, ActivityEvent{
		EventType: ActivityEventVerificationResent,
		Actor:     accountActor(account),
		AccountID: account.ID.String(),
		Role:      account.Role,
	})

	return nil
}
