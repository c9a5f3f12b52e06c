package auth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type FinalizePasswordResetMessage struct {
	Token           string `json:"token" doc:"Password reset token from the email link"`
	NewPassword     string `json:"newPassword" example:"some_secret_word" doc:"Password"`
	ConfirmPassword string `json:"confirmPassword" example:"some_secret_word" doc:"Password confirmation"`
}

func (e FinalizePasswordResetMessage) Type() string { return "account.password_reset.finalize" }

func (e FinalizePasswordResetMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Token, validation.Required),
		validation.Field(&e.NewPassword, passwordRules...),
		validation.Field(&e.ConfirmPassword, validation.Required),
	)
}

type FinalizePasswordResetHandler struct {
	deps Deps
}

// NewFinalizePasswordResetHandler creates a handler with sane defaults.
func NewFinalizePasswordResetHandler(d Deps) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{deps: d}
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

// execute replaces the password, unlocks the account, consumes the token
// and revokes every refresh token, all in one transaction.
func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	if err := validateMessage(event); err != nil {
		return err
	}

	if event.NewPassword != event.ConfirmPassword {
		return ErrPasswordMismatch
	}

	passwordHash, err := h.deps.Hasher.HashPassword(event.NewPassword)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	repos := h.deps.Repos
	now := h.deps.Clock()

	var account *Account
	var revoked int

	err = repos.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, ok, err := h.deps.Verification.ValidateTx(ctx, tx, event.Token, TokenPasswordReset)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidResetToken
		}

		account, err = repos.Accounts().GetByIDTx(ctx, tx, record.AccountID.String())
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrInvalidResetToken
			}
			return err
		}

		if err := h.deps.Verification.ConsumeTx(ctx, tx, record); err != nil {
			if HasTextCode(err, TextCodeTokenAlreadyUsed) {
				return ErrInvalidResetToken
			}
			return err
		}

		account.ResetPassword(passwordHash, now)
		if _, err := repos.Accounts().UpdateTx(ctx, tx, account); err != nil {
			return err
		}

		revoked, err = h.deps.Refresh.InvalidateAllTx(ctx, tx, account.ID)
		return err
	})

	if err != nil {
		return unwrapOrInternal(err, "failed to finalize password reset")
	}

	h.deps.record(ctx, ActivityEvent{
		EventType: ActivityEventPasswordResetSuccess,
		Actor:     accountActor(account),
		AccountID: account.ID.String(),
		Role:      account.Role,
		Metadata:  map[string]any{"revoked_sessions": revoked},
	})

	return nil
}
