package auth

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// VerificationTokens persists single use verification tokens
type VerificationTokens interface {
	repository.Repository[*VerificationToken]

	GetByTokenTx(ctx context.Context, tx bun.IDB, token string) (*VerificationToken, error)
	DeleteByAccountTypeTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, kind VerificationTokenType) (int64, error)
	RemoveTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (int64, error)
}

// RefreshTokens persists refresh token sessions
type RefreshTokens interface {
	repository.Repository[*RefreshToken]

	GetByTokenTx(ctx context.Context, tx bun.IDB, token string) (*RefreshToken, error)
	InvalidateTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (int64, error)
	InvalidateAllTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) (int64, error)
}

type verificationTokens struct {
	repository.Repository[*VerificationToken]
}

var _ VerificationTokens = (*verificationTokens)(nil)

// NewVerificationTokensRepository returns a bun backed VerificationTokens store
func NewVerificationTokensRepository(db *bun.DB) VerificationTokens {
	repo := repository.NewRepository[*VerificationToken](db, repository.ModelHandlers[*VerificationToken]{
		NewRecord: func() *VerificationToken { return &VerificationToken{} },
		GetID: func(t *VerificationToken) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *VerificationToken, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
		GetIdentifier: func() string {
			return "token"
		},
	})
	return &verificationTokens{Repository: repo}
}

func (v *verificationTokens) CreateTx(ctx context.Context, tx bun.IDB, record *VerificationToken, criteria ...repository.InsertCriteria) (*VerificationToken, error) {
	created, err := v.Repository.CreateTx(ctx, tx, record, criteria...)
	if err != nil {
		return nil, MapConstraintError(err)
	}
	return created, nil
}

func (v *verificationTokens) GetByTokenTx(ctx context.Context, tx bun.IDB, token string) (*VerificationToken, error) {
	record, err := v.Repository.GetByIdentifierTx(ctx, tx, token)
	if err != nil {
		return nil, mapRecordNotFound(err, "VerificationToken", "redacted")
	}
	return record, nil
}

func (v *verificationTokens) DeleteByAccountTypeTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, kind VerificationTokenType) (int64, error) {
	res, err := tx.NewDelete().
		Model((*VerificationToken)(nil)).
		Where("account_id = ?", accountID).
		Where("token_type = ?", kind).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RemoveTx deletes one token by id and reports how many rows went away,
// so two consumers racing on the same row can tell who won
func (v *verificationTokens) RemoveTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (int64, error) {
	res, err := tx.NewDelete().
		Model((*VerificationToken)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type refreshTokens struct {
	repository.Repository[*RefreshToken]
}

var _ RefreshTokens = (*refreshTokens)(nil)

// NewRefreshTokensRepository returns a bun backed RefreshTokens store
func NewRefreshTokensRepository(db *bun.DB) RefreshTokens {
	repo := repository.NewRepository[*RefreshToken](db, repository.ModelHandlers[*RefreshToken]{
		NewRecord: func() *RefreshToken { return &RefreshToken{} },
		GetID: func(t *RefreshToken) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *RefreshToken, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
		GetIdentifier: func() string {
			return "token"
		},
	})
	return &refreshTokens{Repository: repo}
}

func (r *refreshTokens) CreateTx(ctx context.Context, tx bun.IDB, record *RefreshToken, criteria ...repository.InsertCriteria) (*RefreshToken, error) {
	created, err := r.Repository.CreateTx(ctx, tx, record, criteria...)
	if err != nil {
		return nil, MapConstraintError(err)
	}
	return created, nil
}

func (r *refreshTokens) GetByTokenTx(ctx context.Context, tx bun.IDB, token string) (*RefreshToken, error) {
	record, err := r.Repository.GetByIdentifierTx(ctx, tx, token)
	if err != nil {
		return nil, mapRecordNotFound(err, "RefreshToken", "redacted")
	}
	return record, nil
}

// InvalidateTx flips a single live row. Zero affected rows means someone
// else rotated it first.
func (r *refreshTokens) InvalidateTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (int64, error) {
	res, err := tx.NewUpdate().
		Model((*RefreshToken)(nil)).
		Set("invalidated = ?", true).
		Where("id = ?", id).
		Where("invalidated = ?", false).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *refreshTokens) InvalidateAllTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) (int64, error) {
	res, err := tx.NewUpdate().
		Model((*RefreshToken)(nil)).
		Set("invalidated = ?", true).
		Where("account_id = ?", accountID).
		Where("invalidated = ?", false).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
