package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RotatedSession is the outcome of a successful rotation
type RotatedSession struct {
	Account      *Account
	RefreshToken string
	ExpiresAt    time.Time
}

// RefreshTokenStore persists refresh tokens server side so they can be
// rotated and revoked. Several live tokens per account are allowed.
type RefreshTokenStore struct {
	repos  RepositoryManager
	tokens TokenService
	ttl    time.Duration
	clock  Clock
	logger Logger
}

// NewRefreshTokenStore builds a store minting refresh tokens with tokens
func NewRefreshTokenStore(repos RepositoryManager, tokens TokenService, ttl time.Duration) *RefreshTokenStore {
	return &RefreshTokenStore{
		repos:  repos,
		tokens: tokens,
		ttl:    ttl,
		clock:  time.Now,
		logger: defLogger{},
	}
}

func (s *RefreshTokenStore) WithLogger(l Logger) *RefreshTokenStore {
	s.logger = normalizeLogger(l)
	return s
}

func (s *RefreshTokenStore) WithClock(c Clock) *RefreshTokenStore {
	s.clock = normalizeClock(c)
	return s
}

// Create mints and persists a refresh token for account
func (s *RefreshTokenStore) Create(ctx context.Context, account *Account) (string, error) {
	return s.CreateTx(ctx, s.repos.DB(), account)
}

func (s *RefreshTokenStore) CreateTx(ctx context.Context, tx bun.IDB, account *Account) (string, error) {
	record, err := s.createTx(ctx, tx, account)
	if err != nil {
		return "", err
	}
	return record.Token, nil
}

func (s *RefreshTokenStore) createTx(ctx context.Context, tx bun.IDB, account *Account) (*RefreshToken, error) {
	if account == nil {
		return nil, goerrors.New("account is required", goerrors.CategoryBadInput)
	}

	signed, err := s.tokens.Mint(NewAccountIdentity(account), TokenKindRefresh, s.ttl)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	record := &RefreshToken{
		ID:        uuid.New(),
		AccountID: account.ID,
		Token:     signed,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}

	if _, err := s.repos.RefreshTokens().CreateTx(ctx, tx, record); err != nil {
		return nil, err
	}

	return record, nil
}

// Rotate exchanges a live refresh token for a new one. The old row is
// invalidated with a conditional update, so of two concurrent rotations
// of the same token only one can succeed.
func (s *RefreshTokenStore) Rotate(ctx context.Context, oldToken string) (*RotatedSession, error) {
	claims, err := s.tokens.ParseAndVerify(oldToken)
	if err != nil {
		if HasTextCode(err, TextCodeTokenExpired) {
			return nil, ErrRefreshTokenExpired
		}
		s.logger.Debug("refresh rejected: %s (%s)", textCodeOf(err), s.tokens.Summarize(oldToken))
		return nil, ErrRefreshTokenInvalid
	}

	if claims.Kind() != TokenKindRefresh {
		s.logger.Debug("refresh rejected: wrong token type (%s)", s.tokens.Summarize(oldToken))
		return nil, ErrRefreshTokenInvalid
	}

	var session *RotatedSession
	err = s.repos.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current, err := s.repos.RefreshTokens().GetByTokenTx(ctx, tx, oldToken)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrRefreshTokenInvalid
			}
			return err
		}

		if current.Invalidated {
			s.logger.Warn("refresh token replay for account %s", current.AccountID)
			return ErrRefreshTokenRevoked
		}

		if current.IsExpired(s.clock()) {
			return ErrRefreshTokenExpired
		}

		account, err := s.repos.Accounts().GetByIDTx(ctx, tx, current.AccountID.String())
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrRefreshTokenInvalid
			}
			return err
		}

		if err := ensureLoginAllowed(account); err != nil {
			return err
		}

		n, err := s.repos.RefreshTokens().InvalidateTx(ctx, tx, current.ID)
		if err != nil {
			return err
		}
		if n != 1 {
			return ErrRefreshTokenRevoked
		}

		replacement, err := s.createTx(ctx, tx, account)
		if err != nil {
			return err
		}

		session = &RotatedSession{
			Account:      account,
			RefreshToken: replacement.Token,
			ExpiresAt:    replacement.ExpiresAt,
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	return session, nil
}

// InvalidateAll revokes every live refresh token of the account
func (s *RefreshTokenStore) InvalidateAll(ctx context.Context, accountID uuid.UUID) (int, error) {
	return s.InvalidateAllTx(ctx, s.repos.DB(), accountID)
}

func (s *RefreshTokenStore) InvalidateAllTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) (int, error) {
	n, err := s.repos.RefreshTokens().InvalidateAllTx(ctx, tx, accountID)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
