package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const defaultVerificationTokenBytes = 32

// VerificationTokenStore issues, validates and consumes single use tokens.
// At most one token per (account, type) exists at any time.
type VerificationTokenStore struct {
	repos     RepositoryManager
	byteLen   int
	ttlFor    func(VerificationTokenType) time.Duration
	clock     Clock
	logger    Logger
	randBytes func([]byte) (int, error)
}

// NewVerificationTokenStore builds a store using the byte length and TTLs from cfg
func NewVerificationTokenStore(repos RepositoryManager, cfg Config) *VerificationTokenStore {
	byteLen := cfg.GetVerificationTokenBytes()
	if byteLen <= 0 {
		byteLen = defaultVerificationTokenBytes
	}
	return &VerificationTokenStore{
		repos:     repos,
		byteLen:   byteLen,
		ttlFor:    cfg.GetVerificationTokenTTL,
		clock:     time.Now,
		logger:    defLogger{},
		randBytes: rand.Read,
	}
}

func (s *VerificationTokenStore) WithLogger(l Logger) *VerificationTokenStore {
	s.logger = normalizeLogger(l)
	return s
}

func (s *VerificationTokenStore) WithClock(c Clock) *VerificationTokenStore {
	s.clock = normalizeClock(c)
	return s
}

// Issue replaces any token of the same type for the account. A concurrent
// issue for the same pair trips the (account_id, token_type) constraint,
// in which case we retry once and win by deleting the other row.
func (s *VerificationTokenStore) Issue(ctx context.Context, accountID uuid.UUID, kind VerificationTokenType) (*VerificationToken, error) {
	var record *VerificationToken
	issue := func(ctx context.Context, tx bun.Tx) error {
		var err error
		record, err = s.IssueTx(ctx, tx, accountID, kind)
		return err
	}

	err := s.repos.RunInTx(ctx, nil, issue)
	if err != nil && IsDuplicateResource(err) {
		s.logger.Debug("verification token issue raced for account %s type %s, retrying", accountID, kind)
		err = s.repos.RunInTx(ctx, nil, issue)
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// IssueTx deletes the previous (account, type) token and inserts a new one in tx
func (s *VerificationTokenStore) IssueTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, kind VerificationTokenType) (*VerificationToken, error) {
	if !kind.IsValid() {
		return nil, goerrors.New("unknown verification token type", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"type": kind})
	}

	secret, err := s.generate()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate verification token")
	}

	removed, err := s.repos.VerificationTokens().DeleteByAccountTypeTx(ctx, tx, accountID, kind)
	if err != nil {
		return nil, err
	}
	if removed > 0 {
		s.logger.Debug("replaced %d %s token(s) for account %s", removed, kind, accountID)
	}

	now := s.clock()
	record := &VerificationToken{
		ID:        uuid.New(),
		AccountID: accountID,
		Token:     secret,
		Type:      kind,
		ExpiresAt: now.Add(s.ttlFor(kind)),
		CreatedAt: now,
	}

	if _, err := s.repos.VerificationTokens().CreateTx(ctx, tx, record); err != nil {
		return nil, err
	}

	return record, nil
}

// Validate looks the token up without mutating anything. Unknown, expired,
// used or mistyped tokens all report false.
func (s *VerificationTokenStore) Validate(ctx context.Context, token string, kind VerificationTokenType) (*VerificationToken, bool) {
	record, ok, err := s.ValidateTx(ctx, s.repos.DB(), token, kind)
	if err != nil {
		s.logger.Error("verification token lookup failed: %v", err)
		return nil, false
	}
	return record, ok
}

// ValidateTx is Validate inside tx. Store failures come back as errors so
// callers can tell them apart from an invalid token.
func (s *VerificationTokenStore) ValidateTx(ctx context.Context, tx bun.IDB, token string, kind VerificationTokenType) (*VerificationToken, bool, error) {
	if token == "" {
		return nil, false, nil
	}

	record, err := s.repos.VerificationTokens().GetByTokenTx(ctx, tx, token)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	switch {
	case record.Type != kind:
		s.logger.Debug("verification token type mismatch: got %s want %s", record.Type, kind)
		return nil, false, nil
	case record.Used:
		return nil, false, nil
	case record.IsExpired(s.clock()):
		s.logger.Debug("verification token %s expired at %s", record.ID, record.ExpiresAt.Format(time.RFC3339))
		return nil, false, nil
	}

	return record, true, nil
}

// Consume deletes the record. A second consume fails with ErrTokenAlreadyUsed.
func (s *VerificationTokenStore) Consume(ctx context.Context, record *VerificationToken) error {
	return s.ConsumeTx(ctx, s.repos.DB(), record)
}

func (s *VerificationTokenStore) ConsumeTx(ctx context.Context, tx bun.IDB, record *VerificationToken) error {
	if record == nil {
		return ErrTokenAlreadyUsed
	}

	n, err := s.repos.VerificationTokens().RemoveTx(ctx, tx, record.ID)
	if err != nil {
		return err
	}
	if n != 1 {
		return ErrTokenAlreadyUsed
	}

	record.Used = true
	return nil
}

func (s *VerificationTokenStore) generate() (string, error) {
	buf := make([]byte, s.byteLen)
	if _, err := s.randBytes(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
