package auth

import (
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// TokenPair is what a successful login or refresh hands back
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"-"`
	ExpiresIn    int64     `json:"expires_in"`
}

// BearerTokenType is reported as token_type in every pair
const BearerTokenType = "Bearer"

// MintAccessToken mints an access token and reports when it expires
func MintAccessToken(tokenService TokenService, identity Identity, ttl time.Duration, now time.Time) (string, time.Time, error) {
	if tokenService == nil {
		return "", time.Time{}, goerrors.New("token service is required", goerrors.CategoryBadInput)
	}
	if identity == nil {
		return "", time.Time{}, goerrors.New("identity is required", goerrors.CategoryBadInput)
	}

	token, err := tokenService.Mint(identity, TokenKindAccess, ttl)
	if err != nil {
		return "", time.Time{}, err
	}

	return token, now.Add(ttl), nil
}

func newTokenPair(access, refresh string, accessTTL time.Duration, now time.Time) *TokenPair {
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    BearerTokenType,
		ExpiresAt:    now.Add(accessTTL),
		ExpiresIn:    int64(accessTTL / time.Second),
	}
}
