package auth

import (
	"encoding/base64"
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// MinSigningKeyBytes is the smallest HMAC key we accept
const MinSigningKeyBytes = 32

// SigningKeyProvider supplies the key material used to sign and verify tokens
type SigningKeyProvider interface {
	SigningKey() ([]byte, error)
}

type base64KeyProvider struct {
	key []byte
	err error
}

// NewBase64KeyProvider decodes the key once. Both standard and URL
// base64 alphabets are accepted, padded or not.
func NewBase64KeyProvider(encoded string) SigningKeyProvider {
	key, err := decodeSigningKey(encoded)
	return &base64KeyProvider{key: key, err: err}
}

func (p *base64KeyProvider) SigningKey() ([]byte, error) {
	if p.err != nil {
		return nil, p.err
	}
	out := make([]byte, len(p.key))
	copy(out, p.key)
	return out, nil
}

// StaticKeyProvider serves raw key bytes, mostly useful in tests
type StaticKeyProvider []byte

func (s StaticKeyProvider) SigningKey() ([]byte, error) {
	if len(s) < MinSigningKeyBytes {
		return nil, invalidSigningKey(fmt.Sprintf("key must be at least %d bytes", MinSigningKeyBytes))
	}
	return []byte(s), nil
}

// MustSigningKey resolves the key or panics. Call it once at startup.
func MustSigningKey(p SigningKeyProvider) []byte {
	if p == nil {
		panic(invalidSigningKey("signing key provider is nil"))
	}
	key, err := p.SigningKey()
	if err != nil {
		panic(err)
	}
	return key
}

func decodeSigningKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, invalidSigningKey("signing key is empty")
	}

	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	}

	for _, enc := range encodings {
		key, err := enc.DecodeString(encoded)
		if err != nil {
			continue
		}
		if len(key) < MinSigningKeyBytes {
			return nil, invalidSigningKey(fmt.Sprintf("decoded key is %d bytes, need at least %d", len(key), MinSigningKeyBytes))
		}
		return key, nil
	}

	return nil, invalidSigningKey("signing key is not valid base64")
}

func invalidSigningKey(msg string) *goerrors.Error {
	return goerrors.New(msg, goerrors.CategoryInternal).
		WithTextCode(TextCodeInvalidSigningKey).
		WithCode(goerrors.CodeInternal)
}
