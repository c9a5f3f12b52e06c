package auth

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

func newID() uuid.UUID {
	return uuid.New()
}

// ParseID parses a caller supplied id. A malformed id is a 400 naming
// the resource.
func ParseID(resource, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid "+strings.ToLower(resource)+" id").
			WithTextCode("INVALID_ID").
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"resource": resource})
	}
	return id, nil
}
