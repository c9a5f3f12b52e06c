package auth

import (
	"errors"
	"regexp"
	"strings"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
)

const TextCodeValidationFailed = "VALIDATION_FAILED"

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	phonePattern    = regexp.MustCompile(`^\+?[0-9 ()-]{7,20}$`)
)

const passwordSpecials = "!@#$%^&+="

var errWeakPassword = errors.New("must contain a digit, a lowercase and an uppercase letter, one of " + passwordSpecials + " and no whitespace")

// passwordRule is the strength policy for new passwords
var passwordRule = validation.By(func(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	var digit, lower, upper, special bool
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			return errWeakPassword
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		}
	}
	if !digit || !lower || !upper || !special {
		return errWeakPassword
	}
	return nil
})

var (
	emailRules    = []validation.Rule{validation.Required, is.EmailFormat}
	nameRules     = []validation.Rule{validation.Required, validation.Length(1, 50)}
	phoneRules    = []validation.Rule{validation.Required, validation.Match(phonePattern)}
	nationalRules = []validation.Rule{validation.Required, validation.Length(5, 20)}
	usernameRules = []validation.Rule{validation.Required, validation.Length(4, 20), validation.Match(usernamePattern)}
	passwordRules = []validation.Rule{validation.Required, validation.Length(8, 20), passwordRule}
)

// validateMessage runs the ozzo rules of msg and converts failures into
// a 400 with field errors
func validateMessage(msg validation.Validatable) error {
	if err := msg.Validate(); err != nil {
		var internal validation.InternalError
		if errors.As(err, &internal) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "validation rules failed")
		}
		return goerrors.FromOzzoValidation(err, "invalid request payload").
			WithTextCode(TextCodeValidationFailed).
			WithCode(goerrors.CodeBadRequest)
	}
	return nil
}
