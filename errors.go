package auth

import (
	"errors"
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	TextCodePasswordMismatch     = "PASSWORD_MISMATCH"
	TextCodeSignatureInvalid     = "TOKEN_SIGNATURE_INVALID"
	TextCodeTokenKindMismatch    = "TOKEN_KIND_MISMATCH"
	TextCodeRefreshTokenInvalid  = "REFRESH_TOKEN_INVALID"
	TextCodeRefreshTokenExpired  = "REFRESH_TOKEN_EXPIRED"
	TextCodeRefreshTokenRevoked  = "REFRESH_TOKEN_REVOKED"
	TextCodeIssuerMismatch       = "ISSUER_MISMATCH"
	TextCodeAudienceMismatch     = "AUDIENCE_MISMATCH"
	TextCodeForbidden            = "FORBIDDEN"
	TextCodeUnauthorized         = "UNAUTHORIZED"
	TextCodeEmailNotVerified     = "EMAIL_NOT_VERIFIED"
	TextCodePendingApproval      = "PENDING_APPROVAL"
	TextCodeAccountAlreadySetup  = "ACCOUNT_ALREADY_SETUP"
	TextCodeInvalidSetupToken    = "INVALID_SETUP_TOKEN"
	TextCodeInvalidResetToken    = "INVALID_RESET_TOKEN"
	TextCodeWrongRole            = "WRONG_ROLE"
	TextCodeVehicleRequired      = "VEHICLE_REQUIRED"
	TextCodeLicenseExpired       = "LICENSE_EXPIRED"
	TextCodeInvalidPhone         = "INVALID_PHONE"
	TextCodeAccountInvariant     = "ACCOUNT_INVARIANT"
	TextCodeInvalidSigningKey    = "INVALID_SIGNING_KEY"
	TextCodeInternal             = "INTERNAL_ERROR"
	TextCodeDuplicatePrefix      = "DUPLICATE_"
	TextCodeNotFoundSuffix       = "_NOT_FOUND"
	TextCodeTooManyAttempts      = goerrors.TextCodeTooManyAttempts
	TextCodeTokenAlreadyUsed     = goerrors.TextCodeTokenAlreadyUsed
	TextCodeTokenExpired         = goerrors.TextCodeTokenExpired
	TextCodeTokenMalformed       = goerrors.TextCodeTokenMalformed
	TextCodeAccountLocked        = goerrors.TextCodeAccountLocked
	TextCodeAccountDisabled      = goerrors.TextCodeAccountDisabled
	TextCodeInvalidCredentials   = goerrors.TextCodeInvalidCredentials
	TextCodeVerificationRequired = goerrors.TextCodeVerificationRequired
)

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = goerrors.New("password can not be empty", goerrors.CategoryValidation).
	WithTextCode(goerrors.TextCodeEmptyPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidCredentials never tells which of identifier or password was wrong
var ErrInvalidCredentials = goerrors.New("invalid username or password", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrPasswordTooLong is returned when a password exceeds what bcrypt can hash
var ErrPasswordTooLong = goerrors.New("password is too long", goerrors.CategoryValidation).
	WithTextCode("PASSWORD_TOO_LONG").
	WithCode(goerrors.CodeBadRequest)

// ErrMismatchedHashAndPassword is what the hasher reports on a bad password
var ErrMismatchedHashAndPassword = ErrInvalidCredentials

var ErrTokenExpired = goerrors.New("token has expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

var ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

var ErrInvalidSignature = goerrors.New("token signature is invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeSignatureInvalid).
	WithCode(goerrors.CodeUnauthorized)

var ErrTokenKindMismatch = goerrors.New("token type is not accepted here", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenKindMismatch).
	WithCode(goerrors.CodeUnauthorized)

var ErrRefreshTokenInvalid = goerrors.New("invalid refresh token", goerrors.CategoryAuth).
	WithTextCode(TextCodeRefreshTokenInvalid).
	WithCode(goerrors.CodeUnauthorized)

var ErrRefreshTokenExpired = goerrors.New("refresh token has expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeRefreshTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

var ErrRefreshTokenRevoked = goerrors.New("refresh token has been revoked", goerrors.CategoryAuth).
	WithTextCode(TextCodeRefreshTokenRevoked).
	WithCode(goerrors.CodeUnauthorized)

var ErrAudienceMismatch = goerrors.New("token was not issued for this audience", goerrors.CategoryAuth).
	WithTextCode(TextCodeAudienceMismatch).
	WithCode(goerrors.CodeUnauthorized)

// ErrLoginDisabled and ErrLoginLocked are the login side of the account
// status errors. A password login against such an account is an
// authentication failure, while a valid bearer token for it is forbidden.
var ErrLoginDisabled = goerrors.New("account is disabled", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountDisabled).
	WithCode(goerrors.CodeUnauthorized)

var ErrLoginLocked = goerrors.New("account is locked", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountLocked).
	WithCode(goerrors.CodeUnauthorized)

var ErrUnauthenticated = goerrors.New("authentication required", goerrors.CategoryAuth).
	WithTextCode(TextCodeUnauthorized).
	WithCode(goerrors.CodeUnauthorized)

var ErrAccountDisabled = goerrors.New("account is disabled", goerrors.CategoryAuthz).
	WithTextCode(TextCodeAccountDisabled).
	WithCode(goerrors.CodeForbidden)

var ErrAccountLocked = goerrors.New("account is locked", goerrors.CategoryAuthz).
	WithTextCode(TextCodeAccountLocked).
	WithCode(goerrors.CodeForbidden)

var ErrIssuerMismatch = goerrors.New("token was not issued by this environment", goerrors.CategoryAuthz).
	WithTextCode(TextCodeIssuerMismatch).
	WithCode(goerrors.CodeForbidden)

var ErrForbidden = goerrors.New("access denied", goerrors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(goerrors.CodeForbidden)

var ErrPasswordMismatch = goerrors.New("passwords do not match", goerrors.CategoryValidation).
	WithTextCode(TextCodePasswordMismatch).
	WithCode(goerrors.CodeBadRequest)

var ErrTokenAlreadyUsed = goerrors.New("token has already been used", goerrors.CategoryConflict).
	WithTextCode(TextCodeTokenAlreadyUsed).
	WithCode(goerrors.CodeConflict)

var ErrEmailNotVerified = goerrors.New("email must be verified first", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmailNotVerified).
	WithCode(goerrors.CodeBadRequest)

var ErrPendingApproval = goerrors.New("courier is still pending approval", goerrors.CategoryValidation).
	WithTextCode(TextCodePendingApproval).
	WithCode(goerrors.CodeBadRequest)

var ErrAccountAlreadySetup = goerrors.New("account has already been set up", goerrors.CategoryValidation).
	WithTextCode(TextCodeAccountAlreadySetup).
	WithCode(goerrors.CodeBadRequest)

var ErrInvalidSetupToken = goerrors.New("invalid or expired setup token", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidSetupToken).
	WithCode(goerrors.CodeBadRequest)

var ErrInvalidResetToken = goerrors.New("invalid or expired password reset token", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidResetToken).
	WithCode(goerrors.CodeBadRequest)

var ErrWrongRole = goerrors.New("account is not allowed to use this login", goerrors.CategoryValidation).
	WithTextCode(TextCodeWrongRole).
	WithCode(goerrors.CodeBadRequest)

var ErrVehicleRequired = goerrors.New("vehicle details are required for freelance couriers", goerrors.CategoryValidation).
	WithTextCode(TextCodeVehicleRequired).
	WithCode(goerrors.CodeBadRequest)

var ErrLicenseExpired = goerrors.New("driver's license has expired", goerrors.CategoryValidation).
	WithTextCode(TextCodeLicenseExpired).
	WithCode(goerrors.CodeBadRequest)

var ErrInvalidPhone = goerrors.New("phone number is not valid", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidPhone).
	WithCode(goerrors.CodeBadRequest)

var ErrAccountInvariant = goerrors.New("account can not be enabled without a verified email and a password", goerrors.CategoryInternal).
	WithTextCode(TextCodeAccountInvariant).
	WithCode(goerrors.CodeInternal)

var ErrTooManyAttempts = goerrors.New("too many requests, try again later", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyAttempts).
	WithCode(goerrors.CodeTooManyRequests)

// HasTextCode reports whether err carries the given text code.
// goerrors.Wrap clones rich errors, so pointer identity is not reliable.
func HasTextCode(err error, code string) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}

// IsDuplicateResource reports a unique resource conflict
func IsDuplicateResource(err error) bool {
	return goerrors.IsCategory(err, goerrors.CategoryConflict) &&
		strings.HasPrefix(textCodeOf(err), TextCodeDuplicatePrefix)
}

func textCodeOf(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode
	}
	return ""
}

var duplicateMessages = map[string]string{
	"email":                "Email is already registered",
	"phone":                "Phone number is already registered",
	"username":             "Username is already taken",
	"driversLicenseNumber": "Driver's license number is already registered",
	"nationalId":           "National ID is already registered",
	"licensePlate":         "Vehicle with this license plate is already registered",
	"employeeId":           "Employee ID is already assigned",
	"token":                "Token collision, please retry",
}

// NewDuplicateResource builds the conflict error for a unique field
func NewDuplicateResource(field string) *goerrors.Error {
	msg, ok := duplicateMessages[field]
	if !ok {
		msg = fmt.Sprintf("%s is already registered", field)
	}
	return goerrors.New(msg, goerrors.CategoryConflict).
		WithTextCode(TextCodeDuplicatePrefix + upperSnake(field)).
		WithCode(goerrors.CodeConflict).
		WithMetadata(map[string]any{"field": field})
}

// NewNotFound builds a not found error for the given resource
func NewNotFound(resource string, ref any) *goerrors.Error {
	return goerrors.New(fmt.Sprintf("%s not found", strings.ToLower(resource)), goerrors.CategoryNotFound).
		WithTextCode(upperSnake(resource) + TextCodeNotFoundSuffix).
		WithCode(goerrors.CodeNotFound).
		WithMetadata(map[string]any{"ref": fmt.Sprint(ref)})
}

func upperSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' && i > 0 {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return strings.ToUpper(b.String())
}

var constraintFields = map[string]string{
	"uq_accounts_email":                   "email",
	"uq_accounts_phone":                   "phone",
	"uq_accounts_username":                "username",
	"uq_customers_national_id":            "nationalId",
	"uq_couriers_license":                 "driversLicenseNumber",
	"uq_couriers_national_id":             "nationalId",
	"uq_couriers_employee_id":             "employeeId",
	"uq_vehicles_plate":                   "licensePlate",
	"uq_verification_tokens_token":        "token",
	"uq_verification_tokens_account_type": "token",
	"uq_refresh_tokens_token":             "token",
}

// sqlite reports "UNIQUE constraint failed: table.column[, table.column]"
var columnFields = map[string]string{
	"accounts.email":                 "email",
	"accounts.phone":                 "phone",
	"accounts.username":              "username",
	"customers.national_id":          "nationalId",
	"couriers.drivers_license":       "driversLicenseNumber",
	"couriers.national_id":           "nationalId",
	"couriers.employee_id":           "employeeId",
	"vehicles.license_plate":         "licensePlate",
	"verification_tokens.token":      "token",
	"verification_tokens.account_id": "token",
	"refresh_tokens.token":           "token",
}

const sqliteUniquePrefix = "UNIQUE constraint failed: "

// IsUniqueViolation reports whether err came from a unique constraint
func IsUniqueViolation(err error) bool {
	_, ok := uniqueViolationField(err)
	return ok
}

// MapConstraintError turns a storage unique violation into a duplicate
// resource error. Other errors are returned unchanged.
func MapConstraintError(err error) error {
	if err == nil {
		return nil
	}
	field, ok := uniqueViolationField(err)
	if !ok {
		return err
	}
	if field == "" {
		return goerrors.New("resource already exists", goerrors.CategoryConflict).
			WithTextCode(TextCodeDuplicatePrefix + "RESOURCE").
			WithCode(goerrors.CodeConflict)
	}
	return NewDuplicateResource(field)
}

func uniqueViolationField(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != "23505" {
			return "", false
		}
		return constraintFields[pgErr.ConstraintName], true
	}

	// repository errors may keep the driver message only on the source
	var msg string
	for e := err; e != nil; e = errors.Unwrap(e) {
		if strings.Contains(e.Error(), sqliteUniquePrefix) {
			msg = e.Error()
			break
		}
	}
	idx := strings.Index(msg, sqliteUniquePrefix)
	if idx < 0 {
		return "", false
	}
	cols := msg[idx+len(sqliteUniquePrefix):]
	first := strings.TrimSpace(strings.Split(cols, ",")[0])
	if end := strings.IndexAny(first, " ;)"); end > 0 {
		first = first[:end]
	}
	return columnFields[first], true
}
