package auth

import (
	"net/url"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// LoginMessage is the body of both login routes
type LoginMessage struct {
	Identifier string `json:"usernameOrEmail"`
	Password   string `json:"password"`
}

func (e LoginMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Identifier, validation.Required),
		validation.Field(&e.Password, validation.Required),
	)
}

type RefreshMessage struct {
	RefreshToken string `json:"refreshToken"`
}

func (e RefreshMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.RefreshToken, validation.Required),
	)
}

// EmailMessage is the body of routes that only take an email
type EmailMessage struct {
	Email string `json:"email"`
}

func (e EmailMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, emailRules...),
	)
}

type AuthControllerRoutes struct {
	Base    string
	Courier string
	Admin   string
	Health  string
}

type AuthController struct {
	Logger  Logger
	Flows   Flows
	Links   LinkBuilder
	Routes  *AuthControllerRoutes
	Limiter router.MiddlewareFunc
}

type AuthControllerOption func(*AuthController) *AuthController

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.Logger = normalizeLogger(logger)
		return ac
	}
}

// WithRateLimiter guards login, registration, reset and resend routes
func WithRateLimiter(limiter router.MiddlewareFunc) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.Limiter = limiter
		return ac
	}
}

func WithControllerRoutes(routes *AuthControllerRoutes) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		if routes != nil {
			ac.Routes = routes
		}
		return ac
	}
}

func NewAuthController(flows Flows, links LinkBuilder, opts ...AuthControllerOption) *AuthController {
	ac := &AuthController{
		Logger: defLogger{},
		Flows:  flows,
		Links:  links,
		Routes: &AuthControllerRoutes{
			Base:    "/api/v1/auth",
			Courier: "/api/v1/courier",
			Admin:   "/api/v1/admin",
			Health:  "/health",
		},
	}

	for _, opt := range opts {
		ac = opt(ac)
	}

	return ac
}

// RegisterRoutes mounts every route on app. The authentication gate
// must already be installed with app.Use.
func RegisterRoutes[T any](app router.Router[T], ac *AuthController) {
	limit := ac.limiter()

	app.Get(ac.Routes.Health, ac.Health).SetName("health")

	a := app.Group(ac.Routes.Base)
	a.Post("/register/customer", ac.RegisterCustomer, limit).SetName("auth.register.customer")
	a.Get("/verify/customer", ac.VerifyCustomer).SetName("auth.verify.customer")
	a.Post("/login/customer", ac.loginWith(FlowCustomer), limit).SetName("auth.login.customer")
	a.Post("/logout", ac.logoutWith(FlowCustomer), RequireAuthenticated()).SetName("auth.logout")
	a.Post("/refresh", ac.Refresh).SetName("auth.refresh")
	a.Post("/verify/resend", ac.ResendVerification, limit).SetName("auth.verify.resend")
	a.Post("/password-reset/request", ac.PasswordResetRequest, limit).SetName("auth.password_reset.request")
	a.Post("/password-reset", ac.PasswordReset, limit).SetName("auth.password_reset")

	a.Post("/register/courier", ac.RegisterCourier, limit).SetName("auth.register.courier")
	a.Get("/verify/courier", ac.VerifyCourier).SetName("auth.verify.courier")
	a.Get("/setup-account/courier", ac.SetupAccountLink).SetName("auth.setup_account.courier.get")
	a.Post("/setup-account/courier", ac.SetupAccount, limit).SetName("auth.setup_account.courier")
	a.Post("/login/courier", ac.loginWith(FlowCourier), limit).SetName("auth.login.courier")
	a.Post("/logout/courier", ac.logoutWith(FlowCourier), RequireAuthenticated()).SetName("auth.logout.courier")

	app.Get(ac.Routes.Courier+"/me", ac.CourierProfile, RequireRole(RoleCourier)).SetName("courier.me")
	app.Post(ac.Routes.Admin+"/couriers/:id/approve", ac.ApproveCourier, RequireRole(RoleAdmin)).SetName("admin.couriers.approve")
}

func (ac *AuthController) limiter() router.MiddlewareFunc {
	if ac.Limiter != nil {
		return ac.Limiter
	}
	return func(next router.HandlerFunc) router.HandlerFunc { return next }
}

func (ac *AuthController) Health(ctx router.Context) error {
	return SendSuccess(ctx, router.StatusOK, "ok", map[string]any{"status": "UP"})
}

func (ac *AuthController) RegisterCustomer(ctx router.Context) error {
	var msg RegisterCustomerMessage
	if err := bindJSON(ctx, &msg); err != nil {
		return SendError(ctx, err)
	}

	ac.Logger.Info("customer registration attempt for %s", msg.Username)

	account, err := ac.Flows.Customer.Register(ctx.Context(), msg)
	if err != nil {
		return ac.fail(ctx, "customer registration", err)
	}

	return SendSuccess(ctx, router.StatusCreated, "Registration successful. Please check your email to verify your account", map[string]any{
		"username": account.Username,
		"email":    account.Email,
	})
}

func (ac *AuthController) VerifyCustomer(ctx router.Context) error {
	ok, err := ac.Flows.Customer.VerifyEmail(ctx.Context(), ctx.Query("token", ""))
	if err != nil {
		return ac.fail(ctx, "customer email verification", err)
	}
	if !ok {
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"success": false,
			"message": "Invalid or expired verification token. Please request a new verification token",
		})
	}
	return SendSuccess(ctx, router.StatusOK, "Email verified successfully! Your account is now active and you can login", map[string]any{
		"redirectUrl": "/login",
	})
}

func (ac *AuthController) loginWith(kind FlowKind) router.HandlerFunc {
	return func(ctx router.Context) error {
		var msg LoginMessage
		if err := bindJSON(ctx, &msg); err != nil {
			return SendError(ctx, err)
		}

		flow, err := ac.Flows.For(kind)
		if err != nil {
			return SendError(ctx, err)
		}

		result, err := flow.Login(ctx.Context(), strings.TrimSpace(msg.Identifier), msg.Password)
		if err != nil {
			return ac.fail(ctx, string(kind)+" login", err)
		}

		return SendSuccess(ctx, router.StatusOK, "Login successful", map[string]any{"data": result})
	}
}

func (ac *AuthController) logoutWith(kind FlowKind) router.HandlerFunc {
	return func(ctx router.Context) error {
		principal, _ := PrincipalFromRouter(ctx)

		flow, err := ac.Flows.For(kind)
		if err != nil {
			return SendError(ctx, err)
		}

		if err := flow.Logout(ctx.Context(), principal); err != nil {
			return ac.fail(ctx, string(kind)+" logout", err)
		}
		return SendSuccess(ctx, router.StatusOK, "Logout successful", nil)
	}
}

// Refresh serves both flows, rotation does not depend on the role
func (ac *AuthController) Refresh(ctx router.Context) error {
	var msg RefreshMessage
	if err := bindJSON(ctx, &msg); err != nil {
		return SendError(ctx, err)
	}

	result, err := ac.Flows.Customer.Refresh(ctx.Context(), msg.RefreshToken)
	if err != nil {
		return ac.fail(ctx, "token refresh", err)
	}

	return SendSuccess(ctx, router.StatusOK, "Token refreshed", map[string]any{"data": result})
}

func (ac *AuthController) ResendVerification(ctx router.Context) error {
	var msg EmailMessage
	if err := bindJSON(ctx, &msg); err != nil {
		return SendError(ctx, err)
	}

	if err := ac.Flows.Customer.ResendVerification(ctx.Context(), msg.Email); err != nil {
		return ac.fail(ctx, "verification resend", err)
	}

	return SendSuccess(ctx, router.StatusOK, "If the account exists and is not verified, a new verification email has been sent", nil)
}

func (ac *AuthController) PasswordResetRequest(ctx router.Context) error {
	var msg EmailMessage
	if err := bindJSON(ctx, &msg); err != nil {
		return SendError(ctx, err)
	}

	if err := ac.Flows.Customer.RequestPasswordReset(ctx.Context(), msg.Email); err != nil {
		// the answer must not depend on whether the email exists
		ac.Logger.Error("password reset request failed: %v", err)
	}

	return SendSuccess(ctx, router.StatusOK, "If an account with that email exists, a password reset link has been sent", nil)
}

func (ac *AuthController) PasswordReset(ctx router.Context) error {
	var msg FinalizePasswordResetMessage
	if err := bindJSON(ctx, &msg); err != nil {
		return SendError(ctx, err)
	}

	if err := ac.Flows.Customer.ResetPassword(ctx.Context(), msg); err != nil {
		return ac.fail(ctx, "password reset", err)
	}

	return SendSuccess(ctx, router.StatusOK, "Password has been reset. You can now log in", nil)
}

func (ac *AuthController) RegisterCourier(ctx router.Context) error {
	var msg RegisterCourierMessage
	if err := bindJSON(ctx, &msg); err != nil {
		return SendError(ctx, err)
	}

	ac.Logger.Info("courier registration attempt for %s", msg.Email)

	reg, err := ac.Flows.Courier.Register(ctx.Context(), msg)
	if err != nil {
		return ac.fail(ctx, "courier registration", err)
	}

	return SendSuccess(ctx, router.StatusCreated, reg.Message, map[string]any{
		"email":    reg.Email,
		"nextStep": reg.NextStep,
	})
}

// VerifyCourier is opened from the email link, so it answers with a
// redirect to the frontend result page instead of JSON.
func (ac *AuthController) VerifyCourier(ctx router.Context) error {
	ok, err := ac.Flows.Courier.VerifyEmail(ctx.Context(), ctx.Query("token", ""))
	if err != nil {
		ac.Logger.Error("courier email verification failed: %v", err)
	}

	target := ac.Links.CourierVerificationResult(ok && err == nil)
	if !ok || err != nil {
		target += "&message=" + url.QueryEscape("Invalid or expired token.")
	}
	return ctx.Redirect(target, router.StatusFound)
}

func (ac *AuthController) SetupAccountLink(ctx router.Context) error {
	return ctx.Redirect(ac.Links.AccountSetup(ctx.Query("token", "")), router.StatusFound)
}

func (ac *AuthController) SetupAccount(ctx router.Context) error {
	var msg SetupCourierAccountMessage
	if err := bindJSON(ctx, &msg); err != nil {
		return SendError(ctx, err)
	}

	account, err := ac.Flows.Courier.SetupAccount(ctx.Context(), msg)
	if err != nil {
		return ac.fail(ctx, "courier account setup", err)
	}

	return SendSuccess(ctx, router.StatusOK, "Account setup complete! You can now log in.", map[string]any{
		"username": account.Username,
	})
}

func (ac *AuthController) CourierProfile(ctx router.Context) error {
	principal, _ := PrincipalFromRouter(ctx)

	profile, err := ac.Flows.Courier.Profile(ctx.Context(), principal)
	if err != nil {
		return ac.fail(ctx, "courier profile", err)
	}

	return SendSuccess(ctx, router.StatusOK, "Courier profile", map[string]any{"data": profile})
}

func (ac *AuthController) ApproveCourier(ctx router.Context) error {
	courierID, err := ParseID("courier", ctx.Param("id"))
	if err != nil {
		return SendError(ctx, err)
	}

	var adminID *uuid.UUID
	if principal, ok := PrincipalFromRouter(ctx); ok {
		id := principal.AccountID
		adminID = &id
	}

	courier, err := ac.Flows.Courier.Approve(ctx.Context(), courierID, adminID)
	if err != nil {
		return ac.fail(ctx, "courier approval", err)
	}

	return SendSuccess(ctx, router.StatusOK, "Courier approved", map[string]any{
		"courierId":  courier.ID,
		"employeeId": courier.EmployeeID,
		"status":     courier.Status,
	})
}

// fail logs server side failures with their cause and writes the envelope
func (ac *AuthController) fail(ctx router.Context, action string, err error) error {
	status := StatusForError(err)
	if status >= router.StatusInternalServerError {
		ac.Logger.Error("%s failed: %v", action, err)
	} else {
		ac.Logger.Debug("%s rejected: %s", action, textCodeOf(err))
	}
	return SendError(ctx, err)
}

// bindJSON decodes the body and runs the message's own rules
func bindJSON(ctx router.Context, msg validation.Validatable) error {
	if err := ctx.Bind(msg); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "malformed request body").
			WithTextCode("MALFORMED_BODY").
			WithCode(goerrors.CodeBadRequest)
	}
	return validateMessage(msg)
}
