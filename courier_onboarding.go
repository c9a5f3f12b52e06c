package auth

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// LicenseDateLayout is the wire format of the license expiry date
const LicenseDateLayout = "2006-01-02"

const (
	minVehicleYear = 1990
	nextStepVerify = "Check your email to verify your address. An administrator reviews your application afterwards."
)

var vehicleTypes = []any{VehicleBike, VehicleCar, VehicleVan, VehicleTruck}

func (d VehicleDetails) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.VehicleType, validation.Required, validation.In(vehicleTypes...)),
		validation.Field(&d.Make, validation.Required, validation.Length(1, 50)),
		validation.Field(&d.Model, validation.Required, validation.Length(1, 50)),
		validation.Field(&d.LicensePlate, validation.Required, validation.Length(2, 20)),
		validation.Field(&d.Year, validation.Required, validation.Min(minVehicleYear)),
		validation.Field(&d.CapacityKg, validation.Required, validation.Min(1.0)),
		validation.Field(&d.CapacityM3, validation.Required, validation.Min(1.0)),
	)
}

type RegisterCourierMessage struct {
	FirstName            string          `json:"firstName"`
	LastName             string          `json:"lastName"`
	NationalID           string          `json:"nationalId"`
	Email                string          `json:"email"`
	Phone                string          `json:"phone"`
	EmploymentType       EmploymentType  `json:"employmentType"`
	DriversLicenseNumber string          `json:"driversLicenseNumber"`
	LicenseExpiryDate    string          `json:"licenseExpiryDate"`
	VehicleDetails       *VehicleDetails `json:"vehicleDetails,omitempty"`
}

func (e RegisterCourierMessage) Type() string { return "courier.register" }

func (e RegisterCourierMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.FirstName, nameRules...),
		validation.Field(&e.LastName, nameRules...),
		validation.Field(&e.NationalID, nationalRules...),
		validation.Field(&e.Email, emailRules...),
		validation.Field(&e.Phone, phoneRules...),
		validation.Field(&e.EmploymentType, validation.Required, validation.In(EmploymentEmployee, EmploymentFreelancer)),
		validation.Field(&e.DriversLicenseNumber, validation.Required, validation.Length(4, 30)),
		validation.Field(&e.LicenseExpiryDate, validation.Required, validation.Date(LicenseDateLayout)),
		validation.Field(&e.VehicleDetails),
	)
}

type SetupCourierAccountMessage struct {
	Token           string `json:"token"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (e SetupCourierAccountMessage) Type() string { return "courier.setup_account" }

func (e SetupCourierAccountMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Token, validation.Required),
		validation.Field(&e.Username, usernameRules...),
		validation.Field(&e.Password, passwordRules...),
		validation.Field(&e.ConfirmPassword, validation.Required),
	)
}

// CourierRegistration is what a courier gets back after registering
type CourierRegistration struct {
	Message   string    `json:"message"`
	Email     string    `json:"email"`
	NextStep  string    `json:"nextStep"`
	AccountID uuid.UUID `json:"-"`
	CourierID uuid.UUID `json:"-"`
}

// CourierProfile is the self view of an onboarded courier
type CourierProfile struct {
	Courier *Courier `json:"courier"`
	Vehicle *Vehicle `json:"vehicle,omitempty"`
	Depot   *Depot   `json:"depot,omitempty"`
}

// CourierOnboarding walks a courier from registration to a usable login:
// submitted, email verified, approved and finally credentials set.
type CourierOnboarding struct {
	deps        Deps
	sm          OnboardingStateMachine
	employeeIDs *EmployeeIDGenerator
}

func NewCourierOnboarding(d Deps) *CourierOnboarding {
	return &CourierOnboarding{
		deps: d,
		sm: NewOnboardingStateMachine(
			WithStateMachineActivitySink(d.Activity),
			WithStateMachineLogger(d.Logger),
			WithStateMachineClock(d.Clock),
		),
		employeeIDs: NewEmployeeIDGenerator(d.Repos.Couriers(), d.Config.GetEmployeeIDPrefix(), d.Config.GetEmployeeIDWidth()),
	}
}

func (o *CourierOnboarding) Kind() FlowKind { return FlowCourier }

// StateMachine exposes the stage graph, mostly for hooks and tests
func (o *CourierOnboarding) StateMachine() OnboardingStateMachine { return o.sm }

// Register records a courier application. The account has no username
// or password until the courier is approved and completes setup.
func (o *CourierOnboarding) Register(ctx context.Context, msg RegisterCourierMessage) (*CourierRegistration, error) {
	if err := validateMessage(msg); err != nil {
		return nil, err
	}

	phone, err := NormalizePhone(msg.Phone, o.deps.Config.GetPhoneDefaultRegion())
	if err != nil {
		return nil, err
	}

	if msg.EmploymentType == EmploymentFreelancer && msg.VehicleDetails == nil {
		return nil, ErrVehicleRequired
	}

	now := o.deps.Clock()
	expiry, err := time.Parse(LicenseDateLayout, msg.LicenseExpiryDate)
	if err != nil {
		return nil, ErrLicenseExpired
	}
	if !expiry.After(startOfDay(now)) {
		return nil, ErrLicenseExpired.Clone().WithMetadata(map[string]any{"licenseExpiryDate": msg.LicenseExpiryDate})
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	repos := o.deps.Repos
	license := strings.ToUpper(strings.TrimSpace(msg.DriversLicenseNumber))

	var account *Account
	var courier *Courier
	var token *VerificationToken

	err = repos.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		checks := []availability{
			{"email", func() (bool, error) { return repos.Accounts().ExistsByEmailTx(ctx, tx, msg.Email) }},
			{"phone", func() (bool, error) { return repos.Accounts().ExistsByPhoneTx(ctx, tx, phone) }},
			{"driversLicenseNumber", func() (bool, error) { return repos.Couriers().ExistsByLicenseTx(ctx, tx, license) }},
			{"nationalId", func() (bool, error) { return repos.Couriers().ExistsByNationalIDTx(ctx, tx, msg.NationalID) }},
		}
		if msg.VehicleDetails != nil {
			plate := msg.VehicleDetails.NormalizedPlate()
			checks = append(checks, availability{"licensePlate", func() (bool, error) {
				return repos.Couriers().ExistsByPlateTx(ctx, tx, plate)
			}})
		}
		if err := checkAvailable(ctx, checks...); err != nil {
			return err
		}

		var depotID *uuid.UUID
		if msg.EmploymentType != EmploymentFreelancer {
			depot, err := repos.Depots().GetByCodeTx(ctx, tx, o.deps.Config.GetDefaultDepotCode())
			if err != nil {
				if goerrors.IsNotFound(err) {
					return goerrors.New("default depot not found", goerrors.CategoryNotFound).
						WithTextCode("DEFAULT_DEPOT" + TextCodeNotFoundSuffix).
						WithCode(goerrors.CodeNotFound).
						WithMetadata(map[string]any{"ref": o.deps.Config.GetDefaultDepotCode()})
				}
				return err
			}
			depotID = &depot.ID
		}

		account = NewAccount(msg.Email, phone, RoleCourier, now)
		if _, err := repos.Accounts().CreateTx(ctx, tx, account); err != nil {
			return err
		}

		courier = NewCourier(account.ID, msg.FirstName, msg.LastName, msg.EmploymentType,
			msg.NationalID, license, expiry, now)
		courier.DepotID = depotID
		if _, err := repos.Couriers().CreateTx(ctx, tx, courier); err != nil {
			return err
		}

		if msg.EmploymentType == EmploymentFreelancer {
			if err := repos.Couriers().CreateVehicleTx(ctx, tx, NewVehicle(courier.ID, *msg.VehicleDetails, now)); err != nil {
				return err
			}
		}

		var err error
		token, err = o.deps.Verification.IssueTx(ctx, tx, account.ID, TokenEmailVerification)
		return err
	})

	if err != nil {
		return nil, unwrapOrInternal(err, "courier registration transaction failed")
	}

	o.deps.Logger.Info("registered %s courier %s", courier.EmploymentType, courier.ID)

	o.deps.notify(ctx, NewNotification(NotifyCourierVerification, account.Email, map[string]string{
		"firstName": courier.FirstName,
		"link":      o.deps.Links.CourierVerification(token.Token),
	}))

	o.deps.record(ctx, ActivityEvent{
		EventType: ActivityEventRegistered,
		Actor:     accountActor(account),
		AccountID: account.ID.String(),
		Role:      account.Role,
		Metadata:  map[string]any{"employment_type": courier.EmploymentType},
	})

	return &CourierRegistration{
		Message:   "Registration successful",
		Email:     account.Email,
		NextStep:  nextStepVerify,
		AccountID: account.ID,
		CourierID: courier.ID,
	}, nil
}

// VerifyEmail consumes the courier's EMAIL_VERIFICATION token. The account
// stays disabled; approval follows, automatically when configured.
func (o *CourierOnboarding) VerifyEmail(ctx context.Context, token string) (bool, error) {
	if strings.TrimSpace(token) == "" {
		return false, nil
	}

	repos := o.deps.Repos
	now := o.deps.Clock()

	var courier *Courier
	var change *ActivityEvent
	err := repos.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, ok, err := o.deps.Verification.ValidateTx(ctx, tx, token, TokenEmailVerification)
		if err != nil || !ok {
			return err
		}

		found, err := repos.Couriers().GetByAccountIDTx(ctx, tx, record.AccountID)
		if err != nil {
			if goerrors.IsNotFound(err) {
				o.deps.Logger.Warn("courier verification attempted for non courier account %s", record.AccountID)
				return nil
			}
			return err
		}

		account := found.Account
		if account == nil || account.Role != RoleCourier {
			return nil
		}

		change, err = o.sm.Transition(ctx, accountActor(account), found, account, StageEmailVerified, func(ctx context.Context) error {
			if err := o.deps.Verification.ConsumeTx(ctx, tx, record); err != nil {
				return err
			}
			account.MarkEmailVerified(now)
			_, err := repos.Accounts().UpdateTx(ctx, tx, account)
			return err
		})
		if err != nil {
			return err
		}

		courier = found
		return nil
	})

	if err != nil {
		if HasTextCode(err, TextCodeTokenAlreadyUsed) || HasTextCode(err, textCodeInvalidTransition) {
			return false, nil
		}
		return false, unwrapOrInternal(err, "failed to verify courier email")
	}

	if courier == nil {
		o.deps.Logger.Info("courier email verification rejected")
		return false, nil
	}

	o.sm.Publish(ctx, change)
	o.deps.record(ctx, ActivityEvent{
		EventType: ActivityEventEmailVerified,
		Actor:     accountActor(courier.Account),
		AccountID: courier.AccountID.String(),
		Role:      RoleCourier,
	})

	if o.deps.Config.GetCourierAutoApprove() {
		if _, err := o.Approve(ctx, courier.ID, nil); err != nil {
			o.deps.Logger.Error("auto approval of courier %s failed: %v", courier.ID, err)
		}
		return true, nil
	}

	o.deps.notify(ctx, NewNotification(NotifyCourierPendingApproval, courier.Account.Email, map[string]string{
		"firstName": courier.FirstName,
	}))

	return true, nil
}

// Approve moves a verified courier to ACTIVE, assigns an employee id to
// employees and sends the ACCOUNT_SETUP link. A nil adminID is a system
// approval.
func (o *CourierOnboarding) Approve(ctx context.Context, courierID uuid.UUID, adminID *uuid.UUID) (*Courier, error) {
	courier, setup, err := o.approve(ctx, courierID, adminID)
	if err != nil && HasTextCode(err, TextCodeDuplicatePrefix+"EMPLOYEE_ID") {
		o.deps.Logger.Warn("employee id collision approving courier %s, retrying", courierID)
		courier, setup, err = o.approve(ctx, courierID, adminID)
	}
	if err != nil {
		return nil, err
	}

	vars := map[string]string{
		"firstName": courier.FirstName,
		"link":      o.deps.Links.AccountSetup(setup.Token),
	}
	kind := NotifyCourierFreelancerApproval
	if courier.EmploymentType == EmploymentEmployee {
		kind = NotifyCourierEmployeeApproval
		vars["employeeId"] = courier.EmployeeID
	}
	o.deps.notify(ctx, NewNotification(kind, courier.Account.Email, vars))

	actor := ActorRef{Type: "system"}
	if adminID != nil {
		actor = ActorRef{ID: adminID.String(), Type: "admin"}
	}
	o.deps.record(ctx, ActivityEvent{
		EventType: ActivityEventCourierApproved,
		Actor:     actor,
		AccountID: courier.AccountID.String(),
		Role:      RoleCourier,
		Metadata: map[string]any{
			"courier_id":  courier.ID.String(),
			"employee_id": courier.EmployeeID,
		},
	})

	return courier, nil
}

func (o *CourierOnboarding) approve(ctx context.Context, courierID uuid.UUID, adminID *uuid.UUID) (*Courier, *VerificationToken, error) {
	repos := o.deps.Repos
	now := o.deps.Clock()

	var courier *Courier
	var setup *VerificationToken
	var change *ActivityEvent

	err := repos.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		found, err := repos.Couriers().GetByIDTx(ctx, tx, courierID.String())
		if err != nil {
			return err
		}

		account := found.Account
		if account == nil || !account.EmailVerified {
			return ErrEmailNotVerified.Clone().WithMetadata(map[string]any{"courier_id": courierID.String()})
		}

		actor := ActorRef{Type: "system"}
		if adminID != nil {
			admin, err := repos.Accounts().GetByIDTx(ctx, tx, adminID.String())
			if err != nil {
				if goerrors.IsNotFound(err) {
					return NewNotFound("Admin", *adminID)
				}
				return err
			}
			if !admin.Role.IsStaff() {
				return NewNotFound("Admin", *adminID)
			}
			actor = ActorRef{ID: admin.ID.String(), Type: "admin"}
		}

		change, err = o.sm.Transition(ctx, actor, found, account, StageApproved, func(ctx context.Context) error {
			var employeeID string
			if found.EmploymentType == EmploymentEmployee {
				next, err := o.employeeIDs.NextTx(ctx, tx, now.Year())
				if err != nil {
					return err
				}
				employeeID = next
			}

			found.Approve(adminID, employeeID, now)
			if _, err := repos.Couriers().UpdateTx(ctx, tx, found); err != nil {
				return err
			}

			issued, err := o.deps.Verification.IssueTx(ctx, tx, account.ID, TokenAccountSetup)
			if err != nil {
				return err
			}
			setup = issued
			return nil
		}, WithTransitionMetadata(map[string]any{"approved_by": actor.ID}))
		if err != nil {
			return err
		}

		courier = found
		return nil
	})

	if err != nil {
		return nil, nil, unwrapOrInternal(err, "courier approval failed")
	}

	o.sm.Publish(ctx, change)
	return courier, setup, nil
}

// SetupAccount sets the username and password of an approved courier
// from an ACCOUNT_SETUP token and enables the account.
func (o *CourierOnboarding) SetupAccount(ctx context.Context, msg SetupCourierAccountMessage) (*Account, error) {
	if err := validateMessage(msg); err != nil {
		return nil, err
	}

	if msg.Password != msg.ConfirmPassword {
		return nil, ErrPasswordMismatch
	}

	hash, err := o.deps.Hasher.HashPassword(msg.Password)
	if err != nil {
		return nil, err
	}

	repos := o.deps.Repos
	now := o.deps.Clock()
	username := strings.TrimSpace(msg.Username)

	var courier *Courier
	var change *ActivityEvent
	err = repos.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, ok, err := o.deps.Verification.ValidateTx(ctx, tx, msg.Token, TokenAccountSetup)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidSetupToken
		}

		found, err := repos.Couriers().GetByAccountIDTx(ctx, tx, record.AccountID)
		if err != nil {
			return err
		}

		account := found.Account
		if account == nil {
			return NewNotFound("Account", record.AccountID)
		}

		if found.PendingApproval {
			return ErrPendingApproval
		}

		taken, err := repos.Accounts().ExistsByUsernameTx(ctx, tx, username)
		if err != nil {
			return err
		}
		if taken {
			return NewDuplicateResource("username")
		}

		if account.Username != "" {
			return ErrAccountAlreadySetup
		}

		change, err = o.sm.Transition(ctx, accountActor(account), found, account, StageCredentialsSet, func(ctx context.Context) error {
			account.SetCredentials(username, hash, now)
			if err := account.Enable(now); err != nil {
				return err
			}
			if _, err := repos.Accounts().UpdateTx(ctx, tx, account); err != nil {
				return err
			}
			if err := o.deps.Verification.ConsumeTx(ctx, tx, record); err != nil {
				if HasTextCode(err, TextCodeTokenAlreadyUsed) {
					return ErrInvalidSetupToken
				}
				return err
			}
			return nil
		})
		if err != nil {
			return err
		}

		courier = found
		return nil
	})

	if err != nil {
		return nil, unwrapOrInternal(err, "courier account setup failed")
	}

	account := courier.Account
	o.sm.Publish(ctx, change)

	o.deps.notify(ctx, NewNotification(NotifyCourierAccountReady, account.Email, map[string]string{
		"firstName": courier.FirstName,
		"username":  account.Username,
	}))

	o.deps.record(ctx, ActivityEvent{
		EventType: ActivityEventCourierAccountSetup,
		Actor:     accountActor(account),
		AccountID: account.ID.String(),
		Role:      account.Role,
	})

	return account, nil
}

// ValidateSetupToken reports whether token is a live ACCOUNT_SETUP token
func (o *CourierOnboarding) ValidateSetupToken(ctx context.Context, token string) bool {
	_, ok := o.deps.Verification.Validate(ctx, token, TokenAccountSetup)
	return ok
}

// Login only accepts COURIER accounts
func (o *CourierOnboarding) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	return o.deps.Auth.Login(ctx, identifier, password, RoleCourier)
}

func (o *CourierOnboarding) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	return o.deps.Auth.Refresh(ctx, refreshToken)
}

func (o *CourierOnboarding) Logout(ctx context.Context, principal *Principal) error {
	return o.deps.Auth.Logout(ctx, principal)
}

// Profile loads the courier behind principal with its vehicle and depot
func (o *CourierOnboarding) Profile(ctx context.Context, principal *Principal) (*CourierProfile, error) {
	if principal == nil {
		return nil, ErrUnauthenticated
	}

	repos := o.deps.Repos
	db := repos.DB()

	courier, err := repos.Couriers().GetByAccountIDTx(ctx, db, principal.AccountID)
	if err != nil {
		return nil, unwrapOrInternal(err, "failed to load courier profile")
	}

	profile := &CourierProfile{Courier: courier}

	if courier.EmploymentType == EmploymentFreelancer {
		vehicle, err := repos.Couriers().GetVehicleByCourierIDTx(ctx, db, courier.ID)
		if err != nil && !goerrors.IsNotFound(err) {
			return nil, unwrapOrInternal(err, "failed to load courier vehicle")
		}
		profile.Vehicle = vehicle
	}

	if courier.DepotID != nil {
		depot, err := repos.Depots().GetByIDTx(ctx, db, courier.DepotID.String())
		if err != nil && !goerrors.IsNotFound(err) {
			return nil, unwrapOrInternal(err, "failed to load courier depot")
		}
		profile.Depot = depot
	}

	return profile, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
