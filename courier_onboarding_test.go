package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-courier-auth"
)

const textCodeInvalidTransition = "INVALID_ONBOARDING_TRANSITION"

func loadCourier(t *testing.T, env *testEnv, id uuid.UUID) *auth.Courier {
	t.Helper()
	courier, err := env.repos.Couriers().GetByIDTx(context.Background(), env.repos.DB(), id.String())
	require.NoError(t, err)
	require.NotNil(t, courier.Account)
	return courier
}

func TestCourierOnboarding_EmployeeFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	msg := employeeMessage("01")

	reg, err := env.flows.Courier.Register(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, "Registration successful", reg.Message)
	assert.Equal(t, msg.Email, reg.Email)
	assert.NotEmpty(t, reg.NextStep)

	courier := loadCourier(t, env, reg.CourierID)
	assert.Equal(t, auth.StageSubmitted, auth.StageOf(courier, courier.Account))
	assert.Equal(t, auth.CourierPending, courier.Status)
	assert.Equal(t, "DL-550001", courier.DriversLicenseNumber)
	assert.Empty(t, courier.Account.Username)
	assert.False(t, courier.Account.Enabled)
	require.NotNil(t, courier.DepotID, "employees are attached to the default depot")

	link := env.mail.Last(t, auth.NotifyCourierVerification, msg.Email).Variables["link"]
	assert.Contains(t, link, testFrontendURL+"/verify/courier?token=")

	ok, err := env.flows.Courier.VerifyEmail(ctx, env.mail.TokenOf(t, auth.NotifyCourierVerification, msg.Email))
	require.NoError(t, err)
	assert.True(t, ok)

	courier = loadCourier(t, env, reg.CourierID)
	assert.Equal(t, auth.StageEmailVerified, auth.StageOf(courier, courier.Account))
	assert.False(t, courier.Account.Enabled, "verification alone does not enable a courier")
	env.mail.Last(t, auth.NotifyCourierPendingApproval, msg.Email)

	admin := env.admin(t)
	approved, err := env.flows.Courier.Approve(ctx, reg.CourierID, &admin)
	require.NoError(t, err)
	assert.Equal(t, "COU-2025-0001", approved.EmployeeID)
	assert.Equal(t, auth.CourierActive, approved.Status)
	assert.False(t, approved.PendingApproval)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, admin, *approved.ApprovedBy)

	approval := env.mail.Last(t, auth.NotifyCourierEmployeeApproval, msg.Email)
	assert.Equal(t, "COU-2025-0001", approval.Variables["employeeId"])
	assert.Contains(t, approval.Variables["link"], testFrontendURL+"/account-setup?token=")

	setupToken := env.mail.TokenOf(t, auth.NotifyCourierEmployeeApproval, msg.Email)
	assert.True(t, env.flows.Courier.ValidateSetupToken(ctx, setupToken))

	account, err := env.flows.Courier.SetupAccount(ctx, auth.SetupCourierAccountMessage{
		Token:           setupToken,
		Username:        "otieno_o",
		Password:        testPassword,
		ConfirmPassword: testPassword,
	})
	require.NoError(t, err)
	assert.Equal(t, "otieno_o", account.Username)
	assert.True(t, account.Enabled)
	assert.False(t, env.flows.Courier.ValidateSetupToken(ctx, setupToken))
	env.mail.Last(t, auth.NotifyCourierAccountReady, msg.Email)

	courier = loadCourier(t, env, reg.CourierID)
	assert.Equal(t, auth.StageCredentialsSet, auth.StageOf(courier, courier.Account))

	result, err := env.flows.Courier.Login(ctx, "otieno_o", testPassword)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleCourier, result.Role)

	stages := env.activity.Of(auth.ActivityEventOnboardingStageChanged)
	require.Len(t, stages, 3)
	assert.Equal(t, auth.StageSubmitted, stages[0].FromStage)
	assert.Equal(t, auth.StageEmailVerified, stages[0].ToStage)
	assert.Equal(t, auth.StageApproved, stages[1].ToStage)
	assert.Equal(t, auth.StageCredentialsSet, stages[2].ToStage)

	t.Run("employee ids increase per approval", func(t *testing.T) {
		second := env.onboardCourier(t, employeeMessage("02"), "second_o")
		assert.Equal(t, "COU-2025-0002", loadCourier(t, env, second.CourierID).EmployeeID)
	})

	t.Run("setup token is single use", func(t *testing.T) {
		_, err := env.flows.Courier.SetupAccount(ctx, auth.SetupCourierAccountMessage{
			Token:           setupToken,
			Username:        "otieno_x",
			Password:        testPassword,
			ConfirmPassword: testPassword,
		})
		require.Error(t, err)
		assert.True(t, auth.HasTextCode(err, auth.TextCodeInvalidSetupToken))
	})

	t.Run("reissued setup token on a finished account", func(t *testing.T) {
		record, err := env.deps.Verification.Issue(ctx, reg.AccountID, auth.TokenAccountSetup)
		require.NoError(t, err)

		_, err = env.flows.Courier.SetupAccount(ctx, auth.SetupCourierAccountMessage{
			Token:           record.Token,
			Username:        "otieno_y",
			Password:        testPassword,
			ConfirmPassword: testPassword,
		})
		require.Error(t, err)
		assert.True(t, auth.HasTextCode(err, auth.TextCodeAccountAlreadySetup))
	})
}

func TestCourierOnboarding_FreelancerFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	msg := freelancerMessage("01")

	reg := env.onboardCourier(t, msg, "akinyi_f")

	courier := loadCourier(t, env, reg.CourierID)
	assert.Empty(t, courier.EmployeeID, "freelancers get no employee id")
	assert.Nil(t, courier.DepotID)

	approval := env.mail.Last(t, auth.NotifyCourierFreelancerApproval, msg.Email)
	assert.NotContains(t, approval.Variables, "employeeId")

	result, err := env.flows.Courier.Login(ctx, msg.Email, testPassword)
	require.NoError(t, err)

	principal := &auth.Principal{AccountID: result.AccountID, Role: auth.RoleCourier}
	profile, err := env.flows.Courier.Profile(ctx, principal)
	require.NoError(t, err)
	assert.Equal(t, courier.ID, profile.Courier.ID)
	require.NotNil(t, profile.Vehicle)
	assert.Equal(t, "KCD1201X", profile.Vehicle.LicensePlate)
	assert.Equal(t, auth.VehicleVan, profile.Vehicle.VehicleType)
	assert.Nil(t, profile.Depot)

	_, err = env.flows.Courier.Profile(ctx, nil)
	assert.Error(t, err)
}

func TestCourierOnboarding_EmployeeProfile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	reg := env.onboardCourier(t, employeeMessage("01"), "otieno_o")

	profile, err := env.flows.Courier.Profile(ctx, &auth.Principal{AccountID: reg.AccountID, Role: auth.RoleCourier})
	require.NoError(t, err)
	assert.Nil(t, profile.Vehicle)
	require.NotNil(t, profile.Depot)
	assert.Equal(t, testDepotCode, profile.Depot.Code)
}

func TestCourierOnboarding_RegisterRejects(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.flows.Courier.Register(ctx, freelancerMessage("01"))
	require.NoError(t, err)

	t.Run("freelancer without vehicle", func(t *testing.T) {
		msg := freelancerMessage("02")
		msg.VehicleDetails = nil

		_, err := env.flows.Courier.Register(ctx, msg)
		assert.True(t, auth.HasTextCode(err, auth.TextCodeVehicleRequired))
		assert.Equal(t, 400, auth.StatusForError(err))
	})

	t.Run("license expiring today", func(t *testing.T) {
		msg := employeeMessage("02")
		msg.LicenseExpiryDate = testNow.Format(auth.LicenseDateLayout)

		_, err := env.flows.Courier.Register(ctx, msg)
		assert.True(t, auth.HasTextCode(err, auth.TextCodeLicenseExpired))
	})

	t.Run("license expiring tomorrow", func(t *testing.T) {
		msg := employeeMessage("03")
		msg.LicenseExpiryDate = testNow.AddDate(0, 0, 1).Format(auth.LicenseDateLayout)

		_, err := env.flows.Courier.Register(ctx, msg)
		assert.NoError(t, err)
	})

	t.Run("duplicates", func(t *testing.T) {
		taken := freelancerMessage("01")
		cases := []struct {
			name   string
			mutate func(*auth.RegisterCourierMessage)
			code   string
		}{
			{"email", func(m *auth.RegisterCourierMessage) { m.Email = taken.Email }, "DUPLICATE_EMAIL"},
			{"phone", func(m *auth.RegisterCourierMessage) { m.Phone = taken.Phone }, "DUPLICATE_PHONE"},
			{"license in lower case", func(m *auth.RegisterCourierMessage) { m.DriversLicenseNumber = "dl-770001" }, "DUPLICATE_DRIVERS_LICENSE_NUMBER"},
			{"national id", func(m *auth.RegisterCourierMessage) { m.NationalID = taken.NationalID }, "DUPLICATE_NATIONAL_ID"},
			{"plate with other spacing", func(m *auth.RegisterCourierMessage) { m.VehicleDetails.LicensePlate = "KCD1201X" }, "DUPLICATE_LICENSE_PLATE"},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				msg := freelancerMessage("04")
				tc.mutate(&msg)

				_, err := env.flows.Courier.Register(ctx, msg)
				require.Error(t, err)
				assert.True(t, auth.HasTextCode(err, tc.code), "got %v", err)
				assert.Equal(t, 409, auth.StatusForError(err))
			})
		}
	})

	t.Run("customer email is taken too", func(t *testing.T) {
		env.registerCustomer(t, "05")
		msg := employeeMessage("05")
		msg.Email = customerMessage("05").Email

		_, err := env.flows.Courier.Register(ctx, msg)
		assert.True(t, auth.HasTextCode(err, "DUPLICATE_EMAIL"))
	})
}

func TestCourierOnboarding_ApproveRejects(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.admin(t)

	reg, err := env.flows.Courier.Register(ctx, employeeMessage("01"))
	require.NoError(t, err)

	t.Run("before email verification", func(t *testing.T) {
		_, err := env.flows.Courier.Approve(ctx, reg.CourierID, &admin)
		require.Error(t, err)
		assert.True(t, auth.HasTextCode(err, auth.TextCodeEmailNotVerified))
	})

	ok, err := env.flows.Courier.VerifyEmail(ctx, env.mail.TokenOf(t, auth.NotifyCourierVerification, reg.Email))
	require.NoError(t, err)
	require.True(t, ok)

	t.Run("setup token issued while pending", func(t *testing.T) {
		record, err := env.deps.Verification.Issue(ctx, reg.AccountID, auth.TokenAccountSetup)
		require.NoError(t, err)

		_, err = env.flows.Courier.SetupAccount(ctx, auth.SetupCourierAccountMessage{
			Token:           record.Token,
			Username:        "too_early",
			Password:        testPassword,
			ConfirmPassword: testPassword,
		})
		assert.True(t, auth.HasTextCode(err, auth.TextCodePendingApproval))
	})

	t.Run("approver is not staff", func(t *testing.T) {
		customer := env.registerCustomer(t, "01")

		_, err := env.flows.Courier.Approve(ctx, reg.CourierID, &customer.ID)
		require.Error(t, err)
		assert.True(t, auth.HasTextCode(err, "ADMIN_NOT_FOUND"))
		assert.Equal(t, 404, auth.StatusForError(err))
	})

	t.Run("unknown courier", func(t *testing.T) {
		_, err := env.flows.Courier.Approve(ctx, uuid.New(), &admin)
		require.Error(t, err)
		assert.Equal(t, 404, auth.StatusForError(err))
	})

	_, err = env.flows.Courier.Approve(ctx, reg.CourierID, &admin)
	require.NoError(t, err)

	t.Run("twice", func(t *testing.T) {
		_, err := env.flows.Courier.Approve(ctx, reg.CourierID, &admin)
		require.Error(t, err)
		assert.True(t, auth.HasTextCode(err, textCodeInvalidTransition))
	})

	t.Run("verification link reused after approval", func(t *testing.T) {
		ok, err := env.flows.Courier.VerifyEmail(ctx, env.mail.TokenOf(t, auth.NotifyCourierVerification, reg.Email))
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestCourierOnboarding_SetupRejects(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.admin(t)

	reg, err := env.flows.Courier.Register(ctx, employeeMessage("01"))
	require.NoError(t, err)
	ok, err := env.flows.Courier.VerifyEmail(ctx, env.mail.TokenOf(t, auth.NotifyCourierVerification, reg.Email))
	require.NoError(t, err)
	require.True(t, ok)
	_, err = env.flows.Courier.Approve(ctx, reg.CourierID, &admin)
	require.NoError(t, err)
	token := env.mail.TokenOf(t, auth.NotifyCourierEmployeeApproval, reg.Email)

	setup := func(username, password, confirm string) error {
		_, err := env.flows.Courier.SetupAccount(ctx, auth.SetupCourierAccountMessage{
			Token:           token,
			Username:        username,
			Password:        password,
			ConfirmPassword: confirm,
		})
		return err
	}

	t.Run("password confirmation", func(t *testing.T) {
		err := setup("otieno_o", testPassword, testPassword+"x")
		assert.True(t, auth.HasTextCode(err, auth.TextCodePasswordMismatch))
	})

	t.Run("weak password", func(t *testing.T) {
		err := setup("otieno_o", "weakpassword", "weakpassword")
		assert.True(t, auth.HasTextCode(err, auth.TextCodeValidationFailed))
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := env.flows.Courier.SetupAccount(ctx, auth.SetupCourierAccountMessage{
			Token:           "missing",
			Username:        "otieno_o",
			Password:        testPassword,
			ConfirmPassword: testPassword,
		})
		assert.True(t, auth.HasTextCode(err, auth.TextCodeInvalidSetupToken))
	})

	t.Run("username taken", func(t *testing.T) {
		err := setup("opsadmin", testPassword, testPassword)
		require.Error(t, err)
		assert.True(t, auth.HasTextCode(err, "DUPLICATE_USERNAME"))
		assert.Equal(t, 409, auth.StatusForError(err))
	})

	assert.True(t, env.flows.Courier.ValidateSetupToken(ctx, token), "failed attempts leave the token usable")
	require.NoError(t, setup("otieno_o", testPassword, testPassword))
}

func TestCourierOnboarding_AutoApprove(t *testing.T) {
	env := newTestEnv(t, withAutoApprove())
	ctx := context.Background()
	msg := employeeMessage("01")

	reg, err := env.flows.Courier.Register(ctx, msg)
	require.NoError(t, err)

	ok, err := env.flows.Courier.VerifyEmail(ctx, env.mail.TokenOf(t, auth.NotifyCourierVerification, msg.Email))
	require.NoError(t, err)
	require.True(t, ok)

	courier := loadCourier(t, env, reg.CourierID)
	assert.Equal(t, auth.StageApproved, auth.StageOf(courier, courier.Account))
	assert.Nil(t, courier.ApprovedBy, "system approvals carry no admin")
	assert.Equal(t, "COU-2025-0001", courier.EmployeeID)

	assert.Zero(t, env.mail.Count(auth.NotifyCourierPendingApproval))
	env.mail.TokenOf(t, auth.NotifyCourierEmployeeApproval, msg.Email)

	approvals := env.activity.Of(auth.ActivityEventCourierApproved)
	require.Len(t, approvals, 1)
	assert.Equal(t, "system", approvals[0].Actor.Type)
}

func TestCourierOnboarding_Login(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	customer := customerMessage("01")
	env.registerCustomer(t, "01")

	t.Run("customers use their own login", func(t *testing.T) {
		_, err := env.flows.Courier.Login(ctx, customer.Username, customer.Password)
		require.Error(t, err)
		assert.True(t, auth.HasTextCode(err, auth.TextCodeWrongRole))
		assert.Equal(t, 400, auth.StatusForError(err))
	})

	t.Run("admins too", func(t *testing.T) {
		_, err := env.flows.Courier.Login(ctx, testAdminEmail, testAdminPassword)
		assert.True(t, auth.HasTextCode(err, auth.TextCodeWrongRole))
	})

	t.Run("courier before setup has no password", func(t *testing.T) {
		msg := employeeMessage("02")
		_, err := env.flows.Courier.Register(ctx, msg)
		require.NoError(t, err)

		_, err = env.flows.Courier.Login(ctx, msg.Email, testPassword)
		assert.True(t, auth.HasTextCode(err, auth.TextCodeInvalidCredentials))
	})

	t.Run("wrong role attempts are recorded", func(t *testing.T) {
		failures := env.activity.Of(auth.ActivityEventLoginFailure)
		require.NotEmpty(t, failures)
		assert.Equal(t, auth.TextCodeWrongRole, failures[0].Metadata["error"])
	})
}

func TestCourierOnboarding_StageChangesPublishedAfterCommit(t *testing.T) {
	env := newTestEnv(t)

	var mu sync.Mutex
	var seen []auth.OnboardingStage
	var readErrs []error

	// the in-memory store has one connection, a read from inside the
	// transaction would block until the timeout
	env.activity.onRecord = func(_ context.Context, event auth.ActivityEvent) {
		if event.EventType != auth.ActivityEventOnboardingStageChanged {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		courierID, _ := event.Metadata["courier_id"].(string)
		courier, err := env.repos.Couriers().GetByID(ctx, courierID)

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			readErrs = append(readErrs, err)
			return
		}
		seen = append(seen, auth.StageOf(courier, courier.Account))
	}

	env.onboardCourier(t, employeeMessage("01"), "otieno_o")

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, readErrs)
	assert.Equal(t, []auth.OnboardingStage{
		auth.StageEmailVerified,
		auth.StageApproved,
		auth.StageCredentialsSet,
	}, seen, "each event sees its own committed stage")
}
