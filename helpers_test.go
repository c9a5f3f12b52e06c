package auth_test

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"

	auth "github.com/goliatone/go-courier-auth"
	"github.com/goliatone/go-courier-auth/repository"
)

var (
	testSigningKey = []byte("0123456789abcdef0123456789abcdef")
	testNow        = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
)

const (
	testPassword      = "Secr3t!Pass"
	testAdminEmail    = "ops@courigistics.test"
	testAdminPassword = "Adm1n!Pass"
	testDepotCode     = "NBO-HQ"
	testFrontendURL   = "https://app.courigistics.test"
)

type testConfig struct {
	autoApprove bool
	accessTTL   time.Duration
	refreshTTL  time.Duration
	tokenTTL    map[auth.VerificationTokenType]time.Duration
}

func (c *testConfig) GetApplicationName() string { return "courigistics" }

func (c *testConfig) GetEnvironment() string { return auth.EnvironmentTest }

func (c *testConfig) GetSigningKey() string { return "" }

func (c *testConfig) GetAccessTokenTTL() time.Duration { return c.accessTTL }

func (c *testConfig) GetRefreshTokenTTL() time.Duration { return c.refreshTTL }

func (c *testConfig) GetVerificationTokenBytes() int { return 32 }

func (c *testConfig) GetVerificationTokenTTL(kind auth.VerificationTokenType) time.Duration {
	if ttl, ok := c.tokenTTL[kind]; ok {
		return ttl
	}
	return 24 * time.Hour
}

func (c *testConfig) GetEmployeeIDPrefix() string { return "COU" }

func (c *testConfig) GetEmployeeIDWidth() int { return 4 }

func (c *testConfig) GetCourierAutoApprove() bool { return c.autoApprove }

func (c *testConfig) GetDefaultDepotCode() string { return testDepotCode }

func (c *testConfig) GetPhoneDefaultRegion() string { return "KE" }

func (c *testConfig) GetFrontendURL() string { return testFrontendURL }

func newTestConfig() *testConfig {
	return &testConfig{
		accessTTL:  15 * time.Minute,
		refreshTTL: 7 * 24 * time.Hour,
		tokenTTL: map[auth.VerificationTokenType]time.Duration{
			auth.TokenEmailVerification: 24 * time.Hour,
			auth.TokenAccountSetup:      72 * time.Hour,
			auth.TokenPasswordReset:     time.Hour,
		},
	}
}

// testClock is a movable clock shared by every collaborator
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// mailbox captures notifications instead of sending them
type mailbox struct {
	mu   sync.Mutex
	sent []auth.Notification
}

func (m *mailbox) Send(_ context.Context, n auth.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, n)
	return nil
}

func (m *mailbox) All() []auth.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]auth.Notification, len(m.sent))
	copy(out, m.sent)
	return out
}

// Last returns the most recent notification of kind sent to recipient
func (m *mailbox) Last(t *testing.T, kind auth.NotificationKind, recipient string) auth.Notification {
	t.Helper()
	all := m.All()
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Kind == kind && all[i].Recipient == recipient {
			return all[i]
		}
	}
	require.Failf(t, "notification not sent", "%s to %s", kind, recipient)
	return auth.Notification{}
}

// TokenOf extracts the token query parameter from the notification link
func (m *mailbox) TokenOf(t *testing.T, kind auth.NotificationKind, recipient string) string {
	t.Helper()
	n := m.Last(t, kind, recipient)
	u, err := url.Parse(n.Variables["link"])
	require.NoError(t, err)
	token := u.Query().Get("token")
	require.NotEmpty(t, token)
	return token
}

func (m *mailbox) Count(kind auth.NotificationKind) int {
	n := 0
	for _, sent := range m.All() {
		if sent.Kind == kind {
			n++
		}
	}
	return n
}

// activityLog captures activity events. onRecord, when set, runs on
// the recording goroutine.
type activityLog struct {
	mu       sync.Mutex
	events   []auth.ActivityEvent
	onRecord func(ctx context.Context, event auth.ActivityEvent)
}

func (a *activityLog) Record(ctx context.Context, event auth.ActivityEvent) error {
	a.mu.Lock()
	a.events = append(a.events, event)
	hook := a.onRecord
	a.mu.Unlock()

	if hook != nil {
		hook(ctx, event)
	}
	return nil
}

func (a *activityLog) Of(eventType auth.ActivityEventType) []auth.ActivityEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []auth.ActivityEvent
	for _, e := range a.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type testEnv struct {
	db       *bun.DB
	cfg      *testConfig
	clock    *testClock
	repos    auth.RepositoryManager
	tokens   *auth.TokenServiceImpl
	deps     auth.Deps
	flows    auth.Flows
	mail     *mailbox
	activity *activityLog
	adminID  string
}

type envOption func(*testConfig)

func withAutoApprove() envOption {
	return func(c *testConfig) { c.autoApprove = true }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	cfg := newTestConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	db, err := repository.Open(repository.DriverSQLite, repository.MemoryDSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	require.NoError(t, repository.Migrate(ctx, db))

	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	require.NoError(t, repository.Seed(ctx, db, repository.SeedOptions{
		AdminEmail:    testAdminEmail,
		AdminUsername: "opsadmin",
		AdminPhone:    "254700000001",
		AdminPassword: testAdminPassword,
		DepotCode:     testDepotCode,
		DepotName:     "Nairobi HQ",
		DepotCity:     "Nairobi",
		Hasher:        hasher,
		Now:           testNow,
	}))

	clock := &testClock{now: testNow}
	repos := auth.NewRepositoryManager(db)
	repos.MustValidate()
	tokens := auth.NewTokenService(testSigningKey, cfg.GetApplicationName(), cfg.GetEnvironment(), cfg.GetFrontendURL(), quietLogger{}).
		WithClock(clock.Now)

	env := &testEnv{
		db:       db,
		cfg:      cfg,
		clock:    clock,
		repos:    repos,
		tokens:   tokens,
		mail:     &mailbox{},
		activity: &activityLog{},
	}

	env.deps = auth.NewDeps(repos, cfg, tokens,
		auth.WithDepsHasher(hasher),
		auth.WithDepsNotifier(env.mail),
		auth.WithDepsActivitySink(env.activity),
		auth.WithDepsClock(clock.Now),
		auth.WithDepsLogger(quietLogger{}),
	)
	env.flows = auth.NewFlows(env.deps)

	admin, err := repos.Accounts().GetByEmail(ctx, testAdminEmail)
	require.NoError(t, err)
	env.adminID = admin.ID.String()

	return env
}

type quietLogger struct{}

func (quietLogger) Debug(string, ...any) {}
func (quietLogger) Info(string, ...any)  {}
func (quietLogger) Warn(string, ...any)  {}
func (quietLogger) Error(string, ...any) {}

func customerMessage(suffix string) auth.RegisterCustomerMessage {
	return auth.RegisterCustomerMessage{
		Email:      "jane" + suffix + "@example.com",
		Username:   "jane_" + suffix,
		Password:   testPassword,
		FirstName:  "Jane",
		LastName:   "Wanjiku",
		NationalID: "2233445" + suffix,
		Phone:      "07110001" + suffix,
	}
}

func employeeMessage(suffix string) auth.RegisterCourierMessage {
	return auth.RegisterCourierMessage{
		FirstName:            "Otieno",
		LastName:             "Ouma",
		NationalID:           "3344556" + suffix,
		Email:                "otieno" + suffix + "@example.com",
		Phone:                "07220002" + suffix,
		EmploymentType:       auth.EmploymentEmployee,
		DriversLicenseNumber: "DL-5500" + suffix,
		LicenseExpiryDate:    "2030-01-01",
	}
}

func freelancerMessage(suffix string) auth.RegisterCourierMessage {
	msg := employeeMessage(suffix)
	msg.FirstName = "Akinyi"
	msg.Email = "akinyi" + suffix + "@example.com"
	msg.Phone = "07120003" + suffix
	msg.NationalID = "4455667" + suffix
	msg.DriversLicenseNumber = "DL-7700" + suffix
	msg.EmploymentType = auth.EmploymentFreelancer
	msg.VehicleDetails = &auth.VehicleDetails{
		VehicleType:  auth.VehicleVan,
		Make:         "Toyota",
		Model:        "Hiace",
		LicensePlate: "kcd 12" + suffix + "x",
		Year:         2019,
		Color:        "White",
		CapacityKg:   1200,
		CapacityM3:   8,
	}
	return msg
}

// registerCustomer registers and verifies a customer account
func (e *testEnv) registerCustomer(t *testing.T, suffix string) *auth.Account {
	t.Helper()
	ctx := context.Background()
	msg := customerMessage(suffix)

	account, err := e.flows.Customer.Register(ctx, msg)
	require.NoError(t, err)

	ok, err := e.flows.Customer.VerifyEmail(ctx, e.mail.TokenOf(t, auth.NotifyCustomerVerification, msg.Email))
	require.NoError(t, err)
	require.True(t, ok)

	return account
}

// onboardCourier takes a courier from registration to a usable login
func (e *testEnv) onboardCourier(t *testing.T, msg auth.RegisterCourierMessage, username string) *auth.CourierRegistration {
	t.Helper()
	ctx := context.Background()

	reg, err := e.flows.Courier.Register(ctx, msg)
	require.NoError(t, err)

	ok, err := e.flows.Courier.VerifyEmail(ctx, e.mail.TokenOf(t, auth.NotifyCourierVerification, reg.Email))
	require.NoError(t, err)
	require.True(t, ok)

	admin := e.admin(t)
	_, err = e.flows.Courier.Approve(ctx, reg.CourierID, &admin)
	require.NoError(t, err)

	kind := auth.NotifyCourierFreelancerApproval
	if msg.EmploymentType == auth.EmploymentEmployee {
		kind = auth.NotifyCourierEmployeeApproval
	}
	_, err = e.flows.Courier.SetupAccount(ctx, auth.SetupCourierAccountMessage{
		Token:           e.mail.TokenOf(t, kind, reg.Email),
		Username:        username,
		Password:        testPassword,
		ConfirmPassword: testPassword,
	})
	require.NoError(t, err)

	return reg
}

// activeSessions counts the live refresh tokens of an account
func (e *testEnv) activeSessions(t *testing.T, accountID uuid.UUID) int {
	t.Helper()
	n, err := e.db.NewSelect().
		Model((*auth.RefreshToken)(nil)).
		Where("?TableAlias.account_id = ?", accountID).
		Where("?TableAlias.invalidated = ?", false).
		Count(context.Background())
	require.NoError(t, err)
	return n
}

func (e *testEnv) admin(t *testing.T) uuid.UUID {
	t.Helper()
	id, err := auth.ParseID("admin", e.adminID)
	require.NoError(t, err)
	return id
}
