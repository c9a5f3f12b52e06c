package auth

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Account is the identity record shared by every role
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:acc"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Username      string     `bun:"username,nullzero" json:"username,omitempty"`
	Email         string     `bun:"email,notnull" json:"email"`
	Phone         string     `bun:"phone,notnull" json:"phone"`
	PasswordHash  string     `bun:"password_hash,nullzero" json:"-"`
	Role          Role       `bun:"role,notnull" json:"role"`
	Enabled       bool       `bun:"enabled,notnull" json:"enabled"`
	EmailVerified bool       `bun:"email_verified,notnull" json:"email_verified"`
	AccountLocked bool       `bun:"account_locked,notnull" json:"account_locked"`
	LastLoginAt   *time.Time `bun:"last_login_at,nullzero" json:"last_login_at,omitempty"`
	CreatedAt     time.Time  `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time  `bun:"updated_at,notnull" json:"updated_at"`
}

// NewAccount creates a disabled, unverified account
func NewAccount(email, phone string, role Role, now time.Time) *Account {
	return &Account{
		ID:        uuid.New(),
		Email:     strings.ToLower(strings.TrimSpace(email)),
		Phone:     phone,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MarkEmailVerified flags the email as verified
func (a *Account) MarkEmailVerified(now time.Time) {
	a.EmailVerified = true
	a.UpdatedAt = now
}

// Enable turns the account on. An account can only be enabled
// once its email is verified and it has a password.
func (a *Account) Enable(now time.Time) error {
	if !a.EmailVerified || a.PasswordHash == "" {
		return ErrAccountInvariant
	}
	a.Enabled = true
	a.UpdatedAt = now
	return nil
}

// SetCredentials stores a username and password hash
func (a *Account) SetCredentials(username, passwordHash string, now time.Time) {
	if username != "" {
		a.Username = username
	}
	a.PasswordHash = passwordHash
	a.UpdatedAt = now
}

// ResetPassword replaces the hash and lifts any lock
func (a *Account) ResetPassword(passwordHash string, now time.Time) {
	a.PasswordHash = passwordHash
	a.AccountLocked = false
	a.UpdatedAt = now
}

// CheckActive returns the authorization error for a locked or disabled account
func (a *Account) CheckActive() error {
	if a.AccountLocked {
		return ErrAccountLocked
	}
	if !a.Enabled {
		return ErrAccountDisabled
	}
	return nil
}

// Customer is the profile of a customer account
type Customer struct {
	bun.BaseModel   `bun:"table:customers,alias:cus"`
	ID              uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	AccountID       uuid.UUID `bun:"account_id,notnull,type:uuid" json:"account_id"`
	FirstName       string    `bun:"first_name,notnull" json:"first_name"`
	LastName        string    `bun:"last_name,notnull" json:"last_name"`
	NationalID      string    `bun:"national_id,nullzero" json:"national_id,omitempty"`
	ProfileImageURL string    `bun:"profile_image_url,nullzero" json:"profile_image_url,omitempty"`
	CreatedAt       time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt       time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

// NewCustomer creates the customer profile for an account
func NewCustomer(accountID uuid.UUID, firstName, lastName, nationalID string, now time.Time) *Customer {
	return &Customer{
		ID:         uuid.New(),
		AccountID:  accountID,
		FirstName:  strings.TrimSpace(firstName),
		LastName:   strings.TrimSpace(lastName),
		NationalID: strings.TrimSpace(nationalID),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// CustomerAddress is a delivery address owned by an account
type CustomerAddress struct {
	bun.BaseModel `bun:"table:customer_addresses,alias:adr"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	AccountID     uuid.UUID `bun:"account_id,notnull,type:uuid" json:"account_id"`
	Label         string    `bun:"label,nullzero" json:"label,omitempty"`
	AddressLine1  string    `bun:"address_line1,notnull" json:"address_line1"`
	AddressLine2  string    `bun:"address_line2,nullzero" json:"address_line2,omitempty"`
	City          string    `bun:"city,notnull" json:"city"`
	PostalCode    string    `bun:"postal_code,nullzero" json:"postal_code,omitempty"`
	Country       string    `bun:"country,notnull" json:"country"`
	Latitude      *float64  `bun:"latitude" json:"latitude,omitempty"`
	Longitude     *float64  `bun:"longitude" json:"longitude,omitempty"`
	IsDefault     bool      `bun:"is_default,notnull" json:"is_default"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

// Depot is the minimal depot reference couriers get attached to
type Depot struct {
	bun.BaseModel `bun:"table:depots,alias:dep"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Code          string    `bun:"code,notnull" json:"code"`
	Name          string    `bun:"name,notnull" json:"name"`
	City          string    `bun:"city,nullzero" json:"city,omitempty"`
	Country       string    `bun:"country,nullzero" json:"country,omitempty"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
}

const (
	defaultMaxWeightPerRouteKg = 100.0
	defaultMaxDeliveriesPerDay = 20
)

// Courier is the onboarding profile of a courier account
type Courier struct {
	bun.BaseModel          `bun:"table:couriers,alias:cou"`
	ID                     uuid.UUID      `bun:"id,pk,type:uuid" json:"id"`
	AccountID              uuid.UUID      `bun:"account_id,notnull,type:uuid" json:"account_id"`
	Account                *Account       `bun:"rel:belongs-to,join:account_id=id" json:"account,omitempty"`
	FirstName              string         `bun:"first_name,notnull" json:"first_name"`
	LastName               string         `bun:"last_name,notnull" json:"last_name"`
	Status                 CourierStatus  `bun:"status,notnull" json:"status"`
	DepotID                *uuid.UUID     `bun:"depot_id,nullzero,type:uuid" json:"depot_id,omitempty"`
	EmployeeID             string         `bun:"employee_id,nullzero" json:"employee_id,omitempty"`
	EmploymentType         EmploymentType `bun:"employment_type,notnull" json:"employment_type"`
	NationalID             string         `bun:"national_id,notnull" json:"national_id"`
	DriversLicenseNumber   string         `bun:"drivers_license,notnull" json:"drivers_license_number"`
	LicenseExpiryDate      time.Time      `bun:"license_expiry_date,notnull" json:"license_expiry_date"`
	PendingApproval        bool           `bun:"pending_approval,notnull" json:"pending_approval"`
	ApprovedAt             *time.Time     `bun:"approved_at,nullzero" json:"approved_at,omitempty"`
	ApprovedBy             *uuid.UUID     `bun:"approved_by,nullzero,type:uuid" json:"approved_by,omitempty"`
	MaxWeightPerRouteKg    float64        `bun:"max_weight_per_route_kg,notnull" json:"max_weight_per_route_kg"`
	MaxDeliveriesPerDay    int            `bun:"max_deliveries_per_day,notnull" json:"max_deliveries_per_day"`
	AvailableForAssignment bool           `bun:"available_for_assignment,notnull" json:"available_for_assignment"`
	OperationalCity        string         `bun:"operational_city,nullzero" json:"operational_city,omitempty"`
	HiredAt                *time.Time     `bun:"hired_at,nullzero" json:"hired_at,omitempty"`
	CreatedAt              time.Time      `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt              time.Time      `bun:"updated_at,notnull" json:"updated_at"`
}

// NewCourier creates a courier awaiting email verification and approval
func NewCourier(accountID uuid.UUID, firstName, lastName string, employment EmploymentType, nationalID, license string, licenseExpiry time.Time, now time.Time) *Courier {
	return &Courier{
		ID:                     uuid.New(),
		AccountID:              accountID,
		FirstName:              strings.TrimSpace(firstName),
		LastName:               strings.TrimSpace(lastName),
		Status:                 CourierPending,
		EmploymentType:         employment,
		NationalID:             strings.TrimSpace(nationalID),
		DriversLicenseNumber:   strings.ToUpper(strings.TrimSpace(license)),
		LicenseExpiryDate:      licenseExpiry,
		PendingApproval:        true,
		MaxWeightPerRouteKg:    defaultMaxWeightPerRouteKg,
		MaxDeliveriesPerDay:    defaultMaxDeliveriesPerDay,
		AvailableForAssignment: true,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
}

// Approve stamps the approval and activates the courier
func (c *Courier) Approve(adminID *uuid.UUID, employeeID string, now time.Time) {
	c.PendingApproval = false
	c.ApprovedAt = &now
	c.ApprovedBy = adminID
	c.Status = CourierActive
	if employeeID != "" {
		c.EmployeeID = employeeID
		c.HiredAt = &now
	}
	c.UpdatedAt = now
}

// Vehicle is the vehicle a freelance courier registers with
type Vehicle struct {
	bun.BaseModel      `bun:"table:vehicles,alias:veh"`
	ID                 uuid.UUID       `bun:"id,pk,type:uuid" json:"id"`
	CourierID          uuid.UUID       `bun:"courier_id,notnull,type:uuid" json:"courier_id"`
	VehicleType        VehicleType     `bun:"vehicle_type,notnull" json:"vehicle_type"`
	Make               string          `bun:"make,notnull" json:"make"`
	Model              string          `bun:"model,notnull" json:"model"`
	ManufactureYear    int             `bun:"manufacture_year,notnull" json:"manufacture_year"`
	Color              string          `bun:"color,nullzero" json:"color,omitempty"`
	LicensePlate       string          `bun:"license_plate,notnull" json:"license_plate"`
	CapacityKg         float64         `bun:"capacity_kg,notnull" json:"capacity_kg"`
	CapacityM3         float64         `bun:"capacity_m3,notnull" json:"capacity_m3"`
	MaxPackageCategory PackageCategory `bun:"max_package_category,notnull" json:"max_package_category"`
	Status             string          `bun:"status,notnull" json:"status"`
	CreatedAt          time.Time       `bun:"created_at,notnull" json:"created_at"`
}

// VehicleDetails is the input used to register a vehicle
type VehicleDetails struct {
	VehicleType  VehicleType `json:"vehicleType"`
	Make         string      `json:"make"`
	Model        string      `json:"model"`
	LicensePlate string      `json:"licensePlate"`
	Year         int         `json:"year"`
	Color        string      `json:"color"`
	CapacityKg   float64     `json:"capacityKg"`
	CapacityM3   float64     `json:"capacityM3"`
}

// NormalizedPlate is the canonical form of the license plate
func (d VehicleDetails) NormalizedPlate() string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(d.LicensePlate), " ", ""))
}

// NewVehicle creates an active vehicle and derives the package category
func NewVehicle(courierID uuid.UUID, d VehicleDetails, now time.Time) *Vehicle {
	return &Vehicle{
		ID:                 uuid.New(),
		CourierID:          courierID,
		VehicleType:        d.VehicleType,
		Make:               strings.TrimSpace(d.Make),
		Model:              strings.TrimSpace(d.Model),
		ManufactureYear:    d.Year,
		Color:              strings.TrimSpace(d.Color),
		LicensePlate:       d.NormalizedPlate(),
		CapacityKg:         d.CapacityKg,
		CapacityM3:         d.CapacityM3,
		MaxPackageCategory: DefaultPackageCategory(d.VehicleType),
		Status:             "ACTIVE",
		CreatedAt:          now,
	}
}

// VerificationToken is a single use, typed, expiring secret
type VerificationToken struct {
	bun.BaseModel `bun:"table:verification_tokens,alias:vt"`
	ID            uuid.UUID             `bun:"id,pk,type:uuid" json:"id"`
	AccountID     uuid.UUID             `bun:"account_id,notnull,type:uuid" json:"account_id"`
	Token         string                `bun:"token,notnull" json:"-"`
	Type          VerificationTokenType `bun:"token_type,notnull" json:"type"`
	ExpiresAt     time.Time             `bun:"expires_at,notnull" json:"expires_at"`
	Used          bool                  `bun:"used,notnull" json:"used"`
	CreatedAt     time.Time             `bun:"created_at,notnull" json:"created_at"`
}

// IsExpired reports whether the token is past its expiry
func (v *VerificationToken) IsExpired(now time.Time) bool {
	return !now.Before(v.ExpiresAt)
}

// RefreshToken is a persisted session credential
type RefreshToken struct {
	bun.BaseModel `bun:"table:refresh_tokens,alias:rt"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	AccountID     uuid.UUID `bun:"account_id,notnull,type:uuid" json:"account_id"`
	Token         string    `bun:"token,notnull" json:"-"`
	ExpiresAt     time.Time `bun:"expires_at,notnull" json:"expires_at"`
	Invalidated   bool      `bun:"invalidated,notnull" json:"invalidated"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
}

// IsExpired reports whether the refresh token is past its expiry
func (r *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
