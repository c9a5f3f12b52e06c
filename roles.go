package auth

// Role is the account's role
type Role string

const (
	RoleCustomer   Role = "CUSTOMER"
	RoleCourier    Role = "COURIER"
	RoleAdmin      Role = "ADMIN"
	RoleDepotAdmin Role = "DEPOT_ADMIN"
)

// IsValid checks if the role is one of the predefined valid roles
func (r Role) IsValid() bool {
	switch r {
	case RoleCustomer, RoleCourier, RoleAdmin, RoleDepotAdmin:
		return true
	default:
		return false
	}
}

func (r Role) String() string { return string(r) }

// IsStaff reports whether the role belongs to back office users
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleDepotAdmin
}

// EmploymentType tells how a courier works with us
type EmploymentType string

const (
	EmploymentEmployee   EmploymentType = "EMPLOYEE"
	EmploymentFreelancer EmploymentType = "FREELANCER"
)

func (e EmploymentType) IsValid() bool {
	return e == EmploymentEmployee || e == EmploymentFreelancer
}

// CourierStatus is the operational status of a courier
type CourierStatus string

const (
	CourierPending   CourierStatus = "PENDING"
	CourierActive    CourierStatus = "ACTIVE"
	CourierSuspended CourierStatus = "SUSPENDED"
	CourierInactive  CourierStatus = "INACTIVE"
)

// VerificationTokenType identifies the purpose of a verification token
type VerificationTokenType string

const (
	TokenEmailVerification VerificationTokenType = "EMAIL_VERIFICATION"
	TokenAccountSetup      VerificationTokenType = "ACCOUNT_SETUP"
	TokenPasswordReset     VerificationTokenType = "PASSWORD_RESET"
)

func (t VerificationTokenType) IsValid() bool {
	switch t {
	case TokenEmailVerification, TokenAccountSetup, TokenPasswordReset:
		return true
	default:
		return false
	}
}

// TokenKind is the value of the typ claim on bearer tokens
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// VehicleType is the kind of vehicle a freelancer brings
type VehicleType string

const (
	VehicleBike  VehicleType = "BIKE"
	VehicleCar   VehicleType = "CAR"
	VehicleVan   VehicleType = "VAN"
	VehicleTruck VehicleType = "TRUCK"
)

func (v VehicleType) IsValid() bool {
	switch v {
	case VehicleBike, VehicleCar, VehicleVan, VehicleTruck:
		return true
	default:
		return false
	}
}

// PackageCategory is the largest package class a vehicle can carry
type PackageCategory string

const (
	PackageDocument     PackageCategory = "DOCUMENT"
	PackageSmallParcel  PackageCategory = "SMALL_PARCEL"
	PackageMediumParcel PackageCategory = "MEDIUM_PARCEL"
	PackageLargeParcel  PackageCategory = "LARGE_PARCEL"
	PackageFurniture    PackageCategory = "FURNITURE"
)

// DefaultPackageCategory maps a vehicle type to the largest category it carries
func DefaultPackageCategory(v VehicleType) PackageCategory {
	switch v {
	case VehicleBike:
		return PackageSmallParcel
	case VehicleCar:
		return PackageMediumParcel
	case VehicleVan:
		return PackageLargeParcel
	case VehicleTruck:
		return PackageFurniture
	default:
		return PackageDocument
	}
}
