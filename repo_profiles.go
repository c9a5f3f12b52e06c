package auth

import (
	"context"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Customers stores customer profiles and their addresses
type Customers interface {
	repository.Repository[*Customer]

	CreateAddressTx(ctx context.Context, tx bun.IDB, address *CustomerAddress) error
	GetByAccountID(ctx context.Context, accountID uuid.UUID) (*Customer, error)
	GetByAccountIDTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) (*Customer, error)
	ExistsByNationalIDTx(ctx context.Context, tx bun.IDB, nationalID string) (bool, error)
}

// Couriers stores courier profiles and their vehicles
type Couriers interface {
	repository.Repository[*Courier]

	GetByAccountID(ctx context.Context, accountID uuid.UUID) (*Courier, error)
	GetByAccountIDTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) (*Courier, error)
	ExistsByLicenseTx(ctx context.Context, tx bun.IDB, license string) (bool, error)
	ExistsByNationalIDTx(ctx context.Context, tx bun.IDB, nationalID string) (bool, error)
	CountEmployeeIDsWithPrefixTx(ctx context.Context, tx bun.IDB, prefix string) (int, error)

	CreateVehicleTx(ctx context.Context, tx bun.IDB, vehicle *Vehicle) error
	GetVehicleByCourierIDTx(ctx context.Context, tx bun.IDB, courierID uuid.UUID) (*Vehicle, error)
	ExistsByPlateTx(ctx context.Context, tx bun.IDB, plate string) (bool, error)
}

// Depots resolves the depots couriers are attached to
type Depots interface {
	repository.Repository[*Depot]

	GetByCodeTx(ctx context.Context, tx bun.IDB, code string) (*Depot, error)
}

type customers struct {
	repository.Repository[*Customer]
	db *bun.DB
}

var _ Customers = (*customers)(nil)

// NewCustomersRepository returns a bun backed Customers store
func NewCustomersRepository(db *bun.DB) Customers {
	repo := repository.NewRepository[*Customer](db, repository.ModelHandlers[*Customer]{
		NewRecord: func() *Customer { return &Customer{} },
		GetID: func(c *Customer) uuid.UUID {
			if c == nil {
				return uuid.Nil
			}
			return c.ID
		},
		SetID: func(c *Customer, id uuid.UUID) {
			if c != nil {
				c.ID = id
			}
		},
	})
	return &customers{Repository: repo, db: db}
}

func (c *customers) CreateTx(ctx context.Context, tx bun.IDB, record *Customer, criteria ...repository.InsertCriteria) (*Customer, error) {
	created, err := c.Repository.CreateTx(ctx, tx, record, criteria...)
	if err != nil {
		return nil, MapConstraintError(err)
	}
	return created, nil
}

func (c *customers) CreateAddressTx(ctx context.Context, tx bun.IDB, address *CustomerAddress) error {
	if address.ID == uuid.Nil {
		address.ID = uuid.New()
	}
	_, err := tx.NewInsert().Model(address).Exec(ctx)
	return MapConstraintError(err)
}

func (c *customers) GetByAccountID(ctx context.Context, accountID uuid.UUID) (*Customer, error) {
	return c.GetByAccountIDTx(ctx, c.db, accountID)
}

func (c *customers) GetByAccountIDTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) (*Customer, error) {
	record := &Customer{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.account_id = ?", accountID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, mapRecordNotFound(err, "Customer", accountID)
	}
	return record, nil
}

func (c *customers) ExistsByNationalIDTx(ctx context.Context, tx bun.IDB, nationalID string) (bool, error) {
	nationalID = strings.TrimSpace(nationalID)
	if nationalID == "" {
		return false, nil
	}
	return tx.NewSelect().
		Model((*Customer)(nil)).
		Where("?TableAlias.national_id = ?", nationalID).
		Exists(ctx)
}

type couriers struct {
	repository.Repository[*Courier]
	db *bun.DB
}

var _ Couriers = (*couriers)(nil)

// NewCouriersRepository returns a bun backed Couriers store
func NewCouriersRepository(db *bun.DB) Couriers {
	repo := repository.NewRepository[*Courier](db, repository.ModelHandlers[*Courier]{
		NewRecord: func() *Courier { return &Courier{} },
		GetID: func(c *Courier) uuid.UUID {
			if c == nil {
				return uuid.Nil
			}
			return c.ID
		},
		SetID: func(c *Courier, id uuid.UUID) {
			if c != nil {
				c.ID = id
			}
		},
	})
	return &couriers{Repository: repo, db: db}
}

func withAccount(q *bun.SelectQuery) *bun.SelectQuery {
	return q.Relation("Account")
}

func (c *couriers) CreateTx(ctx context.Context, tx bun.IDB, record *Courier, criteria ...repository.InsertCriteria) (*Courier, error) {
	created, err := c.Repository.CreateTx(ctx, tx, record, criteria...)
	if err != nil {
		return nil, MapConstraintError(err)
	}
	return created, nil
}

func (c *couriers) Update(ctx context.Context, record *Courier, criteria ...repository.UpdateCriteria) (*Courier, error) {
	return c.UpdateTx(ctx, c.db, record, criteria...)
}

func (c *couriers) UpdateTx(ctx context.Context, tx bun.IDB, record *Courier, criteria ...repository.UpdateCriteria) (*Courier, error) {
	if len(criteria) == 0 {
		criteria = append(criteria, repository.UpdateByID(record.ID.String()))
	}
	updated, err := c.Repository.UpdateTx(ctx, tx, record, criteria...)
	if err != nil {
		return nil, mapRecordNotFound(MapConstraintError(err), "Courier", record.ID)
	}
	return updated, nil
}

func (c *couriers) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*Courier, error) {
	return c.GetByIDTx(ctx, c.db, id, criteria...)
}

// GetByIDTx loads the courier together with its account
func (c *couriers) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (*Courier, error) {
	criteria = append([]repository.SelectCriteria{withAccount}, criteria...)
	record, err := c.Repository.GetByIDTx(ctx, tx, id, criteria...)
	if err != nil {
		return nil, mapRecordNotFound(err, "Courier", id)
	}
	return record, nil
}

func (c *couriers) GetByAccountID(ctx context.Context, accountID uuid.UUID) (*Courier, error) {
	return c.GetByAccountIDTx(ctx, c.db, accountID)
}

func (c *couriers) GetByAccountIDTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) (*Courier, error) {
	record := &Courier{}
	err := tx.NewSelect().
		Model(record).
		Apply(withAccount).
		Where("?TableAlias.account_id = ?", accountID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, mapRecordNotFound(err, "Courier", accountID)
	}
	return record, nil
}

func (c *couriers) ExistsByLicenseTx(ctx context.Context, tx bun.IDB, license string) (bool, error) {
	return tx.NewSelect().
		Model((*Courier)(nil)).
		Where("?TableAlias.drivers_license = ?", strings.ToUpper(strings.TrimSpace(license))).
		Exists(ctx)
}

func (c *couriers) ExistsByNationalIDTx(ctx context.Context, tx bun.IDB, nationalID string) (bool, error) {
	return tx.NewSelect().
		Model((*Courier)(nil)).
		Where("?TableAlias.national_id = ?", strings.TrimSpace(nationalID)).
		Exists(ctx)
}

func (c *couriers) CountEmployeeIDsWithPrefixTx(ctx context.Context, tx bun.IDB, prefix string) (int, error) {
	return tx.NewSelect().
		Model((*Courier)(nil)).
		Where("?TableAlias.employee_id LIKE ?", prefix+"%").
		Count(ctx)
}

func (c *couriers) CreateVehicleTx(ctx context.Context, tx bun.IDB, vehicle *Vehicle) error {
	_, err := tx.NewInsert().Model(vehicle).Exec(ctx)
	return MapConstraintError(err)
}

func (c *couriers) GetVehicleByCourierIDTx(ctx context.Context, tx bun.IDB, courierID uuid.UUID) (*Vehicle, error) {
	record := &Vehicle{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.courier_id = ?", courierID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, mapRecordNotFound(err, "Vehicle", courierID)
	}
	return record, nil
}

func (c *couriers) ExistsByPlateTx(ctx context.Context, tx bun.IDB, plate string) (bool, error) {
	return tx.NewSelect().
		Model((*Vehicle)(nil)).
		Where("?TableAlias.license_plate = ?", plate).
		Exists(ctx)
}

type depots struct {
	repository.Repository[*Depot]
	db *bun.DB
}

var _ Depots = (*depots)(nil)

// NewDepotsRepository returns a bun backed Depots store
func NewDepotsRepository(db *bun.DB) Depots {
	repo := repository.NewRepository[*Depot](db, repository.ModelHandlers[*Depot]{
		NewRecord: func() *Depot { return &Depot{} },
		GetID: func(d *Depot) uuid.UUID {
			if d == nil {
				return uuid.Nil
			}
			return d.ID
		},
		SetID: func(d *Depot, id uuid.UUID) {
			if d != nil {
				d.ID = id
			}
		},
		GetIdentifier: func() string {
			return "code"
		},
	})
	return &depots{Repository: repo, db: db}
}

func (d *depots) GetByCodeTx(ctx context.Context, tx bun.IDB, code string) (*Depot, error) {
	record, err := d.Repository.GetByIdentifierTx(ctx, tx, code)
	if err != nil {
		return nil, mapRecordNotFound(err, "Depot", code)
	}
	return record, nil
}

func (d *depots) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*Depot, error) {
	return d.GetByIDTx(ctx, d.db, id, criteria...)
}

func (d *depots) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (*Depot, error) {
	record, err := d.Repository.GetByIDTx(ctx, tx, id, criteria...)
	if err != nil {
		return nil, mapRecordNotFound(err, "Depot", id)
	}
	return record, nil
}

func (d *depots) CreateTx(ctx context.Context, tx bun.IDB, record *Depot, criteria ...repository.InsertCriteria) (*Depot, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	created, err := d.Repository.CreateTx(ctx, tx, record, criteria...)
	if err != nil {
		return nil, MapConstraintError(err)
	}
	return created, nil
}
