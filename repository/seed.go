package repository

import (
	"context"
	"strings"
	"time"

	auth "github.com/goliatone/go-courier-auth"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SeedOptions describes the rows a fresh environment needs
type SeedOptions struct {
	AdminEmail    string
	AdminUsername string
	AdminPhone    string
	AdminPassword string
	DepotCode     string
	DepotName     string
	DepotCity     string
	Hasher        auth.PasswordAuthenticator
	Now           time.Time
}

// Seed creates the admin account and the default depot when missing.
// Running it again is a no-op.
func Seed(ctx context.Context, db *bun.DB, opts SeedOptions) error {
	repos := auth.NewRepositoryManager(db)

	if opts.Hasher == nil {
		opts.Hasher = auth.NewBcryptHasher(0)
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now().UTC()
	}

	return repos.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if code := strings.TrimSpace(opts.DepotCode); code != "" {
			if err := seedDepot(ctx, tx, repos, code, opts); err != nil {
				return err
			}
		}
		if strings.TrimSpace(opts.AdminEmail) != "" {
			return seedAdmin(ctx, tx, repos, opts)
		}
		return nil
	})
}

func seedDepot(ctx context.Context, tx bun.Tx, repos auth.RepositoryManager, code string, opts SeedOptions) error {
	_, err := repos.Depots().GetByCodeTx(ctx, tx, code)
	if err == nil {
		return nil
	}
	if !goerrors.IsNotFound(err) {
		return err
	}

	name := opts.DepotName
	if name == "" {
		name = code
	}
	_, err = repos.Depots().CreateTx(ctx, tx, &auth.Depot{
		ID:        uuid.New(),
		Code:      code,
		Name:      name,
		City:      opts.DepotCity,
		CreatedAt: opts.Now,
	})
	return err
}

func seedAdmin(ctx context.Context, tx bun.Tx, repos auth.RepositoryManager, opts SeedOptions) error {
	exists, err := repos.Accounts().ExistsByEmailTx(ctx, tx, opts.AdminEmail)
	if err != nil || exists {
		return err
	}

	if opts.AdminPassword == "" {
		return goerrors.New("admin password is required to seed the admin account", goerrors.CategoryValidation).
			WithTextCode("SEED_ADMIN_PASSWORD_REQUIRED")
	}

	hash, err := opts.Hasher.HashPassword(opts.AdminPassword)
	if err != nil {
		return err
	}

	username := opts.AdminUsername
	if username == "" {
		username = "admin"
	}

	admin := auth.NewAccount(opts.AdminEmail, opts.AdminPhone, auth.RoleAdmin, opts.Now)
	admin.SetCredentials(username, hash, opts.Now)
	admin.MarkEmailVerified(opts.Now)
	if err := admin.Enable(opts.Now); err != nil {
		return err
	}
	_, err = repos.Accounts().CreateTx(ctx, tx, admin)
	return err
}
