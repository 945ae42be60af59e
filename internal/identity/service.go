package identity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 6
	// bcrypt only accepts passwords up to 72 bytes.
	maxPasswordLength = 72
)

var (
	// ErrInvalidCredentials covers both unknown emails and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidEmail       = errors.New("email address is invalid")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
	ErrPasswordTooLong    = errors.New("password must be at most 72 bytes")
	ErrEmailTaken         = errors.New("email already registered")
)

// Demo account emails provisioned by SeedDemo.
const (
	DemoClientEmail = "client@demo.com"
	DemoAdminEmail  = "admin@demo.com"
)

// Directory is the credential authority used in standalone mode.
type Directory struct {
	repo Repository
	cost int
	now  func() time.Time

	// dummyHash is compared against for unknown emails so they cost as much
	// as a wrong password. It is built at the directory's cost on first use.
	dummyHash func() []byte
}

// NewDirectory creates a new account directory.
func NewDirectory(repo Repository) *Directory {
	d := &Directory{repo: repo, cost: bcrypt.DefaultCost, now: time.Now}
	d.dummyHash = sync.OnceValue(func() []byte {
		hash, _ := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), d.cost)
		return hash
	})
	return d
}

// WithCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func (d *Directory) WithCost(cost int) *Directory {
	d.cost = cost
	return d
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a client account with a zero balance and pending KYC.
func (d *Directory) Register(ctx context.Context, email, password string) (Identity, error) {
	email = NormalizeEmail(email)
	if !strings.Contains(email, "@") {
		return Identity{}, ErrInvalidEmail
	}
	if err := checkPassword(password); err != nil {
		return Identity{}, err
	}
	return d.create(ctx, email, password, RoleClient, decimal.Zero, KYCPending)
}

func (d *Directory) create(ctx context.Context, email, password string, role Role, balance decimal.Decimal, kyc KYCStatus) (Identity, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), d.cost)
	if err != nil {
		return Identity{}, err
	}

	now := d.now().UTC()
	account := Account{
		Identity: Identity{
			ID:        uuid.New().String(),
			Email:     email,
			Role:      role,
			Balance:   balance,
			KYCStatus: kyc,
			CreatedAt: now,
			UpdatedAt: now,
		},
		PasswordHash: hash,
	}

	if err := d.repo.Create(ctx, account); err != nil {
		if errors.Is(err, ErrExists) {
			return Identity{}, ErrEmailTaken
		}
		return Identity{}, err
	}
	return account.Identity, nil
}

// Authenticate verifies credentials and records the login time.
func (d *Directory) Authenticate(ctx context.Context, email, password string) (Identity, error) {
	account, err := d.repo.FindByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(d.dummyHash(), []byte(password))
		return Identity{}, ErrInvalidCredentials
	}
	if err != nil {
		return Identity{}, err
	}

	if err := bcrypt.CompareHashAndPassword(account.PasswordHash, []byte(password)); err != nil {
		return Identity{}, ErrInvalidCredentials
	}

	now := d.now().UTC()
	if err := d.repo.TouchLogin(ctx, account.ID, now); err != nil {
		return Identity{}, err
	}
	account.LastLogin = &now
	return account.Identity, nil
}

// Lookup fetches the identity for an account id.
func (d *Directory) Lookup(ctx context.Context, id string) (Identity, error) {
	account, err := d.repo.FindByID(ctx, id)
	if err != nil {
		return Identity{}, err
	}
	return account.Identity, nil
}

// Exists reports whether an account is registered for the email.
func (d *Directory) Exists(ctx context.Context, email string) (bool, error) {
	_, err := d.repo.FindByEmail(ctx, NormalizeEmail(email))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// ChangePassword replaces the password of an existing account.
func (d *Directory) ChangePassword(ctx context.Context, id, password string) error {
	if err := checkPassword(password); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), d.cost)
	if err != nil {
		return err
	}
	return d.repo.UpdatePassword(ctx, id, hash, d.now())
}

// SeedDemo provisions the demo client and admin accounts if missing.
func (d *Directory) SeedDemo(ctx context.Context, password string) error {
	demo := []struct {
		email   string
		role    Role
		balance decimal.Decimal
	}{
		{DemoClientEmail, RoleClient, decimal.NewFromInt(5000)},
		{DemoAdminEmail, RoleAdmin, decimal.Zero},
	}
	for _, acc := range demo {
		exists, err := d.Exists(ctx, acc.email)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := d.create(ctx, acc.email, password, acc.role, acc.balance, KYCApproved); err != nil && !errors.Is(err, ErrEmailTaken) {
			return err
		}
	}
	return nil
}

func checkPassword(password string) error {
	switch {
	case len(password) < minPasswordLength:
		return ErrWeakPassword
	case len(password) > maxPasswordLength:
		return ErrPasswordTooLong
	}
	return nil
}
