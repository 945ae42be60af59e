package identity

import (
	"context"
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func newTestDirectory(t *testing.T) *Directory {
	t.Helper()
	dir := NewDirectory(NewMemoryRepository()).WithCost(bcrypt.MinCost)
	if err := dir.SeedDemo(context.Background(), "demo123"); err != nil {
		t.Fatalf("seed demo: %v", err)
	}
	return dir
}

func TestRegisterAndAuthenticate(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()

	user, err := dir.Register(ctx, "  New@Example.com ", "s3cret!")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Role != RoleClient || user.KYCStatus != KYCPending || !user.Balance.IsZero() {
		t.Fatalf("unexpected new identity: %+v", user)
	}
	if user.Email != "new@example.com" {
		t.Fatalf("expected normalized email, got %s", user.Email)
	}

	authed, err := dir.Authenticate(ctx, "new@example.com", "s3cret!")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if authed.ID != user.ID || authed.LastLogin == nil {
		t.Fatalf("unexpected authenticated identity: %+v", authed)
	}

	if _, err := dir.Register(ctx, "new@example.com", "another1"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected email taken, got %v", err)
	}
}

func TestAuthenticateRejectsUnknownAndWrongPassword(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()

	if _, err := dir.Authenticate(ctx, DemoClientEmail, "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := dir.Authenticate(ctx, "nobody@demo.com", "demo123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestSeedDemoRoles(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()

	if err := dir.SeedDemo(ctx, "demo123"); err != nil {
		t.Fatalf("second seed: %v", err)
	}

	client, err := dir.Authenticate(ctx, DemoClientEmail, "demo123")
	if err != nil {
		t.Fatalf("client login: %v", err)
	}
	if client.Role != RoleClient || client.Balance.IntPart() != 5000 {
		t.Fatalf("unexpected demo client: %+v", client)
	}

	admin, err := dir.Authenticate(ctx, DemoAdminEmail, "demo123")
	if err != nil {
		t.Fatalf("admin login: %v", err)
	}
	if admin.Role != RoleAdmin {
		t.Fatalf("expected admin role, got %s", admin.Role)
	}
}

func TestRegisterValidation(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()

	if _, err := dir.Register(ctx, "no-at-sign", "s3cret!"); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected invalid email, got %v", err)
	}
	if _, err := dir.Register(ctx, "a@b.c", "123"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected weak password, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()

	client, err := dir.Authenticate(ctx, DemoClientEmail, "demo123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := dir.ChangePassword(ctx, client.ID, "fresh-pass"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := dir.Authenticate(ctx, DemoClientEmail, "demo123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected old password rejected, got %v", err)
	}
	if _, err := dir.Authenticate(ctx, DemoClientEmail, "fresh-pass"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestRolesAllows(t *testing.T) {
	if !AllRoles.Allows(RoleAdmin) || !AllRoles.Allows(RoleClient) {
		t.Fatal("expected AllRoles to allow every role")
	}
	if (Roles{RoleClient}).Allows(RoleAdmin) {
		t.Fatal("client-only set must reject admin")
	}
	if (Roles{}).Allows(RoleClient) {
		t.Fatal("empty set must reject everyone")
	}
	if _, err := ParseRole("root"); err == nil {
		t.Fatal("expected unknown role error")
	}
}

func TestPasswordLengthBounds(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()
	long := strings.Repeat("a", maxPasswordLength+1)

	if _, err := dir.Register(ctx, "long@demo.com", long); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected password too long, got %v", err)
	}
	if _, err := dir.Register(ctx, "edge@demo.com", strings.Repeat("a", maxPasswordLength)); err != nil {
		t.Fatalf("expected 72-byte password to register, got %v", err)
	}

	client, err := dir.Authenticate(ctx, DemoClientEmail, "demo123")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if err := dir.ChangePassword(ctx, client.ID, long); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected password too long, got %v", err)
	}
	if err := dir.ChangePassword(ctx, client.ID, "abc"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected weak password, got %v", err)
	}
}

func TestUnknownEmailComparesAtDirectoryCost(t *testing.T) {
	dir := NewDirectory(NewMemoryRepository()).WithCost(bcrypt.MinCost + 1)

	if _, err := dir.Authenticate(context.Background(), "nobody@demo.com", "demo123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	cost, err := bcrypt.Cost(dir.dummyHash())
	if err != nil {
		t.Fatalf("dummy hash: %v", err)
	}
	if cost != bcrypt.MinCost+1 {
		t.Fatalf("expected dummy hash at cost %d, got %d", bcrypt.MinCost+1, cost)
	}
	if NewDirectory(NewMemoryRepository()).cost != bcrypt.DefaultCost {
		t.Fatal("expected default cost for a new directory")
	}
}
