package identity

import (
	"context"
	"testing"

	"protocolo-municipal/internal/auth"
)

func TestProvider_NoUserIsSystem(t *testing.T) {
	p := NewProvider(NewMemoryDirectory())
	ctx := context.Background()
	if id := p.CurrentUserID(ctx); id != 0 {
		t.Fatalf("expected 0, got %d", id)
	}
	if n := p.CurrentUserDisplayName(ctx); n != SystemName {
		t.Fatalf("expected %q, got %q", SystemName, n)
	}
}

func TestProvider_ResolvesFromDirectory(t *testing.T) {
	dir := NewMemoryDirectory(User{ID: 3, Name: "Ana Souza", Email: "ana@pm.gov.br", Role: "gestor"})
	p := NewProvider(dir)
	ctx := auth.WithIdentity(context.Background(), auth.Subject{UserID: 3, Role: "gestor"})

	if n := p.CurrentUserDisplayName(ctx); n != "Ana Souza" {
		t.Fatalf("expected directory name, got %q", n)
	}
	if e := p.UserEmail(ctx, 3); e != "ana@pm.gov.br" {
		t.Fatalf("expected email, got %q", e)
	}
	if id := p.UserIDByEmail(ctx, "ANA@pm.gov.br"); id != 3 {
		t.Fatalf("expected case-insensitive lookup, got %d", id)
	}
	if e := p.UserEmail(ctx, 99); e != "" {
		t.Fatalf("expected empty email for unknown user, got %q", e)
	}
}

func TestProvider_PrefersTokenClaims(t *testing.T) {
	p := NewProvider(NewMemoryDirectory(User{ID: 3, Name: "Directory Name", Email: "dir@pm.gov.br"}))
	ctx := auth.WithIdentity(context.Background(), auth.Subject{UserID: 3, Name: "Token Name", Email: "tok@pm.gov.br", Role: "gestor"})

	if n := p.CurrentUserDisplayName(ctx); n != "Token Name" {
		t.Fatalf("expected token name, got %q", n)
	}
	if e := p.UserEmail(ctx, 3); e != "tok@pm.gov.br" {
		t.Fatalf("expected token email, got %q", e)
	}
}
