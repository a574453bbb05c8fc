package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"tessera.dev/internal/auth"
	"tessera.dev/internal/client"
	"tessera.dev/internal/ids"
)

func main() {
	addr := os.Getenv("TESSERA_SMOKE_ADDR")
	if addr == "" {
		addr = "http://localhost:8080"
	}
	c := client.New(addr)

	ctx, cancel := client.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.WaitReady(ctx, 10, time.Second); err != nil {
		log.Fatalf("wait for tessera at %s: %v", addr, err)
	}

	slug := "smoke-" + strings.ToLower(ids.New())
	email := "admin@" + slug + ".test"
	password := "smoke-" + ids.New()

	res, err := c.ProvisionTenant(ctx, client.ProvisionTenantRequest{
		TenantName:     "Smoke " + slug,
		Slug:           slug,
		AdminEmail:     email,
		AdminFirstName: "Smoke",
		AdminLastName:  "Test",
		AdminPassword:  password,
	})
	if err != nil {
		log.Fatalf("provision tenant: %v", err)
	}

	if _, err := c.ProvisionTenant(ctx, client.ProvisionTenantRequest{
		TenantName:    "Smoke duplicate",
		Slug:          slug,
		AdminEmail:    "other@" + slug + ".test",
		AdminPassword: password,
	}); err == nil || !errors.Is(err, auth.ErrConflict) {
		log.Fatalf("duplicate slug: expected conflict, got %v", err)
	}

	session, err := c.Token(ctx, email, password, res.TenantID)
	if err != nil {
		log.Fatalf("token: %v", err)
	}
	admin := c.WithToken(session.AccessToken)

	perms, err := admin.MyPermissions(ctx)
	if err != nil {
		log.Fatalf("effective permissions: %v", err)
	}
	if want := len(auth.DefaultAdminPermissions()); len(perms) != want {
		log.Fatalf("unexpected admin permissions: got %d want %d", len(perms), want)
	}

	d, err := admin.Check(ctx, "all", auth.TemplateFor(auth.TemplateTenantAdmin).Permissions...)
	if err != nil {
		log.Fatalf("check: %v", err)
	}
	if !d.Allowed {
		log.Fatalf("admin lacks template permissions: missing=%v", d.Missing)
	}
	d, err = admin.Check(ctx, "single", auth.PermSystemAdmin)
	if err != nil {
		log.Fatalf("check system.admin: %v", err)
	}
	if d.Allowed {
		log.Fatalf("tenant admin must not hold %s", auth.PermSystemAdmin)
	}

	fmt.Printf("tessera smoke test passed: tenant=%s admin=%s permissions=%d\n", res.TenantID, res.UserID, len(perms))
}
