package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gymflow/gymflow/internal/app"
	"github.com/gymflow/gymflow/internal/users"
)

type seedUser struct {
	name string
	role users.Role
	dob  string
}

var sampleUsers = []seedUser{
	{name: "Marina Alves", role: users.RoleStaff, dob: "1988-03-14T00:00:00Z"},
	{name: "Rafael Teixeira", role: users.RoleStaff},
	{name: "Joana Prado", role: users.RoleMember, dob: "1995-11-02T00:00:00Z"},
	{name: "Lucas Ferreira", role: users.RoleMember, dob: "2001-07-21T00:00:00Z"},
	{name: "Beatriz Nunes", role: users.RoleMember},
	{name: "Tiago Correia", role: users.RoleMember, dob: "1979-01-30T00:00:00Z"},
}

func main() {
	device := flag.Bool("device", false, "also seed the client storage configured by GYMFLOW_* variables")
	flag.Parse()

	dbPath := getenv("DB_PATH", "api/db.json")
	ctx := context.Background()

	repo, err := users.NewRepository(dbPath)
	if err != nil {
		log.Fatalf("open users db: %v", err)
	}
	existing, err := repo.ListUsers(ctx)
	if err != nil {
		log.Fatalf("list users: %v", err)
	}

	fmt.Println("→ Seeding users...")
	service := users.NewService(repo, users.ServiceConfig{})
	seeded := 0
	for _, su := range sampleUsers {
		if hasName(existing, su.name) {
			continue
		}
		in := users.CreateInput{FullName: su.name, Role: su.role}
		if su.dob != "" {
			dob := su.dob
			in.DateOfBirth = &dob
		}
		if _, err := service.CreateUser(ctx, in); err != nil {
			log.Fatalf("create %s: %v", su.name, err)
		}
		seeded++
	}
	fmt.Printf("  %d user(s) added to %s\n", seeded, dbPath)

	if !*device {
		return
	}

	fmt.Println("→ Seeding client storage...")
	cfg, err := app.LoadClientConfig(os.Getenv("GYMFLOW_PROFILE"))
	if err != nil {
		log.Fatalf("load client config: %v", err)
	}
	adapter, closeFn, err := app.NewPersistence(cfg, app.NewClientLogger(cfg, slog.LevelWarn))
	if err != nil {
		log.Fatalf("open client storage: %v", err)
	}
	defer func() {
		if err := closeFn(); err != nil {
			log.Printf("close client storage: %v", err)
		}
	}()

	list, err := repo.ListUsers(ctx)
	if err != nil {
		log.Fatalf("list users: %v", err)
	}
	saveCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	adapter.Save(saveCtx, list)
	fmt.Printf("  %d user(s) written to %s storage\n", len(list), cfg.Storage)
}

func hasName(list []users.User, name string) bool {
	for _, u := range list {
		if u.FullName == name {
			return true
		}
	}
	return false
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
