// Command seed bootstraps the first administrator account so a fresh
// deployment can log in and start enrolling.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/motta-superate/grades-api/internal/models"
	"github.com/motta-superate/grades-api/internal/repository"
	"github.com/motta-superate/grades-api/internal/service"
	"github.com/motta-superate/grades-api/pkg/config"
	"github.com/motta-superate/grades-api/pkg/database"
	appErrors "github.com/motta-superate/grades-api/pkg/errors"
)

func main() {
	var (
		email    string
		password string
		fullName string
	)

	flag.StringVar(&email, "email", "", "admin email address")
	flag.StringVar(&password, "password", "", "initial admin password")
	flag.StringVar(&fullName, "name", "Administrator", "admin display name")
	flag.Parse()

	if email == "" || password == "" {
		log.Fatal("both -email and -password are required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	identity := service.NewIdentityService(repository.NewUserRepository(db), nil)
	user, err := identity.CreateIdentity(ctx, email, password, fullName, models.RoleAdmin)
	if err != nil {
		if appErrors.HasCode(err, appErrors.ErrEmailInUse.Code) {
			log.Printf("admin %s already exists, nothing to do", email)
			return
		}
		log.Fatalf("failed to create admin: %v", err)
	}

	log.Printf("admin account created: %s (%s)", user.Email, user.ID)
}
