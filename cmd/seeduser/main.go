// Command seeduser provisions a dashboard user in the configured postgres store.
//
//	seeduser -email a@x.com -password secret1
//
// The password may also be supplied through SEED_PASSWORD.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"time"

	"workflow-dashboard/internal/config"
	"workflow-dashboard/internal/hashing"
	"workflow-dashboard/internal/model"
	"workflow-dashboard/internal/repository"
	"workflow-dashboard/internal/repository/postgres"
	"workflow-dashboard/internal/util"
)

func main() {
	email := flag.String("email", "", "user email")
	password := flag.String("password", os.Getenv("SEED_PASSWORD"), "user password")
	flag.Parse()

	cfg := config.LoadConfig()
	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)
	defer util.Sync()

	addr := util.NormalizeEmail(*email)
	if !util.ValidEmail(addr) || *password == "" {
		flag.Usage()
		os.Exit(2)
	}
	if cfg.Database.Driver != "postgres" {
		util.Fatal("seeduser requires DATABASE_DRIVER=postgres", util.String("driver", cfg.Database.Driver))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		util.Fatal("Failed to open store", util.ErrorField(err))
	}
	defer store.Close()

	hash, err := hashing.NewHasher(cfg.Hashing).HashPassword(*password)
	if err != nil {
		util.Fatal("Failed to hash password", util.ErrorField(err))
	}

	user := &model.User{Email: addr, PasswordHash: hash}
	switch err := store.CreateUser(ctx, user); {
	case errors.Is(err, repository.ErrConflict):
		util.Fatal("User already exists", util.String("email", addr))
	case err != nil:
		util.Fatal("Failed to create user", util.ErrorField(err))
	}

	util.Info("User created", util.String("user_id", user.ID), util.String("email", user.Email))
}
