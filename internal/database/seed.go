package database

import (
	"context"
	"errors"
	"log"

	"github.com/iliyamo/storefront-api/internal/model"
	"github.com/iliyamo/storefront-api/internal/repository"
)

// UserStore is the subset of repository.UserRepo the seeder needs.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (model.User, error)
	Create(ctx context.Context, u model.User, password string, cost int) (uint64, error)
}

// SeedAdmin creates the administrator account when email is set and no user
// with that email exists yet.  It reports whether a user was created.
func SeedAdmin(ctx context.Context, users UserStore, name, email, password string, cost int) (bool, error) {
	if email == "" || password == "" {
		return false, nil
	}
	_, err := users.GetByEmail(ctx, email)
	if err == nil {
		log.Printf("admin %s already exists", email)
		return false, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return false, err
	}

	id, err := users.Create(ctx, model.User{Name: name, Email: email, Role: model.RoleAdmin}, password, cost)
	if err != nil {
		return false, err
	}
	log.Printf("admin %s created with id %d", email, id)
	return true, nil
}
