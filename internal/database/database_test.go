package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/storefront-api/internal/model"
	"github.com/iliyamo/storefront-api/internal/repository"
)

type fakeUsers struct {
	existing map[string]model.User
	created  []model.User
	getErr   error
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
	if f.getErr != nil {
		return model.User{}, f.getErr
	}
	if u, ok := f.existing[email]; ok {
		return u, nil
	}
	return model.User{}, repository.ErrUserNotFound
}

func (f *fakeUsers) Create(_ context.Context, u model.User, _ string, _ int) (uint64, error) {
	f.created = append(f.created, u)
	return uint64(len(f.created)), nil
}

func TestSeedAdmin(t *testing.T) {
	ctx := context.Background()

	t.Run("creates missing admin", func(t *testing.T) {
		users := &fakeUsers{}
		created, err := SeedAdmin(ctx, users, "Administrator", "admin@shop.test", "secret1", 4)
		require.NoError(t, err)
		assert.True(t, created)
		require.Len(t, users.created, 1)
		assert.Equal(t, model.RoleAdmin, users.created[0].Role)
	})

	t.Run("keeps existing admin", func(t *testing.T) {
		users := &fakeUsers{existing: map[string]model.User{"admin@shop.test": {ID: 1}}}
		created, err := SeedAdmin(ctx, users, "Administrator", "admin@shop.test", "secret1", 4)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Empty(t, users.created)
	})

	t.Run("disabled without credentials", func(t *testing.T) {
		users := &fakeUsers{}
		created, err := SeedAdmin(ctx, users, "Administrator", "", "", 4)
		require.NoError(t, err)
		assert.False(t, created)
	})

	t.Run("lookup failure", func(t *testing.T) {
		users := &fakeUsers{getErr: errors.New("db down")}
		_, err := SeedAdmin(ctx, users, "Administrator", "admin@shop.test", "secret1", 4)
		assert.Error(t, err)
	})
}

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for range schema {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	require.NoError(t, Migrate(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateStopsOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS refresh_tokens").WillReturnError(errors.New("boom"))

	err = Migrate(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrate step 2")
	assert.NoError(t, mock.ExpectationsWereMet())
}
