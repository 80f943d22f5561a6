package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"salesreport-service/internal/model"
	"salesreport-service/internal/scope"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.User{}, &model.Lead{}, &model.SalesReport{}))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, name, role string, managerID *uint) *model.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)
	u := &model.User{
		Name:      name,
		Email:     name + "@example.com",
		Password:  string(hash),
		Role:      role,
		ManagerID: managerID,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

func asActor(u *model.User) scope.Actor {
	return scope.Actor{ID: u.ID, Role: u.Role}
}

// fixedClock pins "now" so day-window assertions are stable across midnight.
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func uintPtr(v uint) *uint { return &v }
