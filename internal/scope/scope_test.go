package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"salesreport-service/internal/model"
)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.User{}, &model.Lead{}))
	return db
}

func addUser(t *testing.T, db *gorm.DB, name, role string, managerID *uint) *model.User {
	t.Helper()
	u := &model.User{Name: name, Email: name + "@example.com", Role: role, ManagerID: managerID}
	require.NoError(t, db.Create(u).Error)
	return u
}

func TestResolver_ForActor(t *testing.T) {
	db := openDB(t)
	r := NewResolver(db)

	admin := addUser(t, db, "admin", model.RoleAdmin, nil)
	m1 := addUser(t, db, "m1", model.RoleManager, nil)
	m2 := addUser(t, db, "m2", model.RoleManager, nil)
	u1 := addUser(t, db, "u1", model.RoleUser, &m1.ID)
	u2 := addUser(t, db, "u2", model.RoleUser, &m1.ID)
	u3 := addUser(t, db, "u3", model.RoleUser, &m2.ID)

	sc, err := r.ForActor(Actor{ID: admin.ID, Role: admin.Role})
	require.NoError(t, err)
	assert.True(t, sc.All)

	sc, err = r.ForActor(Actor{ID: m1.ID, Role: m1.Role})
	require.NoError(t, err)
	assert.False(t, sc.All)
	assert.ElementsMatch(t, []uint{m1.ID, u1.ID, u2.ID}, sc.UserIDs)
	assert.False(t, sc.Contains(u3.ID))

	sc, err = r.ForActor(Actor{ID: u1.ID, Role: u1.Role})
	require.NoError(t, err)
	assert.Equal(t, []uint{u1.ID}, sc.UserIDs)
}

func TestResolver_ForActor_ManagerWithoutReports(t *testing.T) {
	db := openDB(t)
	r := NewResolver(db)
	m1 := addUser(t, db, "m1", model.RoleManager, nil)

	sc, err := r.ForActor(Actor{ID: m1.ID, Role: m1.Role})
	require.NoError(t, err)
	assert.Equal(t, []uint{m1.ID}, sc.UserIDs)
}

func TestResolver_Narrow(t *testing.T) {
	db := openDB(t)
	r := NewResolver(db)

	m1 := addUser(t, db, "m1", model.RoleManager, nil)
	m2 := addUser(t, db, "m2", model.RoleManager, nil)
	u1 := addUser(t, db, "u1", model.RoleUser, &m1.ID)
	u2 := addUser(t, db, "u2", model.RoleUser, &m2.ID)
	plain := addUser(t, db, "plain", model.RoleUser, &m1.ID)

	all := Scope{All: true}
	team, err := r.ForActor(Actor{ID: m1.ID, Role: m1.Role})
	require.NoError(t, err)

	// Admin base narrows to any manager's team.
	sc, err := r.Narrow(all, nil, &m2.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{m2.ID, u2.ID}, sc.UserIDs)

	// A user filter collapses the scope to one id.
	sc, err = r.Narrow(team, &u1.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint{u1.ID}, sc.UserIDs)

	// Filters never widen: a foreign team or user is refused.
	_, err = r.Narrow(team, nil, &m2.ID)
	assert.ErrorIs(t, err, ErrOutOfScope)
	_, err = r.Narrow(team, &u2.ID, nil)
	assert.ErrorIs(t, err, ErrOutOfScope)

	// Manager filters must reference an actual manager.
	_, err = r.Narrow(all, nil, &plain.ID)
	assert.ErrorIs(t, err, ErrManagerNotFound)
	missing := uint(9999)
	_, err = r.Narrow(all, nil, &missing)
	assert.ErrorIs(t, err, ErrManagerNotFound)

	// Both filters compose: the user must sit inside the manager's team.
	sc, err = r.Narrow(all, &u2.ID, &m2.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{u2.ID}, sc.UserIDs)
	_, err = r.Narrow(all, &u1.ID, &m2.ID)
	assert.ErrorIs(t, err, ErrOutOfScope)
}

func TestScope_Apply(t *testing.T) {
	db := openDB(t)

	m1 := addUser(t, db, "m1", model.RoleManager, nil)
	u1 := addUser(t, db, "u1", model.RoleUser, &m1.ID)
	require.NoError(t, db.Create(&model.Lead{Name: "mine", Status: model.LeadStatusNew, AssignedTo: &u1.ID}).Error)
	require.NoError(t, db.Create(&model.Lead{Name: "unowned", Status: model.LeadStatusUnassigned}).Error)

	var n int64
	require.NoError(t, Scope{All: true}.Apply(db.Model(&model.Lead{}), "assigned_to").Count(&n).Error)
	assert.EqualValues(t, 2, n)

	require.NoError(t, Scope{UserIDs: []uint{u1.ID}}.Apply(db.Model(&model.Lead{}), "assigned_to").Count(&n).Error)
	assert.EqualValues(t, 1, n)

	// An empty non-admin scope matches nothing rather than everything.
	require.NoError(t, Scope{}.Apply(db.Model(&model.Lead{}), "assigned_to").Count(&n).Error)
	assert.EqualValues(t, 0, n)
}
