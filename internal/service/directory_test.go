package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"salesreport-service/internal/model"
	"salesreport-service/internal/scope"
)

func newDirectory(t *testing.T) (*DirectoryService, *model.User) {
	t.Helper()
	db := openTestDB(t)
	admin := seedUser(t, db, "admin", model.RoleAdmin, nil)
	return NewDirectoryService(db, zap.NewNop()), admin
}

func TestDirectoryService_CreateUser_RequiresAdmin(t *testing.T) {
	svc, _ := newDirectory(t)
	manager := seedUser(t, svc.db, "mgr", model.RoleManager, nil)

	_, err := svc.CreateUser(asActor(manager), CreateUserInput{
		Name:     "u1",
		Email:    "u1@example.com",
		Password: "secret",
		Role:     model.RoleUser,
	})
	require.Error(t, err)
	assert.Equal(t, KindForbidden, KindOf(err))
}

func TestDirectoryService_CreateUser_UserNeedsManager(t *testing.T) {
	svc, admin := newDirectory(t)

	_, err := svc.CreateUser(asActor(admin), CreateUserInput{
		Name:     "u1",
		Email:    "u1@example.com",
		Password: "secret",
		Role:     model.RoleUser,
	})
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))

	manager := seedUser(t, svc.db, "mgr", model.RoleManager, nil)
	user, err := svc.CreateUser(asActor(admin), CreateUserInput{
		Name:      "u1",
		Email:     "u1@example.com",
		Password:  "secret",
		Role:      model.RoleUser,
		ManagerID: &manager.ID,
	})
	require.NoError(t, err)
	require.NotNil(t, user.ManagerID)
	assert.Equal(t, manager.ID, *user.ManagerID)
	assert.Equal(t, admin.ID, user.CreatedBy)
}

func TestDirectoryService_CreateUser_RejectsNonManagerLink(t *testing.T) {
	svc, admin := newDirectory(t)
	manager := seedUser(t, svc.db, "mgr", model.RoleManager, nil)
	plain := seedUser(t, svc.db, "plain", model.RoleUser, &manager.ID)

	_, err := svc.CreateUser(asActor(admin), CreateUserInput{
		Name:      "u2",
		Email:     "u2@example.com",
		Password:  "secret",
		Role:      model.RoleUser,
		ManagerID: &plain.ID,
	})
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestDirectoryService_CreateUser_DuplicateEmail(t *testing.T) {
	svc, admin := newDirectory(t)
	seedUser(t, svc.db, "mgr", model.RoleManager, nil)

	_, err := svc.CreateUser(asActor(admin), CreateUserInput{
		Name:     "other",
		Email:    "mgr@example.com",
		Password: "secret",
		Role:     model.RoleManager,
	})
	require.Error(t, err)
	assert.Equal(t, KindConflict, KindOf(err))
}

func TestDirectoryService_DemoteManager_OrphansReports(t *testing.T) {
	svc, admin := newDirectory(t)
	m1 := seedUser(t, svc.db, "m1", model.RoleManager, nil)
	m2 := seedUser(t, svc.db, "m2", model.RoleManager, nil)
	u1 := seedUser(t, svc.db, "u1", model.RoleUser, &m1.ID)
	u2 := seedUser(t, svc.db, "u2", model.RoleUser, &m1.ID)
	u3 := seedUser(t, svc.db, "u3", model.RoleUser, &m2.ID)

	role := model.RoleUser
	demoted, err := svc.UpdateUser(asActor(admin), m1.ID, UpdateUserInput{
		Role:      &role,
		ManagerID: &m2.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, model.RoleUser, demoted.Role)
	require.NotNil(t, demoted.ManagerID)
	assert.Equal(t, m2.ID, *demoted.ManagerID)

	// Former direct reports are orphaned, not inherited.
	for _, id := range []uint{u1.ID, u2.ID} {
		var u model.User
		require.NoError(t, svc.db.First(&u, id).Error)
		assert.Nil(t, u.ManagerID)
	}

	// Another manager's team is untouched.
	var other model.User
	require.NoError(t, svc.db.First(&other, u3.ID).Error)
	require.NotNil(t, other.ManagerID)
	assert.Equal(t, m2.ID, *other.ManagerID)
}

func TestDirectoryService_DemoteManager_Idempotent(t *testing.T) {
	svc, admin := newDirectory(t)
	m1 := seedUser(t, svc.db, "m1", model.RoleManager, nil)
	m2 := seedUser(t, svc.db, "m2", model.RoleManager, nil)
	u1 := seedUser(t, svc.db, "u1", model.RoleUser, &m1.ID)

	role := model.RoleUser
	_, err := svc.UpdateUser(asActor(admin), m1.ID, UpdateUserInput{Role: &role, ManagerID: &m2.ID})
	require.NoError(t, err)

	// Re-assign the orphan, then repeat the same-role update on m1. The
	// cascade must not fire again.
	require.NoError(t, svc.db.Model(&model.User{}).Where("id = ?", u1.ID).Update("manager_id", m2.ID).Error)
	_, err = svc.UpdateUser(asActor(admin), m1.ID, UpdateUserInput{Role: &role})
	require.NoError(t, err)

	var u model.User
	require.NoError(t, svc.db.First(&u, u1.ID).Error)
	require.NotNil(t, u.ManagerID)
	assert.Equal(t, m2.ID, *u.ManagerID)
}

func TestDirectoryService_DemoteManager_RequiresNewManager(t *testing.T) {
	svc, admin := newDirectory(t)
	m1 := seedUser(t, svc.db, "m1", model.RoleManager, nil)

	role := model.RoleUser
	_, err := svc.UpdateUser(asActor(admin), m1.ID, UpdateUserInput{Role: &role})
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestDirectoryService_PromoteUser_ClearsManager(t *testing.T) {
	svc, admin := newDirectory(t)
	m1 := seedUser(t, svc.db, "m1", model.RoleManager, nil)
	u1 := seedUser(t, svc.db, "u1", model.RoleUser, &m1.ID)

	role := model.RoleManager
	promoted, err := svc.UpdateUser(asActor(admin), u1.ID, UpdateUserInput{Role: &role})
	require.NoError(t, err)
	assert.Equal(t, model.RoleManager, promoted.Role)
	assert.Nil(t, promoted.ManagerID)
}

func TestDirectoryService_Login(t *testing.T) {
	svc, admin := newDirectory(t)

	user, err := svc.Login(admin.Email, "secret")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, user.ID)

	_, err = svc.Login(admin.Email, "wrong")
	require.Error(t, err)
	assert.Equal(t, KindUnauthenticated, KindOf(err))

	_, err = svc.Login("nobody@example.com", "secret")
	require.Error(t, err)
	assert.Equal(t, KindUnauthenticated, KindOf(err))
}

func TestDirectoryService_EditSelf_EmailConflict(t *testing.T) {
	svc, _ := newDirectory(t)
	m1 := seedUser(t, svc.db, "m1", model.RoleManager, nil)
	m2 := seedUser(t, svc.db, "m2", model.RoleManager, nil)

	email := m1.Email
	_, err := svc.EditSelf(asActor(m2), EditSelfInput{Email: &email})
	require.Error(t, err)
	assert.Equal(t, KindConflict, KindOf(err))

	name := "renamed"
	updated, err := svc.EditSelf(asActor(m2), EditSelfInput{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
}

func TestDirectoryService_ListUsers_ByRole(t *testing.T) {
	svc, admin := newDirectory(t)
	m1 := seedUser(t, svc.db, "m1", model.RoleManager, nil)
	m2 := seedUser(t, svc.db, "m2", model.RoleManager, nil)
	u1 := seedUser(t, svc.db, "u1", model.RoleUser, &m1.ID)
	seedUser(t, svc.db, "u2", model.RoleUser, &m2.ID)

	all, err := svc.ListUsers(asActor(admin))
	require.NoError(t, err)
	assert.Len(t, all, 5)

	team, err := svc.ListUsers(asActor(m1))
	require.NoError(t, err)
	ids := make([]uint, 0, len(team))
	for _, u := range team {
		ids = append(ids, u.ID)
	}
	assert.ElementsMatch(t, []uint{m1.ID, u1.ID}, ids)

	self, err := svc.ListUsers(asActor(u1))
	require.NoError(t, err)
	require.Len(t, self, 1)
	assert.Equal(t, u1.ID, self[0].ID)
}

func TestEnsureAdmin_SeedsOnce(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, EnsureAdmin(db, "Administrator", "admin@localhost", "changeme"))
	require.NoError(t, EnsureAdmin(db, "Second", "second@localhost", "changeme"))

	var count int64
	require.NoError(t, db.Model(&model.User{}).Where("role = ?", model.RoleAdmin).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestDirectoryService_UpdateUser_NotFound(t *testing.T) {
	svc, admin := newDirectory(t)
	name := "x"
	_, err := svc.UpdateUser(asActor(admin), 9999, UpdateUserInput{Name: &name})
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestDirectoryService_UpdateUser_AdminOnly(t *testing.T) {
	svc, _ := newDirectory(t)
	m1 := seedUser(t, svc.db, "m1", model.RoleManager, nil)

	name := "x"
	_, err := svc.UpdateUser(scope.Actor{ID: m1.ID, Role: m1.Role}, m1.ID, UpdateUserInput{Name: &name})
	require.Error(t, err)
	assert.Equal(t, KindForbidden, KindOf(err))
}
