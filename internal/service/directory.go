package service

import (
	"errors"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"salesreport-service/internal/model"
	"salesreport-service/internal/scope"
)

// DirectoryService owns user records and the manager-to-user tree.
type DirectoryService struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewDirectoryService(db *gorm.DB, log *zap.Logger) *DirectoryService {
	return &DirectoryService{db: db, log: log}
}

// CreateUserInput carries the fields an admin supplies when registering staff.
type CreateUserInput struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Role      string `json:"role"`
	ManagerID *uint  `json:"manager_id,omitempty"`
}

// CreateUser registers a manager or user account. Admin only. A user-role
// account must reference an existing manager.
func (s *DirectoryService) CreateUser(actor scope.Actor, in CreateUserInput) (*model.User, error) {
	if actor.Role != model.RoleAdmin {
		return nil, Forbidden("only admins may create users")
	}
	if !model.IsAssignableRole(in.Role) {
		return nil, Validation("role must be %q or %q", model.RoleManager, model.RoleUser)
	}
	if in.Name == "" || in.Email == "" || in.Password == "" {
		return nil, Validation("name, email and password are required")
	}

	var managerID *uint
	if in.Role == model.RoleUser {
		if in.ManagerID == nil {
			return nil, Validation("a user account requires a manager_id")
		}
		if err := s.requireManager(*in.ManagerID); err != nil {
			return nil, err
		}
		managerID = in.ManagerID
	}

	if taken, err := s.emailTaken(in.Email, 0); err != nil {
		return nil, Internal("failed to check email: %v", err)
	} else if taken {
		return nil, Conflict("email %s is already registered", in.Email)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, Internal("failed to hash password: %v", err)
	}

	user := model.User{
		Name:      in.Name,
		Email:     in.Email,
		Password:  string(hash),
		Role:      in.Role,
		ManagerID: managerID,
		CreatedBy: actor.ID,
	}
	if err := s.db.Create(&user).Error; err != nil {
		return nil, Internal("failed to create user: %v", err)
	}

	s.log.Info("User created",
		zap.Uint("user_id", user.ID),
		zap.String("role", user.Role),
		zap.Uint("created_by", actor.ID))
	return &user, nil
}

// UpdateUserInput is a partial update; nil fields are left untouched.
type UpdateUserInput struct {
	Name      *string `json:"name,omitempty"`
	Email     *string `json:"email,omitempty"`
	Role      *string `json:"role,omitempty"`
	ManagerID *uint   `json:"manager_id,omitempty"`
}

// UpdateUser applies profile and role changes to a target account. Admin
// only. Demoting a manager to user orphans every former direct report; the
// orphaning is a separate bulk update and re-running it is a no-op.
func (s *DirectoryService) UpdateUser(actor scope.Actor, targetID uint, in UpdateUserInput) (*model.User, error) {
	if actor.Role != model.RoleAdmin {
		return nil, Forbidden("only admins may update users")
	}

	var target model.User
	if err := s.db.First(&target, targetID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound("user %d not found", targetID)
		}
		return nil, Internal("failed to load user: %v", err)
	}

	if in.Email != nil && *in.Email != target.Email {
		if taken, err := s.emailTaken(*in.Email, target.ID); err != nil {
			return nil, Internal("failed to check email: %v", err)
		} else if taken {
			return nil, Conflict("email %s is already registered", *in.Email)
		}
		target.Email = *in.Email
	}
	if in.Name != nil {
		target.Name = *in.Name
	}

	newRole := target.Role
	if in.Role != nil && *in.Role != "" {
		newRole = *in.Role
	}

	orphan := false
	switch {
	case target.Role == model.RoleManager && newRole == model.RoleUser:
		if in.ManagerID == nil {
			return nil, Validation("demoting a manager to user requires a manager_id")
		}
		if err := s.requireManager(*in.ManagerID); err != nil {
			return nil, err
		}
		target.Role = model.RoleUser
		target.ManagerID = in.ManagerID
		orphan = true

	case target.Role == model.RoleUser && newRole == model.RoleManager:
		// A manager has no manager in this model.
		target.Role = model.RoleManager
		target.ManagerID = nil

	case newRole == target.Role:
		if target.Role == model.RoleUser && in.ManagerID != nil {
			if err := s.requireManager(*in.ManagerID); err != nil {
				return nil, err
			}
			target.ManagerID = in.ManagerID
		}

	default:
		return nil, Validation("unsupported role transition %s -> %s", target.Role, newRole)
	}

	if err := s.db.Save(&target).Error; err != nil {
		return nil, Internal("failed to update user: %v", err)
	}

	if orphan {
		// Former direct reports do not inherit the new manager.
		res := s.db.Model(&model.User{}).
			Where("manager_id = ?", target.ID).
			Update("manager_id", nil)
		if res.Error != nil {
			return nil, Internal("failed to orphan direct reports: %v", res.Error)
		}
		s.log.Info("Manager demoted, direct reports orphaned",
			zap.Uint("user_id", target.ID),
			zap.Int64("orphaned", res.RowsAffected))
	}

	return &target, nil
}

// Login verifies the credential and returns the account on success.
func (s *DirectoryService) Login(email, password string) (*model.User, error) {
	var user model.User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, Unauthenticated("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, Unauthenticated("invalid credentials")
	}
	return &user, nil
}

// GetProfile returns the actor's own account.
func (s *DirectoryService) GetProfile(actor scope.Actor) (*model.User, error) {
	var user model.User
	if err := s.db.First(&user, actor.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound("user %d not found", actor.ID)
		}
		return nil, Internal("failed to load user: %v", err)
	}
	return &user, nil
}

// EditSelfInput is a partial self-service profile update.
type EditSelfInput struct {
	Name     *string `json:"name,omitempty"`
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
}

// EditSelf lets any authenticated actor change their own name, email or
// password. Email uniqueness applies.
func (s *DirectoryService) EditSelf(actor scope.Actor, in EditSelfInput) (*model.User, error) {
	user, err := s.GetProfile(actor)
	if err != nil {
		return nil, err
	}
	if in.Email != nil && *in.Email != user.Email {
		if taken, err := s.emailTaken(*in.Email, user.ID); err != nil {
			return nil, Internal("failed to check email: %v", err)
		} else if taken {
			return nil, Conflict("email %s is already registered", *in.Email)
		}
		user.Email = *in.Email
	}
	if in.Name != nil {
		user.Name = *in.Name
	}
	if in.Password != nil && *in.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(*in.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, Internal("failed to hash password: %v", err)
		}
		user.Password = string(hash)
	}
	if err := s.db.Save(user).Error; err != nil {
		return nil, Internal("failed to update profile: %v", err)
	}
	return user, nil
}

// ListUsers returns the accounts visible to the actor: admins see everyone,
// managers see themselves plus their direct reports, users see themselves.
func (s *DirectoryService) ListUsers(actor scope.Actor) ([]model.User, error) {
	var users []model.User
	q := s.db.Order("id")
	switch actor.Role {
	case model.RoleAdmin:
	case model.RoleManager:
		q = q.Where("id = ? OR manager_id = ?", actor.ID, actor.ID)
	default:
		q = q.Where("id = ?", actor.ID)
	}
	if err := q.Find(&users).Error; err != nil {
		return nil, Internal("failed to list users: %v", err)
	}
	return users, nil
}

// FindByID returns a single account by id.
func (s *DirectoryService) FindByID(id uint) (*model.User, error) {
	var user model.User
	if err := s.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound("user %d not found", id)
		}
		return nil, Internal("failed to load user: %v", err)
	}
	return &user, nil
}

func (s *DirectoryService) requireManager(id uint) error {
	var manager model.User
	if err := s.db.First(&manager, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Validation("manager %d not found", id)
		}
		return Internal("failed to load manager: %v", err)
	}
	if manager.Role != model.RoleManager {
		return Validation("user %d is not a manager", id)
	}
	return nil
}

func (s *DirectoryService) emailTaken(email string, excludeID uint) (bool, error) {
	var count int64
	q := s.db.Model(&model.User{}).Where("email = ?", email)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// EnsureAdmin seeds the initial admin account if no admin exists yet.
// Called once at startup; registration itself is admin-gated.
func EnsureAdmin(db *gorm.DB, name, email, password string) error {
	var count int64
	if err := db.Model(&model.User{}).Where("role = ?", model.RoleAdmin).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return db.Create(&model.User{
		Name:     name,
		Email:    email,
		Password: string(hash),
		Role:     model.RoleAdmin,
	}).Error
}
