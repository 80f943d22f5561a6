// Package scope resolves which owning-user ids an actor may access. Lead
// queries apply the scope over assigned_to, report queries over user_id;
// both go through the same resolver so the rules cannot diverge.
package scope

import (
	"errors"

	"gorm.io/gorm"

	"salesreport-service/internal/model"
)

// Actor is the authenticated identity performing an operation.
type Actor struct {
	ID   uint
	Role string
}

// ErrOutOfScope is returned when an explicit user or manager filter falls
// outside the actor's role scope.
var ErrOutOfScope = errors.New("requested id is outside the actor's scope")

// ErrManagerNotFound is returned when a manager filter references an absent
// or non-manager record.
var ErrManagerNotFound = errors.New("manager not found")

// Scope is the set of owning-user ids an actor may see. All short-circuits
// the id list for admins.
type Scope struct {
	All     bool
	UserIDs []uint
}

// Contains reports whether id falls inside the scope.
func (s Scope) Contains(id uint) bool {
	if s.All {
		return true
	}
	for _, uid := range s.UserIDs {
		if uid == id {
			return true
		}
	}
	return false
}

// Apply narrows q so column matches only ids inside the scope. An empty
// non-admin scope matches nothing; it never falls back to "all".
func (s Scope) Apply(q *gorm.DB, column string) *gorm.DB {
	if s.All {
		return q
	}
	if len(s.UserIDs) == 0 {
		return q.Where("1 = 0")
	}
	return q.Where(column+" IN ?", s.UserIDs)
}

// Resolver computes scopes from the hierarchy directory.
type Resolver struct {
	db *gorm.DB
}

func NewResolver(db *gorm.DB) *Resolver {
	return &Resolver{db: db}
}

// ForActor returns the actor's default role scope: admins see everything,
// managers see their direct reports plus themselves, users see themselves.
func (r *Resolver) ForActor(actor Actor) (Scope, error) {
	switch actor.Role {
	case model.RoleAdmin:
		return Scope{All: true}, nil
	case model.RoleManager:
		ids, err := r.directReportIDs(actor.ID)
		if err != nil {
			return Scope{}, err
		}
		return Scope{UserIDs: append(ids, actor.ID)}, nil
	default:
		return Scope{UserIDs: []uint{actor.ID}}, nil
	}
}

// ForManager returns the scope "managerID's direct reports plus the manager".
func (r *Resolver) ForManager(managerID uint) (Scope, error) {
	var manager model.User
	if err := r.db.First(&manager, managerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Scope{}, ErrManagerNotFound
		}
		return Scope{}, err
	}
	if manager.Role != model.RoleManager {
		return Scope{}, ErrManagerNotFound
	}
	ids, err := r.directReportIDs(managerID)
	if err != nil {
		return Scope{}, err
	}
	return Scope{UserIDs: append(ids, managerID)}, nil
}

// Narrow intersects base with optional explicit user and manager filters.
// Filters never widen the scope: an id outside base yields ErrOutOfScope.
func (r *Resolver) Narrow(base Scope, userID, managerID *uint) (Scope, error) {
	out := base
	if managerID != nil {
		mScope, err := r.ForManager(*managerID)
		if err != nil {
			return Scope{}, err
		}
		if !out.All {
			for _, id := range mScope.UserIDs {
				if !out.Contains(id) {
					return Scope{}, ErrOutOfScope
				}
			}
		}
		out = mScope
	}
	if userID != nil {
		if !out.Contains(*userID) {
			return Scope{}, ErrOutOfScope
		}
		out = Scope{UserIDs: []uint{*userID}}
	}
	return out, nil
}

func (r *Resolver) directReportIDs(managerID uint) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&model.User{}).
		Where("manager_id = ? AND role = ?", managerID, model.RoleUser).
		Pluck("id", &ids).Error
	return ids, err
}
