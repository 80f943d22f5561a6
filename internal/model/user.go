package model

import (
	"time"
)

// Staff roles. A user-role record may point at a manager through ManagerID;
// admin and manager records never carry a ManagerID.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleUser    = "user"
)

// User represents a staff member stored in the database
type User struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"type:varchar(100)"`
	Email     string    `json:"email" gorm:"type:varchar(100);uniqueIndex"`
	Password  string    `json:"-" gorm:"type:varchar(255)"`
	Role      string    `json:"role" gorm:"type:varchar(20);index"`
	ManagerID *uint     `json:"manager_id,omitempty" gorm:"index"`
	CreatedBy uint      `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsAssignableRole reports whether a role may be given to a created or
// updated account. Admin accounts are seeded, never created through the API.
func IsAssignableRole(role string) bool {
	return role == RoleManager || role == RoleUser
}
