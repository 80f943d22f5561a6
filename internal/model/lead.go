package model

import (
	"time"

	"gorm.io/datatypes"
)

// Lead status lifecycle values.
const (
	LeadStatusUnassigned    = "Unassigned"
	LeadStatusNew           = "New"
	LeadStatusFollowUp      = "Follow Up"
	LeadStatusPravasa       = "Pravasa Lead"
	LeadStatusInterested    = "Interested"
	LeadStatusNotInterested = "Not Interested"
	LeadStatusClosed        = "Closed"
)

// LeadStatuses is the fixed set accepted on create, import and edit.
var LeadStatuses = []string{
	LeadStatusUnassigned,
	LeadStatusNew,
	LeadStatusFollowUp,
	LeadStatusPravasa,
	LeadStatusInterested,
	LeadStatusNotInterested,
	LeadStatusClosed,
}

// IsValidLeadStatus reports whether status belongs to the fixed enumeration.
func IsValidLeadStatus(status string) bool {
	for _, s := range LeadStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Interaction is one append-only touchpoint in a lead's history.
type Interaction struct {
	Date   time.Time `json:"date"`
	Remark string    `json:"remark"`
}

// Lead represents a sales lead (client). Interactions are embedded and
// exclusively owned; LastRemark and NextTaskDate always mirror the most
// recent touch.
type Lead struct {
	ID           uint                              `json:"id" gorm:"primaryKey"`
	Name         string                            `json:"name" gorm:"type:varchar(100);index"`
	Email        string                            `json:"email" gorm:"type:varchar(100)"`
	Phone        string                            `json:"phone" gorm:"type:varchar(32)"`
	Address      string                            `json:"address" gorm:"type:varchar(255)"`
	Source       string                            `json:"source" gorm:"type:varchar(100)"`
	Status       string                            `json:"status" gorm:"type:varchar(32);index;default:'Unassigned'"`
	HotLead      bool                              `json:"hot_lead" gorm:"default:false"`
	AssignedTo   *uint                             `json:"assigned_to,omitempty" gorm:"index"`
	CreatedBy    uint                              `json:"created_by"`
	LastRemark   string                            `json:"last_remark" gorm:"type:text"`
	NextTaskDate *time.Time                        `json:"next_task_date,omitempty" gorm:"index"`
	Interactions datatypes.JSONSlice[Interaction]  `json:"interactions"`
	CreatedAt    time.Time                         `json:"created_at"`
	UpdatedAt    time.Time                         `json:"updated_at"`
}
