package model

import (
	"time"

	"gorm.io/datatypes"
)

// Meeting outcome values.
const (
	MeetingStatusInterested    = "Interested"
	MeetingStatusNotInterested = "Not Interested"
)

// IsValidMeetingStatus reports whether status is an accepted meeting outcome.
func IsValidMeetingStatus(status string) bool {
	return status == MeetingStatusInterested || status == MeetingStatusNotInterested
}

// FollowUp is one append-only note on a meeting.
type FollowUp struct {
	Date      time.Time `json:"date"`
	Remark    string    `json:"remark"`
	CreatedAt time.Time `json:"created_at"`
}

// Meeting is a single field visit inside a daily report. The card file is a
// blob-store reference; deleting the parent report deletes the file too.
type Meeting struct {
	ID            string     `json:"id"`
	FirmName      string     `json:"firm_name"`
	OwnerName     string     `json:"owner_name"`
	ContactNumber string     `json:"contact_number"`
	Address       string     `json:"address"`
	Status        string     `json:"status"`
	CardFile      string     `json:"card_file,omitempty"`
	FollowUps     []FollowUp `json:"follow_ups"`
}

// SalesReport is a one-per-day bundle of meetings owned by a single user.
type SalesReport struct {
	ID        uint                          `json:"id" gorm:"primaryKey"`
	UserID    uint                          `json:"user_id" gorm:"index"`
	Date      time.Time                     `json:"date" gorm:"index"`
	Meetings  datatypes.JSONSlice[Meeting]  `json:"meetings"`
	CreatedAt time.Time                     `json:"created_at"`
	UpdatedAt time.Time                     `json:"updated_at"`
}
