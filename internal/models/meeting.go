package models

import "time"

// Meeting is a club event members can check in to.
type Meeting struct {
	BaseModel

	Title     string    `gorm:"not null" json:"title"`
	StartsAt  time.Time `gorm:"index" json:"starts_at"`
	CreatedBy string    `gorm:"size:36" json:"created_by"`

	// ShareToken grants signed-in members read access to the meeting; NULL until shared.
	ShareToken *string `gorm:"uniqueIndex" json:"-"`

	Attendance []MeetingAttendance `gorm:"foreignKey:MeetingID;constraint:OnDelete:CASCADE" json:"attendance,omitempty"`
}

// MeetingAttendance records one member checked in to one meeting.
type MeetingAttendance struct {
	BaseModel

	MeetingID   string    `gorm:"size:36;not null;uniqueIndex:idx_attendance_meeting_user" json:"meeting_id"`
	UserID      string    `gorm:"size:36;not null;uniqueIndex:idx_attendance_meeting_user" json:"user_id"`
	User        *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	CheckedInBy string    `gorm:"size:36" json:"checked_in_by"`
	CheckedInAt time.Time `json:"checked_in_at"`
}
