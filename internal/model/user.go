package model

import "time"

// User is a student account. Telegram linkage is optional.
type User struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	TelegramID  *int64 `gorm:"uniqueIndex" json:"telegram_id,omitempty"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Username    string `json:"username"`
	Email       string `json:"email,omitempty"`
	IsActive    bool   `gorm:"default:true" json:"is_active"`
	StudyStart  string `gorm:"default:09:00" json:"study_start"`
	StudyEnd    string `gorm:"default:21:00" json:"study_end"`
	BreakEvery  int    `gorm:"default:90" json:"break_every"`
	BreakLength int    `gorm:"default:15" json:"break_length"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Preferences are the scheduling constraints the planner honours.
type Preferences struct {
	StudyStart  string `json:"study_start"`
	StudyEnd    string `json:"study_end"`
	BreakEvery  int    `json:"break_every_minutes"`
	BreakLength int    `json:"break_length_minutes"`
}

// DefaultPreferences is one break per 90 minutes of study between 09:00 and 21:00.
func DefaultPreferences() Preferences {
	return Preferences{StudyStart: "09:00", StudyEnd: "21:00", BreakEvery: 90, BreakLength: 15}
}

// Preferences returns the user's constraints with defaults filled in.
func (u User) Preferences() Preferences {
	p := DefaultPreferences()
	if u.StudyStart != "" {
		p.StudyStart = u.StudyStart
	}
	if u.StudyEnd != "" {
		p.StudyEnd = u.StudyEnd
	}
	if u.BreakEvery > 0 {
		p.BreakEvery = u.BreakEvery
	}
	if u.BreakLength > 0 {
		p.BreakLength = u.BreakLength
	}
	return p
}

// DisplayName picks the friendliest non-empty name.
func (u User) DisplayName() string {
	switch {
	case u.FirstName != "":
		return u.FirstName
	case u.Username != "":
		return u.Username
	default:
		return "there"
	}
}
