// Package quota enforces per-user chat message limits: a Redis sliding
// window for the per-minute burst and PostgreSQL counters for the daily
// allowance. Infrastructure failures fail open so a Redis or database blip
// never locks users out of the conversation.
package quota

import (
	"time"

	"github.com/google/uuid"
)

// UserQuota matches the user_quotas table schema.
type UserQuota struct {
	UserID         uuid.UUID `json:"user_id"`
	MessagesToday  int       `json:"messages_today"`
	LastDailyReset time.Time `json:"last_daily_reset"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Status reports current usage against the configured limits.
type Status struct {
	MessagesToday      int `json:"messages_today"`
	MessagesLimitDay   int `json:"messages_limit_day"`
	MessagesThisMinute int `json:"messages_this_minute"`
	MessagesLimitMin   int `json:"messages_limit_minute"`
}

// Limits configure the allowance per user.
type Limits struct {
	PerMinute int
	PerDay    int
}
