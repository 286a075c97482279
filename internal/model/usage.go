package model

import (
	"time"
)

// WeekSeries is a seven-point chart series.
type WeekSeries [7]int

// ActivityItem is one message in the system-wide activity feed.
type ActivityItem struct {
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// DashboardStats backs the admin dashboard landing section.
type DashboardStats struct {
	TotalUsers      int            `json:"total_users"`
	ActiveUsers     int            `json:"active_users"`
	TotalPrompts    int            `json:"total_prompts"`
	EstimatedTokens int            `json:"estimated_tokens"`
	WeeklyPrompts   WeekSeries     `json:"weekly_prompts"`
	WeeklyActive    WeekSeries     `json:"weekly_active_users"`
	RecentActivity  []ActivityItem `json:"recent_activity"`
	RecentPrompts   []string       `json:"recent_prompts"`
}

// TokenUsage backs the tokens and costs section.
type TokenUsage struct {
	EstimatedTokens int        `json:"estimated_tokens"`
	EstimatedCost   float64    `json:"estimated_cost"`
	PromptVolume    int        `json:"prompt_volume"`
	WeeklyTokens    WeekSeries `json:"weekly_tokens"`
}

// LogEntry is one row of the message log view.
type LogEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// UserRow is one row of the admin users table.
type UserRow struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Role         UserRole   `json:"role"`
	Status       UserStatus `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	LastActiveAt *time.Time `json:"last_active_at,omitempty"`
	MessageCount int        `json:"message_count"`
}

// UserUsage is the per-member usage view.
type UserUsage struct {
	User          UserRow  `json:"user"`
	Conversations int      `json:"conversations"`
	RecentPrompts []string `json:"recent_prompts"`
}
