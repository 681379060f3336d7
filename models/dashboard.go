package models

import "time"

// MaxWindowDays bounds any trailing day window a caller may request.
const MaxWindowDays = 365

type RecentRecording struct {
	ID        string `json:"id"`
	User      string `json:"user"`
	Duration  string `json:"duration"`
	Page      string `json:"page"`
	Timestamp string `json:"timestamp"`
}

type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Days  int       `json:"days"`
}

type DashboardRollup struct {
	TotalSessions      int               `json:"total_sessions"`
	ActiveUsers        int               `json:"active_users"`
	TotalRecordings    int               `json:"total_recordings"`
	AvgSessionDuration int64             `json:"avg_session_duration"`
	TopPages           []TopPathResult   `json:"top_pages"`
	RecentRecordings   []RecentRecording `json:"recent_recordings"`
	SessionsTrend      []DailyCount      `json:"sessions_trend"`
	DateRange          DateRange         `json:"date_range"`
}
