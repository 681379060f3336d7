package models

import "time"

type FunnelStep struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type Funnel struct {
	ID        int64        `json:"id"`
	SiteID    int64        `json:"site"`
	Name      string       `json:"name"`
	Steps     []FunnelStep `json:"steps"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

type FunnelStepResult struct {
	StepNumber        int     `json:"step_number"`
	StepName          string  `json:"step_name"`
	StepURL           string  `json:"step_url"`
	Sessions          int     `json:"sessions"`
	ConversionRate    float64 `json:"conversion_rate"`
	DropOffCount      int     `json:"drop_off_count"`
	DropOffRate       float64 `json:"drop_off_rate"`
	OverallConversion float64 `json:"overall_conversion"`
}

type FunnelResult struct {
	FunnelID          int64              `json:"funnel_id"`
	FunnelName        string             `json:"funnel_name"`
	TotalSessions     int                `json:"total_sessions"`
	Steps             []FunnelStepResult `json:"steps"`
	OverallConversion float64            `json:"overall_conversion"`
}
