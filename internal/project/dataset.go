package project

import "time"

// Dataset is a data file registered with a study, with a cached profile.
type Dataset struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	Description string    `json:"description"`
	Sheet       string    `json:"sheet,omitempty"`
	Rows        int       `json:"rows"`
	Columns     int       `json:"columns"`
	Profile     string    `json:"profile"`
	AddedAt     time.Time `json:"added_at"`
}
