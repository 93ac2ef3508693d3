package history

import "time"

// Run is one recorded upload attempt. AppID stays empty until the shell
// record was created; Error is populated only for failed runs.
type Run struct {
	ID          string     `json:"id"`
	PackagePath string     `json:"package_path"`
	DisplayName string     `json:"display_name"`
	PackageID   string     `json:"package_id"`
	AppID       string     `json:"app_id,omitempty"`
	State       string     `json:"state"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}
