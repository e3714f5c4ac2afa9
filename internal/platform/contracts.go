package platform

import "context"

// Launcher starts the remote-control desktop app for a hub session.
type Launcher interface {
	LaunchRemoteControl(ctx context.Context, req LaunchRequest) error
}

// LaunchRequest carries the session parameters the hub dispatches.
type LaunchRequest struct {
	SessionID        string `json:"session_id"`
	AccessKey        string `json:"access_key"`
	RequesterName    string `json:"requester_name"`
	OrganizationName string `json:"organization_name"`
	ServerURL        string `json:"server_url"`
}

// Updater checks for and installs agent updates.
type Updater interface {
	// BeginChecking starts periodic checks and returns once they are scheduled.
	BeginChecking(ctx context.Context) error
	CheckForUpdates(ctx context.Context) error
}

// DeviceInfoGenerator snapshots the host for the hub.
type DeviceInfoGenerator interface {
	CreateDevice(ctx context.Context, deviceID, organizationID string) (Device, error)
}

// ElevationDetector reports administrative rights. It never fails; an
// unanswerable query reports false.
type ElevationDetector interface {
	IsElevated() bool
	StatusMessage() string
}

// Device is the host snapshot sent to the hub.
type Device struct {
	ID              string  `json:"id"`
	OrganizationID  string  `json:"organization_id"`
	DeviceName      string  `json:"device_name"`
	Platform        string  `json:"platform"`
	OSDescription   string  `json:"os_description"`
	OSArchitecture  string  `json:"os_architecture"`
	ProcessorCount  int     `json:"processor_count"`
	CPUUtilization  float64 `json:"cpu_utilization"`
	TotalMemoryGB   float64 `json:"total_memory_gb"`
	UsedMemoryGB    float64 `json:"used_memory_gb"`
	TotalStorageGB  float64 `json:"total_storage_gb"`
	UsedStorageGB   float64 `json:"used_storage_gb"`
	CurrentUser     string  `json:"current_user"`
	AgentVersion    string  `json:"agent_version"`
	IsAdministrator bool    `json:"is_administrator"`
}
