package types

import (
	"time"
)

// Environment classifies where the installation is running
type Environment string

const (
	EnvironmentContainer           Environment = "container"
	EnvironmentRestrictedContainer Environment = "restricted-container"
	EnvironmentHostService         Environment = "host-service"
	EnvironmentDeveloperCheckout   Environment = "developer-checkout"
	EnvironmentUnknown             Environment = "unknown"
)

// RestartStrategy defines how the service is brought back after an update
type RestartStrategy string

const (
	RestartServiceManager   RestartStrategy = "service-manager"
	RestartContainerRestart RestartStrategy = "container-restart"
	RestartSignalSelf       RestartStrategy = "signal-self"
	RestartManualOnly       RestartStrategy = "manual-only"
)

// DeploymentProfile is an immutable snapshot of the runtime environment,
// taken once at the start of each update run
type DeploymentProfile struct {
	Environment     Environment     `json:"environment"`
	InstallRoot     string          `json:"installRoot"`
	RestartStrategy RestartStrategy `json:"restartStrategy"`
	ServiceName     string          `json:"serviceName,omitempty"` // systemd unit for service-manager restarts
	Reason          string          `json:"reason,omitempty"`      // detection rule that matched
}

// BackupManifest describes one retained snapshot of the installation tree
type BackupManifest struct {
	Name           string    `json:"name"`
	Path           string    `json:"path"`
	CreatedAt      time.Time `json:"createdAt"`
	SourceRevision string    `json:"sourceRevision"`
	SizeBytes      int64     `json:"sizeBytes"`
}

// Phase is the state of the update session
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseChecking    Phase = "checking"
	PhaseBackingUp   Phase = "backing-up"
	PhaseDownloading Phase = "downloading"
	PhaseApplying    Phase = "applying"
	PhaseRestarting  Phase = "restarting"
	PhaseSucceeded   Phase = "succeeded"
	PhaseFailed      Phase = "failed"
	PhaseRollingBack Phase = "rolling-back"
	PhaseRolledBack  Phase = "rolled-back"
)

// IsTerminal reports whether a run has finished in this phase
func (p Phase) IsTerminal() bool {
	switch p {
	case PhaseSucceeded, PhaseFailed, PhaseRolledBack:
		return true
	}
	return false
}

// IsActive reports whether a run is in progress in this phase
func (p Phase) IsActive() bool {
	switch p {
	case PhaseBackingUp, PhaseDownloading, PhaseApplying, PhaseRestarting, PhaseRollingBack:
		return true
	}
	return false
}

// LogEntry is one timestamped line of the session log
type LogEntry struct {
	Time    time.Time `json:"time"`
	Phase   Phase     `json:"phase"`
	Message string    `json:"message"`
}

// SessionStatus is a point-in-time copy of the update session
type SessionStatus struct {
	RunID          string             `json:"runId,omitempty"`
	Phase          Phase              `json:"phase"`
	CurrentVersion string             `json:"currentVersion"`
	TargetVersion  string             `json:"targetVersion,omitempty"`
	Backup         *BackupManifest    `json:"backup,omitempty"`
	Log            []LogEntry         `json:"log"`
	LastError      *UpdateError       `json:"lastError,omitempty"`
	RolledBack     bool               `json:"rolledBack"`
	StartedAt      *time.Time         `json:"startedAt,omitempty"`
	FinishedAt     *time.Time         `json:"finishedAt,omitempty"`
	LastCheck      *ReleaseInfo       `json:"lastCheck,omitempty"`
	Profile        *DeploymentProfile `json:"profile,omitempty"`
}

// MaintenanceConfig is the persisted maintenance gate record
type MaintenanceConfig struct {
	Enabled      bool       `json:"enabled"`
	Message      string     `json:"message"`
	Title        string     `json:"title"`
	IPAllowList  []string   `json:"ipAllowList"`
	StartedAt    *time.Time `json:"startedAt"`
	EstimatedEnd *time.Time `json:"estimatedEnd"`
	AutoMode     bool       `json:"autoMode"`
}

// CompatibilityReport is the result of one advisory compatibility check.
// The three lists are disjoint.
type CompatibilityReport struct {
	TargetVersion string   `json:"targetVersion"`
	Compatible    []string `json:"compatible"`
	Incompatible  []string `json:"incompatible"`
	Unknown       []string `json:"unknown"`
}

// OK reports whether nothing was classified incompatible
func (r CompatibilityReport) OK() bool {
	return len(r.Incompatible) == 0
}

// ReleaseInfo is the outcome of a release check
type ReleaseInfo struct {
	CurrentVersion  string     `json:"currentVersion"`
	LatestVersion   string     `json:"latestVersion"`
	UpdateAvailable bool       `json:"updateAvailable"`
	ReleaseNotes    string     `json:"releaseNotes,omitempty"`
	DownloadURL     string     `json:"downloadUrl,omitempty"`
	PublishedAt     *time.Time `json:"publishedAt,omitempty"`
	CheckedAt       time.Time  `json:"checkedAt"`
}

// RunRecord is the persisted history entry of one update or rollback run
type RunRecord struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"` // "update" or "rollback"
	FromVersion string     `json:"fromVersion"`
	ToVersion   string     `json:"toVersion"`
	Phase       Phase      `json:"phase"`
	Error       string     `json:"error,omitempty"`
	ErrorKind   ErrorKind  `json:"errorKind,omitempty"`
	Backup      string     `json:"backup,omitempty"`
	RolledBack  bool       `json:"rolledBack"`
	StartedAt   time.Time  `json:"startedAt"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
}
