package storage

import (
	"github.com/cuemby/refit/pkg/types"
)

// Store defines the interface for refit's persisted state
type Store interface {
	// Runs
	SaveRun(run *types.RunRecord) error
	GetRun(id string) (*types.RunRecord, error)
	ListRuns(limit int) ([]*types.RunRecord, error)

	// Release checks
	SaveReleaseCheck(info *types.ReleaseInfo) error
	LastReleaseCheck() (*types.ReleaseInfo, error)

	// Utility
	Close() error
}
