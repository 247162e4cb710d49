package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/systemizing-solutions/shuttle-bridge/internal/models"
)

// ErrStaleSyncState reports that another cycle already advanced the watermark
// past the values being saved. The losing cycle must reload the cursor before
// continuing; committing its values would move a watermark backwards.
var ErrStaleSyncState = errors.New("repository: sync state advanced concurrently")

// ListChangesParams selects a change-log page. ExcludeOrigin drops entries
// originated by that node; entries with unknown (legacy) origin always pass.
type ListChangesParams struct {
	Tenant        string
	SinceID       int64
	Limit         int
	ExcludeOrigin *int
}

// Store is the persistence surface of the replication protocol: change-log
// pages, watermark state and node leases. Every query is scoped to a tenant,
// so one tenant's sync engine can never observe another's entries.
type Store interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	ListChangesSince(ctx context.Context, params ListChangesParams) ([]models.ChangeLog, error)
	// MaxChangeID returns the highest change-log id for the tenant, 0 when
	// the log is empty. A non-nil origin restricts the scan to entries
	// originated by that node.
	MaxChangeID(ctx context.Context, tenantID string, origin *int) (int64, error)

	// GetOrCreateSyncState lazily creates the zero-valued cursor on first
	// sync with a peer.
	GetOrCreateSyncState(ctx context.Context, tenantID, peerID string) (*models.SyncState, error)
	// SaveSyncStateTx persists the cursor only when neither watermark moves
	// backwards, returning ErrStaleSyncState otherwise.
	SaveSyncStateTx(ctx context.Context, tx *gorm.DB, state *models.SyncState) error

	GetNodeLease(ctx context.Context, deviceKey string) (*models.NodeLease, error)
	ListLeasedNodeIDs(ctx context.Context) ([]int, error)
	// CreateNodeLease surfaces gorm.ErrDuplicatedKey when either the device
	// key or the node id is already taken.
	CreateNodeLease(ctx context.Context, lease *models.NodeLease) error
}
