package gormrepository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/systemizing-solutions/shuttle-bridge/internal/models"
	"github.com/systemizing-solutions/shuttle-bridge/internal/repository"
	"github.com/systemizing-solutions/shuttle-bridge/internal/tenant"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}

func (s *Store) ListChangesSince(ctx context.Context, params repository.ListChangesParams) ([]models.ChangeLog, error) {
	t := params.Tenant
	if t == "" {
		t = tenant.Default
	}
	limit := params.Limit
	if limit <= 0 {
		limit = 1000
	}
	query := s.db.WithContext(ctx).
		Model(&models.ChangeLog{}).
		Where("tenant = ?", t).
		Where("id > ?", params.SinceID).
		Order("id asc").
		Limit(limit)
	if params.ExcludeOrigin != nil {
		query = query.Where("origin_node IS NULL OR origin_node <> ?", *params.ExcludeOrigin)
	}
	var items []models.ChangeLog
	if err := query.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) MaxChangeID(ctx context.Context, tenantID string, origin *int) (int64, error) {
	if tenantID == "" {
		tenantID = tenant.Default
	}
	query := s.db.WithContext(ctx).
		Model(&models.ChangeLog{}).
		Where("tenant = ?", tenantID)
	if origin != nil {
		query = query.Where("origin_node = ?", *origin)
	}
	var maxID int64
	err := query.Select("COALESCE(MAX(id), 0)").Scan(&maxID).Error
	return maxID, err
}

func (s *Store) GetOrCreateSyncState(ctx context.Context, tenantID, peerID string) (*models.SyncState, error) {
	if tenantID == "" {
		tenantID = tenant.Default
	}
	var st models.SyncState
	err := s.db.WithContext(ctx).
		Where("tenant = ? AND peer_id = ?", tenantID, peerID).
		FirstOrCreate(&st, models.SyncState{Tenant: tenantID, PeerID: peerID}).Error
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// SaveSyncStateTx writes the cursor guarded against concurrent advancement:
// the update only matches while both stored watermarks are at or below the
// values being saved, so a slower cycle can never move a watermark backwards.
func (s *Store) SaveSyncStateTx(ctx context.Context, tx *gorm.DB, state *models.SyncState) error {
	if state.Tenant == "" {
		state.Tenant = tenant.Default
	}
	res := tx.WithContext(ctx).
		Model(&models.SyncState{}).
		Where("tenant = ? AND peer_id = ?", state.Tenant, state.PeerID).
		Where("last_pushed_change_id <= ? AND last_pulled_change_id <= ?",
			state.LastPushedChangeID, state.LastPulledChangeID).
		Updates(map[string]any{
			"last_pushed_change_id": state.LastPushedChangeID,
			"last_pulled_change_id": state.LastPulledChangeID,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrStaleSyncState
	}
	return nil
}

func (s *Store) GetNodeLease(ctx context.Context, deviceKey string) (*models.NodeLease, error) {
	var lease models.NodeLease
	err := s.db.WithContext(ctx).Where("device_key = ?", deviceKey).Take(&lease).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lease, nil
}

func (s *Store) ListLeasedNodeIDs(ctx context.Context) ([]int, error) {
	var ids []int
	err := s.db.WithContext(ctx).
		Model(&models.NodeLease{}).
		Order("node_id asc").
		Pluck("node_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) CreateNodeLease(ctx context.Context, lease *models.NodeLease) error {
	return s.db.WithContext(ctx).Create(lease).Error
}
