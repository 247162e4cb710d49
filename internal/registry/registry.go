// Package registry leases node numbers to physical clients. A device key is
// bound to the smallest free number in [1, 1023]; repeated registrations
// with the same key return the same lease.
package registry

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/systemizing-solutions/shuttle-bridge/internal/ident"
	"github.com/systemizing-solutions/shuttle-bridge/internal/models"
	"github.com/systemizing-solutions/shuttle-bridge/internal/repository"
)

// ErrCapacityExhausted means every node number in range is leased.
var ErrCapacityExhausted = errors.New("registry: no free node numbers")

// MaxDeviceKeyLen bounds client-supplied device keys.
const MaxDeviceKeyLen = 64

const allocateAttempts = 3

type Service struct {
	Store  repository.Store
	Logger *zap.Logger

	// MaxNode narrows the allocatable range; zero means ident.MaxNode.
	// Tests shrink it to exercise capacity exhaustion.
	MaxNode int
}

// Allocate returns the node number leased to deviceKey, allocating one if
// needed. Races between concurrent allocations are settled by the store's
// uniqueness constraints: the loser re-reads and either adopts the winner's
// lease (same key) or picks the next free number.
func (s *Service) Allocate(ctx context.Context, deviceKey string) (int, error) {
	if deviceKey == "" || len(deviceKey) > MaxDeviceKeyLen {
		return 0, fmt.Errorf("registry: invalid device key")
	}
	maxNode := s.MaxNode
	if maxNode <= 0 {
		maxNode = ident.MaxNode
	}

	for attempt := 0; attempt < allocateAttempts; attempt++ {
		lease, err := s.Store.GetNodeLease(ctx, deviceKey)
		if err != nil {
			return 0, err
		}
		if lease != nil {
			return lease.NodeID, nil
		}

		used, err := s.Store.ListLeasedNodeIDs(ctx)
		if err != nil {
			return 0, err
		}
		candidate := smallestFree(used, maxNode)
		if candidate == 0 {
			return 0, ErrCapacityExhausted
		}

		err = s.Store.CreateNodeLease(ctx, &models.NodeLease{DeviceKey: deviceKey, NodeID: candidate})
		if err == nil {
			if s.Logger != nil {
				s.Logger.Info("node number leased",
					zap.String("device_key", deviceKey),
					zap.Int("node_id", candidate))
			}
			return candidate, nil
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			continue
		}
		return 0, err
	}
	return 0, fmt.Errorf("registry: allocation contention for device key %q", deviceKey)
}

func smallestFree(used []int, maxNode int) int {
	taken := make(map[int]bool, len(used))
	for _, id := range used {
		taken[id] = true
	}
	for candidate := 1; candidate <= maxNode; candidate++ {
		if !taken[candidate] {
			return candidate
		}
	}
	return 0
}
