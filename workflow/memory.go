// In-memory ConfigStore, CheckpointStore and TenantDirectory for tests
// and development.
package workflow

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/attendance-engine/calendar"
)

// =============================================================================
// MEMORY CONFIG STORE
// =============================================================================

type MemoryConfigStore struct {
	mu      sync.RWMutex
	configs []RuleConfig
}

func NewMemoryConfigStore(configs ...RuleConfig) *MemoryConfigStore {
	return &MemoryConfigStore{configs: configs}
}

func (m *MemoryConfigStore) Add(config RuleConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs = append(m.configs, config)
}

func (m *MemoryConfigStore) ConfigsForAge(_ context.Context, tenant calendar.TenantID, age int) ([]RuleConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []RuleConfig
	for _, c := range m.configs {
		if c.TenantID == tenant && c.Age == age {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// MEMORY CHECKPOINT STORE
// =============================================================================

type MemoryCheckpointStore struct {
	mu       sync.RWMutex
	lastScan map[calendar.TenantID]calendar.Date
}

func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{lastScan: make(map[calendar.TenantID]calendar.Date)}
}

func (m *MemoryCheckpointStore) LastScan(_ context.Context, tenant calendar.TenantID) (calendar.Date, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastScan[tenant], nil
}

func (m *MemoryCheckpointStore) SetLastScan(_ context.Context, tenant calendar.TenantID, day calendar.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastScan[tenant] = day
	return nil
}

// =============================================================================
// STATIC TENANT DIRECTORY
// =============================================================================

// StaticTenants serves a fixed tenant list.
type StaticTenants []calendar.TenantID

func (s StaticTenants) ListTenants(_ context.Context) ([]calendar.TenantID, error) {
	return append([]calendar.TenantID{}, s...), nil
}
