package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/helixsearch/indexcoord/internal/model"
	"github.com/helixsearch/indexcoord/internal/store"
)

// MockMetadataStore is a mock implementation of MetadataStore
type MockMetadataStore struct {
	mock.Mock
}

func (m *MockMetadataStore) GetTenant(ctx context.Context, tenantID string) (*model.Tenant, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Tenant), args.Error(1)
}

func (m *MockMetadataStore) CreateTenant(ctx context.Context, tenant *model.Tenant) error {
	args := m.Called(ctx, tenant)
	return args.Error(0)
}

func (m *MockMetadataStore) UpdateTenantStatus(ctx context.Context, tenantID string, status model.TenantStatus) error {
	args := m.Called(ctx, tenantID, status)
	return args.Error(0)
}

func (m *MockMetadataStore) DeleteTenant(ctx context.Context, tenantID string) error {
	args := m.Called(ctx, tenantID)
	return args.Error(0)
}

func (m *MockMetadataStore) ListTenants(ctx context.Context) ([]*model.Tenant, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Tenant), args.Error(1)
}

func (m *MockMetadataStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockMetadataStore) Close() {
	m.Called()
}

// fakePartitionStore is an in-memory PartitionStore with per-type failure
// injection, used where the recreation workflow needs observable partition
// state rather than call expectations
type fakePartitionStore struct {
	mu         sync.Mutex
	partitions map[string]map[string]*model.Document

	failCreate  map[model.PartitionType]error
	failDelete  map[model.PartitionType]error
	failExists  map[model.PartitionType]error
	failStats   map[model.PartitionType]error
	failMigrate map[model.PartitionType]error
	failUpsert  map[model.PartitionType]error

	// createBarrier, when set, stalls every CreatePartition call until the
	// channel is closed, letting tests interleave concurrent operations
	createBarrier chan struct{}

	// sampleLimits records the limit passed to each SampleDocuments call
	sampleLimits []int
}

func newFakePartitionStore() *fakePartitionStore {
	return &fakePartitionStore{
		partitions:  make(map[string]map[string]*model.Document),
		failCreate:  make(map[model.PartitionType]error),
		failDelete:  make(map[model.PartitionType]error),
		failExists:  make(map[model.PartitionType]error),
		failStats:   make(map[model.PartitionType]error),
		failMigrate: make(map[model.PartitionType]error),
		failUpsert:  make(map[model.PartitionType]error),
	}
}

func partitionKey(tenantID string, ptype model.PartitionType, version string) string {
	return fmt.Sprintf("%s|%s|%s", tenantID, ptype, version)
}

func (f *fakePartitionStore) CreatePartition(ctx context.Context, tenantID string, ptype model.PartitionType, version string) error {
	f.mu.Lock()
	barrier := f.createBarrier
	f.mu.Unlock()
	if barrier != nil {
		select {
		case <-barrier:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failCreate[ptype]; err != nil {
		return err
	}
	f.partitions[partitionKey(tenantID, ptype, version)] = make(map[string]*model.Document)
	return nil
}

func (f *fakePartitionStore) DeletePartition(ctx context.Context, tenantID string, ptype model.PartitionType, version string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failDelete[ptype]; err != nil {
		return err
	}
	delete(f.partitions, partitionKey(tenantID, ptype, version))
	return nil
}

func (f *fakePartitionStore) PartitionExists(ctx context.Context, tenantID string, ptype model.PartitionType, version string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failExists[ptype]; err != nil {
		return false, err
	}
	_, ok := f.partitions[partitionKey(tenantID, ptype, version)]
	return ok, nil
}

func (f *fakePartitionStore) PartitionStats(ctx context.Context, tenantID string, ptype model.PartitionType, version string) (*model.PartitionStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failStats[ptype]; err != nil {
		return nil, err
	}
	docs, ok := f.partitions[partitionKey(tenantID, ptype, version)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &model.PartitionStats{
		TenantID:      tenantID,
		Type:          ptype,
		Version:       version,
		DocumentCount: int64(len(docs)),
	}, nil
}

func (f *fakePartitionStore) SampleDocuments(ctx context.Context, tenantID string, ptype model.PartitionType, version string, limit int) ([]*model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sampleLimits = append(f.sampleLimits, limit)
	docs, ok := f.partitions[partitionKey(tenantID, ptype, version)]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := make([]*model.Document, 0, limit)
	for _, doc := range docs {
		if len(out) >= limit {
			break
		}
		out = append(out, doc)
	}
	return out, nil
}

func (f *fakePartitionStore) MigrateDocuments(ctx context.Context, tenantID string, ptype model.PartitionType, version string, docs []*model.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failMigrate[ptype]; err != nil {
		return err
	}
	target, ok := f.partitions[partitionKey(tenantID, ptype, version)]
	if !ok {
		return store.ErrNotFound
	}
	for _, doc := range docs {
		target[doc.ID] = doc
	}
	return nil
}

func (f *fakePartitionStore) UpsertDocument(ctx context.Context, tenantID string, ptype model.PartitionType, version string, doc *model.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failUpsert[ptype]; err != nil {
		return err
	}
	target, ok := f.partitions[partitionKey(tenantID, ptype, version)]
	if !ok {
		return store.ErrNotFound
	}
	target[doc.ID] = doc
	return nil
}

func (f *fakePartitionStore) Ping(ctx context.Context) error { return nil }

func (f *fakePartitionStore) Close() error { return nil }

// seed creates a partition pre-filled with n documents
func (f *fakePartitionStore) seed(tenantID string, ptype model.PartitionType, version string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	docs := make(map[string]*model.Document, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("doc-%d", i)
		docs[id] = &model.Document{ID: id, Content: fmt.Sprintf("content %d", i)}
	}
	f.partitions[partitionKey(tenantID, ptype, version)] = docs
}

// countForVersion reports how many partitions exist tagged with the version
func (f *fakePartitionStore) countForVersion(tenantID, version string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, ptype := range model.AllPartitionTypes() {
		if _, ok := f.partitions[partitionKey(tenantID, ptype, version)]; ok {
			count++
		}
	}
	return count
}

// fakeCache is an in-memory Cache recording deletions
type fakeCache struct {
	mu      sync.Mutex
	data    map[string]interface{}
	deleted []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string]interface{})}
}

func (c *fakeCache) Get(ctx context.Context, key string) (interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return v, nil
}

func (c *fakeCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *fakeCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	c.deleted = append(c.deleted, key)
	return nil
}
