package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/helixsearch/indexcoord/internal/model"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// placeholderDocID seeds every new partition so it exists and is queryable
// even when empty
const placeholderDocID = "__placeholder__"

// RedisPartitionStore implements PartitionStore over Redis hashes. Each
// partition lives at partition:{tenant}:{type}:{version} with one hash field
// per document; partitions:{tenant} indexes the tenant's partitions.
type RedisPartitionStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPartitionStore creates a new Redis partition store
func NewRedisPartitionStore(host string, port int, password string, db int, logger *zap.Logger) (*RedisPartitionStore, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisPartitionStore{
		client: client,
		logger: logger,
	}, nil
}

// NewRedisPartitionStoreWithClient wraps an existing client. Used by tests
// running against miniredis.
func NewRedisPartitionStoreWithClient(client *redis.Client, logger *zap.Logger) *RedisPartitionStore {
	return &RedisPartitionStore{client: client, logger: logger}
}

func partitionKey(tenantID string, ptype model.PartitionType, version string) string {
	return fmt.Sprintf("partition:%s:%s:%s", tenantID, ptype, version)
}

func partitionIndexKey(tenantID string) string {
	return fmt.Sprintf("partitions:%s", tenantID)
}

// CreatePartition creates the partition seeded with a placeholder entry
func (s *RedisPartitionStore) CreatePartition(ctx context.Context, tenantID string, ptype model.PartitionType, version string) error {
	placeholder, err := json.Marshal(&model.Document{
		ID:      placeholderDocID,
		Content: "placeholder",
		Metadata: map[string]string{
			"tenant_id": tenantID,
			"type":      string(ptype),
			"version":   version,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal placeholder: %w", err)
	}

	key := partitionKey(tenantID, ptype, version)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, placeholderDocID, placeholder)
	pipe.SAdd(ctx, partitionIndexKey(tenantID), fmt.Sprintf("%s:%s", ptype, version))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to create partition %s: %w", key, err)
	}

	s.logger.Debug("Created partition",
		zap.String("tenant_id", tenantID),
		zap.String("type", string(ptype)),
		zap.String("version", version))
	return nil
}

// DeletePartition removes a partition and all its documents
func (s *RedisPartitionStore) DeletePartition(ctx context.Context, tenantID string, ptype model.PartitionType, version string) error {
	key := partitionKey(tenantID, ptype, version)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, partitionIndexKey(tenantID), fmt.Sprintf("%s:%s", ptype, version))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete partition %s: %w", key, err)
	}
	return nil
}

// PartitionExists reports whether the partition exists
func (s *RedisPartitionStore) PartitionExists(ctx context.Context, tenantID string, ptype model.PartitionType, version string) (bool, error) {
	n, err := s.client.Exists(ctx, partitionKey(tenantID, ptype, version)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check partition: %w", err)
	}
	return n > 0, nil
}

// PartitionStats returns document counts for the partition. The placeholder
// entry is not counted.
func (s *RedisPartitionStore) PartitionStats(ctx context.Context, tenantID string, ptype model.PartitionType, version string) (*model.PartitionStats, error) {
	key := partitionKey(tenantID, ptype, version)
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to stat partition: %w", err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}

	count, err := s.client.HLen(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	if has, err := s.client.HExists(ctx, key, placeholderDocID).Result(); err == nil && has {
		count--
	}

	return &model.PartitionStats{
		TenantID:      tenantID,
		Type:          ptype,
		Version:       version,
		DocumentCount: count,
	}, nil
}

// SampleDocuments reads up to limit documents from the partition
func (s *RedisPartitionStore) SampleDocuments(ctx context.Context, tenantID string, ptype model.PartitionType, version string, limit int) ([]*model.Document, error) {
	key := partitionKey(tenantID, ptype, version)
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read partition %s: %w", key, err)
	}

	docs := make([]*model.Document, 0, limit)
	for id, raw := range fields {
		if id == placeholderDocID {
			continue
		}
		if len(docs) >= limit {
			break
		}
		var doc model.Document
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			s.logger.Warn("Skipping undecodable document",
				zap.String("partition", key),
				zap.String("doc_id", id),
				zap.Error(err))
			continue
		}
		docs = append(docs, &doc)
	}
	return docs, nil
}

// MigrateDocuments copies documents into the partition at the target version
func (s *RedisPartitionStore) MigrateDocuments(ctx context.Context, tenantID string, ptype model.PartitionType, version string, docs []*model.Document) error {
	if len(docs) == 0 {
		return nil
	}

	key := partitionKey(tenantID, ptype, version)
	pipe := s.client.TxPipeline()
	for _, doc := range docs {
		raw, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to marshal document %s: %w", doc.ID, err)
		}
		pipe.HSet(ctx, key, doc.ID, raw)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to migrate %d documents into %s: %w", len(docs), key, err)
	}
	return nil
}

// UpsertDocument writes a single document into the partition
func (s *RedisPartitionStore) UpsertDocument(ctx context.Context, tenantID string, ptype model.PartitionType, version string, doc *model.Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document %s: %w", doc.ID, err)
	}
	key := partitionKey(tenantID, ptype, version)
	if err := s.client.HSet(ctx, key, doc.ID, raw).Err(); err != nil {
		return fmt.Errorf("failed to upsert document into %s: %w", key, err)
	}
	return nil
}

// Ping checks the Redis connection
func (s *RedisPartitionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (s *RedisPartitionStore) Close() error {
	return s.client.Close()
}
