// Package cache provides bounded read-through caches over the hot lookup
// repositories (merchant, entity, hash). Each entry expires a fixed window
// after it was added or last written; reads do not extend it. Negative
// lookups are never cached; writes go straight through and refresh the
// entry. The wrappers have no delete path, so no entry is invalidated before
// it expires.
package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/cardvault/locker/internal/crypto/keymanager"
	vaultDomain "github.com/cardvault/locker/internal/vault/domain"
	vaultUseCase "github.com/cardvault/locker/internal/vault/usecase"
)

// Config bounds the caches.
type Config struct {
	MaxEntries int
	TTI        time.Duration
}

// CachingMerchantRepository wraps a MerchantRepository with a read-through
// cache keyed by (tenant_id, merchant_id).
type CachingMerchantRepository struct {
	inner keymanager.MerchantRepository
	cache *expirable.LRU[string, *vaultDomain.Merchant]
}

// NewCachingMerchantRepository wraps the repository.
func NewCachingMerchantRepository(
	inner keymanager.MerchantRepository,
	cfg Config,
) *CachingMerchantRepository {
	return &CachingMerchantRepository{
		inner: inner,
		cache: expirable.NewLRU[string, *vaultDomain.Merchant](cfg.MaxEntries, nil, cfg.TTI),
	}
}

// scopedKey builds a tenant-scoped cache key.
func scopedKey(tenantID, id string) string {
	return tenantID + "/" + id
}

// FindByMerchantID serves from cache when possible, populating on miss.
func (c *CachingMerchantRepository) FindByMerchantID(
	ctx context.Context,
	tenantID, merchantID string,
) (*vaultDomain.Merchant, error) {
	if merchant, ok := c.cache.Get(scopedKey(tenantID, merchantID)); ok {
		return merchant, nil
	}

	merchant, err := c.inner.FindByMerchantID(ctx, tenantID, merchantID)
	if err != nil {
		return nil, err
	}

	c.cache.Add(scopedKey(tenantID, merchantID), merchant)
	return merchant, nil
}

// InsertOrGet writes through and caches the winning row.
func (c *CachingMerchantRepository) InsertOrGet(
	ctx context.Context,
	merchant *vaultDomain.Merchant,
) (*vaultDomain.Merchant, error) {
	stored, err := c.inner.InsertOrGet(ctx, merchant)
	if err != nil {
		return nil, err
	}

	c.cache.Add(scopedKey(stored.TenantID, stored.MerchantID), stored)
	return stored, nil
}

// FindWithoutEntity is a migration scan and bypasses the cache.
func (c *CachingMerchantRepository) FindWithoutEntity(
	ctx context.Context,
	tenantID string,
	limit int64,
) ([]*vaultDomain.Merchant, error) {
	return c.inner.FindWithoutEntity(ctx, tenantID, limit)
}

// CachingEntityRepository wraps an EntityRepository with a read-through cache
// keyed by (tenant_id, entity_id).
type CachingEntityRepository struct {
	inner keymanager.EntityRepository
	cache *expirable.LRU[string, *vaultDomain.Entity]
}

// NewCachingEntityRepository wraps the repository.
func NewCachingEntityRepository(
	inner keymanager.EntityRepository,
	cfg Config,
) *CachingEntityRepository {
	return &CachingEntityRepository{
		inner: inner,
		cache: expirable.NewLRU[string, *vaultDomain.Entity](cfg.MaxEntries, nil, cfg.TTI),
	}
}

// FindByEntityID serves from cache when possible, populating on miss.
func (c *CachingEntityRepository) FindByEntityID(
	ctx context.Context,
	tenantID, entityID string,
) (*vaultDomain.Entity, error) {
	if entity, ok := c.cache.Get(scopedKey(tenantID, entityID)); ok {
		return entity, nil
	}

	entity, err := c.inner.FindByEntityID(ctx, tenantID, entityID)
	if err != nil {
		return nil, err
	}

	c.cache.Add(scopedKey(tenantID, entityID), entity)
	return entity, nil
}

// InsertOrGet writes through and caches the winning row.
func (c *CachingEntityRepository) InsertOrGet(
	ctx context.Context,
	entity *vaultDomain.Entity,
) (*vaultDomain.Entity, error) {
	stored, err := c.inner.InsertOrGet(ctx, entity)
	if err != nil {
		return nil, err
	}

	c.cache.Add(scopedKey(stored.TenantID, stored.EntityID), stored)
	return stored, nil
}

// CachingHashRepository wraps a HashRepository with a read-through cache keyed
// by the content hash.
type CachingHashRepository struct {
	inner vaultUseCase.HashRepository
	cache *expirable.LRU[string, *vaultDomain.HashTable]
}

// NewCachingHashRepository wraps the repository.
func NewCachingHashRepository(
	inner vaultUseCase.HashRepository,
	cfg Config,
) *CachingHashRepository {
	return &CachingHashRepository{
		inner: inner,
		cache: expirable.NewLRU[string, *vaultDomain.HashTable](cfg.MaxEntries, nil, cfg.TTI),
	}
}

// FindByDataHash serves from cache when possible, populating on miss.
func (c *CachingHashRepository) FindByDataHash(
	ctx context.Context,
	dataHash []byte,
) (*vaultDomain.HashTable, error) {
	if hash, ok := c.cache.Get(string(dataHash)); ok {
		return hash, nil
	}

	hash, err := c.inner.FindByDataHash(ctx, dataHash)
	if err != nil {
		return nil, err
	}

	c.cache.Add(string(dataHash), hash)
	return hash, nil
}

// InsertHash writes through and caches the winning row.
func (c *CachingHashRepository) InsertHash(
	ctx context.Context,
	dataHash []byte,
) (*vaultDomain.HashTable, error) {
	hash, err := c.inner.InsertHash(ctx, dataHash)
	if err != nil {
		return nil, err
	}

	c.cache.Add(string(dataHash), hash)
	return hash, nil
}
