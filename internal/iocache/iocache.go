// Package iocache persists solved weights and raking run history.
package iocache

import (
	"sync"

	"github.com/surveykit/raking/internal/contract"
)

// CacheStoreManager manages the weight cache and history stores.
type CacheStoreManager struct {
	sync.RWMutex // Protects the store pointers during initialization
	weights      contract.CacheStore
	history      contract.HistoryStore
}

var _ contract.CacheManager = &CacheStoreManager{} // Compile-time check

// GetWeightStore returns the solved-weight CacheStore.
func (mgr *CacheStoreManager) GetWeightStore() contract.CacheStore {
	mgr.RLock()
	defer mgr.RUnlock()
	return mgr.weights
}

// GetHistoryStore returns the run HistoryStore.
func (mgr *CacheStoreManager) GetHistoryStore() contract.HistoryStore {
	mgr.RLock()
	defer mgr.RUnlock()
	return mgr.history
}
