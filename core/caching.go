package core

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"hash"
	"sort"
	"strconv"
	"time"

	"github.com/surveykit/raking/core/rake"
	"github.com/surveykit/raking/internal/contract"
	"github.com/surveykit/raking/internal/dataset"
)

// currentCacheVersion defines the version of the cache schema
const currentCacheVersion = 1

// cacheTTL bounds how long a solved result is served from cache.
const cacheTTL = 30 * 24 * time.Hour

// cachedSolve returns a stored result for the same inputs, or solves and stores it.
func cachedSolve(ds *dataset.Dataset, targets []rake.Target, opts rake.Options, store contract.CacheStore) (*rake.Result, bool, error) {
	if store == nil {
		res, err := rake.Solve(ds, targets, opts)
		return res, false, err
	}

	key := generateCacheKey(ds, targets, opts)
	if result := checkCacheHit(store, key); result != nil {
		return result, true, nil
	}
	res, err := computeAndStore(ds, targets, opts, store, key)
	return res, false, err
}

// checkCacheHit attempts to retrieve and validate a cached result
func checkCacheHit(store contract.CacheStore, key string) *rake.Result {
	data, version, ts, err := store.Get(key)
	if err != nil {
		return nil // Cache miss
	}

	if version == currentCacheVersion && time.Since(time.Unix(ts, 0)) <= cacheTTL {
		var result rake.Result
		if err := json.Unmarshal(data, &result); err == nil {
			return &result // Cache hit
		}
	}
	return nil // Cache miss (stale or version mismatch)
}

// computeAndStore solves and stores the result in cache.
func computeAndStore(ds *dataset.Dataset, targets []rake.Target, opts rake.Options, store contract.CacheStore, key string) (*rake.Result, error) {
	result, err := rake.Solve(ds, targets, opts)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(result); err == nil {
		if err := store.Set(key, data, currentCacheVersion, time.Now().Unix()); err != nil {
			contract.LogWarn("Failed to cache weights", err)
		}
	}
	return result, nil
}

// generateCacheKey hashes every input that can change the weights: the
// referenced columns, the targets in order, and the solver options.
// Workers is left out because it never changes the result.
func generateCacheKey(ds *dataset.Dataset, targets []rake.Target, opts rake.Options) string {
	h := sha256.New()
	writeField(h, "n", strconv.Itoa(ds.Len()))
	writeField(h, "opts", fmt.Sprintf("%d|%g|%s|%t", opts.MaxIter, opts.Tolerance, opts.MissingPolicy, opts.NormalizeLabels))

	columns := make([]string, 0, len(targets))
	for _, t := range targets {
		writeField(h, "var", t.Variable)
		for _, c := range t.Categories {
			writeField(h, "cat", c.Category)
			writeField(h, "p", strconv.FormatFloat(c.Proportion, 'g', -1, 64))
		}
		columns = append(columns, t.Variable)
	}

	sort.Strings(columns)
	for _, name := range columns {
		col, ok := ds.Column(name)
		if !ok {
			continue
		}
		writeField(h, "col", name)
		for _, v := range col {
			writeField(h, "", v)
		}
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// writeField writes a length-prefixed field so adjacent values cannot collide.
func writeField(h hash.Hash, tag, value string) {
	_, _ = fmt.Fprintf(h, "%s:%d:%s;", tag, len(value), value)
}
