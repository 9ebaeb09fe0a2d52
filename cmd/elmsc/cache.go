// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"path/filepath"

	"github.com/btcsuite/elementsminiscript/miniscript"
	"github.com/btcsuite/elementsminiscript/policy"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

const (
	// compileCacheDirname is the name of the compile cache database
	// below the data directory.
	compileCacheDirname = "compilecache"
)

// compileCache remembers compiled miniscript by script context and
// canonical policy text. Compiling large thresholds is expensive and the
// result is deterministic, so it never has to be invalidated.
type compileCache struct {
	db *leveldb.DB
}

// openCompileCache opens or creates the compile cache below dataDir.
func openCompileCache(dataDir string) (*compileCache, error) {
	dbPath := filepath.Join(dataDir, compileCacheDirname)
	if !fileExists(dbPath) {
		log.Infof("Creating compile cache in '%s'", dbPath)
	}

	opts := opt.Options{
		Strict:      opt.DefaultStrict,
		Compression: opt.NoCompression,
		Filter:      filter.NewBloomFilter(10),
	}
	db, err := leveldb.OpenFile(dbPath, &opts)
	if err != nil {
		return nil, errors.Wrapf(err, "open compile cache %s", dbPath)
	}
	return &compileCache{db: db}, nil
}

func cacheKey(ctx miniscript.Context, pol *policy.Policy) []byte {
	return []byte(ctx.String() + "|" + pol.String())
}

// Get returns the cached compilation of the policy. Entries which no longer
// parse are removed and reported as a miss.
func (c *compileCache) Get(ctx miniscript.Context,
	pol *policy.Policy) (*miniscript.Fragment, bool, error) {

	key := cacheKey(ctx, pol)
	value, err := c.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "read compile cache")
	}

	ms, err := miniscript.ParseWithKeys(string(value), parseKey)
	if err == nil {
		err = miniscript.TopLevelCheck(ms, ctx)
	}
	if err != nil {
		log.Warnf("Dropping invalid compile cache entry %s: %v", key,
			err)
		if err := c.db.Delete(key, nil); err != nil {
			return nil, false, errors.Wrap(err, "delete compile "+
				"cache entry")
		}
		return nil, false, nil
	}

	log.Debugf("Compile cache hit for %s", key)
	return ms, true, nil
}

// Put stores the compilation of the policy.
func (c *compileCache) Put(ctx miniscript.Context, pol *policy.Policy,
	ms *miniscript.Fragment) error {

	err := c.db.Put(cacheKey(ctx, pol), []byte(ms.String()), nil)
	return errors.Wrap(err, "write compile cache")
}

// Close closes the underlying database.
func (c *compileCache) Close() error {
	return errors.Wrap(c.db.Close(), "close compile cache")
}
