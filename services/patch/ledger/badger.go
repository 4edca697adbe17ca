// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ledger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/Tom-0727/researcher-zero/services/patch/plan"
)

// DefaultKey is the BadgerDB key holding the current ledger text.
const DefaultKey = "plan"

// BadgerConfig holds configuration for a BadgerStore.
type BadgerConfig struct {
	// Dir is the directory for BadgerDB files. Ignored when InMemory is true.
	Dir string

	// InMemory keeps everything in RAM. Useful for tests.
	InMemory bool

	// Key names the current ledger. Revisions live under Key+"/rev/".
	// Default: "plan".
	Key string

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal logging. Nil disables it.
	Logger *slog.Logger

	// GCInterval is how often value log GC runs. 0 disables it.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum discardable ratio before GC rewrites.
	GCDiscardRatio float64
}

// DefaultBadgerConfig returns production defaults for dir.
func DefaultBadgerConfig(dir string) BadgerConfig {
	return BadgerConfig{
		Dir:            dir,
		Key:            DefaultKey,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryBadgerConfig returns a configuration for tests.
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{InMemory: true, Key: DefaultKey}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerStore keeps the ledger text under one key and appends every saved
// version under a revision prefix.
//
// Thread Safety: Safe for concurrent use. The sequence bump and both writes
// of a Save happen in one transaction.
type BadgerStore struct {
	db     *badger.DB
	key    []byte
	seqKey []byte
	revPfx []byte
	gc     *gcRunner

	closeOnce sync.Once
	closed    chan struct{}
}

// OpenBadgerStore opens (or creates) a BadgerDB-backed store.
//
// Description:
//
//	Opens the database at cfg.Dir, creating the directory, or in memory
//	when cfg.InMemory is set. Starts value log GC for persistent stores
//	when cfg.GCInterval is positive.
//
// Outputs:
//
//	*BadgerStore - Caller must Close it.
//	error - Non-nil if the configuration is invalid or the open fails.
func OpenBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, errors.New("badger dir is required for persistent store")
	}
	if cfg.Key == "" {
		cfg.Key = DefaultKey
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Dir, err)
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	s := &BadgerStore{
		db:     db,
		key:    []byte(cfg.Key),
		seqKey: []byte(cfg.Key + "/seq"),
		revPfx: []byte(cfg.Key + "/rev/"),
		closed: make(chan struct{}),
	}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.gc = newGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
		s.gc.start()
	}
	return s, nil
}

// Load returns the current ledger text, or plan.EmptyText when unset.
func (s *BadgerStore) Load(ctx context.Context) (string, error) {
	if err := s.check(ctx); err != nil {
		return "", err
	}
	var text string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			text = plan.EmptyText
			return nil
		}
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		text = string(val)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("loading plan: %w", err)
	}
	return text, nil
}

// Save stores text as the current ledger and records it as a new revision.
func (s *BadgerStore) Save(ctx context.Context, text string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		seq, err := s.nextSeq(txn)
		if err != nil {
			return err
		}
		rev, err := json.Marshal(Revision{Seq: seq, Text: text, SavedAt: time.Now().UTC()})
		if err != nil {
			return err
		}
		if err := txn.Set(s.key, []byte(text)); err != nil {
			return err
		}
		return txn.Set(s.revKey(seq), rev)
	})
	if err != nil {
		return fmt.Errorf("saving plan: %w", err)
	}
	return nil
}

// History returns up to n revisions, newest first. n <= 0 returns all.
func (s *BadgerStore) History(ctx context.Context, n int) ([]Revision, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	revs := []Revision{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = s.revPfx
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte{}, s.revPfx...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(s.revPfx); it.Next() {
			if n > 0 && len(revs) >= n {
				break
			}
			var rev Revision
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rev)
			})
			if err != nil {
				return fmt.Errorf("decoding revision %s: %w", it.Item().Key(), err)
			}
			revs = append(revs, rev)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	return revs, nil
}

// Close stops GC and closes the database. Later calls return nil.
func (s *BadgerStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.gc != nil {
			s.gc.stop()
		}
		err = s.db.Close()
	})
	return err
}

func (s *BadgerStore) check(ctx context.Context) error {
	select {
	case <-s.closed:
		return ErrStoreClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	return nil
}

func (s *BadgerStore) nextSeq(txn *badger.Txn) (uint64, error) {
	var seq uint64
	item, err := txn.Get(s.seqKey)
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
	case err != nil:
		return 0, err
	default:
		err = item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("corrupt sequence value of %d bytes", len(val))
			}
			seq = binary.BigEndian.Uint64(val)
			return nil
		})
		if err != nil {
			return 0, err
		}
	}
	seq++
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	if err := txn.Set(s.seqKey, buf); err != nil {
		return 0, err
	}
	return seq, nil
}

// revKey zero-pads seq so lexical key order is numeric order.
func (s *BadgerStore) revKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", s.revPfx, seq))
}

// gcRunner runs periodic value log garbage collection.
type gcRunner struct {
	db       *badger.DB
	interval time.Duration
	ratio    float64
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func newGCRunner(db *badger.DB, interval time.Duration, ratio float64, logger *slog.Logger) *gcRunner {
	if ratio <= 0 || ratio > 1 {
		ratio = 0.5
	}
	return &gcRunner{
		db:       db,
		interval: interval,
		ratio:    ratio,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

func (r *gcRunner) start() {
	go func() {
		defer close(r.doneCh)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stopCh:
				return
			case <-ticker.C:
				err := r.db.RunValueLogGC(r.ratio)
				// ErrNoRewrite means nothing to collect.
				if err != nil && !errors.Is(err, badger.ErrNoRewrite) && r.logger != nil {
					r.logger.Warn("badger value log GC error", slog.String("error", err.Error()))
				}
			}
		}
	}()
}

func (r *gcRunner) stop() {
	close(r.stopCh)
	<-r.doneCh
}
