package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"crawl-scheduler/pkg/log"
	"crawl-scheduler/pkg/models"
	"crawl-scheduler/pkg/utils"
)

const (
	outcomeKeyPrefix = "outcome:"   // Prefix for outcome keys in DB
	journalDBDir     = "journal_db" // Subdirectory name within stateDir for Badger DB files
)

// BadgerStore implements the OutcomeStore interface using BadgerDB.
// Keys are namespaced by run ID so journals of multiple runs can share a DB.
type BadgerStore struct {
	db    *badger.DB
	runID string
	log   *logrus.Entry
}

// NewBadgerStore initializes and returns a new BadgerStore rooted in stateDir.
func NewBadgerStore(stateDir, runID string, logger *logrus.Entry) (*BadgerStore, error) {
	dbPath := filepath.Join(stateDir, journalDBDir)

	logger.Infof("Initializing outcome journal at: %s (run: %s)", dbPath, runID)

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("cannot create state directory %s: %w", dbPath, err)
	}

	// Configure Badger options
	badgerLogger := log.NewBadgerLogrusAdapter(logger.WithField("component", "badgerdb"))
	opts := badger.DefaultOptions(dbPath).
		WithLogger(badgerLogger). // Use custom logrus adapter
		WithNumVersionsToKeep(1)  // Only keep the latest outcome per URL

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database at %s: %w", utils.ErrDatabase, dbPath, err)
	}

	logger.Info("Outcome journal initialized successfully.")
	return &BadgerStore{db: db, runID: runID, log: logger}, nil
}

// key builds the namespaced journal key for a URL.
func (s *BadgerStore) key(normalizedURL string) []byte {
	return []byte(outcomeKeyPrefix + s.runID + ":" + normalizedURL)
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
// Concurrent MVCC transactions on overlapping keys can return badger.ErrConflict;
// these resolve in microseconds, so a tight retry loop is sufficient.
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

// RecordOutcome implements the OutcomeStore interface.
func (s *BadgerStore) RecordOutcome(normalizedURL string, entry *models.OutcomeEntry) error {
	if s.db == nil {
		return errors.New("journal DB not initialized")
	}
	key := s.key(normalizedURL)

	entryBytes, errJson := json.Marshal(entry)
	if errJson != nil {
		wrappedErr := fmt.Errorf("%w: failed to marshal OutcomeEntry for key '%s': %w", utils.ErrDatabase, string(key), errJson)
		s.log.Error(wrappedErr)
		return wrappedErr
	}

	overwrote := false
	err := s.dbUpdate(func(txn *badger.Txn) error {
		_, errGet := txn.Get(key)
		if errGet == nil {
			overwrote = true
		}
		return txn.SetEntry(badger.NewEntry(key, entryBytes))
	})

	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error in RecordOutcome: %v", err)
		return fmt.Errorf("%w: failed recording outcome for key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	if overwrote {
		// Outcomes are terminal; a rewrite within one run means the caller
		// journaled the same URL twice
		s.log.Warnf("Outcome for key '%s' overwritten within run %s", string(key), s.runID)
	}

	s.log.Debugf("Recorded outcome for key '%s' with status '%s'", string(key), entry.Status)
	return nil
}

// GetOutcome implements the OutcomeStore interface.
func (s *BadgerStore) GetOutcome(normalizedURL string) (*models.OutcomeEntry, error) {
	if s.db == nil {
		return nil, errors.New("journal DB not initialized")
	}
	key := s.key(normalizedURL)
	var entry *models.OutcomeEntry

	errView := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil // Not journaled; not an error
		}
		if errGet != nil {
			return fmt.Errorf("%w: failed getting outcome key '%s': %w", utils.ErrDatabase, string(key), errGet)
		}

		return item.Value(func(val []byte) error {
			var decoded models.OutcomeEntry
			if errJson := json.Unmarshal(val, &decoded); errJson != nil {
				return fmt.Errorf("%w: failed to unmarshal OutcomeEntry for key '%s': %w", utils.ErrDatabase, string(key), errJson)
			}
			entry = &decoded
			return nil
		})
	})

	if errView != nil {
		s.log.Errorf("DB View error in GetOutcome for key '%s': %v", string(key), errView)
		return nil, errView
	}
	return entry, nil
}

// CountByStatus implements the OutcomeStore interface.
func (s *BadgerStore) CountByStatus() (map[models.OutcomeStatus]int, error) {
	if s.db == nil {
		return nil, errors.New("journal DB not initialized")
	}
	counts := make(map[models.OutcomeStatus]int)
	prefix := []byte(outcomeKeyPrefix + s.runID + ":")

	errView := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true // Need values to read status
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			errVal := item.Value(func(val []byte) error {
				var entry models.OutcomeEntry
				if errJson := json.Unmarshal(val, &entry); errJson != nil {
					s.log.Warnf("Skipping undecodable journal entry '%s': %v", string(item.Key()), errJson)
					return nil // Continue iteration
				}
				counts[entry.Status]++
				return nil
			})
			if errVal != nil {
				return errVal
			}
		}
		return nil
	})

	if errView != nil {
		return nil, fmt.Errorf("%w: counting journal entries: %w", utils.ErrDatabase, errView)
	}
	return counts, nil
}

// RunGC implements the OutcomeStore interface. Should be run in a goroutine.
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("BadgerDB GC goroutine started.")

	for {
		select {
		case <-ticker.C:
			// Check if DB is valid before running GC
			if s.db == nil || s.db.IsClosed() {
				s.log.Info("DB GC: Database is nil or closed, skipping GC cycle.")
				continue
			}

			s.log.Debug("Running BadgerDB value log garbage collection...")
			var err error
			// Loop GC until it returns ErrNoRewrite or another error
			for {
				// Run GC if log is at least 50% reclaimable space
				err = s.db.RunValueLogGC(0.5)
				if err != nil {
					break // GC finished (ErrNoRewrite) or encountered an error
				}
			}

			if errors.Is(err, badger.ErrNoRewrite) {
				s.log.Debug("BadgerDB GC finished (no rewrite needed).")
			} else {
				s.log.Errorf("BadgerDB GC error: %v", err)
			}

		case <-ctx.Done():
			s.log.Infof("Stopping BadgerDB garbage collection goroutine due to context cancellation: %v", ctx.Err())
			return
		}
	}
}

// Close implements the OutcomeStore interface.
func (s *BadgerStore) Close() error {
	if s.db != nil && !s.db.IsClosed() {
		s.log.Info("Closing outcome journal...")
		if err := s.db.Close(); err != nil {
			s.log.Errorf("Error closing outcome journal: %v", err)
			return err
		}
		s.log.Info("Outcome journal closed.")
		return nil
	}
	s.log.Info("Outcome journal already closed or was not initialized.")
	return nil
}
