// Package minicask is a small append-only key-value store in the bitcask style.
//
// Every mutation is appended to the active segment file in a data directory and the
// latest value of each key is kept in an in-memory index rebuilt by replaying the
// segments on Open. Segments are rotated once the active one grows past a size limit.
// Keys may carry an absolute expiry deadline after which reads treat them as absent.
//
// All operations on a DB are funneled through a single goroutine, so a DB is safe for
// concurrent use and operations are applied one at a time in arrival order.
//
// Example usage:
//
//	db, err := minicask.Open("/path/to/data", nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Set([]byte("key"), []byte("value")); err != nil {
//		log.Printf("Set failed: %v", err)
//	}
//
//	value, exists := db.Get([]byte("key"))
//	if exists {
//		fmt.Printf("Value: %s\n", value)
//	}
//
//	err = db.SetWithExpire([]byte("session"), []byte("abc"), time.Now().Add(time.Minute))
package minicask

import (
	"time"

	"github.com/MikhailWahib/minicask/internal/config"
	"github.com/MikhailWahib/minicask/internal/dispatcher"
	"github.com/MikhailWahib/minicask/internal/engine"
)

// Config is an alias for config.Config, re-exported for user convenience.
type Config = config.Config

// DefaultConfig returns a Config struct populated with default values. Re-exported for user convenience.
var DefaultConfig = config.DefaultConfig

// Errors returned by DB methods.
var (
	ErrClosed        = dispatcher.ErrClosed
	ErrEmptyKey      = engine.ErrEmptyKey
	ErrKeyTooLarge   = engine.ErrKeyTooLarge
	ErrValueTooLarge = engine.ErrValueTooLarge
	ErrInvalidText   = engine.ErrInvalidText
)

// DB is an open store. Its methods may be called from any goroutine.
type DB struct {
	d *dispatcher.Dispatcher
}

// Open opens or creates a store in the directory at path.
//
// The directory is created if it doesn't exist. Existing segments are replayed to
// rebuild the index before Open returns. cfg may be nil; path overrides cfg.Dir.
func Open(path string, cfg *Config) (*DB, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	c := *cfg
	c.Dir = path
	c.FillDefaults()

	e, err := engine.Open(&c)
	if err != nil {
		return nil, err
	}

	d := dispatcher.New(e, c.Logger)
	go d.Run()

	return &DB{d: d}, nil
}

// Get returns the current value of key and true, or nil and false when the key is
// absent, expired, invalid, or the DB is closed.
func (db *DB) Get(key []byte) ([]byte, bool) {
	res := db.d.Get(string(key))
	if res.Err != nil || !res.Found {
		return nil, false
	}
	return []byte(res.Value), true
}

// Set stores value under key, replacing any previous value. A deadline set earlier with
// SetWithExpire is kept and still expires the key.
func (db *DB) Set(key, value []byte) error {
	return db.d.Set(string(key), string(value))
}

// SetWithExpire stores value under key until deadline. Reads after the deadline
// report the key as absent.
func (db *DB) SetWithExpire(key, value []byte, deadline time.Time) error {
	return db.d.SetWithExpire(string(key), string(value), deadline)
}

// Delete removes key. Deleting an absent key is not an error.
func (db *DB) Delete(key []byte) error {
	return db.d.Delete(string(key))
}

// Clear removes every key.
func (db *DB) Clear() error {
	return db.d.Clear()
}

// Close flushes and closes all segment files, releases the directory lock and stops
// the dispatcher. Subsequent calls return ErrClosed.
//
//	db, err := minicask.Open("/path/to/data", nil)
//	if err != nil {
//		return err
//	}
//	defer db.Close()
func (db *DB) Close() error {
	err := db.d.Shutdown()
	<-db.d.Done()
	return err
}
