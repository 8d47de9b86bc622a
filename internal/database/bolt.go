// Package database persists the provider jobs this instance created, using bbolt.
package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// Default database file permissions
	dbFileMode = 0600
	dbDirMode  = 0755

	// Default database filename
	defaultDBFile = "rdstream.db"
)

var jobsBucket = []byte("jobs")

// Job is a provider job created for an info-hash.
type Job struct {
	Hash      string    `json:"hash"`
	TorrentID string    `json:"torrent_id"`
	Name      string    `json:"name"`
	AddedAt   time.Time `json:"added_at"`
	Status    string    `json:"status,omitempty"`
}

// Database defines the ledger operations.
type Database interface {
	// Lookup returns the job recorded for hash, or nil
	Lookup(hash string) (*Job, error)
	// Record stores or replaces a job
	Record(job *Job) error
	// Forget removes the job for hash
	Forget(hash string) error
	// Older returns jobs added before now minus d, oldest first
	Older(d time.Duration) ([]Job, error)
	// Close closes the database
	Close() error
}

// BoltDB implements Database on a single bbolt bucket keyed by hash.
type BoltDB struct {
	db  *bolt.DB
	now func() time.Time
}

// NewBoltDB opens (or creates) the ledger at path.
func NewBoltDB(path string) (*BoltDB, error) {
	if path == "" {
		path = filepath.Join(".", defaultDBFile)
	}

	if err := os.MkdirAll(filepath.Dir(path), dbDirMode); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := bolt.Open(path, dbFileMode, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(jobsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create jobs bucket: %w", err)
	}

	return &BoltDB{db: db, now: time.Now}, nil
}

func key(hash string) []byte {
	return []byte(strings.ToLower(hash))
}

func (b *BoltDB) Lookup(hash string) (*Job, error) {
	var job *Job
	err := b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(jobsBucket).Get(key(hash))
		if data == nil {
			return nil
		}
		job = &Job{}
		return json.Unmarshal(data, job)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read job: %w", err)
	}
	return job, nil
}

func (b *BoltDB) Record(job *Job) error {
	if job.Hash == "" || job.TorrentID == "" {
		return errors.New("job needs a hash and a torrent id")
	}
	if job.AddedAt.IsZero() {
		job.AddedAt = b.now()
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	err = b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(jobsBucket).Put(key(job.Hash), data)
	})
	if err != nil {
		return fmt.Errorf("failed to store job: %w", err)
	}
	return nil
}

func (b *BoltDB) Forget(hash string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(jobsBucket).Delete(key(hash))
	})
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

func (b *BoltDB) Older(d time.Duration) ([]Job, error) {
	cutoff := b.now().Add(-d)

	var jobs []Job
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(jobsBucket).ForEach(func(_, data []byte) error {
			var job Job
			if err := json.Unmarshal(data, &job); err != nil {
				return err
			}
			if job.AddedAt.Before(cutoff) {
				jobs = append(jobs, job)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].AddedAt.Before(jobs[j].AddedAt)
	})
	return jobs, nil
}

func (b *BoltDB) Close() error {
	return b.db.Close()
}

// LookupTorrentID returns the provider job id recorded for hash.
func (b *BoltDB) LookupTorrentID(hash string) (string, bool) {
	job, err := b.Lookup(hash)
	if err != nil || job == nil {
		return "", false
	}
	return job.TorrentID, true
}

// RecordSubmission stores a freshly submitted job.
func (b *BoltDB) RecordSubmission(hash, torrentID, name string) error {
	return b.Record(&Job{Hash: hash, TorrentID: torrentID, Name: name, Status: "submitted"})
}
