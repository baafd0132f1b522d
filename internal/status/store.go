package status

import (
	"sync"
	"time"
)

// Store holds the latest snapshot behind a read/write lock.
//
// Snapshots are replaced whole, so a reader sees either the complete previous
// snapshot or the complete new one. Values handed out by the accessors share
// slices with the stored snapshot; callers must treat them as read-only.
type Store struct {
	mu        sync.RWMutex
	status    SystemStatus
	updatedAt time.Time
	version   uint64
}

// NewStore creates a Store holding the all-absent startup snapshot.
func NewStore() *Store {
	return &Store{status: NewSystemStatus()}
}

// Replace publishes st as the current snapshot, discarding the previous one.
func (s *Store) Replace(st SystemStatus) {
	now := time.Now()
	s.mu.Lock()
	s.status = st
	s.updatedAt = now
	s.version++
	s.mu.Unlock()
}

// Snapshot returns the current snapshot.
func (s *Store) Snapshot() SystemStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// CPU returns the CPU section of the current snapshot.
func (s *Store) CPU() CpuInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status.CPU
}

// Memory returns the memory section of the current snapshot.
func (s *Store) Memory() MemoryInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status.Memory
}

// Processes returns the process section of the current snapshot.
func (s *Store) Processes() ProcessesInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status.Processes
}

// ExternalTemperature returns the external temperature section of the
// current snapshot.
func (s *Store) ExternalTemperature() ExternalTemperature {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status.ExternalTemperature
}

// UpdatedAt returns when the current snapshot was published, and the number
// of snapshots published so far. Zero values mean no poll has completed.
func (s *Store) UpdatedAt() (time.Time, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt, s.version
}
