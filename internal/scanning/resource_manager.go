package scanning

import (
	"context"
	"sync"
	"time"

	"github.com/anstrom/nmapdeck/internal/errors"
)

// ResourceManager bounds how many nmap processes run at the same time.
type ResourceManager interface {
	// Acquire blocks until a slot is free for scanID or ctx is done.
	Acquire(ctx context.Context, scanID string) error

	// Release frees the slot held by scanID. Unknown IDs are ignored.
	Release(scanID string)

	// GetActiveScans returns the current number of active scans.
	GetActiveScans() int

	// GetAvailableSlots returns the number of free slots, or -1 when unbounded.
	GetAvailableSlots() int

	// Close rejects further acquisitions.
	Close() error
}

// NewResourceManager returns a fixed-size manager, or an unbounded one when
// capacity is zero or negative.
func NewResourceManager(capacity int) ResourceManager {
	if capacity <= 0 {
		return NewUnboundedResourceManager()
	}
	return NewFixedResourceManager(capacity)
}

func errManagerClosed() error {
	return errors.NewScanError(errors.CodeCanceled, "resource manager is closed")
}

// FixedResourceManager implements ResourceManager with a fixed number of slots.
type FixedResourceManager struct {
	capacity    int
	semaphore   chan struct{}
	activeScans map[string]time.Time
	mutex       sync.RWMutex
	closed      bool
}

// NewFixedResourceManager creates a new resource manager with the specified capacity.
func NewFixedResourceManager(capacity int) *FixedResourceManager {
	if capacity <= 0 {
		capacity = 1
	}

	return &FixedResourceManager{
		capacity:    capacity,
		semaphore:   make(chan struct{}, capacity),
		activeScans: make(map[string]time.Time),
	}
}

// Acquire attempts to acquire a resource slot for the given scan ID.
func (rm *FixedResourceManager) Acquire(ctx context.Context, scanID string) error {
	rm.mutex.RLock()
	closed := rm.closed
	rm.mutex.RUnlock()
	if closed {
		return errManagerClosed()
	}

	select {
	case rm.semaphore <- struct{}{}:
		rm.mutex.Lock()
		rm.activeScans[scanID] = time.Now()
		rm.mutex.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release releases the resource slot for the given scan ID.
func (rm *FixedResourceManager) Release(scanID string) {
	rm.mutex.Lock()
	defer rm.mutex.Unlock()

	if _, exists := rm.activeScans[scanID]; !exists {
		return
	}
	delete(rm.activeScans, scanID)

	select {
	case <-rm.semaphore:
	default:
	}
}

// GetActiveScans returns the current number of active scans.
func (rm *FixedResourceManager) GetActiveScans() int {
	rm.mutex.RLock()
	defer rm.mutex.RUnlock()

	return len(rm.activeScans)
}

// GetAvailableSlots returns the number of available resource slots.
func (rm *FixedResourceManager) GetAvailableSlots() int {
	rm.mutex.RLock()
	defer rm.mutex.RUnlock()

	return rm.capacity - len(rm.activeScans)
}

// Close gracefully shuts down the resource manager.
func (rm *FixedResourceManager) Close() error {
	rm.mutex.Lock()
	defer rm.mutex.Unlock()

	if rm.closed {
		return nil
	}
	rm.closed = true
	rm.activeScans = make(map[string]time.Time)

	for {
		select {
		case <-rm.semaphore:
		default:
			return nil
		}
	}
}

// UnboundedResourceManager tracks active scans without limiting them.
type UnboundedResourceManager struct {
	mutex  sync.Mutex
	active map[string]struct{}
	closed bool
}

// NewUnboundedResourceManager creates a manager that never blocks.
func NewUnboundedResourceManager() *UnboundedResourceManager {
	return &UnboundedResourceManager{active: make(map[string]struct{})}
}

// Acquire records scanID unless the manager is closed or ctx is done.
func (rm *UnboundedResourceManager) Acquire(ctx context.Context, scanID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	rm.mutex.Lock()
	defer rm.mutex.Unlock()
	if rm.closed {
		return errManagerClosed()
	}
	rm.active[scanID] = struct{}{}
	return nil
}

// Release forgets scanID.
func (rm *UnboundedResourceManager) Release(scanID string) {
	rm.mutex.Lock()
	defer rm.mutex.Unlock()
	delete(rm.active, scanID)
}

// GetActiveScans returns the current number of active scans.
func (rm *UnboundedResourceManager) GetActiveScans() int {
	rm.mutex.Lock()
	defer rm.mutex.Unlock()
	return len(rm.active)
}

// GetAvailableSlots always returns -1.
func (rm *UnboundedResourceManager) GetAvailableSlots() int {
	return -1
}

// Close rejects further acquisitions.
func (rm *UnboundedResourceManager) Close() error {
	rm.mutex.Lock()
	defer rm.mutex.Unlock()
	rm.closed = true
	rm.active = make(map[string]struct{})
	return nil
}
