package healthsync

import (
	"errors"
	"sync"
)

// ErrNoOwner is returned when a caller has no account to scope records to.
var ErrNoOwner = errors.New("healthsync: caller has no account")

// Tenants hands every account its own record store so one account never
// reads another's patients. Practice staff share the practice adapter,
// which holds the upstream EHR credentials.
type Tenants struct {
	practice Adapter
	newLocal func() Adapter

	mu      sync.Mutex
	byOwner map[uint]Adapter
}

// NewTenants builds the registry. A nil practice adapter falls back to a
// local store, a nil newLocal to NewMemoryAdapter.
func NewTenants(practice Adapter, newLocal func() Adapter) *Tenants {
	if newLocal == nil {
		newLocal = func() Adapter { return NewMemoryAdapter() }
	}
	if practice == nil {
		practice = newLocal()
	}
	return &Tenants{practice: practice, newLocal: newLocal, byOwner: map[uint]Adapter{}}
}

// Practice returns the adapter bound to the practice's EHR credentials.
func (t *Tenants) Practice() Adapter { return t.practice }

// For returns the adapter serving ownerID. Staff callers get the practice adapter.
func (t *Tenants) For(ownerID uint, staff bool) (Adapter, error) {
	if ownerID == 0 {
		return nil, ErrNoOwner
	}
	if staff {
		return t.practice, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.byOwner[ownerID]
	if !ok {
		a = t.newLocal()
		t.byOwner[ownerID] = a
	}
	return a, nil
}
