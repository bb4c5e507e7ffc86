package registry

import (
	"sync"

	"certhub/internal/domain"
)

// Registry keeps certificate records in process, indexed both by numeric id
// and by shareable id. Every mutation touches both indices inside the same
// critical section, so a reader never observes a record present in one index
// and absent in the other.
type Registry struct {
	mu      sync.RWMutex
	byID    map[int64]domain.Certificate
	byShare map[string]domain.Certificate
	order   []int64
}

// New initializes an empty registry.
func New() *Registry {
	return &Registry{
		byID:    make(map[int64]domain.Certificate),
		byShare: make(map[string]domain.Certificate),
	}
}

// Save stores or replaces a record and tracks insertion order.
func (r *Registry) Save(c domain.Certificate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[c.ID]; !exists {
		r.order = append(r.order, c.ID)
	}
	r.byID[c.ID] = c
	r.byShare[c.ShareableID] = c
}

// FindAll returns records in insertion order (best-effort, not part of the
// contract).
func (r *Registry) FindAll() []domain.Certificate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]domain.Certificate, 0, len(r.order))
	for _, id := range r.order {
		if c, ok := r.byID[id]; ok {
			res = append(res, c)
		}
	}
	return res
}

// FindByID retrieves a record by numeric id.
func (r *Registry) FindByID(id int64) (domain.Certificate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	return c, ok
}

// FindByShareableID retrieves a record by its shareable id.
func (r *Registry) FindByShareableID(shareableID string) (domain.Certificate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byShare[shareableID]
	return c, ok
}

// Update rewrites the mutable metadata fields of a record. The blob
// reference and the shareable id are never touched.
func (r *Registry) Update(id int64, title, credentialLink string) (domain.Certificate, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return domain.Certificate{}, false
	}
	c.Title = title
	c.CredentialLink = credentialLink
	r.byID[id] = c
	r.byShare[c.ShareableID] = c
	return c, true
}

// Delete removes a record from both indices. Deleting an unknown id is a
// no-op reported to the caller, not an internal error.
func (r *Registry) Delete(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return false
	}
	delete(r.byID, id)
	delete(r.byShare, c.ShareableID)
	filtered := r.order[:0]
	for _, item := range r.order {
		if item != id {
			filtered = append(filtered, item)
		}
	}
	r.order = filtered
	return true
}
