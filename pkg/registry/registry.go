// Package registry manages the two named resources a PeSIT server dispatches
// against: partner records (who may connect, and with which credentials and
// access rights) and virtual file records (how a PI_12 filename maps to a
// physical path and direction policy).
//
// Reads are lock-free: the registry holds an atomic pointer to an immutable
// snapshot, and writers build a new snapshot from a copy of the old one
// before swapping it in. This keeps the hot FPDU-dispatch path (which reads
// the registry on every CONNECT/CREATE/SELECT) free of mutex contention from
// occasional administrative updates.
package registry

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// AccessType mirrors PI_22: the direction a partner or virtual file allows.
type AccessType int

const (
	AccessRead AccessType = iota
	AccessWrite
	AccessBoth
)

func (a AccessType) Allows(requested AccessType) bool {
	if a == AccessBoth {
		return true
	}
	return a == requested
}

// PartnerRecord describes one known PeSIT partner (the PI_03 requester).
type PartnerRecord struct {
	ID       string
	Password string
	Enabled  bool
	Access   AccessType
}

// VirtualFileRecord describes how a PI_12 virtual filename resolves to a
// physical path and which partners/directions are permitted against it.
type VirtualFileRecord struct {
	Name            string
	Direction       AccessType // receive == AccessWrite (peer sends to us), send == AccessRead
	ReceiveDir      string
	SendDir         string
	FilenamePattern string
	Enabled         bool

	// AllowedPartners is the ACL; empty means any known partner may use it.
	AllowedPartners []string
}

func (v VirtualFileRecord) allows(partnerID string) bool {
	if len(v.AllowedPartners) == 0 {
		return true
	}
	for _, p := range v.AllowedPartners {
		if p == partnerID {
			return true
		}
	}
	return false
}

type snapshot struct {
	partners map[string]PartnerRecord
	files    map[string]VirtualFileRecord
}

func emptySnapshot() *snapshot {
	return &snapshot{partners: map[string]PartnerRecord{}, files: map[string]VirtualFileRecord{}}
}

// Registry is the partner and virtual-file catalog consulted by the
// negotiation (C3) and file-selection (C4) handlers.
type Registry struct {
	snap  atomic.Pointer[snapshot]
	mu    sync.Mutex // serializes writers; readers never block on it
	strictPartner bool
	strictFile    bool
}

// New creates an empty registry. strictPartner/strictFile mirror
// server.strict_partner_check / server.strict_file_check.
func New(strictPartner, strictFile bool) *Registry {
	r := &Registry{strictPartner: strictPartner, strictFile: strictFile}
	r.snap.Store(emptySnapshot())
	return r
}

// StrictPartnerCheck reports whether an unknown partner must be rejected
// rather than implicitly allowed.
func (r *Registry) StrictPartnerCheck() bool { return r.strictPartner }

// StrictFileCheck reports whether an unresolved virtual file must be
// rejected (D2-205) rather than synthesized a default path.
func (r *Registry) StrictFileCheck() bool { return r.strictFile }

func (r *Registry) current() *snapshot { return r.snap.Load() }

// Partner looks up a partner by id (case-sensitive; PI_03 is compared
// case-insensitively by the caller before calling in, per spec §4.3).
func (r *Registry) Partner(id string) (PartnerRecord, bool) {
	p, ok := r.current().partners[id]
	return p, ok
}

// VirtualFile looks up a virtual file record by its PI_12 name.
func (r *Registry) VirtualFile(name string) (VirtualFileRecord, bool) {
	f, ok := r.current().files[name]
	return f, ok
}

// CheckAccess validates a virtual file's ACL and direction against a
// connecting partner, mapping failures to the caller's diagnostic of choice.
func (v VirtualFileRecord) CheckAccess(partnerID string, requested AccessType) error {
	if !v.Enabled {
		return fmt.Errorf("virtual file %q is disabled", v.Name)
	}
	if !v.Direction.Allows(requested) {
		return fmt.Errorf("virtual file %q does not permit %v", v.Name, requested)
	}
	if !v.allows(partnerID) {
		return fmt.Errorf("partner %q is not authorized for virtual file %q", partnerID, v.Name)
	}
	return nil
}

// mutate builds a new snapshot from a shallow copy of the current one, lets
// fn mutate the copy, and atomically swaps it in. fn must not retain the
// maps it is given beyond its own execution.
func (r *Registry) mutate(fn func(s *snapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.current()
	next := &snapshot{
		partners: make(map[string]PartnerRecord, len(old.partners)),
		files:    make(map[string]VirtualFileRecord, len(old.files)),
	}
	for k, v := range old.partners {
		next.partners[k] = v
	}
	for k, v := range old.files {
		next.files[k] = v
	}
	fn(next)
	r.snap.Store(next)
}

// SetPartner inserts or replaces a partner record.
func (r *Registry) SetPartner(p PartnerRecord) {
	r.mutate(func(s *snapshot) { s.partners[p.ID] = p })
}

// RemovePartner deletes a partner record, if present.
func (r *Registry) RemovePartner(id string) {
	r.mutate(func(s *snapshot) { delete(s.partners, id) })
}

// SetVirtualFile inserts or replaces a virtual file record.
func (r *Registry) SetVirtualFile(f VirtualFileRecord) {
	r.mutate(func(s *snapshot) { s.files[f.Name] = f })
}

// RemoveVirtualFile deletes a virtual file record, if present.
func (r *Registry) RemoveVirtualFile(name string) {
	r.mutate(func(s *snapshot) { delete(s.files, name) })
}

// LoadPartners replaces the entire partner catalog atomically, e.g. on
// configuration reload.
func (r *Registry) LoadPartners(partners []PartnerRecord) {
	r.mutate(func(s *snapshot) {
		s.partners = make(map[string]PartnerRecord, len(partners))
		for _, p := range partners {
			s.partners[p.ID] = p
		}
	})
}

// LoadVirtualFiles replaces the entire virtual file catalog atomically.
func (r *Registry) LoadVirtualFiles(files []VirtualFileRecord) {
	r.mutate(func(s *snapshot) {
		s.files = make(map[string]VirtualFileRecord, len(files))
		for _, f := range files {
			s.files[f.Name] = f
		}
	})
}

// ListPartners returns a snapshot copy of all partner records.
func (r *Registry) ListPartners() []PartnerRecord {
	s := r.current()
	out := make([]PartnerRecord, 0, len(s.partners))
	for _, p := range s.partners {
		out = append(out, p)
	}
	return out
}

// ListVirtualFiles returns a snapshot copy of all virtual file records.
func (r *Registry) ListVirtualFiles() []VirtualFileRecord {
	s := r.current()
	out := make([]VirtualFileRecord, 0, len(s.files))
	for _, f := range s.files {
		out = append(out, f)
	}
	return out
}
