// Package memory provides an in-memory implementation of ownership.Ledger.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/marmos91/depotfs/pkg/cas"
	"github.com/marmos91/depotfs/pkg/ownership"
)

// Ledger implements ownership.Ledger using in-memory storage.
//
// Thread Safety:
// All operations are protected by a single read-write mutex.
type Ledger struct {
	mu sync.RWMutex

	// records maps realm → key → claim
	records map[string]map[cas.Key]*ownership.Record

	now func() time.Time
}

// NewLedger creates a new in-memory ownership ledger.
func NewLedger() *Ledger {
	return &Ledger{
		records: make(map[string]map[cas.Key]*ownership.Record),
		now:     time.Now,
	}
}

// HasOwnership checks whether the realm has claimed the key.
func (ledger *Ledger) HasOwnership(ctx context.Context, realm string, key cas.Key) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	ledger.mu.RLock()
	defer ledger.mu.RUnlock()

	_, exists := ledger.records[realm][key]
	return exists, nil
}

// GetOwnership retrieves the realm's claim on the key.
func (ledger *Ledger) GetOwnership(ctx context.Context, realm string, key cas.Key) (*ownership.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ledger.mu.RLock()
	defer ledger.mu.RUnlock()

	record, exists := ledger.records[realm][key]
	if !exists {
		return nil, &cas.StoreError{
			Code:    cas.ErrNotFound,
			Message: "ownership record not found",
			Key:     key,
		}
	}

	clone := *record
	return &clone, nil
}

// CheckOwnership partitions keys into claimed and unclaimed for the realm.
func (ledger *Ledger) CheckOwnership(ctx context.Context, realm string, keys []cas.Key) (*ownership.CheckResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ledger.mu.RLock()
	defer ledger.mu.RUnlock()

	result := &ownership.CheckResult{
		Found:   make([]cas.Key, 0, len(keys)),
		Missing: make([]cas.Key, 0),
	}
	realmRecords := ledger.records[realm]
	for _, key := range keys {
		if _, exists := realmRecords[key]; exists {
			result.Found = append(result.Found, key)
		} else {
			result.Missing = append(result.Missing, key)
		}
	}

	return result, nil
}

// AddOwnership registers the realm's claim on the key. Re-adding an existing
// claim returns the stored record unchanged.
func (ledger *Ledger) AddOwnership(ctx context.Context, realm string, key cas.Key, attrs ownership.Attributes) (*ownership.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if realm == "" {
		return nil, &cas.StoreError{
			Code:    cas.ErrInvalidArgument,
			Message: "realm must not be empty",
			Key:     key,
		}
	}
	if !key.Valid() {
		return nil, &cas.StoreError{
			Code:    cas.ErrInvalidArgument,
			Message: "malformed ownership key",
			Key:     key,
		}
	}

	ledger.mu.Lock()
	defer ledger.mu.Unlock()

	realmRecords, exists := ledger.records[realm]
	if !exists {
		realmRecords = make(map[cas.Key]*ownership.Record)
		ledger.records[realm] = realmRecords
	}

	if existing, exists := realmRecords[key]; exists {
		clone := *existing
		return &clone, nil
	}

	record := &ownership.Record{
		Realm:       realm,
		Key:         key,
		CreatedBy:   attrs.CreatedBy,
		ContentType: attrs.ContentType,
		Size:        attrs.Size,
		CreatedAt:   ledger.now(),
	}
	realmRecords[key] = record

	clone := *record
	return &clone, nil
}

// ListNodes returns one page of the realm's claims, newest first.
func (ledger *Ledger) ListNodes(ctx context.Context, realm string, opts ownership.ListOptions) (*ownership.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ledger.mu.RLock()
	defer ledger.mu.RUnlock()

	realmRecords := ledger.records[realm]
	sorted := make([]*ownership.Record, 0, len(realmRecords))
	for _, record := range realmRecords {
		sorted = append(sorted, record)
	}
	ownership.SortNewestFirst(sorted)

	return ownership.BuildPage(sorted, opts)
}

// DeleteOwnership removes the realm's claim on the key.
func (ledger *Ledger) DeleteOwnership(ctx context.Context, realm string, key cas.Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ledger.mu.Lock()
	defer ledger.mu.Unlock()

	realmRecords := ledger.records[realm]
	if _, exists := realmRecords[key]; !exists {
		return &cas.StoreError{
			Code:    cas.ErrNotFound,
			Message: "ownership record not found",
			Key:     key,
		}
	}

	delete(realmRecords, key)
	if len(realmRecords) == 0 {
		delete(ledger.records, realm)
	}
	return nil
}

// GetUsage returns the realm's aggregate claim count and size.
func (ledger *Ledger) GetUsage(ctx context.Context, realm string) (*ownership.Usage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ledger.mu.RLock()
	defer ledger.mu.RUnlock()

	usage := &ownership.Usage{}
	for _, record := range ledger.records[realm] {
		usage.Count++
		usage.TotalSize += record.Size
	}
	return usage, nil
}

// ListAllKeys returns every distinct CAS key claimed by any realm.
func (ledger *Ledger) ListAllKeys(ctx context.Context) ([]cas.Key, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ledger.mu.RLock()
	defer ledger.mu.RUnlock()

	seen := make(map[cas.Key]struct{})
	keys := make([]cas.Key, 0)
	for _, realmRecords := range ledger.records {
		for key := range realmRecords {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	return keys, nil
}
