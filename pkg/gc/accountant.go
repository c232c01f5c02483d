// Package gc provides reference accounting for orphaned content.
//
// Orphaned ownership rows can occur due to:
//   - Crashes between a depot update and ownership bookkeeping
//   - Failed delete operations
//   - Bugs in ledger/depot coordination
//
// The accountant only reports; it never deletes. Deletion policy belongs
// to an operator acting on the report.
package gc

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/depotfs/internal/logger"
	"github.com/marmos91/depotfs/pkg/cas"
	"github.com/marmos91/depotfs/pkg/depot"
	"github.com/marmos91/depotfs/pkg/ownership"
)

// Accountant computes which of a realm's owned keys are still referenced.
//
// A key is referenced when it is reachable from any of the realm's depot
// roots or committed roots through the DAG. Everything the realm owns
// beyond that closure is orphaned; everything in the closure the realm
// does not own is unregistered (the failure mode ownership sequencing is
// meant to prevent).
type Accountant struct {
	dag    cas.DagStore
	ledger ownership.Ledger
	depots *depot.Service
}

// Report is the outcome of one accounting run over a realm.
type Report struct {
	// Realm is the accounted tenant namespace
	Realm string

	// Referenced holds every key reachable from a depot or commit root
	Referenced []cas.Key

	// Owned is the realm's ownership row count
	Owned int

	// Orphaned holds owned keys outside the referenced closure
	Orphaned []cas.Key

	// Unregistered holds referenced keys the realm does not own
	Unregistered []cas.Key

	// StartTime is when the run began
	StartTime time.Time

	// Duration is how long the run took
	Duration time.Duration
}

// Summary returns a one-line description of the report.
func (r *Report) Summary() string {
	return fmt.Sprintf("realm=%s referenced=%d owned=%d orphaned=%d unregistered=%d duration=%s",
		r.Realm, len(r.Referenced), r.Owned, len(r.Orphaned), len(r.Unregistered), r.Duration)
}

// NewAccountant creates an accountant over the given stores.
func NewAccountant(dag cas.DagStore, ledger ownership.Ledger, depots *depot.Service) *Accountant {
	return &Accountant{
		dag:    dag,
		ledger: ledger,
		depots: depots,
	}
}

// AccountRealm runs one accounting pass over a realm.
//
// The algorithm:
//  1. Collect the realm's live roots: every depot's current root plus
//     every committed root.
//  2. Expand the roots to their full reachability closure.
//  3. Diff the closure against the realm's ownership rows.
func (a *Accountant) AccountRealm(ctx context.Context, realm string) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	report := &Report{
		Realm:     realm,
		StartTime: start,
	}

	roots, err := a.liveRoots(ctx, realm)
	if err != nil {
		return nil, fmt.Errorf("failed to collect live roots: %w", err)
	}
	logger.Debug("gc: realm %s has %d live roots", realm, len(roots))

	referenced := make(map[cas.Key]struct{})
	for _, root := range roots {
		keys, err := cas.CollectKeys(ctx, a.dag, root)
		if err != nil {
			return nil, fmt.Errorf("failed to expand root %s: %w", root, err)
		}
		for _, key := range keys {
			referenced[key] = struct{}{}
		}
	}

	report.Referenced = make([]cas.Key, 0, len(referenced))
	for key := range referenced {
		report.Referenced = append(report.Referenced, key)
	}

	owned, err := a.ownedKeys(ctx, realm)
	if err != nil {
		return nil, fmt.Errorf("failed to list owned keys: %w", err)
	}
	report.Owned = len(owned)

	for _, key := range owned {
		if _, ok := referenced[key]; !ok {
			report.Orphaned = append(report.Orphaned, key)
		}
	}

	ownedSet := make(map[cas.Key]struct{}, len(owned))
	for _, key := range owned {
		ownedSet[key] = struct{}{}
	}
	for key := range referenced {
		if _, ok := ownedSet[key]; !ok {
			report.Unregistered = append(report.Unregistered, key)
		}
	}

	report.Duration = time.Since(start)
	logger.Info("gc: accounting completed: %s", report.Summary())
	return report, nil
}

// liveRoots gathers the realm's depot roots and committed roots, deduped.
func (a *Accountant) liveRoots(ctx context.Context, realm string) ([]cas.Key, error) {
	seen := make(map[cas.Key]struct{})
	roots := make([]cas.Key, 0)

	depots, err := a.depots.List(ctx, realm)
	if err != nil {
		return nil, err
	}
	for _, d := range depots {
		if _, ok := seen[d.Root]; !ok {
			seen[d.Root] = struct{}{}
			roots = append(roots, d.Root)
		}
	}

	var cursor cas.Key
	for {
		page, err := a.depots.ListCommits(ctx, realm, depot.CommitListOptions{
			Limit:    256,
			StartKey: cursor,
		})
		if err != nil {
			return nil, err
		}
		for _, commit := range page.Records {
			if _, ok := seen[commit.Root]; !ok {
				seen[commit.Root] = struct{}{}
				roots = append(roots, commit.Root)
			}
		}
		if page.NextKey == "" {
			break
		}
		cursor = page.NextKey
	}

	return roots, nil
}

// ownedKeys walks the realm's ownership pages to a flat key list.
func (a *Accountant) ownedKeys(ctx context.Context, realm string) ([]cas.Key, error) {
	keys := make([]cas.Key, 0)

	var cursor cas.Key
	for {
		page, err := a.ledger.ListNodes(ctx, realm, ownership.ListOptions{
			Limit:    256,
			StartKey: cursor,
		})
		if err != nil {
			return nil, err
		}
		for _, record := range page.Records {
			keys = append(keys, record.Key)
		}
		if page.NextKey == "" {
			break
		}
		cursor = page.NextKey
	}

	return keys, nil
}
