package ownership

import (
	"sort"

	"github.com/marmos91/depotfs/pkg/cas"
)

// SortNewestFirst orders claims by CreatedAt descending, with key order as a
// tiebreak so pagination cursors are stable under equal timestamps.
//
// Shared by backends: every Ledger implementation must present the same
// ordering or cursors would not be portable across them.
func SortNewestFirst(records []*Record) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		}
		return records[i].Key < records[j].Key
	})
}

// BuildPage applies the cursor and limit to an already-sorted record list
// and assembles the resulting page. Records are copied into the page so
// callers cannot alias backend state.
func BuildPage(sorted []*Record, opts ListOptions) (*Page, error) {
	start := 0
	if opts.StartKey != "" {
		found := false
		for i, record := range sorted {
			if record.Key == opts.StartKey {
				start = i + 1
				found = true
				break
			}
		}
		if !found {
			return nil, &cas.StoreError{
				Code:    cas.ErrInvalidArgument,
				Message: "pagination cursor does not match any record",
				Key:     opts.StartKey,
			}
		}
	}

	end := len(sorted)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}

	page := &Page{
		Records: make([]*Record, 0, end-start),
		Total:   len(sorted),
	}
	for _, record := range sorted[start:end] {
		clone := *record
		page.Records = append(page.Records, &clone)
	}

	// NextKey is only set when the page was full and more remain.
	if opts.Limit > 0 && len(page.Records) == opts.Limit && end < len(sorted) {
		page.NextKey = page.Records[len(page.Records)-1].Key
	}

	return page, nil
}
