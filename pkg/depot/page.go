package depot

import (
	"sort"

	"github.com/marmos91/depotfs/pkg/cas"
)

// BuildHistoryPage assembles a newest-first history page from rows in
// ascending version order. Rows are copied into the page.
//
// Shared by backends so the cursor contract is identical everywhere.
func BuildHistoryPage(ascending []*HistoryRecord, opts HistoryOptions) *HistoryPage {
	page := &HistoryPage{
		Records: make([]*HistoryRecord, 0),
		Total:   len(ascending),
	}

	for i := len(ascending) - 1; i >= 0; i-- {
		row := ascending[i]
		if opts.StartVersion > 0 && row.Version >= opts.StartVersion {
			continue
		}
		if opts.Limit > 0 && len(page.Records) == opts.Limit {
			page.NextVersion = page.Records[len(page.Records)-1].Version
			break
		}
		clone := *row
		page.Records = append(page.Records, &clone)
	}

	return page
}

// SortCommitsNewestFirst orders commits by CreatedAt descending with root
// order as a tiebreak, matching the pagination cursor contract.
func SortCommitsNewestFirst(commits []*Commit) {
	sort.Slice(commits, func(i, j int) bool {
		if !commits[i].CreatedAt.Equal(commits[j].CreatedAt) {
			return commits[i].CreatedAt.After(commits[j].CreatedAt)
		}
		return commits[i].Root < commits[j].Root
	})
}

// BuildCommitPage applies the cursor and limit to an already-sorted commit
// list. Commits are copied into the page.
func BuildCommitPage(sorted []*Commit, opts CommitListOptions) (*CommitPage, error) {
	start := 0
	if opts.StartKey != "" {
		found := false
		for i, commit := range sorted {
			if commit.Root == opts.StartKey {
				start = i + 1
				found = true
				break
			}
		}
		if !found {
			return nil, &cas.StoreError{
				Code:    cas.ErrInvalidArgument,
				Message: "pagination cursor does not match any commit",
				Key:     opts.StartKey,
			}
		}
	}

	end := len(sorted)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}

	page := &CommitPage{
		Records: make([]*Commit, 0, end-start),
		Total:   len(sorted),
	}
	for _, commit := range sorted[start:end] {
		clone := *commit
		page.Records = append(page.Records, &clone)
	}
	if opts.Limit > 0 && len(page.Records) == opts.Limit && end < len(sorted) {
		page.NextKey = page.Records[len(page.Records)-1].Root
	}

	return page, nil
}
