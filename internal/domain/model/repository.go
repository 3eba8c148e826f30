package model

import "time"

// Repository is a remote repository merged with its locally persisted NBCR
// configuration. The remote source is authoritative for existence and
// metadata; the config store is authoritative for ID and the enabled branch
// set.
type Repository struct {
	// ID is the config store's identifier. Empty until the first successful
	// configuration write assigns one.
	ID string

	Name          string
	FullName      string // "owner/name"; the durable join key across sources.
	Description   string
	AvatarURL     string
	DefaultBranch string
	UpdatedAt     time.Time

	// NbcrEnabledBranches lists the branches that permit merge before review.
	// Logically a set; element order carries no meaning.
	NbcrEnabledBranches []string
}

// IsNbcrEnabled reports whether non-blocking review is enabled for any branch.
// Derived from the branch set so the two can never disagree.
func (r Repository) IsNbcrEnabled() bool {
	return len(r.NbcrEnabledBranches) > 0
}

// HasBranchEnabled reports whether the given branch permits merge before review.
func (r Repository) HasBranchEnabled(branch string) bool {
	for _, b := range r.NbcrEnabledBranches {
		if b == branch {
			return true
		}
	}
	return false
}
