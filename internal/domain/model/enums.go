package model

// PRStatus represents the state of a pull request. It is derived, never
// stored: merged when a merge timestamp exists, else open when the remote
// state is open, else closed.
type PRStatus string

const (
	PRStatusOpen   PRStatus = "open"
	PRStatusClosed PRStatus = "closed"
	PRStatusMerged PRStatus = "merged"
)

// ReviewStatus represents the derived review state of a pull request or of a
// single review event.
//
// At the pull request level the derivation is deliberately coarse: any
// non-empty set of review events yields ReviewStatusCommented, an empty set
// yields ReviewStatusPending. Approved and changes_requested are only ever
// produced for individual review events, never for the PR aggregate.
type ReviewStatus string

const (
	ReviewStatusPending          ReviewStatus = "pending"
	ReviewStatusApproved         ReviewStatus = "approved"
	ReviewStatusChangesRequested ReviewStatus = "changes_requested"
	ReviewStatusCommented        ReviewStatus = "commented"
)
