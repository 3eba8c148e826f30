package model

// NbcrConfig is the persisted per-repository NBCR configuration row, keyed in
// the store by (actor, FullName). The store assigns ID on first write.
type NbcrConfig struct {
	ID                  string
	FullName            string
	NbcrEnabledBranches []string
}
