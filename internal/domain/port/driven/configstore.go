package driven

import (
	"context"

	"github.com/ewhitmore/nbcrhub/internal/domain/model"
)

// ConfigStore defines the driven port for persisted NBCR configuration.
// Rows are keyed by (actor, full name); the store owns row identifiers and
// is the source of truth for them.
type ConfigStore interface {
	// ListConfig returns every configuration row persisted for the actor.
	ListConfig(ctx context.Context, actor string) ([]model.NbcrConfig, error)

	// UpsertConfig writes the full configuration record for
	// (actor, cfg.FullName), inserting or replacing as needed, and returns
	// the authoritative persisted row ID.
	UpsertConfig(ctx context.Context, actor string, cfg model.NbcrConfig) (string, error)
}
