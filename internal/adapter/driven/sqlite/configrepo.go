package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ewhitmore/nbcrhub/internal/domain/model"
	"github.com/ewhitmore/nbcrhub/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ConfigStore = (*ConfigRepo)(nil)

// ConfigRepo is the SQLite implementation of the ConfigStore port interface.
// Branch sets are stored as JSON arrays in a TEXT column. The is_nbcr_enabled
// column is written for queryability but always recomputed from the branch
// set, never read back as independent state.
type ConfigRepo struct {
	db *DB
}

// NewConfigRepo creates a new ConfigRepo backed by the given DB.
func NewConfigRepo(db *DB) *ConfigRepo {
	return &ConfigRepo{db: db}
}

// ListConfig returns every configuration row persisted for the actor.
func (r *ConfigRepo) ListConfig(ctx context.Context, actor string) ([]model.NbcrConfig, error) {
	const query = `
		SELECT id, full_name, nbcr_enabled_branches
		FROM nbcr_config
		WHERE actor = ?
		ORDER BY full_name
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, actor)
	if err != nil {
		return nil, fmt.Errorf("list config for %s: %w", actor, err)
	}
	defer rows.Close()

	var configs []model.NbcrConfig
	for rows.Next() {
		var (
			id       int64
			cfg      model.NbcrConfig
			branches string
		)
		if err := rows.Scan(&id, &cfg.FullName, &branches); err != nil {
			return nil, fmt.Errorf("scan config row: %w", err)
		}

		cfg.ID = strconv.FormatInt(id, 10)
		if err := json.Unmarshal([]byte(branches), &cfg.NbcrEnabledBranches); err != nil {
			return nil, fmt.Errorf("decode branches for %s: %w", cfg.FullName, err)
		}

		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate config rows: %w", err)
	}

	return configs, nil
}

// UpsertConfig writes the full configuration record for (actor, cfg.FullName)
// and returns the persisted row ID. On conflict the branch set and enabled
// flag are replaced wholesale; there is no partial patch.
func (r *ConfigRepo) UpsertConfig(ctx context.Context, actor string, cfg model.NbcrConfig) (string, error) {
	branches := cfg.NbcrEnabledBranches
	if branches == nil {
		branches = []string{}
	}

	encoded, err := json.Marshal(branches)
	if err != nil {
		return "", fmt.Errorf("encode branches for %s: %w", cfg.FullName, err)
	}

	const query = `
		INSERT INTO nbcr_config (actor, full_name, is_nbcr_enabled, nbcr_enabled_branches, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(actor, full_name) DO UPDATE SET
			is_nbcr_enabled = excluded.is_nbcr_enabled,
			nbcr_enabled_branches = excluded.nbcr_enabled_branches,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`

	enabled := 0
	if len(branches) > 0 {
		enabled = 1
	}

	var id int64
	err = r.db.Writer.QueryRowContext(ctx, query, actor, cfg.FullName, enabled, string(encoded)).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert config for %s/%s: %w", actor, cfg.FullName, err)
	}

	return strconv.FormatInt(id, 10), nil
}
