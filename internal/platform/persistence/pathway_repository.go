package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/psp-engine/psp/internal/domain"
	"github.com/psp-engine/psp/internal/graph"
)

// PathwayRepository persists pathway definitions, so they can be curated
// and versioned outside of a compiled-in seed file.
type PathwayRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewPathwayRepository wraps a connected pool.
func NewPathwayRepository(db *DB, log *logrus.Logger) *PathwayRepository {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &PathwayRepository{db: db.Pool, log: log}
}

// Upsert inserts a pathway or replaces it if pathway_id already exists.
func (r *PathwayRepository) Upsert(ctx context.Context, p graph.PathwayDefinition) error {
	nodesJSON, err := json.Marshal(p.Nodes)
	if err != nil {
		return fmt.Errorf("marshaling pathway nodes: %w", err)
	}
	edgesJSON, err := json.Marshal(p.Edges)
	if err != nil {
		return fmt.Errorf("marshaling pathway edges: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO pathway_seeds (pathway_id, name, description, temporal_phase, adverse_events, nodes, edges, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (pathway_id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			temporal_phase = EXCLUDED.temporal_phase,
			adverse_events = EXCLUDED.adverse_events,
			nodes = EXCLUDED.nodes,
			edges = EXCLUDED.edges,
			updated_at = now()`,
		p.PathwayID, p.Name, p.Description, p.TemporalPhase, p.AdverseEvents, nodesJSON, edgesJSON,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{"pathway_id": p.PathwayID, "error": err}).Error("failed to upsert pathway seed")
		return fmt.Errorf("upserting pathway seed: %w", err)
	}
	return nil
}

// GetByID retrieves a single pathway definition.
func (r *PathwayRepository) GetByID(ctx context.Context, pathwayID string) (graph.PathwayDefinition, error) {
	row := r.db.QueryRow(ctx, `
		SELECT pathway_id, name, description, temporal_phase, adverse_events, nodes, edges
		FROM pathway_seeds WHERE pathway_id = $1`, pathwayID)

	p, err := scanPathwayRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return graph.PathwayDefinition{}, fmt.Errorf("pathway %q: %w", pathwayID, domain.ErrRecordNotFound)
		}
		return graph.PathwayDefinition{}, fmt.Errorf("getting pathway seed: %w", err)
	}
	return p, nil
}

// ListAll returns every seeded pathway, ordered by pathway id.
func (r *PathwayRepository) ListAll(ctx context.Context) ([]graph.PathwayDefinition, error) {
	rows, err := r.db.Query(ctx, `
		SELECT pathway_id, name, description, temporal_phase, adverse_events, nodes, edges
		FROM pathway_seeds ORDER BY pathway_id`)
	if err != nil {
		return nil, fmt.Errorf("listing pathway seeds: %w", err)
	}
	defer rows.Close()

	var out []graph.PathwayDefinition
	for rows.Next() {
		p, err := scanPathwayRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning pathway seed row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating pathway seed rows: %w", err)
	}
	return out, nil
}

// Delete removes a pathway seed.
func (r *PathwayRepository) Delete(ctx context.Context, pathwayID string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM pathway_seeds WHERE pathway_id = $1`, pathwayID)
	if err != nil {
		return fmt.Errorf("deleting pathway seed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("pathway %q: %w", pathwayID, domain.ErrRecordNotFound)
	}
	return nil
}

func scanPathwayRow(row rowScanner) (graph.PathwayDefinition, error) {
	var p graph.PathwayDefinition
	var nodesJSON, edgesJSON []byte

	err := row.Scan(&p.PathwayID, &p.Name, &p.Description, &p.TemporalPhase, &p.AdverseEvents, &nodesJSON, &edgesJSON)
	if err != nil {
		return graph.PathwayDefinition{}, err
	}
	if err := json.Unmarshal(nodesJSON, &p.Nodes); err != nil {
		return graph.PathwayDefinition{}, fmt.Errorf("unmarshaling pathway nodes: %w", err)
	}
	if err := json.Unmarshal(edgesJSON, &p.Edges); err != nil {
		return graph.PathwayDefinition{}, fmt.Errorf("unmarshaling pathway edges: %w", err)
	}
	return p, nil
}
