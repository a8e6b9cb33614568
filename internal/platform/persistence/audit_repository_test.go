package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/psp-engine/psp/internal/audit"
	"github.com/psp-engine/psp/internal/domain"
	"github.com/psp-engine/psp/internal/graph"
)

func setupTestDB(t *testing.T) (*DB, func()) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	cfg := domain.DatabaseConfig{
		Host: host, Port: port.Int(), Database: "testdb",
		Username: "testuser", Password: "testpass", SSLMode: "disable",
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	db, err := Connect(ctx, cfg, logger)
	require.NoError(t, err)

	runner, err := NewMigrationRunner(ConnectionString(cfg), "migrations", logger)
	require.NoError(t, err)
	require.NoError(t, runner.Up(ctx))

	cleanup := func() {
		runner.Close()
		db.Close()
		_ = pgContainer.Terminate(ctx)
	}
	return db, cleanup
}

func TestAuditRepositoryArchiveAndGetBySession(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	repo := NewAuditRepository(db, logger)

	ctx := context.Background()
	rec := audit.Record{
		EventType:   audit.EventModelCall,
		Timestamp:   time.Now().UTC(),
		PatientID:   "PAT-1",
		SessionID:   "SESS-1",
		Actor:       "gateway",
		InputData:   map[string]any{"model": "gpt-safety-1"},
		DurationMS:  150,
		ContentHash: "hash-a",
		ChainHash:   "chain-a",
	}
	require.NoError(t, repo.Archive(ctx, rec))

	recs, err := repo.GetBySession(ctx, "SESS-1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "gpt-safety-1", recs[0].InputData["model"])
}

func TestAuditRepositoryGetByIDNotFound(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewAuditRepository(db, nil)
	_, err := repo.GetByID(context.Background(), 99999)
	require.Error(t, err)
}

func TestPathwayRepositoryUpsertAndListAll(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewPathwayRepository(db, nil)
	ctx := context.Background()

	p := graph.PathwayDefinition{
		PathwayID:     "CRS-IL6-AXIS",
		Name:          "CRS IL-6 signaling axis",
		TemporalPhase: graph.PhaseEarlyOnset,
		AdverseEvents: []string{"CRS"},
		Nodes: []graph.Node{
			{ID: "IL6", Type: graph.NodeCytokine, Name: "Interleukin-6"},
		},
		Edges: []graph.Edge{},
	}
	require.NoError(t, repo.Upsert(ctx, p))

	got, err := repo.GetByID(ctx, "CRS-IL6-AXIS")
	require.NoError(t, err)
	require.Equal(t, p.Name, got.Name)
	require.Len(t, got.Nodes, 1)

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}
