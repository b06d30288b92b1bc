package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

func TestHealthz(t *testing.T) {
	checker := NewHealthChecker(nil, nil, "0.1.0", "abc123")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	checker.Healthz(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var report healthReport
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, "ok", report.Status)
	assert.Equal(t, "0.1.0", report.Version)
	assert.Equal(t, "abc123", report.GitCommit)
	assert.Nil(t, report.Checks, "liveness must not probe dependencies")

	_, err := time.Parse(time.RFC3339, report.Timestamp)
	assert.NoError(t, err, "timestamp should be valid RFC3339")
}

func TestReadyz_NilPool(t *testing.T) {
	checker := NewHealthChecker(nil, nil, "0.1.0", "abc123")

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()

	checker.Readyz(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var report healthReport
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, "unavailable", report.Status)

	dbCheck, ok := report.Checks["database"]
	require.True(t, ok, "database check should be present")
	assert.Equal(t, "fail", dbCheck.Status)

	jobCheck, ok := report.Checks["job_queue"]
	require.True(t, ok, "job_queue check should be present")
	assert.Equal(t, "warn", jobCheck.Status, "missing river client degrades, never fails")
}

func TestReadyz_Database(t *testing.T) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"docker.io/postgres:16-alpine",
		tcpostgres.WithDatabase("gatherspace"),
		tcpostgres.WithUsername("gatherspace"),
		tcpostgres.WithPassword("gatherspace_dev"),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dbURL, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `CREATE TABLE schema_migrations (version BIGINT PRIMARY KEY, dirty BOOLEAN NOT NULL)`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO schema_migrations (version, dirty) VALUES (1, false)`)
	require.NoError(t, err)

	checker := NewHealthChecker(pool, nil, "0.1.0", "abc123")

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()

	checker.Readyz(rec, req)

	// River is not running, so readiness lands on degraded, not down.
	assert.Equal(t, http.StatusOK, rec.Code)

	var report healthReport
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, "degraded", report.Status)

	dbCheck := report.Checks["database"]
	assert.Equal(t, "pass", dbCheck.Status)
	assert.NotNil(t, dbCheck.Details)

	migCheck := report.Checks["migrations"]
	assert.Equal(t, "pass", migCheck.Status)
	assert.Contains(t, migCheck.Message, "version 1")
}

func TestReadyz_DirtyMigrations(t *testing.T) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"docker.io/postgres:16-alpine",
		tcpostgres.WithDatabase("gatherspace"),
		tcpostgres.WithUsername("gatherspace"),
		tcpostgres.WithPassword("gatherspace_dev"),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dbURL, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `CREATE TABLE schema_migrations (version BIGINT PRIMARY KEY, dirty BOOLEAN NOT NULL)`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO schema_migrations (version, dirty) VALUES (2, true)`)
	require.NoError(t, err)

	checker := NewHealthChecker(pool, nil, "0.1.0", "abc123")

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()

	checker.Readyz(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var report healthReport
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, "unavailable", report.Status)

	migCheck := report.Checks["migrations"]
	assert.Equal(t, "fail", migCheck.Status)
	assert.Contains(t, migCheck.Message, "dirty")
}
