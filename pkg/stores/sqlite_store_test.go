package stores

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/openfroyo/cfgtree/pkg/engine"
	"github.com/openfroyo/cfgtree/pkg/schema"
)

// setupTestStore creates a migrated store in a temporary directory.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: filepath.Join(t.TempDir(), "history.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	return store
}

func resolveFixture(t *testing.T, raw engine.RawValues, mode engine.Mode) *engine.Resolution {
	t.Helper()

	tree, err := schema.Merge([]*schema.Component{{
		Name: "hal",
		Options: []*schema.Definition{
			{Name: "psram", Type: "bool", Default: true},
			{Name: "speed", Type: "u32", Default: int64(40), Valid: "value <= 80"},
		},
	}})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	order, err := engine.BuildOrder(tree)
	if err != nil {
		t.Fatalf("build order: %v", err)
	}
	return engine.Resolve(order, engine.NewFeatureSet("esp32"), raw, mode)
}

func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.HealthCheck(ctx); err == nil {
		t.Fatal("expected health check to fail before Init")
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}
	// a second run has nothing to apply
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestNewSQLiteStoreRequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestRecordAndGetResolution(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	res := resolveFixture(t, engine.RawValues{"hal.speed": int64(120)}, engine.ModeStrict)
	rec := NewRecord("check", res, engine.NewFeatureSet("esp32"), 15*time.Millisecond)

	if rec.Outcome != OutcomeFailed {
		t.Fatalf("Outcome = %s, want %s", rec.Outcome, OutcomeFailed)
	}
	if err := store.RecordResolution(ctx, rec); err != nil {
		t.Fatalf("RecordResolution: %v", err)
	}

	got, err := store.GetResolution(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetResolution: %v", err)
	}

	if got.Command != "check" || got.Mode != "strict" {
		t.Errorf("command/mode = %s/%s", got.Command, got.Mode)
	}
	if len(got.Features) != 1 || got.Features[0] != "esp32" {
		t.Errorf("Features = %v", got.Features)
	}
	if got.Errors != 1 || got.Warnings != 0 {
		t.Errorf("errors/warnings = %d/%d, want 1/0", got.Errors, got.Warnings)
	}
	if got.Duration != 15*time.Millisecond {
		t.Errorf("Duration = %v", got.Duration)
	}
	if got.Error == nil {
		t.Error("expected error message to be stored")
	}
	if !got.RecordedAt.Equal(rec.RecordedAt) {
		t.Errorf("RecordedAt = %v, want %v", got.RecordedAt, rec.RecordedAt)
	}

	if len(got.Diagnostics) != 1 {
		t.Fatalf("Diagnostics = %v", got.Diagnostics)
	}
	d := got.Diagnostics[0]
	if d.Path != "hal.speed" || d.Kind != engine.InvalidValue || d.Severity != engine.SeverityError {
		t.Errorf("diagnostic = %+v", d)
	}

	if v, ok := got.Values["hal.psram"]; !ok || v != true {
		t.Errorf("hal.psram = %v", v)
	}
	if _, ok := got.Values["hal.speed"]; ok {
		t.Error("rejected value must not be recorded")
	}
}

func TestGetResolutionNotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetResolution(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	_, err = store.LatestResolution(context.Background())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("latest err = %v, want ErrNotFound", err)
	}
}

func TestListResolutionsNewestFirst(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Now()
	var ids []string
	for i := 0; i < 3; i++ {
		res := resolveFixture(t, nil, engine.ModeLenient)
		rec := NewRecord("check", res, engine.NewFeatureSet(), time.Millisecond)
		rec.RecordedAt = base.Add(time.Duration(i) * time.Second)
		if err := store.RecordResolution(ctx, rec); err != nil {
			t.Fatalf("RecordResolution: %v", err)
		}
		ids = append(ids, rec.ID)
	}

	recs, err := store.ListResolutions(ctx, 0, 0)
	if err != nil {
		t.Fatalf("ListResolutions: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("len = %d, want 3", len(recs))
	}
	for i, rec := range recs {
		if want := ids[2-i]; rec.ID != want {
			t.Errorf("recs[%d] = %s, want %s", i, rec.ID, want)
		}
		if rec.Values != nil || rec.Diagnostics != nil {
			t.Errorf("list must not load details")
		}
	}

	page, err := store.ListResolutions(ctx, 1, 1)
	if err != nil {
		t.Fatalf("ListResolutions page: %v", err)
	}
	if len(page) != 1 || page[0].ID != ids[1] {
		t.Errorf("page = %v", page)
	}

	latest, err := store.LatestResolution(ctx)
	if err != nil {
		t.Fatalf("LatestResolution: %v", err)
	}
	if latest.ID != ids[2] {
		t.Errorf("latest = %s, want %s", latest.ID, ids[2])
	}
}

func TestPruneResolutions(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Now()
	var ids []string
	for i := 0; i < 4; i++ {
		res := resolveFixture(t, engine.RawValues{"hal.speed": int64(120)}, engine.ModeLenient)
		rec := NewRecord("menu", res, engine.NewFeatureSet(), 0)
		rec.RecordedAt = base.Add(time.Duration(i) * time.Minute)
		if err := store.RecordResolution(ctx, rec); err != nil {
			t.Fatalf("RecordResolution: %v", err)
		}
		ids = append(ids, rec.ID)
	}

	n, err := store.PruneResolutions(ctx, 2)
	if err != nil {
		t.Fatalf("PruneResolutions: %v", err)
	}
	if n != 2 {
		t.Errorf("pruned %d, want 2", n)
	}

	if _, err := store.GetResolution(ctx, ids[0]); !errors.Is(err, ErrNotFound) {
		t.Errorf("oldest record should be gone, err = %v", err)
	}
	kept, err := store.GetResolution(ctx, ids[3])
	if err != nil {
		t.Fatalf("GetResolution: %v", err)
	}
	if len(kept.Diagnostics) != 1 || kept.Diagnostics[0].Severity != engine.SeverityWarning {
		t.Errorf("kept diagnostics = %v", kept.Diagnostics)
	}

	var orphans int
	err = store.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM resolution_diagnostics
		WHERE resolution_id NOT IN (SELECT id FROM resolutions)`).Scan(&orphans)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if orphans != 0 {
		t.Errorf("%d diagnostics left behind", orphans)
	}

	if _, err := store.PruneResolutions(ctx, -1); err == nil {
		t.Error("expected error for negative keep")
	}
}

func TestSchemaErrorRecord(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	rec := NewSchemaErrorRecord("check", engine.ModeStrict, engine.NewFeatureSet("a", "b"),
		errors.New("schema error at c.a: unknown option type \"float\""))
	if err := store.RecordResolution(ctx, rec); err != nil {
		t.Fatalf("RecordResolution: %v", err)
	}

	got, err := store.GetResolution(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetResolution: %v", err)
	}
	if got.Outcome != OutcomeSchemaError {
		t.Errorf("Outcome = %s", got.Outcome)
	}
	if got.Error == nil || *got.Error != *rec.Error {
		t.Errorf("Error = %v", got.Error)
	}
	if len(got.Values) != 0 || len(got.Diagnostics) != 0 {
		t.Errorf("unexpected details: %+v", got)
	}
}
