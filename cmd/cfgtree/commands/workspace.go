package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/cfgtree/pkg/config"
	"github.com/openfroyo/cfgtree/pkg/engine"
	"github.com/openfroyo/cfgtree/pkg/schema"
	"github.com/openfroyo/cfgtree/pkg/stores"
	"github.com/openfroyo/cfgtree/pkg/telemetry"
)

// workspace is a discovered project compiled down to an evaluation order.
type workspace struct {
	project  *config.Project
	values   *config.ValuesStore
	features engine.FeatureSet
	order    *engine.EvaluationOrder
}

// schemas returns the document schema registry shared by every loader.
func (o *globalOptions) schemas() *config.SchemaRegistry {
	if o.registry == nil {
		o.registry = config.NewSchemaRegistry()
	}
	return o.registry
}

// discover locates the project and the user configuration without loading
// any definitions.
func (o *globalOptions) discover(ctx context.Context) (*config.Project, *config.ValuesStore, error) {
	op := telemetry.StartOperation(ctx, telemetry.StageDiscover)
	project, err := config.Discover(op.Ctx, o.projectDir)
	op.End(err)
	if err != nil {
		return nil, nil, err
	}
	if o.configPath != "" {
		path, err := filepath.Abs(o.configPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to resolve config path: %w", err)
		}
		project.ConfigPath = path
	}
	return project, config.NewValuesStore(project.ConfigPath, o.schemas()), nil
}

// loadWorkspace discovers, loads, merges and orders the project's
// definitions. Definition defects are returned as *schema.SchemaError; the
// workspace returned alongside still carries the discovered project.
func (o *globalOptions) loadWorkspace(ctx context.Context) (*workspace, error) {
	project, values, err := o.discover(ctx)
	if err != nil {
		return nil, err
	}
	ws := &workspace{
		project:  project,
		values:   values,
		features: o.featureSet(project),
	}

	op := telemetry.StartOperation(ctx, telemetry.StageLoad,
		telemetry.AttrComponents.Int(len(project.Components)))
	comps, err := project.LoadComponents(op.Ctx, config.NewDefinitionLoader(o.schemas()))
	op.End(err)
	if err != nil {
		return ws, err
	}

	op = telemetry.StartOperation(ctx, telemetry.StageMerge)
	tree, err := schema.Merge(comps)
	op.End(err)
	if err != nil {
		return ws, err
	}

	op = telemetry.StartOperation(ctx, telemetry.StageOrder)
	ws.order, err = engine.BuildOrder(tree)
	op.End(err)
	if err != nil {
		return ws, err
	}

	zerolog.Ctx(ctx).Debug().
		Int("components", len(comps)).
		Int("nodes", tree.Len()).
		Strs("features", ws.features.Names()).
		Msg("workspace loaded")
	return ws, nil
}

// featureSet combines the project defaults with --features.
func (o *globalOptions) featureSet(project *config.Project) engine.FeatureSet {
	var names []string
	if !o.noDefaultFeatures {
		names = append(names, project.DefaultFeatures...)
	}
	names = append(names, o.features...)
	return engine.NewFeatureSet(names...)
}

// resolve runs one traced and measured pass.
func (o *globalOptions) resolve(ctx context.Context, ws *workspace, raw engine.RawValues, mode engine.Mode) (*engine.Resolution, time.Duration) {
	op := telemetry.StartOperation(ctx, telemetry.StageResolve,
		telemetry.AttrMode.String(mode.String()),
		telemetry.AttrFeatures.StringSlice(ws.features.Names()))
	res := engine.Resolve(ws.order, ws.features, raw, mode)
	took := op.Timer.Duration()

	if o.tel != nil {
		o.tel.Metrics.RecordResolution(res, took)
	}
	telemetry.AnnotateResolution(op.Span, res)
	op.End(res.Err())
	return res, took
}

// openHistory opens and migrates the history database at path.
func openHistory(ctx context.Context, path string) (*stores.SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// record appends rec to the project history. Failures are logged, never
// returned.
func (o *globalOptions) record(ctx context.Context, project *config.Project, rec *stores.Record) {
	if o.noHistory || project == nil {
		return
	}
	logger := telemetry.ComponentLogger(ctx, "history")

	store, err := openHistory(ctx, project.HistoryPath)
	if err != nil {
		logger.Warn().Err(err).Msg("history unavailable")
		return
	}
	defer store.Close()

	if err := store.RecordResolution(ctx, rec); err != nil {
		logger.Warn().Err(err).Msg("failed to record resolution")
		return
	}
	logger.Debug().Str("id", rec.ID).Str("outcome", string(rec.Outcome)).Msg("resolution recorded")
}

// recordSchemaError counts and records a pass rejected before resolving.
func (o *globalOptions) recordSchemaError(ctx context.Context, command string, project *config.Project, mode engine.Mode, err error) {
	if !schema.IsSchemaError(err) {
		return
	}
	if o.tel != nil {
		o.tel.Metrics.RecordSchemaError(mode, err)
	}
	features := engine.NewFeatureSet()
	if project != nil {
		features = o.featureSet(project)
	}
	o.record(ctx, project, stores.NewSchemaErrorRecord(command, mode, features, err))
}
