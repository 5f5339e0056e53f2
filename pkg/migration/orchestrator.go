package migration

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyp3rd/ewrap"

	"github.com/magickw/tiercache/internal/constants"
	"github.com/magickw/tiercache/internal/sentinel"
	"github.com/magickw/tiercache/pkg/stats"
)

// State is the orchestrator's lifecycle position. Transitions only move
// forward within a run; a new run starts again from StateDetecting.
type State string

const (
	StateNotStarted        State = "not-started"
	StateDetecting         State = "detecting"
	StateNoMigrationNeeded State = "no-migration-needed"
	StateMigrating         State = "migrating"
	StateSucceeded         State = "succeeded"
	StateCommitted         State = "committed"
	StateRollingBack       State = "rolling-back"
	StateRolledBack        State = "rolled-back"
	StateFailed            State = "failed"
)

// Result summarizes one migration attempt.
type Result struct {
	Success           bool
	TargetVersion     string
	MigratedSteps     []string
	Errors            []string
	RollbackAvailable bool
	Elapsed           time.Duration
}

// ValidationReport is the outcome of the coarse post-migration check.
type ValidationReport struct {
	IsValid bool
	Issues  []string
}

// Orchestrator drives the migration state machine. At most one migration
// runs at a time; a second concurrent attempt fails fast with
// ErrMigrationInProgress instead of queueing.
type Orchestrator struct {
	target    Version
	versions  IVersionStore
	legacy    ILegacyStore
	backup    *BackupManager
	stepsFn   func() []Step
	checkFn   func(ctx context.Context) []string
	logger    Logger
	collector stats.ICollector

	running atomic.Bool

	mu    sync.Mutex
	state State
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTarget overrides the version the orchestrator migrates to.
func WithTarget(target Version) Option {
	return func(o *Orchestrator) { o.target = target }
}

// WithSteps replaces the step set.
func WithSteps(stepsFn func() []Step) Option {
	return func(o *Orchestrator) { o.stepsFn = stepsFn }
}

// WithPostCheck replaces the coarse post-migration check. The check returns
// a list of issues; an empty list means the migrated state is sound.
func WithPostCheck(checkFn func(ctx context.Context) []string) Option {
	return func(o *Orchestrator) { o.checkFn = checkFn }
}

// WithLogger sets the migration logger.
func WithLogger(logger Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithCollector sets the stats collector migration timings are reported to.
func WithCollector(collector stats.ICollector) Option {
	return func(o *Orchestrator) { o.collector = collector }
}

// NewOrchestrator wires an orchestrator over the version, legacy, and
// snapshot stores. Steps default to an empty set; callers normally install
// DefaultSteps via WithSteps.
func NewOrchestrator(versions IVersionStore, legacy ILegacyStore, snapshots ISnapshotStore, opts ...Option) (*Orchestrator, error) {
	if versions == nil || legacy == nil || snapshots == nil {
		return nil, ewrap.Wrap(sentinel.ErrParamCannotBeEmpty, "orchestrator stores")
	}

	orchestrator := &Orchestrator{
		target: Version{
			Version:       constants.TargetVersion,
			SchemaVersion: constants.TargetSchemaVersion,
			Features:      []string{"schema-v2", "checksums", "ttl", "tags"},
		},
		versions: versions,
		legacy:   legacy,
		stepsFn:  func() []Step { return nil },
		checkFn:  func(context.Context) []string { return nil },
		logger:   nopLogger{},
		state:    StateNotStarted,
	}

	for _, opt := range opts {
		opt(orchestrator)
	}

	backup, err := NewBackupManager(legacy, snapshots, orchestrator.logger)
	if err != nil {
		return nil, err
	}

	orchestrator.backup = backup

	return orchestrator, nil
}

// State returns the current lifecycle position.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.state
}

func (o *Orchestrator) setState(next State) {
	o.mu.Lock()
	o.state = next
	o.mu.Unlock()

	o.logger.Printf("migration state: %s", next)
}

// DetectCacheVersion resolves the installed cache version. A persisted
// record wins; absent one, a populated legacy layout implies version 1;
// otherwise the installation is fresh and nil is returned.
func (o *Orchestrator) DetectCacheVersion(ctx context.Context) (*Version, error) {
	recorded, err := o.versions.Read(ctx)
	if err != nil {
		return nil, ewrap.Wrap(err, "detect cache version")
	}

	if recorded != nil {
		return recorded, nil
	}

	if o.legacy.HasLegacyLayout(ctx) {
		return &Version{
			Version:       constants.LegacyVersion,
			SchemaVersion: constants.LegacySchemaVersion,
		}, nil
	}

	return nil, nil
}

// IsMigrationNeeded reports whether the installed version differs from the
// target. A fresh installation needs migration too: the enhanced schema has
// to be created before the structured tier is usable.
func (o *Orchestrator) IsMigrationNeeded(ctx context.Context) (bool, error) {
	detected, err := o.DetectCacheVersion(ctx)
	if err != nil {
		return false, err
	}

	if detected == nil {
		return true, nil
	}

	return detected.SchemaVersion != o.target.SchemaVersion, nil
}

// PerformMigration runs the full migration: detect, back up, execute and
// validate each step, run the post-check, then commit the target version
// record. Any required-step failure triggers a rollback from the backup.
// The call is idempotent: an already-migrated installation returns a
// successful no-op result.
func (o *Orchestrator) PerformMigration(ctx context.Context) (*Result, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, sentinel.ErrMigrationInProgress
	}
	defer o.running.Store(false)

	started := time.Now()
	defer func() {
		if o.collector != nil {
			o.collector.Timing(stats.StatMigrationDuration, time.Since(started).Nanoseconds())
		}
	}()

	o.setState(StateDetecting)

	detected, err := o.DetectCacheVersion(ctx)
	if err != nil {
		return nil, err
	}

	if detected != nil && detected.SchemaVersion == o.target.SchemaVersion {
		o.setState(StateNoMigrationNeeded)

		return &Result{
			Success:       true,
			TargetVersion: o.target.Version,
			Elapsed:       time.Since(started),
		}, nil
	}

	// A fresh install has no source version; the rollback then clears the
	// version record instead of restoring one.
	var sourceVersion string
	if detected != nil {
		sourceVersion = detected.Version
	}

	o.setState(StateMigrating)

	// The backup precedes the first mutation. Without it no rollback is
	// possible, so a backup failure aborts before anything changes. Nothing
	// was mutated and nothing was rolled back, hence the distinct state.
	if _, err := o.backup.CreateBackup(ctx, sourceVersion); err != nil {
		o.setState(StateFailed)

		return &Result{
			TargetVersion: o.target.Version,
			Errors:        []string{fmt.Sprintf("backup: %v", err)},
			Elapsed:       time.Since(started),
		}, nil
	}

	result := &Result{
		TargetVersion:     o.target.Version,
		RollbackAvailable: true,
	}

	steps := o.stepsFn()
	for _, step := range steps {
		if failure := o.runStep(ctx, step); failure != "" {
			if !step.Required {
				o.logger.Printf("optional step %s failed, continuing: %s", step.ID, failure)
				result.Errors = append(result.Errors, failure)

				continue
			}

			return o.failAndRollback(ctx, result, failure, started), nil
		}

		result.MigratedSteps = append(result.MigratedSteps, step.ID)
	}

	o.setState(StateSucceeded)

	if report := o.ValidateMigration(ctx); !report.IsValid {
		return o.failAndRollback(ctx, result,
			fmt.Sprintf("post-migration validation: %v", report.Issues), started), nil
	}

	if err := o.versions.Write(ctx, &o.target); err != nil {
		return o.failAndRollback(ctx, result,
			fmt.Sprintf("commit version record: %v", err), started), nil
	}

	o.setState(StateCommitted)

	result.Success = true
	result.Elapsed = time.Since(started)

	o.logger.Printf("migration committed: %s -> %s in %s",
		sourceVersion, o.target.Version, result.Elapsed)

	return result, nil
}

// runStep executes and validates one step, returning a failure description
// or the empty string.
func (o *Orchestrator) runStep(ctx context.Context, step Step) string {
	o.logger.Printf("migration step: %s", step.Name)

	if err := step.Execute(ctx); err != nil {
		return fmt.Sprintf("%s: %v", step.ID, err)
	}

	if step.Validate != nil && !step.Validate(ctx) {
		return fmt.Sprintf("%s: %v", step.ID, sentinel.ErrMigrationValidationFailed)
	}

	return ""
}

// failAndRollback records the failure, attempts the rollback, and finalizes
// the result. The snapshot survives a failed rollback so PerformRollback can
// be retried.
func (o *Orchestrator) failAndRollback(ctx context.Context, result *Result, failure string, started time.Time) *Result {
	result.Errors = append(result.Errors, failure)

	if o.collector != nil {
		o.collector.Incr(stats.StatErrors, 1)
	}

	if err := o.rollback(ctx); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("rollback: %v", err))
		result.RollbackAvailable = false
	}

	result.Elapsed = time.Since(started)

	return result
}

// ValidateMigration runs the coarse post-migration check. It is a safety net
// over the per-step validations, not a replacement for them.
func (o *Orchestrator) ValidateMigration(ctx context.Context) ValidationReport {
	issues := o.checkFn(ctx)

	return ValidationReport{IsValid: len(issues) == 0, Issues: issues}
}

// PerformRollback restores the pre-migration state from the latest backup.
// It may be called again after a failed rollback; the snapshot is retained
// until a rollback completes.
func (o *Orchestrator) PerformRollback(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		return sentinel.ErrMigrationInProgress
	}
	defer o.running.Store(false)

	return o.rollback(ctx)
}

// rollback undoes the steps in reverse order, replays the snapshot into the
// legacy store, and restores the source version record. The caller holds the
// running flag.
func (o *Orchestrator) rollback(ctx context.Context) error {
	o.setState(StateRollingBack)

	snapshot, err := o.backup.Latest(ctx)
	if err != nil {
		return ewrap.Wrap(sentinel.ErrRollbackFailed, err.Error())
	}

	steps := o.stepsFn()
	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]
		if step.Rollback == nil {
			continue
		}

		if err := step.Rollback(ctx); err != nil {
			return ewrap.Wrap(sentinel.ErrRollbackFailed,
				fmt.Sprintf("undo %s: %v", step.ID, err))
		}
	}

	if err := o.backup.Restore(ctx, snapshot); err != nil {
		return ewrap.Wrap(sentinel.ErrRollbackFailed, err.Error())
	}

	if snapshot.SourceVersion == "" {
		err = o.versions.Clear(ctx)
	} else {
		err = o.versions.Write(ctx, &Version{
			Version:       snapshot.SourceVersion,
			SchemaVersion: constants.LegacySchemaVersion,
		})
	}

	if err != nil {
		return ewrap.Wrap(sentinel.ErrRollbackFailed, err.Error())
	}

	o.setState(StateRolledBack)
	o.logger.Printf("rollback complete: restored %d entries", snapshot.EntryCount())

	return nil
}
