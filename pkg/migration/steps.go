package migration

import (
	"context"

	"github.com/hyp3rd/ewrap"

	"github.com/magickw/tiercache/internal/constants"
	"github.com/magickw/tiercache/pkg/backend"
	"github.com/magickw/tiercache/pkg/cache"
)

// Step is one unit of migration work. Execute performs the change, Validate
// confirms it took effect, and Rollback undoes it. Rollback must be safe to
// call even when Execute never ran or only partially completed.
type Step struct {
	ID       string
	Name     string
	Required bool
	Execute  func(ctx context.Context) error
	Validate func(ctx context.Context) bool
	Rollback func(ctx context.Context) error
}

// DefaultSteps builds the step set that upgrades a version-1 installation to
// the enhanced layout: create the enhanced schema, copy every legacy entry
// into it, then retire the legacy containers. The last step is optional so a
// partially readable legacy layout never blocks the upgrade.
func DefaultSteps(store *backend.SQLite, legacy ILegacyStore) []Step {
	return []Step{
		createSchemaStep(store),
		migrateEntriesStep(store, legacy),
		retireLegacyStep(legacy),
	}
}

func createSchemaStep(store *backend.SQLite) Step {
	return Step{
		ID:       "create-enhanced-schema",
		Name:     "create enhanced cache schema",
		Required: true,
		Execute: func(ctx context.Context) error {
			return store.EnsureSchema(ctx)
		},
		Validate: func(ctx context.Context) bool {
			return store.SchemaReady(ctx)
		},
		Rollback: func(ctx context.Context) error {
			return store.DropSchema(ctx)
		},
	}
}

func migrateEntriesStep(store *backend.SQLite, legacy ILegacyStore) Step {
	var migrated int

	return Step{
		ID:       "migrate-legacy-entries",
		Name:     "copy legacy entries into the enhanced store",
		Required: true,
		Execute: func(ctx context.Context) error {
			containers, err := legacy.Containers(ctx)
			if err != nil {
				return ewrap.Wrap(err, "enumerate legacy containers")
			}

			for _, container := range containers {
				entries, err := legacy.Entries(ctx, container)
				if err != nil {
					return ewrap.Wrapf(err, "read legacy container %s", container)
				}

				for _, legacyEntry := range entries {
					entry := cache.NewEntry(legacyEntry.Key, legacyEntry.Value,
						cache.WithContainer(constants.EnhancedContainer),
						cache.WithHeaders(legacyEntry.Headers),
						cache.WithTags(container),
					)

					if err := store.Set(ctx, entry); err != nil {
						return ewrap.Wrapf(err, "migrate entry %s/%s", container, legacyEntry.Key)
					}

					migrated++
				}
			}

			return nil
		},
		Validate: func(ctx context.Context) bool {
			return store.Count(ctx) >= migrated
		},
		Rollback: func(ctx context.Context) error {
			migrated = 0

			if !store.SchemaReady(ctx) {
				return nil
			}

			return store.Clear(ctx)
		},
	}
}

func retireLegacyStep(legacy ILegacyStore) Step {
	return Step{
		ID:       "retire-legacy-containers",
		Name:     "drop migrated legacy containers",
		Required: false,
		Execute: func(ctx context.Context) error {
			for _, container := range constants.LegacyContainers() {
				if err := legacy.DropContainer(ctx, container); err != nil {
					return ewrap.Wrapf(err, "retire container %s", container)
				}
			}

			return nil
		},
		Validate: func(ctx context.Context) bool {
			return !legacy.HasLegacyLayout(ctx)
		},
		// Contents come back through the snapshot restore; the rollback
		// only needs the containers writable again.
		Rollback: func(ctx context.Context) error {
			for _, container := range constants.LegacyContainers() {
				if err := legacy.EnsureContainer(ctx, container); err != nil {
					return err
				}
			}

			return nil
		},
	}
}
