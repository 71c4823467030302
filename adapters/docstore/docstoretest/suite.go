// Package docstoretest checks DocumentStore implementations against one behaviour
package docstoretest

import (
	"context"
	"sort"
	"testing"

	"fieldtrial/domain/core"
	"fieldtrial/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plot(id, studyID string, phenotypes ...[]string) core.Document {
	rows := make([]any, 0, len(phenotypes))
	for i, ids := range phenotypes {
		obs := make([]any, 0, len(ids))
		for _, pid := range ids {
			obs = append(obs, core.Document{"phenotype_id": pid, "raw_value": 1.0})
		}
		rows = append(rows, core.Document{"index": i + 1, "observations": obs})
	}
	return core.Document{core.KeyID: id, "parent_study_id": studyID, "rows": rows}
}

// Run exercises store; newStore must return an empty store
func Run(t *testing.T, newStore func(t *testing.T) ports.DocumentStore) {
	ctx := context.Background()

	t.Run("find by id", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Save(ctx, "studies", core.Document{core.KeyID: "s1", "name": "Trial"}, nil))

		doc, err := store.FindByID(ctx, "studies", "s1")
		require.NoError(t, err)
		assert.Equal(t, "Trial", doc["name"])

		_, err = store.FindByID(ctx, "studies", "missing")
		assert.True(t, core.IsNotFoundError(err))
		_, err = store.FindByID(ctx, "nowhere", "s1")
		assert.True(t, core.IsNotFoundError(err))
	})

	t.Run("save assigns ids and replaces by id", func(t *testing.T) {
		store := newStore(t)
		doc := core.Document{"name": "first"}
		require.NoError(t, store.Save(ctx, "studies", doc, nil))
		id, ok := core.IDFromValue(doc[core.KeyID])
		require.True(t, ok)

		require.NoError(t, store.Save(ctx, "studies", core.Document{core.KeyID: id.String(), "name": "second"}, nil))
		all, err := store.Find(ctx, "studies", nil)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "second", all[0]["name"])
	})

	t.Run("upsert selector", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Save(ctx, "measured_variables", core.Document{core.KeyID: "mv1", "name": "Height", "v": 1.0}, nil))

		require.NoError(t, store.Save(ctx, "measured_variables", core.Document{"name": "Height", "v": 2.0}, core.Filter{"name": "Height"}))
		require.NoError(t, store.Save(ctx, "measured_variables", core.Document{"name": "Weight", "v": 1.0}, core.Filter{"name": "Weight"}))

		doc, err := store.FindByID(ctx, "measured_variables", "mv1")
		require.NoError(t, err)
		assert.Equal(t, 2.0, doc["v"])

		all, err := store.Find(ctx, "measured_variables", nil)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("find filters on nested arrays", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Save(ctx, "plots", plot("p1", "s1", []string{"mv1"}), nil))
		require.NoError(t, store.Save(ctx, "plots", plot("p2", "s1", []string{"mv2"}), nil))
		require.NoError(t, store.Save(ctx, "plots", plot("p3", "s2", []string{"mv1"}), nil))

		docs, err := store.Find(ctx, "plots", core.Filter{"parent_study_id": "s1"})
		require.NoError(t, err)
		assert.Len(t, docs, 2)

		docs, err = store.Find(ctx, "plots", core.Filter{"parent_study_id": "s1", "rows.observations.phenotype_id": "mv2"})
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "p2", docs[0][core.KeyID])
	})

	t.Run("distinct walks rows and observations", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Save(ctx, "plots", plot("p1", "s1", []string{"mv1", "mv2"}, []string{"mv1"}), nil))
		require.NoError(t, store.Save(ctx, "plots", plot("p2", "s1", []string{"mv3", "mv2"}), nil))
		require.NoError(t, store.Save(ctx, "plots", plot("p3", "s2", []string{"mv9"}), nil))
		require.NoError(t, store.Save(ctx, "plots", plot("p4", "s1"), nil))

		values, err := store.FindDistinct(ctx, "plots", "rows.observations.phenotype_id", core.Filter{"parent_study_id": "s1"})
		require.NoError(t, err)
		ids := make([]string, 0, len(values))
		for _, v := range values {
			s, ok := v.(string)
			require.True(t, ok, "%T", v)
			ids = append(ids, s)
		}
		sort.Strings(ids)
		assert.Equal(t, []string{"mv1", "mv2", "mv3"}, ids)

		values, err = store.FindDistinct(ctx, "plots", "rows.observations.phenotype_id", core.Filter{"parent_study_id": "none"})
		require.NoError(t, err)
		assert.Empty(t, values)
	})

	t.Run("cancelled context", func(t *testing.T) {
		store := newStore(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := store.Find(cctx, "studies", nil)
		assert.Error(t, err)
	})
}
