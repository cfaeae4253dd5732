package historical

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
	"gocloud.dev/docstore/memdocstore"
)

func openLocal(t *testing.T) TimeSeriesStore {
	t.Helper()
	db, err := bolt.Open(filepath.Join(t.TempDir(), "history.db"), 0600, &bolt.Options{Timeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewTimeSeriesLocalStore(db)
}

func openDocStore(t *testing.T) TimeSeriesStore {
	t.Helper()
	coll, err := memdocstore.OpenCollection("id", nil)
	require.NoError(t, err)
	t.Cleanup(func() { coll.Close() })
	return NewHistoricalDocStore(coll)
}

func TestTimeSeriesStores(t *testing.T) {
	stores := map[string]func(*testing.T) TimeSeriesStore{
		"bolt":     openLocal,
		"docstore": openDocStore,
	}
	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			t.Run("query returns samples in range ascending", func(t *testing.T) {
				store := open(t)
				ctx := context.Background()
				base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
				for _, i := range []int{3, 0, 2, 1, 4} {
					require.NoError(t, store.WriteSample(ctx, "kitchen", Sample{
						Time:  base.Add(time.Duration(i) * 30 * time.Minute),
						Value: float64(i),
					}))
				}

				got, err := store.QuerySamples(ctx, "kitchen", base.Add(30*time.Minute), base.Add(90*time.Minute))
				require.NoError(t, err)
				require.Len(t, got, 3)
				assert.Equal(t, 1.0, got[0].Value)
				assert.Equal(t, 3.0, got[2].Value)
				assert.True(t, got[0].Time.Equal(base.Add(30*time.Minute)))
			})

			t.Run("rewriting a sample does not duplicate it", func(t *testing.T) {
				store := open(t)
				ctx := context.Background()
				ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
				s := Sample{Time: ts, Value: 0.42}
				require.NoError(t, store.WriteSample(ctx, "meter", s))
				require.NoError(t, store.WriteSample(ctx, "meter", s))

				got, err := store.QuerySamples(ctx, "meter", ts.Add(-time.Hour), ts.Add(time.Hour))
				require.NoError(t, err)
				require.Len(t, got, 1)
				assert.Equal(t, 0.42, got[0].Value)
			})

			t.Run("series are isolated", func(t *testing.T) {
				store := open(t)
				ctx := context.Background()
				ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
				require.NoError(t, store.WriteSample(ctx, "a", Sample{Time: ts, Value: 1}))

				got, err := store.QuerySamples(ctx, "b", ts.Add(-time.Hour), ts.Add(time.Hour))
				require.NoError(t, err)
				assert.Empty(t, got)
			})
		})
	}
}

func TestSamplesAcrossEpochStayOrdered(t *testing.T) {
	for name, open := range map[string]func(*testing.T) TimeSeriesStore{"bolt": openLocal, "docstore": openDocStore} {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			ctx := context.Background()
			before := time.Date(1969, 12, 31, 23, 0, 0, 0, time.UTC)
			after := time.Date(1970, 1, 1, 1, 0, 0, 0, time.UTC)
			require.NoError(t, store.WriteSample(ctx, "old", Sample{Time: after, Value: 2}))
			require.NoError(t, store.WriteSample(ctx, "old", Sample{Time: before, Value: 1}))

			got, err := store.QuerySamples(ctx, "old", before.Add(-time.Hour), after.Add(time.Hour))
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.True(t, got[0].Time.Equal(before))
			assert.True(t, got[1].Time.Equal(after))

			got, err = store.QuerySamples(ctx, "old", before, before)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, 1.0, got[0].Value)
		})
	}
}
