package bdgr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enku/gentoo-build-publisher/pkg/errors"
	"github.com/enku/gentoo-build-publisher/pkg/model"
	"github.com/enku/gentoo-build-publisher/pkg/records"
	"github.com/enku/gentoo-build-publisher/pkg/records/status"
)

func testDB(t *testing.T) records.RecordDB {
	t.Helper()
	db := New(t.TempDir())
	require.NoError(t, db.Initialize())
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRoundTrip(t *testing.T) {
	db := testDB(t)
	build := model.Build{Machine: "base", Number: 100}

	saved, err := db.Save(records.BuildRecord{
		Build:     build,
		Note:      "kernel upgrade",
		Keep:      true,
		Completed: time.Date(2023, 10, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.False(t, saved.Submitted.IsZero())

	got, err := db.Get(build)
	require.NoError(t, err)
	assert.Equal(t, "kernel upgrade", got.Note)
	assert.True(t, got.Keep)
	assert.True(t, got.Pulled())
}

func TestGetMissing(t *testing.T) {
	db := testDB(t)
	_, err := db.Get(model.Build{Machine: "base", Number: 100})
	assert.True(t, errors.Is(err, status.ErrRecordNotFound))
}

func TestMachinePrefixIsolation(t *testing.T) {
	db := testDB(t)
	for _, m := range []string{"base", "base2"} {
		for _, n := range []int{100, 101} {
			_, err := db.Save(records.BuildRecord{Build: model.Build{Machine: m, Number: n}})
			require.NoError(t, err)
		}
	}

	got, err := db.ForMachine("base")
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, r := range got {
		assert.Equal(t, "base", r.Build.Machine)
	}

	machines, err := db.Machines()
	require.NoError(t, err)
	assert.Equal(t, []string{"base", "base2"}, machines)
}

func TestNumericOrdering(t *testing.T) {
	db := testDB(t)
	// number 9 sorts after 100 lexically; ordering must be numeric
	for _, n := range []int{9, 100, 20} {
		_, err := db.Save(records.BuildRecord{
			Build:     model.Build{Machine: "base", Number: n},
			Completed: time.Now().UTC(),
		})
		require.NoError(t, err)
	}

	latest, err := db.Latest("base")
	require.NoError(t, err)
	assert.Equal(t, 100, latest.Build.Number)

	prev, err := db.Previous(model.Build{Machine: "base", Number: 100})
	require.NoError(t, err)
	assert.Equal(t, 20, prev.Build.Number)

	next, err := db.Next(model.Build{Machine: "base", Number: 9})
	require.NoError(t, err)
	assert.Equal(t, 20, next.Build.Number)
}

func TestDeleteAndCount(t *testing.T) {
	db := testDB(t)
	build := model.Build{Machine: "base", Number: 100}
	_, err := db.Save(records.BuildRecord{Build: build})
	require.NoError(t, err)

	require.NoError(t, db.Delete(build))
	require.NoError(t, db.Delete(build))

	count, err := db.Count("")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSearchLogs(t *testing.T) {
	db := testDB(t)
	_, err := db.Save(records.BuildRecord{
		Build: model.Build{Machine: "base", Number: 100},
		Logs:  ">>> emerge (1 of 3) app-foo/foo-1.1",
	})
	require.NoError(t, err)

	got, err := db.Search("base", "logs", "APP-FOO")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = db.Search("base", "logs", "nothere")
	require.NoError(t, err)
	assert.Empty(t, got)
}
