package publisher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enku/gentoo-build-publisher/pkg/model"
)

func TestPruneDisabled(t *testing.T) {
	p, s, _ := testPublisher(t)
	pull(t, p, model.NewBuild("base", 100), "app-foo/foo-1.0")

	removed, err := p.Prune(context.Background(), "base")
	require.NoError(t, err)
	assert.Empty(t, removed)
	assert.True(t, s.Pulled(model.NewBuild("base", 100)))
}

func TestPruneRetainCount(t *testing.T) {
	p, s, _ := testPublisher(t, Retention(2, 0))
	for _, n := range []int{100, 101, 102, 103} {
		pull(t, p, model.NewBuild("base", n), "app-foo/foo-1.0")
	}

	removed, err := p.Prune(context.Background(), "base")
	require.NoError(t, err)
	assert.Equal(t, []model.Build{
		model.NewBuild("base", 100),
		model.NewBuild("base", 101),
	}, removed)

	assert.False(t, s.Pulled(model.NewBuild("base", 100)))
	assert.False(t, s.Pulled(model.NewBuild("base", 101)))
	assert.True(t, s.Pulled(model.NewBuild("base", 102)))
	assert.True(t, s.Pulled(model.NewBuild("base", 103)))
}

func TestPruneExclusions(t *testing.T) {
	p, s, _ := testPublisher(t, Retention(1, 0))
	published := model.NewBuild("base", 100)
	kept := model.NewBuild("base", 101)
	tagged := model.NewBuild("base", 102)
	doomed := model.NewBuild("base", 103)
	newest := model.NewBuild("base", 104)
	for _, b := range []model.Build{published, kept, tagged, doomed, newest} {
		pull(t, p, b, "app-foo/foo-1.0")
	}
	require.NoError(t, p.Publish(published))
	require.NoError(t, p.SetKeep(kept, true))
	require.NoError(t, p.Tag(tagged, "stable"))

	removed, err := p.Prune(context.Background(), "base")
	require.NoError(t, err)
	assert.Equal(t, []model.Build{doomed}, removed)

	for _, b := range []model.Build{published, kept, tagged, newest} {
		assert.True(t, s.Pulled(b), b.ID())
	}
}

func TestPruneRetainDays(t *testing.T) {
	p, s, db := testPublisher(t, Retention(0, 30))
	old := model.NewBuild("base", 100)
	recent := model.NewBuild("base", 101)
	pull(t, p, old, "app-foo/foo-1.0")
	pull(t, p, recent, "app-foo/foo-1.1")

	rec, err := db.Get(old)
	require.NoError(t, err)
	rec.Submitted = time.Now().UTC().AddDate(0, 0, -60)
	_, err = db.Save(rec)
	require.NoError(t, err)

	removed, err := p.Prune(context.Background(), "base")
	require.NoError(t, err)
	assert.Equal(t, []model.Build{old}, removed)
	assert.True(t, s.Pulled(recent))
}

func TestPruneOtherMachineUntouched(t *testing.T) {
	p, s, _ := testPublisher(t, Retention(1, 0))
	for _, n := range []int{100, 101} {
		pull(t, p, model.NewBuild("base", n), "app-foo/foo-1.0")
		pull(t, p, model.NewBuild("web", n), "app-foo/foo-1.0")
	}

	removed, err := p.Prune(context.Background(), "base")
	require.NoError(t, err)
	assert.Equal(t, []model.Build{model.NewBuild("base", 100)}, removed)
	assert.True(t, s.Pulled(model.NewBuild("web", 100)))
}

func TestPruneKeepFlagRecheck(t *testing.T) {
	p, s, db := testPublisher(t, Retention(1, 0))
	first := model.NewBuild("base", 100)
	second := model.NewBuild("base", 101)
	pull(t, p, first, "app-foo/foo-1.0")
	pull(t, p, second, "app-foo/foo-1.0")
	pull(t, p, model.NewBuild("base", 102), "app-foo/foo-1.0")

	// keep lands on the second candidate while the first is being
	// deleted; the pre-delete recheck must spare it
	p.Subscribe(func(e Event) {
		if e.Type == EventPostDelete && e.Build == first {
			rec, err := db.Get(second)
			require.NoError(t, err)
			rec.Keep = true
			_, err = db.Save(rec)
			require.NoError(t, err)
		}
	})

	removed, err := p.Prune(context.Background(), "base")
	require.NoError(t, err)
	assert.Equal(t, []model.Build{first}, removed)
	assert.True(t, s.Pulled(second))
}

func TestMutatorsSerializeWithPrune(t *testing.T) {
	// SetKeep and Tag go through the machine lock, so neither can
	// land between a prune run's exemption recheck and its delete
	p, _, db := testPublisher(t)
	build := model.NewBuild("base", 100)
	pull(t, p, build, "app-foo/foo-1.0")

	unlock := p.machines.lock("base")
	done := make(chan error, 2)
	go func() { done <- p.SetKeep(build, true) }()
	go func() { done <- p.Tag(build, "stable") }()

	select {
	case <-done:
		t.Fatal("mutator ran while the machine lock was held")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	require.NoError(t, <-done)
	require.NoError(t, <-done)

	rec, err := db.Get(build)
	require.NoError(t, err)
	assert.True(t, rec.Keep)
}

func TestPruneUnrecordedBuild(t *testing.T) {
	// a build the records db never saw is still prunable
	p, s, db := testPublisher(t, Retention(1, 0))
	victim := model.NewBuild("base", 100)
	pull(t, p, victim, "app-foo/foo-1.0")
	pull(t, p, model.NewBuild("base", 101), "app-foo/foo-1.0")
	require.NoError(t, db.Delete(victim))

	removed, err := p.Prune(context.Background(), "base")
	require.NoError(t, err)
	assert.Equal(t, []model.Build{victim}, removed)
	assert.False(t, s.Pulled(victim))
}
