package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rulepack/internal/ir"
	"github.com/roach88/rulepack/internal/loader"
	"github.com/roach88/rulepack/internal/rulepkg"
	"github.com/roach88/rulepack/internal/store"
	"github.com/roach88/rulepack/internal/testutil"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:", store.WithRevisionGenerator(testutil.NewSequenceRevisions("")))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDeploy_PersistsAndCaches(t *testing.T) {
	s := openStore(t)
	r := New(s)
	ctx := context.Background()
	pkg := testutil.TradingPackage(t)

	rec, err := r.Deploy(ctx, pkg)
	require.NoError(t, err)
	assert.Equal(t, "org.acme.trading", rec.Name)
	assert.Equal(t, "rev-000001", rec.Revision)

	got, err := r.Get(ctx, "org.acme.trading")
	require.NoError(t, err)
	assert.Same(t, pkg, got, "deployed instance is served from the cache")
	assert.Equal(t, []string{"org.acme.trading"}, r.Cached())

	info, err := s.PackageInfo(ctx, "org.acme.trading")
	require.NoError(t, err)
	assert.Equal(t, rec.Digest, info.Digest)
}

func TestDeploy_RejectsInvalidPackage(t *testing.T) {
	s := openStore(t)
	r := New(s)
	ctx := context.Background()

	_, err := r.Deploy(ctx, testutil.InvalidPackage(t, "org.acme.broken"))
	require.Error(t, err)
	assert.True(t, rulepkg.IsInvalidPackage(err))

	names, err := r.Names(ctx)
	require.NoError(t, err)
	assert.Empty(t, names, "nothing stored")
	assert.Empty(t, r.Cached())
}

func TestDeploy_RedeployReleasesReplaced(t *testing.T) {
	r := New(openStore(t))
	ctx := context.Background()

	first := testutil.TradingPackage(t)
	_, err := r.Deploy(ctx, first)
	require.NoError(t, err)

	second := testutil.TradingPackage(t)
	rec, err := r.Deploy(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, "rev-000002", rec.Revision)

	assert.Zero(t, first.DialectDatas().Len())
	assert.Positive(t, second.DialectDatas().Len())

	got, err := r.Get(ctx, "org.acme.trading")
	require.NoError(t, err)
	assert.Same(t, second, got)
}

func TestDeploy_SameInstanceTwiceKeepsData(t *testing.T) {
	r := New(openStore(t))
	ctx := context.Background()
	pkg := testutil.TradingPackage(t)

	_, err := r.Deploy(ctx, pkg)
	require.NoError(t, err)
	_, err = r.Deploy(ctx, pkg)
	require.NoError(t, err)

	assert.Positive(t, pkg.DialectDatas().Len())
}

func TestGet_LoadsFromStoreOnMiss(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	parent := loader.NewStatic(&ir.Class{Name: "org.acme.Shared"})

	_, err := New(s).Deploy(ctx, testutil.TradingPackage(t))
	require.NoError(t, err)

	r := New(s, WithParentLoader(parent))
	assert.Empty(t, r.Cached())

	pkg, err := r.Get(ctx, "org.acme.trading")
	require.NoError(t, err)
	assert.Same(t, parent, pkg.ParentLoader())
	assert.Equal(t, []string{"org.acme.trading"}, r.Cached())

	again, err := r.Get(ctx, "org.acme.trading")
	require.NoError(t, err)
	assert.Same(t, pkg, again)
}

func TestGet_ReloadsAfterExpiry(t *testing.T) {
	r := New(openStore(t), WithTTL(time.Millisecond), WithCleanupInterval(time.Hour))
	ctx := context.Background()
	pkg := testutil.TradingPackage(t)

	_, err := r.Deploy(ctx, pkg)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	got, err := r.Get(ctx, "org.acme.trading")
	require.NoError(t, err)
	assert.NotSame(t, pkg, got)
	assert.True(t, got.Equal(pkg))
	assert.Positive(t, pkg.DialectDatas().Len(), "expiry does not release")
}

func TestGet_NotFound(t *testing.T) {
	r := New(openStore(t))

	_, err := r.Get(context.Background(), "org.acme.missing")
	require.ErrorIs(t, err, store.ErrPackageNotFound)
}

func TestUndeploy(t *testing.T) {
	s := openStore(t)
	r := New(s)
	ctx := context.Background()
	pkg := testutil.TradingPackage(t)

	_, err := r.Deploy(ctx, pkg)
	require.NoError(t, err)

	require.NoError(t, r.Undeploy(ctx, "org.acme.trading"))

	assert.Empty(t, r.Cached())
	assert.Zero(t, pkg.DialectDatas().Len())
	alert, _ := pkg.Rule("price-alert")
	_, err = pkg.DialectDatas().LoadClass(alert.Consequence)
	assert.True(t, errors.Is(err, loader.ErrClassNotFound))

	_, err = r.Get(ctx, "org.acme.trading")
	require.ErrorIs(t, err, store.ErrPackageNotFound)

	err = r.Undeploy(ctx, "org.acme.trading")
	require.ErrorIs(t, err, store.ErrPackageNotFound)
}

func TestNames_Sorted(t *testing.T) {
	r := New(openStore(t))
	ctx := context.Background()

	for _, name := range []string{"org.acme.c", "org.acme.a", "org.acme.b"} {
		_, err := r.Deploy(ctx, testutil.MinimalPackage(t, name))
		require.NoError(t, err)
	}

	names, err := r.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"org.acme.a", "org.acme.b", "org.acme.c"}, names)
	assert.Equal(t, names, r.Cached())
}

func TestFlush_KeepsPackagesLive(t *testing.T) {
	r := New(openStore(t))
	ctx := context.Background()
	pkg := testutil.TradingPackage(t)

	_, err := r.Deploy(ctx, pkg)
	require.NoError(t, err)

	r.Flush()

	assert.Empty(t, r.Cached())
	assert.Positive(t, pkg.DialectDatas().Len())
	_, err = r.Get(ctx, "org.acme.trading")
	require.NoError(t, err)
}
