// Package registry keeps deployed rule packages live in memory, backed by
// the package store.
//
// Deploy accepts only valid packages. A deployed package is served from an
// in-memory cache until it expires, after which Get reloads it from the
// store. Undeploy and redeploy release the replaced package's dialect data
// so its generated classes can no longer be resolved.
package registry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/roach88/rulepack/internal/loader"
	"github.com/roach88/rulepack/internal/rulepkg"
	"github.com/roach88/rulepack/internal/store"
)

// Cache defaults.
const (
	DefaultTTL             = 10 * time.Minute
	DefaultCleanupInterval = 30 * time.Minute
)

// PackageStore is the persistence the registry deploys into.
// *store.Store implements it.
type PackageStore interface {
	SavePackage(ctx context.Context, pkg *rulepkg.Package) (store.Record, error)
	LoadPackage(ctx context.Context, name string, parent loader.ClassLoader) (*rulepkg.Package, error)
	ListPackages(ctx context.Context) ([]store.Record, error)
	DeletePackage(ctx context.Context, name string) error
}

// Registry is a name-keyed set of deployed packages.
//
// Thread-safety: all methods are safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	store  PackageStore
	cache  *gocache.Cache
	parent loader.ClassLoader
	logger *slog.Logger
}

type options struct {
	ttl             time.Duration
	cleanupInterval time.Duration
	parent          loader.ClassLoader
	logger          *slog.Logger
}

// Option configures a Registry.
type Option func(*options)

// WithTTL sets how long a package stays cached after it was deployed or
// loaded. A negative TTL caches packages until they are undeployed.
// Default: DefaultTTL.
func WithTTL(d time.Duration) Option {
	return func(o *options) {
		o.ttl = d
	}
}

// WithCleanupInterval sets how often expired packages are dropped from the
// cache. Default: DefaultCleanupInterval.
func WithCleanupInterval(d time.Duration) Option {
	return func(o *options) {
		o.cleanupInterval = d
	}
}

// WithParentLoader sets the parent loader of packages reloaded from the
// store. Default: loader.System().
func WithParentLoader(l loader.ClassLoader) Option {
	return func(o *options) {
		o.parent = l
	}
}

// WithLogger sets the logger. Default: a logger that discards output.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// New returns a registry deploying into s.
func New(s PackageStore, opts ...Option) *Registry {
	o := options{
		ttl:             DefaultTTL,
		cleanupInterval: DefaultCleanupInterval,
		parent:          loader.System(),
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&o)
	}

	r := &Registry{
		store:  s,
		cache:  gocache.New(o.ttl, o.cleanupInterval),
		parent: o.parent,
		logger: o.logger,
	}
	r.cache.OnEvicted(func(name string, _ any) {
		r.logger.Debug("package evicted from cache", slog.String("package", name))
	})
	return r
}

// Deploy persists pkg and makes it live under its name. An invalid package
// is rejected with its *rulepkg.InvalidRulePackageError and nothing is
// stored. Redeploying a name releases the dialect data of the package it
// replaces.
func (r *Registry) Deploy(ctx context.Context, pkg *rulepkg.Package) (store.Record, error) {
	if err := pkg.CheckValidity(); err != nil {
		return store.Record{}, fmt.Errorf("deploy: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.store.SavePackage(ctx, pkg)
	if err != nil {
		return store.Record{}, fmt.Errorf("deploy: %w", err)
	}

	if old, ok := r.cached(pkg.Name()); ok && old != pkg {
		old.DialectDatas().Release()
	}
	r.cache.Set(pkg.Name(), pkg, gocache.DefaultExpiration)

	r.logger.Info("package deployed",
		slog.String("package", rec.Name),
		slog.String("revision", rec.Revision),
		slog.String("digest", rec.Digest))
	return rec, nil
}

// Get returns the live package with the given name, loading it from the
// store when it is not cached. A name that was never deployed fails with
// store.ErrPackageNotFound.
func (r *Registry) Get(ctx context.Context, name string) (*rulepkg.Package, error) {
	if pkg, ok := r.cached(name); ok {
		r.logger.Debug("cache hit", slog.String("package", name))
		return pkg, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// A concurrent Get may have loaded it while we waited.
	if pkg, ok := r.cached(name); ok {
		return pkg, nil
	}

	pkg, err := r.store.LoadPackage(ctx, name, r.parent)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", name, err)
	}
	r.cache.Set(name, pkg, gocache.DefaultExpiration)

	r.logger.Debug("package loaded into cache", slog.String("package", name))
	return pkg, nil
}

// Undeploy removes the named package from the store and the cache, and
// releases its dialect data if it was live.
func (r *Registry) Undeploy(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.DeletePackage(ctx, name); err != nil {
		return fmt.Errorf("undeploy %s: %w", name, err)
	}

	if pkg, ok := r.cached(name); ok {
		r.cache.Delete(name)
		pkg.DialectDatas().Release()
	}

	r.logger.Info("package undeployed", slog.String("package", name))
	return nil
}

// Names returns the names of all deployed packages in sorted order.
func (r *Registry) Names(ctx context.Context) ([]string, error) {
	records, err := r.store.ListPackages(ctx)
	if err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}
	names := make([]string, len(records))
	for i, rec := range records {
		names[i] = rec.Name
	}
	return names, nil
}

// Cached returns the names of the packages currently held in memory, in
// sorted order.
func (r *Registry) Cached() []string {
	items := r.cache.Items()
	names := make([]string, 0, len(items))
	for name := range items {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Flush drops every cached package without releasing it. Subsequent
// lookups reload from the store.
func (r *Registry) Flush() {
	r.cache.Flush()
}

func (r *Registry) cached(name string) (*rulepkg.Package, bool) {
	v, found := r.cache.Get(name)
	if !found {
		return nil, false
	}
	pkg, ok := v.(*rulepkg.Package)
	if !ok {
		r.logger.Error("wrong type in package cache", slog.String("package", name))
		return nil, false
	}
	return pkg, true
}
