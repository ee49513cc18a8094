package loader

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rulepack/internal/ir"
)

func TestStaticLoadClass(t *testing.T) {
	l := NewStatic(&ir.Class{Name: "org.acme.Tick"})

	c, err := l.LoadClass("org.acme.Tick")
	require.NoError(t, err)
	assert.Equal(t, "Tick", c.SimpleName())

	_, err = l.LoadClass("org.acme.Quote")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrClassNotFound))
	assert.Contains(t, err.Error(), "org.acme.Quote")
}

func TestStaticDefineReplaces(t *testing.T) {
	l := NewStatic()
	l.Define(&ir.Class{Name: "a.B"})
	l.Define(&ir.Class{Name: "a.B", Supers: []string{"a.A"}})

	c, err := l.LoadClass("a.B")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.A"}, c.Supers)
}

func TestChainChildFirst(t *testing.T) {
	parent := NewStatic(&ir.Class{Name: "x.Shared", Supers: []string{"parent"}}, &ir.Class{Name: "x.Parent"})
	child := NewStatic(&ir.Class{Name: "x.Shared", Supers: []string{"child"}})

	l := Chain(child, parent)

	c, err := l.LoadClass("x.Shared")
	require.NoError(t, err)
	assert.Equal(t, []string{"child"}, c.Supers)

	c, err = l.LoadClass("x.Parent")
	require.NoError(t, err)
	assert.Equal(t, "x.Parent", c.Name)

	_, err = l.LoadClass("x.Missing")
	assert.ErrorIs(t, err, ErrClassNotFound)
}

func TestChainNilParent(t *testing.T) {
	child := NewStatic()
	assert.Same(t, child, Chain(child, nil))
}

type failingLoader struct{}

func (failingLoader) LoadClass(string) (*ir.Class, error) { return nil, errors.New("disk on fire") }

func TestChainPropagatesHardErrors(t *testing.T) {
	l := Chain(failingLoader{}, NewStatic(&ir.Class{Name: "x.Y"}))
	_, err := l.LoadClass("x.Y")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrClassNotFound)
}
