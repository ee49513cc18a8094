package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeDeclarationMatchesExact(t *testing.T) {
	decl := &TypeDeclaration{TypeName: "Tick", Role: RoleEvent, ClassName: "org.acme.Tick"}

	assert.True(t, decl.Matches(&Class{Name: "org.acme.Tick"}))
	assert.False(t, decl.Matches(&Class{Name: "org.acme.Quote"}))
	assert.False(t, decl.Matches(&Class{Name: "org.acme.FastTick", Supers: []string{"org.acme.Tick"}}))
	assert.False(t, decl.Matches(nil))
}

func TestTypeDeclarationMatchesSubtype(t *testing.T) {
	decl := &TypeDeclaration{TypeName: "Tick", Match: MatchSubtype, ClassName: "org.acme.Tick"}

	assert.True(t, decl.Matches(&Class{Name: "org.acme.Tick"}))
	assert.True(t, decl.Matches(&Class{Name: "org.acme.FastTick", Supers: []string{"org.acme.Tick"}}))
	assert.False(t, decl.Matches(&Class{Name: "org.acme.Quote", Supers: []string{"java.lang.Object"}}))
}

func TestTypeDeclarationMatchesPattern(t *testing.T) {
	tests := []struct {
		pattern string
		class   string
		want    bool
	}{
		{"**.Tick", "Tick", true},
		{"**.Tick", "org.acme.Tick", true},
		{"**.Tick", "org.acme.Ticker", false},
		{"org.acme.*", "org.acme.Tick", true},
		{"org.acme.*", "org.acme.sub.Tick", false},
		{"org.acme.**", "org.acme.sub.Tick", true},
		{"org.acme.[", "org.acme.Tick", false}, // malformed pattern never matches
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"_"+tt.class, func(t *testing.T) {
			decl := &TypeDeclaration{TypeName: "T", Match: MatchPattern, Pattern: tt.pattern}
			assert.Equal(t, tt.want, decl.Matches(&Class{Name: tt.class}))
		})
	}
}

func TestClassSimpleName(t *testing.T) {
	assert.Equal(t, "Tick", (&Class{Name: "org.acme.Tick"}).SimpleName())
	assert.Equal(t, "Tick", (&Class{Name: "Tick"}).SimpleName())
}

func TestParseRoleAndMatchMode(t *testing.T) {
	role, err := ParseRole("event")
	require.NoError(t, err)
	assert.Equal(t, RoleEvent, role)
	assert.Equal(t, "event", role.String())

	role, err = ParseRole("")
	require.NoError(t, err)
	assert.Equal(t, RoleFact, role)

	_, err = ParseRole("signal")
	require.Error(t, err)

	mode, err := ParseMatchMode("pattern")
	require.NoError(t, err)
	assert.Equal(t, MatchPattern, mode)
	assert.Equal(t, "pattern", mode.String())

	_, err = ParseMatchMode("fuzzy")
	require.Error(t, err)
}

func TestFactTemplateField(t *testing.T) {
	tmpl := &FactTemplate{Name: "Order", Fields: []FieldTemplate{{Name: "id", Type: "string"}, {Name: "qty", Type: "int"}}}
	assert.Equal(t, 1, tmpl.Field("qty"))
	assert.Equal(t, -1, tmpl.Field("price"))
}

func TestDigests(t *testing.T) {
	a := ArtifactDigest("org.acme.Rule_a", []byte("code"))
	b := ArtifactDigest("org.acme.Rule_b", []byte("code"))
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, ArtifactDigest("org.acme.Rule_a", []byte("code")))

	d1, err := PackageDigest(NewObject(P("name", String("p")), P("rules", List{})))
	require.NoError(t, err)
	d2, err := PackageDigest(NewObject(P("rules", List{}), P("name", String("p"))))
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
}
