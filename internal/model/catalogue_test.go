package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func otherDefinition(name, prefix string) Definition {
	return Definition{
		Name:        name,
		Susceptible: prefix + "_susceptible",
		States: []StateDef{
			{ID: prefix + "_susceptible"},
			{ID: prefix + "_sick"},
		},
		Transitions: []TransitionDef{
			{From: prefix + "_susceptible", To: prefix + "_susceptible", Kind: KindSelf},
			{From: prefix + "_susceptible", To: prefix + "_sick", Kind: KindRate, Provider: "p"},
			{From: prefix + "_sick", To: prefix + "_sick", Kind: KindSelf},
		},
	}
}

func TestCatalogueLookup(t *testing.T) {
	providers := ProviderSet{"p": constant(0.1)}
	a := MustBuild(otherDefinition("alpha", "a"), providers)
	b := MustBuild(otherDefinition("beta", "b"), providers)

	c, err := NewCatalogue(b, a)
	require.NoError(t, err)

	assert.Equal(t, []string{"beta", "alpha"}, c.Names())
	assert.Equal(t, 2, c.Len())

	got, err := c.Model("alpha")
	require.NoError(t, err)
	assert.Same(t, a, got)

	_, err = c.Model("gamma")
	require.Error(t, err)
	assert.Equal(t, []string{ErrCodeUnknownModel}, codes(err))
}

func TestCatalogueRejectsDuplicates(t *testing.T) {
	providers := ProviderSet{"p": constant(0.1)}
	a := MustBuild(otherDefinition("alpha", "a"), providers)
	again := MustBuild(otherDefinition("alpha", "x"), providers)
	shared := MustBuild(otherDefinition("beta", "a"), providers)

	_, err := NewCatalogue(a, again)
	require.Error(t, err)
	assert.Equal(t, []string{ErrCodeCatalogue}, codes(err))

	_, err = NewCatalogue(a, shared)
	require.Error(t, err)
	assert.Equal(t, []string{ErrCodeCatalogue, ErrCodeCatalogue}, codes(err))
}

func TestCatalogueRejectsSharedTransitionIDs(t *testing.T) {
	providers := ProviderSet{"p": constant(0.1)}
	upper := MustBuild(Definition{
		Name:        "upper",
		Susceptible: "X",
		States:      []StateDef{{ID: "X"}, {ID: "y"}},
		Transitions: []TransitionDef{
			{From: "X", To: "X", Kind: KindSelf},
			{From: "y", To: "y", Kind: KindSelf},
			{From: "X", To: "y", Kind: KindRate, Provider: "p"},
		},
	}, providers)
	lower := MustBuild(Definition{
		Name:        "lower",
		Susceptible: "x",
		States:      []StateDef{{ID: "x"}, {ID: "Y"}},
		Transitions: []TransitionDef{
			{From: "x", To: "x", Kind: KindSelf},
			{From: "Y", To: "Y", Kind: KindSelf},
			{From: "x", To: "Y", Kind: KindRate, Provider: "p"},
		},
	}, providers)

	_, err := NewCatalogue(upper, lower)
	require.Error(t, err)
	assert.Equal(t, []string{ErrCodeDuplicateEdge}, codes(err))
	assert.Contains(t, err.Error(), `"x_to_y"`)
}
