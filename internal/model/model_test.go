package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const week = 7 * 24 * time.Hour

func constant(v float64) RateFunc {
	return func(SimulantContext) (Rate, error) { return AnnualHazard(v), nil }
}

func strokeDefinition() Definition {
	return Definition{
		Name:        "ischemic_stroke",
		Susceptible: "susceptible_to_ischemic_stroke",
		States: []StateDef{
			{ID: "susceptible_to_ischemic_stroke", CauseType: CauseTypeCause},
			{ID: "acute_ischemic_stroke", CauseType: CauseTypeSequela, Dwell: 28 * 24 * time.Hour},
			{ID: "chronic_ischemic_stroke", CauseType: CauseTypeSequela},
		},
		Transitions: []TransitionDef{
			{From: "susceptible_to_ischemic_stroke", To: "susceptible_to_ischemic_stroke", Kind: KindSelf},
			{From: "susceptible_to_ischemic_stroke", To: "acute_ischemic_stroke", Kind: KindRate, Provider: "stroke_incidence"},
			{From: "acute_ischemic_stroke", To: "acute_ischemic_stroke", Kind: KindSelf},
			{From: "acute_ischemic_stroke", To: "chronic_ischemic_stroke", Kind: KindDwell},
			{From: "chronic_ischemic_stroke", To: "chronic_ischemic_stroke", Kind: KindSelf},
			{From: "chronic_ischemic_stroke", To: "acute_ischemic_stroke", Kind: KindRate, Provider: "stroke_recurrence"},
		},
	}
}

func strokeProviders() ProviderSet {
	return ProviderSet{
		"stroke_incidence":  constant(0.01),
		"stroke_recurrence": constant(0.05),
	}
}

func codes(err error) []string {
	var out []string
	for _, ce := range ConfigErrors(err) {
		out = append(out, ce.Code)
	}
	return out
}

func TestBuildValidModel(t *testing.T) {
	m, err := Build(strokeDefinition(), strokeProviders())
	require.NoError(t, err)

	assert.Equal(t, "ischemic_stroke", m.Name())
	assert.Equal(t, "susceptible_to_ischemic_stroke", m.Susceptible())
	assert.Equal(t, []string{
		"susceptible_to_ischemic_stroke",
		"acute_ischemic_stroke",
		"chronic_ischemic_stroke",
	}, m.StateIDs())
	assert.Len(t, m.Transitions(), 6)

	var ids []string
	for _, tr := range m.EventTransitions() {
		ids = append(ids, tr.ID)
	}
	assert.Equal(t, []string{
		"susceptible_to_ischemic_stroke_to_acute_ischemic_stroke",
		"acute_ischemic_stroke_to_chronic_ischemic_stroke",
		"chronic_ischemic_stroke_to_acute_ischemic_stroke",
	}, ids)
}

func TestBuildGroupsTransitionsByKind(t *testing.T) {
	m := MustBuild(strokeDefinition(), strokeProviders())

	acute, ok := m.State("acute_ischemic_stroke")
	require.True(t, ok)
	assert.True(t, acute.HasDwell())
	require.NotNil(t, acute.DwellExit())
	assert.Equal(t, "chronic_ischemic_stroke", acute.DwellExit().To)
	assert.Empty(t, acute.RateTransitions())
	assert.Equal(t, "acute_ischemic_stroke", acute.Self().To)

	sus, ok := m.State("susceptible_to_ischemic_stroke")
	require.True(t, ok)
	assert.False(t, sus.HasDwell())
	assert.Nil(t, sus.DwellExit())
	require.Len(t, sus.RateTransitions(), 1)

	r, err := sus.RateTransitions()[0].Rate(SimulantContext{})
	require.NoError(t, err)
	assert.Equal(t, 0.01, r.Value)
	assert.Equal(t, Year, r.Per)
}

func TestBuildBetween(t *testing.T) {
	m := MustBuild(strokeDefinition(), strokeProviders())

	tr, ok := m.Between("chronic_ischemic_stroke", "acute_ischemic_stroke")
	require.True(t, ok)
	assert.Equal(t, KindRate, tr.Kind)

	_, ok = m.Between("acute_ischemic_stroke", "susceptible_to_ischemic_stroke")
	assert.False(t, ok)

	_, ok = m.Between("acute_ischemic_stroke", "acute_ischemic_stroke")
	assert.False(t, ok, "self transitions are not events")
}

func TestBuildMissingProvider(t *testing.T) {
	providers := strokeProviders()
	delete(providers, "stroke_recurrence")

	m, err := Build(strokeDefinition(), providers)
	require.Error(t, err)
	assert.Nil(t, m)
	assert.True(t, IsConfigError(err))
	assert.Equal(t, []string{ErrCodeMissingProvider}, codes(err))
	assert.Contains(t, err.Error(), "stroke_recurrence")
}

func TestBuildCollectsAllErrors(t *testing.T) {
	def := strokeDefinition()
	def.Transitions = append(def.Transitions,
		TransitionDef{From: "acute_ischemic_stroke", To: "nowhere", Kind: KindRate, Provider: "stroke_incidence"},
		TransitionDef{From: "chronic_ischemic_stroke", To: "acute_ischemic_stroke", Kind: KindRate},
	)

	_, err := Build(def, strokeProviders())
	require.Error(t, err)
	assert.Equal(t, []string{
		ErrCodeUndeclaredState,
		ErrCodeMissingProvider,
		ErrCodeDuplicateEdge,
	}, codes(err))
}

func TestBuildValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Definition)
		want   string
	}{
		{
			name:   "empty name",
			mutate: func(d *Definition) { d.Name = "" },
			want:   ErrCodeModelName,
		},
		{
			name:   "susceptible undeclared",
			mutate: func(d *Definition) { d.Susceptible = "healthy" },
			want:   ErrCodeSusceptible,
		},
		{
			name: "duplicate state",
			mutate: func(d *Definition) {
				d.States = append(d.States, StateDef{ID: "chronic_ischemic_stroke"})
			},
			want: ErrCodeDuplicateState,
		},
		{
			name:   "negative dwell",
			mutate: func(d *Definition) { d.States[1].Dwell = -time.Hour },
			want:   ErrCodeNegativeDwell,
		},
		{
			name:   "self transition changing state",
			mutate: func(d *Definition) { d.Transitions[0].To = "acute_ischemic_stroke" },
			want:   ErrCodeInvalidKind,
		},
		{
			name:   "unknown kind",
			mutate: func(d *Definition) { d.Transitions[1].Kind = "magic" },
			want:   ErrCodeInvalidKind,
		},
		{
			name:   "dwell transition without dwell time",
			mutate: func(d *Definition) { d.States[1].Dwell = 0 },
			want:   ErrCodeInvalidDwell,
		},
		{
			name:   "missing self transition",
			mutate: func(d *Definition) { d.Transitions = d.Transitions[1:] },
			want:   ErrCodeSelfTransition,
		},
		{
			name: "transition IDs differing only in case",
			mutate: func(d *Definition) {
				d.States = append(d.States, StateDef{ID: "Chronic_Ischemic_Stroke"})
				d.Transitions = append(d.Transitions,
					TransitionDef{From: "Chronic_Ischemic_Stroke", To: "Chronic_Ischemic_Stroke", Kind: KindSelf},
					TransitionDef{From: "acute_ischemic_stroke", To: "Chronic_Ischemic_Stroke", Kind: KindRate, Provider: "stroke_recurrence"},
				)
			},
			want: ErrCodeDuplicateEdge,
		},
		{
			name: "unreachable state",
			mutate: func(d *Definition) {
				d.States = append(d.States, StateDef{ID: "orphan"})
				d.Transitions = append(d.Transitions, TransitionDef{From: "orphan", To: "orphan", Kind: KindSelf})
			},
			want: ErrCodeUnreachable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := strokeDefinition()
			tt.mutate(&def)
			_, err := Build(def, strokeProviders())
			require.Error(t, err)
			assert.Contains(t, codes(err), tt.want)
		})
	}
}

func TestBuildCopiesDefinition(t *testing.T) {
	def := strokeDefinition()
	m := MustBuild(def, strokeProviders())

	def.States[0].ID = "mutated"
	assert.Equal(t, "susceptible_to_ischemic_stroke", m.Definition().States[0].ID)
}

func TestStepProbability(t *testing.T) {
	r := AnnualHazard(0.1)
	p := r.StepProbability(Year)
	assert.InDelta(t, 0.0951625819640404, p, 1e-12)

	assert.Equal(t, 0.0, AnnualHazard(0).StepProbability(week))
	assert.Equal(t, 0.25, Probability(0.25).StepProbability(week))
	assert.True(t, Probability(0.25).IsProbability())
	assert.False(t, r.IsProbability())
}

func TestTransitionID(t *testing.T) {
	assert.Equal(t, "angina_to_post_myocardial_infarction",
		TransitionID("Angina", "post_myocardial_infarction"))
}

func TestBuildRejectsCaseFoldedTransitionIDs(t *testing.T) {
	def := Definition{
		Name:        "toy",
		Susceptible: "S",
		States:      []StateDef{{ID: "S"}, {ID: "A"}, {ID: "a"}},
		Transitions: []TransitionDef{
			{From: "S", To: "S", Kind: KindSelf},
			{From: "A", To: "A", Kind: KindSelf},
			{From: "a", To: "a", Kind: KindSelf},
			{From: "S", To: "A", Kind: KindRate, Provider: "p"},
			{From: "S", To: "a", Kind: KindRate, Provider: "p"},
		},
	}
	_, err := Build(def, ProviderSet{"p": constant(0.1)})
	require.Error(t, err)
	assert.Equal(t, []string{ErrCodeDuplicateEdge}, codes(err))
	assert.Contains(t, err.Error(), `"s_to_a"`)
}
