package engine

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cvdsim/internal/model"
)

const day = 24 * time.Hour

func fixed(r model.Rate) model.RateFunc {
	return func(model.SimulantContext) (model.Rate, error) { return r, nil }
}

// twoState is A -> B at a constant hazard per unit time.
func twoState(t *testing.T, rate model.RateFunc) *model.DiseaseModel {
	t.Helper()
	m, err := model.Build(model.Definition{
		Name:        "toy",
		Susceptible: "a",
		States:      []model.StateDef{{ID: "a"}, {ID: "b"}},
		Transitions: []model.TransitionDef{
			{From: "a", To: "a", Kind: model.KindSelf},
			{From: "a", To: "b", Kind: model.KindRate, Provider: "r"},
			{From: "b", To: "b", Kind: model.KindSelf},
		},
	}, model.ProviderSet{"r": rate})
	require.NoError(t, err)
	return m
}

// acuteWithEscape has a 28 day acute state that also declares a certain
// rate transition, which must never preempt the dwell.
func acuteWithEscape(t *testing.T) *model.DiseaseModel {
	t.Helper()
	m, err := model.Build(model.Definition{
		Name:        "ihd",
		Susceptible: "susceptible",
		States: []model.StateDef{
			{ID: "susceptible"},
			{ID: "acute", Dwell: 28 * day},
			{ID: "post"},
			{ID: "escaped"},
		},
		Transitions: []model.TransitionDef{
			{From: "susceptible", To: "susceptible", Kind: model.KindSelf},
			{From: "susceptible", To: "acute", Kind: model.KindRate, Provider: "certain"},
			{From: "acute", To: "acute", Kind: model.KindSelf},
			{From: "acute", To: "post", Kind: model.KindDwell},
			{From: "acute", To: "escaped", Kind: model.KindRate, Provider: "certain"},
			{From: "post", To: "post", Kind: model.KindSelf},
			{From: "escaped", To: "escaped", Kind: model.KindSelf},
		},
	}, model.ProviderSet{"certain": fixed(model.Probability(1))})
	require.NoError(t, err)
	return m
}

func never(string) float64  { return 0.999999 }
func always(string) float64 { return 0 }

func TestResolveDwellExitsOnCeilingStep(t *testing.T) {
	tests := []struct {
		name string
		step time.Duration
		want int
	}{
		{"exact multiple", 7 * day, 4},
		{"remainder", 10 * day, 3},
		{"step longer than dwell", 30 * day, 1},
		{"daily", day, 28},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine(acuteWithEscape(t))
			sc := model.SimulantContext{State: "acute", Step: tt.step}

			for step := 1; ; step++ {
				out, err := m.Resolve(sc, always)
				require.NoError(t, err)
				if out.Changed() {
					assert.Equal(t, tt.want, step)
					assert.Equal(t, "post", out.Next)
					assert.Equal(t, model.KindDwell, out.Transition.Kind)
					return
				}
				assert.Equal(t, "acute", out.Next)
				assert.Equal(t, model.KindSelf, out.Transition.Kind)
				sc.TimeInState += sc.Step
				require.Less(t, step, 100, "dwell never elapsed")
			}
		})
	}
}

func TestResolveRateTransition(t *testing.T) {
	m := NewMachine(acuteWithEscape(t))
	sc := model.SimulantContext{State: "susceptible", Step: 7 * day}

	out, err := m.Resolve(sc, always)
	require.NoError(t, err)
	assert.True(t, out.Changed())
	assert.Equal(t, "acute", out.Next)

	// Probability 1 fires for any draw in [0, 1).
	out, err = m.Resolve(sc, never)
	require.NoError(t, err)
	assert.Equal(t, "acute", out.Next)
}

func TestResolveStaysWhenDrawFails(t *testing.T) {
	m := NewMachine(twoState(t, fixed(model.Probability(0.5))))
	sc := model.SimulantContext{State: "a", Step: 7 * day}

	out, err := m.Resolve(sc, func(string) float64 { return 0.5 })
	require.NoError(t, err)
	assert.False(t, out.Changed())
	assert.Equal(t, "a", out.Next)

	out, err = m.Resolve(sc, func(string) float64 { return 0.49 })
	require.NoError(t, err)
	assert.True(t, out.Changed())
}

func TestResolveCompetingRatesInDeclaredOrder(t *testing.T) {
	m, err := model.Build(model.Definition{
		Name:        "ihd",
		Susceptible: "s",
		States:      []model.StateDef{{ID: "s"}, {ID: "mi"}, {ID: "angina"}},
		Transitions: []model.TransitionDef{
			{From: "s", To: "s", Kind: model.KindSelf},
			{From: "s", To: "mi", Kind: model.KindRate, Provider: "half"},
			{From: "s", To: "angina", Kind: model.KindRate, Provider: "half"},
			{From: "mi", To: "mi", Kind: model.KindSelf},
			{From: "angina", To: "angina", Kind: model.KindSelf},
		},
	}, model.ProviderSet{"half": fixed(model.Probability(0.5))})
	require.NoError(t, err)
	machine := NewMachine(m)
	sc := model.SimulantContext{State: "s", Step: day}

	var asked []string
	out, err := machine.Resolve(sc, func(key string) float64 {
		asked = append(asked, key)
		return 0.1
	})
	require.NoError(t, err)
	assert.Equal(t, "mi", out.Next)
	assert.Equal(t, []string{"s_to_mi"}, asked, "first success short-circuits")

	asked = nil
	out, err = machine.Resolve(sc, func(key string) float64 {
		asked = append(asked, key)
		if key == "s_to_mi" {
			return 0.9
		}
		return 0.1
	})
	require.NoError(t, err)
	assert.Equal(t, "angina", out.Next)
	assert.Equal(t, []string{"s_to_mi", "s_to_angina"}, asked)
}

func TestResolveDataErrors(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name string
		rate model.RateFunc
		code string
	}{
		{"negative hazard", fixed(model.AnnualHazard(-0.1)), ErrCodeNegativeRate},
		{"probability above one", fixed(model.Probability(1.5)), ErrCodeProbabilityRange},
		{"negative probability", fixed(model.Probability(-0.01)), ErrCodeProbabilityRange},
		{"nan", fixed(model.AnnualHazard(math.NaN())), ErrCodeNonFinite},
		{"infinite", fixed(model.AnnualHazard(math.Inf(1))), ErrCodeNonFinite},
		{"provider failure", func(model.SimulantContext) (model.Rate, error) { return model.Rate{}, boom }, ErrCodeProvider},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine(twoState(t, tt.rate))
			_, err := m.Resolve(model.SimulantContext{Simulant: 7, State: "a", Step: day}, always)
			require.Error(t, err)
			require.True(t, IsDataError(err))

			var de *DataError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tt.code, de.Code)
			assert.Equal(t, "a_to_b", de.Transition)
			assert.Equal(t, int64(7), de.Simulant)
		})
	}
}

func TestResolveProviderErrorUnwraps(t *testing.T) {
	boom := errors.New("boom")
	m := NewMachine(twoState(t, func(model.SimulantContext) (model.Rate, error) { return model.Rate{}, boom }))
	_, err := m.Resolve(model.SimulantContext{State: "a", Step: day}, always)
	assert.ErrorIs(t, err, boom)
}

func TestResolveUnknownState(t *testing.T) {
	m := NewMachine(twoState(t, fixed(model.AnnualHazard(0.1))))
	_, err := m.Resolve(model.SimulantContext{State: "zombie", Step: day}, always)
	require.Error(t, err)

	var de *DataError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, ErrCodeUnknownState, de.Code)
	assert.Contains(t, err.Error(), `"zombie"`)
}

func TestResolveAbsorbingStateNeverDraws(t *testing.T) {
	m := NewMachine(twoState(t, fixed(model.AnnualHazard(0.1))))
	out, err := m.Resolve(model.SimulantContext{State: "b", Step: day}, func(string) float64 {
		t.Fatal("absorbing state must not draw")
		return 0
	})
	require.NoError(t, err)
	assert.Equal(t, "b", out.Next)
}

func TestResolveTwoStateScenario(t *testing.T) {
	unit := model.Year
	m := NewMachine(twoState(t, fixed(model.Hazard(0.1, unit))))

	count := func(seed uint64) int {
		stream := NewStream(seed)
		n := 0
		for sim := int64(0); sim < 1000; sim++ {
			out, err := m.Resolve(model.SimulantContext{Simulant: sim, State: "a", Step: unit}, stream.For(sim, 1))
			require.NoError(t, err)
			if out.Changed() {
				n++
			}
		}
		return n
	}

	first := count(20220101)
	assert.Equal(t, first, count(20220101), "fixed seed must reproduce the count")

	// 1000 * (1 - e^-0.1) = 95.16, sd about 9.3.
	assert.InDelta(t, 95.16, float64(first), 35)
}

func TestCheckedProbability(t *testing.T) {
	p, code := CheckedProbability(model.AnnualHazard(0), 7*day)
	assert.Empty(t, code)
	assert.Equal(t, 0.0, p)

	p, code = CheckedProbability(model.AnnualHazard(0.1), model.Year)
	assert.Empty(t, code)
	assert.InDelta(t, 1-math.Exp(-0.1), p, 1e-15)

	p, code = CheckedProbability(model.Probability(1), day)
	assert.Empty(t, code)
	assert.Equal(t, 1.0, p)
}
