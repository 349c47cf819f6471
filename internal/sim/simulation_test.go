package sim

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cvdsim/internal/engine"
	"github.com/roach88/cvdsim/internal/metrics"
	"github.com/roach88/cvdsim/internal/model"
	"github.com/roach88/cvdsim/internal/population"
	"github.com/roach88/cvdsim/internal/stratify"
	"github.com/roach88/cvdsim/internal/testutil"
)

func config(seed uint64) Config {
	return Config{
		Start:            testutil.Epoch,
		StepSize:         testutil.Week,
		Seed:             seed,
		Horizon:          52,
		CheckInvariants:  true,
		RecordTrajectory: true,
	}
}

func newSim(t *testing.T, n int, cfg Config, providers model.ProviderSet) *Simulation {
	t.Helper()
	s, err := New(testutil.Catalogue(t, providers), testutil.Population(t, n, 7), cfg)
	require.NoError(t, err)
	return s
}

func sumMeasure(entries []metrics.Entry, disease, measure string) float64 {
	var total float64
	for _, e := range entries {
		if e.Disease == disease && e.Measure == measure {
			total += e.Value
		}
	}
	return total
}

func TestInitializeCreatesColumns(t *testing.T) {
	s := newSim(t, 20, config(1), testutil.DefaultProviders())
	require.NoError(t, s.Initialize())
	require.NoError(t, s.Initialize(), "initialize is idempotent")

	for _, col := range []string{
		"ischemic_stroke",
		"ischemic_stroke_time_in_state",
		"previous_ischemic_stroke",
		"ischemic_heart_disease",
		"ischemic_heart_disease_time_in_state",
		"previous_ischemic_heart_disease",
		stratify.ColumnStratum,
	} {
		assert.True(t, s.Table().HasColumn(col), col)
	}

	states, err := s.Table().StringColumn("ischemic_stroke")
	require.NoError(t, err)
	for _, st := range states {
		assert.Equal(t, testutil.StrokeSusceptible, st)
	}
}

func TestInitializeMissingExposure(t *testing.T) {
	tbl := population.NewTable(5)
	s, err := New(testutil.Catalogue(t, testutil.DefaultProviders()), tbl, config(1))
	require.NoError(t, err)

	err = s.Initialize()
	require.Error(t, err)
	assert.True(t, stratify.IsDependencyError(err))
}

func TestDenseReportBeforeRunning(t *testing.T) {
	s := newSim(t, 10, config(1), testutil.DefaultProviders())
	// (3 states + 3 transitions) + (4 states + 4 transitions), 16 strata.
	assert.Len(t, s.Report(), (6+8)*16)
}

func TestDwellExitsOnFourthWeek(t *testing.T) {
	cfg := config(3)
	cfg.Prevalence = map[string][]StateShare{
		testutil.StrokeModel: {{State: testutil.StrokeAcute, Share: 1}},
	}
	s := newSim(t, 200, cfg, testutil.Hazards(map[string]float64{
		"stroke_incidence":  0,
		"stroke_recurrence": 0,
		"mi_incidence":      0,
		"angina_incidence":  0,
		"mi_recurrence":     0,
	}))

	require.NoError(t, s.Run(context.Background(), 3))
	states, err := s.Table().StringColumn(testutil.StrokeModel)
	require.NoError(t, err)
	for _, st := range states {
		require.Equal(t, testutil.StrokeAcute, st)
	}

	require.NoError(t, s.Run(context.Background(), 1))
	for _, st := range states {
		require.Equal(t, testutil.StrokeChronic, st)
	}

	assert.Equal(t, 200.0, sumMeasure(s.Entries(), testutil.StrokeModel, metrics.MeasureEventCount))
	assert.Equal(t, 200.0, sumPrefix(s.Report(), "acute_ischemic_stroke_to_chronic_ischemic_stroke_event_count_"))
}

func sumPrefix(report map[string]float64, prefix string) float64 {
	var total float64
	for k, v := range report {
		if strings.HasPrefix(k, prefix) {
			total += v
		}
	}
	return total
}

func TestPersonTimeConservation(t *testing.T) {
	const n, steps = 300, 26
	s := newSim(t, n, config(11), testutil.DefaultProviders())
	require.NoError(t, s.Run(context.Background(), steps))

	want := float64(n*steps) * float64(testutil.Week) / float64(model.Year)
	entries := s.Entries()
	assert.InDelta(t, want, sumMeasure(entries, testutil.StrokeModel, metrics.MeasurePersonTime), 1e-9)
	assert.InDelta(t, want, sumMeasure(entries, testutil.IHDModel, metrics.MeasurePersonTime), 1e-9)
}

func TestReproducible(t *testing.T) {
	run := func(seed uint64) *Simulation {
		s := newSim(t, 400, config(seed), testutil.Hazards(map[string]float64{
			"stroke_incidence":  2,
			"stroke_recurrence": 4,
			"mi_incidence":      2,
			"angina_incidence":  1,
			"mi_recurrence":     4,
		}))
		require.NoError(t, s.Run(context.Background(), 20))
		return s
	}

	a, b := run(99), run(99)
	assert.Equal(t, a.Trajectory(), b.Trajectory())
	assert.Equal(t, a.Report(), b.Report())

	c := run(100)
	assert.NotEqual(t, a.Trajectory(), c.Trajectory())
}

func TestAtMostOneTransitionPerStep(t *testing.T) {
	cat := testutil.Catalogue(t, testutil.Hazards(map[string]float64{
		"stroke_incidence":  5,
		"stroke_recurrence": 10,
		"mi_incidence":      5,
		"angina_incidence":  5,
		"mi_recurrence":     10,
	}))
	s, err := New(cat, testutil.Population(t, 200, 5), config(5))
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background(), 30))

	traj := s.Trajectory()
	require.Len(t, traj, 30)
	events := 0
	for i := 1; i < len(traj); i++ {
		for _, m := range cat.Models() {
			before, after := traj[i-1].States[m.Name()], traj[i].States[m.Name()]
			for sim := range after {
				if before[sim] == after[sim] {
					continue
				}
				_, ok := m.Between(before[sim], after[sim])
				require.True(t, ok, "%s: %s -> %s is not a single declared transition", m.Name(), before[sim], after[sim])
				events++
			}
		}
	}
	assert.Positive(t, events)
}

func TestRunStopsOnCancel(t *testing.T) {
	s := newSim(t, 10, config(1), testutil.DefaultProviders())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Run(ctx, 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), s.Clock().Current())
}

func TestRunStaysWithinHorizon(t *testing.T) {
	cfg := config(1)
	cfg.Horizon = 3
	s := newSim(t, 10, cfg, testutil.DefaultProviders())
	keys := len(s.Report())

	err := s.Run(context.Background(), 4)
	require.ErrorIs(t, err, ErrPastHorizon)
	assert.Equal(t, int64(0), s.Clock().Current())

	require.NoError(t, s.Run(context.Background(), 3))
	require.ErrorIs(t, s.Step(), ErrPastHorizon)
	require.ErrorIs(t, s.Run(context.Background(), 1), ErrPastHorizon)
	assert.Equal(t, int64(3), s.Clock().Current())
	assert.Len(t, s.Report(), keys)
}

func TestRunPropagatesDataErrors(t *testing.T) {
	providers := testutil.DefaultProviders()
	providers["angina_incidence"] = func(model.SimulantContext) (model.Rate, error) {
		return model.AnnualHazard(-1), nil
	}
	s := newSim(t, 10, config(1), providers)

	err := s.Run(context.Background(), 1)
	require.Error(t, err)
	var de *engine.DataError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, engine.ErrCodeNegativeRate, de.Code)
}

func TestAging(t *testing.T) {
	s := newSim(t, 5, config(1), testutil.DefaultProviders())
	age, err := s.Table().FloatColumn(population.ColumnAge)
	require.NoError(t, err)
	before := append([]float64(nil), age...)

	require.NoError(t, s.Run(context.Background(), 52))
	for i := range age {
		assert.InDelta(t, before[i]+52*7/365.25, age[i], 1e-9)
	}
}

func TestPrevalenceValidation(t *testing.T) {
	cat := testutil.Catalogue(t, testutil.DefaultProviders())
	tbl := testutil.Population(t, 5, 1)

	cfg := config(1)
	cfg.Prevalence = map[string][]StateShare{"unknown_disease": {{State: "x", Share: 0.1}}}
	_, err := New(cat, tbl, cfg)
	assert.True(t, model.IsConfigError(err))

	cfg.Prevalence = map[string][]StateShare{testutil.IHDModel: {{State: testutil.Angina, Share: 0.7}, {State: testutil.PostMI, Share: 0.7}}}
	_, err = New(cat, tbl, cfg)
	assert.True(t, model.IsConfigError(err))
}

func TestPrevalenceShares(t *testing.T) {
	cfg := config(8)
	cfg.Prevalence = map[string][]StateShare{testutil.IHDModel: {{State: testutil.Angina, Share: 0.3}}}
	s := newSim(t, 2000, cfg, testutil.DefaultProviders())
	require.NoError(t, s.Initialize())

	states, err := s.Table().StringColumn(testutil.IHDModel)
	require.NoError(t, err)
	angina := 0
	for _, st := range states {
		if st == testutil.Angina {
			angina++
		}
	}
	assert.InDelta(t, 600, angina, 100)
}

func TestReportYears(t *testing.T) {
	assert.Equal(t, []int{2022}, ReportYears(testutil.Epoch, testutil.Week, 10))
	assert.Equal(t, []int{2022}, ReportYears(testutil.Epoch, testutil.Week, 52))
	assert.Equal(t, []int{2022, 2023}, ReportYears(testutil.Epoch, testutil.Week, 53))
}
