package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/cvdsim/internal/model"
	"github.com/roach88/cvdsim/internal/population"
	"github.com/roach88/cvdsim/internal/rates"
)

// Stroke state IDs.
const (
	StrokeModel       = "ischemic_stroke"
	StrokeSusceptible = "susceptible_to_ischemic_stroke"
	StrokeAcute       = "acute_ischemic_stroke"
	StrokeChronic     = "chronic_ischemic_stroke"
)

// Ischemic heart disease state IDs.
const (
	IHDModel       = "ischemic_heart_disease"
	IHDSusceptible = "susceptible_to_ischemic_heart_disease"
	AcuteMI        = "acute_myocardial_infarction"
	PostMI         = "post_myocardial_infarction"
	Angina         = "angina"
)

// AcuteDwell is the minimum time in an acute state.
const AcuteDwell = 28 * Day

// StrokeDefinition is the three-state ischemic stroke model. Rate
// transitions use the providers stroke_incidence and stroke_recurrence.
func StrokeDefinition() model.Definition {
	return model.Definition{
		Name:        StrokeModel,
		Susceptible: StrokeSusceptible,
		States: []model.StateDef{
			{ID: StrokeSusceptible, CauseType: model.CauseTypeCause},
			{ID: StrokeAcute, CauseType: model.CauseTypeSequela, Dwell: AcuteDwell},
			{ID: StrokeChronic, CauseType: model.CauseTypeSequela},
		},
		Transitions: []model.TransitionDef{
			{From: StrokeSusceptible, To: StrokeSusceptible, Kind: model.KindSelf},
			{From: StrokeSusceptible, To: StrokeAcute, Kind: model.KindRate, Provider: "stroke_incidence"},
			{From: StrokeAcute, To: StrokeAcute, Kind: model.KindSelf},
			{From: StrokeAcute, To: StrokeChronic, Kind: model.KindDwell},
			{From: StrokeChronic, To: StrokeChronic, Kind: model.KindSelf},
			{From: StrokeChronic, To: StrokeAcute, Kind: model.KindRate, Provider: "stroke_recurrence"},
		},
	}
}

// IHDDefinition is the four-state ischemic heart disease model, with
// angina competing with acute MI out of the susceptible state. Rate
// transitions use mi_incidence, angina_incidence and mi_recurrence.
func IHDDefinition() model.Definition {
	return model.Definition{
		Name:        IHDModel,
		Susceptible: IHDSusceptible,
		States: []model.StateDef{
			{ID: IHDSusceptible, CauseType: model.CauseTypeCause},
			{ID: AcuteMI, CauseType: model.CauseTypeCause, Dwell: AcuteDwell},
			{ID: PostMI, CauseType: model.CauseTypeCause},
			{ID: Angina, CauseType: model.CauseTypeSequela},
		},
		Transitions: []model.TransitionDef{
			{From: IHDSusceptible, To: IHDSusceptible, Kind: model.KindSelf},
			{From: IHDSusceptible, To: AcuteMI, Kind: model.KindRate, Provider: "mi_incidence"},
			{From: IHDSusceptible, To: Angina, Kind: model.KindRate, Provider: "angina_incidence"},
			{From: AcuteMI, To: AcuteMI, Kind: model.KindSelf},
			{From: AcuteMI, To: PostMI, Kind: model.KindDwell},
			{From: PostMI, To: PostMI, Kind: model.KindSelf},
			{From: PostMI, To: AcuteMI, Kind: model.KindRate, Provider: "mi_recurrence"},
			{From: Angina, To: Angina, Kind: model.KindSelf},
		},
	}
}

// Hazards builds a provider set of constant annual hazards.
func Hazards(values map[string]float64) model.ProviderSet {
	set := make(model.ProviderSet, len(values))
	for name, v := range values {
		set[name] = rates.Constant(model.AnnualHazard(v))
	}
	return set
}

// DefaultProviders gives every provider used by StrokeDefinition and
// IHDDefinition a constant annual hazard.
func DefaultProviders() model.ProviderSet {
	return Hazards(map[string]float64{
		"stroke_incidence":  0.05,
		"stroke_recurrence": 0.1,
		"mi_incidence":      0.08,
		"angina_incidence":  0.04,
		"mi_recurrence":     0.12,
	})
}

// Catalogue builds the stroke and IHD models with providers.
func Catalogue(t *testing.T, providers model.ProviderSet) *model.Catalogue {
	t.Helper()
	stroke, err := model.Build(StrokeDefinition(), providers)
	require.NoError(t, err)
	ihd, err := model.Build(IHDDefinition(), providers)
	require.NoError(t, err)
	cat, err := model.NewCatalogue(stroke, ihd)
	require.NoError(t, err)
	return cat
}

// PopulationConfig is an adult population with the four metabolic
// exposures used by the default stratification.
func PopulationConfig(n int) population.Config {
	return population.Config{
		Size:      n,
		AgeStart:  30,
		AgeEnd:    95,
		MaleShare: 0.5,
		Exposures: []population.Exposure{
			{Column: "sbp", Mean: 135, SD: 18},
			{Column: "ldl", Mean: 3.5, SD: 1.2},
			{Column: "fpg", Mean: 5.8, SD: 1.4},
			{Column: "bmi", Mean: 27, SD: 5},
		},
	}
}

// Population generates PopulationConfig(n) from seed.
func Population(t *testing.T, n int, seed uint64) *population.Table {
	t.Helper()
	tbl, err := population.Generate(PopulationConfig(n), seed)
	require.NoError(t, err)
	return tbl
}
