package compiler

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/cvdsim/internal/model"
	"github.com/roach88/cvdsim/internal/rates"
)

// Result holds every disease and rate declared in a CUE value, sorted by
// name.
type Result struct {
	Diseases []model.Definition
	Rates    []rates.Spec
}

// Compile extracts all `disease` and `rate` blocks from a CUE value.
// Compile and validation errors are collected, not fail-fast; a
// non-empty error slice means the result is incomplete.
func Compile(v cue.Value) (*Result, []error) {
	if err := v.Err(); err != nil {
		return nil, []error{formatCUEError(err)}
	}

	var errs []error
	result := &Result{}

	if diseasesVal := v.LookupPath(cue.ParsePath("disease")); diseasesVal.Exists() {
		iter, err := diseasesVal.Fields()
		if err != nil {
			errs = append(errs, formatCUEError(err))
		} else {
			for iter.Next() {
				def, err := CompileDisease(iter.Value())
				if err != nil {
					errs = append(errs, fmt.Errorf("disease.%s: %w", iter.Label(), err))
					continue
				}
				if verrs := Validate(def); len(verrs) > 0 {
					for _, ve := range verrs {
						errs = append(errs, fmt.Errorf("disease.%s: %w", iter.Label(), ve))
					}
					continue
				}
				result.Diseases = append(result.Diseases, *def)
			}
		}
	}

	if ratesVal := v.LookupPath(cue.ParsePath("rate")); ratesVal.Exists() {
		iter, err := ratesVal.Fields()
		if err != nil {
			errs = append(errs, formatCUEError(err))
		} else {
			for iter.Next() {
				spec, err := CompileRate(iter.Value())
				if err != nil {
					errs = append(errs, fmt.Errorf("rate.%s: %w", iter.Label(), err))
					continue
				}
				if verrs := Validate(spec); len(verrs) > 0 {
					for _, ve := range verrs {
						errs = append(errs, fmt.Errorf("rate.%s: %w", iter.Label(), ve))
					}
					continue
				}
				result.Rates = append(result.Rates, *spec)
			}
		}
	}

	if len(result.Diseases) == 0 && len(errs) == 0 {
		errs = append(errs, &CompileError{Field: "disease", Message: "no disease models found"})
	}

	sort.Slice(result.Diseases, func(i, j int) bool { return result.Diseases[i].Name < result.Diseases[j].Name })
	sort.Slice(result.Rates, func(i, j int) bool { return result.Rates[i].Name < result.Rates[j].Name })
	return result, errs
}

// Build resolves rates into providers and builds the catalogue. All
// configuration errors are joined.
func (r *Result) Build() (*model.Catalogue, error) {
	providers, err := rates.Build(r.Rates)
	if err != nil {
		return nil, err
	}

	var errs []error
	models := make([]*model.DiseaseModel, 0, len(r.Diseases))
	for _, def := range r.Diseases {
		m, err := model.Build(def, providers)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		models = append(models, m)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return model.NewCatalogue(models...)
}

// Hash is the content hash of every disease and rate in the result.
func (r *Result) Hash() (string, error) {
	return model.Hash(r.Diseases, map[string]any{"rates": rates.CanonicalSet(r.Rates)})
}

// LoadDir loads the CUE package in dir and returns its value.
func LoadDir(dir string) (cue.Value, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return cue.Value{}, err
	}
	if !info.IsDir() {
		return cue.Value{}, fmt.Errorf("not a directory: %s", dir)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return cue.Value{}, errors.New("no CUE instances loaded")
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, fmt.Errorf("loading CUE files: %w", inst.Err)
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("building CUE value: %w", formatCUEError(err))
	}
	return value, nil
}

// CompileDir loads, compiles and builds the models in dir. The returned
// hash identifies the compiled content.
func CompileDir(dir string) (*Result, *model.Catalogue, string, error) {
	value, err := LoadDir(dir)
	if err != nil {
		return nil, nil, "", err
	}
	result, errs := Compile(value)
	if len(errs) > 0 {
		return nil, nil, "", errors.Join(errs...)
	}
	cat, err := result.Build()
	if err != nil {
		return nil, nil, "", err
	}
	hash, err := result.Hash()
	if err != nil {
		return nil, nil, "", err
	}
	return result, cat, hash, nil
}

// CompileError is a compile failure with its CUE source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := cueerrors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
