package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/token"

	"github.com/roach88/cvdsim/internal/compiler"
	"github.com/roach88/cvdsim/internal/model"
)

// LoadMode controls how errors are handled during model loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the results of loading models from a directory.
type LoadResult struct {
	Result    *compiler.Result
	Catalogue *model.Catalogue // nil unless every model compiled and built
	Hash      string
	CUEValue  cue.Value // The raw CUE value for additional processing
	FileCount int       // Number of CUE files found
}

// LoadError represents an error that occurred during model loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadModels loads, compiles and builds the CUE disease models and rates
// in a directory.
// If mode is LoadModeFailFast, returns on first error.
// If mode is LoadModeCollectAll, collects all errors.
// A nil result means nothing could be loaded at all.
func LoadModels(dir string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("models directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing models directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	value, err := compiler.LoadDir(dir)
	if err != nil {
		code := ErrCodeLoadFailed
		if strings.HasPrefix(err.Error(), "building") {
			code = ErrCodeBuildFailed
		}
		return nil, []error{loadError(code, err)}
	}

	result := &LoadResult{
		CUEValue:  value,
		FileCount: len(cueFiles),
	}

	compiled, compileErrs := compiler.Compile(value)
	result.Result = compiled
	if len(compileErrs) > 0 {
		errs := make([]error, 0, len(compileErrs))
		for _, e := range compileErrs {
			errs = append(errs, convertCompileError(e))
		}
		if mode == LoadModeFailFast {
			return result, errs[:1]
		}
		return result, errs
	}

	cat, err := compiled.Build()
	if err != nil {
		errs := convertConfigErrors(err)
		if mode == LoadModeFailFast {
			return result, errs[:1]
		}
		return result, errs
	}
	result.Catalogue = cat

	hash, err := compiled.Hash()
	if err != nil {
		return result, []error{loadError(ErrCodeGeneric, err)}
	}
	result.Hash = hash

	return result, nil
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func loadError(code string, err error) *LoadError {
	le := &LoadError{Code: code, Message: err.Error()}
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		le.Pos = compileErr.Pos
	}
	return le
}

// convertCompileError converts a compiler error to a LoadError with
// position info. Validation errors keep their own codes.
func convertCompileError(err error) *LoadError {
	var ve compiler.ValidationError
	if errors.As(err, &ve) {
		return &LoadError{Code: ve.Code, Message: err.Error()}
	}
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: err.Error(),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
}

// convertConfigErrors flattens model build errors into LoadErrors that
// carry the model's E2xx codes.
func convertConfigErrors(err error) []error {
	ces := model.ConfigErrors(err)
	if len(ces) == 0 {
		return []error{loadError(ErrCodeGeneric, err)}
	}
	out := make([]error, len(ces))
	for i, ce := range ces {
		out[i] = &LoadError{Code: ce.Code, Message: ce.Error()}
	}
	return out
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeConfig      = "E008" // Run configuration invalid
	ErrCodeStore       = "E009" // Database error
	ErrCodeSimulation  = "E010" // Simulation aborted
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch field {
	case "kind":
		return compiler.ErrInvalidKind
	case "cause_type":
		return compiler.ErrInvalidCauseType
	case "dwell_days":
		return compiler.ErrNegativeDwell
	case "rate":
		return compiler.ErrRateReference
	case "rows":
		return compiler.ErrEmptyTable
	case "per_days":
		return compiler.ErrInvalidPer
	case "start", "end":
		return compiler.ErrInvalidScaleUp
	default:
		return ErrCodeGeneric
	}
}
