package model

import (
	"errors"
	"fmt"
)

// Catalogue is an explicit lookup table of disease models by name.
// Models keep their registration order.
type Catalogue struct {
	models []*DiseaseModel
	byName map[string]*DiseaseModel
	owner  map[string]string // state ID -> model name
}

// NewCatalogue builds a catalogue, rejecting duplicate model names and
// states or transition IDs shared between models.
func NewCatalogue(models ...*DiseaseModel) (*Catalogue, error) {
	c := &Catalogue{
		byName: make(map[string]*DiseaseModel, len(models)),
		owner:  make(map[string]string),
	}
	transitions := make(map[string]string) // transition ID -> model name
	var errs []error
	for _, m := range models {
		if _, dup := c.byName[m.Name()]; dup {
			errs = append(errs, &ConfigError{
				Code:    ErrCodeCatalogue,
				Model:   m.Name(),
				Message: "duplicate model name",
			})
			continue
		}
		for _, id := range m.StateIDs() {
			if other, shared := c.owner[id]; shared {
				errs = append(errs, &ConfigError{
					Code:    ErrCodeCatalogue,
					Model:   m.Name(),
					Field:   "states",
					Message: fmt.Sprintf("state %q is already declared by model %q", id, other),
				})
				continue
			}
			c.owner[id] = m.Name()
		}
		for _, t := range m.EventTransitions() {
			if other, shared := transitions[t.ID]; shared && other != m.Name() {
				errs = append(errs, &ConfigError{
					Code:    ErrCodeDuplicateEdge,
					Model:   m.Name(),
					Field:   "transitions",
					Message: fmt.Sprintf("transition ID %q is already used by model %q", t.ID, other),
				})
				continue
			}
			transitions[t.ID] = m.Name()
		}
		c.byName[m.Name()] = m
		c.models = append(c.models, m)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return c, nil
}

// Model returns the model registered under name.
func (c *Catalogue) Model(name string) (*DiseaseModel, error) {
	m, ok := c.byName[name]
	if !ok {
		return nil, &ConfigError{
			Code:    ErrCodeUnknownModel,
			Model:   name,
			Message: "model is not in the catalogue",
		}
	}
	return m, nil
}

// Models returns the models in registration order.
func (c *Catalogue) Models() []*DiseaseModel {
	return append([]*DiseaseModel(nil), c.models...)
}

// Names returns the model names in registration order.
func (c *Catalogue) Names() []string {
	names := make([]string, len(c.models))
	for i, m := range c.models {
		names[i] = m.Name()
	}
	return names
}

// Len returns the number of models.
func (c *Catalogue) Len() int { return len(c.models) }
