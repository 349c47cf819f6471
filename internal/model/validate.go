package model

import "fmt"

// validate checks a definition against the structural rules of a disease
// model and returns every violation found, in a stable order.
func validate(def Definition, providers ProviderSet) []*ConfigError {
	var errs []*ConfigError
	add := func(code, field, format string, args ...any) {
		errs = append(errs, &ConfigError{
			Code:    code,
			Model:   def.Name,
			Field:   field,
			Message: fmt.Sprintf(format, args...),
		})
	}

	if def.Name == "" {
		add(ErrCodeModelName, "name", "model name is required")
	}

	declared := make(map[string]StateDef, len(def.States))
	for i, s := range def.States {
		field := fmt.Sprintf("states[%d]", i)
		if s.ID == "" {
			add(ErrCodeDuplicateState, field, "state ID is required")
			continue
		}
		if _, dup := declared[s.ID]; dup {
			add(ErrCodeDuplicateState, field, "duplicate state %q", s.ID)
			continue
		}
		declared[s.ID] = s
		if s.Dwell < 0 {
			add(ErrCodeNegativeDwell, field, "state %q has negative dwell time %s", s.ID, s.Dwell)
		}
	}

	switch {
	case def.Susceptible == "":
		add(ErrCodeSusceptible, "susceptible", "susceptible state is required")
	case !hasState(declared, def.Susceptible):
		add(ErrCodeSusceptible, "susceptible", "susceptible state %q is not declared", def.Susceptible)
	}

	selfCount := make(map[string]int, len(declared))
	dwellCount := make(map[string]int, len(declared))
	edges := make(map[pair]int)
	ids := make(map[string]pair)
	adjacent := make(map[string][]string)

	for i, t := range def.Transitions {
		field := fmt.Sprintf("transitions[%d]", i)
		label := fmt.Sprintf("%s -> %s", t.From, t.To)

		endpointsOK := true
		if !hasState(declared, t.From) {
			add(ErrCodeUndeclaredState, field, "transition %s: source state %q is not declared", label, t.From)
			endpointsOK = false
		}
		if !hasState(declared, t.To) {
			add(ErrCodeUndeclaredState, field, "transition %s: target state %q is not declared", label, t.To)
			endpointsOK = false
		}

		if !ValidKinds[t.Kind] {
			add(ErrCodeInvalidKind, field, "transition %s: unknown kind %q", label, t.Kind)
			continue
		}
		if t.Kind == KindSelf && t.From != t.To {
			add(ErrCodeInvalidKind, field, "self transition must start and end in the same state, got %s", label)
			continue
		}
		if t.Kind != KindSelf && t.From == t.To {
			add(ErrCodeInvalidKind, field, "%s transition %s must change state", t.Kind, label)
			continue
		}
		if t.Kind != KindRate && t.Provider != "" {
			add(ErrCodeInvalidKind, field, "%s transition %s cannot name a rate provider", t.Kind, label)
		}

		switch t.Kind {
		case KindRate:
			switch {
			case t.Provider == "":
				add(ErrCodeMissingProvider, field, "rate transition %s has no provider", label)
			case providers[t.Provider] == nil:
				add(ErrCodeMissingProvider, field, "rate transition %s: provider %q is not defined", label, t.Provider)
			}
		case KindDwell:
			if endpointsOK && declared[t.From].Dwell <= 0 {
				add(ErrCodeInvalidDwell, field, "dwell transition %s leaves state %q which has no dwell time", label, t.From)
			}
		}

		if !endpointsOK {
			continue
		}
		switch t.Kind {
		case KindSelf:
			selfCount[t.From]++
		case KindDwell:
			dwellCount[t.From]++
		}
		if t.Kind != KindSelf {
			p := pair{t.From, t.To}
			edges[p]++
			if edges[p] == 2 {
				add(ErrCodeDuplicateEdge, field, "more than one transition from %q to %q", t.From, t.To)
			}
			id := TransitionID(t.From, t.To)
			if prev, taken := ids[id]; taken && prev != p {
				add(ErrCodeDuplicateEdge, field, "transition %s has the same ID %q as %s -> %s", label, id, prev.from, prev.to)
			} else if !taken {
				ids[id] = p
			}
			adjacent[t.From] = append(adjacent[t.From], t.To)
		}
	}

	for _, s := range def.States {
		if _, ok := declared[s.ID]; !ok || s.ID == "" {
			continue
		}
		switch n := selfCount[s.ID]; {
		case n == 0:
			add(ErrCodeSelfTransition, "transitions", "state %q has no self transition", s.ID)
		case n > 1:
			add(ErrCodeSelfTransition, "transitions", "state %q has %d self transitions", s.ID, n)
		}
		if n := dwellCount[s.ID]; n > 1 {
			add(ErrCodeInvalidDwell, "transitions", "state %q has %d dwell transitions", s.ID, n)
		}
	}

	if hasState(declared, def.Susceptible) {
		reached := reachable(def.Susceptible, adjacent)
		seen := make(map[string]bool, len(def.States))
		for _, s := range def.States {
			if s.ID == "" || seen[s.ID] {
				continue
			}
			seen[s.ID] = true
			if !reached[s.ID] {
				add(ErrCodeUnreachable, "states", "state %q is not reachable from %q", s.ID, def.Susceptible)
			}
		}
	}

	return errs
}

func hasState(declared map[string]StateDef, id string) bool {
	if id == "" {
		return false
	}
	_, ok := declared[id]
	return ok
}

// reachable returns the set of states reachable from start, start included.
func reachable(start string, adjacent map[string][]string) map[string]bool {
	seen := map[string]bool{start: true}
	stack := []string{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range adjacent[cur] {
			if !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}
	return seen
}
