// Package planner builds the value/producer dependency graph over a
// Spec's actions and returns a valid topological execution order,
// enforcing the data model's invariants along the way. It is the Go
// analogue of the Python predecessor's toposort_actions in
// mnb-main/mnb/plan.py, rebuilt against this repo's data model.
package planner

import (
	"fmt"

	"github.com/berkgaut/mnb/internal/spec"
	"github.com/berkgaut/mnb/internal/specerr"
	"github.com/samber/lo"
)

// valueKey identifies a File/Dir value by kind+path: each output value
// (keyed by kind+path) has at most one producer.
type valueKey struct {
	kind spec.ValueKind
	path string
}

func keyOf(v spec.Value) valueKey { return valueKey{kind: v.Kind, path: v.Path} }

// Plan builds the dependency graph and returns a topologically sorted
// action list: every consumer of a value appears after that value's
// producer. It raises the named *specerr errors for any invariant
// violation in the data model.
func Plan(s spec.Spec) ([]spec.Action, error) {
	imageProducers := map[string]spec.Action{}
	valueProducers := map[valueKey]spec.Action{}

	// Pass 1: collect producers (images and output values).
	for _, action := range s.Actions {
		switch a := action.(type) {
		case *spec.PullImage:
			if err := registerImageProducer(imageProducers, a.ImageName, action); err != nil {
				return nil, err
			}
		case *spec.BuildImage:
			if err := registerImageProducer(imageProducers, a.ImageName, action); err != nil {
				return nil, err
			}
		case *spec.Exec:
			if err := validateExecIO(a); err != nil {
				return nil, err
			}
			for _, out := range a.Outputs {
				key := keyOf(out.Value)
				if prev, exists := valueProducers[key]; exists && prev != action {
					return nil, &specerr.ProducerConflict{ValueDescription: describeValue(out.Value)}
				}
				valueProducers[key] = action
			}
		}
	}

	// Pass 2: build dependency edges (predecessor -> consumer).
	dependents := map[spec.Action][]spec.Action{} // predecessor -> consumers depending on it
	inDegree := map[spec.Action]int{}
	for _, action := range s.Actions {
		inDegree[action] = 0
	}

	addEdge := func(predecessor, consumer spec.Action) {
		dependents[predecessor] = append(dependents[predecessor], consumer)
		inDegree[consumer]++
	}

	for _, action := range s.Actions {
		exec, ok := action.(*spec.Exec)
		if !ok {
			continue
		}
		imgProducer, ok := imageProducers[exec.ImageName]
		if !ok {
			return nil, &specerr.MissingImageSpec{ImageName: exec.ImageName}
		}
		addEdge(imgProducer, action)

		for _, in := range exec.Inputs {
			// Every input's value is a File or Dir (Value has no stdin/
			// stdout variant); the edge is keyed on the value, not on
			// through, so a stdin-through input depends on its value's
			// producer exactly like a file/dir/environment-through one.
			if producer, exists := valueProducers[keyOf(in.Value)]; exists {
				addEdge(producer, action)
			}
			// an external (producer-less) value is a leaf dependency and
			// imposes no ordering.
		}
	}

	return topoSort(s.Actions, dependents, inDegree)
}

func registerImageProducer(producers map[string]spec.Action, imageName string, action spec.Action) error {
	if prev, exists := producers[imageName]; exists && prev != action {
		return &specerr.ImageSpecConflict{ImageName: imageName}
	}
	producers[imageName] = action
	return nil
}

// validateExecIO enforces the per-Exec invariants that do not depend on
// cross-action graph structure: no two file/dir inputs sharing a mount
// path, no two inputs sharing an environment name, and value/through
// kind compatibility.
func validateExecIO(a *spec.Exec) error {
	seenMounts := map[string]bool{}
	seenEnv := map[string]bool{}

	for _, in := range a.Inputs {
		if err := checkValueThroughCompatible(in.Value, in.Through); err != nil {
			return err
		}
		switch in.Through.Kind {
		case spec.ThroughFile, spec.ThroughDir:
			if seenMounts[in.Through.Path] {
				return &specerr.ConflictingMounts{Path: in.Through.Path}
			}
			seenMounts[in.Through.Path] = true
		case spec.ThroughEnvironment:
			if seenEnv[in.Through.Name] {
				return &specerr.ConflictingEnvironmentAssignments{Name: in.Through.Name}
			}
			seenEnv[in.Through.Name] = true
		case spec.ThroughStdin:
			// stdin inputs may repeat; they are concatenated in order.
		default:
			return &specerr.IncompatibleValueAndThrough{Detail: "input through must be file, dir, environment or stdin"}
		}
	}

	for _, out := range a.Outputs {
		if err := checkValueThroughCompatible(out.Value, out.Through); err != nil {
			return err
		}
		switch out.Through.Kind {
		case spec.ThroughFile, spec.ThroughStdout, spec.ThroughStderr:
		default:
			return &specerr.IncompatibleValueAndThrough{Detail: "output through must be file, stdout or stderr"}
		}
	}

	return nil
}

func checkValueThroughCompatible(v spec.Value, t spec.Through) error {
	switch t.Kind {
	case spec.ThroughFile, spec.ThroughEnvironment, spec.ThroughStdin, spec.ThroughStdout, spec.ThroughStderr:
		if v.Kind != spec.KindFile {
			return &specerr.IncompatibleValueAndThrough{Detail: fmt.Sprintf("through expects a File value, got dir %q", v.Path)}
		}
	case spec.ThroughDir:
		if v.Kind != spec.KindDir {
			return &specerr.IncompatibleValueAndThrough{Detail: fmt.Sprintf("through expects a Dir value, got file %q", v.Path)}
		}
	}
	return nil
}

func describeValue(v spec.Value) string {
	kind := "file"
	if v.Kind == spec.KindDir {
		kind = "dir"
	}
	return fmt.Sprintf("%s(%s)", kind, v.Path)
}

// topoSort runs Kahn's algorithm over the dependency graph. The ready
// queue is seeded in original action order and newly ready actions are
// appended to its back, so the result is deterministic for a given
// input, though determinism is not strictly required.
func topoSort(actions []spec.Action, dependents map[spec.Action][]spec.Action, inDegree map[spec.Action]int) ([]spec.Action, error) {
	remaining := len(actions)
	ready := make([]spec.Action, 0, len(actions))
	for _, a := range actions {
		if inDegree[a] == 0 {
			ready = append(ready, a)
		}
	}

	result := make([]spec.Action, 0, len(actions))
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		result = append(result, next)
		remaining--

		for _, consumer := range dependents[next] {
			inDegree[consumer]--
			if inDegree[consumer] == 0 {
				ready = append(ready, consumer)
			}
		}
	}

	if remaining != 0 {
		stuck := lo.Filter(actions, func(a spec.Action, _ int) bool { return inDegree[a] > 0 })
		names := lo.Map(stuck, func(a spec.Action, _ int) string { return fmt.Sprintf("%T", a) })
		return nil, &specerr.CycleDetected{Remaining: names}
	}

	return result, nil
}
