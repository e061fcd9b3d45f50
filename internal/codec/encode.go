package codec

import (
	"encoding/json"
	"fmt"

	"github.com/berkgaut/mnb/internal/spec"
	"github.com/berkgaut/mnb/internal/specerr"
)

// Encode renders a Spec to its canonical JSON wire form: optional keys
// are omitted when absent, empty inputs/outputs/build_args are omitted,
// and action/action-list order is preserved exactly as given.
func Encode(s spec.Spec) ([]byte, error) {
	raw := specWire{
		SpecVersion: fmt.Sprintf("%d.%d", s.SpecVersion.Major, s.SpecVersion.Minor),
		Description: s.Description,
		Actions:     []*actionWire{},
	}
	for _, action := range s.Actions {
		aw, err := encodeAction(action)
		if err != nil {
			return nil, err
		}
		raw.Actions = append(raw.Actions, aw)
	}
	return json.Marshal(raw)
}

func encodeAction(action spec.Action) (*actionWire, error) {
	switch a := action.(type) {
	case *spec.PullImage:
		return &actionWire{PullImage: &pullImageWire{ImageName: a.ImageName}}, nil

	case *spec.BuildImage:
		bw := &buildImageWire{
			ImageName:      a.ImageName,
			ContextPath:    a.ContextPath,
			DockerfilePath: a.DockerfilePath,
			ExtraTags:      a.ExtraTags,
		}
		for _, ba := range a.BuildArgs {
			bw.BuildArgs = append(bw.BuildArgs, &buildArgWire{Name: ba.Name, Value: ba.Value})
		}
		if a.FromGit != nil {
			bw.FromGit = &fromGitWire{Repo: a.FromGit.Repo, Rev: a.FromGit.Rev}
		}
		return &actionWire{BuildImage: bw}, nil

	case *spec.Exec:
		ew := &execWire{
			ImageName:  a.ImageName,
			Command:    a.Command,
			Entrypoint: a.Entrypoint,
			Workdir:    a.Workdir,
		}
		for _, in := range a.Inputs {
			iw, err := encodeInput(in)
			if err != nil {
				return nil, err
			}
			ew.Inputs = append(ew.Inputs, iw)
		}
		for _, out := range a.Outputs {
			ow, err := encodeOutput(out)
			if err != nil {
				return nil, err
			}
			ew.Outputs = append(ew.Outputs, ow)
		}
		return &actionWire{Exec: ew}, nil

	default:
		return nil, &specerr.ParseError{Msg: fmt.Sprintf("unknown action type %T", action)}
	}
}

func encodeValue(v spec.Value) (*valueWire, error) {
	switch v.Kind {
	case spec.KindFile:
		return &valueWire{File: &pathWire{Path: v.Path}}, nil
	case spec.KindDir:
		return &valueWire{Dir: &pathWire{Path: v.Path}}, nil
	default:
		return nil, &specerr.ParseError{Msg: "unknown value kind"}
	}
}

func encodeInput(in spec.Input) (*ioWire, error) {
	vw, err := encodeValue(in.Value)
	if err != nil {
		return nil, err
	}
	tw, err := encodeThrough(in.Through)
	if err != nil {
		return nil, err
	}
	return &ioWire{Value: vw, Through: tw}, nil
}

func encodeOutput(out spec.Output) (*ioWire, error) {
	vw, err := encodeValue(out.Value)
	if err != nil {
		return nil, err
	}
	tw, err := encodeThrough(out.Through)
	if err != nil {
		return nil, err
	}
	return &ioWire{Value: vw, Through: tw}, nil
}

func encodeThrough(t spec.Through) (*throughWire, error) {
	switch t.Kind {
	case spec.ThroughFile:
		return &throughWire{File: &pathWire{Path: t.Path}}, nil
	case spec.ThroughDir:
		return &throughWire{Dir: &pathWire{Path: t.Path}}, nil
	case spec.ThroughEnvironment:
		return &throughWire{Environment: &envWire{Name: t.Name}}, nil
	case spec.ThroughStdin:
		return &throughWire{Stream: &streamWire{Name: "STDIN"}}, nil
	case spec.ThroughStdout:
		return &throughWire{Stream: &streamWire{Name: "STDOUT"}}, nil
	case spec.ThroughStderr:
		return &throughWire{Stream: &streamWire{Name: "STDERR"}}, nil
	default:
		return nil, &specerr.ParseError{Msg: "unknown through kind"}
	}
}
