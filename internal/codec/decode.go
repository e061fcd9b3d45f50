package codec

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/berkgaut/mnb/internal/spec"
	"github.com/berkgaut/mnb/internal/specerr"
)

// SupportedSpecVersion is the highest spec_version this implementation
// understands. A document naming a greater major, or the same major
// with a greater minor, is rejected with UnsupportedSpecVersion rather
// than silently parsed and executed against semantics it may not
// match.
var SupportedSpecVersion = spec.Version{Major: 1, Minor: 0}

// Decode parses JSON bytes into a Spec, performing schema validation:
// every action/value/through must dispatch on exactly one recognized
// tag, and the required image_name, context_path, build_args name,
// from_git repo/rev and environment name fields must be present. A shape
// violation yields a *specerr.ParseError carrying the offending
// fragment; a spec_version above SupportedSpecVersion yields
// *specerr.UnsupportedSpecVersion, and a dir through on an output
// yields *specerr.UnsupportedOutputThrough. A missing or empty path in
// a value or in a file/dir through is not rejected.
func Decode(data []byte) (spec.Spec, error) {
	var raw specWire
	if err := json.Unmarshal(data, &raw); err != nil {
		return spec.Spec{}, &specerr.ParseError{Msg: "invalid JSON", Fragment: err.Error()}
	}

	version, err := parseVersion(raw.SpecVersion)
	if err != nil {
		return spec.Spec{}, err
	}

	var actions []spec.Action
	for _, aw := range raw.Actions {
		action, err := decodeAction(aw)
		if err != nil {
			return spec.Spec{}, err
		}
		actions = append(actions, action)
	}

	return spec.Spec{
		SpecVersion: version,
		Description: raw.Description,
		Actions:     actions,
	}, nil
}

func parseVersion(s string) (spec.Version, error) {
	parts := strings.SplitN(s, ".", 2)
	if len(parts) != 2 {
		return spec.Version{}, &specerr.ParseError{Msg: "invalid spec_version", Fragment: s}
	}
	major, err1 := strconv.Atoi(parts[0])
	minor, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || major < 0 || minor < 0 {
		return spec.Version{}, &specerr.ParseError{Msg: "invalid spec_version", Fragment: s}
	}
	if major > SupportedSpecVersion.Major || (major == SupportedSpecVersion.Major && minor > SupportedSpecVersion.Minor) {
		return spec.Version{}, &specerr.UnsupportedSpecVersion{Major: major, Minor: minor}
	}
	return spec.Version{Major: major, Minor: minor}, nil
}

func decodeAction(aw *actionWire) (spec.Action, error) {
	if aw == nil {
		return nil, &specerr.ParseError{Msg: "null action"}
	}

	present := 0
	if aw.PullImage != nil {
		present++
	}
	if aw.BuildImage != nil {
		present++
	}
	if aw.Exec != nil {
		present++
	}
	if present != 1 {
		return nil, &specerr.ParseError{Msg: fmt.Sprintf("action must have exactly one of pull_image, build_image, exec (got %d)", present)}
	}

	switch {
	case aw.PullImage != nil:
		if aw.PullImage.ImageName == "" {
			return nil, &specerr.ParseError{Msg: "pull_image.image_name is required"}
		}
		return &spec.PullImage{ImageName: aw.PullImage.ImageName}, nil

	case aw.BuildImage != nil:
		bw := aw.BuildImage
		if bw.ImageName == "" || bw.ContextPath == "" {
			return nil, &specerr.ParseError{Msg: "build_image.image_name and context_path are required"}
		}
		var buildArgs []spec.BuildArg
		for _, ba := range bw.BuildArgs {
			if ba == nil || ba.Name == "" {
				return nil, &specerr.ParseError{Msg: "invalid build_args entry"}
			}
			buildArgs = append(buildArgs, spec.BuildArg{Name: ba.Name, Value: ba.Value})
		}
		var fromGit *spec.FromGit
		if bw.FromGit != nil {
			if bw.FromGit.Repo == "" || bw.FromGit.Rev == "" {
				return nil, &specerr.ParseError{Msg: "from_git.repo and rev are required"}
			}
			fromGit = &spec.FromGit{Repo: bw.FromGit.Repo, Rev: bw.FromGit.Rev}
		}
		return &spec.BuildImage{
			ImageName:      bw.ImageName,
			ContextPath:    bw.ContextPath,
			DockerfilePath: bw.DockerfilePath,
			BuildArgs:      buildArgs,
			FromGit:        fromGit,
			ExtraTags:      bw.ExtraTags,
		}, nil

	default: // aw.Exec != nil
		ew := aw.Exec
		if ew.ImageName == "" {
			return nil, &specerr.ParseError{Msg: "exec.image_name is required"}
		}
		var inputs []spec.Input
		for _, iw := range ew.Inputs {
			in, err := decodeInput(iw)
			if err != nil {
				return nil, err
			}
			inputs = append(inputs, in)
		}
		var outputs []spec.Output
		for _, ow := range ew.Outputs {
			out, err := decodeOutput(ow)
			if err != nil {
				return nil, err
			}
			outputs = append(outputs, out)
		}
		return &spec.Exec{
			ImageName:  ew.ImageName,
			Command:    ew.Command,
			Entrypoint: ew.Entrypoint,
			Workdir:    ew.Workdir,
			Inputs:     inputs,
			Outputs:    outputs,
		}, nil
	}
}

func decodeValue(vw *valueWire) (spec.Value, error) {
	if vw == nil {
		return spec.Value{}, &specerr.ParseError{Msg: "missing value"}
	}
	present := 0
	if vw.File != nil {
		present++
	}
	if vw.Dir != nil {
		present++
	}
	if present != 1 {
		return spec.Value{}, &specerr.ParseError{Msg: "value must have exactly one of file, dir"}
	}
	if vw.File != nil {
		return spec.File(vw.File.Path), nil
	}
	return spec.Dir(vw.Dir.Path), nil
}

func decodeInput(iw *ioWire) (spec.Input, error) {
	if iw == nil || iw.Through == nil {
		return spec.Input{}, &specerr.ParseError{Msg: "input missing value/through"}
	}
	value, err := decodeValue(iw.Value)
	if err != nil {
		return spec.Input{}, err
	}
	tw := iw.Through
	present := countThroughKeys(tw)
	if present != 1 {
		return spec.Input{}, &specerr.ParseError{Msg: "input through must have exactly one tag"}
	}
	switch {
	case tw.File != nil:
		return spec.Input{Value: value, Through: spec.ThroughFileAt(tw.File.Path)}, nil
	case tw.Dir != nil:
		return spec.Input{Value: value, Through: spec.ThroughDirAt(tw.Dir.Path)}, nil
	case tw.Environment != nil:
		if tw.Environment.Name == "" {
			return spec.Input{}, &specerr.ParseError{Msg: "environment.name is required"}
		}
		return spec.Input{Value: value, Through: spec.ThroughEnvironmentNamed(tw.Environment.Name)}, nil
	case tw.Stream != nil:
		if tw.Stream.Name != "STDIN" {
			return spec.Input{}, &specerr.ParseError{Msg: "invalid input stream name", Fragment: tw.Stream.Name}
		}
		return spec.Input{Value: value, Through: spec.ThroughStdinValue()}, nil
	default:
		return spec.Input{}, &specerr.ParseError{Msg: "invalid input through"}
	}
}

func decodeOutput(ow *ioWire) (spec.Output, error) {
	if ow == nil || ow.Through == nil {
		return spec.Output{}, &specerr.ParseError{Msg: "output missing value/through"}
	}
	value, err := decodeValue(ow.Value)
	if err != nil {
		return spec.Output{}, err
	}
	tw := ow.Through
	present := countThroughKeys(tw)
	if present != 1 {
		return spec.Output{}, &specerr.ParseError{Msg: "output through must have exactly one tag"}
	}
	switch {
	case tw.File != nil:
		return spec.Output{Value: value, Through: spec.ThroughFileAt(tw.File.Path)}, nil
	case tw.Dir != nil:
		// Dir outputs are never implementable; reject at parse time
		// rather than propagating to the executor.
		return spec.Output{}, &specerr.UnsupportedOutputThrough{Detail: "dir output through is not implemented"}
	case tw.Environment != nil:
		return spec.Output{}, &specerr.ParseError{Msg: "environment through is not valid for outputs"}
	case tw.Stream != nil:
		switch tw.Stream.Name {
		case "STDOUT":
			return spec.Output{Value: value, Through: spec.ThroughStdoutValue()}, nil
		case "STDERR":
			return spec.Output{Value: value, Through: spec.ThroughStderrValue()}, nil
		default:
			return spec.Output{}, &specerr.ParseError{Msg: "invalid output stream name", Fragment: tw.Stream.Name}
		}
	default:
		return spec.Output{}, &specerr.ParseError{Msg: "invalid output through"}
	}
}

func countThroughKeys(tw *throughWire) int {
	n := 0
	if tw.File != nil {
		n++
	}
	if tw.Dir != nil {
		n++
	}
	if tw.Environment != nil {
		n++
	}
	if tw.Stream != nil {
		n++
	}
	return n
}
