// Package codec implements the bit-exact JSON wire format for mnb specs:
// schema validation and tagged-union dispatch on decode, deterministic
// field omission on encode. It is a hand-rolled
// decoder/encoder rather than a generic JSON-schema validator, because
// the wire format's tagged-union semantics (exactly one of several keys
// present, per action/value/through) are not something a generic
// validator enforces any more precisely than explicit Go code does; see
// DESIGN.md.
package codec

import "encoding/json"

// specWire is the top-level JSON document shape.
type specWire struct {
	SpecVersion string        `json:"spec_version"`
	Description string        `json:"description,omitempty"`
	Actions     []*actionWire `json:"actions"`
}

// actionWire is the tagged union {"pull_image":...} | {"build_image":...} | {"exec":...}.
type actionWire struct {
	PullImage  *pullImageWire  `json:"pull_image,omitempty"`
	BuildImage *buildImageWire `json:"build_image,omitempty"`
	Exec       *execWire       `json:"exec,omitempty"`
}

type pullImageWire struct {
	ImageName string `json:"image_name"`
}

type buildArgWire struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type fromGitWire struct {
	Repo string `json:"repo"`
	Rev  string `json:"rev"`
}

type buildImageWire struct {
	ImageName      string          `json:"image_name"`
	ContextPath    string          `json:"context_path"`
	DockerfilePath string          `json:"dockerfile_path,omitempty"`
	BuildArgs      []*buildArgWire `json:"build_args,omitempty"`
	FromGit        *fromGitWire    `json:"from_git,omitempty"`
	ExtraTags      []string        `json:"extra_tags,omitempty"`
}

type execWire struct {
	ImageName  string        `json:"image_name"`
	Command    []string      `json:"command,omitempty"`
	Entrypoint string        `json:"entrypoint,omitempty"`
	Workdir    string        `json:"workdir,omitempty"`
	Inputs     []*ioWire     `json:"inputs,omitempty"`
	Outputs    []*ioWire     `json:"outputs,omitempty"`
}

// ioWire is shared shape for both inputs[] and outputs[] entries; which
// through tags are legal depends on direction and is enforced by the
// decoder, not by distinct Go types, matching parse_input/parse_output
// in the Python predecessor which share the same JSON shape.
type ioWire struct {
	Value   *valueWire   `json:"value"`
	Through *throughWire `json:"through"`
}

type valueWire struct {
	File *pathWire `json:"file,omitempty"`
	Dir  *pathWire `json:"dir,omitempty"`
}

type pathWire struct {
	Path string `json:"path"`
}

type throughWire struct {
	File        *pathWire   `json:"file,omitempty"`
	Dir         *pathWire   `json:"dir,omitempty"`
	Environment *envWire    `json:"environment,omitempty"`
	Stream      *streamWire `json:"stream,omitempty"`
}

type envWire struct {
	Name string `json:"name"`
}

type streamWire struct {
	Name string `json:"name"`
}

// rawAction is a key-to-raw-value view of a JSON action object. The
// decoder does not use it: decodeAction enforces the "sole key"
// tagged-union invariant by counting the non-nil fields of actionWire.
type rawAction map[string]json.RawMessage
