// Package spec is the in-memory representation of an mnb specification:
// an ordered list of actions plus the values they produce and consume.
// It has no behavior beyond construction; validation and ordering belong
// to the planner, execution belongs to the executor.
package spec

// Version is the (major, minor) pair parsed from the wire "spec_version"
// string, e.g. "1.0" -> Version{Major: 1, Minor: 0}.
type Version struct {
	Major int
	Minor int
}

// Spec is the top-level document.
type Spec struct {
	SpecVersion Version
	Description string
	Actions     []Action
}

// Action is a tagged variant: exactly one of PullImage, BuildImage, Exec
// is non-nil for a given action in practice, but we model it as an
// interface so the planner and executor dispatch exhaustively on the
// concrete type rather than on a discriminant field.
type Action interface {
	isAction()
}

// PullImage pulls image_name from a registry.
type PullImage struct {
	ImageName string
}

func (*PullImage) isAction() {}

// BuildArg is one name/value pair of an ordered build_args mapping.
type BuildArg struct {
	Name  string
	Value string
}

// FromGit names a git repository and revision to build from.
type FromGit struct {
	Repo string
	Rev  string
}

// BuildImage builds image_name from a context directory, optionally
// checked out from a git repository first.
type BuildImage struct {
	ImageName      string
	ContextPath    string
	DockerfilePath string // empty if absent
	BuildArgs      []BuildArg
	FromGit        *FromGit // nil if absent
	ExtraTags      []string
}

func (*BuildImage) isAction() {}

// Exec runs a container from an image with declared inputs and outputs.
type Exec struct {
	ImageName  string
	Command    []string // nil if absent
	Entrypoint string   // empty if absent
	Workdir    string   // empty if absent
	Inputs     []Input
	Outputs    []Output
}

func (*Exec) isAction() {}

// ValueKind distinguishes File and Dir values. Image values never
// appear explicitly; an Exec's ImageName is an implicit image-kind
// value handled separately by the planner.
type ValueKind int

const (
	KindFile ValueKind = iota
	KindDir
)

// Value is a File{path} or Dir{path} artifact reference.
type Value struct {
	Kind ValueKind
	Path string
}

func File(path string) Value { return Value{Kind: KindFile, Path: path} }
func Dir(path string) Value  { return Value{Kind: KindDir, Path: path} }

// ThroughKind enumerates the ways a value is surfaced to/from a
// container process.
type ThroughKind int

const (
	ThroughFile ThroughKind = iota
	ThroughDir
	ThroughEnvironment
	ThroughStdin
	ThroughStdout
	ThroughStderr
)

// Through describes how a value binds into or out of a container. Path
// is set for ThroughFile/ThroughDir, Name is set for
// ThroughEnvironment; Stdin/Stdout/Stderr use neither.
type Through struct {
	Kind ThroughKind
	Path string
	Name string
}

func ThroughFileAt(path string) Through       { return Through{Kind: ThroughFile, Path: path} }
func ThroughDirAt(path string) Through        { return Through{Kind: ThroughDir, Path: path} }
func ThroughEnvironmentNamed(n string) Through { return Through{Kind: ThroughEnvironment, Name: n} }
func ThroughStdinValue() Through              { return Through{Kind: ThroughStdin} }
func ThroughStdoutValue() Through             { return Through{Kind: ThroughStdout} }
func ThroughStderrValue() Through             { return Through{Kind: ThroughStderr} }

// Input binds a value into a container.
type Input struct {
	Value   Value
	Through Through
}

// Output binds a value out of a container.
type Output struct {
	Value   Value
	Through Through
}

// Builder provides a chaining construction API mirroring the embedded
// DSL's "builder chains": each method appends to the enclosing Spec's
// ordered action sequence and returns the builder so callers can chain
// calls. It produces exactly the same Spec structure as the codec.
type Builder struct {
	spec Spec
}

// NewBuilder starts a builder for the given spec version.
func NewBuilder(major, minor int) *Builder {
	return &Builder{spec: Spec{SpecVersion: Version{Major: major, Minor: minor}}}
}

// Describe sets the optional human-readable description.
func (b *Builder) Describe(description string) *Builder {
	b.spec.Description = description
	return b
}

// PullImage appends a PullImage action.
func (b *Builder) PullImage(imageName string) *Builder {
	b.spec.Actions = append(b.spec.Actions, &PullImage{ImageName: imageName})
	return b
}

// BuildImage appends a BuildImage action.
func (b *Builder) BuildImage(action BuildImage) *Builder {
	a := action
	b.spec.Actions = append(b.spec.Actions, &a)
	return b
}

// Exec appends an Exec action.
func (b *Builder) Exec(action Exec) *Builder {
	a := action
	b.spec.Actions = append(b.spec.Actions, &a)
	return b
}

// Build returns the constructed Spec.
func (b *Builder) Build() Spec {
	return b.spec
}
