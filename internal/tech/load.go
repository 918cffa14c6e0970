package tech

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"
)

//go:embed schema.cue
var schemaCUE string

// Error codes reported by LoadError.
const (
	ErrCodeNotFound = "T001" // path missing
	ErrCodeLoad     = "T002" // CUE files could not be loaded
	ErrCodeSchema   = "T003" // value does not satisfy #Technology
	ErrCodeRule     = "T004" // rule is inconsistent
)

// LoadError is returned when a technology cannot be loaded.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type layerSpec struct {
	Function string `json:"function"`
	Group    string `json:"group"`
	VT       bool   `json:"vt"`
}

type ruleSpec struct {
	Name         string   `json:"name" validate:"required"`
	Kind         string   `json:"kind" validate:"required"`
	Layers       []string `json:"layers" validate:"max=2"`
	NodeType     string   `json:"node_type"`
	Value        float64  `json:"value" validate:"gte=0"`
	Value2       float64  `json:"value2" validate:"gte=0"`
	Connectivity string   `json:"connectivity" validate:"oneof=any same different"`
	MultiCut     bool     `json:"multicut"`
	VTExempt     bool     `json:"vt_exempt"`
	Severity     string   `json:"severity" validate:"oneof=error warning"`
	Condition    string   `json:"condition"`
}

var ruleValidate = validator.New()

// Load reads a technology from a .cue file or a directory of them.
func Load(path string) (*Technology, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("technology not found: %s", path)}
	}
	if info.IsDir() {
		return LoadDir(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeLoad, Message: err.Error()}
	}
	return Parse(data, path)
}

// LoadDir loads the CUE package in dir.
func LoadDir(dir string) (*Technology, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: err.Error()}
	}
	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: abs})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoad, Message: "no CUE instances loaded"}
	}
	if inst := instances[0]; inst.Err != nil {
		return nil, cueLoadError(ErrCodeLoad, inst.Err)
	}
	v := ctx.BuildInstance(instances[0])
	if err := v.Err(); err != nil {
		return nil, cueLoadError(ErrCodeLoad, err)
	}
	return fromValue(ctx, v)
}

// Parse compiles CUE source holding a top-level technology value.
func Parse(src []byte, filename string) (*Technology, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, cueLoadError(ErrCodeLoad, err)
	}
	return fromValue(ctx, v)
}

func fromValue(ctx *cue.Context, v cue.Value) (*Technology, error) {
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, cueLoadError(ErrCodeLoad, err)
	}

	techVal := v.LookupPath(cue.ParsePath("technology"))
	if !techVal.Exists() {
		return nil, &LoadError{Code: ErrCodeSchema, Message: "no technology value found", Pos: v.Pos()}
	}
	unified := schema.LookupPath(cue.ParsePath("#Technology")).Unify(techVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, cueLoadError(ErrCodeSchema, err)
	}

	name, err := unified.LookupPath(cue.ParsePath("name")).String()
	if err != nil {
		return nil, cueLoadError(ErrCodeSchema, err)
	}

	var layers []Layer
	iter, err := unified.LookupPath(cue.ParsePath("layers")).Fields()
	if err != nil {
		return nil, cueLoadError(ErrCodeSchema, err)
	}
	for iter.Next() {
		var ls layerSpec
		if err := iter.Value().Decode(&ls); err != nil {
			return nil, cueLoadError(ErrCodeSchema, err)
		}
		fn, err := ParseFunction(ls.Function)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeSchema, Message: err.Error(), Pos: iter.Value().Pos()}
		}
		layers = append(layers, Layer{
			Name:     norm.NFC.String(iter.Label()),
			Function: fn,
			Group:    ls.Group,
			VT:       ls.VT,
		})
	}

	var rules []Rule
	list, err := unified.LookupPath(cue.ParsePath("rules")).List()
	if err != nil {
		return nil, cueLoadError(ErrCodeSchema, err)
	}
	for list.Next() {
		rv := list.Value()
		var rs ruleSpec
		if err := rv.Decode(&rs); err != nil {
			return nil, cueLoadError(ErrCodeSchema, err)
		}
		r, err := rs.rule()
		if err != nil {
			return nil, &LoadError{Code: ErrCodeRule, Message: err.Error(), Pos: rv.Pos()}
		}
		rules = append(rules, r)
	}

	t, err := New(name, layers, rules)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeRule, Message: err.Error(), Pos: unified.Pos()}
	}
	return t, nil
}

// rule converts a decoded rule, enforcing the layer arity of its kind.
func (rs ruleSpec) rule() (Rule, error) {
	if err := ruleValidate.Struct(rs); err != nil {
		return Rule{}, fmt.Errorf("rule %s: %w", rs.Name, err)
	}
	kind, err := ParseKind(rs.Kind)
	if err != nil {
		return Rule{}, err
	}
	want := 1
	switch kind {
	case KindSpacing, KindEdge, KindSurround:
		want = 2
	case KindNodeSize:
		want = 0
		if rs.NodeType == "" {
			return Rule{}, fmt.Errorf("rule %s: nodesize needs node_type", rs.Name)
		}
	}
	if len(rs.Layers) != want && !(kind == KindNodeSize && len(rs.Layers) <= 1) {
		return Rule{}, fmt.Errorf("rule %s: %s takes %d layers, got %d", rs.Name, kind, want, len(rs.Layers))
	}

	r := Rule{
		Name:      rs.Name,
		Kind:      kind,
		NodeType:  rs.NodeType,
		Value:     rs.Value,
		Value2:    rs.Value2,
		MultiCut:  rs.MultiCut,
		VTExempt:  rs.VTExempt,
		Condition: rs.Condition,
	}
	for i, l := range rs.Layers {
		r.Layers[i] = norm.NFC.String(l)
	}
	switch rs.Connectivity {
	case "same":
		r.Connectivity = SameNet
	case "different":
		r.Connectivity = DifferentNet
	}
	if rs.Severity == "warning" {
		r.Severity = SeverityWarning
	}
	return r, nil
}

// cueLoadError keeps the position of the first CUE error.
func cueLoadError(code string, err error) *LoadError {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Code: code, Message: err.Error()}
	}
	first := errs[0]
	le := &LoadError{Code: code, Message: first.Error()}
	if pos := errors.Positions(first); len(pos) > 0 {
		le.Pos = pos[0]
	}
	return le
}
