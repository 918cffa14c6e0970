package tech

import (
	"fmt"
	"sort"

	"github.com/expr-lang/expr/vm"
)

// Function is what a layer is used for.
type Function uint8

const (
	FuncOther Function = iota
	FuncMetal
	FuncPoly
	FuncActive
	FuncCut
	FuncImplant
	FuncWell
)

var functionNames = [...]string{"other", "metal", "poly", "active", "cut", "implant", "well"}

func (f Function) String() string {
	if int(f) < len(functionNames) {
		return functionNames[f]
	}
	return fmt.Sprintf("Function(%d)", uint8(f))
}

// ParseFunction converts a function name into a Function.
func ParseFunction(s string) (Function, error) {
	for i, name := range functionNames {
		if s == name {
			return Function(i), nil
		}
	}
	return FuncOther, fmt.Errorf("unknown layer function %q", s)
}

// Layer is one mask layer.
type Layer struct {
	Name     string
	Function Function
	// Group names the check task that owns the layer.
	Group string
	// VT marks a threshold-voltage implant.
	VT bool
}

// Kind is the kind of a rule.
type Kind uint8

const (
	KindSpacing Kind = iota
	KindEdge
	KindMinWidth
	KindMinArea
	KindSurround
	KindCutSize
	KindNodeSize
)

var kindNames = [...]string{"spacing", "edge", "minwidth", "minarea", "surround", "cutsize", "nodesize"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind converts a rule kind name into a Kind.
func ParseKind(s string) (Kind, error) {
	for i, name := range kindNames {
		if s == name {
			return Kind(i), nil
		}
	}
	return KindSpacing, fmt.Errorf("unknown rule kind %q", s)
}

// Connectivity restricts a spacing rule to shapes on the same net, on
// different nets, or either.
type Connectivity uint8

const (
	AnyNet Connectivity = iota
	SameNet
	DifferentNet
)

func (c Connectivity) String() string {
	switch c {
	case SameNet:
		return "same"
	case DifferentNet:
		return "different"
	default:
		return "any"
	}
}

func (c Connectivity) matches(connected bool) bool {
	switch c {
	case SameNet:
		return connected
	case DifferentNet:
		return !connected
	}
	return true
}

// Severity decides whether a violation counts as an error or a warning.
type Severity uint8

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// ParseSeverity converts "error" or "warning" into a Severity.
func ParseSeverity(s string) (Severity, error) {
	switch s {
	case "error", "":
		return SeverityError, nil
	case "warning":
		return SeverityWarning, nil
	}
	return SeverityError, fmt.Errorf("unknown severity %q", s)
}

// Rule is one design rule. The meaning of Layers, Value and Value2 depends
// on Kind:
//
//	spacing, edge  Layers{a, b}       Value = minimum separation
//	minwidth       Layers{l}          Value = minimum width
//	minarea        Layers{l}          Value = minimum area
//	surround       Layers{outer, in}  Value = minimum enclosure
//	cutsize        Layers{cut}        Value, Value2 = maximum X, Y extent
//	nodesize       NodeType           Value, Value2 = minimum X, Y extent
type Rule struct {
	Name         string
	Kind         Kind
	Layers       [2]string
	NodeType     string
	Value        float64
	Value2       float64
	Connectivity Connectivity
	MultiCut     bool
	VTExempt     bool
	Severity     Severity
	Condition    string

	cond *vm.Program
}

// Context describes the geometry a conditional rule is evaluated for.
type Context struct {
	Width    float64
	Length   float64
	MultiCut bool
}

type pairKey struct {
	a, b string
}

func orderedPair(a, b string) pairKey {
	if b < a {
		a, b = b, a
	}
	return pairKey{a, b}
}

// Technology is an immutable set of layers and rules.
type Technology struct {
	Name   string
	Layers []Layer
	Rules  []Rule

	byName   map[string]int
	pairs    map[Kind]map[pairKey][]int
	single   map[Kind]map[string][]int
	surround map[string][]int
	nodeSize map[string][]int
	hash     string
}

// New indexes layers and rules into a Technology. Conditions are compiled
// here, so a bad condition is reported before any check runs.
func New(name string, layers []Layer, rules []Rule) (*Technology, error) {
	t := &Technology{
		Name:     name,
		Layers:   append([]Layer(nil), layers...),
		Rules:    append([]Rule(nil), rules...),
		byName:   make(map[string]int),
		pairs:    make(map[Kind]map[pairKey][]int),
		single:   make(map[Kind]map[string][]int),
		surround: make(map[string][]int),
		nodeSize: make(map[string][]int),
	}
	for i := range t.Layers {
		l := &t.Layers[i]
		if _, dup := t.byName[l.Name]; dup {
			return nil, fmt.Errorf("duplicate layer %q", l.Name)
		}
		if l.Group == "" {
			l.Group = l.Function.String()
		}
		t.byName[l.Name] = i
	}

	for i := range t.Rules {
		r := &t.Rules[i]
		if r.Condition != "" {
			prog, err := compileCondition(r.Condition)
			if err != nil {
				return nil, fmt.Errorf("rule %s: condition %q: %w", r.Name, r.Condition, err)
			}
			r.cond = prog
		}
		if r.Value2 == 0 && (r.Kind == KindCutSize || r.Kind == KindNodeSize) {
			r.Value2 = r.Value
		}
		for _, l := range r.layerNames() {
			if _, ok := t.byName[l]; !ok {
				return nil, fmt.Errorf("rule %s: unknown layer %q", r.Name, l)
			}
		}

		switch r.Kind {
		case KindSpacing, KindEdge:
			if t.pairs[r.Kind] == nil {
				t.pairs[r.Kind] = make(map[pairKey][]int)
			}
			k := orderedPair(r.Layers[0], r.Layers[1])
			t.pairs[r.Kind][k] = append(t.pairs[r.Kind][k], i)
		case KindMinWidth, KindMinArea, KindCutSize:
			if t.single[r.Kind] == nil {
				t.single[r.Kind] = make(map[string][]int)
			}
			t.single[r.Kind][r.Layers[0]] = append(t.single[r.Kind][r.Layers[0]], i)
		case KindSurround:
			t.surround[r.Layers[1]] = append(t.surround[r.Layers[1]], i)
		case KindNodeSize:
			t.nodeSize[r.NodeType] = append(t.nodeSize[r.NodeType], i)
		}
	}

	h, err := contentHash(t)
	if err != nil {
		return nil, err
	}
	t.hash = h
	return t, nil
}

func (r *Rule) layerNames() []string {
	var out []string
	for _, l := range r.Layers {
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

// Hash identifies the rule set. Stored check dates are only valid for the
// hash they were recorded under.
func (t *Technology) Hash() string {
	return t.hash
}

// Layer returns the named layer.
func (t *Technology) Layer(name string) (Layer, bool) {
	i, ok := t.byName[name]
	if !ok {
		return Layer{}, false
	}
	return t.Layers[i], true
}

// HasLayer reports whether name is a layer of t.
func (t *Technology) HasLayer(name string) bool {
	_, ok := t.byName[name]
	return ok
}

// GroupOf returns the check group of a layer. Unknown layers have no group.
func (t *Technology) GroupOf(name string) string {
	if l, ok := t.Layer(name); ok {
		return l.Group
	}
	return ""
}

// Groups returns the sorted distinct layer groups.
func (t *Technology) Groups() []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range t.Layers {
		if !seen[l.Group] {
			seen[l.Group] = true
			out = append(out, l.Group)
		}
	}
	sort.Strings(out)
	return out
}

// LayersOfFunction returns the names of layers with function f.
func (t *Technology) LayersOfFunction(f Function) []string {
	var out []string
	for _, l := range t.Layers {
		if l.Function == f {
			out = append(out, l.Name)
		}
	}
	return out
}

// applies reports whether r's condition holds for ctx. A condition that
// fails to evaluate does not apply.
func (r *Rule) applies(ctx Context) bool {
	if r.MultiCut && !ctx.MultiCut {
		return false
	}
	if r.cond == nil {
		return true
	}
	ok, err := evalCondition(r.cond, ctx)
	return err == nil && ok
}

// worst returns the applicable rule with the largest value.
func (t *Technology) worst(idx []int, keep func(*Rule) bool) (Rule, bool) {
	best := -1
	for _, i := range idx {
		r := &t.Rules[i]
		if !keep(r) {
			continue
		}
		if best < 0 || r.Value > t.Rules[best].Value {
			best = i
		}
	}
	if best < 0 {
		return Rule{}, false
	}
	return t.Rules[best], true
}

func (t *Technology) pairRule(kind Kind, a, b string, connected bool, ctx Context) (Rule, bool) {
	idx := t.pairs[kind][orderedPair(a, b)]
	return t.worst(idx, func(r *Rule) bool {
		return r.Connectivity.matches(connected) && r.applies(ctx)
	})
}

// SpacingRule returns the spacing rule between layers a and b for the given
// connectivity and geometry. When several apply the largest wins.
func (t *Technology) SpacingRule(a, b string, connected bool, ctx Context) (Rule, bool) {
	return t.pairRule(KindSpacing, a, b, connected, ctx)
}

// EdgeRule is the fallback consulted when no spacing rule applies. It only
// constrains facing edges.
func (t *Technology) EdgeRule(a, b string, connected bool, ctx Context) (Rule, bool) {
	return t.pairRule(KindEdge, a, b, connected, ctx)
}

func (t *Technology) singleRule(kind Kind, layer string, ctx Context) (Rule, bool) {
	return t.worst(t.single[kind][layer], func(r *Rule) bool { return r.applies(ctx) })
}

// MinWidthRule returns the minimum width rule of a layer.
func (t *Technology) MinWidthRule(layer string) (Rule, bool) {
	return t.singleRule(KindMinWidth, layer, Context{})
}

// MinAreaRule returns the minimum area rule of a layer.
func (t *Technology) MinAreaRule(layer string) (Rule, bool) {
	return t.singleRule(KindMinArea, layer, Context{})
}

// CutSizeRule returns the maximum cut array size of a cut layer.
func (t *Technology) CutSizeRule(layer string) (Rule, bool) {
	return t.singleRule(KindCutSize, layer, Context{MultiCut: true})
}

// SurroundRules returns the rules requiring other layers to enclose inner,
// in declaration order.
func (t *Technology) SurroundRules(inner string) []Rule {
	idx := t.surround[inner]
	out := make([]Rule, 0, len(idx))
	for _, i := range idx {
		out = append(out, t.Rules[i])
	}
	return out
}

// NodeSizeRule returns the minimum size rule of a node type.
func (t *Technology) NodeSizeRule(nodeType string) (Rule, bool) {
	return t.worst(t.nodeSize[nodeType], func(r *Rule) bool { return true })
}

// HasNodeSizeRules reports whether any node size rule exists.
func (t *Technology) HasNodeSizeRules() bool {
	return len(t.nodeSize) > 0
}

// HasAreaRules reports whether any layer in layers has a minimum area rule.
func (t *Technology) HasAreaRules(layers []string) bool {
	for _, l := range layers {
		if len(t.single[KindMinArea][l]) > 0 {
			return true
		}
	}
	return false
}

// MaxSpacing returns the largest spacing or edge rule value involving
// layer, whatever the condition.
func (t *Technology) MaxSpacing(layer string) float64 {
	var out float64
	for _, r := range t.Rules {
		if (r.Kind == KindSpacing || r.Kind == KindEdge) && (r.Layers[0] == layer || r.Layers[1] == layer) {
			out = max(out, r.Value)
		}
	}
	return out
}

// MaxSurroundDistance returns how far from a shape on layer another shape
// can be and still interact with it: the largest spacing, edge or surround
// value involving layer. Conditional rules are skipped when their condition
// holds neither for a zero-size shape nor for one of maxShapeSize.
func (t *Technology) MaxSurroundDistance(layer string, maxShapeSize float64) float64 {
	probes := []Context{
		{},
		{MultiCut: true},
		{Width: maxShapeSize, Length: maxShapeSize},
		{Width: maxShapeSize, Length: maxShapeSize, MultiCut: true},
	}
	reachable := func(r *Rule) bool {
		for _, ctx := range probes {
			if r.applies(ctx) {
				return true
			}
		}
		return false
	}
	var out float64
	for i := range t.Rules {
		r := &t.Rules[i]
		switch r.Kind {
		case KindSpacing, KindEdge, KindSurround:
		default:
			continue
		}
		if r.Layers[0] != layer && r.Layers[1] != layer {
			continue
		}
		if reachable(r) {
			out = max(out, r.Value)
		}
	}
	return out
}
