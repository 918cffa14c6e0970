package tech

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadDemo(t *testing.T) *Technology {
	t.Helper()
	tech, err := Load(filepath.Join("testdata", "demo"))
	require.NoError(t, err)
	return tech
}

func TestLoad_Demo(t *testing.T) {
	tech := loadDemo(t)
	assert.Equal(t, "demo180", tech.Name)
	assert.Len(t, tech.Layers, 7)
	assert.Len(t, tech.Rules, 19)

	vtn, ok := tech.Layer("vtn")
	require.True(t, ok)
	assert.True(t, vtn.VT)
	assert.Equal(t, FuncImplant, vtn.Function)

	assert.Equal(t, "metal", tech.GroupOf("metal1"))
	assert.Equal(t, "metal2", tech.GroupOf("metal2"))
	assert.Equal(t, "", tech.GroupOf("nope"))
	assert.Equal(t, []string{"active", "cut", "implant", "metal", "metal2", "poly", "well"}, tech.Groups())
	assert.Equal(t, []string{"metal1", "metal2"}, tech.LayersOfFunction(FuncMetal))
}

func TestLoad_FileAndDirAgree(t *testing.T) {
	dir := loadDemo(t)
	file, err := Load(filepath.Join("testdata", "demo", "demo.cue"))
	require.NoError(t, err)
	assert.Equal(t, dir.Hash(), file.Hash())
}

func TestSpacingRule_ConditionAndConnectivity(t *testing.T) {
	tech := loadDemo(t)
	narrow := Context{Width: 3, Length: 20}
	wide := Context{Width: 12, Length: 20}

	r, ok := tech.SpacingRule("metal1", "metal1", false, narrow)
	require.True(t, ok)
	assert.Equal(t, "M1.S.1", r.Name)
	assert.Equal(t, 3.0, r.Value)

	r, ok = tech.SpacingRule("metal1", "metal1", false, wide)
	require.True(t, ok)
	assert.Equal(t, "M1.S.2", r.Name, "the larger applicable rule wins")

	r, ok = tech.SpacingRule("metal1", "metal1", true, wide)
	require.True(t, ok)
	assert.Equal(t, "M1.S.1", r.Name, "different-net rules skip connected shapes")

	_, ok = tech.SpacingRule("metal1", "nwell", false, narrow)
	assert.False(t, ok)
}

func TestSpacingRule_IsSymmetric(t *testing.T) {
	tech := loadDemo(t)
	ab, okAB := tech.SpacingRule("poly", "active", false, Context{})
	ba, okBA := tech.SpacingRule("active", "poly", false, Context{})
	require.True(t, okAB)
	require.True(t, okBA)
	assert.Equal(t, ab.Name, ba.Name)
}

func TestSpacingRule_MultiCut(t *testing.T) {
	tech := loadDemo(t)
	r, ok := tech.SpacingRule("via1", "via1", false, Context{})
	require.True(t, ok)
	assert.Equal(t, 2.0, r.Value)

	r, ok = tech.SpacingRule("via1", "via1", false, Context{MultiCut: true})
	require.True(t, ok)
	assert.Equal(t, 3.0, r.Value)
}

func TestLookups(t *testing.T) {
	tech := loadDemo(t)

	e, ok := tech.EdgeRule("metal2", "metal1", false, Context{})
	require.True(t, ok)
	assert.Equal(t, SeverityWarning, e.Severity)

	w, ok := tech.MinWidthRule("metal1")
	require.True(t, ok)
	assert.Equal(t, 3.0, w.Value)

	a, ok := tech.MinAreaRule("metal1")
	require.True(t, ok)
	assert.Equal(t, 10.0, a.Value)
	_, ok = tech.MinAreaRule("metal2")
	assert.False(t, ok)
	assert.True(t, tech.HasAreaRules([]string{"metal2", "metal1"}))
	assert.False(t, tech.HasAreaRules([]string{"poly"}))

	s := tech.SurroundRules("via1")
	require.Len(t, s, 2)
	assert.Equal(t, "metal1", s[0].Layers[0])
	assert.Equal(t, "metal2", s[1].Layers[0])

	c, ok := tech.CutSizeRule("via1")
	require.True(t, ok)
	assert.Equal(t, 4.0, c.Value2, "value2 defaults to value")

	n, ok := tech.NodeSizeRule("contact")
	require.True(t, ok)
	assert.Equal(t, 2.0, n.Value)
	assert.True(t, tech.HasNodeSizeRules())
	_, ok = tech.NodeSizeRule("pin")
	assert.False(t, ok)

	vt, ok := tech.SpacingRule("poly", "poly", false, Context{})
	require.True(t, ok)
	assert.True(t, vt.VTExempt)
}

func TestMaxSurroundDistance(t *testing.T) {
	tech := loadDemo(t)
	assert.Equal(t, 5.0, tech.MaxSpacing("metal1"))
	assert.Equal(t, 5.0, tech.MaxSurroundDistance("metal1", 20))
	assert.Equal(t, 3.0, tech.MaxSurroundDistance("metal1", 5), "wide rule cannot apply to small shapes")
	assert.Equal(t, 3.0, tech.MaxSurroundDistance("via1", 5))
	assert.Equal(t, 0.0, tech.MaxSurroundDistance("nwell", 100))
}

func TestHash(t *testing.T) {
	layers := []Layer{{Name: "m1", Function: FuncMetal}}
	rules := []Rule{{Name: "S", Kind: KindSpacing, Layers: [2]string{"m1", "m1"}, Value: 3}}

	a, err := New("a", layers, rules)
	require.NoError(t, err)
	b, err := New("renamed", layers, rules)
	require.NoError(t, err)
	assert.Equal(t, a.Hash(), b.Hash(), "the name is not part of the hash")
	assert.Len(t, a.Hash(), 64)

	rules[0].Value = 4
	c, err := New("a", layers, rules)
	require.NoError(t, err)
	assert.NotEqual(t, a.Hash(), c.Hash())
}

func TestNew_Errors(t *testing.T) {
	layers := []Layer{{Name: "m1", Function: FuncMetal}}

	_, err := New("x", append(layers, layers[0]), nil)
	assert.ErrorContains(t, err, "duplicate layer")

	_, err = New("x", layers, []Rule{{Name: "S", Kind: KindSpacing, Layers: [2]string{"m1", "m9"}}})
	assert.ErrorContains(t, err, "unknown layer")

	_, err = New("x", layers, []Rule{{Name: "S", Kind: KindSpacing, Layers: [2]string{"m1", "m1"}, Condition: "width >"}})
	assert.ErrorContains(t, err, "condition")

	_, err = New("x", layers, []Rule{{Name: "S", Kind: KindSpacing, Layers: [2]string{"m1", "m1"}, Condition: "width + 1"}})
	assert.Error(t, err, "non-boolean conditions are rejected")
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code string
		msg  string
	}{
		{
			name: "no technology",
			src:  `other: 1`,
			code: ErrCodeSchema,
			msg:  "no technology",
		},
		{
			name: "bad function",
			src:  `technology: {name: "t", layers: {m1: function: "copper"}, rules: []}`,
			code: ErrCodeSchema,
		},
		{
			name: "unknown field",
			src:  `technology: {name: "t", layers: {}, rules: [], colour: "red"}`,
			code: ErrCodeSchema,
		},
		{
			name: "wrong arity",
			src:  `technology: {name: "t", layers: {m1: function: "metal"}, rules: [{name: "W", kind: "spacing", layers: ["m1"], value: 1}]}`,
			code: ErrCodeRule,
			msg:  "takes 2 layers",
		},
		{
			name: "nodesize without type",
			src:  `technology: {name: "t", layers: {}, rules: [{name: "N", kind: "nodesize", layers: [], value: 1}]}`,
			code: ErrCodeRule,
			msg:  "node_type",
		},
		{
			name: "unknown layer",
			src:  `technology: {name: "t", layers: {m1: function: "metal"}, rules: [{name: "W", kind: "minwidth", layers: ["m2"], value: 1}]}`,
			code: ErrCodeRule,
			msg:  "unknown layer",
		},
		{
			name: "syntax",
			src:  `technology: {`,
			code: ErrCodeLoad,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), "inline.cue")
			require.Error(t, err)
			var le *LoadError
			require.True(t, errors.As(err, &le), "got %T", err)
			assert.Equal(t, tt.code, le.Code, le.Error())
			if tt.msg != "" {
				assert.Contains(t, le.Message, tt.msg)
			}
		})
	}
}

func TestParse_ErrorNamesField(t *testing.T) {
	src := strings.Join([]string{
		`technology: {`,
		`	name: "t"`,
		`	layers: {m1: function: "copper"}`,
		`	rules: []`,
		`}`,
	}, "\n")
	_, err := Parse([]byte(src), "pos.cue")
	require.Error(t, err)
	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Contains(t, le.Message, "function")
}

func TestLoad_MissingPath(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent"))
	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, ErrCodeNotFound, le.Code)
}

func TestLoadDir_TempPackage(t *testing.T) {
	dir := t.TempDir()
	src := `package t

technology: {
	name: "tiny"
	layers: m1: function: "metal"
	rules: [{name: "M1.S", kind: "spacing", layers: ["m1", "m1"], value: 2}]
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tech.cue"), []byte(src), 0o644))
	tech, err := LoadDir(dir)
	require.NoError(t, err)
	r, ok := tech.SpacingRule("m1", "m1", false, Context{})
	require.True(t, ok)
	assert.Equal(t, 2.0, r.Value)
}
