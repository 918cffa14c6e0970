package plot

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hdrc/internal/drc"
	"github.com/roach88/hdrc/internal/geom"
	"github.com/roach88/hdrc/internal/layout"
	"github.com/roach88/hdrc/internal/tech"
	"github.com/roach88/hdrc/internal/testutil"
)

// pair builds top with two leaf instances whose strips are 2 apart.
func pair(t *testing.T) *layout.Library {
	b := testutil.NewBuilder(t)
	leaf := b.Cell("leaf")
	leaf.Net("p", true)
	leaf.Box("metal1", "p", 0, 0, 3, 10)
	top := b.Cell("top")
	top.Place("u0", leaf, geom.Identity(), map[string]string{"p": "a"})
	top.Place("u1", leaf, geom.Translate(5, 0), map[string]string{"p": "b"})
	return b.Finalize()
}

var violation = drc.Violation{
	Kind:     drc.ViolSpacing,
	Severity: tech.SeverityError,
	Rule:     "M1.S.1",
	Cell:     "top",
	Shapes:   []geom.Shape{geom.BoxShape(geom.R(0, 0, 3, 10)), geom.BoxShape(geom.R(5, 0, 8, 10))},
}

func TestRender_Size(t *testing.T) {
	img, err := Render(pair(t), "top", nil, Options{MaxSize: 120, Margin: 10, Depth: -1})
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx(), "8 units at 10 px plus margins")
	assert.Equal(t, 120, img.Bounds().Dy())
}

func TestRender_DrawsSubCellGeometry(t *testing.T) {
	img, err := Render(pair(t), "top", nil, Options{MaxSize: 120, Margin: 10, Depth: -1})
	require.NoError(t, err)

	assert.Equal(t, background, img.RGBAAt(2, 2), "margin stays empty")
	assert.NotEqual(t, background, img.RGBAAt(20, 60), "u0 strip at (1,5)")
	assert.NotEqual(t, background, img.RGBAAt(75, 60), "u1 strip at (6.5,5)")
	assert.Equal(t, background, img.RGBAAt(45, 60), "gap at (3.5,5)")
}

func TestRender_Depth(t *testing.T) {
	img, err := Render(pair(t), "top", nil, Options{MaxSize: 120, Margin: 10, Depth: 0})
	require.NoError(t, err)
	assert.Equal(t, background, img.RGBAAt(20, 60), "sub-cells are not expanded")
}

func TestRender_MarksViolations(t *testing.T) {
	img, err := Render(pair(t), "top", []drc.Violation{violation}, Options{MaxSize: 120, Margin: 10, Depth: -1})
	require.NoError(t, err)

	px := img.RGBAAt(9, 60)
	assert.Greater(t, px.R, uint8(200))
	assert.Less(t, px.G, uint8(80))

	other := violation
	other.Cell = "leaf"
	img, err = Render(pair(t), "top", []drc.Violation{other}, Options{MaxSize: 120, Margin: 10, Depth: -1})
	require.NoError(t, err)
	assert.Equal(t, background, img.RGBAAt(9, 60), "violations of other cells are not drawn")
}

func TestRender_UnknownCell(t *testing.T) {
	_, err := Render(pair(t), "nope", nil, DefaultOptions())
	assert.Error(t, err)
}

func TestWritePNG(t *testing.T) {
	img, err := Render(pair(t), "top", []drc.Violation{violation}, DefaultOptions())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WritePNG(&buf, img))
	decoded, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), decoded.Bounds())
}
