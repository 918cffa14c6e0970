package layout

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/roach88/hdrc/internal/geom"
)

// Error codes reported by LoadError.
const (
	ErrCodeRead      = "L001" // file could not be read
	ErrCodeParse     = "L002" // malformed YAML
	ErrCodeSchema    = "L003" // document fails validation
	ErrCodeReference = "L004" // unknown cell or net
	ErrCodeStructure = "L005" // cycle or other structural defect
)

// LoadError is returned by Load and Parse.
type LoadError struct {
	Code    string
	Path    string
	Cell    string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	var b strings.Builder
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	b.WriteString(e.Code)
	b.WriteString(": ")
	if e.Cell != "" {
		fmt.Fprintf(&b, "cell %s: ", e.Cell)
	}
	b.WriteString(e.Message)
	return b.String()
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// File is the YAML layout document.
type File struct {
	Top   string     `yaml:"top"`
	Cells []CellSpec `yaml:"cells" validate:"required,min=1,dive"`
}

// CellSpec describes one cell.
type CellSpec struct {
	Name          string         `yaml:"name" validate:"required"`
	Modified      *time.Time     `yaml:"modified"`
	Icon          bool           `yaml:"icon"`
	Parameterized bool           `yaml:"parameterized"`
	Nets          []NetSpec      `yaml:"nets" validate:"dive"`
	Shapes        []ShapeSpec    `yaml:"shapes" validate:"dive"`
	Exclusions    []GeometrySpec `yaml:"exclusions" validate:"dive"`
	Instances     []InstanceSpec `yaml:"instances" validate:"dive"`
}

// NetSpec declares a local net.
type NetSpec struct {
	Name     string `yaml:"name" validate:"required"`
	Exported bool   `yaml:"exported"`
}

// GeometrySpec is either a box [x0, y0, x1, y1] or a polygon outline.
type GeometrySpec struct {
	Box     []float64    `yaml:"box" validate:"omitempty,len=4"`
	Polygon [][2]float64 `yaml:"polygon" validate:"omitempty,min=3"`
}

// ShapeSpec describes one primitive.
type ShapeSpec struct {
	GeometrySpec `yaml:",inline"`
	Kind         string `yaml:"kind" validate:"omitempty,oneof=node wire contact pin transistor"`
	NodeType     string `yaml:"node_type"`
	Layer        string `yaml:"layer" validate:"required"`
	Net          string `yaml:"net"`
	MultiCut     bool   `yaml:"multicut"`
}

// InstanceSpec places a cell.
type InstanceSpec struct {
	Name    string            `yaml:"name"`
	Cell    string            `yaml:"cell" validate:"required"`
	Orient  string            `yaml:"orient"`
	At      []float64         `yaml:"at" validate:"omitempty,len=2"`
	Icon    bool              `yaml:"icon"`
	Connect map[string]string `yaml:"connect"`
}

var fileValidate = validator.New()

// Load reads and finalizes a layout file. Cells without a modified
// timestamp take the file's modification time as their revision.
func Load(path string) (*Library, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", &LoadError{Code: ErrCodeRead, Path: path, Message: "failed to read layout", Err: err}
	}
	var rev int64
	if info, err := os.Stat(path); err == nil {
		rev = info.ModTime().UnixNano()
	}
	lib, top, err := Parse(data, rev)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.Path = path
		}
		return nil, "", err
	}
	return lib, top, nil
}

// Parse builds and finalizes a library from YAML. It returns the top cell
// name: the declared one, or the last cell of the document.
func Parse(data []byte, defaultRevision int64) (*Library, string, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, "", &LoadError{Code: ErrCodeParse, Message: err.Error(), Err: err}
	}
	if err := fileValidate.Struct(&f); err != nil {
		return nil, "", &LoadError{Code: ErrCodeSchema, Message: describeValidation(err), Err: err}
	}
	lib, err := Build(&f, defaultRevision)
	if err != nil {
		return nil, "", err
	}
	top := f.Top
	if top == "" {
		top = f.Cells[len(f.Cells)-1].Name
	}
	if _, ok := lib.Lookup(top); !ok {
		return nil, "", &LoadError{Code: ErrCodeReference, Message: fmt.Sprintf("top cell %q not found", top)}
	}
	return lib, top, nil
}

// Build turns a decoded document into a finalized library.
func Build(f *File, defaultRevision int64) (*Library, error) {
	lib := NewLibrary()
	for _, cs := range f.Cells {
		c, err := lib.AddCell(cs.Name)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeSchema, Cell: cs.Name, Message: err.Error()}
		}
		c.Icon = cs.Icon
		c.Parameterized = cs.Parameterized
		c.Revision = defaultRevision
		if cs.Modified != nil {
			c.Revision = cs.Modified.UnixNano()
		}
		for _, n := range cs.Nets {
			c.AddNet(n.Name, n.Exported)
		}
	}

	for _, cs := range f.Cells {
		c, _ := lib.Lookup(cs.Name)
		for i, ss := range cs.Shapes {
			shape, err := ss.GeometrySpec.shape()
			if err != nil {
				return nil, &LoadError{Code: ErrCodeSchema, Cell: c.Name, Message: fmt.Sprintf("shape %d: %v", i, err)}
			}
			kind := KindNode
			if ss.Kind != "" {
				kind, _ = ParsePrimKind(ss.Kind)
			}
			net := NoNet
			if ss.Net != "" {
				net = c.AddNet(ss.Net, false)
			}
			lib.AddPrimitive(c, Primitive{
				Kind:     kind,
				NodeType: ss.NodeType,
				Layer:    ss.Layer,
				Shape:    shape,
				Net:      net,
				MultiCut: ss.MultiCut,
			})
		}
		for i, es := range cs.Exclusions {
			shape, err := es.shape()
			if err != nil {
				return nil, &LoadError{Code: ErrCodeSchema, Cell: c.Name, Message: fmt.Sprintf("exclusion %d: %v", i, err)}
			}
			lib.AddExclusion(c, shape)
		}
		for i, is := range cs.Instances {
			child, ok := lib.Lookup(is.Cell)
			if !ok {
				return nil, &LoadError{Code: ErrCodeReference, Cell: c.Name, Message: fmt.Sprintf("instance %d: unknown cell %q", i, is.Cell)}
			}
			orient, err := geom.ParseOrient(is.Orient)
			if err != nil {
				return nil, &LoadError{Code: ErrCodeSchema, Cell: c.Name, Message: err.Error()}
			}
			var dx, dy float64
			if len(is.At) == 2 {
				dx, dy = is.At[0], is.At[1]
			}
			conns := make(map[int]int, len(is.Connect))
			for _, childNet := range sortedNames(is.Connect) {
				parentNet := is.Connect[childNet]
				cn, ok := child.NetIndex(childNet)
				if !ok {
					return nil, &LoadError{Code: ErrCodeReference, Cell: c.Name, Message: fmt.Sprintf("instance %d: %s has no net %q", i, child.Name, childNet)}
				}
				conns[cn] = c.AddNet(parentNet, false)
			}
			name := is.Name
			if name == "" {
				name = fmt.Sprintf("%s_%d", child.Name, i)
			}
			inst := lib.AddInstance(c, child.ID, name, geom.NewTransform(orient, dx, dy), conns)
			inst.Icon = is.Icon
		}
	}

	if err := lib.Finalize(); err != nil {
		return nil, &LoadError{Code: ErrCodeStructure, Message: err.Error(), Err: err}
	}
	return lib, nil
}

func (g GeometrySpec) shape() (geom.Shape, error) {
	switch {
	case len(g.Box) == 4 && len(g.Polygon) == 0:
		return geom.BoxShape(geom.R(g.Box[0], g.Box[1], g.Box[2], g.Box[3])), nil
	case len(g.Polygon) >= 3 && len(g.Box) == 0:
		pts := make([]geom.Point, len(g.Polygon))
		for i, p := range g.Polygon {
			pts[i] = geom.Pt(p[0], p[1])
		}
		return geom.PolygonShape(pts), nil
	}
	return geom.Shape{}, errors.New("exactly one of box or polygon is required")
}

func sortedNames(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
