package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/hdrc/internal/geom"
)

// shapeJSON is the stored form of a geom.Shape. Boxes keep only their
// corners; polygons keep their outline.
type shapeJSON struct {
	Kind string       `json:"kind"`
	Box  *[4]float64  `json:"box,omitempty"`
	Pts  [][2]float64 `json:"pts,omitempty"`
}

// marshalShapes converts violation shapes to JSON TEXT for storage.
func marshalShapes(shapes []geom.Shape) (string, error) {
	out := make([]shapeJSON, 0, len(shapes))
	for _, s := range shapes {
		switch s.Kind {
		case geom.KindBox:
			b := [4]float64{s.Box.MinX, s.Box.MinY, s.Box.MaxX, s.Box.MaxY}
			out = append(out, shapeJSON{Kind: "box", Box: &b})
		case geom.KindPolygon:
			pts := make([][2]float64, len(s.Pts))
			for i, p := range s.Pts {
				pts[i] = [2]float64{p.X, p.Y}
			}
			out = append(out, shapeJSON{Kind: "polygon", Pts: pts})
		default:
			return "", fmt.Errorf("marshal shapes: unknown shape kind %d", s.Kind)
		}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("marshal shapes: %w", err)
	}
	return string(data), nil
}

// unmarshalShapes converts JSON TEXT from the database back to shapes.
func unmarshalShapes(data string) ([]geom.Shape, error) {
	var in []shapeJSON
	if err := json.Unmarshal([]byte(data), &in); err != nil {
		return nil, fmt.Errorf("unmarshal shapes: %w", err)
	}
	out := make([]geom.Shape, 0, len(in))
	for _, s := range in {
		switch s.Kind {
		case "box":
			if s.Box == nil {
				return nil, fmt.Errorf("unmarshal shapes: box without corners")
			}
			out = append(out, geom.BoxShape(geom.R(s.Box[0], s.Box[1], s.Box[2], s.Box[3])))
		case "polygon":
			pts := make([]geom.Point, len(s.Pts))
			for i, p := range s.Pts {
				pts[i] = geom.Pt(p[0], p[1])
			}
			out = append(out, geom.PolygonShape(pts))
		default:
			return nil, fmt.Errorf("unmarshal shapes: unknown kind %q", s.Kind)
		}
	}
	return out, nil
}

// marshalLayers converts a layer list to JSON TEXT. A nil list is stored
// as an empty array.
func marshalLayers(layers []string) (string, error) {
	if layers == nil {
		layers = []string{}
	}
	data, err := json.Marshal(layers)
	if err != nil {
		return "", fmt.Errorf("marshal layers: %w", err)
	}
	return string(data), nil
}

func unmarshalLayers(data string) ([]string, error) {
	var layers []string
	if err := json.Unmarshal([]byte(data), &layers); err != nil {
		return nil, fmt.Errorf("unmarshal layers: %w", err)
	}
	if layers == nil {
		layers = []string{}
	}
	return layers, nil
}
