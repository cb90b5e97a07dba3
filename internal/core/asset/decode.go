package asset

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/zeusync/homestead/internal/core/geom"
	"gopkg.in/yaml.v3"
)

const maxFallbackDepth = 4

type descriptorFile struct {
	ID                 string     `yaml:"id"`
	General            General    `yaml:"general"`
	Category           string     `yaml:"category"`
	Scene              string     `yaml:"scene"`
	Bounds             boundsFile `yaml:"bounds"`
	PreviewTranslation []float64  `yaml:"preview_translation"`
	Price              int64      `yaml:"price"`

	Components      []yaml.Node `yaml:"components"`
	PlaceComponents []yaml.Node `yaml:"place_components"`
	SpawnComponents []yaml.Node `yaml:"spawn_components"`
}

type boundsFile struct {
	Min []float64 `yaml:"min"`
	Max []float64 `yaml:"max"`
}

type componentHead struct {
	Kind     string    `yaml:"kind"`
	Fallback yaml.Node `yaml:"fallback"`
}

type wallMountFile struct {
	Mount  string      `yaml:"mount"`
	Cutout [][]float64 `yaml:"cutout"`
	Hole   bool        `yaml:"hole"`
}

type doorFile struct {
	HalfWidth       float64 `yaml:"half_width"`
	TriggerDistance float64 `yaml:"trigger_distance"`
	Animation       string  `yaml:"animation"`
}

type interactionFile struct {
	Name      string  `yaml:"name"`
	Distance  float64 `yaml:"distance"`
	Animation string  `yaml:"animation"`
	Need      string  `yaml:"need"`
	Restore   float64 `yaml:"restore"`
	Duration  float64 `yaml:"duration"`
}

// Load decodes one descriptor. Unknown fields are ignored so that newer
// assets keep loading; unknown component kinds load only when they carry a
// fallback.
func Load(r io.Reader) (*Descriptor, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var file descriptorFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err = dec.Decode(&file); err != nil {
		if err == io.EOF {
			return nil, malformed("", "empty document", nil)
		}
		return nil, malformed("", "invalid yaml", err)
	}
	return file.build()
}

func LoadFile(path string) (*Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	desc, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return desc, nil
}

func (f *descriptorFile) build() (*Descriptor, error) {
	if f.ID == "" {
		return nil, malformed("", "missing id", nil)
	}

	category, err := ParseCategory(f.Category)
	if err != nil {
		return nil, malformed(f.ID, "invalid category", err)
	}

	bounds, err := f.Bounds.build()
	if err != nil {
		return nil, malformed(f.ID, "invalid bounds", err)
	}

	if f.Price < 0 {
		return nil, malformed(f.ID, "negative price", nil)
	}

	desc := &Descriptor{
		ID:       f.ID,
		General:  f.General,
		Category: category,
		Scene:    f.Scene,
		Bounds:   bounds,
		Price:    f.Price,
	}
	if f.PreviewTranslation != nil {
		if desc.PreviewTranslation, err = vec3(f.PreviewTranslation); err != nil {
			return nil, malformed(f.ID, "invalid preview_translation", err)
		}
	}

	lists := []struct {
		name  string
		nodes []yaml.Node
		out   *[]Component
	}{
		{"components", f.Components, &desc.Components},
		{"place_components", f.PlaceComponents, &desc.PlaceComponents},
		{"spawn_components", f.SpawnComponents, &desc.SpawnComponents},
	}
	for _, list := range lists {
		for i := range list.nodes {
			comp, err := decodeComponent(&list.nodes[i], 0)
			if err != nil {
				return nil, malformed(f.ID, fmt.Sprintf("%s[%d]", list.name, i), err)
			}
			if comp != nil {
				*list.out = append(*list.out, comp)
			}
		}
	}

	return desc, nil
}

func (b boundsFile) build() (Bounds, error) {
	if b.Min == nil && b.Max == nil {
		return Bounds{}, nil
	}
	lo, err := vec3(b.Min)
	if err != nil {
		return Bounds{}, err
	}
	hi, err := vec3(b.Max)
	if err != nil {
		return Bounds{}, err
	}
	for i := range 3 {
		if hi[i] < lo[i] {
			return Bounds{}, fmt.Errorf("max below min on axis %d", i)
		}
	}
	return Bounds{Min: lo, Max: hi}, nil
}

// decodeComponent returns nil without error when the entry is an unknown
// kind whose fallback is skip.
func decodeComponent(node *yaml.Node, depth int) (Component, error) {
	var head componentHead
	if err := node.Decode(&head); err != nil {
		return nil, err
	}

	switch ComponentKind(head.Kind) {
	case "":
		return nil, fmt.Errorf("component without kind")

	case KindSceneCollider:
		var c SceneCollider
		if err := node.Decode(&c); err != nil {
			return nil, err
		}
		if c.Padding < 0 {
			return nil, fmt.Errorf("scene_collider: negative padding")
		}
		return c, nil

	case KindWallMount:
		var raw wallMountFile
		if err := node.Decode(&raw); err != nil {
			return nil, err
		}
		return raw.build()

	case KindDoor:
		var raw doorFile
		if err := node.Decode(&raw); err != nil {
			return nil, err
		}
		if raw.HalfWidth < 0 {
			return nil, fmt.Errorf("door: negative half_width")
		}
		if raw.TriggerDistance < 0 {
			return nil, fmt.Errorf("door: negative trigger_distance")
		}
		return Door(raw), nil

	case KindInteraction:
		var raw interactionFile
		if err := node.Decode(&raw); err != nil {
			return nil, err
		}
		if raw.Distance < 0 || raw.Restore < 0 || raw.Duration < 0 {
			return nil, fmt.Errorf("interaction %q: negative parameter", raw.Name)
		}
		if raw.Need == "" {
			return nil, fmt.Errorf("interaction %q: missing need", raw.Name)
		}
		return Interaction(raw), nil
	}

	switch {
	case head.Fallback.Kind == 0:
		return nil, fmt.Errorf("unknown component kind %q", head.Kind)
	case head.Fallback.Kind == yaml.ScalarNode && head.Fallback.Value == "skip":
		return nil, nil
	case head.Fallback.Kind == yaml.MappingNode && depth < maxFallbackDepth:
		return decodeComponent(&head.Fallback, depth+1)
	default:
		return nil, fmt.Errorf("unknown component kind %q with unusable fallback", head.Kind)
	}
}

func (raw wallMountFile) build() (WallMount, error) {
	m := WallMount{Type: MountKind(raw.Mount), Hole: raw.Hole}
	if m.Type == "" {
		m.Type = MountEmbed
		if len(raw.Cutout) == 0 {
			m.Type = MountAttach
		}
	}

	switch m.Type {
	case MountAttach:
		if len(raw.Cutout) > 0 {
			return WallMount{}, fmt.Errorf("wall_mount: attach mounts have no cutout")
		}
		return m, nil
	case MountEmbed:
	default:
		return WallMount{}, fmt.Errorf("wall_mount: unknown mount %q", raw.Mount)
	}

	cutout := make(geom.Polygon, 0, len(raw.Cutout))
	for _, p := range raw.Cutout {
		if len(p) != 2 {
			return WallMount{}, fmt.Errorf("wall_mount: cutout point needs 2 coordinates, got %d", len(p))
		}
		cutout = append(cutout, geom.V(p[0], p[1]))
	}
	if err := cutout.ValidateConvex(); err != nil {
		return WallMount{}, fmt.Errorf("wall_mount: cutout: %w", err)
	}
	m.Cutout = cutout.CCW()
	return m, nil
}

func vec3(v []float64) (mgl64.Vec3, error) {
	if len(v) != 3 {
		return mgl64.Vec3{}, fmt.Errorf("expected 3 coordinates, got %d", len(v))
	}
	return mgl64.Vec3{v[0], v[1], v[2]}, nil
}
