package rig

import (
	"errors"
	"fmt"
	"image/color"
	"os"

	"github.com/lucasb-eyer/go-colorful"
	"gopkg.in/yaml.v3"
)

var ErrInvalidRig = errors.New("invalid rig")

// Data риг в том виде, как он прочитан с диска. Skeleton его не меняет.
type Data struct {
	Name       string          `yaml:"name"`
	Bones      []BoneData      `yaml:"bones"`
	Slots      []SlotData      `yaml:"slots"`
	Skins      []SkinData      `yaml:"skins"`
	Animations []AnimationData `yaml:"animations"`
}

type BoneData struct {
	Name     string  `yaml:"name"`
	Parent   string  `yaml:"parent"`
	X        float64 `yaml:"x"`
	Y        float64 `yaml:"y"`
	Rotation float64 `yaml:"rotation"`
	ScaleX   float64 `yaml:"scaleX"`
	ScaleY   float64 `yaml:"scaleY"`
}

type SlotData struct {
	Name       string `yaml:"name"`
	Bone       string `yaml:"bone"`
	Attachment string `yaml:"attachment"`
	Color      string `yaml:"color"`
}

type SkinData struct {
	Name string `yaml:"name"`
	// слот -> имя вложения -> вложение
	Attachments map[string]map[string]AttachmentData `yaml:"attachments"`
}

type AttachmentData struct {
	Type      string    `yaml:"type"`
	X         float64   `yaml:"x"`
	Y         float64   `yaml:"y"`
	Rotation  float64   `yaml:"rotation"`
	ScaleX    float64   `yaml:"scaleX"`
	ScaleY    float64   `yaml:"scaleY"`
	Width     float64   `yaml:"width"`
	Height    float64   `yaml:"height"`
	Vertices  []float64 `yaml:"vertices"`
	Triangles []int     `yaml:"triangles"`
	Color     string    `yaml:"color"`
}

type AnimationData struct {
	Name  string                       `yaml:"name"`
	Bones map[string]BoneTimelinesData `yaml:"bones"`
	Slots map[string]SlotTimelinesData `yaml:"slots"`
}

type BoneTimelinesData struct {
	Rotate    []KeyData `yaml:"rotate"`
	Translate []KeyData `yaml:"translate"`
	Scale     []KeyData `yaml:"scale"`
}

type SlotTimelinesData struct {
	Attachment []AttachmentKeyData `yaml:"attachment"`
}

// KeyData один ключ. Rotate использует Value, translate и scale X и Y.
type KeyData struct {
	Time  float64  `yaml:"time"`
	Value float64  `yaml:"value"`
	X     *float64 `yaml:"x"`
	Y     *float64 `yaml:"y"`
	Curve string   `yaml:"curve"`
}

type AttachmentKeyData struct {
	Time float64 `yaml:"time"`
	Name string  `yaml:"name"`
}

// Load читает риг из YAML или JSON и умножает все длины на scale.
func Load(path string, scale float64) (*Data, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rig %s: %w", path, err)
	}
	return Parse(raw, scale)
}

func Parse(raw []byte, scale float64) (*Data, error) {
	var d Data
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRig, err)
	}
	if scale == 0 {
		scale = 1
	}
	d.applyDefaults(scale)
	if err := d.validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// MergeAnimations заменяет анимации d анимациями из src и проверяет их по костям
// и слотам d. При ошибке d не меняется.
func (d *Data) MergeAnimations(src *Data) error {
	prev := d.Animations
	d.Animations = append([]AnimationData(nil), src.Animations...)
	if err := d.validate(); err != nil {
		d.Animations = prev
		return err
	}
	return nil
}

func (d *Data) applyDefaults(scale float64) {
	for i := range d.Bones {
		b := &d.Bones[i]
		b.X *= scale
		b.Y *= scale
		if b.ScaleX == 0 {
			b.ScaleX = 1
		}
		if b.ScaleY == 0 {
			b.ScaleY = 1
		}
	}
	for _, skin := range d.Skins {
		for _, atts := range skin.Attachments {
			for name, a := range atts {
				a.X *= scale
				a.Y *= scale
				a.Width *= scale
				a.Height *= scale
				for i := range a.Vertices {
					a.Vertices[i] *= scale
				}
				if a.ScaleX == 0 {
					a.ScaleX = 1
				}
				if a.ScaleY == 0 {
					a.ScaleY = 1
				}
				if a.Type == "" {
					a.Type = "region"
				}
				atts[name] = a
			}
		}
	}
	for _, anim := range d.Animations {
		for _, tl := range anim.Bones {
			for i := range tl.Translate {
				k := &tl.Translate[i]
				if k.X != nil {
					*k.X *= scale
				}
				if k.Y != nil {
					*k.Y *= scale
				}
			}
		}
	}
}

func (d *Data) validate() error {
	bones := make(map[string]int, len(d.Bones))
	for i, b := range d.Bones {
		if b.Name == "" {
			return fmt.Errorf("%w: bone %d has no name", ErrInvalidRig, i)
		}
		if _, dup := bones[b.Name]; dup {
			return fmt.Errorf("%w: duplicate bone %q", ErrInvalidRig, b.Name)
		}
		if b.Parent != "" {
			if _, ok := bones[b.Parent]; !ok {
				return fmt.Errorf("%w: bone %q: parent %q must be declared before it", ErrInvalidRig, b.Name, b.Parent)
			}
		} else if i != 0 {
			return fmt.Errorf("%w: bone %q has no parent; only the first bone may be the root", ErrInvalidRig, b.Name)
		}
		bones[b.Name] = i
	}

	slots := make(map[string]bool, len(d.Slots))
	for _, s := range d.Slots {
		if _, ok := bones[s.Bone]; !ok {
			return fmt.Errorf("%w: slot %q: unknown bone %q", ErrInvalidRig, s.Name, s.Bone)
		}
		if _, err := parseColor(s.Color); err != nil {
			return fmt.Errorf("%w: slot %q: %v", ErrInvalidRig, s.Name, err)
		}
		slots[s.Name] = true
	}

	for _, skin := range d.Skins {
		for slot, atts := range skin.Attachments {
			if !slots[slot] {
				return fmt.Errorf("%w: skin %q: unknown slot %q", ErrInvalidRig, skin.Name, slot)
			}
			for name, a := range atts {
				if err := a.validate(); err != nil {
					return fmt.Errorf("%w: skin %q slot %q attachment %q: %v", ErrInvalidRig, skin.Name, slot, name, err)
				}
			}
		}
	}

	for _, anim := range d.Animations {
		if anim.Name == "" {
			return fmt.Errorf("%w: animation without a name", ErrInvalidRig)
		}
		for bone, tl := range anim.Bones {
			if _, ok := bones[bone]; !ok {
				return fmt.Errorf("%w: animation %q: unknown bone %q", ErrInvalidRig, anim.Name, bone)
			}
			for _, keys := range [][]KeyData{tl.Rotate, tl.Translate, tl.Scale} {
				if err := validateKeys(keys); err != nil {
					return fmt.Errorf("%w: animation %q bone %q: %v", ErrInvalidRig, anim.Name, bone, err)
				}
			}
		}
		for slot := range anim.Slots {
			if !slots[slot] {
				return fmt.Errorf("%w: animation %q: unknown slot %q", ErrInvalidRig, anim.Name, slot)
			}
		}
	}
	return nil
}

func (a AttachmentData) validate() error {
	switch a.Type {
	case "region":
		if a.Width < 0 || a.Height < 0 {
			return fmt.Errorf("negative size %gx%g", a.Width, a.Height)
		}
	case "mesh":
		if len(a.Vertices)%2 != 0 {
			return fmt.Errorf("odd number of vertex coordinates (%d)", len(a.Vertices))
		}
		if len(a.Triangles)%3 != 0 {
			return fmt.Errorf("triangle index count %d is not a multiple of 3", len(a.Triangles))
		}
		n := len(a.Vertices) / 2
		for _, idx := range a.Triangles {
			if idx < 0 || idx >= n {
				return fmt.Errorf("triangle index %d out of range [0,%d)", idx, n)
			}
		}
	default:
		return fmt.Errorf("unknown attachment type %q", a.Type)
	}
	if _, err := parseColor(a.Color); err != nil {
		return err
	}
	return nil
}

func validateKeys(keys []KeyData) error {
	for i, k := range keys {
		if k.Time < 0 {
			return fmt.Errorf("key %d has negative time %g", i, k.Time)
		}
		if i > 0 && k.Time < keys[i-1].Time {
			return fmt.Errorf("key %d is out of order (%g < %g)", i, k.Time, keys[i-1].Time)
		}
		if _, err := curveFunc(k.Curve); err != nil {
			return fmt.Errorf("key %d: %v", i, err)
		}
	}
	return nil
}

// parseColor: "" это белый, иначе #rrggbb или #rrggbbaa.
func parseColor(s string) (color.NRGBA, error) {
	if s == "" {
		return color.NRGBA{R: 255, G: 255, B: 255, A: 255}, nil
	}
	alpha := uint8(255)
	if len(s) == 9 && s[0] == '#' {
		var a uint8
		if _, err := fmt.Sscanf(s[7:], "%02x", &a); err != nil {
			return color.NRGBA{}, fmt.Errorf("bad alpha in colour %q", s)
		}
		alpha = a
		s = s[:7]
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("bad colour %q: %v", s, err)
	}
	r, g, b := c.Clamped().RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: alpha}, nil
}
