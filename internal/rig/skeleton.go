package rig

import (
	"fmt"
	"image/color"
	"math"

	"github.com/ivlev/rig2video/internal/pose"
)

// affine: (x, y) -> (a*x + b*y + tx, c*x + d*y + ty)
type affine struct {
	a, b, c, d float64
	tx, ty     float64
}

func localAffine(x, y, rotation, sx, sy float64) affine {
	rad := rotation * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)
	return affine{a: cos * sx, b: -sin * sy, c: sin * sx, d: cos * sy, tx: x, ty: y}
}

func (m affine) mul(n affine) affine {
	return affine{
		a:  m.a*n.a + m.b*n.c,
		b:  m.a*n.b + m.b*n.d,
		c:  m.c*n.a + m.d*n.c,
		d:  m.c*n.b + m.d*n.d,
		tx: m.a*n.tx + m.b*n.ty + m.tx,
		ty: m.c*n.tx + m.d*n.ty + m.ty,
	}
}

func (m affine) apply(x, y float64) (float64, float64) {
	return m.a*x + m.b*y + m.tx, m.c*x + m.d*y + m.ty
}

type bone struct {
	data   *BoneData
	parent int

	x, y, rotation, scaleX, scaleY float64
	world                          affine
}

func (b *bone) resetLocal() {
	b.x, b.y = b.data.X, b.data.Y
	b.rotation = b.data.Rotation
	b.scaleX, b.scaleY = b.data.ScaleX, b.data.ScaleY
}

type slot struct {
	data       *SlotData
	bone       int
	color      color.NRGBA
	attachment string
}

type attachment struct {
	data  AttachmentData
	local []float64
	tris  []int
	color color.NRGBA
}

// Skeleton персонаж в позе. Реализует pose.Engine, меняется на месте.
type Skeleton struct {
	Data *Data

	bones       []bone
	slots       []slot
	boneIndex   map[string]int
	slotIndex   map[string]int
	attachments map[string]map[string]*attachment
	animations  []*Animation

	x, y  float64
	time  float64
	track *TrackEntry
}

var _ pose.Engine = (*Skeleton)(nil)

var regionTriangles = []int{0, 1, 2, 2, 3, 0}

// NewSkeleton собирает скелет в позе по умолчанию с указанным скином.
// Пустое имя: сначала "default", затем первый скин.
func NewSkeleton(d *Data, skinName string) (*Skeleton, error) {
	s := &Skeleton{
		Data:        d,
		boneIndex:   make(map[string]int, len(d.Bones)),
		slotIndex:   make(map[string]int, len(d.Slots)),
		attachments: make(map[string]map[string]*attachment),
	}
	for i := range d.Bones {
		bd := &d.Bones[i]
		parent := -1
		if bd.Parent != "" {
			parent = s.boneIndex[bd.Parent]
		}
		s.boneIndex[bd.Name] = i
		s.bones = append(s.bones, bone{data: bd, parent: parent})
	}
	for i := range d.Slots {
		sd := &d.Slots[i]
		c, _ := parseColor(sd.Color)
		s.slotIndex[sd.Name] = i
		s.slots = append(s.slots, slot{data: sd, bone: s.boneIndex[sd.Bone], color: c})
	}

	skin, err := findSkin(d, skinName)
	if err != nil {
		return nil, err
	}
	if skin != nil {
		for slotName, atts := range skin.Attachments {
			m := make(map[string]*attachment, len(atts))
			for name, ad := range atts {
				m[name] = newAttachment(ad)
			}
			s.attachments[slotName] = m
		}
	}

	for _, ad := range d.Animations {
		a, err := compileAnimation(ad, s.boneIndex, s.slotIndex)
		if err != nil {
			return nil, fmt.Errorf("%w: animation %q: %v", ErrInvalidRig, ad.Name, err)
		}
		s.animations = append(s.animations, a)
	}

	s.SetToSetupPose()
	return s, nil
}

func findSkin(d *Data, name string) (*SkinData, error) {
	if len(d.Skins) == 0 {
		if name != "" {
			return nil, fmt.Errorf("%w: skin %q not found (rig has no skins)", ErrInvalidRig, name)
		}
		return nil, nil
	}
	want := name
	if want == "" {
		want = "default"
	}
	for i := range d.Skins {
		if d.Skins[i].Name == want {
			return &d.Skins[i], nil
		}
	}
	if name == "" {
		return &d.Skins[0], nil
	}
	return nil, fmt.Errorf("%w: skin %q not found", ErrInvalidRig, name)
}

func newAttachment(ad AttachmentData) *attachment {
	a := &attachment{data: ad}
	a.color, _ = parseColor(ad.Color)
	m := localAffine(ad.X, ad.Y, ad.Rotation, ad.ScaleX, ad.ScaleY)
	switch ad.Type {
	case "mesh":
		a.local = append([]float64(nil), ad.Vertices...)
		a.tris = ad.Triangles
	default:
		if ad.Width == 0 || ad.Height == 0 {
			return a
		}
		hw, hh := ad.Width/2, ad.Height/2
		corners := [4][2]float64{{-hw, -hh}, {-hw, hh}, {hw, hh}, {hw, -hh}}
		for _, p := range corners {
			x, y := m.apply(p[0], p[1])
			a.local = append(a.local, x, y)
		}
		a.tris = regionTriangles
	}
	return a
}

// SetToSetupPose сбрасывает кости и вложения слотов и пересчитывает мировые трансформы.
func (s *Skeleton) SetToSetupPose() {
	for i := range s.bones {
		s.bones[i].resetLocal()
	}
	for i := range s.slots {
		s.slots[i].attachment = s.slots[i].data.Attachment
	}
	s.ResolveWorldTransforms()
}

func (s *Skeleton) Animations() []string {
	names := make([]string, len(s.animations))
	for i, a := range s.animations {
		names[i] = a.Name
	}
	return names
}

// SetAnimation ставит анимацию на дорожку. Пустое имя = первая анимация.
// Если анимаций нет вовсе, дорожка остаётся пустой и возвращается nil.
func (s *Skeleton) SetAnimation(name string, loop bool) (*TrackEntry, error) {
	if len(s.animations) == 0 {
		if name != "" {
			return nil, fmt.Errorf("%w: animation %q not found (rig has no animations)", ErrInvalidRig, name)
		}
		return nil, nil
	}
	anim := s.animations[0]
	if name != "" {
		anim = nil
		for _, a := range s.animations {
			if a.Name == name {
				anim = a
				break
			}
		}
		if anim == nil {
			return nil, fmt.Errorf("%w: animation %q not found", ErrInvalidRig, name)
		}
	}
	s.track = &TrackEntry{Animation: anim, Loop: loop, TimeScale: 1}
	return s.track, nil
}

func (s *Skeleton) Track() *TrackEntry {
	return s.track
}

// Time всё время, накопленное StepSimulation.
func (s *Skeleton) Time() float64 {
	return s.time
}

func (s *Skeleton) StepSimulation(dt float64) {
	if dt > 0 {
		s.time += dt
	}
}

// ApplyAnimationTrack сдвигает дорожку на dt*TimeScale и ставит позу.
// При dt == 0 поза просто применяется заново.
func (s *Skeleton) ApplyAnimationTrack(dt float64) {
	if s.track == nil {
		return
	}
	if dt > 0 {
		s.track.Time += dt * s.track.TimeScale
	}
	s.track.Animation.apply(s, s.track.AnimationTime())
}

func (s *Skeleton) ActiveTrack() (pose.Track, bool) {
	if s.track == nil {
		return pose.Track{}, false
	}
	return pose.Track{
		Animation: s.track.Animation.Name,
		Duration:  s.track.Animation.Duration,
		TimeScale: s.track.TimeScale,
		Loop:      s.track.Loop,
	}, true
}

func (s *Skeleton) ResolveWorldTransforms() {
	root := affine{a: 1, d: 1, tx: s.x, ty: s.y}
	for i := range s.bones {
		b := &s.bones[i]
		local := localAffine(b.x, b.y, b.rotation, b.scaleX, b.scaleY)
		if b.parent < 0 {
			b.world = root.mul(local)
		} else {
			b.world = s.bones[b.parent].world.mul(local)
		}
	}
}

func (s *Skeleton) Position() (float64, float64) {
	return s.x, s.y
}

func (s *Skeleton) SetPosition(x, y float64) {
	s.x, s.y = x, y
}

// DrawableGeometry вершины видимых вложений в мировых координатах, в порядке слотов.
// Слоты без вложения или с пустой геометрией пропускаются.
func (s *Skeleton) DrawableGeometry() []pose.VertexGroup {
	groups := make([]pose.VertexGroup, 0, len(s.slots))
	for i := range s.slots {
		sl := &s.slots[i]
		if sl.attachment == "" {
			continue
		}
		att, ok := s.attachments[sl.data.Name][sl.attachment]
		if !ok || len(att.local) == 0 {
			continue
		}
		world := s.bones[sl.bone].world
		verts := make([]float64, len(att.local))
		for j := 0; j < len(att.local); j += 2 {
			verts[j], verts[j+1] = world.apply(att.local[j], att.local[j+1])
		}
		kind := pose.Region
		if att.data.Type == "mesh" {
			kind = pose.Mesh
		}
		groups = append(groups, pose.VertexGroup{
			Slot:      sl.data.Name,
			Name:      sl.attachment,
			Kind:      kind,
			Vertices:  verts,
			Triangles: att.tris,
			Color:     tint(sl.color, att.color),
		})
	}
	return groups
}

func tint(a, b color.NRGBA) color.NRGBA {
	mul := func(x, y uint8) uint8 { return uint8((uint16(x)*uint16(y) + 127) / 255) }
	return color.NRGBA{R: mul(a.R, b.R), G: mul(a.G, b.G), B: mul(a.B, b.B), A: mul(a.A, b.A)}
}
