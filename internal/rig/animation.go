package rig

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/fogleman/ease"
)

type curve func(t float64) float64

var curves = map[string]curve{
	"linear":     ease.Linear,
	"inquad":     ease.InQuad,
	"outquad":    ease.OutQuad,
	"inoutquad":  ease.InOutQuad,
	"incubic":    ease.InCubic,
	"outcubic":   ease.OutCubic,
	"inoutcubic": ease.InOutCubic,
	"insine":     ease.InSine,
	"outsine":    ease.OutSine,
	"inoutsine":  ease.InOutSine,
	"inback":     ease.InBack,
	"outback":    ease.OutBack,
	"inoutback":  ease.InOutBack,
	"outbounce":  ease.OutBounce,
	"outelastic": ease.OutElastic,
}

// stepped держит значение до следующего ключа.
func stepped(float64) float64 { return 0 }

func curveFunc(name string) (curve, error) {
	key := strings.ToLower(strings.NewReplacer("-", "", "_", "").Replace(name))
	switch key {
	case "":
		return ease.Linear, nil
	case "stepped", "step":
		return stepped, nil
	}
	if c, ok := curves[key]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("unknown curve %q", name)
}

type key struct {
	time  float64
	x, y  float64
	curve curve
}

type timeline []key

// sample значение каналов в момент t; ok == false для пустой шкалы.
func (tl timeline) sample(t float64) (x, y float64, ok bool) {
	if len(tl) == 0 {
		return 0, 0, false
	}
	if t <= tl[0].time {
		return tl[0].x, tl[0].y, true
	}
	last := tl[len(tl)-1]
	if t >= last.time {
		return last.x, last.y, true
	}
	i := sort.Search(len(tl), func(i int) bool { return tl[i].time > t }) - 1
	a, b := tl[i], tl[i+1]
	span := b.time - a.time
	if span <= 0 {
		return b.x, b.y, true
	}
	p := a.curve((t - a.time) / span)
	return lerp(a.x, b.x, p), lerp(a.y, b.y, p), true
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

type boneTimelines struct {
	bone      int
	rotate    timeline
	translate timeline
	scale     timeline
}

type attachmentKey struct {
	time float64
	name string
}

type slotTimeline struct {
	slot int
	keys []attachmentKey
}

// Animation скомпилированная AnimationData, привязанная к индексам костей и слотов.
type Animation struct {
	Name     string
	Duration float64
	bones    []boneTimelines
	slots    []slotTimeline
}

func compileAnimation(d AnimationData, boneIndex, slotIndex map[string]int) (*Animation, error) {
	a := &Animation{Name: d.Name}
	names := make([]string, 0, len(d.Bones))
	for name := range d.Bones {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		bi, ok := boneIndex[name]
		if !ok {
			return nil, fmt.Errorf("unknown bone %q", name)
		}
		tl := d.Bones[name]
		bt := boneTimelines{bone: bi}
		var err error
		if bt.rotate, err = compileKeys(tl.Rotate, 0, false); err != nil {
			return nil, err
		}
		if bt.translate, err = compileKeys(tl.Translate, 0, true); err != nil {
			return nil, err
		}
		if bt.scale, err = compileKeys(tl.Scale, 1, true); err != nil {
			return nil, err
		}
		for _, t := range []timeline{bt.rotate, bt.translate, bt.scale} {
			if n := len(t); n > 0 {
				a.Duration = math.Max(a.Duration, t[n-1].time)
			}
		}
		a.bones = append(a.bones, bt)
	}

	slotNames := make([]string, 0, len(d.Slots))
	for name := range d.Slots {
		slotNames = append(slotNames, name)
	}
	sort.Strings(slotNames)
	for _, name := range slotNames {
		si, ok := slotIndex[name]
		if !ok {
			return nil, fmt.Errorf("unknown slot %q", name)
		}
		st := slotTimeline{slot: si}
		for _, k := range d.Slots[name].Attachment {
			st.keys = append(st.keys, attachmentKey{time: k.Time, name: k.Name})
			a.Duration = math.Max(a.Duration, k.Time)
		}
		sort.SliceStable(st.keys, func(i, j int) bool { return st.keys[i].time < st.keys[j].time })
		a.slots = append(a.slots, st)
	}
	return a, nil
}

// compileKeys: для rotate (pair=false) берётся Value, для пар X/Y, пропущенный канал = def.
func compileKeys(keys []KeyData, def float64, pair bool) (timeline, error) {
	tl := make(timeline, 0, len(keys))
	for _, k := range keys {
		c, err := curveFunc(k.Curve)
		if err != nil {
			return nil, err
		}
		out := key{time: k.Time, curve: c}
		if pair {
			out.x, out.y = def, def
			if k.X != nil {
				out.x = *k.X
			}
			if k.Y != nil {
				out.y = *k.Y
			}
		} else {
			out.x = k.Value
		}
		tl = append(tl, out)
	}
	return tl, nil
}

// apply ставит позу s на момент t поверх позы по умолчанию:
// поворот и смещение прибавляются, масштаб умножается.
func (a *Animation) apply(s *Skeleton, t float64) {
	for i := range s.bones {
		s.bones[i].resetLocal()
	}
	for _, bt := range a.bones {
		b := &s.bones[bt.bone]
		if r, _, ok := bt.rotate.sample(t); ok {
			b.rotation += r
		}
		if x, y, ok := bt.translate.sample(t); ok {
			b.x += x
			b.y += y
		}
		if x, y, ok := bt.scale.sample(t); ok {
			b.scaleX *= x
			b.scaleY *= y
		}
	}
	for i := range s.slots {
		s.slots[i].attachment = s.slots[i].data.Attachment
	}
	for _, st := range a.slots {
		if len(st.keys) == 0 || t < st.keys[0].time {
			continue
		}
		i := sort.Search(len(st.keys), func(i int) bool { return st.keys[i].time > t }) - 1
		s.slots[st.slot].attachment = st.keys[i].name
	}
}

// TrackEntry анимация на единственной дорожке скелета.
type TrackEntry struct {
	Animation *Animation
	Loop      bool
	TimeScale float64
	Time      float64
}

// AnimationTime время дорожки внутри анимации: по модулю длительности в цикле,
// иначе зажато в [0, Duration].
func (e *TrackEntry) AnimationTime() float64 {
	d := e.Animation.Duration
	if d <= 0 {
		return 0
	}
	if e.Loop {
		t := math.Mod(e.Time, d)
		if t < 0 {
			t += d
		}
		return t
	}
	return math.Min(math.Max(e.Time, 0), d)
}
