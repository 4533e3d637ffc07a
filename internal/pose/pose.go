// Package pose интерфейс между экспортом и скелетным движком. Экспорт не видит
// костей и ключей, только геометрию в мировых координатах и активную дорожку.
package pose

import "image/color"

type Kind int

const (
	Region Kind = iota
	Mesh
)

func (k Kind) String() string {
	if k == Mesh {
		return "mesh"
	}
	return "region"
}

// VertexGroup одно видимое вложение в мировых координатах.
// Vertices пары x,y; Triangles индексы вершин, а не чисел.
type VertexGroup struct {
	Slot      string
	Name      string
	Kind      Kind
	Vertices  []float64
	Triangles []int
	Color     color.NRGBA
}

type Track struct {
	Animation string
	Duration  float64
	TimeScale float64
	Loop      bool
}

// Drawable геометрия позы для растеризатора и подбора кадра.
type Drawable interface {
	DrawableGeometry() []VertexGroup
}

// Animator то, чем управляют часы анимации.
type Animator interface {
	StepSimulation(dt float64)
	ApplyAnimationTrack(dt float64)
	ResolveWorldTransforms()
	ActiveTrack() (Track, bool)
}

type Positioner interface {
	Position() (x, y float64)
	SetPosition(x, y float64)
}

// Engine полный набор возможностей одного персонажа.
type Engine interface {
	Drawable
	Animator
	Positioner
}
