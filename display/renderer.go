package display

import "trackscreen/assets"

// Surface is the presentation side the Renderer mutates: a text label per
// field and at most one icon element placed before the system label.
type Surface interface {
	SetText(f Field, text string)
	CreateIcon(src, alt string)
	SetIconSource(src string)
	RemoveIcon()
}

// Observer is told about every non-empty diff after it has been rendered.
type Observer interface {
	Observe(screen string, st State, d Diff)
}

// Renderer writes diffs through to a Surface. It tracks whether the icon
// element exists so a remove without an element is a no-op.
type Renderer struct {
	surface  Surface
	show     Fields
	iconBase string
	buster   assets.CacheBuster
	hasIcon  bool
}

func NewRenderer(surface Surface, show Fields, iconBase string, buster assets.CacheBuster) *Renderer {
	return &Renderer{surface: surface, show: show, iconBase: iconBase, buster: buster}
}

// Apply performs the mutations for d and returns how many were issued.
func (r *Renderer) Apply(d Diff) int {
	if r == nil || r.surface == nil || d.Empty() {
		return 0
	}
	n := 0
	if Has(d.Changed, Game) && Has(r.show, Game) {
		r.surface.SetText(Game, d.Game)
		n++
	}
	if Has(d.Changed, System) && Has(r.show, System) {
		r.surface.SetText(System, d.System)
		n++
	}
	if Has(d.Changed, Icon) && Has(r.show, Icon) {
		n += r.applyIcon(d.Icon)
	}
	return n
}

func (r *Renderer) applyIcon(tr IconTransition) int {
	switch tr.Op {
	case IconCreate:
		src := assets.Bust(assets.IconRef(r.iconBase, tr.Ref), r.buster)
		if r.hasIcon {
			r.surface.SetIconSource(src)
			return 1
		}
		r.surface.CreateIcon(src, tr.Alt)
		r.hasIcon = true
		return 1
	case IconUpdate:
		src := assets.Bust(assets.IconRef(r.iconBase, tr.Ref), r.buster)
		if !r.hasIcon {
			r.surface.CreateIcon(src, tr.Alt)
			r.hasIcon = true
			return 1
		}
		r.surface.SetIconSource(src)
		return 1
	case IconRemove:
		if !r.hasIcon {
			return 0
		}
		r.surface.RemoveIcon()
		r.hasIcon = false
		return 1
	default:
		return 0
	}
}
