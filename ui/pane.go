package ui

import (
	"fmt"
	"path"
	"strings"
	"sync"

	"trackscreen/carousel"
	"trackscreen/display"
)

// screenPane is the in-memory model of one screen: what a browser would be
// showing right now. Every mutation re-renders and hands the text to onChange.
type screenPane struct {
	id   string
	kind string
	opts Options

	mu         sync.Mutex
	game       string
	system     string
	iconSrc    string
	iconAlt    string
	hasIcon    bool
	images     []carousel.Image
	visible    int
	size       carousel.Size
	transition string
	state      string

	onChange func(text string)
}

func newScreenPane(id, kind string, opts Options, onChange func(string)) *screenPane {
	return &screenPane{id: id, kind: kind, opts: opts.normalize(), state: "closed", onChange: onChange}
}

func (p *screenPane) SetText(f display.Field, text string) {
	p.update(func() {
		switch f {
		case display.Game:
			p.game = text
		case display.System:
			p.system = text
		}
	})
}

func (p *screenPane) CreateIcon(src, alt string) {
	p.update(func() {
		p.iconSrc, p.iconAlt, p.hasIcon = src, alt, true
	})
}

func (p *screenPane) SetIconSource(src string) {
	p.update(func() { p.iconSrc = src })
}

func (p *screenPane) RemoveIcon() {
	p.update(func() {
		p.iconSrc, p.iconAlt, p.hasIcon = "", "", false
	})
}

func (p *screenPane) ResetImages(images []carousel.Image, visible int) {
	p.update(func() {
		p.images = append(p.images[:0], images...)
		p.visible = visible
		p.transition = ""
	})
}

func (p *screenPane) CrossFade(from, to int) {
	p.update(func() {
		p.visible = to
		p.transition = fmt.Sprintf("%d->%d %s %s", from+1, to+1, p.opts.FadeDuration, p.opts.FadeType)
	})
}

func (p *screenPane) Resize(size carousel.Size) {
	p.update(func() { p.size = size })
}

func (p *screenPane) SetConnState(state string) {
	p.update(func() { p.state = state })
}

func (p *screenPane) update(fn func()) {
	p.mu.Lock()
	fn()
	text := p.renderLocked()
	cb := p.onChange
	p.mu.Unlock()
	if cb != nil {
		cb(text)
	}
}

// Render returns the current pane text.
func (p *screenPane) Render() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.renderLocked()
}

func (p *screenPane) renderLocked() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\n", p.state, p.kind)
	switch p.kind {
	case "thumbnails":
		p.renderImagesLocked(&b)
	default:
		if p.kind == "game" || p.kind == "all" {
			fmt.Fprintf(&b, "Game:   %s\n", orDash(p.game))
		}
		if p.kind == "system" || p.kind == "all" {
			icon := ""
			if p.hasIcon {
				icon = fmt.Sprintf(" (%s)", path.Base(stripQuery(p.iconSrc)))
			}
			fmt.Fprintf(&b, "System: %s%s\n", orDash(p.system), icon)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (p *screenPane) renderImagesLocked(b *strings.Builder) {
	if len(p.images) == 0 {
		b.WriteString("Thumbnails: -\n")
		return
	}
	img := p.images[p.visible]
	label := path.Base(stripQuery(img.Src))
	if img.Placeholder {
		label = img.Alt
	}
	fmt.Fprintf(b, "Thumbnail %d/%d: %s\n", p.visible+1, len(p.images), label)
	if p.size.Width > 0 || p.size.Height > 0 {
		fmt.Fprintf(b, "Size: %dx%d\n", p.size.Width, p.size.Height)
	}
	if p.transition != "" {
		fmt.Fprintf(b, "Fade: %s\n", p.transition)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func stripQuery(ref string) string {
	if i := strings.IndexByte(ref, '?'); i >= 0 {
		return ref[:i]
	}
	return ref
}
