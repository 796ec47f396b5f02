// Package screen wires one status screen together: its push connection, the
// display store and renderer, and for thumbnail screens the carousel, all on
// a single event loop.
package screen

import (
	"fmt"
	"strings"

	"trackscreen/display"
)

// Kind selects which fields a screen observes and renders.
type Kind string

const (
	KindGame       Kind = "game"
	KindSystem     Kind = "system"
	KindAll        Kind = "all"
	KindThumbnails Kind = "thumbnails"
)

// ParseKind normalizes a configured kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindGame, KindSystem, KindAll, KindThumbnails:
		return k, nil
	default:
		return "", fmt.Errorf("screen: unknown kind %q", s)
	}
}

// Observes is the set of fields cached by the store. A thumbnail screen
// tracks the game only as its identity signal.
func (k Kind) Observes() display.Fields {
	switch k {
	case KindGame, KindThumbnails:
		return display.Game
	case KindSystem:
		return display.System | display.Icon
	case KindAll:
		return display.Game | display.System | display.Icon
	default:
		return 0
	}
}

// Shows is the set of fields written to the text surface.
func (k Kind) Shows() display.Fields {
	if k == KindThumbnails {
		return 0
	}
	return k.Observes()
}

// HasCarousel reports whether the screen rotates thumbnails.
func (k Kind) HasCarousel() bool {
	return k == KindThumbnails
}
