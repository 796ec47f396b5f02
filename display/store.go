// Package display holds the last-applied value of each observable field of a
// screen and turns incoming updates into the minimal set of surface mutations.
package display

import "trackscreen/protocol"

// Field identifies one observable field.
type Field uint8

const (
	Game Field = 1 << iota
	System
	Icon
)

func (f Field) String() string {
	switch f {
	case Game:
		return "game"
	case System:
		return "system"
	case Icon:
		return "icon"
	default:
		return "unknown"
	}
}

// Fields is a set of Field values.
type Fields = Field

// Has reports whether set contains f.
func Has(set Fields, f Field) bool {
	return set&f != 0
}

// State is the cached display triple. Empty strings mean "nothing shown".
type State struct {
	Game   string
	System string
	Icon   string
}

// IconOp discriminates the icon element transition.
type IconOp int

const (
	IconNone IconOp = iota
	// IconCreate: empty -> non-empty, insert a new element next to the label.
	IconCreate
	// IconUpdate: non-empty -> different non-empty, change the source in place.
	IconUpdate
	// IconRemove: non-empty -> empty, drop the element if present.
	IconRemove
)

func (op IconOp) String() string {
	switch op {
	case IconCreate:
		return "create"
	case IconUpdate:
		return "update"
	case IconRemove:
		return "remove"
	default:
		return "none"
	}
}

// IconTransition carries the icon change and the values needed to render it.
type IconTransition struct {
	Op  IconOp
	Ref string
	Alt string
}

// Diff lists exactly the fields whose cached value changed.
type Diff struct {
	Changed Fields
	Game    string
	System  string
	Icon    IconTransition
}

func (d Diff) Empty() bool {
	return d.Changed == 0
}

// GameChanged is the game-identity signal that replaces the thumbnail set.
func (d Diff) GameChanged() bool {
	return Has(d.Changed, Game)
}

// Store caches the observed fields of one screen. Not safe for concurrent use;
// it lives on the screen's loop.
type Store struct {
	observe Fields
	state   State
}

func NewStore(observe Fields) *Store {
	return &Store{observe: observe}
}

// Seed sets the cached state without producing a diff, for screens that start
// with server-rendered content.
func (s *Store) Seed(st State) {
	s.state = st
}

func (s *Store) State() State {
	return s.state
}

// Apply compares u against the cache, stores what changed and returns it.
// Fields the payload does not carry, or the screen does not observe, are left
// alone.
func (s *Store) Apply(u protocol.Update) Diff {
	var d Diff
	if Has(s.observe, Game) && u.Game != nil && *u.Game != s.state.Game {
		s.state.Game = *u.Game
		d.Changed |= Game
		d.Game = s.state.Game
	}
	if Has(s.observe, System) && u.Console != nil && *u.Console != s.state.System {
		s.state.System = *u.Console
		d.Changed |= System
		d.System = s.state.System
	}
	if Has(s.observe, Icon) && u.Icon != nil && *u.Icon != s.state.Icon {
		d.Icon = iconTransition(s.state.Icon, *u.Icon)
		d.Icon.Alt = s.state.System
		if u.Console != nil {
			d.Icon.Alt = *u.Console
		}
		s.state.Icon = *u.Icon
		d.Changed |= Icon
	}
	return d
}

func iconTransition(prev, next string) IconTransition {
	switch {
	case prev == "" && next != "":
		return IconTransition{Op: IconCreate, Ref: next}
	case prev != "" && next == "":
		return IconTransition{Op: IconRemove}
	case prev != next:
		return IconTransition{Op: IconUpdate, Ref: next}
	default:
		return IconTransition{Op: IconNone}
	}
}
