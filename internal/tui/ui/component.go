package ui

import "github.com/rivo/tview"

// MenuHint describes a keyboard shortcut for display in the hint bar.
type MenuHint struct {
	Key         string
	Description string
}

// Component is a page the app can push onto the page stack.
type Component interface {
	tview.Primitive
	Name() string
	// Start runs when the component becomes the top page, Stop when it
	// leaves.
	Start()
	Stop()
	Hints() []MenuHint
}
