package ui

import "github.com/rivo/tview"

// Pages is a stack of components over tview.Pages. The top component is the
// only one visible and the only one started.
type Pages struct {
	*tview.Pages
	stack    []Component
	onChange func(top Component)
}

// NewPages creates an empty page stack.
func NewPages() *Pages {
	return &Pages{Pages: tview.NewPages()}
}

// SetOnChange sets a callback that fires after the top component changes.
func (p *Pages) SetOnChange(fn func(top Component)) {
	p.onChange = fn
}

// Push shows c above the current top.
func (p *Pages) Push(c Component) {
	if top := p.Top(); top != nil {
		top.Stop()
		p.HidePage(top.Name())
	}
	p.stack = append(p.stack, c)
	if !p.HasPage(c.Name()) {
		p.AddPage(c.Name(), c, true, false)
	}
	p.show(c)
}

// Pop removes the top component and returns it. The last component is never
// popped.
func (p *Pages) Pop() Component {
	if len(p.stack) < 2 {
		return nil
	}
	top := p.stack[len(p.stack)-1]
	top.Stop()
	p.HidePage(top.Name())
	p.stack = p.stack[:len(p.stack)-1]
	p.show(p.stack[len(p.stack)-1])
	return top
}

// Reset replaces the whole stack with c.
func (p *Pages) Reset(c Component) {
	if top := p.Top(); top != nil {
		top.Stop()
	}
	for _, old := range p.stack {
		p.HidePage(old.Name())
	}
	p.stack = p.stack[:0]
	p.Push(c)
}

// Top returns the visible component, or nil when the stack is empty.
func (p *Pages) Top() Component {
	if len(p.stack) == 0 {
		return nil
	}
	return p.stack[len(p.stack)-1]
}

// Depth returns the current stack depth.
func (p *Pages) Depth() int {
	return len(p.stack)
}

func (p *Pages) show(c Component) {
	p.ShowPage(c.Name())
	p.SendToFront(c.Name())
	c.Start()
	if p.onChange != nil {
		p.onChange(c)
	}
}
