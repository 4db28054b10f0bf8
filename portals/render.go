package portals

import "context"

// Instruction is one step of the scripted interaction a renderer executes
// against a portal page. Exactly one field is set per step. The JSON shape
// matches the render service's js_instructions contract.
type Instruction struct {
	// Wait pauses for the given number of milliseconds.
	Wait int `json:"wait,omitempty"`
	// Fill is a [selector, value] pair typed into the first matching input.
	Fill []string `json:"fill,omitempty"`
	// Click clicks the first element matching the selector.
	Click string `json:"click,omitempty"`
}

// RenderRequest describes one rendered-page fetch.
type RenderRequest struct {
	TargetURL    string
	Instructions []Instruction
}

// RenderClient turns a target URL plus an interaction script into final
// rendered HTML. Implementations: RemoteRenderer (anti-bot proxy service)
// and BrowserRenderer (local headless browser for development).
type RenderClient interface {
	Render(ctx context.Context, req RenderRequest) (string, error)
}
