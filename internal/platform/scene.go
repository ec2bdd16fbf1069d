package platform

// Scene is a named, fixed list of 2D drawing operations. Two runtimes that
// render the same scene with the same font, GPU and driver stack produce the
// same pixels.
type Scene struct {
	Name   string   `json:"name"`
	Width  int      `json:"width"`
	Height int      `json:"height"`
	Ops    []DrawOp `json:"ops"`
}

// DrawOp is one CanvasRenderingContext2D call.
type DrawOp struct {
	Op    string      `json:"op"`
	Text  string      `json:"text,omitempty"`
	Style string      `json:"style,omitempty"`
	Args  []float64   `json:"args,omitempty"`
	Stops []ColorStop `json:"stops,omitempty"`
}

type ColorStop struct {
	Offset float64 `json:"offset"`
	Color  string  `json:"color"`
}

// Draw operation names.
const (
	OpFont           = "font"
	OpTextBaseline   = "text_baseline"
	OpFillStyle      = "fill_style"
	OpLinearGradient = "linear_gradient"
	OpFillText       = "fill_text"
	OpShadow         = "shadow"
	OpComposite      = "composite"
	OpArc            = "arc"
	OpRect           = "rect"
	OpFill           = "fill"
)
