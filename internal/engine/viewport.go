package engine

const (
	// BottomThreshold is how close to the end counts as "at bottom".
	BottomThreshold = 50
	// TopThreshold is how close to the start triggers loading older history.
	TopThreshold = 10
)

// Viewport is the scroll geometry reported by the renderer.
type Viewport struct {
	ScrollTop    float64 `json:"scroll_top"`
	ScrollHeight float64 `json:"scroll_height"`
	ClientHeight float64 `json:"client_height"`
}

// AtBottom reports whether the last message is in view.
func (v Viewport) AtBottom() bool {
	return v.ScrollHeight-v.ScrollTop-v.ClientHeight <= BottomThreshold
}

// NearTop reports whether the first message is (almost) in view.
func (v Viewport) NearTop() bool {
	return v.ScrollTop <= TopThreshold
}

// AnchorScrollTop returns the scroll offset that keeps the previously visible
// content in place after older messages grew the content by
// newHeight-prevHeight.
func AnchorScrollTop(prevTop, prevHeight, newHeight float64) float64 {
	return prevTop + (newHeight - prevHeight)
}
