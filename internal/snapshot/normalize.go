package snapshot

// Normalize clamps the request dimensions into the allowed ranges and
// applies defaults for unset values. The routing layer already validated
// the request, but the engine imposes hard device limits, so this runs
// again before every capture.
func Normalize(req RenderRequest, limits Limits) NormalizedRequest {
	width := req.Width
	if width == 0 {
		width = DefaultWidth
	}
	height := req.Height
	if height == 0 {
		height = DefaultHeight
	}
	return NormalizedRequest{
		URL:      req.URL,
		Width:    clamp(width, limits.MinWidth, limits.MaxWidth),
		Height:   clamp(height, limits.MinHeight, limits.MaxHeight),
		FullPage: req.FullPage,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
