package paging

// Anchor captures the scroll container before older content is prepended.
type Anchor struct {
	Height int
	Offset int
}

// Capture records the content height and scroll offset before a prepend.
func Capture(height, offset int) Anchor {
	return Anchor{Height: height, Offset: offset}
}

// Compensate returns the scroll offset that keeps the same content under the
// viewport after the container grew to newHeight.
func (a Anchor) Compensate(newHeight int) int {
	offset := newHeight - a.Height + a.Offset
	if offset < 0 {
		return 0
	}
	return offset
}

// NearTop reports whether offset is close enough to the top to fire the sentinel.
func NearTop(offset, threshold int) bool {
	return offset <= threshold
}

// AtBottom reports whether the viewport is anchored at the bottom, allowing
// threshold rows of slack.
func AtBottom(contentHeight, viewportHeight, offset, threshold int) bool {
	if viewportHeight <= 0 {
		return true
	}
	maxOffset := contentHeight - viewportHeight
	if maxOffset < 0 {
		maxOffset = 0
	}
	return offset >= maxOffset-threshold
}
