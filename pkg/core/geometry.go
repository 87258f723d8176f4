package core

import "fmt"

// Bounds represents an element's screen rectangle in pixels.
type Bounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Center returns the center point of the bounds.
func (b Bounds) Center() (x, y int) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// Contains returns true if the point is inside the bounds.
func (b Bounds) Contains(x, y int) bool {
	return x >= b.X && x < b.X+b.Width && y >= b.Y && y < b.Y+b.Height
}

// IsZero returns true for an unset rectangle.
func (b Bounds) IsZero() bool {
	return b.X == 0 && b.Y == 0 && b.Width == 0 && b.Height == 0
}

// Area returns the rectangle area in square pixels.
func (b Bounds) Area() int {
	return b.Width * b.Height
}

func (b Bounds) String() string {
	return fmt.Sprintf("[%d,%d %dx%d]", b.X, b.Y, b.Width, b.Height)
}

// RelativePosition locates an element inside its window as percentages,
// which survives window moves and resizes better than absolute pixels.
type RelativePosition struct {
	XPercent      float64 `json:"x_percent"`
	YPercent      float64 `json:"y_percent"`
	WidthPercent  float64 `json:"width_percent"`
	HeightPercent float64 `json:"height_percent"`
}

// Relative computes the position of elem within window. A zero window
// yields a zero position.
func Relative(elem, window Bounds) RelativePosition {
	if window.Width <= 0 || window.Height <= 0 {
		return RelativePosition{}
	}
	return RelativePosition{
		XPercent:      float64(elem.X-window.X) / float64(window.Width) * 100,
		YPercent:      float64(elem.Y-window.Y) / float64(window.Height) * 100,
		WidthPercent:  float64(elem.Width) / float64(window.Width) * 100,
		HeightPercent: float64(elem.Height) / float64(window.Height) * 100,
	}
}
