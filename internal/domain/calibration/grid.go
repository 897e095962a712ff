package calibration

import "github.com/okian/syncgaze/internal/domain/model"

// DefaultClicksPerPoint is the number of clicks each grid dot needs.
const DefaultClicksPerPoint = 3

// DefaultGrid is the click-grid dot sequence in viewport percentages.
var DefaultGrid = []model.Point{
	{X: 50, Y: 50},
	{X: 95, Y: 5}, {X: 5, Y: 95}, {X: 95, Y: 95},
	{X: 25, Y: 40},
	{X: 50, Y: 5}, {X: 50, Y: 95}, {X: 5, Y: 50}, {X: 95, Y: 50},
	{X: 75, Y: 25}, {X: 25, Y: 75}, {X: 75, Y: 75},
	{X: 35, Y: 35},
}

// GridPoint converts a percentage dot to viewport pixels.
func GridPoint(pct model.Point, vp model.Viewport) model.Point {
	return model.Point{X: pct.X / 100 * vp.Width, Y: pct.Y / 100 * vp.Height}
}
