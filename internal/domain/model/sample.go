package model

import "fmt"

// StreamKind identifies one of the asynchronous input streams.
type StreamKind uint8

// Stream kinds.
const (
	StreamGaze StreamKind = iota
	StreamPointer
	StreamTarget
)

// Streams lists every stream kind in declaration order.
var Streams = []StreamKind{StreamGaze, StreamPointer, StreamTarget}

func (k StreamKind) String() string {
	switch k {
	case StreamGaze:
		return "gaze"
	case StreamPointer:
		return "pointer"
	case StreamTarget:
		return "target"
	default:
		return fmt.Sprintf("stream(%d)", uint8(k))
	}
}

// Sample is a single timestamped observation from one stream. Samples are
// values and never mutated after the bus stamps them.
type Sample struct {
	Stream      StreamKind `json:"stream"`
	X           float64    `json:"x"`
	Y           float64    `json:"y"`
	TimestampMs int64      `json:"timestampMs"`
}

// Point returns the sample position.
func (s Sample) Point() Point {
	return Point{X: s.X, Y: s.Y}
}
