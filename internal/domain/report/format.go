// Package report encodes session reports in the exported text format and
// parses them back.
//
// A report is a sequence of "# key: value" metadata lines grouped under
// "# --- Section ---" markers, a "# Validation Error (pixels): ..." line,
// the column header and one CSV row per record. Missing values are empty
// fields so that null and zero stay distinct.
package report

import (
	"strconv"
	"strings"
)

// Columns is the raw data header in order.
var Columns = []string{
	"timestamp", "phase", "targetId",
	"target3DX", "target3DY", "target3DZ",
	"targetX", "targetY",
	"gazeX", "gazeY",
	"mouseX", "mouseY",
	"cameraRotX", "cameraRotY", "cameraRotZ",
	"playerX", "playerY", "playerZ",
	"hitRegistered",
}

// MaxSpanMs is the longest accepted distance between the earliest and the
// latest row timestamp of one report.
const MaxSpanMs = 24 * 60 * 60 * 1000

// Header is the exact header row.
var Header = strings.Join(Columns, ",")

// Section names.
const (
	SectionParticipant = "Participant Metadata"
	SectionSystem      = "System & Calibration"
	SectionTraining    = "Training Summary"
)

// Metadata keys read back by the ingest path.
const (
	KeySessionID   = "Session ID"
	KeySessionDate = "Session Date"
)

const (
	validationPrefix = "# Validation Error (pixels): "
	notAvailable     = "N/A"
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func fixed(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func optFixed(v *float64) string {
	if v == nil {
		return notAvailable
	}
	return fixed(*v)
}

func yesNo(v *bool) string {
	switch {
	case v == nil:
		return notAvailable
	case *v:
		return "YES"
	default:
		return "NO"
	}
}

func orNA(s string) string {
	if s == "" {
		return notAvailable
	}
	return s
}
