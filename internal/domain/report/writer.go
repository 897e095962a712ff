package report

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/okian/syncgaze/internal/domain/model"
)

// Document is everything a report is rendered from.
type Document struct {
	SessionID   string
	Date        time.Time
	Participant model.Participant
	Calibration model.CalibrationInfo
	Summary     *model.SessionSummary
	Records     []model.CorrelatedRecord
}

// Write renders doc to w. The output depends only on doc.
func Write(w io.Writer, doc *Document) error {
	bw := bufio.NewWriter(w)

	section(bw, SectionParticipant)
	meta(bw, "Participant Label", orNA(doc.Participant.Label))
	meta(bw, KeySessionID, doc.SessionID)
	meta(bw, KeySessionDate, doc.Date.UTC().Format(time.RFC3339Nano))
	meta(bw, "Consent Accepted", yesNo(doc.Participant.ConsentAccepted))
	meta(bw, "Consent Timestamp", timeOrNA(doc.Participant.ConsentTimestamp))
	bw.WriteString("\n")

	cal := &doc.Calibration
	section(bw, SectionSystem)
	meta(bw, "Calibration Status", orNA(cal.Status))
	var stability *float64
	if cal.Validation != nil {
		stability = &cal.Validation.StabilityPx
	}
	meta(bw, "Validation Stability (px)", optFixed(stability))
	meta(bw, "Calibration Completed At", timeOrNA(cal.CompletedAt))
	if cal.Viewport != nil {
		meta(bw, "Screen Size", fmt.Sprintf("%sx%s", formatFloat(cal.Viewport.Width), formatFloat(cal.Viewport.Height)))
	} else {
		meta(bw, "Screen Size", notAvailable)
	}
	meta(bw, "Recalibration Threshold (px)", formatFloat(cal.ThresholdPx))
	meta(bw, "Calibration Dwell Radius (px)", formatFloat(cal.DwellRadiusPx))
	meta(bw, "Recalibration Count", strconv.Itoa(cal.RecalibrationCount))
	if cal.PursuitSuccessRate != nil {
		meta(bw, "Pursuit Success Rate", strconv.FormatFloat(*cal.PursuitSuccessRate*100, 'f', 1, 64)+"%")
	} else {
		meta(bw, "Pursuit Success Rate", notAvailable)
	}
	bw.WriteString("\n")

	s := doc.Summary
	if s == nil {
		s = &model.SessionSummary{}
	}
	section(bw, SectionTraining)
	meta(bw, "Duration (s)", formatFloat(float64(s.DurationMs)/1000))
	meta(bw, "Accuracy (%)", fixed(s.Accuracy*100))
	meta(bw, "Targets Hit", fmt.Sprintf("%d/%d", s.TargetsHit, s.TotalTargets))
	meta(bw, "Avg Reaction Time (ms)", fixed(s.AvgReactionTimeMs))
	meta(bw, "Gaze Accuracy (%)", fixed(s.GazeAccuracy*100))
	meta(bw, "Mouse Accuracy (%)", fixed(s.MouseAccuracy*100))
	meta(bw, "Avg Gaze Time-to-Target (ms)", fixed(s.AvgGazeReactionMs))
	meta(bw, "Avg Gaze-Mouse Divergence (px)", fixed(s.Synchronization))
	meta(bw, "Gaze Error Avg/Median/P95/Max (px)", errorStats(s.GazeError))
	meta(bw, "Mouse Error Avg/Median/P95/Max (px)", errorStats(s.PointerError))
	meta(bw, "Avg Gaze-to-Hit Error (px)", fixed(s.GazeErrorAtHit.Avg))
	meta(bw, "Avg Mouse-to-Hit Error (px)", fixed(s.PointerErrorAtHit.Avg))
	meta(bw, "Hit Interval Avg/Min/Max (ms)", fmt.Sprintf("%s/%s/%s", fixed(s.HitIntervals.Avg), fixed(s.HitIntervals.Min), fixed(s.HitIntervals.Max)))
	meta(bw, "Gaze Coverage (%)", fixed(s.Coverage.Gaze*100))
	meta(bw, "Mouse Coverage (%)", fixed(s.Coverage.Pointer*100))
	bw.WriteString("\n")

	var validationErr *float64
	if cal.Validation != nil {
		validationErr = &cal.Validation.ErrorPx
	}
	bw.WriteString(validationPrefix + optFixed(validationErr) + "\n")
	bw.WriteString(Header + "\n")

	cw := csv.NewWriter(bw)
	row := make([]string, len(Columns))
	for i := range doc.Records {
		encodeRow(row, &doc.Records[i])
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush rows: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush report: %w", err)
	}
	return nil
}

// Serialize renders doc to a byte slice.
func Serialize(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func section(w *bufio.Writer, name string) {
	w.WriteString("# --- " + name + " ---\n")
}

var lineBreaks = strings.NewReplacer("\r", " ", "\n", " ")

func meta(w *bufio.Writer, key, value string) {
	w.WriteString("# " + key + ": " + lineBreaks.Replace(value) + "\n")
}

func timeOrNA(t *time.Time) string {
	if t == nil {
		return notAvailable
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func errorStats(e model.ErrorStats) string {
	return fmt.Sprintf("%s/%s/%s/%s", fixed(e.Avg), fixed(e.Median), fixed(e.P95), fixed(e.Max))
}

func encodeRow(row []string, r *model.CorrelatedRecord) {
	row[0] = strconv.FormatInt(r.TimestampMs, 10)
	row[1] = r.Phase.String()
	row[2] = ""
	if r.TargetID != nil {
		row[2] = *r.TargetID
	}
	putVec3(row[3:6], r.Target3D)
	putPoint(row[6:8], r.TargetScreen)
	putPoint(row[8:10], r.Gaze)
	putPoint(row[10:12], r.Pointer)
	putVec3(row[12:15], r.CameraRotation)
	putVec3(row[15:18], r.PlayerPosition)
	row[18] = strconv.FormatBool(r.HitRegistered)
}

func putPoint(dst []string, p *model.Point) {
	if p == nil {
		dst[0], dst[1] = "", ""
		return
	}
	dst[0], dst[1] = formatFloat(p.X), formatFloat(p.Y)
}

func putVec3(dst []string, v *model.Vec3) {
	if v == nil {
		dst[0], dst[1], dst[2] = "", "", ""
		return
	}
	dst[0], dst[1], dst[2] = formatFloat(v.X), formatFloat(v.Y), formatFloat(v.Z)
}
