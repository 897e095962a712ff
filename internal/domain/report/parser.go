package report

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/okian/syncgaze/internal/domain/model"
)

// Field is one metadata line.
type Field struct {
	Section string
	Key     string
	Value   string
}

// Parsed is a decoded report.
type Parsed struct {
	Metadata          []Field
	ValidationErrorPx *float64
	Records           []model.CorrelatedRecord
}

// Value returns the first metadata value stored under key.
func (p *Parsed) Value(key string) (string, bool) {
	for _, f := range p.Metadata {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// SessionID returns the session id recorded in the metadata, if any.
func (p *Parsed) SessionID() string {
	v, _ := p.Value(KeySessionID)
	return v
}

// Date returns the session date recorded in the metadata.
func (p *Parsed) Date() (time.Time, bool) {
	v, ok := p.Value(KeySessionDate)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Parse decodes a report produced by Write.
func Parse(r io.Reader) (*Parsed, error) {
	br := bufio.NewReader(r)
	out := &Parsed{}
	section := ""

	for {
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read report: %w", err)
		}
		trimmed := strings.TrimRight(line, "\r\n")
		switch {
		case trimmed == "":
		case strings.HasPrefix(trimmed, validationPrefix):
			v := strings.TrimPrefix(trimmed, validationPrefix)
			if v != notAvailable {
				f, perr := finite(v)
				if perr != nil {
					return nil, fmt.Errorf("validation error %q: %w", v, perr)
				}
				out.ValidationErrorPx = &f
			}
		case strings.HasPrefix(trimmed, "# --- ") && strings.HasSuffix(trimmed, " ---"):
			section = strings.TrimSuffix(strings.TrimPrefix(trimmed, "# --- "), " ---")
		case strings.HasPrefix(trimmed, "#"):
			body := strings.TrimSpace(strings.TrimPrefix(trimmed, "#"))
			key, value, _ := strings.Cut(body, ": ")
			out.Metadata = append(out.Metadata, Field{Section: section, Key: key, Value: value})
		case trimmed == Header:
			recs, rerr := parseRows(br)
			if rerr != nil {
				return nil, rerr
			}
			out.Records = recs
			return out, nil
		default:
			return nil, fmt.Errorf("%w: %q", ErrBadHeader, trimmed)
		}
		if errors.Is(err, io.EOF) {
			return nil, ErrMissingHeader
		}
	}
}

func parseRows(r io.Reader) ([]model.CorrelatedRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Columns)
	cr.ReuseRecord = true

	var (
		out         []model.CorrelatedRecord
		first, last int64
	)
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedRow, err)
		}
		rec, err := decodeRow(row)
		if err != nil {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("%w: line %d: %w", ErrMalformedRow, line, err)
		}
		if len(out) == 0 {
			first, last = rec.TimestampMs, rec.TimestampMs
		}
		first, last = min(first, rec.TimestampMs), max(last, rec.TimestampMs)
		if last-first > MaxSpanMs {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("%w: line %d: timestamps span %d ms", ErrTimestampRange, line, last-first)
		}
		out = append(out, rec)
	}
}

func decodeRow(row []string) (model.CorrelatedRecord, error) {
	var (
		rec model.CorrelatedRecord
		err error
	)
	if rec.TimestampMs, err = strconv.ParseInt(row[0], 10, 64); err != nil {
		return rec, fmt.Errorf("timestamp: %w", err)
	}
	if rec.TimestampMs < 0 {
		return rec, fmt.Errorf("timestamp: %d: %w", rec.TimestampMs, ErrTimestampRange)
	}
	if rec.Phase, err = model.ParsePhase(row[1]); err != nil {
		return rec, err
	}
	rec.TargetID = model.ID(row[2])
	if rec.Target3D, err = vec3(row[3:6]); err != nil {
		return rec, fmt.Errorf("target3D: %w", err)
	}
	if rec.TargetScreen, err = point(row[6:8]); err != nil {
		return rec, fmt.Errorf("target: %w", err)
	}
	if rec.Gaze, err = point(row[8:10]); err != nil {
		return rec, fmt.Errorf("gaze: %w", err)
	}
	if rec.Pointer, err = point(row[10:12]); err != nil {
		return rec, fmt.Errorf("mouse: %w", err)
	}
	if rec.CameraRotation, err = vec3(row[12:15]); err != nil {
		return rec, fmt.Errorf("cameraRot: %w", err)
	}
	if rec.PlayerPosition, err = vec3(row[15:18]); err != nil {
		return rec, fmt.Errorf("player: %w", err)
	}
	if rec.HitRegistered, err = strconv.ParseBool(row[18]); err != nil {
		return rec, fmt.Errorf("hitRegistered: %w", err)
	}
	return rec, nil
}

func floatsOrNil(fields []string) ([]float64, error) {
	empty := 0
	for _, f := range fields {
		if f == "" {
			empty++
		}
	}
	switch empty {
	case len(fields):
		return nil, nil
	case 0:
	default:
		return nil, errors.New("partially empty coordinates")
	}
	vals := make([]float64, len(fields))
	for i, f := range fields {
		v, err := finite(f)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

// finite parses a float and rejects NaN and infinities, which have no JSON
// encoding.
func finite(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%q is not a finite number", s)
	}
	return v, nil
}

func point(fields []string) (*model.Point, error) {
	v, err := floatsOrNil(fields)
	if v == nil || err != nil {
		return nil, err
	}
	return model.Pt(v[0], v[1]), nil
}

func vec3(fields []string) (*model.Vec3, error) {
	v, err := floatsOrNil(fields)
	if v == nil || err != nil {
		return nil, err
	}
	return model.V3(v[0], v[1], v[2]), nil
}
