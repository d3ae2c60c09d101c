// Package schema validates raw image records into typed annotations.
//
// Validation only classifies a record. What happens to a bad record (skip it or
// abort the split) is decided by the caller through a Policy.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/menta2k/bddconv/pkg/types"
)

// ValidationError describes a record that failed schema or geometry checks
type ValidationError struct {
	Record int    // index of the record in its source, -1 if unknown
	Image  string // image name, if it could be read
	Label  int    // index of the offending label, -1 for record level problems
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	if e.Record >= 0 {
		fmt.Fprintf(&b, "record %d", e.Record)
	} else {
		b.WriteString("record")
	}
	if e.Image != "" {
		fmt.Fprintf(&b, " (%s)", e.Image)
	}
	if e.Label >= 0 {
		fmt.Fprintf(&b, " label %d", e.Label)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, ": %s", e.Field)
	}
	fmt.Fprintf(&b, ": %s", e.Reason)
	return b.String()
}

// Result is either a validated annotation or the reason validation failed
type Result struct {
	ann types.ImageAnnotation
	err *ValidationError
}

// OK reports whether the record passed validation
func (r Result) OK() bool {
	return r.err == nil
}

// Annotation returns the validated record. It is the zero value when !OK().
func (r Result) Annotation() types.ImageAnnotation {
	return r.ann
}

// Err returns the validation failure, or nil
func (r Result) Err() *ValidationError {
	return r.err
}

type rawRecord struct {
	Name       *string             `json:"name"`
	Attributes *rawImageAttributes `json:"attributes"`
	Labels     []rawLabel          `json:"labels"`
}

type rawImageAttributes struct {
	Scene     *string `json:"scene"`
	TimeOfDay *string `json:"timeofday"`
	Weather   *string `json:"weather"`
}

type rawLabel struct {
	ID         *json.Number   `json:"id"`
	Category   *string        `json:"category"`
	Box2D      *rawBox        `json:"box2d"`
	Attributes map[string]any `json:"attributes"`
}

type rawBox struct {
	X1 *float64 `json:"x1"`
	Y1 *float64 `json:"y1"`
	X2 *float64 `json:"x2"`
	Y2 *float64 `json:"y2"`
}

// Validate checks a raw record whose position in the source is unknown
func Validate(raw types.RawImageRecord) Result {
	return ValidateAt(-1, raw)
}

// ValidateAt checks the raw record found at index in its source
func ValidateAt(index int, raw types.RawImageRecord) Result {
	fail := func(image string, label int, field, reason string) Result {
		return Result{err: &ValidationError{Record: index, Image: image, Label: label, Field: field, Reason: reason}}
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fail("", -1, "", "record is not a JSON object")
	}

	var rec rawRecord
	if err := json.Unmarshal(trimmed, &rec); err != nil {
		var ute *json.UnmarshalTypeError
		if errors.As(err, &ute) {
			return fail(peekName(trimmed), -1, ute.Field, fmt.Sprintf("expected %s, got %s", ute.Type, ute.Value))
		}
		return fail("", -1, "", err.Error())
	}
	if rec.Name == nil {
		return fail("", -1, "name", "field required")
	}
	name := *rec.Name
	// the name becomes a label file stem, so it cannot be empty
	if name == "" {
		return fail("", -1, "name", "must not be empty")
	}

	ann := types.ImageAnnotation{
		Name:   name,
		Labels: make([]types.ObjectLabel, 0, len(rec.Labels)),
	}
	if rec.Attributes != nil {
		ann.Attributes = &types.ImageAttributes{
			Scene:     rec.Attributes.Scene,
			TimeOfDay: rec.Attributes.TimeOfDay,
			Weather:   rec.Attributes.Weather,
		}
	}

	for i, l := range rec.Labels {
		if l.ID == nil {
			return fail(name, i, "id", "field required")
		}
		id, err := l.ID.Int64()
		if err != nil {
			return fail(name, i, "id", fmt.Sprintf("expected an integer, got %s", l.ID.String()))
		}
		if l.Category == nil {
			return fail(name, i, "category", "field required")
		}
		label := types.ObjectLabel{
			ID:         id,
			Category:   *l.Category,
			Attributes: l.Attributes,
		}
		if l.Box2D != nil {
			box, field, reason := checkBox(l.Box2D)
			if reason != "" {
				return fail(name, i, field, reason)
			}
			label.Box2D = box
		}
		ann.Labels = append(ann.Labels, label)
	}

	return Result{ann: ann}
}

// checkBox enforces x2 > x1 and y2 > y1. Degenerate and inverted boxes are
// rejected rather than repaired.
func checkBox(b *rawBox) (*types.Box2D, string, string) {
	switch {
	case b.X1 == nil:
		return nil, "box2d.x1", "field required"
	case b.Y1 == nil:
		return nil, "box2d.y1", "field required"
	case b.X2 == nil:
		return nil, "box2d.x2", "field required"
	case b.Y2 == nil:
		return nil, "box2d.y2", "field required"
	}
	box := &types.Box2D{X1: *b.X1, Y1: *b.Y1, X2: *b.X2, Y2: *b.Y2}
	if box.X2 <= box.X1 {
		return nil, "box2d.x2", fmt.Sprintf("x2 must be > x1 (x1=%g, x2=%g)", box.X1, box.X2)
	}
	if box.Y2 <= box.Y1 {
		return nil, "box2d.y2", fmt.Sprintf("y2 must be > y1 (y1=%g, y2=%g)", box.Y1, box.Y2)
	}
	return box, "", ""
}

// peekName recovers the image name of a record that failed to decode
func peekName(raw []byte) string {
	var v struct {
		Name string `json:"name"`
	}
	_ = json.Unmarshal(raw, &v)
	return v.Name
}
