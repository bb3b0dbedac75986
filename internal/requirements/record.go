package requirements

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownField is returned when a delta names a field that does not exist.
var ErrUnknownField = errors.New("unknown requirement field")

// ErrDerivedField is returned when a delta tries to set a field that only a
// producing component may set.
var ErrDerivedField = errors.New("derived field cannot be set directly")

// Field names one attribute of the user's desired home design.
type Field string

const (
	Vision               Field = "vision"
	SquareFootage        Field = "squareFootage"
	LotSize              Field = "lotSize"
	Rooms                Field = "rooms"
	Budget               Field = "budget"
	ArchitecturalStyle   Field = "architecturalStyle"
	LifestyleNeeds       Field = "lifestyleNeeds"
	SpecialRequirements  Field = "specialRequirements"
	MaterialPreferences  Field = "materialPreferences"
	AestheticPreferences Field = "aestheticPreferences"

	InspirationImage    Field = "inspirationImage"
	ArchitecturalPrompt Field = "architecturalPrompt"
	FloorPlanImage      Field = "floorPlanImage"
	InteriorImage       Field = "interiorImage"
)

// CollectedFields lists the fields gathered through conversation, in the
// fixed order they are asked for.
var CollectedFields = []Field{
	Vision,
	SquareFootage,
	LotSize,
	Rooms,
	Budget,
	ArchitecturalStyle,
	LifestyleNeeds,
	SpecialRequirements,
	MaterialPreferences,
	AestheticPreferences,
}

var labels = map[Field]string{
	Vision:               "Vision",
	SquareFootage:        "Square Footage",
	LotSize:              "Lot Size",
	Rooms:                "Rooms",
	Budget:               "Budget",
	ArchitecturalStyle:   "Architectural Style",
	LifestyleNeeds:       "Lifestyle Needs",
	SpecialRequirements:  "Special Requirements",
	MaterialPreferences:  "Material Preferences",
	AestheticPreferences: "Aesthetic Preferences",
	InspirationImage:     "Inspiration Image",
	ArchitecturalPrompt:  "Architectural Prompt",
	FloorPlanImage:       "Floor Plan",
	InteriorImage:        "Interior Rendering",
}

// Label returns the human-readable name of the field.
func (f Field) Label() string {
	if l, ok := labels[f]; ok {
		return l
	}
	return string(f)
}

// IsCollected reports whether f is gathered through conversation.
func (f Field) IsCollected() bool {
	return collectedIndex(f) >= 0
}

func collectedIndex(f Field) int {
	for i, c := range CollectedFields {
		if c == f {
			return i
		}
	}
	return -1
}

// ParseField resolves a field key, accepting the camelCase key or the
// snake_case spelling used by the config and CLI.
func ParseField(s string) (Field, bool) {
	key := strings.TrimSpace(s)
	for f := range labels {
		if string(f) == key || toSnake(string(f)) == key {
			return f, true
		}
	}
	return "", false
}

func toSnake(s string) string {
	var sb strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				sb.WriteByte('_')
			}
			sb.WriteRune(r + ('a' - 'A'))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// Delta is a set of collected-field updates produced by an extractor or a
// manual edit.
type Delta map[Field]string

// Fields returns the delta's fields in collection order.
func (d Delta) Fields() []Field {
	var out []Field
	for _, f := range CollectedFields {
		if _, ok := d[f]; ok {
			out = append(out, f)
		}
	}
	return out
}

// Record is the partial set of requirements for one design session. It is a
// value type: every mutating method returns a modified copy.
type Record struct {
	values map[Field]Optional

	inspiration *Image
	prompt      Optional
	floorPlan   *Image
	interior    *Image
}

// Get returns the value of a collected field or the architectural prompt.
func (r Record) Get(f Field) Optional {
	if f == ArchitecturalPrompt {
		return r.prompt
	}
	return r.values[f]
}

// Apply returns a copy of r with the delta's values set. Derived and unknown
// fields are rejected and leave r untouched.
func (r Record) Apply(d Delta) (Record, error) {
	for f := range d {
		if f.IsCollected() {
			continue
		}
		if _, known := labels[f]; known {
			return r, fmt.Errorf("%w: %s", ErrDerivedField, f)
		}
		return r, fmt.Errorf("%w: %s", ErrUnknownField, f)
	}
	out := r.clone()
	for f, v := range d {
		out.values[f] = Some(v)
	}
	return out, nil
}

// Clear returns a copy of r with the collected field unset.
func (r Record) Clear(f Field) Record {
	out := r.clone()
	delete(out.values, f)
	return out
}

// Changed returns the subset of d whose values differ from what r holds.
func (r Record) Changed(d Delta) Delta {
	out := Delta{}
	for f, v := range d {
		cur, ok := r.values[f].Value()
		if ok && cur == v {
			continue
		}
		out[f] = v
	}
	return out
}

// FirstUnset returns the first collected field, in fixed order, that has no
// value. An explicit empty answer counts as set.
func (r Record) FirstUnset() (Field, bool) {
	return r.FirstUnsetFrom(0)
}

// FirstUnsetFrom scans collected fields starting at index start and wraps
// around to the beginning.
func (r Record) FirstUnsetFrom(start int) (Field, bool) {
	n := len(CollectedFields)
	for i := 0; i < n; i++ {
		f := CollectedFields[(start+i)%n]
		if !r.values[f].IsSet() {
			return f, true
		}
	}
	return "", false
}

// FirstUnsetAfter scans collected fields following f, wrapping around.
func (r Record) FirstUnsetAfter(f Field) (Field, bool) {
	return r.FirstUnsetFrom(collectedIndex(f) + 1)
}

// Complete reports whether every collected field has been answered.
func (r Record) Complete() bool {
	_, missing := r.FirstUnset()
	return !missing
}

// Inspiration returns the uploaded inspiration image, if any.
func (r Record) Inspiration() *Image { return r.inspiration }

// Prompt returns the compiled architectural prompt, if any.
func (r Record) Prompt() Optional { return r.prompt }

// FloorPlan returns the accepted floor-plan image, if any.
func (r Record) FloorPlan() *Image { return r.floorPlan }

// Interior returns the interior rendering, if any.
func (r Record) Interior() *Image { return r.interior }

// WithInspiration attaches an uploaded inspiration image.
func (r Record) WithInspiration(img Image) Record {
	out := r.clone()
	out.inspiration = img.clone()
	return out
}

// WithPrompt stores the compiled architectural prompt.
func (r Record) WithPrompt(prompt string) Record {
	out := r.clone()
	out.prompt = Some(prompt)
	return out
}

// WithFloorPlan stores the accepted floor-plan image.
func (r Record) WithFloorPlan(img Image) Record {
	out := r.clone()
	out.floorPlan = img.clone()
	return out
}

// WithInterior stores the interior rendering.
func (r Record) WithInterior(img Image) Record {
	out := r.clone()
	out.interior = img.clone()
	return out
}

// Summary renders the collected fields as a plain "Label: value" block. Unset
// fields are omitted.
func (r Record) Summary() string {
	var sb strings.Builder
	for _, f := range CollectedFields {
		v, ok := r.values[f].Value()
		if !ok || v == "" {
			continue
		}
		fmt.Fprintf(&sb, "%s: %s\n", f.Label(), v)
	}
	return sb.String()
}

func (r Record) clone() Record {
	out := Record{
		values:      make(map[Field]Optional, len(r.values)),
		inspiration: r.inspiration,
		prompt:      r.prompt,
		floorPlan:   r.floorPlan,
		interior:    r.interior,
	}
	for k, v := range r.values {
		out.values[k] = v
	}
	return out
}

// recordJSON is the wire form of a Record. Image bytes are not part of it;
// they are stored and served separately.
type recordJSON struct {
	Vision               Optional `json:"vision"`
	SquareFootage        Optional `json:"squareFootage"`
	LotSize              Optional `json:"lotSize"`
	Rooms                Optional `json:"rooms"`
	Budget               Optional `json:"budget"`
	ArchitecturalStyle   Optional `json:"architecturalStyle"`
	LifestyleNeeds       Optional `json:"lifestyleNeeds"`
	SpecialRequirements  Optional `json:"specialRequirements"`
	MaterialPreferences  Optional `json:"materialPreferences"`
	AestheticPreferences Optional `json:"aestheticPreferences"`
	ArchitecturalPrompt  Optional `json:"architecturalPrompt"`
	InspirationImage     bool     `json:"hasInspirationImage"`
	FloorPlanImage       bool     `json:"hasFloorPlanImage"`
	InteriorImage        bool     `json:"hasInteriorImage"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		Vision:               r.values[Vision],
		SquareFootage:        r.values[SquareFootage],
		LotSize:              r.values[LotSize],
		Rooms:                r.values[Rooms],
		Budget:               r.values[Budget],
		ArchitecturalStyle:   r.values[ArchitecturalStyle],
		LifestyleNeeds:       r.values[LifestyleNeeds],
		SpecialRequirements:  r.values[SpecialRequirements],
		MaterialPreferences:  r.values[MaterialPreferences],
		AestheticPreferences: r.values[AestheticPreferences],
		ArchitecturalPrompt:  r.prompt,
		InspirationImage:     r.inspiration != nil,
		FloorPlanImage:       r.floorPlan != nil,
		InteriorImage:        r.interior != nil,
	})
}

// UnmarshalJSON restores the text fields of a Record. Images are attached
// afterwards by the storage layer.
func (r *Record) UnmarshalJSON(data []byte) error {
	var w recordJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	values := map[Field]Optional{
		Vision:               w.Vision,
		SquareFootage:        w.SquareFootage,
		LotSize:              w.LotSize,
		Rooms:                w.Rooms,
		Budget:               w.Budget,
		ArchitecturalStyle:   w.ArchitecturalStyle,
		LifestyleNeeds:       w.LifestyleNeeds,
		SpecialRequirements:  w.SpecialRequirements,
		MaterialPreferences:  w.MaterialPreferences,
		AestheticPreferences: w.AestheticPreferences,
	}
	r.values = make(map[Field]Optional)
	for f, v := range values {
		if v.IsSet() {
			r.values[f] = v
		}
	}
	r.prompt = w.ArchitecturalPrompt
	return nil
}
