package stage

import (
	"github.com/kalambet/archai/internal/requirements"
)

// Stage is one step of the guided conversation and design pipeline.
type Stage string

const (
	Introduction         Stage = "introduction"
	Vision               Stage = "vision"
	SquareFootage        Stage = "squareFootage"
	LotSize              Stage = "lotSize"
	Rooms                Stage = "rooms"
	Budget               Stage = "budget"
	ArchitecturalStyle   Stage = "architecturalStyle"
	LifestyleNeeds       Stage = "lifestyleNeeds"
	SpecialRequirements  Stage = "specialRequirements"
	MaterialPreferences  Stage = "materialPreferences"
	AestheticPreferences Stage = "aestheticPreferences"
	Confirmation         Stage = "confirmation"
	Generation           Stage = "generation"
	Refinement           Stage = "refinement"
	Floorplan            Stage = "floorplan"
	Interior             Stage = "interior"
	Done                 Stage = "done"
)

// All lists every stage in progress order.
var All = []Stage{
	Introduction,
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
	Confirmation,
	Generation,
	Refinement,
	Floorplan,
	Interior,
	Done,
}

var titles = map[Stage]string{
	Introduction:         "Introduction",
	Vision:               "Vision",
	SquareFootage:        "Sizing",
	LotSize:              "Lot Size",
	Rooms:                "Rooms",
	Budget:               "Budget",
	ArchitecturalStyle:   "Style",
	LifestyleNeeds:       "Lifestyle",
	SpecialRequirements:  "Special Needs",
	MaterialPreferences:  "Materials & Look",
	AestheticPreferences: "Aesthetics",
	Confirmation:         "Confirmation",
	Generation:           "Generating Plan",
	Refinement:           "Refining Plan",
	Floorplan:            "Floor Plan",
	Interior:             "Interior",
	Done:                 "Final Designs",
}

// Title returns the progress label shown for the stage.
func (s Stage) Title() string {
	if t, ok := titles[s]; ok {
		return t
	}
	return string(s)
}

// Index returns the position of s in progress order, or -1.
func (s Stage) Index() int {
	for i, st := range All {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool { return s.Index() >= 0 }

// Parse resolves a stage key.
func Parse(key string) (Stage, bool) {
	s := Stage(key)
	return s, s.Valid()
}

// IsCollection reports whether s gathers a requirement field.
func IsCollection(s Stage) bool {
	return requirements.Field(s).IsCollected()
}

// Field returns the requirement field collected at s.
func Field(s Stage) (requirements.Field, bool) {
	if !IsCollection(s) {
		return "", false
	}
	return requirements.Field(s), true
}

// ForField returns the collection stage for a requirement field.
func ForField(f requirements.Field) (Stage, bool) {
	if !f.IsCollected() {
		return "", false
	}
	return Stage(f), true
}

// AcceptsInput reports whether chat input is allowed at s.
func AcceptsInput(s Stage) bool {
	return s == Introduction || IsCollection(s) || s == Confirmation
}

// IsPipeline reports whether s is an in-flight background stage.
func IsPipeline(s Stage) bool {
	return s == Generation || s == Refinement || s == Interior
}
