package composer

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/kalambet/archai/internal/requirements"
)

//go:embed guidance.txt
var guidance string

// promptFields is the order fields appear in the compiled prompt.
var promptFields = []struct {
	field requirements.Field
	label string
}{
	{requirements.Vision, "Overall Vision"},
	{requirements.SquareFootage, "Total Square Footage"},
	{requirements.LotSize, "Lot Size"},
	{requirements.Rooms, "Rooms (count and types)"},
	{requirements.Budget, "Budget"},
	{requirements.ArchitecturalStyle, "Architectural Style"},
	{requirements.LifestyleNeeds, "Lifestyle Needs"},
	{requirements.SpecialRequirements, "Special Requirements"},
	{requirements.MaterialPreferences, "Material Preferences"},
	{requirements.AestheticPreferences, "Aesthetic Preferences"},
}

// Compile renders a requirement record into the architectural prompt used
// for floor-plan generation. It never fails: unset fields render empty and
// readiness is the caller's decision. Output depends only on the record.
func Compile(rec requirements.Record) string {
	var sb strings.Builder

	sb.WriteString("You are a professional architect and CAD technician. Produce a detailed, code-aware 2D floor plan for a single-family home that satisfies the client brief below.\n\n")
	sb.WriteString("CLIENT BRIEF:\n")
	for _, pf := range promptFields {
		fmt.Fprintf(&sb, "%s: %s\n", pf.label, rec.Get(pf.field).OrEmpty())
	}
	if rec.Inspiration() != nil {
		sb.WriteString("Inspiration Image: attached as a reference image. Echo its massing, materials and mood without copying its layout.\n")
	}
	sb.WriteString("\n")
	sb.WriteString(guidance)
	return sb.String()
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
