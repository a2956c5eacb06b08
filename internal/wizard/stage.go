// Package wizard is the four-step flow of the app: take photos, identify
// ingredients, generate recipes. State is a plain value; every transition is
// a function from one State to the next.
package wizard

import "fmt"

// Stage is one page of the wizard.
type Stage int

const (
	Home Stage = iota
	UploadImages
	IdentifyIngredients
	GenerateRecipe
)

// Stages lists every stage in order.
var Stages = []Stage{Home, UploadImages, IdentifyIngredients, GenerateRecipe}

// String returns the display name of the stage.
func (s Stage) String() string {
	switch s {
	case Home:
		return "Home"
	case UploadImages:
		return "Upload Images"
	case IdentifyIngredients:
		return "Identify Ingredients"
	case GenerateRecipe:
		return "Generate Recipe"
	default:
		return "unknown"
	}
}

// Slug is the stage's URL name.
func (s Stage) Slug() string {
	switch s {
	case Home:
		return "home"
	case UploadImages:
		return "upload"
	case IdentifyIngredients:
		return "identify"
	case GenerateRecipe:
		return "generate"
	default:
		return "unknown"
	}
}

// ParseStage maps a slug back to its stage.
func ParseStage(slug string) (Stage, error) {
	for _, s := range Stages {
		if s.Slug() == slug {
			return s, nil
		}
	}
	return Home, fmt.Errorf("unknown stage %q", slug)
}

// MarshalText implements encoding.TextMarshaler.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.Slug()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Stage) UnmarshalText(text []byte) error {
	stage, err := ParseStage(string(text))
	if err != nil {
		return err
	}
	*s = stage
	return nil
}

// Progress reports the stage as "step of total" and as a fraction in [0, 1].
func Progress(s Stage) (step, total int, fraction float64) {
	total = len(Stages)
	return int(s) + 1, total, float64(s) / float64(total-1)
}
