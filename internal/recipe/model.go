package recipe

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Diet is a dietary constraint for generated recipes.
type Diet string

// Supported diets.
const (
	DietNone       Diet = "None"
	DietVegetarian Diet = "Vegetarian"
	DietVegan      Diet = "Vegan"
	DietGlutenFree Diet = "Gluten-Free"
	DietKeto       Diet = "Keto"
	DietLowCarb    Diet = "Low-Carb"
	DietPaleo      Diet = "Paleo"
)

// Diets lists the diets in display order.
var Diets = []Diet{DietNone, DietVegetarian, DietVegan, DietGlutenFree, DietKeto, DietLowCarb, DietPaleo}

// Cuisine is a cuisine constraint for generated recipes.
type Cuisine string

// Supported cuisines.
const (
	CuisineAny           Cuisine = "Any"
	CuisineItalian       Cuisine = "Italian"
	CuisineMexican       Cuisine = "Mexican"
	CuisineAsian         Cuisine = "Asian"
	CuisineMediterranean Cuisine = "Mediterranean"
	CuisineAmerican      Cuisine = "American"
	CuisineIndian        Cuisine = "Indian"
	CuisineFrench        Cuisine = "French"
)

// Cuisines lists the cuisines in display order.
var Cuisines = []Cuisine{CuisineAny, CuisineItalian, CuisineMexican, CuisineAsian, CuisineMediterranean, CuisineAmerican, CuisineIndian, CuisineFrench}

// ParseDiet matches s case-insensitively against the supported diets. An
// empty string is DietNone.
func ParseDiet(s string) (Diet, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DietNone, nil
	}
	for _, d := range Diets {
		if strings.EqualFold(string(d), s) {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown dietary preference %q", s)
}

// ParseCuisine matches s case-insensitively against the supported cuisines.
// An empty string is CuisineAny.
func ParseCuisine(s string) (Cuisine, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return CuisineAny, nil
	}
	for _, c := range Cuisines {
		if strings.EqualFold(string(c), s) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown cuisine %q", s)
}

// Constrains reports whether the diet adds a clause to the prompt.
func (d Diet) Constrains() bool {
	return d != "" && d != DietNone
}

// Constrains reports whether the cuisine adds a clause to the prompt.
func (c Cuisine) Constrains() bool {
	return c != "" && c != CuisineAny
}

// Preferences are the constraints selected on the generate page.
type Preferences struct {
	Diet    Diet    `json:"diet"`
	Cuisine Cuisine `json:"cuisine"`
}

// DefaultPreferences returns no diet and any cuisine.
func DefaultPreferences() Preferences {
	return Preferences{Diet: DietNone, Cuisine: CuisineAny}
}

// Recipe is a generated recipe. Text is kept verbatim and never parsed.
type Recipe struct {
	ID          int64       `json:"id,omitempty" db:"id"`
	Text        string      `json:"text" db:"text"`
	Diet        Diet        `json:"diet" db:"diet"`
	Cuisine     Cuisine     `json:"cuisine" db:"cuisine"`
	Ingredients Ingredients `json:"ingredients" db:"ingredients"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
}

// UnmarshalJSON implements the json.Unmarshaler interface for Recipe. Diet and
// cuisine are normalized to their canonical spelling; unknown values fall
// back to the defaults.
func (r *Recipe) UnmarshalJSON(data []byte) error {
	type Alias Recipe // Create an alias to avoid infinite recursion
	aux := &struct {
		Diet    string `json:"diet"`
		Cuisine string `json:"cuisine"`
		*Alias
	}{
		Alias: (*Alias)(r),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	diet, err := ParseDiet(aux.Diet)
	if err != nil {
		diet = DietNone
	}
	cuisine, err := ParseCuisine(aux.Cuisine)
	if err != nil {
		cuisine = CuisineAny
	}
	r.Diet = diet
	r.Cuisine = cuisine

	return nil
}
