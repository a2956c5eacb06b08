package recipe

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Ingredients is a set of trimmed, non-empty ingredient names. Equality is
// exact and case-sensitive. First-seen order is kept.
type Ingredients []string

// ParseIngredients splits a model response on commas. A response without
// commas becomes a single ingredient.
func ParseIngredients(text string) Ingredients {
	return Ingredients(nil).Merge(strings.Split(text, ",")...)
}

// ParseIngredientLines parses the edit box, one ingredient per line.
func ParseIngredientLines(text string) Ingredients {
	return Ingredients(nil).Merge(strings.Split(text, "\n")...)
}

// Merge returns the union of the set and items. Items are trimmed and empty
// items are dropped.
func (in Ingredients) Merge(items ...string) Ingredients {
	seen := make(map[string]struct{}, len(in)+len(items))
	out := make(Ingredients, 0, len(in)+len(items))
	for _, item := range append(append([]string(nil), in...), items...) {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

// Contains reports whether item is in the set.
func (in Ingredients) Contains(item string) bool {
	for _, i := range in {
		if i == item {
			return true
		}
	}
	return false
}

// String joins the ingredients with ", ".
func (in Ingredients) String() string {
	return strings.Join(in, ", ")
}

// Lines joins the ingredients one per line, the edit box format.
func (in Ingredients) Lines() string {
	return strings.Join(in, "\n")
}

// Value implements driver.Valuer, storing the set as a JSON array.
func (in Ingredients) Value() (driver.Value, error) {
	if in == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]string(in))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner for JSON array columns.
func (in *Ingredients) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	case nil:
		*in = nil
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Ingredients", src)
	}

	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("failed to unmarshal ingredients: %w", err)
	}
	*in = Ingredients(nil).Merge(items...)
	return nil
}
