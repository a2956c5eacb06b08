package wizard

import (
	"fridgechef/internal/fridge"
	"fridgechef/internal/recipe"
)

// Validation messages shown when forward navigation is refused.
const (
	MsgNeedImages      = "Please upload at least one image before proceeding."
	MsgNeedIngredients = "Please identify ingredients before proceeding."
	MsgLastStage       = "This is the last step."
)

// ValidationError is returned when a forward move lacks the data the target
// stage needs. The state is left unchanged.
type ValidationError struct {
	From    Stage
	To      Stage
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// State is everything one session has accumulated.
type State struct {
	Stage       Stage              `json:"stage"`
	Images      fridge.Store       `json:"images"`
	Ingredients recipe.Ingredients `json:"ingredients"`
	Recipes     []recipe.Recipe    `json:"recipes"`
	Preferences recipe.Preferences `json:"preferences"`
	Count       int                `json:"count"`
}

// New returns the initial state.
func New() State {
	return State{
		Stage:       Home,
		Preferences: recipe.DefaultPreferences(),
		Count:       1,
	}
}

// Next moves one stage forward if the next stage's prerequisite is met.
func Next(s State) (State, error) {
	if s.Stage == GenerateRecipe {
		return s, &ValidationError{From: s.Stage, To: s.Stage, Message: MsgLastStage}
	}
	return moveTo(s, s.Stage+1)
}

// Back moves one stage backward. Data gathered in later stages is kept.
func Back(s State) State {
	if s.Stage > Home {
		s.Stage--
	}
	return s
}

// Jump moves directly to target. Moving backward, or staying put, is always
// allowed; moving forward requires the target's prerequisite, the same rule
// Next applies.
func Jump(s State, target Stage) (State, error) {
	if target <= s.Stage {
		s.Stage = target
		return s, nil
	}
	return moveTo(s, target)
}

func moveTo(s State, target Stage) (State, error) {
	if msg := missing(s, target); msg != "" {
		return s, &ValidationError{From: s.Stage, To: target, Message: msg}
	}
	s.Stage = target
	return s, nil
}

// missing returns the validation message for the data target needs, or ""
// when the data is there.
func missing(s State, target Stage) string {
	switch target {
	case IdentifyIngredients:
		if s.Images.Empty() {
			return MsgNeedImages
		}
	case GenerateRecipe:
		if len(s.Ingredients) == 0 {
			return MsgNeedIngredients
		}
	}
	return ""
}

// AddResult counts what AddImages did.
type AddResult struct {
	Added      int
	Duplicates int
}

// AddImages appends the images that are not already in the store.
func AddImages(s State, images ...fridge.Image) (State, AddResult) {
	var res AddResult
	for _, img := range images {
		var added bool
		s.Images, added = s.Images.Add(img)
		if added {
			res.Added++
		} else {
			res.Duplicates++
		}
	}
	return s, res
}

// ClearImages empties the image store.
func ClearImages(s State) State {
	s.Images = s.Images.Clear()
	return s
}

// SetIngredients replaces the working ingredient set.
func SetIngredients(s State, items recipe.Ingredients) State {
	s.Ingredients = recipe.Ingredients(nil).Merge(items...)
	return s
}

// SetRecipes replaces the recipe list and remembers the choices that
// produced it.
func SetRecipes(s State, prefs recipe.Preferences, count int, recipes []recipe.Recipe) State {
	s.Preferences = prefs
	s.Count = count
	s.Recipes = append([]recipe.Recipe(nil), recipes...)
	return s
}

// Reset discards everything and returns to Home.
func Reset() State {
	return New()
}
