package recipe

import (
	"fmt"
	"strings"
)

// IdentifyInstruction is sent with every fridge photo.
const IdentifyInstruction = "List all the food items you can see in this fridge image. Provide the list in a comma-separated format."

// BuildRecipePrompt renders the text-generation prompt for one recipe. The
// diet clause is only added for a constraining diet, the cuisine clause only
// for a specific cuisine.
func BuildRecipePrompt(items Ingredients, diet Diet, cuisine Cuisine) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a recipe using these ingredients: %s.", items.String())
	if diet.Constrains() {
		fmt.Fprintf(&b, " The recipe should be %s.", strings.ToLower(string(diet)))
	}
	if cuisine.Constrains() {
		fmt.Fprintf(&b, " The recipe should be %s cuisine.", cuisine)
	}
	b.WriteString(" Provide the recipe name, ingredients with quantities, and step-by-step instructions.")
	return b.String()
}
