package recipe

import (
	"fmt"
	"strings"
)

// Markdown renders r as a Markdown document.
func Markdown(r Recipe) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", r.Name)
	if r.Image != "" {
		fmt.Fprintf(&b, "![%s](%s)\n\n", r.Name, r.Image)
	}

	fmt.Fprintf(&b, "| Cuisine | Difficulty | Prep | Cook | Servings | Calories |\n")
	fmt.Fprintf(&b, "|---|---|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %s | %s | %d min | %d min | %d | %d kcal |\n\n",
		r.Cuisine, r.Difficulty, r.PrepTimeMinutes, r.CookTimeMinutes, r.Servings, r.CaloriesPerServing)

	if r.ReviewCount > 0 {
		fmt.Fprintf(&b, "Rated **%.1f** from %d reviews.\n\n", r.Rating, r.ReviewCount)
	}

	b.WriteString("## Ingredients\n\n")
	for _, ing := range r.Ingredients {
		fmt.Fprintf(&b, "- %s\n", ing)
	}

	b.WriteString("\n## Instructions\n\n")
	for i, step := range r.Instructions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, step)
	}

	if len(r.Tags) > 0 || len(r.MealType) > 0 {
		b.WriteString("\n---\n\n")
		if len(r.Tags) > 0 {
			fmt.Fprintf(&b, "Tags: %s\n\n", strings.Join(r.Tags, ", "))
		}
		if len(r.MealType) > 0 {
			fmt.Fprintf(&b, "Meal type: %s\n", strings.Join(r.MealType, ", "))
		}
	}

	return b.String()
}
