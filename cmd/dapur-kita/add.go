package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"dapur-kita/internal/recipe"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var addOpts struct {
	file         string
	interactive  bool
	name         string
	cuisine      string
	difficulty   string
	image        string
	prep         string
	cook         string
	servings     string
	calories     string
	ingredients  []string
	instructions []string
	tags         string
	mealType     string
}

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a recipe",
	Long: `Add a recipe from flags, a YAML file (--file) or an interactive form (-i).

A YAML file uses the field names of the web form. Ingredients and
instructions may be written as a list or as one entry per line; tags and
meal types as a list or as comma separated text.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var raw recipe.RawForm
		switch {
		case addOpts.file != "":
			f, err := os.Open(addOpts.file)
			if err != nil {
				return err
			}
			defer f.Close()
			if raw, err = readDraftFile(f); err != nil {
				return fmt.Errorf("failed to read %s: %w", addOpts.file, err)
			}
		case addOpts.interactive:
			var err error
			if raw, err = runAddForm(); err != nil {
				return err
			}
		default:
			raw = rawFromFlags()
		}

		res, err := application.Submit(cmd.Context(), raw)
		if len(res.Errors) > 0 {
			fmt.Fprint(cmd.ErrOrStderr(), formatFieldErrors(res.Errors))
			return errors.New("recipe was not added")
		}
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("Added %q as recipe #%d", res.Created.Name, res.Created.ID)))
		return nil
	},
}

func init() {
	f := addCmd.Flags()
	f.StringVarP(&addOpts.file, "file", "f", "", "Read the recipe from a YAML file")
	f.BoolVarP(&addOpts.interactive, "interactive", "i", false, "Fill in the recipe with an interactive form")
	f.StringVar(&addOpts.name, "name", "", "Recipe name")
	f.StringVar(&addOpts.cuisine, "cuisine", "", "Cuisine")
	f.StringVar(&addOpts.difficulty, "difficulty", "", "Difficulty (Easy, Medium, Hard)")
	f.StringVar(&addOpts.image, "image", "", "Image URL")
	f.StringVar(&addOpts.prep, "prep", "", "Preparation time in minutes")
	f.StringVar(&addOpts.cook, "cook", "", "Cooking time in minutes")
	f.StringVar(&addOpts.servings, "servings", "", "Number of servings")
	f.StringVar(&addOpts.calories, "calories", "", "Calories per serving")
	f.StringArrayVar(&addOpts.ingredients, "ingredient", nil, "An ingredient (repeatable)")
	f.StringArrayVar(&addOpts.instructions, "instruction", nil, "An instruction step (repeatable)")
	f.StringVar(&addOpts.tags, "tags", "", "Comma separated tags")
	f.StringVar(&addOpts.mealType, "meal-type", "", "Comma separated meal types")
	addCmd.MarkFlagsMutuallyExclusive("file", "interactive")
}

func rawFromFlags() recipe.RawForm {
	return recipe.RawForm{
		Name:               addOpts.name,
		Ingredients:        strings.Join(addOpts.ingredients, "\n"),
		Instructions:       strings.Join(addOpts.instructions, "\n"),
		PrepTimeMinutes:    addOpts.prep,
		CookTimeMinutes:    addOpts.cook,
		Servings:           addOpts.servings,
		Difficulty:         addOpts.difficulty,
		Cuisine:            addOpts.cuisine,
		CaloriesPerServing: addOpts.calories,
		Tags:               addOpts.tags,
		Image:              addOpts.image,
		MealType:           addOpts.mealType,
	}
}

// textField accepts either a scalar or a sequence of scalars, joining the
// sequence with sep.
type textField struct {
	value string
	sep   string
}

func (t *textField) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		t.value = n.Value
	case yaml.SequenceNode:
		var items []string
		if err := n.Decode(&items); err != nil {
			return err
		}
		t.value = strings.Join(items, t.sep)
	default:
		return fmt.Errorf("line %d: expected text or a list", n.Line)
	}
	return nil
}

type draftFile struct {
	Name               string    `yaml:"name"`
	Cuisine            string    `yaml:"cuisine"`
	Difficulty         string    `yaml:"difficulty"`
	Image              string    `yaml:"image"`
	PrepTimeMinutes    string    `yaml:"prepTimeMinutes"`
	CookTimeMinutes    string    `yaml:"cookTimeMinutes"`
	Servings           string    `yaml:"servings"`
	CaloriesPerServing string    `yaml:"caloriesPerServing"`
	Ingredients        textField `yaml:"ingredients"`
	Instructions       textField `yaml:"instructions"`
	Tags               textField `yaml:"tags"`
	MealType           textField `yaml:"mealType"`
}

func readDraftFile(r io.Reader) (recipe.RawForm, error) {
	d := draftFile{
		Ingredients:  textField{sep: "\n"},
		Instructions: textField{sep: "\n"},
		Tags:         textField{sep: ","},
		MealType:     textField{sep: ","},
	}

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil {
		return recipe.RawForm{}, err
	}

	return recipe.RawForm{
		Name:               d.Name,
		Ingredients:        d.Ingredients.value,
		Instructions:       d.Instructions.value,
		PrepTimeMinutes:    d.PrepTimeMinutes,
		CookTimeMinutes:    d.CookTimeMinutes,
		Servings:           d.Servings,
		Difficulty:         d.Difficulty,
		Cuisine:            d.Cuisine,
		CaloriesPerServing: d.CaloriesPerServing,
		Tags:               d.Tags.value,
		Image:              d.Image,
		MealType:           d.MealType.value,
	}, nil
}

func runAddForm() (recipe.RawForm, error) {
	var raw recipe.RawForm

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Recipe name").Value(&raw.Name),
			huh.NewInput().Title("Cuisine").Placeholder("e.g., Indonesian").Value(&raw.Cuisine),
			huh.NewSelect[string]().
				Title("Difficulty").
				Options(huh.NewOptions("Easy", "Medium", "Hard")...).
				Value(&raw.Difficulty),
			huh.NewInput().Title("Image URL").Placeholder("https://...").Value(&raw.Image),
		),
		huh.NewGroup(
			huh.NewInput().Title("Preparation time (minutes)").Value(&raw.PrepTimeMinutes),
			huh.NewInput().Title("Cooking time (minutes)").Value(&raw.CookTimeMinutes),
			huh.NewInput().Title("Servings").Value(&raw.Servings),
			huh.NewInput().Title("Calories per serving").Value(&raw.CaloriesPerServing),
		),
		huh.NewGroup(
			huh.NewText().Title("Ingredients").Description("One per line").Value(&raw.Ingredients),
			huh.NewText().Title("Instructions").Description("One step per line").Value(&raw.Instructions),
			huh.NewInput().Title("Tags").Description("Comma separated").Value(&raw.Tags),
			huh.NewInput().Title("Meal type").Description("Comma separated").Value(&raw.MealType),
		),
	)

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return raw, errors.New("cancelled")
		}
		return raw, fmt.Errorf("form error: %w", err)
	}
	return raw, nil
}

func formatFieldErrors(errs recipe.FieldErrors) string {
	fields := make([]string, 0, len(errs))
	for f := range errs {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var b strings.Builder
	b.WriteString(errorStyle.Render("The recipe has errors:") + "\n")
	for _, f := range fields {
		fmt.Fprintf(&b, "  %s%s\n", fieldStyle.Render(f), errs[f].Message)
	}
	return b.String()
}
