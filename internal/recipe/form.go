package recipe

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// RawForm holds the literal text of every control on the create form.
// Multi-line fields separate entries with newlines, list fields with commas.
type RawForm struct {
	Name               string `yaml:"name"`
	Ingredients        string `yaml:"ingredients"`
	Instructions       string `yaml:"instructions"`
	PrepTimeMinutes    string `yaml:"prepTimeMinutes"`
	CookTimeMinutes    string `yaml:"cookTimeMinutes"`
	Servings           string `yaml:"servings"`
	Difficulty         string `yaml:"difficulty"`
	Cuisine            string `yaml:"cuisine"`
	CaloriesPerServing string `yaml:"caloriesPerServing"`
	Tags               string `yaml:"tags"`
	Image              string `yaml:"image"`
	MealType           string `yaml:"mealType"`
}

// Normalized is a form after text-to-value transformation but before any
// rule is checked. Numbers that could not be read are NaN.
type Normalized struct {
	Name               string   `field:"name" validate:"min=3"`
	Ingredients        []string `field:"ingredients" validate:"min=1,dive,required"`
	Instructions       []string `field:"instructions" validate:"min=1,dive,required"`
	PrepTimeMinutes    float64  `field:"prepTimeMinutes" validate:"gte=1,lte=2147483647"`
	CookTimeMinutes    float64  `field:"cookTimeMinutes" validate:"gte=1,lte=2147483647"`
	Servings           float64  `field:"servings" validate:"gte=1,lte=2147483647"`
	Difficulty         string   `field:"difficulty" validate:"min=3"`
	Cuisine            string   `field:"cuisine" validate:"min=3"`
	CaloriesPerServing float64  `field:"caloriesPerServing" validate:"gte=1,lte=2147483647"`
	Tags               []string `field:"tags" validate:"min=1,dive,required"`
	Image              string   `field:"image" validate:"url"`
	MealType           []string `field:"mealType" validate:"min=1,dive,required"`
}

// ErrorKind classifies a failed rule.
type ErrorKind string

const (
	TooShort     ErrorKind = "too_short"
	InvalidURL   ErrorKind = "invalid_url"
	BelowMinimum ErrorKind = "below_minimum"
	EmptyList    ErrorKind = "empty_list"
	TooLarge     ErrorKind = "too_large"
)

// MaxNumber is the largest value accepted in a numeric field. Larger
// values do not fit the int fields of a Draft on every platform.
const MaxNumber = math.MaxInt32

// FieldError describes why a single form field was rejected.
type FieldError struct {
	Field   string
	Kind    ErrorKind
	Message string
}

// FieldErrors maps form field names to their error. A nil or empty map
// means the form is valid.
type FieldErrors map[string]FieldError

func (fe FieldErrors) Error() string {
	fields := make([]string, 0, len(fe))
	for f := range fe {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f, fe[f].Message))
	}
	return "invalid recipe: " + strings.Join(parts, "; ")
}

// Message returns the message for field, or "" when the field is valid.
func (fe FieldErrors) Message(field string) string {
	return fe[field].Message
}

var messages = map[string]string{
	"name":               "Recipe name must be at least 3 characters.",
	"cuisine":            "Cuisine must be at least 3 characters.",
	"difficulty":         "Difficulty must be at least 3 characters.",
	"image":              "Image must be a valid URL.",
	"prepTimeMinutes":    "Preparation time must be at least 1 minute.",
	"cookTimeMinutes":    "Cooking time must be at least 1 minute.",
	"servings":           "Servings must be at least 1.",
	"caloriesPerServing": "Calories per serving must be at least 1.",
	"ingredients":        "Add at least one ingredient.",
	"instructions":       "Add at least one instruction.",
	"tags":               "Add at least one tag.",
	"mealType":           "Add at least one meal type.",
}

var tooLargeMessages = map[string]string{
	"prepTimeMinutes":    "Preparation time is too large.",
	"cookTimeMinutes":    "Cooking time is too large.",
	"servings":           "Servings is too large.",
	"caloriesPerServing": "Calories per serving is too large.",
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("field")
	})
	return v
}

// SplitLines splits multi-line text into trimmed, non-empty entries.
func SplitLines(s string) []string {
	return split(s, "\n")
}

// SplitList splits comma separated text into trimmed, non-empty entries.
// Duplicates are kept.
func SplitList(s string) []string {
	return split(s, ",")
}

func split(s, sep string) []string {
	out := []string{}
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Normalize applies the text transformations of the form without checking
// any rule.
func Normalize(raw RawForm) Normalized {
	return Normalized{
		Name:               raw.Name,
		Ingredients:        SplitLines(raw.Ingredients),
		Instructions:       SplitLines(raw.Instructions),
		PrepTimeMinutes:    number(raw.PrepTimeMinutes),
		CookTimeMinutes:    number(raw.CookTimeMinutes),
		Servings:           number(raw.Servings),
		Difficulty:         raw.Difficulty,
		Cuisine:            raw.Cuisine,
		CaloriesPerServing: number(raw.CaloriesPerServing),
		Tags:               SplitList(raw.Tags),
		Image:              raw.Image,
		MealType:           SplitList(raw.MealType),
	}
}

func number(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) {
		return math.NaN()
	}
	return f
}

// Validate checks every rule of n and returns either a Draft or the errors
// of all failing fields.
func Validate(n Normalized) (Draft, FieldErrors) {
	if err := validate.Struct(n); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return Draft{}, FieldErrors{"form": {Field: "form", Message: err.Error()}}
		}
		return Draft{}, fieldErrors(verrs)
	}

	return Draft{
		Name:               n.Name,
		Ingredients:        n.Ingredients,
		Instructions:       n.Instructions,
		PrepTimeMinutes:    int(n.PrepTimeMinutes),
		CookTimeMinutes:    int(n.CookTimeMinutes),
		Servings:           int(n.Servings),
		Difficulty:         n.Difficulty,
		Cuisine:            n.Cuisine,
		CaloriesPerServing: int(n.CaloriesPerServing),
		Tags:               n.Tags,
		Image:              n.Image,
		MealType:           n.MealType,
	}, nil
}

// Parse runs Normalize then Validate.
func Parse(raw RawForm) (Draft, FieldErrors) {
	return Validate(Normalize(raw))
}

func fieldErrors(verrs validator.ValidationErrors) FieldErrors {
	errs := make(FieldErrors, len(verrs))
	for _, ve := range verrs {
		// dive errors are reported as "ingredients[2]"
		field, _, _ := strings.Cut(ve.Field(), "[")
		if _, seen := errs[field]; seen {
			continue
		}
		kind := kindOf(ve)
		msg := messages[field]
		if kind == TooLarge {
			msg = tooLargeMessages[field]
		}
		errs[field] = FieldError{Field: field, Kind: kind, Message: msg}
	}
	return errs
}

func kindOf(ve validator.FieldError) ErrorKind {
	switch ve.Tag() {
	case "url":
		return InvalidURL
	case "gte":
		return BelowMinimum
	case "lte":
		return TooLarge
	case "required":
		return EmptyList
	case "min":
		if ve.Kind() == reflect.Slice {
			return EmptyList
		}
		return TooShort
	}
	return ErrorKind(ve.Tag())
}
