package web

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"dapur-kita/internal/recipe"
	"dapur-kita/internal/store"

	"github.com/gorilla/mux"
)

// httpStatus maps a catalog error to the status of the page reporting it.
func httpStatus(err error) int {
	var (
		netErr *store.NetworkError
		srvErr *store.ServerError
	)
	switch {
	case errors.Is(err, store.ErrInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &netErr), errors.As(err, &srvErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// canceled reports whether the client went away, in which case there is
// nobody to render for.
func canceled(r *http.Request, err error) bool {
	return r.Context().Err() != nil && errors.Is(err, context.Canceled)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	data := pageData{
		Title:       "Recipes",
		Flash:       s.flash.pop(w, r),
		LiveUpdates: true,
	}

	coll, err := s.app.Recipes(r.Context())
	if err != nil {
		if canceled(r, err) {
			return
		}
		log.Printf("Error loading recipes: %v", err)
		data.Error = "Could not load recipes. Please try again later."
		data.LiveUpdates = false
		s.render(w, httpStatus(err), "list", data)
		return
	}

	data.Collection = coll
	s.render(w, http.StatusOK, "list", data)
}

func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil || id < 1 {
		s.render(w, http.StatusBadRequest, "error", pageData{
			Title: "Invalid recipe id",
			Error: fmt.Sprintf("%q is not a valid recipe id.", mux.Vars(r)["id"]),
		})
		return
	}

	rec, err := s.app.Recipe(r.Context(), id)
	switch {
	case err == nil:
		s.render(w, http.StatusOK, "detail", pageData{Title: rec.Name, Recipe: rec})
	case canceled(r, err):
	case errors.Is(err, store.ErrNotFound):
		s.render(w, http.StatusNotFound, "detail", pageData{Title: "Recipe not found", NotFound: true})
	default:
		log.Printf("Error loading recipe %d: %v", id, err)
		s.render(w, httpStatus(err), "detail", pageData{
			Title: "Recipe",
			Error: "Could not load this recipe. Please try again later.",
		})
	}
}

func (s *Server) handleNewForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "form", pageData{Title: "Add recipe"})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.render(w, http.StatusBadRequest, "error", pageData{Title: "Bad request", Error: "The form could not be read."})
		return
	}
	raw := rawFormFromRequest(r)
	data := pageData{Title: "Add recipe", Form: raw}

	res, err := s.app.Submit(r.Context(), raw)
	switch {
	case len(res.Errors) > 0:
		data.Errors = res.Errors
		s.render(w, http.StatusUnprocessableEntity, "form", data)
		return
	case err != nil:
		if canceled(r, err) {
			return
		}
		log.Printf("Error creating recipe: %v", err)
		data.Error = "Failed to add the recipe. Your input is kept below, please try again."
		s.render(w, httpStatus(err), "form", data)
		return
	}

	msg := fmt.Sprintf("Recipe %q was added.", res.Created.Name)
	if err := s.flash.set(w, msg); err != nil {
		log.Printf("Warning: %v", err)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func rawFormFromRequest(r *http.Request) recipe.RawForm {
	return recipe.RawForm{
		Name:               r.PostFormValue("name"),
		Ingredients:        r.PostFormValue("ingredients"),
		Instructions:       r.PostFormValue("instructions"),
		PrepTimeMinutes:    r.PostFormValue("prepTimeMinutes"),
		CookTimeMinutes:    r.PostFormValue("cookTimeMinutes"),
		Servings:           r.PostFormValue("servings"),
		Difficulty:         r.PostFormValue("difficulty"),
		Cuisine:            r.PostFormValue("cuisine"),
		CaloriesPerServing: r.PostFormValue("caloriesPerServing"),
		Tags:               r.PostFormValue("tags"),
		Image:              r.PostFormValue("image"),
		MealType:           r.PostFormValue("mealType"),
	}
}
