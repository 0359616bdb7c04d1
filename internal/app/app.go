package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"dapur-kita/internal/metrics"
	"dapur-kita/internal/notify"
	"dapur-kita/internal/query"
	"dapur-kita/internal/recipe"
	"dapur-kita/internal/store"
)

// RecipesKey is the cache key of the recipe list.
var RecipesKey = query.Key{"recipes"}

// RecipeKey is the cache key of a single recipe.
func RecipeKey(id int) query.Key {
	return query.Key{"recipe", id}
}

// App holds the application's dependencies.
type App struct {
	store        store.Client
	cache        *query.Client
	notifier     notify.Notifier
	metricsStore *metrics.Store
}

// NewApp creates and initializes a new App instance. notifier and
// metricsStore may be nil.
func NewApp(
	storeClient store.Client,
	cache *query.Client,
	notifier notify.Notifier,
	metricsStore *metrics.Store,
) *App {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &App{
		store:        storeClient,
		cache:        cache,
		notifier:     notifier,
		metricsStore: metricsStore,
	}
}

// SubmitResult is the outcome of a create form submission. Errors is set
// when validation failed; Created is set when the store accepted the draft.
type SubmitResult struct {
	Draft   recipe.Draft
	Errors  recipe.FieldErrors
	Created *recipe.Recipe
}

// Recipes returns the recipe list, served from the cache while fresh.
func (a *App) Recipes(ctx context.Context) (recipe.Collection, error) {
	return query.Fetch(ctx, a.cache, RecipesKey, func(ctx context.Context) (recipe.Collection, error) {
		start := time.Now()
		coll, err := a.store.ListRecipes(ctx)
		a.record(ctx, "list", start, err)
		return coll, err
	})
}

// Recipe returns a single recipe. Ids below 1 fail with store.ErrInvalidID
// before reaching the cache.
func (a *App) Recipe(ctx context.Context, id int) (recipe.Recipe, error) {
	if id < 1 {
		return recipe.Recipe{}, store.ErrInvalidID
	}
	return query.Fetch(ctx, a.cache, RecipeKey(id), func(ctx context.Context) (recipe.Recipe, error) {
		start := time.Now()
		r, err := a.store.GetRecipe(ctx, id)
		a.record(ctx, "get", start, err)
		return r, err
	})
}

// Submit validates raw and, when it is valid, creates the recipe in the
// store. A successful create invalidates the cached list exactly once.
// Validation failures are reported in the result with a nil error.
func (a *App) Submit(ctx context.Context, raw recipe.RawForm) (SubmitResult, error) {
	draft, fieldErrs := recipe.Parse(raw)
	if len(fieldErrs) > 0 {
		return SubmitResult{Errors: fieldErrs}, nil
	}

	start := time.Now()
	created, err := a.store.CreateRecipe(ctx, draft)
	a.record(ctx, "create", start, err)
	if err != nil {
		return SubmitResult{Draft: draft}, fmt.Errorf("failed to create recipe: %w", err)
	}

	a.cache.Invalidate(RecipesKey)
	log.Printf("Created recipe %d (%s)", created.ID, created.Name)

	if err := a.notifier.RecipeCreated(ctx, created); err != nil {
		log.Printf("Warning: failed to send creation notice for recipe %d: %v", created.ID, err)
	}

	return SubmitResult{Draft: draft, Created: &created}, nil
}

// Subscribe forwards cache events for key.
func (a *App) Subscribe(key query.Key) (<-chan query.Event, func()) {
	return a.cache.Subscribe(key)
}

// Usage returns store call statistics for the last days.
func (a *App) Usage(ctx context.Context, days int) ([]metrics.DailyUsage, error) {
	if a.metricsStore == nil {
		return nil, errors.New("metrics store is not configured")
	}
	return a.metricsStore.GetDailyUsage(ctx, days)
}

func (a *App) record(ctx context.Context, op string, start time.Time, err error) {
	if a.metricsStore == nil {
		return
	}
	m := metrics.CallMetric{
		Operation: op,
		Outcome:   Outcome(err),
		LatencyMS: time.Since(start).Milliseconds(),
	}
	if err := a.metricsStore.Record(context.WithoutCancel(ctx), m); err != nil {
		log.Printf("Warning: failed to record %s metric: %v", op, err)
	}
}

// Outcome classifies a store error for metrics.
func Outcome(err error) string {
	var (
		netErr *store.NetworkError
		srvErr *store.ServerError
	)
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, store.ErrNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, store.ErrInvalidID):
		return metrics.OutcomeInvalid
	case errors.As(err, &netErr):
		return metrics.OutcomeNetworkError
	case errors.As(err, &srvErr):
		return metrics.OutcomeServerError
	}
	return metrics.OutcomeError
}
