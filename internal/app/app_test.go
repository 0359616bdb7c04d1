package app

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"dapur-kita/internal/database"
	"dapur-kita/internal/metrics"
	"dapur-kita/internal/query"
	"dapur-kita/internal/recipe"
	"dapur-kita/internal/store"
)

// --- Mock Store Client ---
type mockStore struct {
	mu          sync.Mutex
	listCalls   int
	getCalls    int
	createCalls int
	created     []recipe.Draft
	createErr   error
	recipes     map[int]recipe.Recipe
}

func newMockStore() *mockStore {
	return &mockStore{recipes: map[int]recipe.Recipe{
		1: {ID: 1, Name: "Classic Margherita Pizza"},
	}}
}

func (m *mockStore) ListRecipes(ctx context.Context) (recipe.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	coll := recipe.Collection{}
	for _, r := range m.recipes {
		coll.Recipes = append(coll.Recipes, r)
	}
	coll.Total = len(coll.Recipes)
	return coll, nil
}

func (m *mockStore) GetRecipe(ctx context.Context, id int) (recipe.Recipe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	r, ok := m.recipes[id]
	if !ok {
		return recipe.Recipe{}, store.ErrNotFound
	}
	return r, nil
}

func (m *mockStore) CreateRecipe(ctx context.Context, d recipe.Draft) (recipe.Recipe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if m.createErr != nil {
		return recipe.Recipe{}, m.createErr
	}
	m.created = append(m.created, d)
	r := recipe.Recipe{ID: 50 + len(m.created), Name: d.Name, Cuisine: d.Cuisine}
	m.recipes[r.ID] = r
	return r, nil
}

// --- Mock Notifier ---
type mockNotifier struct {
	notified []recipe.Recipe
	err      error
}

func (m *mockNotifier) RecipeCreated(ctx context.Context, r recipe.Recipe) error {
	m.notified = append(m.notified, r)
	return m.err
}

func validForm() recipe.RawForm {
	return recipe.RawForm{
		Name:               "Sate Ayam",
		Ingredients:        "chicken\npeanut sauce",
		Instructions:       "Skewer\nGrill",
		PrepTimeMinutes:    "20",
		CookTimeMinutes:    "15",
		Servings:           "4",
		Difficulty:         "Medium",
		Cuisine:            "Indonesian",
		CaloriesPerServing: "380",
		Tags:               "grill, street food",
		Image:              "https://cdn.dummyjson.com/recipe-images/1.webp",
		MealType:           "Dinner",
	}
}

func countInvalidations(events <-chan query.Event) int {
	n := 0
	for {
		select {
		case ev := <-events:
			if ev.Type == query.Invalidated {
				n++
			}
		default:
			return n
		}
	}
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()

	t.Run("InvalidFormNeverReachesStore", func(t *testing.T) {
		st := newMockStore()
		a := NewApp(st, query.New(time.Minute), nil, nil)

		raw := validForm()
		raw.PrepTimeMinutes = "0"
		res, err := a.Submit(ctx, raw)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if res.Errors["prepTimeMinutes"].Kind != recipe.BelowMinimum {
			t.Errorf("Expected prepTimeMinutes error, got %v", res.Errors)
		}
		if res.Created != nil {
			t.Errorf("Expected nothing created")
		}
		if st.createCalls != 0 {
			t.Errorf("Expected no create calls, got %d", st.createCalls)
		}
	})

	t.Run("Success", func(t *testing.T) {
		st := newMockStore()
		notifier := &mockNotifier{}
		a := NewApp(st, query.New(time.Minute), notifier, nil)
		events, unsubscribe := a.Subscribe(RecipesKey)
		defer unsubscribe()

		if _, err := a.Recipes(ctx); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}

		res, err := a.Submit(ctx, validForm())
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if res.Created == nil || res.Created.ID != 51 {
			t.Fatalf("Expected created recipe 51, got %+v", res.Created)
		}
		if st.createCalls != 1 {
			t.Errorf("Expected exactly 1 create call, got %d", st.createCalls)
		}
		if got := countInvalidations(events); got != 1 {
			t.Errorf("Expected exactly 1 invalidation, got %d", got)
		}
		if len(notifier.notified) != 1 || notifier.notified[0].ID != 51 {
			t.Errorf("Expected a notification for recipe 51, got %+v", notifier.notified)
		}

		coll, err := a.Recipes(ctx)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if st.listCalls != 2 {
			t.Errorf("Expected list to be refetched after invalidation, got %d calls", st.listCalls)
		}
		if coll.Total != 2 {
			t.Errorf("Expected the new recipe in the list, got %d", coll.Total)
		}
	})

	t.Run("CreateFailure", func(t *testing.T) {
		st := newMockStore()
		st.createErr = &store.ServerError{Op: "create recipe", StatusCode: 500}
		notifier := &mockNotifier{}
		a := NewApp(st, query.New(time.Minute), notifier, nil)
		events, unsubscribe := a.Subscribe(RecipesKey)
		defer unsubscribe()

		res, err := a.Submit(ctx, validForm())
		var se *store.ServerError
		if !errors.As(err, &se) {
			t.Fatalf("Expected a *store.ServerError, got %v", err)
		}
		if res.Draft.Name != "Sate Ayam" {
			t.Errorf("Expected the draft to be returned for resubmission, got %+v", res.Draft)
		}
		if got := countInvalidations(events); got != 0 {
			t.Errorf("Expected no invalidation, got %d", got)
		}
		if len(notifier.notified) != 0 {
			t.Errorf("Expected no notification")
		}
	})

	t.Run("NotifierFailureIsIgnored", func(t *testing.T) {
		a := NewApp(newMockStore(), query.New(time.Minute), &mockNotifier{err: errors.New("telegram down")}, nil)
		res, err := a.Submit(ctx, validForm())
		if err != nil || res.Created == nil {
			t.Fatalf("Expected creation to succeed, got %v", err)
		}
	})
}

func TestRecipe(t *testing.T) {
	ctx := context.Background()
	st := newMockStore()
	a := NewApp(st, query.New(time.Minute), nil, nil)

	for i := 0; i < 2; i++ {
		r, err := a.Recipe(ctx, 1)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if r.Name != "Classic Margherita Pizza" {
			t.Errorf("Unexpected recipe %+v", r)
		}
	}
	if st.getCalls != 1 {
		t.Errorf("Expected a cached second read, got %d calls", st.getCalls)
	}

	if _, err := a.Recipe(ctx, 404); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	if _, err := a.Recipe(ctx, 0); !errors.Is(err, store.ErrInvalidID) {
		t.Errorf("Expected ErrInvalidID, got %v", err)
	}
	if st.getCalls != 2 {
		t.Errorf("Expected invalid ids to skip the store, got %d calls", st.getCalls)
	}
}

func TestMetricsAreRecorded(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(filepath.Join(t.TempDir(), "metrics.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	ms := metrics.NewStore(db.SQL)
	defer ms.Close()

	a := NewApp(newMockStore(), query.New(0), nil, ms)
	a.Recipes(ctx)
	a.Recipe(ctx, 999)
	a.Submit(ctx, validForm())

	usage, err := a.Usage(ctx, 1)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	byOp := map[string]metrics.DailyUsage{}
	for _, u := range usage {
		byOp[u.Operation] = u
	}
	for _, op := range []string{"list", "get", "create"} {
		if byOp[op].Calls != 1 {
			t.Errorf("Expected 1 %s call, got %+v", op, byOp[op])
		}
	}
	if byOp["get"].Failures != 1 {
		t.Errorf("Expected the not-found read to count as a failure, got %+v", byOp["get"])
	}
}

func TestOutcome(t *testing.T) {
	cases := map[string]error{
		metrics.OutcomeOK:           nil,
		metrics.OutcomeNotFound:     store.ErrNotFound,
		metrics.OutcomeInvalid:      store.ErrInvalidID,
		metrics.OutcomeNetworkError: &store.NetworkError{Op: "list", Err: context.DeadlineExceeded},
		metrics.OutcomeServerError:  &store.ServerError{Op: "list", StatusCode: 503},
		metrics.OutcomeError:        errors.New("decode"),
	}
	for want, err := range cases {
		if got := Outcome(err); got != want {
			t.Errorf("Outcome(%v) = %s, want %s", err, got, want)
		}
	}
}
