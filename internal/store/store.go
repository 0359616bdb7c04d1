package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"dapur-kita/internal/config"
	"dapur-kita/internal/recipe"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const maxErrorBody = 512

// Client is an interface for the remote recipe store.
type Client interface {
	ListRecipes(ctx context.Context) (recipe.Collection, error)
	GetRecipe(ctx context.Context, id int) (recipe.Recipe, error)
	CreateRecipe(ctx context.Context, draft recipe.Draft) (recipe.Recipe, error)
}

// httpClient is the concrete implementation of the store client.
type httpClient struct {
	httpClient *http.Client
	baseURL    string
	createURL  string
	tracer     trace.Tracer
}

// NewClient creates a new store client.
func NewClient(cfg *config.Config) Client {
	return &httpClient{
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		createURL:  cfg.CreateURL,
		tracer:     otel.Tracer("dapur-kita/internal/store"),
	}
}

// ListRecipes fetches the first page of recipes as the store returns it.
func (c *httpClient) ListRecipes(ctx context.Context) (recipe.Collection, error) {
	ctx, span := c.tracer.Start(ctx, "store.list")
	defer span.End()

	var coll recipe.Collection
	err := c.do(ctx, span, "list recipes", http.MethodGet, c.baseURL+"/recipes", nil, &coll)
	return coll, err
}

// GetRecipe fetches a single recipe by id.
func (c *httpClient) GetRecipe(ctx context.Context, id int) (recipe.Recipe, error) {
	if id < 1 {
		return recipe.Recipe{}, ErrInvalidID
	}

	ctx, span := c.tracer.Start(ctx, "store.get", trace.WithAttributes(attribute.Int("recipe.id", id)))
	defer span.End()

	var r recipe.Recipe
	err := c.do(ctx, span, fmt.Sprintf("get recipe %d", id), http.MethodGet, fmt.Sprintf("%s/recipes/%d", c.baseURL, id), nil, &r)
	var se *ServerError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return recipe.Recipe{}, fmt.Errorf("get recipe %d: %w", id, ErrNotFound)
	}
	return r, err
}

// CreateRecipe submits a draft and returns the record the store created.
func (c *httpClient) CreateRecipe(ctx context.Context, draft recipe.Draft) (recipe.Recipe, error) {
	ctx, span := c.tracer.Start(ctx, "store.create")
	defer span.End()

	body, err := json.Marshal(draft)
	if err != nil {
		return recipe.Recipe{}, fmt.Errorf("failed to encode recipe: %w", err)
	}

	var r recipe.Recipe
	if err := c.do(ctx, span, "create recipe", http.MethodPost, c.createURL, body, &r); err != nil {
		return recipe.Recipe{}, err
	}
	span.SetAttributes(attribute.Int("recipe.id", r.ID))
	return r, nil
}

func (c *httpClient) do(ctx context.Context, span trace.Span, op, method, url string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		serr := &ServerError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
		span.SetStatus(codes.Error, serr.Error())
		return serr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		span.RecordError(err)
		return fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	return nil
}
