package recipe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNoIngredients is returned when generation is requested without ingredients.
	ErrNoIngredients = errors.New("no ingredients to cook with")
	// ErrInvalidCount is returned for a recipe count outside the allowed range.
	ErrInvalidCount = errors.New("invalid number of recipes")
	// ErrEmptyResponse is recorded when the model answers with no text.
	ErrEmptyResponse = errors.New("empty response from model")
)

// DefaultMaxCount is the largest number of recipes one request may ask for.
const DefaultMaxCount = 5

// Writer sends a text prompt to a text-generation model.
type Writer interface {
	InferFromPrompt(ctx context.Context, prompt string) (string, error)
}

// Archive keeps generated recipes.
type Archive interface {
	SaveRecipe(ctx context.Context, r *Recipe) error
}

// Request describes one "Generate Recipes" action.
type Request struct {
	Ingredients Ingredients
	Preferences
	Count int
}

// Generation is the outcome of a request. Recipes are in request order;
// failed slots are omitted and reported in Diagnostics.
type Generation struct {
	Recipes     []Recipe
	Diagnostics []Diagnostic
}

// Generator issues one text-generation call per requested recipe.
type Generator struct {
	writer      Writer
	archive     Archive
	maxCount    int
	parallelism int
	logger      *zap.Logger
	now         func() time.Time
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithArchive saves every generated recipe to a.
func WithArchive(a Archive) GeneratorOption {
	return func(g *Generator) { g.archive = a }
}

// WithParallelism bounds the number of concurrent calls. One means strictly
// sequential.
func WithParallelism(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.parallelism = n
		}
	}
}

// WithMaxCount sets the largest accepted Count.
func WithMaxCount(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.maxCount = n
		}
	}
}

// NewGenerator creates a Generator.
func NewGenerator(writer Writer, logger *zap.Logger, opts ...GeneratorOption) *Generator {
	g := &Generator{
		writer:      writer,
		maxCount:    DefaultMaxCount,
		parallelism: 1,
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// MaxCount returns the largest accepted Count.
func (g *Generator) MaxCount() int {
	return g.maxCount
}

// Generate issues req.Count independent requests with the same prompt. There
// is no retry; a failed request leaves its slot out of the result.
func (g *Generator) Generate(ctx context.Context, req Request) (Generation, error) {
	if len(req.Ingredients) == 0 {
		return Generation{}, ErrNoIngredients
	}
	if req.Count < 1 || req.Count > g.maxCount {
		return Generation{}, fmt.Errorf("%w: %d (allowed 1-%d)", ErrInvalidCount, req.Count, g.maxCount)
	}

	prompt := BuildRecipePrompt(req.Ingredients, req.Diet, req.Cuisine)
	texts := make([]string, req.Count)
	errs := make([]error, req.Count)

	var eg errgroup.Group
	eg.SetLimit(g.parallelism)
	for i := range texts {
		i := i
		eg.Go(func() error {
			text, err := g.writer.InferFromPrompt(ctx, prompt)
			if err == nil && strings.TrimSpace(text) == "" {
				err = ErrEmptyResponse
			}
			texts[i], errs[i] = text, err
			return nil
		})
	}
	_ = eg.Wait()

	var result Generation
	for i := range texts {
		if errs[i] != nil {
			subject := fmt.Sprintf("Recipe %d", i+1)
			g.logger.Warn("recipe generation failed", zap.String("recipe", subject), zap.Error(errs[i]))
			result.Diagnostics = append(result.Diagnostics, Diagnostic{
				Action:  "generating the recipe",
				Subject: subject,
				Err:     errs[i],
			})
			continue
		}
		result.Recipes = append(result.Recipes, Recipe{
			Text:        texts[i],
			Diet:        req.Diet,
			Cuisine:     req.Cuisine,
			Ingredients: req.Ingredients,
			CreatedAt:   g.now(),
		})
	}

	if g.archive != nil {
		for i := range result.Recipes {
			if err := g.archive.SaveRecipe(ctx, &result.Recipes[i]); err != nil {
				g.logger.Warn("failed to archive recipe", zap.Error(err))
			}
		}
	}

	g.logger.Info("recipe generation finished",
		zap.Int("requested", req.Count),
		zap.Int("generated", len(result.Recipes)),
		zap.String("diet", string(req.Diet)),
		zap.String("cuisine", string(req.Cuisine)))
	return result, nil
}
