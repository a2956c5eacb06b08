package recipe

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"fridgechef/internal/fridge"
)

// Vision sends one image plus an instruction to a vision-capable model.
type Vision interface {
	InferFromImage(ctx context.Context, instruction string, jpeg []byte) (string, error)
}

// IngredientCache remembers what a previously analyzed image contained.
type IngredientCache interface {
	GetIngredients(ctx context.Context, fingerprint string) (Ingredients, bool, error)
	SaveIngredients(ctx context.Context, fingerprint string, items Ingredients) error
}

// Diagnostic describes one failed external call in a batch. The batch itself
// carries on.
type Diagnostic struct {
	Action  string
	Subject string
	Err     error
}

// Message is the user-facing text for the diagnostic.
func (d Diagnostic) Message() string {
	return fmt.Sprintf("An error occurred while %s (%s): %v", d.Action, d.Subject, d.Err)
}

// Extraction is the result of analyzing a batch of images.
type Extraction struct {
	Ingredients Ingredients
	Diagnostics []Diagnostic
}

// Extractor turns fridge photos into an ingredient set.
type Extractor struct {
	vision Vision
	cache  IngredientCache
	logger *zap.Logger
}

// NewExtractor creates an Extractor. cache may be nil.
func NewExtractor(vision Vision, cache IngredientCache, logger *zap.Logger) *Extractor {
	return &Extractor{vision: vision, cache: cache, logger: logger}
}

// Extract analyzes every image independently and returns the union of the
// items found. A failed image is reported as a diagnostic and skipped.
func (e *Extractor) Extract(ctx context.Context, images []fridge.Image) Extraction {
	var result Extraction
	for i, img := range images {
		subject := fmt.Sprintf("Image %d", i+1)

		items, err := e.identify(ctx, img)
		if err != nil {
			e.logger.Warn("identifying items failed",
				zap.String("image", subject),
				zap.String("fingerprint", img.Fingerprint),
				zap.Error(err))
			result.Diagnostics = append(result.Diagnostics, Diagnostic{
				Action:  "identifying items",
				Subject: subject,
				Err:     err,
			})
			continue
		}

		result.Ingredients = result.Ingredients.Merge(items...)
	}

	e.logger.Info("ingredient extraction finished",
		zap.Int("images", len(images)),
		zap.Int("ingredients", len(result.Ingredients)),
		zap.Int("failures", len(result.Diagnostics)))
	return result
}

func (e *Extractor) identify(ctx context.Context, img fridge.Image) (Ingredients, error) {
	if e.cache != nil {
		items, ok, err := e.cache.GetIngredients(ctx, img.Fingerprint)
		switch {
		case err != nil:
			e.logger.Warn("ingredient cache lookup failed", zap.String("fingerprint", img.Fingerprint), zap.Error(err))
		case ok:
			e.logger.Debug("ingredient cache hit", zap.String("fingerprint", img.Fingerprint))
			return items, nil
		}
	}

	text, err := e.vision.InferFromImage(ctx, IdentifyInstruction, img.JPEG)
	if err != nil {
		return nil, err
	}
	items := ParseIngredients(text)

	if e.cache != nil {
		if err := e.cache.SaveIngredients(ctx, img.Fingerprint, items); err != nil {
			e.logger.Warn("failed to save ingredients", zap.String("fingerprint", img.Fingerprint), zap.Error(err))
		}
	}
	return items, nil
}
