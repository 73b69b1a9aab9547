package classifier

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/propertyline/triage/internal/models"
)

// FallbackClassifier uses Primary and falls back to the keyword rules when it
// is unavailable, so the composite never fails for a live context.
type FallbackClassifier struct {
	Primary Classifier
	Logger  zerolog.Logger
}

func (f FallbackClassifier) Classify(ctx context.Context, transcript string) (models.Classification, error) {
	if f.Primary != nil {
		c, err := f.Primary.Classify(ctx, transcript)
		if err == nil {
			return c, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.Classification{}, ctxErr
		}
		if errors.Is(err, models.ErrClassifierUnavailable) {
			f.Logger.Warn().Err(err).Msg("remote classifier unavailable, using keyword rules")
		} else {
			f.Logger.Error().Err(err).Msg("remote classifier failed, using keyword rules")
		}
	}
	return ClassifyText(transcript), nil
}
