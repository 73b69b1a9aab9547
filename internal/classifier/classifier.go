package classifier

import (
	"context"

	"github.com/propertyline/triage/internal/models"
)

// Classifier turns a tenant transcript into a Classification.
// Implementations backed by a remote service may return models.ErrClassifierUnavailable.
type Classifier interface {
	Classify(ctx context.Context, transcript string) (models.Classification, error)
}
