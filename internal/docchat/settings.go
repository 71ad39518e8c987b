package docchat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"docchat/internal/api"
	"docchat/internal/model"
)

// ModelCatalog lists the models the backend offers.
type ModelCatalog struct {
	Embedding []string
	Inference []string
}

// Settings reads backend status and switches models.
type Settings struct {
	backend    ModelBackend
	activities ActivityRecorder
	logger     Logger
}

// NewSettings creates Settings. activities may be nil.
func NewSettings(backend ModelBackend, activities ActivityRecorder, logger Logger) *Settings {
	return &Settings{backend: backend, activities: activities, logger: logger}
}

// Status returns the backend's index status.
func (s *Settings) Status(ctx context.Context) (*api.Status, error) {
	status, err := s.backend.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting backend status: %w", err)
	}
	return status, nil
}

// Models fetches both model lists concurrently.
func (s *Settings) Models(ctx context.Context) (*ModelCatalog, error) {
	var catalog ModelCatalog
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		models, err := s.backend.ListEmbeddingModels(ctx)
		if err != nil {
			return fmt.Errorf("listing embedding models: %w", err)
		}
		catalog.Embedding = models
		return nil
	})
	g.Go(func() error {
		models, err := s.backend.ListInferenceModels(ctx)
		if err != nil {
			return fmt.Errorf("listing inference models: %w", err)
		}
		catalog.Inference = models
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &catalog, nil
}

// SetEmbeddingModel switches the embedding model. The backend rebuilds its
// index, so previously uploaded documents must be uploaded again.
func (s *Settings) SetEmbeddingModel(ctx context.Context, name string) error {
	return s.setModel(ctx, "Embedding", name, s.backend.SetEmbeddingModel)
}

// SetInferenceModel switches the model that answers chat turns.
func (s *Settings) SetInferenceModel(ctx context.Context, name string) error {
	return s.setModel(ctx, "Inference", name, s.backend.SetInferenceModel)
}

func (s *Settings) setModel(ctx context.Context, kind, name string, set func(context.Context, string) error) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &ValidationError{Message: "Please choose a model."}
	}
	if err := set(ctx, name); err != nil {
		return fmt.Errorf("setting %s model: %w", strings.ToLower(kind), err)
	}
	s.logger.Info("model changed", "kind", strings.ToLower(kind), "model", name)

	if s.activities != nil {
		msg := fmt.Sprintf("%s model changed to %s", kind, name)
		if err := s.activities.AddActivity(ctx, model.ActivityModelChange, msg); err != nil && !errors.Is(err, ErrNotAuthenticated) {
			s.logger.Warn("recording model change failed", "error", err)
		}
	}
	return nil
}
