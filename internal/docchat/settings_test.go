package docchat_test

import (
	"context"
	"errors"
	"testing"

	"docchat/internal/api"
	"docchat/internal/docchat"
)

func TestSettings(t *testing.T) {
	ctx := context.Background()
	client, fake := newTestClient(t)
	log := &activityLog{}
	s := docchat.NewSettings(client, log, docchat.NewNopLogger())

	t.Run("Status", func(t *testing.T) {
		fake.AddUploadedFile("a.pdf")
		status, err := s.Status(ctx)
		if err != nil {
			t.Fatalf("Status() error = %v", err)
		}
		if status.TotalVectorsStored != 3 || status.EmbeddingModel != fake.EmbeddingModel() {
			t.Errorf("status = %+v", status)
		}
	})

	t.Run("Models", func(t *testing.T) {
		catalog, err := s.Models(ctx)
		if err != nil {
			t.Fatalf("Models() error = %v", err)
		}
		if len(catalog.Embedding) != 2 || len(catalog.Inference) != 4 {
			t.Errorf("catalog = %+v", catalog)
		}
	})

	t.Run("SetEmbeddingModel", func(t *testing.T) {
		if err := s.SetEmbeddingModel(ctx, "sentence-transformers/all-mpnet-base-v2"); err != nil {
			t.Fatalf("SetEmbeddingModel() error = %v", err)
		}
		if fake.EmbeddingModel() != "sentence-transformers/all-mpnet-base-v2" {
			t.Errorf("embedding model = %q", fake.EmbeddingModel())
		}
		if n := len(log.messages); n == 0 || log.messages[n-1] != "Embedding model changed to sentence-transformers/all-mpnet-base-v2" || log.kinds[n-1] != "model-change" {
			t.Errorf("activities = %v", log.messages)
		}
	})

	t.Run("SetInferenceModel", func(t *testing.T) {
		if err := s.SetInferenceModel(ctx, "google/flan-t5-base"); err != nil {
			t.Fatalf("SetInferenceModel() error = %v", err)
		}
		if fake.InferenceModel() != "google/flan-t5-base" {
			t.Errorf("inference model = %q", fake.InferenceModel())
		}
		if n := len(log.messages); log.messages[n-1] != "Inference model changed to google/flan-t5-base" {
			t.Errorf("activities = %v", log.messages)
		}
	})

	t.Run("rejects unknown model", func(t *testing.T) {
		before := len(log.messages)
		err := s.SetInferenceModel(ctx, "gpt-17")
		var terr *api.TransportError
		if !errors.As(err, &terr) || terr.Detail != "Invalid inference model" {
			t.Errorf("error = %v", err)
		}
		if len(log.messages) != before {
			t.Error("failed change recorded an activity")
		}
	})

	t.Run("rejects blank model", func(t *testing.T) {
		var verr *docchat.ValidationError
		if err := s.SetEmbeddingModel(ctx, " "); !errors.As(err, &verr) {
			t.Errorf("error = %v, want ValidationError", err)
		}
	})
}
