package repository_test

import (
	"github.com/facepass/engine/internal/repository"
	"github.com/facepass/engine/internal/service"
)

// The services consume the repository through their own narrow store
// interfaces; these assertions keep the method sets in sync.
var (
	_ service.EmbeddingsStore = (*repository.FaceEmbeddingsRepository)(nil)
	_ service.SearchStore     = (*repository.FaceEmbeddingsRepository)(nil)
)
