package memory_test

import (
	"testing"

	"github.com/iho/postings/internal/adapter/repository/memory"
	"github.com/iho/postings/internal/storagetest"
	"github.com/iho/postings/internal/usecase"
)

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) usecase.Store {
		return memory.NewStore()
	})
}
