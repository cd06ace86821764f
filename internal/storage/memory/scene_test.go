package memory

import (
	"testing"

	"github.com/Vasu1712/scenyx-narrator/internal/storage"
	"github.com/Vasu1712/scenyx-narrator/internal/storage/storetest"
)

func TestSceneStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storage.Store {
		return NewSceneStore()
	})
}
