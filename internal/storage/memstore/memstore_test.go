package memstore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"bmnode/internal/storage"
	"bmnode/internal/storage/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T, opts storage.Options) storage.Store {
		s, err := New(opts)
		require.NoError(t, err)
		return s
	})
}
