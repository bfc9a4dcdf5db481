package vectorstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestClassifyRemoteErr(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		connection bool
	}{
		{"nil", nil, false},
		{"unavailable", status.Error(grpccodes.Unavailable, "connection refused"), true},
		{"deadline exceeded code", status.Error(grpccodes.DeadlineExceeded, "timed out"), true},
		{"aborted", status.Error(grpccodes.Aborted, "aborted"), true},
		{"resource exhausted", status.Error(grpccodes.ResourceExhausted, "overloaded"), true},
		{"unauthenticated", status.Error(grpccodes.Unauthenticated, "bad key"), true},
		{"permission denied", status.Error(grpccodes.PermissionDenied, "forbidden"), true},
		{"context deadline", context.DeadlineExceeded, true},
		{"invalid argument", status.Error(grpccodes.InvalidArgument, "bad vector"), false},
		{"not found", status.Error(grpccodes.NotFound, "no collection"), false},
		{"plain error", errors.New("something else"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyRemoteErr("search", tt.err)
			if tt.err == nil {
				assert.NoError(t, got)
				return
			}
			require.Error(t, got)
			assert.Equal(t, tt.connection, IsConnectionError(got))
		})
	}
}

func TestQdrantConfig_Validate(t *testing.T) {
	valid := QdrantConfig{Host: "localhost", Port: 6334, Collection: "test", Dimension: 3}
	assert.NoError(t, valid.Validate())

	badPort := valid
	badPort.Port = -1
	assert.ErrorIs(t, badPort.Validate(), ErrInvalidConfig)

	noCollection := valid
	noCollection.Collection = ""
	assert.ErrorIs(t, noCollection.Validate(), ErrInvalidConfig)

	badDimension := valid
	badDimension.Dimension = 0
	assert.ErrorIs(t, badDimension.Validate(), ErrInvalidConfig)

	badName := valid
	badName.Collection = "Has Spaces"
	assert.ErrorIs(t, badName.Validate(), ErrInvalidConfig)
}

func TestPointID_Deterministic(t *testing.T) {
	// Re-ingesting the same chunk id must map to the same point, so an
	// upsert replaces instead of duplicating.
	a := pointID("doc1_chunk_0")
	b := pointID("doc1_chunk_0")
	c := pointID("doc1_chunk_1")
	assert.Equal(t, a.GetUuid(), b.GetUuid())
	assert.NotEqual(t, a.GetUuid(), c.GetUuid())
}

func TestBuildFilter(t *testing.T) {
	assert.Nil(t, buildFilter(nil))
	assert.Nil(t, buildFilter(map[string]string{}))

	f := buildFilter(map[string]string{"document_id": "doc1"})
	require.NotNil(t, f)
	require.Len(t, f.Must, 1)
	field := f.Must[0].GetField()
	require.NotNil(t, field)
	assert.Equal(t, "document_id", field.Key)
	assert.Equal(t, "doc1", field.Match.GetKeyword())
}
