package vector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeMetadataKeepsScalars(t *testing.T) {
	out := SanitizeMetadata(map[string]interface{}{
		"doc_id":      int64(42),
		"chunk_index": 3,
		"text":        "hello",
		"score":       0.91,
		"archived":    false,
	})
	require.Equal(t, int64(42), out["doc_id"])
	require.Equal(t, 3, out["chunk_index"])
	require.Equal(t, "hello", out["text"])
	require.Equal(t, 0.91, out["score"])
	require.Equal(t, false, out["archived"])
}

func TestSanitizeMetadataDropsUnsupportedShapes(t *testing.T) {
	out := SanitizeMetadata(map[string]interface{}{
		"nested": map[string]interface{}{"a": 1},
		"nil":    nil,
		"mixed":  []interface{}{"a", 1},
		"":       "no key",
		"keep":   "yes",
	})
	require.Equal(t, map[string]interface{}{"keep": "yes"}, out)
}

func TestSanitizeMetadataHomogeneousArrays(t *testing.T) {
	out := SanitizeMetadata(map[string]interface{}{
		"tags":   []interface{}{"a", "b"},
		"scores": []interface{}{1, 2.5, int64(3)},
		"empty":  []interface{}{},
	})
	require.Equal(t, []string{"a", "b"}, out["tags"])
	require.Equal(t, []float64{1, 2.5, 3}, out["scores"])
	require.NotContains(t, out, "empty")
}

func TestSanitizeMetadataTruncatesLongStrings(t *testing.T) {
	out := SanitizeMetadata(map[string]interface{}{
		"text": strings.Repeat("x", MetadataMaxStringLen+500),
	})
	require.Len(t, out["text"].(string), MetadataMaxStringLen)
}

func TestSanitizeMetadataTruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("你", 500) // 3 bytes each, 1500 bytes total
	out := SanitizeMetadata(map[string]interface{}{"text": long})
	got := out["text"].(string)
	require.LessOrEqual(t, len(got), MetadataMaxStringLen)
	require.True(t, strings.HasSuffix(got, "你"))
	require.Equal(t, 0, len(got)%3)
}

func TestSanitizeMetadataEmpty(t *testing.T) {
	require.Nil(t, SanitizeMetadata(nil))
	require.Nil(t, SanitizeMetadata(map[string]interface{}{}))
	require.Nil(t, SanitizeMetadata(map[string]interface{}{"bad": struct{}{}}))
}

func TestVectorIDs(t *testing.T) {
	require.Equal(t, "tenant:org1", Namespace("org1"))
	require.Equal(t, "doc_7_chunk_2", ChunkVectorID(7, 2))
	require.Equal(t, "doc_7_chunk_", ChunkVectorPrefix(7))
	require.Equal(t, "employee_u9", EmployeeVectorID("u9"))
}
