package embedding

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := Normalize([]float32{0, 0, 0})
	assert.Equal(t, []float32{0, 0, 0}, zero)
}

func TestFindTopK_OrdersBySimilarityAndKeepsTiesStable(t *testing.T) {
	corpus := [][]float32{
		{0, 1},
		{1, 0},
		{1, 0},
		Normalize([]float32{1, 1}),
	}
	got, err := FindTopK([]float32{1, 0}, corpus, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, 1, got[0].Index)
	assert.Equal(t, 2, got[1].Index)
	assert.Equal(t, 3, got[2].Index)
}

func TestFindTopK_Edges(t *testing.T) {
	got, err := FindTopK([]float32{1}, nil, 3)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = FindTopK([]float32{1}, [][]float32{{1}}, 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = FindTopK([]float32{1, 0}, [][]float32{{1, 0}, {0, 1}}, 10)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = FindTopK([]float32{1, 0}, [][]float32{{1}}, 1)
	assert.Error(t, err)
}

func TestNormalizedDot_ScaleInvariant(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 16).Draw(rt, "dims")
		a := make([]float32, n)
		b := make([]float32, n)
		for i := range a {
			a[i] = float32(rapid.IntRange(-100, 100).Draw(rt, "a"))
			b[i] = float32(rapid.IntRange(-100, 100).Draw(rt, "b"))
		}
		scale := float32(rapid.IntRange(1, 50).Draw(rt, "scale"))

		scaled := make([]float32, n)
		for i := range a {
			scaled[i] = a[i] * scale
		}

		base := Dot(Normalize(a), Normalize(b))
		again := Dot(Normalize(scaled), Normalize(b))
		if math.Abs(base-again) > 1e-4 {
			rt.Fatalf("cosine changed under scaling by %v: %v vs %v", scale, base, again)
		}
	})
}

func TestSelectTaskType(t *testing.T) {
	if got := SelectTaskType(ContentTypePolicyChunk); got != TaskRetrievalDocument {
		t.Fatalf("SelectTaskType(policy_chunk)=%q, want %q", got, TaskRetrievalDocument)
	}
	if got := SelectTaskType(ContentTypeInquiry); got != TaskRetrievalQuery {
		t.Fatalf("SelectTaskType(inquiry)=%q, want %q", got, TaskRetrievalQuery)
	}
	if got := SelectTaskType("other"); got != TaskSemantic {
		t.Fatalf("SelectTaskType(other)=%q, want %q", got, TaskSemantic)
	}
}
