package similarity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJaccard_IdenticalStrings(t *testing.T) {
	j := Jaccard{}
	score, err := j.Similarity(context.Background(), "the quick brown fox", "the quick brown fox")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-9)
}

func TestJaccard_BothEmpty(t *testing.T) {
	j := Jaccard{}
	score, err := j.Similarity(context.Background(), "", "")
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestJaccard_DisjointSets(t *testing.T) {
	j := Jaccard{}
	score, err := j.Similarity(context.Background(), "alpha beta", "gamma delta")
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestJaccard_PartialOverlap(t *testing.T) {
	j := Jaccard{}
	score, err := j.Similarity(context.Background(), "alpha beta gamma", "beta gamma delta")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, score, 1e-9) // intersection {beta,gamma}=2, union=4
}

func TestTFIDF_IdenticalStrings(t *testing.T) {
	tf := TFIDF{}
	score, err := tf.Similarity(context.Background(), "deploy the service to production", "deploy the service to production")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-6)
}

func TestTFIDF_EmptyInput(t *testing.T) {
	tf := TFIDF{}
	score, err := tf.Similarity(context.Background(), "", "something")
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestTFIDF_ScoreWithinBounds(t *testing.T) {
	tf := TFIDF{}
	score, err := tf.Similarity(context.Background(), "roll back the migration now", "deploy a new feature flag")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
}

func TestEmbedding_IdenticalStrings(t *testing.T) {
	e := Embedding{}
	score, err := e.Similarity(context.Background(), "rotate the credentials immediately", "rotate the credentials immediately")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-9)
}

func TestEmbedding_ScoreWithinBounds(t *testing.T) {
	e := Embedding{}
	score, err := e.Similarity(context.Background(), "ship the hotfix", "revert the release")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
}

func TestDetector_SelectsFirstHealthyBackend(t *testing.T) {
	d := NewDetector(nil, Embedding{}, TFIDF{}, Jaccard{})
	selected := d.Backend(context.Background())
	assert.Equal(t, "embedding", selected.Name())
}

func TestDetector_FallsBackWhenHeadUnhealthy(t *testing.T) {
	d := NewDetector(nil, failingBackend{}, Jaccard{})
	selected := d.Backend(context.Background())
	assert.Equal(t, "jaccard", selected.Name())
}

func TestDetector_SelectionIsStableAcrossCalls(t *testing.T) {
	d := NewDetector(nil, Embedding{}, Jaccard{})
	_, err := d.Similarity(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.Equal(t, "embedding", d.Backend(context.Background()).Name())
}

type failingBackend struct{}

func (failingBackend) Name() string { return "failing" }
func (failingBackend) Similarity(context.Context, string, string) (float64, error) {
	return 0, assertErr{}
}

type assertErr struct{}

func (assertErr) Error() string { return "backend unavailable" }
