package index

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offenes-grundbuch/registry/internal/models"
)

func openTestIndex(t *testing.T) Index {
	t.Helper()
	ix, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { ix.Close() })
	return ix
}

func doc(amtsgericht, bezirk string, blatt int, body string) models.Document {
	return models.Document{
		DocumentKey: models.DocumentKey{Amtsgericht: amtsgericht, Bezirk: bezirk, Blatt: blatt},
		Body:        json.RawMessage(body),
	}
}

func TestAddAndQuery(t *testing.T) {
	ix := openTestIndex(t)
	ctx := context.Background()

	require.NoError(t, ix.Add(ctx, "BB", doc("Prenzlau", "Seelübbe", 1, `{"eigentuemer":"Erika Mustermann"}`)))
	require.NoError(t, ix.Add(ctx, "BB", doc("Prenzlau", "Seelübbe", 2, `{"eigentuemer":"Max Mustermann"}`)))

	hits, err := ix.Query(ctx, "Mustermann")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "BB", hits[0].Land)
	assert.Equal(t, 1, hits[0].Blatt)
	assert.Contains(t, hits[0].Snippet, "Mustermann")

	hits, err = ix.Query(ctx, "Erika")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 1, hits[0].Blatt)
}

func TestQueryRequiresAllTerms(t *testing.T) {
	ix := openTestIndex(t)
	ctx := context.Background()

	require.NoError(t, ix.Add(ctx, "BB", doc("Prenzlau", "Seelübbe", 1, `{"a":"Acker Wiese"}`)))
	require.NoError(t, ix.Add(ctx, "BB", doc("Prenzlau", "Seelübbe", 2, `{"a":"Acker Wald"}`)))

	hits, err := ix.Query(ctx, "Acker Wiese")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 1, hits[0].Blatt)
}

func TestQueryEscapesLikeMetacharacters(t *testing.T) {
	ix := openTestIndex(t)
	ctx := context.Background()

	require.NoError(t, ix.Add(ctx, "BB", doc("Prenzlau", "Seelübbe", 1, `{"a":"100% Anteil"}`)))
	require.NoError(t, ix.Add(ctx, "BB", doc("Prenzlau", "Seelübbe", 2, `{"a":"1002 Anteil"}`)))

	hits, err := ix.Query(ctx, "100%")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 1, hits[0].Blatt)
}

func TestQueryEmptyTermsReturnsNothing(t *testing.T) {
	ix := openTestIndex(t)
	ctx := context.Background()

	require.NoError(t, ix.Add(ctx, "BB", doc("Prenzlau", "Seelübbe", 1, `{"a":"x"}`)))

	hits, err := ix.Query(ctx, "   ")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestAddReplacesEarlierVersion(t *testing.T) {
	ix := openTestIndex(t)
	ctx := context.Background()

	require.NoError(t, ix.Add(ctx, "BB", doc("Prenzlau", "Seelübbe", 1, `{"a":"alt"}`)))
	require.NoError(t, ix.Add(ctx, "BB", doc("Prenzlau", "Seelübbe", 1, `{"a":"neu"}`)))

	hits, err := ix.Query(ctx, "alt")
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = ix.Query(ctx, "neu")
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestRebuildFromWalk(t *testing.T) {
	ix := openTestIndex(t)
	ctx := context.Background()

	tree := map[string][]byte{
		"BB/Prenzlau/Seelübbe/Seelübbe_1.json": []byte(`{"a":"Flurstück 17"}`),
		"BB/Prenzlau/Seelübbe/Seelübbe_2.json": []byte(`{"a":"Flurstück 18"}`),
		"README.md":                            []byte("kein Dokument"),
	}
	walk := func(fn func(path string, content []byte) error) error {
		for p, c := range tree {
			if err := fn(p, c); err != nil {
				return err
			}
		}
		return nil
	}

	require.NoError(t, Rebuild(ctx, ix, walk))

	hits, err := ix.Query(ctx, "Flurstück")
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	hits, err = ix.Query(ctx, "Dokument")
	require.NoError(t, err)
	assert.Empty(t, hits)
}
