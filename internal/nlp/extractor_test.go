package nlp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/shitsumon/internal/models"
)

func TestProseExtractor_FindsProperNounsAndNumbers(t *testing.T) {
	p := NewProseExtractor(nil)
	ents, err := p.Extract(context.Background(), "How did Microsoft revenue change in 2023 compared to Google?")
	require.NoError(t, err)

	byText := make(map[string]models.Entity)
	for _, e := range ents {
		byText[e.Text] = e
		assert.Equal(t, Source, e.Source)
	}
	assert.Contains(t, byText, "Microsoft")
	assert.Contains(t, byText, "2023")
	assert.Equal(t, LabelNumber, byText["2023"].Label)
}

func TestProseExtractor_EmptyAndCancelled(t *testing.T) {
	p := NewProseExtractor(nil)
	ents, err := p.Extract(context.Background(), "   ")
	require.NoError(t, err)
	assert.Empty(t, ents)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Extract(ctx, "Apple in Paris")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAddEntity_Dedupes(t *testing.T) {
	seen := make(map[string]models.Entity)
	addEntity(seen, "Paris", "GPE", 0.9)
	addEntity(seen, "paris,", LabelProperNoun, 0.6)
	addEntity(seen, " ", LabelNumber, 0.5)
	require.Len(t, seen, 1)
	assert.Equal(t, "GPE", seen["paris"].Label)

	addEntity(seen, "Berlin", "GPE", 0.9)
	out := sortedEntities(seen)
	assert.Equal(t, "Berlin", out[0].Text)
	assert.Equal(t, "Paris", out[1].Text)
}

func TestMockExtractor(t *testing.T) {
	m := &MockExtractor{Entities: []models.Entity{{Text: "Acme", Label: "ORG", Source: Source}}}
	ents, err := m.Extract(context.Background(), "anything")
	require.NoError(t, err)
	assert.Len(t, ents, 1)

	m.Err = errors.New("down")
	_, err = m.Extract(context.Background(), "anything")
	assert.EqualError(t, err, "down")

	m.Err = nil
	m.Delay = time.Second
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = m.Extract(ctx, "anything")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 3, m.Calls())
}
