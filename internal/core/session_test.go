package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parsedSession(t *testing.T) *Session {
	t.Helper()
	s := NewSession()
	s.SetLines([]InputLine{
		MatchedLine{Item: Item{ID: "A1", Name: "Rice", TaxRate: dec("18")}, Quantity: dec("2"), Mode: PriceModeUnit, Amount: dec("120.50"), RowNum: 2},
	})
	return s
}

func TestSession_HappyPath(t *testing.T) {
	s := parsedSession(t)
	assert.Equal(t, StateParsed, s.State())

	gen, err := s.BeginPreview()
	require.NoError(t, err)
	assert.Equal(t, StatePreviewing, s.State())

	ok := s.CompletePreview(gen, []PreviewLine{previewLine("120.50", "2", false, "18")})
	require.True(t, ok)
	assert.Equal(t, StatePreviewReady, s.State())

	require.NoError(t, s.BeginSubmit())
	require.NoError(t, s.CompleteSubmit())
	assert.Equal(t, StateSubmitted, s.State())
	assert.Empty(t, s.Preview())
}

func TestSession_StalePreviewDiscarded(t *testing.T) {
	s := parsedSession(t)

	gen1, err := s.BeginPreview()
	require.NoError(t, err)
	// The user edits rows again before the first response lands.
	gen2, err := s.BeginPreview()
	require.NoError(t, err)
	require.NotEqual(t, gen1, gen2)

	// The earlier response arrives late and must be dropped.
	assert.False(t, s.CompletePreview(gen1, []PreviewLine{previewLine("1", "1", false, "0")}))
	assert.Equal(t, StatePreviewing, s.State())

	assert.True(t, s.CompletePreview(gen2, []PreviewLine{previewLine("2", "1", false, "0")}))
	require.Len(t, s.Preview(), 1)
	assert.True(t, s.Preview()[0].UnitPriceNet.Equal(dec("2")))
}

func TestSession_SubmitBlockedOnUnresolvedConflict(t *testing.T) {
	s := parsedSession(t)
	gen, _ := s.BeginPreview()

	conflicted := previewLine("120.50", "2", false, "18")
	conflicted.ExistingPrice = ptr(dec("100.00"))
	conflicted.Status = StatusConflict
	conflicted.Resolution = ResolutionUnset
	require.True(t, s.CompletePreview(gen, []PreviewLine{conflicted}))

	err := s.BeginSubmit()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnresolvedConflict))
	assert.Equal(t, StatePreviewReady, s.State())

	// Settling the conflict unblocks submission.
	require.NoError(t, s.Resolve(0, ResolutionUpdateExisting))
	require.NoError(t, s.BeginSubmit())
}

func TestSession_ResolveRejectsInvalidDisposition(t *testing.T) {
	s := parsedSession(t)
	gen, _ := s.BeginPreview()
	conflicted := previewLine("120.50", "2", false, "18")
	conflicted.ExistingPrice = ptr(dec("100.00"))
	conflicted.Status = StatusConflict
	require.True(t, s.CompletePreview(gen, []PreviewLine{conflicted}))

	err := s.Resolve(0, ResolutionInsertNew)
	assert.True(t, errors.Is(err, ErrInvalidResolution))
}

func TestSession_FailKeepsStateForRetry(t *testing.T) {
	s := parsedSession(t)
	gen, _ := s.BeginPreview()
	require.True(t, s.CompletePreview(gen, []PreviewLine{previewLine("1", "1", false, "0")}))
	require.NoError(t, s.BeginSubmit())

	s.FailSubmit(errors.New("backend down"))
	assert.Equal(t, StateFailed, s.State())
	assert.Error(t, s.LastError())
	// Prior input is intact for a retry.
	assert.Len(t, s.Lines(), 1)
	assert.Len(t, s.Preview(), 1)

	// A retry goes back through preview.
	_, err := s.BeginPreview()
	require.NoError(t, err)
}

func TestSession_BadTransitions(t *testing.T) {
	s := NewSession()
	_, err := s.BeginPreview()
	assert.True(t, errors.Is(err, ErrBadTransition))

	err = s.BeginSubmit()
	assert.True(t, errors.Is(err, ErrBadTransition))

	s.Reset()
	assert.Equal(t, StateEmpty, s.State())
}
