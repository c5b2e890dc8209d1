package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nurpe/weighbridge-allocations/internal/model"
)

func TestCreditWithinCapacity(t *testing.T) {
	pile := &model.Stockpile{Name: "A1", CapacityTonnes: 1000, CurrentTonnes: 400}

	result, err := credit(pile, 250)
	require.NoError(t, err)

	assert.Equal(t, 250.0, result.Applied)
	assert.Equal(t, 0.0, result.OverflowTonnes)
	assert.Equal(t, 650.0, pile.CurrentTonnes)
	assert.Equal(t, 350.0, pile.AvailableTonnes())
}

func TestCreditClampsAtCapacity(t *testing.T) {
	pile := &model.Stockpile{Name: "A1", CapacityTonnes: 1000, CurrentTonnes: 900}

	result, err := credit(pile, 250)
	require.NoError(t, err)

	assert.Equal(t, 100.0, result.Applied)
	assert.Equal(t, 150.0, result.OverflowTonnes)
	assert.Equal(t, 1000.0, pile.CurrentTonnes)
}

func TestCreditReleasesPendingInbound(t *testing.T) {
	pile := &model.Stockpile{Name: "A1", CapacityTonnes: 1000, CurrentTonnes: 100, PendingInboundTonnes: 90}

	_, err := credit(pile, 40)
	require.NoError(t, err)
	assert.Equal(t, 50.0, pile.PendingInboundTonnes)

	// More than remains pending: released amount bottoms out at zero.
	_, err = credit(pile, 200)
	require.NoError(t, err)
	assert.Equal(t, 0.0, pile.PendingInboundTonnes)
}

func TestCreditRejectsNegative(t *testing.T) {
	pile := &model.Stockpile{Name: "A1", CapacityTonnes: 1000}
	_, err := credit(pile, -5)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDebitClampsAtZero(t *testing.T) {
	pile := &model.Stockpile{Name: "A1", CapacityTonnes: 1000, CurrentTonnes: 30}

	applied, err := debit(pile, 100)
	require.NoError(t, err)

	assert.Equal(t, 30.0, applied)
	assert.Equal(t, 0.0, pile.CurrentTonnes)
}

func TestAdversarialCreditDebitSequenceStaysBounded(t *testing.T) {
	pile := &model.Stockpile{Name: "A1", CapacityTonnes: 500, CurrentTonnes: 250}

	amounts := []float64{900, 10, 3000, 1, 499, 200, 0, 42}
	for i, amount := range amounts {
		if i%2 == 0 {
			_, err := credit(pile, amount)
			require.NoError(t, err)
		} else {
			_, err := debit(pile, amount)
			require.NoError(t, err)
		}
		assert.GreaterOrEqual(t, pile.CurrentTonnes, 0.0)
		assert.LessOrEqual(t, pile.CurrentTonnes, pile.CapacityTonnes)
	}
}

func TestAggregateUtilisationIsTonnageWeighted(t *testing.T) {
	piles := []model.Stockpile{
		{Name: "big", CapacityTonnes: 10000, CurrentTonnes: 1000},
		{Name: "small", CapacityTonnes: 100, CurrentTonnes: 100},
	}

	// Simple average of 10% and 100% would be 55%; weighted is ~10.9%.
	assert.InDelta(t, 1100.0/10100.0, AggregateUtilisation(piles), 1e-9)
}

func TestAggregateUtilisationEmptySet(t *testing.T) {
	assert.Equal(t, 0.0, AggregateUtilisation(nil))
}
