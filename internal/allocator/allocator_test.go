package allocator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fuelstation/internal/models"
)

func tanks(levels ...[2]int64) []models.Tank {
	result := make([]models.Tank, 0, len(levels))
	for i, l := range levels {
		result = append(result, models.Tank{ID: int64(i + 1), FuelID: 1, Stored: l[0], Capacity: l[1]})
	}
	return result
}

func sumAfter(t *testing.T, before []models.Tank, plan *Plan) int64 {
	t.Helper()
	levels := make(map[int64]int64, len(before))
	for _, tank := range before {
		levels[tank.ID] = tank.Stored
	}
	for _, step := range plan.Steps {
		require.Equal(t, levels[step.TankID], step.Before)
		levels[step.TankID] = step.After
	}
	var total int64
	for _, v := range levels {
		total += v
	}
	return total
}

func TestAllocate_DrainsInIDOrder(t *testing.T) {
	input := tanks([2]int64{300, 1000}, [2]int64{200, 500})

	plan, err := Allocate(input, 450, false)
	require.NoError(t, err)

	require.Len(t, plan.Steps, 2)
	assert.Equal(t, Step{TankID: 1, Before: 300, After: 0, Amount: 300}, plan.Steps[0])
	assert.Equal(t, Step{TankID: 2, Before: 200, After: 50, Amount: 150}, plan.Steps[1])
	assert.Equal(t, int64(450), plan.Total)
	assert.False(t, plan.Binary)
}

func TestAllocate_UnsortedInput(t *testing.T) {
	input := []models.Tank{
		{ID: 9, Stored: 100, Capacity: 100},
		{ID: 3, Stored: 100, Capacity: 100},
	}

	plan, err := Allocate(input, 50, false)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, int64(3), plan.Steps[0].TankID)

	// The caller's slice is left in place
	assert.Equal(t, int64(9), input[0].ID)
}

func TestAllocate_SkipsEmptyTanks(t *testing.T) {
	input := tanks([2]int64{0, 100}, [2]int64{40, 100}, [2]int64{0, 100}, [2]int64{60, 100})

	plan, err := Allocate(input, 70, false)
	require.NoError(t, err)

	require.Len(t, plan.Steps, 2)
	assert.Equal(t, int64(2), plan.Steps[0].TankID)
	assert.Equal(t, int64(4), plan.Steps[1].TankID)
	assert.Equal(t, int64(30), plan.Steps[1].Amount)
}

func TestAllocate_Conservation(t *testing.T) {
	input := tanks([2]int64{10, 10}, [2]int64{25, 50}, [2]int64{7, 20}, [2]int64{100, 100})
	total := int64(142)

	for q := int64(1); q <= total; q++ {
		plan, err := Allocate(input, q, false)
		require.NoError(t, err, "quantity %d", q)
		assert.Equal(t, total-q, sumAfter(t, input, plan), "quantity %d", q)

		var drawn int64
		for _, step := range plan.Steps {
			assert.GreaterOrEqual(t, step.After, int64(0))
			drawn += step.Amount
		}
		assert.Equal(t, q, drawn)
	}
}

func TestAllocate_InsufficientStock(t *testing.T) {
	input := tanks([2]int64{300, 1000}, [2]int64{200, 500})

	plan, err := Allocate(input, 501, false)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Nil(t, plan)

	_, err = Allocate(nil, 1, false)
	assert.ErrorIs(t, err, ErrInsufficientStock)
}

func TestAllocate_ExactStock(t *testing.T) {
	input := tanks([2]int64{300, 1000}, [2]int64{200, 500})

	plan, err := Allocate(input, 500, false)
	require.NoError(t, err)
	assert.Zero(t, sumAfter(t, input, plan))
}

func TestAllocate_Binary(t *testing.T) {
	tests := []struct {
		name     string
		tanks    []models.Tank
		quantity int64
		feasible bool
	}{
		{name: "one live charger", tanks: tanks([2]int64{0, 1}, [2]int64{1, 1}), quantity: 1000, feasible: true},
		{name: "quantity above stock", tanks: tanks([2]int64{1, 1}), quantity: 50, feasible: true},
		{name: "all down", tanks: tanks([2]int64{0, 1}, [2]int64{0, 1}), quantity: 1},
		{name: "no tanks", tanks: nil, quantity: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := Allocate(tt.tanks, tt.quantity, true)
			if !tt.feasible {
				assert.ErrorIs(t, err, ErrInsufficientStock)
				return
			}
			require.NoError(t, err)
			assert.True(t, plan.Binary)
			assert.Empty(t, plan.Steps)
		})
	}
}

func TestAllocate_InvalidQuantity(t *testing.T) {
	input := tanks([2]int64{10, 10})

	_, err := Allocate(input, 0, false)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = Allocate(input, -3, true)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestAllocateCapacity(t *testing.T) {
	input := tanks([2]int64{950, 1000}, [2]int64{500, 500}, [2]int64{100, 300})

	plan, err := AllocateCapacity(input, 120)
	require.NoError(t, err)

	require.Len(t, plan.Steps, 2)
	assert.Equal(t, Step{TankID: 1, Before: 950, After: 1000, Amount: 50}, plan.Steps[0])
	assert.Equal(t, Step{TankID: 3, Before: 100, After: 170, Amount: 70}, plan.Steps[1])
	assert.Equal(t, int64(1550+120), sumAfter(t, input, plan))
}

func TestAllocateCapacity_InsufficientSpace(t *testing.T) {
	input := tanks([2]int64{950, 1000}, [2]int64{500, 500})

	_, err := AllocateCapacity(input, 51)
	assert.ErrorIs(t, err, ErrInsufficientSpace)

	plan, err := AllocateCapacity(input, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), plan.Steps[0].After)
}

func TestAllocateCapacity_MirrorsAllocate(t *testing.T) {
	input := tanks([2]int64{300, 1000}, [2]int64{200, 500})

	fill, err := AllocateCapacity(input, 700)
	require.NoError(t, err)

	filled := make([]models.Tank, len(input))
	copy(filled, input)
	for i := range filled {
		for _, step := range fill.Steps {
			if step.TankID == filled[i].ID {
				filled[i].Stored = step.After
			}
		}
	}

	draw, err := Allocate(filled, 700, false)
	require.NoError(t, err)
	assert.Equal(t, int64(500), sumAfter(t, filled, draw))
}
