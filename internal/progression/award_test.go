package progression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"risehigh-xp-service/internal/domain"
)

func intPtr(v int) *int { return &v }

func TestCalculate(t *testing.T) {
	tests := []struct {
		name     string
		rating   *int
		position *int
		want     Award
	}{
		{name: "maximum", rating: intPtr(10), position: intPtr(1), want: Award{ProfileXP: 150, SkillXP: 75}},
		{name: "minimum", rating: intPtr(1), want: Award{ProfileXP: 25, SkillXP: 5}},
		{name: "second place", rating: intPtr(8), position: intPtr(2), want: Award{ProfileXP: 25 + 16 + 75, SkillXP: 60}},
		{name: "third place", rating: intPtr(5), position: intPtr(3), want: Award{ProfileXP: 25 + 6 + 50, SkillXP: 37}},
		{name: "unplaced mid rating", rating: intPtr(7), want: Award{ProfileXP: 25 + 12, SkillXP: 35}},
		{name: "fourth place earns no bonus", rating: intPtr(10), position: intPtr(4), want: Award{ProfileXP: 50, SkillXP: 50}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := Calculate(tt.rating, tt.position)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)

			again, _, _ := Calculate(tt.rating, tt.position)
			assert.Equal(t, got, again)
		})
	}
}

func TestCalculateUnrated(t *testing.T) {
	award, ok, err := Calculate(nil, intPtr(1))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, award)
}

func TestCalculateRejectsOutOfRangeRating(t *testing.T) {
	for _, r := range []int{0, 11, -3} {
		_, _, err := Calculate(intPtr(r), nil)
		assert.ErrorIs(t, err, domain.ErrInvalidRating)
	}
}

func TestProfileAwardBounds(t *testing.T) {
	for r := 1; r <= 10; r++ {
		for _, pos := range []*int{nil, intPtr(1), intPtr(2), intPtr(3)} {
			award, ok, err := Calculate(intPtr(r), pos)
			require.NoError(t, err)
			require.True(t, ok)
			assert.GreaterOrEqual(t, award.ProfileXP, 25)
			assert.LessOrEqual(t, award.ProfileXP, 150)
			assert.Positive(t, award.SkillXP)
		}
	}
}
