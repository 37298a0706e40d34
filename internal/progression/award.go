package progression

import "risehigh-xp-service/internal/domain"

const (
	baseProfileXP   = 25
	ratingProfileXP = 25

	placedSkillMultiplier   = 75
	unplacedSkillMultiplier = 50

	minRating = 1
	maxRating = 10
)

// Award is the XP granted for one rated submission.
type Award struct {
	ProfileXP int `json:"profile_xp"`
	// SkillXP applies to every skill attached to the challenge.
	SkillXP int `json:"skill_xp"`
}

// PlacementBonus returns the extra profile XP for finishing 1st, 2nd or 3rd.
func PlacementBonus(position *int) int {
	if position == nil {
		return 0
	}
	switch *position {
	case 1:
		return 100
	case 2:
		return 75
	case 3:
		return 50
	default:
		return 0
	}
}

// Calculate computes the award for a submission. ok is false when the
// submission has not been rated yet.
//
//	profile = 25 + floor((rating/10)^2 * 25) + placementBonus
//	skill   = floor(rating/10 * m), m = 75 on the podium, 50 otherwise
func Calculate(rating, position *int) (award Award, ok bool, err error) {
	if rating == nil {
		return Award{}, false, nil
	}
	r := *rating
	if r < minRating || r > maxRating {
		return Award{}, false, domain.ErrInvalidRating
	}

	multiplier := unplacedSkillMultiplier
	if PlacementBonus(position) > 0 {
		multiplier = placedSkillMultiplier
	}

	// Integer forms of the formulas above keep the floors exact.
	return Award{
		ProfileXP: baseProfileXP + r*r*ratingProfileXP/(maxRating*maxRating) + PlacementBonus(position),
		SkillXP:   r * multiplier / maxRating,
	}, true, nil
}

// CalculateFor is Calculate applied to a submission's rating and position.
func CalculateFor(sub domain.Submission) (Award, bool, error) {
	return Calculate(sub.Rating, sub.Position)
}
