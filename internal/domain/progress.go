package domain

import "time"

// XPPerLevel is the amount of experience that separates two levels.
const XPPerLevel = 1000

// LevelRecord tracks a user's experience. Level is derived from XP and is
// monotonically non-decreasing.
type LevelRecord struct {
	UserID    string
	XP        int64
	Level     int64
	UpdatedAt time.Time
}

// LevelForXP computes the level implied by an XP total.
func LevelForXP(xp int64) int64 {
	if xp < 0 {
		return 1
	}
	return xp/XPPerLevel + 1
}

// XPResult reports the outcome of an AddXP mutation.
type XPResult struct {
	XP       int64
	Level    int64
	LevelUp  bool
	NewLevel int64
}
