package main

// AchievementDef describes one milestone
type AchievementDef struct {
	ID          string
	Name        string
	Description string
}

var Achievements = []AchievementDef{
	{"first_hit", "First Hit", "Score your first hit"},
	{"hat_trick", "Hat Trick", "Score 3 hits in a single episode"},
	{"sharpshooter", "Sharpshooter", "Score 10 hits in a single episode"},
	{"marksman", "Marksman", "Reach 100 total hits"},
	{"centurion", "Centurion", "Reach 1000 total hits"},
	{"regular", "Regular", "Finish 100 episodes"},
	{"marathon", "Marathon", "Run 100000 steps in total"},
	{"patient", "Patient", "Finish a 1000 step episode"},
}

// CheckAchievements unlocks any milestones a finished episode earned.
// Returns the newly unlocked ones.
func CheckAchievements(db *DB, ep Episode, stats *StatsRow) []AchievementDef {
	if db == nil || stats == nil {
		return nil
	}

	existing, err := db.GetAchievements(ep.ControllerID)
	if err != nil {
		return nil
	}
	has := make(map[string]bool, len(existing))
	for _, a := range existing {
		has[a] = true
	}

	check := func(id string) bool {
		if has[id] {
			return false
		}
		switch id {
		case "first_hit":
			return stats.TotalReturn >= 1
		case "hat_trick":
			return ep.Return >= 3
		case "sharpshooter":
			return ep.Return >= 10
		case "marksman":
			return stats.TotalReturn >= 100
		case "centurion":
			return stats.TotalReturn >= 1000
		case "regular":
			return stats.Episodes >= 100
		case "marathon":
			return stats.Steps >= 100000
		case "patient":
			return ep.Steps >= 1000
		}
		return false
	}

	var unlocked []AchievementDef
	for _, def := range Achievements {
		if check(def.ID) {
			if newlyUnlocked, err := db.UnlockAchievement(ep.ControllerID, def.ID); err == nil && newlyUnlocked {
				unlocked = append(unlocked, def)
			}
		}
	}
	return unlocked
}
