package features

// Mood is a coarse label derived from energy, valence and tempo
type Mood string

const (
	MoodEnergetic   Mood = "energetic"
	MoodHappy       Mood = "happy"
	MoodMelancholic Mood = "melancholic"
	MoodChill       Mood = "chill"
	MoodIntense     Mood = "intense"
	MoodNeutral     Mood = "neutral"
)

type moodRule struct {
	mood  Mood
	match func(energy, valence, tempo float64) bool
}

// evaluated in order, first match wins
var moodRules = []moodRule{
	{MoodEnergetic, func(e, _, t float64) bool { return e > 0.6 && t > 120 }},
	{MoodHappy, func(e, v, _ float64) bool { return e > 0.5 && v > 0.5 }},
	{MoodMelancholic, func(e, v, _ float64) bool { return e < 0.4 && v < 0.4 }},
	{MoodChill, func(e, _, t float64) bool { return e < 0.5 && t < 100 }},
	{MoodIntense, func(e, _, _ float64) bool { return e > 0.7 }},
}

// ClassifyMood maps energy and valence in [0, 1] and tempo in BPM to a mood
func ClassifyMood(energy, valence, tempo float64) Mood {
	for _, rule := range moodRules {
		if rule.match(energy, valence, tempo) {
			return rule.mood
		}
	}
	return MoodNeutral
}
