package tonal

import "fmt"

// PitchProfile is a 12-element template of pitch-class weights for a key
// rooted on C. Arrays are values in Go, so rotating or passing a profile
// never mutates the shared templates below.
type PitchProfile [12]float64

// PitchNames are the sharp spellings of the 12 pitch classes, C = 0
var PitchNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// KeyProfile selects a set of major/minor templates
type KeyProfile int

const (
	KeyProfileKrumhansl KeyProfile = iota
	KeyProfileTemperley
)

// KeyProfileTemplate pairs the major and minor templates of one profile set
type KeyProfileTemplate struct {
	Major       PitchProfile
	Minor       PitchProfile
	Name        string
	Description string
}

var keyProfiles = map[KeyProfile]KeyProfileTemplate{
	KeyProfileKrumhansl: {
		Major:       PitchProfile{6.35, 2.23, 3.48, 2.33, 4.38, 4.09, 2.52, 5.19, 2.39, 3.66, 2.29, 2.88},
		Minor:       PitchProfile{6.33, 2.68, 3.52, 5.38, 2.60, 3.53, 2.54, 4.75, 3.98, 2.69, 3.34, 3.17},
		Name:        "krumhansl",
		Description: "Empirical profiles based on listener ratings",
	},
	KeyProfileTemperley: {
		Major:       PitchProfile{5.0, 2.0, 3.5, 2.0, 4.5, 4.0, 2.0, 4.5, 2.0, 3.5, 1.5, 4.0},
		Minor:       PitchProfile{5.0, 2.0, 3.5, 4.5, 2.0, 4.0, 2.0, 4.5, 3.5, 2.0, 1.5, 4.0},
		Name:        "temperley",
		Description: "Statistical profiles from musical corpora",
	},
}

// Template returns the templates for profile p
func (p KeyProfile) Template() KeyProfileTemplate {
	return keyProfiles[p]
}

func (p KeyProfile) String() string {
	if tmpl, ok := keyProfiles[p]; ok {
		return tmpl.Name
	}
	return "unknown"
}

// ParseKeyProfile maps a config name to a KeyProfile
func ParseKeyProfile(name string) (KeyProfile, error) {
	for p, tmpl := range keyProfiles {
		if tmpl.Name == name {
			return p, nil
		}
	}
	return KeyProfileKrumhansl, fmt.Errorf("unknown key profile %q", name)
}

// Rotate transposes the profile so that its tonic lands on pitch class
// shift: result[j] = p[(j-shift) mod 12].
func (p PitchProfile) Rotate(shift int) PitchProfile {
	var rotated PitchProfile
	shift = ((shift % 12) + 12) % 12
	for j := range rotated {
		rotated[j] = p[(j-shift+12)%12]
	}
	return rotated
}
