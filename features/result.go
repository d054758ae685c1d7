package features

import (
	"encoding/json"
	"errors"
)

// AnalysisResult is either a success carrying the descriptors of one file
// or a failure carrying an error message. The zero value is a failure with
// an empty message.
type AnalysisResult struct {
	success      bool
	bpm          float64
	key          string
	energy       float64
	danceability float64
	valence      float64
	mood         Mood
	message      string
}

// NewSuccess creates a successful result
func NewSuccess(bpm float64, key string, energy, danceability, valence float64, mood Mood) AnalysisResult {
	return AnalysisResult{
		success:      true,
		bpm:          bpm,
		key:          key,
		energy:       energy,
		danceability: danceability,
		valence:      valence,
		mood:         mood,
	}
}

// NewFailure creates a failed result with the given message
func NewFailure(message string) AnalysisResult {
	return AnalysisResult{message: message}
}

func (r AnalysisResult) Success() bool         { return r.success }
func (r AnalysisResult) BPM() float64          { return r.bpm }
func (r AnalysisResult) Key() string           { return r.key }
func (r AnalysisResult) Energy() float64       { return r.energy }
func (r AnalysisResult) Danceability() float64 { return r.danceability }
func (r AnalysisResult) Valence() float64      { return r.valence }
func (r AnalysisResult) Mood() Mood            { return r.mood }

// ErrorMessage is empty for successful results
func (r AnalysisResult) ErrorMessage() string { return r.message }

type successWire struct {
	BPM          float64 `json:"bpm" yaml:"bpm"`
	Key          string  `json:"key" yaml:"key"`
	Energy       float64 `json:"energy" yaml:"energy"`
	Danceability float64 `json:"danceability" yaml:"danceability"`
	Valence      float64 `json:"valence" yaml:"valence"`
	Mood         Mood    `json:"mood" yaml:"mood"`
	Success      bool    `json:"success" yaml:"success"`
}

type failureWire struct {
	Error   string `json:"error" yaml:"error"`
	Success bool   `json:"success" yaml:"success"`
}

func (r AnalysisResult) wire() any {
	if !r.success {
		return failureWire{Error: r.message}
	}
	return successWire{
		BPM:          r.bpm,
		Key:          r.key,
		Energy:       r.energy,
		Danceability: r.danceability,
		Valence:      r.valence,
		Mood:         r.mood,
		Success:      true,
	}
}

// MarshalJSON writes the flattened form: the descriptors plus
// "success": true, or "error" plus "success": false
func (r AnalysisResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.wire())
}

// MarshalYAML mirrors MarshalJSON for the yaml output format
func (r AnalysisResult) MarshalYAML() (any, error) {
	return r.wire(), nil
}

// UnmarshalJSON reads the flattened form written by MarshalJSON
func (r *AnalysisResult) UnmarshalJSON(data []byte) error {
	var w struct {
		Success      *bool   `json:"success"`
		Error        string  `json:"error"`
		BPM          float64 `json:"bpm"`
		Key          string  `json:"key"`
		Energy       float64 `json:"energy"`
		Danceability float64 `json:"danceability"`
		Valence      float64 `json:"valence"`
		Mood         Mood    `json:"mood"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Success == nil {
		return errors.New("analysis result without success field")
	}

	if !*w.Success {
		*r = NewFailure(w.Error)
		return nil
	}
	*r = NewSuccess(w.BPM, w.Key, w.Energy, w.Danceability, w.Valence, w.Mood)
	return nil
}
