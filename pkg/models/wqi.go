package models

// WQIClass is the ordinal quality bucket of a water quality index value
type WQIClass string

const (
	WQIClassExcellent  WQIClass = "Excellent"
	WQIClassGood       WQIClass = "Good"
	WQIClassPoor       WQIClass = "Poor"
	WQIClassVeryPoor   WQIClass = "Very Poor"
	WQIClassUnsuitable WQIClass = "Unsuitable for Drinking"
)

// PredictionResult is the outcome of running one input row through a model
type PredictionResult struct {
	Row int `json:"row"`
	// Columns holds the identifier columns that are not model inputs
	Columns      map[string]string `json:"columns,omitempty"`
	PredictedWQI float64           `json:"predicted_WQI"`
	Class        WQIClass          `json:"predicted_WQI_Class,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// Failed reports whether the row could not be scored
func (r *PredictionResult) Failed() bool {
	return r.Error != ""
}

// PredictionStats summarises the predicted WQI of the successfully scored rows
type PredictionStats struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Std    float64 `json:"std"`
}
