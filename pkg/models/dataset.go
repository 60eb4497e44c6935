package models

// ColumnStats mirrors a describe() row for one numeric column
type ColumnStats struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Min   float64 `json:"min"`
	P25   float64 `json:"25%"`
	P50   float64 `json:"50%"`
	P75   float64 `json:"75%"`
	Max   float64 `json:"max"`
}

// DatasetValidation reports whether a dataset is usable for training or prediction
type DatasetValidation struct {
	HasAllFeatures     bool     `json:"has_all_features"`
	HasTarget          bool     `json:"has_target"`
	MissingFeatures    []string `json:"missing_features"`
	ReadyForTraining   bool     `json:"ready_for_training"`
	ReadyForPrediction bool     `json:"ready_for_prediction"`
}

// DatasetAnalysis is the result of inspecting an uploaded CSV
type DatasetAnalysis struct {
	Rows          int                     `json:"rows"`
	Columns       int                     `json:"columns"`
	ColumnNames   []string                `json:"column_names"`
	ResolvedNames map[string]string       `json:"resolved_columns,omitempty"`
	DTypes        map[string]string       `json:"dtypes"`
	MissingValues map[string]int          `json:"missing_values"`
	Statistics    map[string]*ColumnStats `json:"statistics"`
	Validation    DatasetValidation       `json:"validation"`
}
