package models

// Canonical measurement names. These are the column names a dataset must
// resolve to before it can be used for training or inference.
const (
	ColumnTemp          = "Temp"
	ColumnPH            = "pH"
	ColumnConductivity  = "Conductivity"
	ColumnNitrate       = "Nitrate"
	ColumnFecalColiform = "Fecal_Coliform"
	ColumnTotalColiform = "Total_Coliform"
	ColumnTDS           = "TDS"
	ColumnFluoride      = "Fluoride"

	// ColumnWQI is the regression target
	ColumnWQI = "WQI"
)

// CanonicalColumns lists the canonical measurement names in their fixed order
var CanonicalColumns = []string{
	ColumnTemp,
	ColumnPH,
	ColumnConductivity,
	ColumnNitrate,
	ColumnFecalColiform,
	ColumnTotalColiform,
	ColumnTDS,
	ColumnFluoride,
}

// RawSample maps a column name to the textual cell value of one CSV row
type RawSample map[string]string

// CanonicalSample holds the eight measurements of a single water sample
type CanonicalSample struct {
	Temp          float64 `json:"Temp"`
	PH            float64 `json:"pH"`
	Conductivity  float64 `json:"Conductivity"`
	Nitrate       float64 `json:"Nitrate"`
	FecalColiform float64 `json:"Fecal_Coliform"`
	TotalColiform float64 `json:"Total_Coliform"`
	TDS           float64 `json:"TDS"`
	Fluoride      float64 `json:"Fluoride"`
}

// Set assigns a measurement by canonical column name. It reports false for unknown names.
func (s *CanonicalSample) Set(column string, value float64) bool {
	switch column {
	case ColumnTemp:
		s.Temp = value
	case ColumnPH:
		s.PH = value
	case ColumnConductivity:
		s.Conductivity = value
	case ColumnNitrate:
		s.Nitrate = value
	case ColumnFecalColiform:
		s.FecalColiform = value
	case ColumnTotalColiform:
		s.TotalColiform = value
	case ColumnTDS:
		s.TDS = value
	case ColumnFluoride:
		s.Fluoride = value
	default:
		return false
	}
	return true
}

// Values returns the measurements in CanonicalColumns order
func (s CanonicalSample) Values() []float64 {
	return []float64{
		s.Temp,
		s.PH,
		s.Conductivity,
		s.Nitrate,
		s.FecalColiform,
		s.TotalColiform,
		s.TDS,
		s.Fluoride,
	}
}

// FeatureVector is a canonical sample extended with its derived features
type FeatureVector struct {
	CanonicalSample

	PHTempInteraction    float64 `json:"pH_Temp_interaction"`
	TDSConductivityRatio float64 `json:"TDS_Conductivity_ratio"`
	ColiformRatio        float64 `json:"Coliform_ratio"`
	FecalColiformLog     float64 `json:"Fecal_Coliform_log"`
	TotalColiformLog     float64 `json:"Total_Coliform_log"`
	TDSLog               float64 `json:"TDS_log"`
	PHSquared            float64 `json:"pH_squared"`
	TempSquared          float64 `json:"Temp_squared"`
}

// TrainingExample pairs a feature vector with its observed WQI
type TrainingExample struct {
	Features FeatureVector `json:"features"`
	WQI      float64       `json:"WQI"`
}

// RowError describes why a single dataset row was rejected
type RowError struct {
	Row     int    `json:"row"`
	Line    int    `json:"line,omitempty"`
	Column  string `json:"column,omitempty"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}
