package scorer

// BiomarkerThreshold is a biomarker's grade threshold table for one
// adverse event. Evidence-based thresholds per Teachey et al. 2016 and
// Lee et al. 2019.
type BiomarkerThreshold struct {
	BiomarkerID           string
	Unit                  string
	NormalUpper           float64
	Grade1Threshold       float64
	Grade2Threshold       float64
	Grade3Threshold       float64
	RateOfChangeCritical  float64
}

var crsThresholds = []BiomarkerThreshold{
	{"CYTOKINE:IL6", "pg/mL", 7.0, 50.0, 500.0, 5000.0, 100.0},
	{"CYTOKINE:IFN_GAMMA", "pg/mL", 15.6, 100.0, 1000.0, 10000.0, 200.0},
	{"CYTOKINE:TNF_ALPHA", "pg/mL", 8.1, 25.0, 100.0, 1000.0, 50.0},
	{"BIOMARKER:CRP", "mg/L", 10.0, 50.0, 150.0, 300.0, 20.0},
	{"BIOMARKER:FERRITIN", "ng/mL", 300.0, 1000.0, 5000.0, 10000.0, 500.0},
}

var icansThresholds = []BiomarkerThreshold{
	{"CYTOKINE:IL6", "pg/mL", 7.0, 100.0, 1000.0, 10000.0, 200.0},
	{"PROTEIN:ANG2", "pg/mL", 2000.0, 5000.0, 10000.0, 20000.0, 1000.0},
	{"PROTEIN:VWF", "%", 150.0, 250.0, 400.0, 600.0, 30.0},
}

var hlhThresholds = []BiomarkerThreshold{
	{"BIOMARKER:FERRITIN", "ng/mL", 300.0, 3000.0, 10000.0, 50000.0, 1000.0},
	{"BIOMARKER:D_DIMER", "mg/L", 0.5, 2.0, 5.0, 10.0, 1.0},
	{"BIOMARKER:FIBRINOGEN", "mg/dL", 200.0, 150.0, 100.0, 50.0, -20.0},
	{"CYTOKINE:IL18", "pg/mL", 500.0, 2000.0, 5000.0, 15000.0, 500.0},
	{"BIOMARKER:SCD25", "U/mL", 1000.0, 5000.0, 10000.0, 20000.0, 2000.0},
}

var thresholdsByAE = map[string][]BiomarkerThreshold{
	"CRS":   crsThresholds,
	"ICANS": icansThresholds,
	"HLH":   hlhThresholds,
}

// ThresholdsFor returns the biomarker threshold table for an adverse
// event, or nil if none is defined.
func ThresholdsFor(adverseEvent string) []BiomarkerThreshold {
	return thresholdsByAE[adverseEvent]
}

// peakWindows holds the [start, end] hours-since-infusion peak-risk window
// (both ends inclusive) for each adverse event's temporal risk curve.
var peakWindows = map[string][2]float64{
	"CRS":   {24.0, 168.0},
	"ICANS": {72.0, 240.0},
	"HLH":   {72.0, 336.0},
}
