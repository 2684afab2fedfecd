package model

import "encoding/json"

// schemaVersion is bumped whenever one of the encoded shapes below
// changes in an incompatible way. JSON blobs inside text columns are
// modeled as typed structs with explicit encode/decode functions and a
// schema version.
const schemaVersion = 1

// FamilyShare is one entry of Client.PreferredFamilies.
type FamilyShare struct {
	Family string  `json:"family"`
	Share  float64 `json:"share"`
}

// PreferredFamilies is the decoded shape of Client.PreferredFamilies.
type PreferredFamilies struct {
	SchemaVersion int           `json:"schema_version"`
	Families      []FamilyShare `json:"families"`
}

// EncodePreferredFamilies serializes families to the JSON text stored on
// Client.PreferredFamilies.
func EncodePreferredFamilies(families []FamilyShare) (string, error) {
	b, err := json.Marshal(PreferredFamilies{SchemaVersion: schemaVersion, Families: families})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodePreferredFamilies parses Client.PreferredFamilies, tolerating an
// empty string (no preference computed yet).
func DecodePreferredFamilies(raw string) (PreferredFamilies, error) {
	if raw == "" {
		return PreferredFamilies{SchemaVersion: schemaVersion}, nil
	}
	var p PreferredFamilies
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return PreferredFamilies{}, err
	}
	return p, nil
}

// AromaAxes holds the seven aroma dimensions used by both
// Product.AromaAxes (0..5 scale) and the per-client aroma profile
// (divided by 5, so 0..1).
type AromaAxes struct {
	Fruit   float64 `json:"fruit"`
	Floral  float64 `json:"floral"`
	Spice   float64 `json:"spice"`
	Mineral float64 `json:"mineral"`
	Acidity float64 `json:"acidity"`
	Body    float64 `json:"body"`
	Tannin  float64 `json:"tannin"`
}

// EncodeAromaAxes serializes axes for storage on Product.AromaAxes.
func EncodeAromaAxes(axes AromaAxes) (string, error) {
	b, err := json.Marshal(axes)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeAromaAxes parses Product.AromaAxes, returning the zero value for
// an empty string.
func DecodeAromaAxes(raw string) (AromaAxes, error) {
	if raw == "" {
		return AromaAxes{}, nil
	}
	var a AromaAxes
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return AromaAxes{}, err
	}
	return a, nil
}

// AromaProfile is the decoded shape of Client.AromaProfile: a weighted
// aroma vector plus a confidence band.
type AromaProfile struct {
	SchemaVersion int       `json:"schema_version"`
	Axes          AromaAxes `json:"axes"`
	Confidence    float64   `json:"confidence"`
	Level         string    `json:"level"` // High|Medium|Low
}

// EncodeAromaProfile serializes a client's aroma profile.
func EncodeAromaProfile(p AromaProfile) (string, error) {
	p.SchemaVersion = schemaVersion
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeAromaProfile parses Client.AromaProfile.
func DecodeAromaProfile(raw string) (AromaProfile, error) {
	if raw == "" {
		return AromaProfile{SchemaVersion: schemaVersion}, nil
	}
	var p AromaProfile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return AromaProfile{}, err
	}
	return p, nil
}

// Reasons is the decoded shape of RecoOutput.ReasonsJSON: the scoring
// term breakdown behind a single suggestion, used for explainability.
type Reasons struct {
	SchemaVersion int                `json:"schema_version"`
	Terms         map[string]float64 `json:"terms"`
}

// EncodeReasons serializes a score term breakdown.
func EncodeReasons(terms map[string]float64) (string, error) {
	b, err := json.Marshal(Reasons{SchemaVersion: schemaVersion, Terms: terms})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// RuleCount is one entry of Summary.TopErrors.
type RuleCount struct {
	RuleCode string `json:"rule_code"`
	Count    int    `json:"count"`
}

// Summary is the decoded shape of RunSummary.SummaryJSON.
type Summary struct {
	SchemaVersion        int              `json:"schema_version"`
	GatingRate           float64          `json:"gating_rate"`
	TotalClients         int              `json:"total_clients"`
	TotalRecommendations int              `json:"total_recommendations"`
	ScenarioCounts       map[string]int   `json:"scenario_counts"`
	TopErrors            []RuleCount      `json:"top_errors"`
	NErrors              int              `json:"n_errors"`
	NWarns               int              `json:"n_warns"`
	AuditScore           int              `json:"audit_score"`
	GateExport           bool             `json:"gate_export"`
}

// EncodeSummary serializes a run summary.
func EncodeSummary(s Summary) (string, error) {
	s.SchemaVersion = schemaVersion
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeSummary parses RunSummary.SummaryJSON.
func DecodeSummary(raw string) (Summary, error) {
	var s Summary
	if raw == "" {
		return s, nil
	}
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Summary{}, err
	}
	return s, nil
}
