package models

// SwingScores holds the named 0-100 scores returned by the analysis service.
type SwingScores struct {
	Overall  float64 `json:"overall_score"`
	Form     float64 `json:"form_score"`
	Tempo    float64 `json:"tempo_score"`
	Power    float64 `json:"power_score"`
	Accuracy float64 `json:"accuracy_score"`
}

// Recommendations groups the coaching output attached to an analysis.
type Recommendations struct {
	Strengths        []string `json:"strengths"`
	ImprovementAreas []string `json:"improvement_areas"`
	SpecificTips     []string `json:"specific_tips"`
	Drills           []string `json:"drills,omitempty"`
	Priority         string   `json:"priority,omitempty"` // "low", "medium", "high"
}

// AnalysisResult is the payload returned for a successfully analyzed swing.
// The pipeline stores and forwards it without interpreting its contents.
type AnalysisResult struct {
	Scores          SwingScores        `json:"scores"`
	Metrics         map[string]float64 `json:"metrics,omitempty"` // joint angles, club speeds, etc.
	Recommendations Recommendations    `json:"recommendations"`
	KeyInsights     []string           `json:"key_insights,omitempty"`
	Confidence      float64            `json:"confidence,omitempty"`
	ProcessingTime  float64            `json:"processing_time,omitempty"` // seconds
	ModelVersion    string             `json:"model_version,omitempty"`
	ThumbnailURL    string             `json:"thumbnail_url,omitempty"`
}

// AnalysisEnvelope is the wire format the analysis service wraps every
// response in. Success=false with HTTP 200 is a valid failure mode; the
// embedded Error string is the authoritative message in that case.
type AnalysisEnvelope struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message,omitempty"`
	Data      *AnalysisResult `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// ServiceHealth is the analyzer's GET /health response.
type ServiceHealth struct {
	Status  string `json:"status"` // "healthy" means up
	Service string `json:"service,omitempty"`
	Version string `json:"version,omitempty"`
}

// Up reports whether the analyzer considers itself healthy.
func (h *ServiceHealth) Up() bool {
	return h != nil && h.Status == "healthy"
}

// ModelStatus describes the analyzer's capability flags (GET /models).
// Not consumed by the pipeline, only proxied to clients.
type ModelStatus struct {
	OverallHealth string                 `json:"overall_health,omitempty"`
	Version       string                 `json:"version,omitempty"`
	Models        map[string]interface{} `json:"models,omitempty"`
}
