package testutil

import (
	"context"
	"sync/atomic"

	"github.com/swingai/backend/internal/models"
)

// MockAnalyzer implements upload.Analyzer with scriptable behavior.
type MockAnalyzer struct {
	// AnalyzeVideoFunc and AnalyzeURLFunc override the default success
	// response when set.
	AnalyzeVideoFunc func(ctx context.Context, filePath, fileName string) (*models.AnalysisResult, error)
	AnalyzeURLFunc   func(ctx context.Context, videoURL string) (*models.AnalysisResult, error)

	calls int64
}

// DefaultResult is the canned payload returned when no override is set.
func DefaultResult() *models.AnalysisResult {
	return &models.AnalysisResult{
		Scores: models.SwingScores{
			Overall:  85,
			Form:     82,
			Tempo:    88,
			Power:    80,
			Accuracy: 84,
		},
		Metrics: map[string]float64{
			"hip_rotation_deg": 42.5,
			"club_speed_mph":   96.3,
		},
		Recommendations: models.Recommendations{
			Strengths:        []string{"Consistent tempo through the downswing"},
			ImprovementAreas: []string{"Weight transfer at impact"},
			SpecificTips:     []string{"Keep the lead arm extended through the backswing"},
			Priority:         "medium",
		},
		Confidence:   91.5,
		ModelVersion: "1.0.0",
	}
}

func (m *MockAnalyzer) AnalyzeVideo(ctx context.Context, filePath, fileName string) (*models.AnalysisResult, error) {
	atomic.AddInt64(&m.calls, 1)
	if m.AnalyzeVideoFunc != nil {
		return m.AnalyzeVideoFunc(ctx, filePath, fileName)
	}
	return DefaultResult(), nil
}

func (m *MockAnalyzer) AnalyzeURL(ctx context.Context, videoURL string) (*models.AnalysisResult, error) {
	atomic.AddInt64(&m.calls, 1)
	if m.AnalyzeURLFunc != nil {
		return m.AnalyzeURLFunc(ctx, videoURL)
	}
	return DefaultResult(), nil
}

// Calls returns the number of analysis calls issued.
func (m *MockAnalyzer) Calls() int {
	return int(atomic.LoadInt64(&m.calls))
}
