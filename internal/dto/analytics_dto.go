package dto

import "time"

// PerformanceMetrics summarizes graded work for an assignment or course.
type PerformanceMetrics struct {
	TotalSubmissions int     `json:"total_submissions"`
	Submitted        int     `json:"submitted"`
	Graded           int     `json:"graded"`
	CompletionRate   float64 `json:"completion_rate"`
	MeanScore        float64 `json:"mean_score"`
	MeanPercentage   float64 `json:"mean_percentage"`
	StdDev           float64 `json:"std_dev"`
	PassingRate      float64 `json:"passing_rate"`
	Highest          float64 `json:"highest"`
	Lowest           float64 `json:"lowest"`
}

// LateStats summarizes late penalties.
type LateStats struct {
	LateCount   int     `json:"late_count"`
	WaivedCount int     `json:"waived_count"`
	MeanPenalty float64 `json:"mean_penalty"`
}

// TimelinePoint is the number of grading events on one UTC day.
type TimelinePoint struct {
	Date   string `json:"date"`
	Graded int    `json:"graded"`
}

// QuestionAnalytics is the success rate of one quiz question.
type QuestionAnalytics struct {
	Index       int     `json:"index"`
	Type        string  `json:"type"`
	Correct     int     `json:"correct"`
	Answered    int     `json:"answered"`
	SuccessRate float64 `json:"success_rate"`
	Difficulty  string  `json:"difficulty"`
}

// AnalyticsSnapshot is the derived statistics of one assignment.
type AnalyticsSnapshot struct {
	AssignmentID uint                `json:"assignment_id"`
	Title        string              `json:"title"`
	MaxScore     float64             `json:"max_score"`
	Distribution map[string]int      `json:"distribution"`
	Performance  PerformanceMetrics  `json:"performance"`
	Late         LateStats           `json:"late"`
	Timeline     []TimelinePoint     `json:"timeline"`
	Questions    []QuestionAnalytics `json:"questions,omitempty"`
	GeneratedAt  time.Time           `json:"generated_at"`
}

// AssignmentSummary is the per-assignment line of course analytics.
type AssignmentSummary struct {
	AssignmentID   uint    `json:"assignment_id"`
	Title          string  `json:"title"`
	Graded         int     `json:"graded"`
	CompletionRate float64 `json:"completion_rate"`
	MeanPercentage float64 `json:"mean_percentage"`
	PassingRate    float64 `json:"passing_rate"`
}

// CourseAnalyticsSnapshot aggregates every assignment of a course.
type CourseAnalyticsSnapshot struct {
	CourseID     uint                `json:"course_id"`
	Assignments  []AssignmentSummary `json:"assignments"`
	Distribution map[string]int      `json:"distribution"`
	Performance  PerformanceMetrics  `json:"performance"`
	Late         LateStats           `json:"late"`
	Timeline     []TimelinePoint     `json:"timeline"`
	GeneratedAt  time.Time           `json:"generated_at"`
}
