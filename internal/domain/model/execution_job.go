package model

// ExecutorRequest is the body sent to the external judge service.
type ExecutorRequest struct {
	RequestID    string `json:"request_id"`
	ProblemID    string `json:"problem_id"`
	LanguageSlug string `json:"language_slug"`
	Code         string `json:"code"`
	TimeoutMs    int    `json:"timeout_ms"`
}

// ExecutorTestCaseResult mirrors one entry of the executor's per-test detail.
type ExecutorTestCaseResult struct {
	Index           int    `json:"index"`
	Status          string `json:"status"`
	Hidden          bool   `json:"hidden"`
	ExecutionTimeMs int    `json:"execution_time_ms"`
	ErrorOutput     string `json:"error_output,omitempty"`
}

type ExecutorResponse struct {
	RequestID         string                   `json:"request_id"`
	OverallStatus     string                   `json:"overall_status"`
	CompilationOutput string                   `json:"compilation_output,omitempty"`
	ErrorOutput       string                   `json:"error_output,omitempty"`
	TestCaseResults   []ExecutorTestCaseResult `json:"test_case_results,omitempty"`
}

const ExecutorStatusAccepted = "Accepted"
