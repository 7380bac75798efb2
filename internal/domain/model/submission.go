package model

import "time"

// LastSubmit is the latest verdict a user received for one problem.
type LastSubmit struct {
	Correct      bool      `json:"correct"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	At           time.Time `json:"at"`
}

type TestResult struct {
	Index     int    `json:"index"`
	Passed    bool   `json:"passed"`
	Hidden    bool   `json:"hidden"`
	RuntimeMs int    `json:"runtimeMs"`
	Error     string `json:"error,omitempty"`
}

// Verdict is the judge's answer. The engine only reads Passed and ErrorMessage;
// the rest is carried for display.
type Verdict struct {
	ProblemID    string       `json:"problemId"`
	Language     Language     `json:"language"`
	Passed       bool         `json:"passed"`
	PassedCount  int          `json:"passedCount"`
	TotalCount   int          `json:"totalCount"`
	ErrorMessage string       `json:"errorMessage,omitempty"`
	Results      []TestResult `json:"results,omitempty"`
}
