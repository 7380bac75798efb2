package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"codearena/internal/common"
	"codearena/internal/domain/model"
	"codearena/internal/domain/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Judge evaluates code for a problem. Implementations return an error only
// when no verdict could be produced; a failing submission is a verdict.
type Judge interface {
	Judge(ctx context.Context, req JudgeRequest) (*model.Verdict, error)
}

type JudgeRequest struct {
	ProblemID string         `json:"problemId"`
	Language  model.Language `json:"language"`
	Code      string         `json:"code"`
}

// MockAcceptedCode is the submission the mock judge accepts.
const MockAcceptedCode = "CORRECT"

type MockJudge struct{}

func (MockJudge) Judge(_ context.Context, req JudgeRequest) (*model.Verdict, error) {
	passed := strings.EqualFold(strings.TrimSpace(req.Code), MockAcceptedCode)
	v := &model.Verdict{
		ProblemID:  req.ProblemID,
		Language:   req.Language,
		Passed:     passed,
		TotalCount: 1,
		Results:    []model.TestResult{{Index: 0, Passed: passed}},
	}
	if passed {
		v.PassedCount = 1
	} else {
		v.ErrorMessage = "wrong answer: 0/1"
		v.Results[0].Error = "wrong answer"
	}
	return v, nil
}

// HTTPJudge forwards submissions to an external executor service.
type HTTPJudge struct {
	url       string
	runTimeMs int
	client    *http.Client
}

func NewHTTPJudge(url string, timeout, runTimeout time.Duration) *HTTPJudge {
	return &HTTPJudge{
		url:       url,
		runTimeMs: int(runTimeout / time.Millisecond),
		client:    &http.Client{Timeout: timeout},
	}
}

func (j *HTTPJudge) Judge(ctx context.Context, req JudgeRequest) (*model.Verdict, error) {
	execReq := model.ExecutorRequest{
		RequestID:    uuid.NewString(),
		ProblemID:    req.ProblemID,
		LanguageSlug: req.Language.JudgeSlug(),
		Code:         req.Code,
		TimeoutMs:    j.runTimeMs,
	}
	body, err := json.Marshal(execReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal executor request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, j.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build executor request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := j.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("executor unreachable: %v: %w", err, common.ErrServiceUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Warn().Int("status", resp.StatusCode).Str("request_id", execReq.RequestID).
			Str("body", string(snippet)).Msg("executor returned non-200")
		return nil, fmt.Errorf("executor returned %d: %w", resp.StatusCode, common.ErrServiceUnavailable)
	}

	var execResp model.ExecutorResponse
	if err := json.NewDecoder(resp.Body).Decode(&execResp); err != nil {
		return nil, fmt.Errorf("failed to decode executor response: %v: %w", err, common.ErrServiceUnavailable)
	}
	return verdictFromExecutor(req, &execResp), nil
}

func verdictFromExecutor(req JudgeRequest, resp *model.ExecutorResponse) *model.Verdict {
	v := &model.Verdict{
		ProblemID:  req.ProblemID,
		Language:   req.Language,
		Passed:     resp.OverallStatus == model.ExecutorStatusAccepted,
		TotalCount: len(resp.TestCaseResults),
	}
	var firstFailure string
	for _, tc := range resp.TestCaseResults {
		passed := tc.Status == model.ExecutorStatusAccepted
		if passed {
			v.PassedCount++
		} else if firstFailure == "" {
			firstFailure = tc.Status
			if tc.ErrorOutput != "" && !tc.Hidden {
				firstFailure += ": " + tc.ErrorOutput
			}
		}
		v.Results = append(v.Results, model.TestResult{
			Index:     tc.Index,
			Passed:    passed,
			Hidden:    tc.Hidden,
			RuntimeMs: tc.ExecutionTimeMs,
			Error:     tc.ErrorOutput,
		})
	}
	if v.Passed {
		return v
	}
	switch {
	case resp.CompilationOutput != "":
		v.ErrorMessage = "compilation error: " + resp.CompilationOutput
	case resp.ErrorOutput != "":
		v.ErrorMessage = resp.ErrorOutput
	case firstFailure != "":
		v.ErrorMessage = fmt.Sprintf("%s (%d/%d)", firstFailure, v.PassedCount, v.TotalCount)
	default:
		v.ErrorMessage = resp.OverallStatus
	}
	return v
}

// JudgeService backs the standalone judge endpoint used by bot matches.
type JudgeService struct {
	judge       Judge
	problemRepo repository.ProblemRepository
}

func NewJudgeService(judge Judge, problemRepo repository.ProblemRepository) *JudgeService {
	return &JudgeService{judge: judge, problemRepo: problemRepo}
}

func (s *JudgeService) Judge(ctx context.Context, req JudgeRequest) (*model.Verdict, error) {
	req.ProblemID = strings.TrimSpace(req.ProblemID)
	if req.ProblemID == "" {
		return nil, common.Errorf("problemId is required: %w", common.ErrValidation)
	}
	if strings.TrimSpace(req.Code) == "" {
		return nil, common.Errorf("code is required: %w", common.ErrValidation)
	}
	if req.Language == "" {
		req.Language = model.LanguageGo
	}
	lang, ok := model.ParseLanguage(string(req.Language))
	if !ok {
		return nil, common.Errorf("unsupported language %q: %w", req.Language, common.ErrValidation)
	}
	req.Language = lang

	if _, err := s.problemRepo.FindProblemByID(ctx, req.ProblemID); err != nil {
		return nil, fmt.Errorf("problem %s: %w", req.ProblemID, err)
	}

	verdict, err := s.judge.Judge(ctx, req)
	if err != nil {
		log.Error().Err(err).Str("problem_id", req.ProblemID).Msg("judge failed")
		return nil, err
	}
	return verdict, nil
}
