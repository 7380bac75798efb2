package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"codearena/internal/common"
	"codearena/internal/common/security"
	"codearena/internal/domain/model"
	"codearena/internal/domain/repository"
)

func TestMockJudge(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"CORRECT", true},
		{"  correct\n", true},
		{"func main() {}", false},
	}
	for _, tt := range tests {
		v, err := MockJudge{}.Judge(context.Background(), JudgeRequest{ProblemID: "p", Language: model.LanguageGo, Code: tt.code})
		if err != nil {
			t.Fatalf("judge %q: %v", tt.code, err)
		}
		if v.Passed != tt.want {
			t.Fatalf("judge %q: passed = %v", tt.code, v.Passed)
		}
		if !v.Passed && v.ErrorMessage != "wrong answer: 0/1" {
			t.Fatalf("error message = %q", v.ErrorMessage)
		}
	}
}

func TestHTTPJudge(t *testing.T) {
	var got model.ExecutorRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(model.ExecutorResponse{
			RequestID:     got.RequestID,
			OverallStatus: "Wrong Answer",
			TestCaseResults: []model.ExecutorTestCaseResult{
				{Index: 0, Status: model.ExecutorStatusAccepted, ExecutionTimeMs: 3},
				{Index: 1, Status: "Wrong Answer", ErrorOutput: "expected 4", ExecutionTimeMs: 2},
			},
		})
	}))
	defer srv.Close()

	j := NewHTTPJudge(srv.URL, time.Second, 2*time.Second)
	v, err := j.Judge(context.Background(), JudgeRequest{ProblemID: "sum-of-two", Language: model.LanguagePython, Code: "print(4)"})
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if got.LanguageSlug != "py" || got.TimeoutMs != 2000 || got.ProblemID != "sum-of-two" || got.RequestID == "" {
		t.Fatalf("executor request = %+v", got)
	}
	if v.Passed || v.PassedCount != 1 || v.TotalCount != 2 {
		t.Fatalf("verdict = %+v", v)
	}
	if v.ErrorMessage != "Wrong Answer: expected 4 (1/2)" {
		t.Fatalf("error message = %q", v.ErrorMessage)
	}
}

func TestHTTPJudgeUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPJudge(srv.URL, time.Second, time.Second).Judge(context.Background(), JudgeRequest{ProblemID: "p", Code: "x"})
	if !errors.Is(err, common.ErrServiceUnavailable) {
		t.Fatalf("got %v, want ErrServiceUnavailable", err)
	}

	srv.Close()
	_, err = NewHTTPJudge(srv.URL, time.Second, time.Second).Judge(context.Background(), JudgeRequest{ProblemID: "p", Code: "x"})
	if !errors.Is(err, common.ErrServiceUnavailable) {
		t.Fatalf("closed server: got %v", err)
	}
}

func TestVerdictFromExecutorCompilationError(t *testing.T) {
	v := verdictFromExecutor(JudgeRequest{ProblemID: "p"}, &model.ExecutorResponse{
		OverallStatus:     "Compilation Error",
		CompilationOutput: "undefined: x",
	})
	if v.Passed || v.ErrorMessage != "compilation error: undefined: x" {
		t.Fatalf("verdict = %+v", v)
	}
}

func TestJudgeService(t *testing.T) {
	svc := NewJudgeService(MockJudge{}, repository.NewMemoryProblemRepository(repository.SeedProblems()...))
	ctx := context.Background()

	v, err := svc.Judge(ctx, JudgeRequest{ProblemID: "sum-of-two", Code: "CORRECT"})
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if !v.Passed || v.Language != model.LanguageGo {
		t.Fatalf("verdict = %+v", v)
	}

	tests := []struct {
		name string
		req  JudgeRequest
		want error
	}{
		{"missing problem id", JudgeRequest{Code: "x"}, common.ErrValidation},
		{"missing code", JudgeRequest{ProblemID: "sum-of-two"}, common.ErrValidation},
		{"bad language", JudgeRequest{ProblemID: "sum-of-two", Code: "x", Language: "COBOL"}, common.ErrValidation},
		{"unknown problem", JudgeRequest{ProblemID: "nope", Code: "x"}, common.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Judge(ctx, tt.req); !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestIssueDevToken(t *testing.T) {
	security.InitJWT([]byte("test-secret"))
	ctx := context.Background()

	if _, err := NewAuthService(false, time.Hour).IssueDevToken(ctx, TokenRequest{DisplayName: "alice"}); !errors.Is(err, common.ErrForbidden) {
		t.Fatalf("disabled: got %v", err)
	}

	svc := NewAuthService(true, time.Hour)
	if _, err := svc.IssueDevToken(ctx, TokenRequest{DisplayName: "  "}); !errors.Is(err, common.ErrValidation) {
		t.Fatalf("empty name: got %v", err)
	}

	resp, err := svc.IssueDevToken(ctx, TokenRequest{DisplayName: " alice "})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if resp.User.UserID == "" || resp.User.DisplayName != "alice" || resp.Token == "" {
		t.Fatalf("response = %+v", resp)
	}

	resp, _ = svc.IssueDevToken(ctx, TokenRequest{UserID: "u-1", DisplayName: "bob"})
	if resp.User.UserID != "u-1" {
		t.Fatalf("user id = %q", resp.User.UserID)
	}
}
