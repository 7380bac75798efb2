package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"codearena/internal/common"
	"codearena/internal/domain/model"

	"github.com/gosimple/slug"
)

// MaxPublicSamples caps the sample cases copied into a problem view.
const MaxPublicSamples = 3

type ProblemRepository interface {
	ListProblems(ctx context.Context, difficulty model.Difficulty, status model.ProblemStatus) ([]model.Problem, error)
	FindProblemByID(ctx context.Context, id string) (*model.Problem, error)
	FindProblemBySlug(ctx context.Context, slug string) (*model.Problem, error)
}

type pgProblemRepository struct {
	db *sql.DB
}

func NewPgProblemRepository(db *sql.DB) ProblemRepository {
	return &pgProblemRepository{db: db}
}

const problemColumns = `p.id, p.slug, p.title, p.difficulty, p.status, p.statement,
	COALESCE(p.input_format, ''), COALESCE(p.output_format, ''), p.created_at, p.updated_at`

func scanProblem(row interface{ Scan(...any) error }, p *model.Problem) error {
	return row.Scan(&p.ID, &p.Slug, &p.Title, &p.Difficulty, &p.Status, &p.Statement,
		&p.InputFormat, &p.OutputFormat, &p.CreatedAt, &p.UpdatedAt)
}

func (r *pgProblemRepository) ListProblems(ctx context.Context, difficulty model.Difficulty, status model.ProblemStatus) ([]model.Problem, error) {
	var query strings.Builder
	query.WriteString(`SELECT ` + problemColumns + ` FROM problems p`)

	var conditions []string
	var args []interface{}
	if difficulty != "" {
		args = append(args, difficulty)
		conditions = append(conditions, fmt.Sprintf("p.difficulty = $%d", len(args)))
	}
	if status != "" {
		args = append(args, status)
		conditions = append(conditions, fmt.Sprintf("p.status = $%d", len(args)))
	}
	if len(conditions) > 0 {
		query.WriteString(" WHERE " + strings.Join(conditions, " AND "))
	}
	query.WriteString(" ORDER BY p.created_at ASC, p.id ASC")

	rows, err := r.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("pgProblemRepository.ListProblems query: %w", err)
	}
	defer rows.Close()

	problems := []model.Problem{}
	for rows.Next() {
		var p model.Problem
		if err := scanProblem(rows, &p); err != nil {
			return nil, fmt.Errorf("pgProblemRepository.ListProblems scan: %w", err)
		}
		problems = append(problems, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("pgProblemRepository.ListProblems rows.Err: %w", err)
	}

	for i := range problems {
		samples, err := r.publicSamples(ctx, problems[i].ID)
		if err != nil {
			return nil, err
		}
		problems[i].Samples = samples
	}
	return problems, nil
}

func (r *pgProblemRepository) FindProblemByID(ctx context.Context, id string) (*model.Problem, error) {
	return r.findOne(ctx, "p.id = $1", id)
}

func (r *pgProblemRepository) FindProblemBySlug(ctx context.Context, s string) (*model.Problem, error) {
	return r.findOne(ctx, "p.slug = $1", s)
}

func (r *pgProblemRepository) findOne(ctx context.Context, where string, arg string) (*model.Problem, error) {
	query := `SELECT ` + problemColumns + ` FROM problems p WHERE ` + where
	problem := &model.Problem{}
	err := scanProblem(r.db.QueryRowContext(ctx, query, arg), problem)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgProblemRepository.findOne: %w", err)
	}
	samples, err := r.publicSamples(ctx, problem.ID)
	if err != nil {
		return nil, err
	}
	problem.Samples = samples
	return problem, nil
}

func (r *pgProblemRepository) publicSamples(ctx context.Context, problemID string) ([]model.Sample, error) {
	query := `SELECT input, expected_output FROM problem_samples
              WHERE problem_id = $1 AND is_public = TRUE ORDER BY sort_order ASC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, problemID, MaxPublicSamples)
	if err != nil {
		return nil, fmt.Errorf("pgProblemRepository.publicSamples query: %w", err)
	}
	defer rows.Close()

	var samples []model.Sample
	for rows.Next() {
		var s model.Sample
		if err := rows.Scan(&s.Input, &s.Output); err != nil {
			return nil, fmt.Errorf("pgProblemRepository.publicSamples scan: %w", err)
		}
		samples = append(samples, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("pgProblemRepository.publicSamples rows.Err: %w", err)
	}
	return samples, nil
}

type memoryProblemRepository struct {
	mu       sync.RWMutex
	problems []model.Problem
}

// NewMemoryProblemRepository serves a fixed catalog. Problems without an id or
// slug get one derived from the title.
func NewMemoryProblemRepository(problems ...model.Problem) ProblemRepository {
	now := time.Now().UTC()
	out := make([]model.Problem, 0, len(problems))
	for _, p := range problems {
		if p.Slug == "" {
			p.Slug = slug.Make(p.Title)
		}
		if p.ID == "" {
			p.ID = p.Slug
		}
		if p.Status == "" {
			p.Status = model.StatusPublished
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
			p.UpdatedAt = now
		}
		if len(p.Samples) > MaxPublicSamples {
			p.Samples = p.Samples[:MaxPublicSamples]
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return &memoryProblemRepository{problems: out}
}

func (r *memoryProblemRepository) ListProblems(_ context.Context, difficulty model.Difficulty, status model.ProblemStatus) ([]model.Problem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []model.Problem{}
	for _, p := range r.problems {
		if difficulty != "" && p.Difficulty != difficulty {
			continue
		}
		if status != "" && p.Status != status {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *memoryProblemRepository) FindProblemByID(_ context.Context, id string) (*model.Problem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.problems {
		if p.ID == id {
			cp := p
			return &cp, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *memoryProblemRepository) FindProblemBySlug(_ context.Context, s string) (*model.Problem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.problems {
		if p.Slug == s {
			cp := p
			return &cp, nil
		}
	}
	return nil, common.ErrNotFound
}

// SeedProblems is the built-in catalog used with CATALOG_BACKEND=memory.
func SeedProblems() []model.Problem {
	return []model.Problem{
		{
			Title:        "Sum of Two",
			Difficulty:   model.DifficultyEasy,
			Statement:    "Read two integers a and b and print a+b.",
			InputFormat:  "One line with two integers a and b.",
			OutputFormat: "A single integer.",
			Samples:      []model.Sample{{Input: "1 2\n", Output: "3\n"}, {Input: "-5 5\n", Output: "0\n"}},
		},
		{
			Title:        "Reverse a String",
			Difficulty:   model.DifficultyEasy,
			Statement:    "Print the given line reversed.",
			InputFormat:  "One line of printable ASCII.",
			OutputFormat: "The reversed line.",
			Samples:      []model.Sample{{Input: "arena\n", Output: "anera\n"}},
		},
		{
			Title:        "Count Vowels",
			Difficulty:   model.DifficultyEasy,
			Statement:    "Count the vowels (a, e, i, o, u) in a lower-case word.",
			InputFormat:  "One lower-case word.",
			OutputFormat: "A single integer.",
			Samples:      []model.Sample{{Input: "banana\n", Output: "3\n"}},
		},
		{
			Title:        "Balanced Brackets",
			Difficulty:   model.DifficultyMedium,
			Statement:    "Decide whether a string of ()[]{} is balanced. Print YES or NO.",
			InputFormat:  "One line containing only bracket characters.",
			OutputFormat: "YES or NO.",
			Samples:      []model.Sample{{Input: "([]{})\n", Output: "YES\n"}, {Input: "(]\n", Output: "NO\n"}},
		},
		{
			Title:        "Longest Increasing Run",
			Difficulty:   model.DifficultyMedium,
			Statement:    "Given n integers, print the length of the longest strictly increasing contiguous run.",
			InputFormat:  "n on the first line, then n integers.",
			OutputFormat: "A single integer.",
			Samples:      []model.Sample{{Input: "6\n1 2 2 3 4 1\n", Output: "3\n"}},
		},
		{
			Title:        "Shortest Path on a Grid",
			Difficulty:   model.DifficultyHard,
			Statement:    "Find the length of the shortest 4-directional path from S to T avoiding # cells, or -1.",
			InputFormat:  "h and w, then h rows of w characters.",
			OutputFormat: "A single integer.",
			Samples:      []model.Sample{{Input: "2 3\nS.#\n..T\n", Output: "3\n"}},
		},
		{
			Title:        "Interval Scheduling",
			Difficulty:   model.DifficultyHard,
			Statement:    "Given n intervals, print the maximum number of pairwise non-overlapping intervals.",
			InputFormat:  "n, then n lines with l r.",
			OutputFormat: "A single integer.",
			Samples:      []model.Sample{{Input: "3\n1 3\n2 4\n3 5\n", Output: "2\n"}},
		},
	}
}
