package model

import "strings"

type Language string

const (
	LanguageGo     Language = "GO"
	LanguagePython Language = "PY"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHard   Difficulty = "HARD"
)

func (l Language) Valid() bool {
	return l == LanguageGo || l == LanguagePython
}

// JudgeSlug is the lower-case form the executor expects ("go", "py").
func (l Language) JudgeSlug() string {
	return strings.ToLower(string(l))
}

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// ParseDifficulty normalizes user input such as "hard" or " Easy ".
func ParseDifficulty(s string) (Difficulty, bool) {
	d := Difficulty(strings.ToUpper(strings.TrimSpace(s)))
	return d, d.Valid()
}

// ParseLanguage accepts "go", "py" and "python" in any case.
func ParseLanguage(s string) (Language, bool) {
	v := strings.ToUpper(strings.TrimSpace(s))
	if v == "PYTHON" {
		v = string(LanguagePython)
	}
	l := Language(v)
	return l, l.Valid()
}
