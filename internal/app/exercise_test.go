package app

import (
	"testing"
)

func TestBuildExerciseValidation(t *testing.T) {
	cases := []struct {
		name    string
		exType  string
		quest   string
		options []string
		blanks  []string
		answers []string
		wantErr bool
	}{
		{"valid choice", "choice", "Pick one", []string{"a", "b"}, nil, []string{"a"}, false},
		{"choice needs options", "choice", "Pick one", nil, nil, []string{"a"}, true},
		{"choice needs two options", "choice", "Pick one", []string{"a"}, nil, []string{"a"}, true},
		{"choice needs answers", "choice", "Pick one", []string{"a", "b"}, nil, nil, true},
		{"choice answer must be an option", "choice", "Pick one", []string{"a", "b"}, nil, []string{"c"}, true},
		{"valid fill", "fill_blank", "Go maps are [1] by default", nil, []string{"1"}, []string{"nil"}, false},
		{"fill needs blanks", "fill_blank", "no blank here", nil, nil, []string{"nil"}, true},
		{"fill answers must match blanks", "fill_blank", "[1] and [2]", nil, []string{"1", "2"}, []string{"one"}, true},
		{"valid multi fill", "multi_fill", "[1] and [2]", nil, []string{"1", "2"}, []string{"one", "two"}, false},
		{"valid match", "match", "Match them", []string{"a=1", "b=2"}, nil, []string{"a=1", "b=2"}, false},
		{"match needs options", "match", "Match them", nil, nil, []string{"a=1"}, true},
		{"valid short answer", "short_answer", "Explain interfaces", nil, nil, nil, false},
		{"empty question", "choice", " ", []string{"a", "b"}, nil, []string{"a"}, true},
		{"unknown type", "essay", "Write one", nil, nil, nil, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ex, terr := BuildExercise(tc.exType, tc.quest, tc.options, tc.blanks, tc.answers, "")
			if tc.wantErr {
				if terr == nil {
					t.Fatal("expected a validation error")
				}
				if terr.Hint == "" {
					t.Fatal("validation errors must carry a hint")
				}
				return
			}
			if terr != nil {
				t.Fatalf("unexpected error: %v (%s)", terr, terr.Hint)
			}
			if ex.ID == "" {
				t.Fatal("exercise has no id")
			}
		})
	}
}

func TestExerciseGrading(t *testing.T) {
	cases := []struct {
		name    string
		ex      Exercise
		answers []string
		want    bool
	}{
		{
			"choice correct",
			Exercise{Type: "choice", CorrectAnswers: []string{"const"}},
			[]string{"const"}, true,
		},
		{
			"choice case-insensitive",
			Exercise{Type: "choice", CorrectAnswers: []string{"Const"}},
			[]string{" const "}, true,
		},
		{
			"choice wrong",
			Exercise{Type: "choice", CorrectAnswers: []string{"const"}},
			[]string{"var"}, false,
		},
		{
			"fill order matters",
			Exercise{Type: "fill_blank", CorrectAnswers: []string{"one", "two"}},
			[]string{"two", "one"}, false,
		},
		{
			"fill correct order",
			Exercise{Type: "multi_fill", CorrectAnswers: []string{"one", "two"}},
			[]string{"one", "two"}, true,
		},
		{
			"match order ignored",
			Exercise{Type: "match", CorrectAnswers: []string{"a=1", "b=2"}},
			[]string{"b=2", "a=1"}, true,
		},
		{
			"missing answers",
			Exercise{Type: "choice", CorrectAnswers: []string{"a", "b"}},
			[]string{"a"}, false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := tc.ex.Grade(tc.answers)
			if err != nil {
				t.Fatalf("Grade: %v", err)
			}
			if result.Correct != tc.want {
				t.Fatalf("Correct = %v, want %v", result.Correct, tc.want)
			}
		})
	}
}

func TestShortAnswerNotGradedLocally(t *testing.T) {
	ex := Exercise{Type: "short_answer"}
	if _, err := ex.Grade([]string{"anything"}); err == nil {
		t.Fatal("short_answer grading should be refused")
	}
}
