package domain

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func validInput() LogActivityInput {
	return LogActivityInput{
		UserID:               "user-1",
		TaskName:             "Vacuum living room",
		DurationSeconds:      600,
		Intensity:            7,
		CompletionPercentage: 90,
	}
}

func TestLogActivityInputValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*LogActivityInput)
		field  string
	}{
		{name: "valid", mutate: func(*LogActivityInput) {}},
		{name: "bounds inclusive low", mutate: func(in *LogActivityInput) {
			in.DurationSeconds, in.Intensity, in.CompletionPercentage = 60, 1.0, 70
		}},
		{name: "bounds inclusive high", mutate: func(in *LogActivityInput) {
			in.DurationSeconds, in.Intensity, in.CompletionPercentage = 7200, 10.0, 100
		}},
		{name: "fifty rune task name", mutate: func(in *LogActivityInput) { in.TaskName = strings.Repeat("é", 50) }},
		{name: "missing user", mutate: func(in *LogActivityInput) { in.UserID = " " }, field: "user_id"},
		{name: "blank task", mutate: func(in *LogActivityInput) { in.TaskName = "   " }, field: "task_name"},
		{name: "long task", mutate: func(in *LogActivityInput) { in.TaskName = strings.Repeat("a", 51) }, field: "task_name"},
		{name: "short duration", mutate: func(in *LogActivityInput) { in.DurationSeconds = 59 }, field: "duration_seconds"},
		{name: "long duration", mutate: func(in *LogActivityInput) { in.DurationSeconds = 7201 }, field: "duration_seconds"},
		{name: "low intensity", mutate: func(in *LogActivityInput) { in.Intensity = 0.9 }, field: "intensity"},
		{name: "high intensity", mutate: func(in *LogActivityInput) { in.Intensity = 10.01 }, field: "intensity"},
		{name: "nan intensity", mutate: func(in *LogActivityInput) { in.Intensity = math.NaN() }, field: "intensity"},
		{name: "low completion", mutate: func(in *LogActivityInput) { in.CompletionPercentage = 69 }, field: "completion_percentage"},
		{name: "high completion", mutate: func(in *LogActivityInput) { in.CompletionPercentage = 101 }, field: "completion_percentage"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			err := in.Validate()
			if tc.field == "" {
				if err != nil {
					t.Fatalf("expected no error got %v", err)
				}
				return
			}
			var validation *ValidationError
			if !errors.As(err, &validation) {
				t.Fatalf("expected ValidationError got %v", err)
			}
			if validation.Field != tc.field {
				t.Fatalf("expected field %s got %s", tc.field, validation.Field)
			}
		})
	}
}

func TestWalletDebitNeverGoesNegative(t *testing.T) {
	balance, err := Debit(499, StreakFreezeCost)
	if !errors.Is(err, ErrInsufficientPoints) {
		t.Fatalf("expected ErrInsufficientPoints got %v", err)
	}
	if balance != 499 {
		t.Fatalf("balance changed on failed debit: %d", balance)
	}

	balance, err = Debit(500, StreakFreezeCost)
	if err != nil || balance != 0 {
		t.Fatalf("expected 0, nil got %d, %v", balance, err)
	}

	if _, err := Credit(10, -1); err == nil {
		t.Fatal("expected negative credit to fail")
	}
}
