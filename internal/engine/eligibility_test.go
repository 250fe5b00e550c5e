package engine_test

import (
	"testing"

	"homeline/internal/config"
	"homeline/internal/domain"
	"homeline/internal/engine"
)

func openProject() domain.Project {
	return domain.Project{
		ID:       "p1",
		OpenDate: "2025-03-01", CloseDate: "2025-04-30",
		Visible: true,
	}
}

func TestWindowOpenInclusive(t *testing.T) {
	p := openProject()
	cases := []struct {
		today string
		want  bool
	}{
		{"2025-02-28", false},
		{"2025-03-01", true},
		{"2025-03-15", true},
		{"2025-04-30", true},
		{"2025-05-01", false},
	}
	for _, c := range cases {
		if got := engine.WindowOpen(p, c.today); got != c.want {
			t.Errorf("WindowOpen(%s) = %v, want %v", c.today, got, c.want)
		}
	}
}

func TestWindowsOverlap(t *testing.T) {
	cases := []struct {
		a1, a2, b1, b2 string
		want           bool
	}{
		{"2025-03-01", "2025-04-30", "2025-04-15", "2025-05-31", true},
		{"2025-03-01", "2025-04-30", "2025-05-01", "2025-05-31", false},
		// one closing the day the other opens is not a conflict
		{"2025-03-01", "2025-04-30", "2025-04-30", "2025-05-31", false},
		{"2025-05-01", "2025-05-31", "2025-03-01", "2025-04-30", false},
	}
	for _, c := range cases {
		if got := domain.WindowsOverlap(c.a1, c.a2, c.b1, c.b2); got != c.want {
			t.Errorf("WindowsOverlap(%s..%s, %s..%s) = %v, want %v", c.a1, c.a2, c.b1, c.b2, got, c.want)
		}
	}
}

func TestEligibleUnitTypesSnapshot(t *testing.T) {
	cfg := config.Default("default")
	in := engine.EligibilityInput{
		Applicant: domain.Actor{ID: "a", Age: 36, MaritalStatus: domain.Single, Role: domain.RoleApplicant},
		Project:   openProject(),
		Today:     "2025-03-15",
		Units: []domain.UnitCount{
			{UnitType: "two_room", Total: 5, Available: 5},
			{UnitType: "three_room", Total: 5, Available: 5},
		},
	}
	types := engine.EligibleUnitTypes(cfg, in)
	if len(types) != 1 || types[0] != "two_room" {
		t.Fatalf("single types = %v, want [two_room]", types)
	}

	in.Applicant.MaritalStatus = domain.Married
	in.Applicant.Age = 21
	types = engine.EligibleUnitTypes(cfg, in)
	if len(types) != 2 {
		t.Fatalf("married types = %v, want both", types)
	}

	// the active-application rule shuts the whole project
	in.HasActiveApp = true
	if types := engine.EligibleUnitTypes(cfg, in); types != nil {
		t.Fatalf("active app still yields %v", types)
	}
	in.HasActiveApp = false

	// handling the project shuts it too
	in.HandlesProject = true
	if engine.IsEligible(cfg, in, "two_room") {
		t.Fatalf("handling officer still eligible")
	}
	in.HandlesProject = false

	// an overlapping handled window disqualifies the officer
	in.HandledProjects = []domain.Project{{ID: "other", OpenDate: "2025-04-01", CloseDate: "2025-06-30"}}
	if engine.IsEligible(cfg, in, "two_room") {
		t.Fatalf("overlapping assignment still eligible")
	}
	in.HandledProjects = []domain.Project{{ID: "other", OpenDate: "2025-06-01", CloseDate: "2025-06-30"}}
	if !engine.IsEligible(cfg, in, "two_room") {
		t.Fatalf("disjoint assignment should not disqualify")
	}

	// invisible or out-of-window projects yield nothing
	in.Project.Visible = false
	if engine.EligibleUnitTypes(cfg, in) != nil {
		t.Fatalf("invisible project still eligible")
	}
	in.Project.Visible = true
	in.Today = "2025-05-02"
	if engine.EligibleUnitTypes(cfg, in) != nil {
		t.Fatalf("closed window still eligible")
	}
}
