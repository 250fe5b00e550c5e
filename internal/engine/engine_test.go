package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"homeline/internal/config"
	"homeline/internal/db"
	"homeline/internal/domain"
	"homeline/internal/engine"
	"homeline/internal/ledger"
	"homeline/internal/migrate"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("default")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func seedActor(t *testing.T, env testEnv, id, role, marital string, age int) {
	t.Helper()
	_, err := env.Engine.UpsertActor(env.Ctx, engine.ActorUpsertOptions{
		ID: id, Name: id, Age: age, MaritalStatus: marital, Role: role, ActorID: id,
	})
	if err != nil {
		t.Fatalf("seed actor %s: %v", id, err)
	}
}

// seedOpenProject creates a visible project whose window contains the
// fixed test clock (2025-03-15).
func seedOpenProject(t *testing.T, env testEnv, id, managerID string, units map[string]int) domain.Project {
	t.Helper()
	p, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		ID:           id,
		Name:         "Riverside " + id,
		OpenDate:     "2025-03-01",
		CloseDate:    "2025-04-30",
		Visible:      true,
		ManagerID:    managerID,
		OfficerSlots: 2,
		Units:        units,
		ActorID:      managerID,
	})
	if err != nil {
		t.Fatalf("seed project %s: %v", id, err)
	}
	return p
}

// assignOfficer registers and approves an officer for the project.
func assignOfficer(t *testing.T, env testEnv, officerID, projectID, managerID string) {
	t.Helper()
	reg, err := env.Engine.RegisterOfficer(env.Ctx, officerID, projectID)
	if err != nil {
		t.Fatalf("register officer: %v", err)
	}
	if _, err := env.Engine.ApproveRegistration(env.Ctx, reg.ID, managerID); err != nil {
		t.Fatalf("approve registration: %v", err)
	}
}

func TestApplicationLifecycle(t *testing.T) {
	env := newTestEnv(t)
	seedActor(t, env, "mgr", domain.RoleManager, "", 40)
	seedActor(t, env, "alice", domain.RoleApplicant, domain.Married, 30)
	seedActor(t, env, "off", domain.RoleOfficer, domain.Single, 45)
	seedOpenProject(t, env, "p1", "mgr", map[string]int{"two_room": 2, "four_room": 1})
	assignOfficer(t, env, "off", "p1", "mgr")

	a, err := env.Engine.CreateApplication(env.Ctx, "alice", "p1", "four_room", "alice")
	if err != nil {
		t.Fatalf("create application: %v", err)
	}
	if a.Status != domain.AppPending {
		t.Fatalf("expected pending, got %s", a.Status)
	}

	a, err = env.Engine.ApproveApplication(env.Ctx, a.ID, "mgr")
	if err != nil || a.Status != domain.AppSuccessful {
		t.Fatalf("approve: %v status=%s", err, a.Status)
	}
	// approval checks availability but must not consume it
	unit, err := env.Engine.Ledger.Get(env.Ctx, "p1", "four_room")
	if err != nil || unit.Available != 1 {
		t.Fatalf("available after approve = %d, want 1 (%v)", unit.Available, err)
	}

	a, err = env.Engine.BookFlat(env.Ctx, a.ID, "off", "")
	if err != nil || a.Status != domain.AppBooked {
		t.Fatalf("book: %v status=%s", err, a.Status)
	}
	if a.BookedUnitType == nil || *a.BookedUnitType != "four_room" {
		t.Fatalf("booked unit type not recorded")
	}
	unit, _ = env.Engine.Ledger.Get(env.Ctx, "p1", "four_room")
	if unit.Available != 0 {
		t.Fatalf("available after book = %d, want 0", unit.Available)
	}
}

func TestBookingConsumesLastUnit(t *testing.T) {
	env := newTestEnv(t)
	seedActor(t, env, "mgr", domain.RoleManager, "", 40)
	seedActor(t, env, "alice", domain.RoleApplicant, domain.Married, 30)
	seedActor(t, env, "bob", domain.RoleApplicant, domain.Married, 28)
	seedActor(t, env, "off", domain.RoleOfficer, domain.Single, 45)
	seedOpenProject(t, env, "p1", "mgr", map[string]int{"three_room": 1})
	assignOfficer(t, env, "off", "p1", "mgr")

	a1, err := env.Engine.CreateApplication(env.Ctx, "alice", "p1", "three_room", "alice")
	if err != nil {
		t.Fatal(err)
	}
	a2, err := env.Engine.CreateApplication(env.Ctx, "bob", "p1", "three_room", "bob")
	if err != nil {
		t.Fatal(err)
	}
	// both approvals fit while the unit is still unbooked
	if _, err := env.Engine.ApproveApplication(env.Ctx, a1.ID, "mgr"); err != nil {
		t.Fatalf("approve a1: %v", err)
	}
	if _, err := env.Engine.ApproveApplication(env.Ctx, a2.ID, "mgr"); err != nil {
		t.Fatalf("approve a2: %v", err)
	}
	if _, err := env.Engine.BookFlat(env.Ctx, a1.ID, "off", ""); err != nil {
		t.Fatalf("book a1: %v", err)
	}
	// the second booking races for a unit that is gone
	_, err = env.Engine.BookFlat(env.Ctx, a2.ID, "off", "")
	if !errors.Is(err, engine.ErrNoUnitsAvailable) {
		t.Fatalf("expected ErrNoUnitsAvailable, got %v", err)
	}
	// a failed booking leaves the application successful
	got, _ := env.Engine.Repo.GetApplication(env.Ctx, a2.ID)
	if got.Status != domain.AppSuccessful {
		t.Fatalf("a2 status after failed book = %s, want successful", got.Status)
	}
}

func TestApproveRequiresAvailability(t *testing.T) {
	env := newTestEnv(t)
	seedActor(t, env, "mgr", domain.RoleManager, "", 40)
	seedActor(t, env, "alice", domain.RoleApplicant, domain.Married, 30)
	seedActor(t, env, "bob", domain.RoleApplicant, domain.Married, 28)
	seedActor(t, env, "off", domain.RoleOfficer, domain.Single, 45)
	seedOpenProject(t, env, "p1", "mgr", map[string]int{"three_room": 1})
	assignOfficer(t, env, "off", "p1", "mgr")

	a1, _ := env.Engine.CreateApplication(env.Ctx, "alice", "p1", "three_room", "alice")
	a2, _ := env.Engine.CreateApplication(env.Ctx, "bob", "p1", "three_room", "bob")
	if _, err := env.Engine.ApproveApplication(env.Ctx, a1.ID, "mgr"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.BookFlat(env.Ctx, a1.ID, "off", ""); err != nil {
		t.Fatal(err)
	}
	_, err := env.Engine.ApproveApplication(env.Ctx, a2.ID, "mgr")
	if !errors.Is(err, engine.ErrNoUnitsAvailable) {
		t.Fatalf("expected ErrNoUnitsAvailable on approve, got %v", err)
	}
}

func TestOneActiveApplication(t *testing.T) {
	env := newTestEnv(t)
	seedActor(t, env, "mgr", domain.RoleManager, "", 40)
	seedActor(t, env, "alice", domain.RoleApplicant, domain.Married, 30)
	seedOpenProject(t, env, "p1", "mgr", map[string]int{"two_room": 5})
	seedOpenProject(t, env, "p2", "mgr", map[string]int{"two_room": 5})

	a, err := env.Engine.CreateApplication(env.Ctx, "alice", "p1", "two_room", "alice")
	if err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.CreateApplication(env.Ctx, "alice", "p2", "two_room", "alice")
	if !errors.Is(err, engine.ErrActiveApplication) {
		t.Fatalf("expected ErrActiveApplication, got %v", err)
	}
	// a withdrawn application frees the applicant
	if _, err := env.Engine.RequestWithdrawal(env.Ctx, a.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.ResolveWithdrawal(env.Ctx, a.ID, "mgr", true); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CreateApplication(env.Ctx, "alice", "p2", "two_room", "alice"); err != nil {
		t.Fatalf("reapply after withdrawal: %v", err)
	}
}

func TestInvalidTransitions(t *testing.T) {
	env := newTestEnv(t)
	seedActor(t, env, "mgr", domain.RoleManager, "", 40)
	seedActor(t, env, "alice", domain.RoleApplicant, domain.Married, 30)
	seedOpenProject(t, env, "p1", "mgr", map[string]int{"two_room": 5})

	a, _ := env.Engine.CreateApplication(env.Ctx, "alice", "p1", "two_room", "alice")
	if _, err := env.Engine.RejectApplication(env.Ctx, a.ID, "mgr"); err != nil {
		t.Fatal(err)
	}
	// terminal states have no outgoing edges
	_, err := env.Engine.RejectApplication(env.Ctx, a.ID, "mgr")
	var ise engine.InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("expected InvalidStateError on double reject, got %v", err)
	}
	if ise.From != domain.AppUnsuccessful {
		t.Fatalf("unexpected from state %s", ise.From)
	}
	_, err = env.Engine.ApproveApplication(env.Ctx, a.ID, "mgr")
	if !errors.As(err, &ise) {
		t.Fatalf("expected InvalidStateError on approve after reject, got %v", err)
	}
}

func TestWithdrawalRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	seedActor(t, env, "mgr", domain.RoleManager, "", 40)
	seedActor(t, env, "alice", domain.RoleApplicant, domain.Married, 30)
	seedActor(t, env, "off", domain.RoleOfficer, domain.Single, 45)
	seedOpenProject(t, env, "p1", "mgr", map[string]int{"five_room": 1})
	assignOfficer(t, env, "off", "p1", "mgr")

	a, _ := env.Engine.CreateApplication(env.Ctx, "alice", "p1", "five_room", "alice")
	a, _ = env.Engine.ApproveApplication(env.Ctx, a.ID, "mgr")
	a, err := env.Engine.BookFlat(env.Ctx, a.ID, "off", "")
	if err != nil {
		t.Fatal(err)
	}

	// only the applicant may file the request
	_, err = env.Engine.RequestWithdrawal(env.Ctx, a.ID, "off")
	var noe engine.NotOwnerError
	if !errors.As(err, &noe) {
		t.Fatalf("expected NotOwnerError, got %v", err)
	}
	a, err = env.Engine.RequestWithdrawal(env.Ctx, a.ID, "alice")
	if err != nil || !a.WithdrawalRequested {
		t.Fatalf("request withdrawal: %v", err)
	}
	// requesting again is a no-op
	a, err = env.Engine.RequestWithdrawal(env.Ctx, a.ID, "alice")
	if err != nil || !a.WithdrawalRequested {
		t.Fatalf("repeat request: %v", err)
	}

	a, err = env.Engine.ResolveWithdrawal(env.Ctx, a.ID, "mgr", true)
	if err != nil || a.Status != domain.AppWithdrawn || a.WithdrawalRequested {
		t.Fatalf("resolve: %v status=%s flag=%v", err, a.Status, a.WithdrawalRequested)
	}
	// the booked unit went back to inventory
	unit, _ := env.Engine.Ledger.Get(env.Ctx, "p1", "five_room")
	if unit.Available != 1 || unit.Total != 1 {
		t.Fatalf("unit after withdrawal = %d/%d, want 1/1", unit.Available, unit.Total)
	}
}

func TestWithdrawalDenied(t *testing.T) {
	env := newTestEnv(t)
	seedActor(t, env, "mgr", domain.RoleManager, "", 40)
	seedActor(t, env, "alice", domain.RoleApplicant, domain.Married, 30)
	seedOpenProject(t, env, "p1", "mgr", map[string]int{"two_room": 3})

	a, _ := env.Engine.CreateApplication(env.Ctx, "alice", "p1", "two_room", "alice")
	a, _ = env.Engine.RequestWithdrawal(env.Ctx, a.ID, "alice")
	a, err := env.Engine.ResolveWithdrawal(env.Ctx, a.ID, "mgr", false)
	if err != nil {
		t.Fatal(err)
	}
	if a.Status != domain.AppPending || a.WithdrawalRequested {
		t.Fatalf("denied withdrawal left status=%s flag=%v", a.Status, a.WithdrawalRequested)
	}
	// with the flag cleared the lifecycle continues
	if _, err := env.Engine.ApproveApplication(env.Ctx, a.ID, "mgr"); err != nil {
		t.Fatalf("approve after denial: %v", err)
	}
}

func TestPendingWithdrawalBlocksTransitions(t *testing.T) {
	env := newTestEnv(t)
	seedActor(t, env, "mgr", domain.RoleManager, "", 40)
	seedActor(t, env, "alice", domain.RoleApplicant, domain.Married, 30)
	seedActor(t, env, "off", domain.RoleOfficer, domain.Single, 45)
	seedOpenProject(t, env, "p1", "mgr", map[string]int{"two_room": 3})
	assignOfficer(t, env, "off", "p1", "mgr")

	a, _ := env.Engine.CreateApplication(env.Ctx, "alice", "p1", "two_room", "alice")
	a, _ = env.Engine.ApproveApplication(env.Ctx, a.ID, "mgr")
	if _, err := env.Engine.RequestWithdrawal(env.Ctx, a.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	var ise engine.InvalidStateError
	_, err := env.Engine.BookFlat(env.Ctx, a.ID, "off", "")
	if !errors.As(err, &ise) {
		t.Fatalf("expected booking blocked by withdrawal flag, got %v", err)
	}
}

func TestEligibilityRules(t *testing.T) {
	env := newTestEnv(t)
	seedActor(t, env, "mgr", domain.RoleManager, "", 40)
	seedActor(t, env, "young-married", domain.RoleApplicant, domain.Married, 21)
	seedActor(t, env, "young-single", domain.RoleApplicant, domain.Single, 30)
	seedActor(t, env, "old-single", domain.RoleApplicant, domain.Single, 36)
	seedOpenProject(t, env, "p1", "mgr", map[string]int{"two_room": 1, "three_room": 1, "five_room": 1})

	// married at the threshold takes any tier
	types, err := env.Engine.EligibleUnitTypesFor(env.Ctx, "young-married", "p1")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"two_room", "three_room", "five_room"}
	if len(types) != len(want) {
		t.Fatalf("married types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("married types = %v, want %v", types, want)
		}
	}

	// singles above the threshold are restricted to tier 1
	types, _ = env.Engine.EligibleUnitTypesFor(env.Ctx, "old-single", "p1")
	if len(types) != 1 || types[0] != "two_room" {
		t.Fatalf("single types = %v, want [two_room]", types)
	}
	if _, err := env.Engine.CreateApplication(env.Ctx, "old-single", "p1", "three_room", "old-single"); !errors.Is(err, engine.ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible for restricted tier, got %v", err)
	}

	// singles below the age threshold get nothing
	types, _ = env.Engine.EligibleUnitTypesFor(env.Ctx, "young-single", "p1")
	if len(types) != 0 {
		t.Fatalf("underage single types = %v, want none", types)
	}
	if _, err := env.Engine.CreateApplication(env.Ctx, "young-single", "p1", "two_room", "young-single"); !errors.Is(err, engine.ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible for underage single, got %v", err)
	}
}

func TestEligibilityTracksInventory(t *testing.T) {
	env := newTestEnv(t)
	seedActor(t, env, "mgr", domain.RoleManager, "", 40)
	seedActor(t, env, "alice", domain.RoleApplicant, domain.Married, 30)
	seedActor(t, env, "bob", domain.RoleApplicant, domain.Married, 30)
	seedActor(t, env, "off", domain.RoleOfficer, domain.Single, 45)
	seedOpenProject(t, env, "p1", "mgr", map[string]int{"four_room": 1, "two_room": 0})
	assignOfficer(t, env, "off", "p1", "mgr")

	// a zero-stock cell is not selectable
	types, _ := env.Engine.EligibleUnitTypesFor(env.Ctx, "alice", "p1")
	if len(types) != 1 || types[0] != "four_room" {
		t.Fatalf("types = %v, want [four_room]", types)
	}

	a, _ := env.Engine.CreateApplication(env.Ctx, "alice", "p1", "four_room", "alice")
	a, _ = env.Engine.ApproveApplication(env.Ctx, a.ID, "mgr")
	if _, err := env.Engine.BookFlat(env.Ctx, a.ID, "off", ""); err != nil {
		t.Fatal(err)
	}
	// booking the last unit empties the project for others
	types, _ = env.Engine.EligibleUnitTypesFor(env.Ctx, "bob", "p1")
	if len(types) != 0 {
		t.Fatalf("types after last booking = %v, want none", types)
	}
	projects, _ := env.Engine.EligibleProjects(env.Ctx, "bob")
	if len(projects) != 0 {
		t.Fatalf("projects after last booking = %v, want none", projects)
	}
}

func TestEligibleProjectsVisibilityAndWindow(t *testing.T) {
	env := newTestEnv(t)
	seedActor(t, env, "mgr", domain.RoleManager, "", 40)
	seedActor(t, env, "alice", domain.RoleApplicant, domain.Married, 30)
	seedOpenProject(t, env, "open", "mgr", map[string]int{"two_room": 5})
	// hidden project
	hidden := seedOpenProject(t, env, "hidden", "mgr", map[string]int{"two_room": 5})
	if _, err := env.Engine.SetVisibility(env.Ctx, hidden.ID, false, "mgr"); err != nil {
		t.Fatal(err)
	}
	// future window
	if _, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		ID: "future", Name: "Future", OpenDate: "2025-06-01", CloseDate: "2025-07-31",
		Visible: true, ManagerID: "mgr", OfficerSlots: 1,
		Units: map[string]int{"two_room": 5}, ActorID: "mgr",
	}); err != nil {
		t.Fatal(err)
	}

	projects, err := env.Engine.EligibleProjects(env.Ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(projects) != 1 || projects[0].ID != "open" {
		t.Fatalf("eligible projects = %+v, want only open", projects)
	}
}

// the schema backs up the one-active-application rule with a partial
// unique index, so even a write bypassing the engine cannot violate it
func TestActiveApplicationUniqueIndex(t *testing.T) {
	env := newTestEnv(t)
	seedActor(t, env, "mgr", domain.RoleManager, "", 40)
	seedActor(t, env, "alice", domain.RoleApplicant, domain.Married, 30)
	seedOpenProject(t, env, "p1", "mgr", map[string]int{"two_room": 2})
	seedOpenProject(t, env, "p2", "mgr", map[string]int{"two_room": 2})

	if _, err := env.Engine.CreateApplication(env.Ctx, "alice", "p1", "two_room", "alice"); err != nil {
		t.Fatal(err)
	}
	_, err := env.Engine.DB.ExecContext(env.Ctx, `INSERT INTO applications(id,applicant_id,project_id,unit_type,status,withdrawal_requested,created_at,updated_at)
VALUES ('rogue','alice','p2','two_room','pending',0,'2025-03-15T12:00:00Z','2025-03-15T12:00:00Z')`)
	if err == nil {
		t.Fatalf("second active application row was accepted")
	}
}

func TestRegistrationSlots(t *testing.T) {
	env := newTestEnv(t)
	seedActor(t, env, "mgr", domain.RoleManager, "", 40)
	seedActor(t, env, "off1", domain.RoleOfficer, domain.Single, 45)
	seedActor(t, env, "off2", domain.RoleOfficer, domain.Single, 50)
	seedActor(t, env, "off3", domain.RoleOfficer, domain.Single, 50)
	p, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		ID: "p1", Name: "Slots", OpenDate: "2025-03-01", CloseDate: "2025-04-30",
		Visible: true, ManagerID: "mgr", OfficerSlots: 1,
		Units: map[string]int{"two_room": 5}, ActorID: "mgr",
	})
	if err != nil {
		t.Fatal(err)
	}
	assignOfficer(t, env, "off1", p.ID, "mgr")
	// pending registrations queue beyond capacity are refused up front
	_, err = env.Engine.RegisterOfficer(env.Ctx, "off2", p.ID)
	if !errors.Is(err, engine.ErrSlotsFull) {
		t.Fatalf("expected ErrSlotsFull, got %v", err)
	}
	// freeing headroom admits the next officer
	slots := 2
	if _, err := env.Engine.UpdateProject(env.Ctx, engine.ProjectUpdateOptions{ProjectID: p.ID, OfficerSlots: &slots, ActorID: "mgr"}); err != nil {
		t.Fatal(err)
	}
	reg2, err := env.Engine.RegisterOfficer(env.Ctx, "off2", p.ID)
	if err != nil {
		t.Fatal(err)
	}
	reg3err := func() error {
		_, err := env.Engine.RegisterOfficer(env.Ctx, "off3", p.ID)
		return err
	}
	// slots count approvals, not pending registrations
	if err := reg3err(); err != nil {
		t.Fatalf("pending registration should not consume a slot: %v", err)
	}
	if _, err := env.Engine.ApproveRegistration(env.Ctx, reg2.ID, "mgr"); err != nil {
		t.Fatal(err)
	}
	got, _ := env.Engine.Repo.GetProject(env.Ctx, p.ID)
	if got.SlotsFilled != 2 {
		t.Fatalf("slots_filled = %d, want 2", got.SlotsFilled)
	}
}

func TestApproveRegistrationLastSlot(t *testing.T) {
	env := newTestEnv(t)
	seedActor(t, env, "mgr", domain.RoleManager, "", 40)
	seedActor(t, env, "off1", domain.RoleOfficer, domain.Single, 45)
	seedActor(t, env, "off2", domain.RoleOfficer, domain.Single, 50)
	p, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		ID: "p1", Name: "LastSlot", OpenDate: "2025-03-01", CloseDate: "2025-04-30",
		Visible: true, ManagerID: "mgr", OfficerSlots: 1,
		Units: map[string]int{"two_room": 5}, ActorID: "mgr",
	})
	if err != nil {
		t.Fatal(err)
	}
	// both officers queue for the single slot
	reg1, err := env.Engine.RegisterOfficer(env.Ctx, "off1", p.ID)
	if err != nil {
		t.Fatal(err)
	}
	reg2, err := env.Engine.RegisterOfficer(env.Ctx, "off2", p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.ApproveRegistration(env.Ctx, reg1.ID, "mgr"); err != nil {
		t.Fatalf("first approval: %v", err)
	}
	// the slot count is re-checked at approval time, so the second
	// pending registration loses
	_, err = env.Engine.ApproveRegistration(env.Ctx, reg2.ID, "mgr")
	if !errors.Is(err, engine.ErrSlotsFull) {
		t.Fatalf("expected ErrSlotsFull, got %v", err)
	}
	got, err := env.Engine.Repo.GetRegistration(env.Ctx, reg2.ID)
	if err != nil || got.Status != domain.RegPending {
		t.Fatalf("losing registration = %s (%v), want pending", got.Status, err)
	}
	proj, _ := env.Engine.Repo.GetProject(env.Ctx, p.ID)
	if proj.SlotsFilled != 1 {
		t.Fatalf("slots_filled = %d, want 1", proj.SlotsFilled)
	}
}

func TestRegistrationOverlap(t *testing.T) {
	env := newTestEnv(t)
	seedActor(t, env, "mgr", domain.RoleManager, "", 40)
	seedActor(t, env, "off", domain.RoleOfficer, domain.Single, 45)
	seedOpenProject(t, env, "p1", "mgr", map[string]int{"two_room": 5})
	assignOfficer(t, env, "off", "p1", "mgr")

	// overlapping window is refused
	if _, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		ID: "p2", Name: "Overlap", OpenDate: "2025-04-15", CloseDate: "2025-05-31",
		Visible: true, ManagerID: "mgr", OfficerSlots: 2,
		Units: map[string]int{"two_room": 5}, ActorID: "mgr",
	}); err != nil {
		t.Fatal(err)
	}
	_, err := env.Engine.RegisterOfficer(env.Ctx, "off", "p2")
	if !errors.Is(err, engine.ErrOverlappingAssignment) {
		t.Fatalf("expected ErrOverlappingAssignment, got %v", err)
	}

	// a disjoint window is fine
	if _, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		ID: "p3", Name: "Disjoint", OpenDate: "2025-06-01", CloseDate: "2025-07-31",
		Visible: true, ManagerID: "mgr", OfficerSlots: 2,
		Units: map[string]int{"two_room": 5}, ActorID: "mgr",
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.RegisterOfficer(env.Ctx, "off", "p3"); err != nil {
		t.Fatalf("disjoint registration: %v", err)
	}
}

func TestOfficerConflictRules(t *testing.T) {
	env := newTestEnv(t)
	seedActor(t, env, "mgr", domain.RoleManager, "", 40)
	seedActor(t, env, "off", domain.RoleOfficer, domain.Married, 45)
	seedOpenProject(t, env, "p1", "mgr", map[string]int{"two_room": 5})
	seedOpenProject(t, env, "p2", "mgr", map[string]int{"two_room": 5})
	assignOfficer(t, env, "off", "p1", "mgr")

	// an officer cannot apply to the project they handle
	if _, err := env.Engine.CreateApplication(env.Ctx, "off", "p1", "two_room", "off"); !errors.Is(err, engine.ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible for handled project, got %v", err)
	}
	// nor to a project whose window overlaps a handled one
	if _, err := env.Engine.CreateApplication(env.Ctx, "off", "p2", "two_room", "off"); !errors.Is(err, engine.ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible for overlapping window, got %v", err)
	}
	// an officer who applied cannot then register for that project
	if _, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		ID: "p4", Name: "Later", OpenDate: "2025-06-01", CloseDate: "2025-07-31",
		Visible: true, ManagerID: "mgr", OfficerSlots: 2,
		Units: map[string]int{"two_room": 5}, ActorID: "mgr",
	}); err != nil {
		t.Fatal(err)
	}
	env.Engine.Now = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }
	if _, err := env.Engine.CreateApplication(env.Ctx, "off", "p4", "two_room", "off"); err != nil {
		t.Fatalf("officer applying to unrelated project: %v", err)
	}
	if _, err := env.Engine.RegisterOfficer(env.Ctx, "off", "p4"); err == nil {
		t.Fatalf("expected registration refused after applying")
	}
}

func TestManagerCannotApply(t *testing.T) {
	env := newTestEnv(t)
	seedActor(t, env, "mgr", domain.RoleManager, "", 40)
	seedOpenProject(t, env, "p1", "mgr", map[string]int{"two_room": 5})
	if _, err := env.Engine.CreateApplication(env.Ctx, "mgr", "p1", "two_room", "mgr"); err == nil {
		t.Fatalf("expected manager application refused")
	}
}

func TestProjectFrozenDuringWindow(t *testing.T) {
	env := newTestEnv(t)
	seedActor(t, env, "mgr", domain.RoleManager, "", 40)
	p := seedOpenProject(t, env, "p1", "mgr", map[string]int{"two_room": 5})

	name := "Renamed"
	_, err := env.Engine.UpdateProject(env.Ctx, engine.ProjectUpdateOptions{ProjectID: p.ID, Name: &name, ActorID: "mgr"})
	if !errors.Is(err, engine.ErrProjectFrozen) {
		t.Fatalf("expected ErrProjectFrozen on rename, got %v", err)
	}
	_, err = env.Engine.SetCapacity(env.Ctx, p.ID, "two_room", 10, "mgr")
	if !errors.Is(err, engine.ErrProjectFrozen) {
		t.Fatalf("expected ErrProjectFrozen on capacity, got %v", err)
	}
	// visibility is never frozen
	if _, err := env.Engine.SetVisibility(env.Ctx, p.ID, false, "mgr"); err != nil {
		t.Fatalf("visibility during window: %v", err)
	}
	// slots edits stay open too
	slots := 3
	if _, err := env.Engine.UpdateProject(env.Ctx, engine.ProjectUpdateOptions{ProjectID: p.ID, OfficerSlots: &slots, ActorID: "mgr"}); err != nil {
		t.Fatalf("slots during window: %v", err)
	}

	// after the window closes the freeze lifts
	env.Engine.Now = func() time.Time { return time.Date(2025, 5, 15, 12, 0, 0, 0, time.UTC) }
	if _, err := env.Engine.UpdateProject(env.Ctx, engine.ProjectUpdateOptions{ProjectID: p.ID, Name: &name, ActorID: "mgr"}); err != nil {
		t.Fatalf("rename after window: %v", err)
	}
	unit, err := env.Engine.SetCapacity(env.Ctx, p.ID, "two_room", 10, "mgr")
	if err != nil || unit.Total != 10 || unit.Available != 10 {
		t.Fatalf("capacity after window: %v unit=%+v", err, unit)
	}
}

func TestSetCapacityBelowCommitted(t *testing.T) {
	env := newTestEnv(t)
	seedActor(t, env, "mgr", domain.RoleManager, "", 40)
	seedActor(t, env, "alice", domain.RoleApplicant, domain.Married, 30)
	seedActor(t, env, "bob", domain.RoleApplicant, domain.Married, 30)
	seedActor(t, env, "off", domain.RoleOfficer, domain.Single, 45)
	seedOpenProject(t, env, "p1", "mgr", map[string]int{"three_room": 3})
	assignOfficer(t, env, "off", "p1", "mgr")

	a1, _ := env.Engine.CreateApplication(env.Ctx, "alice", "p1", "three_room", "alice")
	a1, _ = env.Engine.ApproveApplication(env.Ctx, a1.ID, "mgr")
	if _, err := env.Engine.BookFlat(env.Ctx, a1.ID, "off", ""); err != nil {
		t.Fatal(err)
	}
	a2, _ := env.Engine.CreateApplication(env.Ctx, "bob", "p1", "three_room", "bob")
	if _, err := env.Engine.ApproveApplication(env.Ctx, a2.ID, "mgr"); err != nil {
		t.Fatal(err)
	}

	// window closed, freeze lifted; one booked plus one successful commit two units
	env.Engine.Now = func() time.Time { return time.Date(2025, 5, 15, 12, 0, 0, 0, time.UTC) }
	_, err := env.Engine.SetCapacity(env.Ctx, "p1", "three_room", 1, "mgr")
	if !errors.Is(err, ledger.ErrCapacityBelowCommitted) {
		t.Fatalf("expected ErrCapacityBelowCommitted, got %v", err)
	}
	unit, err := env.Engine.SetCapacity(env.Ctx, "p1", "three_room", 2, "mgr")
	if err != nil {
		t.Fatalf("shrink to committed: %v", err)
	}
	// one unit is physically handed out, so one remains free
	if unit.Total != 2 || unit.Available != 1 {
		t.Fatalf("unit after shrink = %d/%d, want 1/2", unit.Available, unit.Total)
	}
}

func TestNotOwner(t *testing.T) {
	env := newTestEnv(t)
	seedActor(t, env, "mgr", domain.RoleManager, "", 40)
	seedActor(t, env, "other", domain.RoleManager, "", 40)
	seedActor(t, env, "alice", domain.RoleApplicant, domain.Married, 30)
	p := seedOpenProject(t, env, "p1", "mgr", map[string]int{"two_room": 5})

	a, _ := env.Engine.CreateApplication(env.Ctx, "alice", "p1", "two_room", "alice")
	var noe engine.NotOwnerError
	if _, err := env.Engine.ApproveApplication(env.Ctx, a.ID, "other"); !errors.As(err, &noe) {
		t.Fatalf("expected NotOwnerError, got %v", err)
	}
	if _, err := env.Engine.SetVisibility(env.Ctx, p.ID, false, "other"); !errors.As(err, &noe) {
		t.Fatalf("expected NotOwnerError on visibility, got %v", err)
	}
	if noe.ProjectID != p.ID {
		t.Fatalf("error carries project %s, want %s", noe.ProjectID, p.ID)
	}
}
