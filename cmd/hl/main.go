package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"homeline/internal/app"
	"homeline/internal/config"
	"homeline/internal/db"
	"homeline/internal/domain"
	"homeline/internal/engine"
	"homeline/internal/migrate"
	"homeline/internal/repo"
	"homeline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "hl",
	Short: "Homeline CLI",
	Long: `Homeline allocates housing units across competing applicants.
Core concepts:
- Workspace: your .homeline directory with the database; scheme rules live in homeline.yml or the DB.
- Scheme: the rulebook - unit-type catalog, age/marital eligibility, officer slot limits.
- Project: a housing development with an application window, visibility flag, and per-type inventory.
- Application: one applicant's request; flows pending -> successful -> booked, with a manager-resolved withdrawal side-channel.
- Registration: an officer asking to handle a project; approval consumes a slot and must not overlap other handled windows.
- Event log: diary of every transition, view with 'hl log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("HOMELINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("scheme", "", "scheme id (overrides config default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("scheme", rootCmd.PersistentFlags().Lookup("scheme"))
}

func registerCommands() {
	rootCmd.AddCommand(actorCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(applyCmd())
	rootCmd.AddCommand(applicationCmd())
	rootCmd.AddCommand(officerCmd())
	rootCmd.AddCommand(eligibleCmd())
	rootCmd.AddCommand(schemeCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- actors ---

func actorCmd() *cobra.Command {
	actor := &cobra.Command{Use: "actor", Short: "Manage actors"}
	actor.AddCommand(actorUpsertCmd())
	actor.AddCommand(actorShowCmd())
	actor.AddCommand(actorListCmd())
	return actor
}

func actorUpsertCmd() *cobra.Command {
	var id, name, marital, role string
	var age int
	cmd := &cobra.Command{
		Use:   "upsert",
		Short: "Create or update an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.UpsertActor(ctx, engine.ActorUpsertOptions{
					ID:            id,
					Name:          name,
					Age:           age,
					MaritalStatus: marital,
					Role:          role,
					ActorID:       viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "actor id")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().IntVar(&age, "age", 0, "age in years")
	cmd.Flags().StringVar(&marital, "marital-status", "", "single or married")
	cmd.Flags().StringVar(&role, "role", "", "applicant, officer or manager")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func actorShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				a, err := r.GetActor(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func actorListCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List actors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListActors(ctx, role)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Age", "Marital", "Role"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.ID, a.Name, a.Age, a.MaritalStatus, a.Role})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "filter by role")
	return cmd
}

// --- projects ---

func projectCmd() *cobra.Command {
	prj := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
		Long:  "Projects carry an application window, a visibility flag, officer slots, and per-type unit inventory. Name, dates and inventory freeze while the window is open.",
	}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectVisibilityCmd())
	prj.AddCommand(projectCapacityCmd())
	prj.AddCommand(projectUnitsCmd())
	prj.AddCommand(projectStatusCmd())
	return prj
}

func parseUnitFlags(units []string) (map[string]int, error) {
	res := map[string]int{}
	for _, u := range units {
		parts := strings.SplitN(u, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("unit %q must be <type>=<total>", u)
		}
		var total int
		if _, err := fmt.Sscanf(parts[1], "%d", &total); err != nil {
			return nil, fmt.Errorf("unit %q must be <type>=<total>", u)
		}
		res[parts[0]] = total
	}
	return res, nil
}

func projectCreateCmd() *cobra.Command {
	var id, name, neighborhood, openDate, closeDate string
	var slots int
	var visible bool
	var units []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			unitTotals, err := parseUnitFlags(units)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProject(ctx, engine.ProjectCreateOptions{
					ID:           id,
					Name:         name,
					Neighborhood: neighborhood,
					OpenDate:     openDate,
					CloseDate:    closeDate,
					Visible:      visible,
					ManagerID:    viper.GetString("actor-id"),
					OfficerSlots: slots,
					Units:        unitTotals,
					ActorID:      viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "project id (generated if empty)")
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&neighborhood, "neighborhood", "", "neighborhood")
	cmd.Flags().StringVar(&openDate, "open", "", "window open date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&closeDate, "close", "", "window close date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&visible, "visible", false, "visible to applicants")
	cmd.Flags().IntVar(&slots, "officer-slots", 10, "officer slot capacity")
	cmd.Flags().StringArrayVar(&units, "unit", nil, "inventory cell, e.g. --unit two_room=20")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("open")
	_ = cmd.MarkFlagRequired("close")
	return cmd
}

func projectListCmd() *cobra.Command {
	var managerID string
	var visibleOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListProjects(ctx, repo.ProjectFilters{ManagerID: managerID, VisibleOnly: visibleOnly})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Window", "Visible", "Manager", "Slots"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.OpenDate + ".." + p.CloseDate, p.Visible, p.ManagerID,
						fmt.Sprintf("%d/%d", p.SlotsFilled, p.OfficerSlots)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&managerID, "manager", "", "filter by manager id")
	cmd.Flags().BoolVar(&visibleOnly, "visible-only", false, "only visible projects")
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				p, err := r.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func projectUpdateCmd() *cobra.Command {
	var name, neighborhood, openDate, closeDate string
	var slots int
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.ProjectUpdateOptions{ProjectID: args[0], ActorID: viper.GetString("actor-id")}
				if cmd.Flags().Changed("name") {
					opts.Name = &name
				}
				if cmd.Flags().Changed("neighborhood") {
					opts.Neighborhood = &neighborhood
				}
				if cmd.Flags().Changed("open") {
					opts.OpenDate = &openDate
				}
				if cmd.Flags().Changed("close") {
					opts.CloseDate = &closeDate
				}
				if cmd.Flags().Changed("officer-slots") {
					opts.OfficerSlots = &slots
				}
				p, err := e.UpdateProject(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&neighborhood, "neighborhood", "", "neighborhood")
	cmd.Flags().StringVar(&openDate, "open", "", "window open date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&closeDate, "close", "", "window close date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&slots, "officer-slots", 0, "officer slot capacity")
	return cmd
}

func projectVisibilityCmd() *cobra.Command {
	var visible bool
	cmd := &cobra.Command{
		Use:   "visibility <id>",
		Short: "Toggle project visibility",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.SetVisibility(ctx, args[0], visible, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().BoolVar(&visible, "visible", true, "visible to applicants")
	return cmd
}

func projectCapacityCmd() *cobra.Command {
	var unitType string
	var total int
	cmd := &cobra.Command{
		Use:   "capacity <id>",
		Short: "Set inventory capacity for one unit type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.SetCapacity(ctx, args[0], unitType, total, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&unitType, "unit-type", "", "unit type")
	cmd.Flags().IntVar(&total, "total", 0, "new total")
	_ = cmd.MarkFlagRequired("unit-type")
	_ = cmd.MarkFlagRequired("total")
	return cmd
}

func projectUnitsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "units <id>",
		Short: "Show project inventory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Ledger.List(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Unit type", "Total", "Available"})
				for _, u := range items {
					tw.AppendRow(table.Row{u.UnitType, u.Total, u.Available})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func projectStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Show project status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Repo.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				counts, err := e.Repo.CountApplicationsForProject(ctx, p.ID)
				if err != nil {
					return err
				}
				units, err := e.Ledger.List(ctx, p.ID)
				if err != nil {
					return err
				}
				out := map[string]any{
					"project_id":         p.ID,
					"visible":            p.Visible,
					"window":             p.OpenDate + ".." + p.CloseDate,
					"application_counts": counts,
					"units":              units,
					"slots":              fmt.Sprintf("%d/%d", p.SlotsFilled, p.OfficerSlots),
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("Project: %s (%s)\n", p.ID, p.Name)
				fmt.Printf("Window: %s..%s visible=%v\n", p.OpenDate, p.CloseDate, p.Visible)
				fmt.Printf("Officer slots: %d/%d\n", p.SlotsFilled, p.OfficerSlots)
				fmt.Println("Applications:")
				for status, c := range counts {
					fmt.Printf("  %s: %d\n", status, c)
				}
				fmt.Println("Units:")
				for _, u := range units {
					fmt.Printf("  %s: %d/%d available\n", u.UnitType, u.Available, u.Total)
				}
				return nil
			})
		},
	}
	return cmd
}

// --- applications ---

func applyCmd() *cobra.Command {
	var applicantID, projectID, unitType string
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply to a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if applicantID == "" {
				applicantID = viper.GetString("actor-id")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.CreateApplication(ctx, applicantID, projectID, unitType, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&applicantID, "applicant", "", "applicant id (defaults to --actor-id)")
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&unitType, "unit-type", "", "requested unit type")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("unit-type")
	return cmd
}

func applicationCmd() *cobra.Command {
	appl := &cobra.Command{
		Use:   "application",
		Short: "Manage applications",
		Long:  "Applications flow pending -> successful -> booked; rejection and approved withdrawal are the exits. Withdrawal of a booked application returns the unit to inventory.",
	}
	appl.AddCommand(applicationListCmd())
	appl.AddCommand(applicationShowCmd())
	appl.AddCommand(applicationApproveCmd())
	appl.AddCommand(applicationRejectCmd())
	appl.AddCommand(applicationWithdrawCmd())
	appl.AddCommand(applicationResolveCmd())
	appl.AddCommand(applicationBookCmd())
	return appl
}

func applicationListCmd() *cobra.Command {
	var projectID, applicantID, status string
	var withdrawal bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List applications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListApplications(ctx, repo.ApplicationFilters{
					ProjectID:           projectID,
					ApplicantID:         applicantID,
					Status:              status,
					WithdrawalRequested: withdrawal,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Applicant", "Project", "Unit type", "Status", "Withdrawal"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.ID, a.ApplicantID, a.ProjectID, a.UnitType, a.Status, a.WithdrawalRequested})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "filter by project")
	cmd.Flags().StringVar(&applicantID, "applicant", "", "filter by applicant")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().BoolVar(&withdrawal, "withdrawal-requested", false, "only withdrawal requests")
	return cmd
}

func applicationShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				a, err := r.GetApplication(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func applicationApproveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a pending application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.ApproveApplication(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func applicationRejectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a pending application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.RejectApplication(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func applicationWithdrawCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "withdraw <id>",
		Short: "Request withdrawal of an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.RequestWithdrawal(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func applicationResolveCmd() *cobra.Command {
	var approve bool
	cmd := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Resolve a withdrawal request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.ResolveWithdrawal(ctx, args[0], viper.GetString("actor-id"), approve)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().BoolVar(&approve, "approve", false, "approve the withdrawal (otherwise deny and clear the flag)")
	return cmd
}

func applicationBookCmd() *cobra.Command {
	var unitType string
	cmd := &cobra.Command{
		Use:   "book <id>",
		Short: "Book a flat for a successful application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.BookFlat(ctx, args[0], viper.GetString("actor-id"), unitType)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&unitType, "unit-type", "", "unit type (defaults to the approved type)")
	return cmd
}

// --- officer registrations ---

func officerCmd() *cobra.Command {
	off := &cobra.Command{
		Use:   "officer",
		Short: "Officer registrations",
		Long:  "Officers register to handle a project. Approval consumes a slot and binds the officer; two approved assignments may never have overlapping windows.",
	}
	off.AddCommand(officerRegisterCmd())
	off.AddCommand(officerListCmd())
	off.AddCommand(officerApproveCmd())
	off.AddCommand(officerRejectCmd())
	return off
}

func officerRegisterCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register to handle a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				reg, err := e.RegisterOfficer(ctx, viper.GetString("actor-id"), projectID)
				if err != nil {
					return err
				}
				return printJSONOrTable(reg)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func officerListCmd() *cobra.Command {
	var projectID, officerID, status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListRegistrations(ctx, repo.RegistrationFilters{
					ProjectID: projectID,
					OfficerID: officerID,
					Status:    status,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Officer", "Project", "Status"})
				for _, reg := range items {
					tw.AppendRow(table.Row{reg.ID, reg.OfficerID, reg.ProjectID, reg.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "filter by project")
	cmd.Flags().StringVar(&officerID, "officer", "", "filter by officer")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	return cmd
}

func officerApproveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <registration-id>",
		Short: "Approve a registration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				reg, err := e.ApproveRegistration(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(reg)
			})
		},
	}
	return cmd
}

func officerRejectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reject <registration-id>",
		Short: "Reject a registration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				reg, err := e.RejectRegistration(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(reg)
			})
		},
	}
	return cmd
}

// --- eligibility ---

func eligibleCmd() *cobra.Command {
	eli := &cobra.Command{Use: "eligible", Short: "Eligibility queries"}
	eli.AddCommand(eligibleProjectsCmd())
	eli.AddCommand(eligibleUnitTypesCmd())
	return eli
}

func eligibleProjectsCmd() *cobra.Command {
	var applicantID string
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "Projects the applicant can apply to",
		RunE: func(cmd *cobra.Command, args []string) error {
			if applicantID == "" {
				applicantID = viper.GetString("actor-id")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.EligibleProjects(ctx, applicantID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Window"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.OpenDate + ".." + p.CloseDate})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&applicantID, "applicant", "", "applicant id (defaults to --actor-id)")
	return cmd
}

func eligibleUnitTypesCmd() *cobra.Command {
	var applicantID, projectID string
	cmd := &cobra.Command{
		Use:   "unit-types",
		Short: "Unit types the applicant can select on a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if applicantID == "" {
				applicantID = viper.GetString("actor-id")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				types, err := e.EligibleUnitTypesFor(ctx, applicantID, projectID)
				if err != nil {
					return err
				}
				if types == nil {
					types = []string{}
				}
				return printJSONOrTable(types)
			})
		},
	}
	cmd.Flags().StringVar(&applicantID, "applicant", "", "applicant id (defaults to --actor-id)")
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

// --- scheme config ---

func schemeCmd() *cobra.Command {
	sch := &cobra.Command{
		Use:   "scheme",
		Short: "Manage scheme rules",
	}
	sch.AddCommand(schemeShowCmd())
	sch.AddCommand(schemeInitCmd())
	sch.AddCommand(schemeImportCmd())
	sch.AddCommand(schemeValidateCmd())
	return sch
}

func schemeShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the active scheme config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func schemeInitCmd() *cobra.Command {
	var schemeID string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default homeline.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if schemeID == "" {
				schemeID = app.DefaultSchemeID
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(schemeID)), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&schemeID, "id", "", "scheme id")
	return cmd
}

func schemeImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import scheme config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFile(filePath)
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				schemeID := cfg.Scheme.ID
				if override := viper.GetString("scheme"); override != "" {
					schemeID = override
				}
				if err := r.UpsertSchemeConfig(ctx, schemeID, cfg); err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func schemeValidateCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a scheme config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if filePath == "" {
				filePath = config.Path(viper.GetString("workspace"))
			}
			if _, err := config.FromFile(filePath); err != nil {
				return err
			}
			fmt.Printf("%s is valid\n", filePath)
			return nil
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config (defaults to workspace homeline.yml)")
	return cmd
}

// --- events ---

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of every transition: applications, bookings, registrations, capacity edits.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var projectID, evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, projectID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&projectID, "project", "", "project filter")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

// --- api keys ---

func apikeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
	}
	cmd.AddCommand(apikeyCreateCmd())
	cmd.AddCommand(apikeyListCmd())
	cmd.AddCommand(apikeyDeleteCmd())
	return cmd
}

func apikeyCreateCmd() *cobra.Command {
	var actorID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actorID == "" {
				actorID = viper.GetString("actor-id")
			}
			raw := make([]byte, 32)
			if _, err := rand.Read(raw); err != nil {
				return err
			}
			key := "hl_" + hex.EncodeToString(raw)
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				rec := domain.APIKey{
					ID:      uuid.NewString(),
					ActorID: actorID,
					Name:    name,
					KeyHash: repo.HashAPIKey(key),
				}
				if err := r.InsertAPIKey(ctx, nil, rec); err != nil {
					return err
				}
				out := map[string]string{"id": rec.ID, "actor_id": rec.ActorID, "key": key}
				return printJSONOrTable(out)
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor id (defaults to --actor-id)")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx, actorID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Actor", "Name", "Created"})
				for _, k := range items {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "filter by actor id")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

// --- serve ---

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacyActor bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolveSchemeConfig(cmd.Context(), workspace, viper.GetString("scheme"), r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("HOMELINE_JWT_SECRET"),
				AllowLegacyActorHeader: allowLegacyActor,
			}
			if authCfg.JWTSecret == "" && !allowLegacyActor {
				return fmt.Errorf("HOMELINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(e)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Homeline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowLegacyActor, "allow-legacy-actor-header", false, "accept X-Actor-Id without auth (dev only)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	_, cfg, err := app.ResolveSchemeConfig(ctx, workspace, viper.GetString("scheme"), r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	return fn(ctx, r)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
