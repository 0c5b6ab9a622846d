package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/arklim/labsys-access/internal/core/domain"
	"github.com/arklim/labsys-access/internal/core/port"
	"github.com/arklim/labsys-access/internal/infra/app"
	"github.com/arklim/labsys-access/internal/infra/config"
	"github.com/arklim/labsys-access/internal/usecase"
)

var rootCmd = &cobra.Command{
	Use:   "labadmin",
	Short: "Laboratory access administration tool",
	Long:  "Administrative tool for managing laboratory users and inspecting the audit trail. Actions are audited as system actions.",
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

// passwordEnv lets scripts hand over a password without it appearing in
// argv or shell history. Without it the password is read from stdin.
const passwordEnv = "LAB_ADMIN_PASSWORD"

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new user",
	Long:  "Create a new user. The initial password is taken from " + passwordEnv + " or the first line of stdin.",
	RunE:  createUser,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	RunE:  listUsers,
}

var userResetCmd = &cobra.Command{
	Use:   "reset-password",
	Short: "Set a new password and clear any lock",
	Long:  "Set a new password and clear any lock. The password is taken from " + passwordEnv + " or the first line of stdin.",
	RunE:  resetPassword,
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit trail",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent audit entries",
	RunE:  listAudit,
}

var (
	email  string
	name   string
	role   string
	userID string

	filterRole   string
	filterStatus string
	userLimit    int

	auditActor  string
	auditAction string
	auditSince  time.Duration
	auditLimit  int
)

func init() {
	userCreateCmd.Flags().StringVar(&email, "email", "", "Email address (required)")
	userCreateCmd.Flags().StringVar(&name, "name", "", "Display name (required)")
	userCreateCmd.Flags().StringVar(&role, "role", string(domain.RoleTechnician), "Role: administrator, technician or customer")
	_ = userCreateCmd.MarkFlagRequired("email")
	_ = userCreateCmd.MarkFlagRequired("name")

	userListCmd.Flags().StringVar(&filterRole, "role", "", "Filter by role")
	userListCmd.Flags().StringVar(&filterStatus, "status", "", "Filter by status (active, inactive)")
	userListCmd.Flags().IntVar(&userLimit, "limit", 100, "Maximum number of users")

	userResetCmd.Flags().StringVar(&userID, "id", "", "User ID (required)")
	_ = userResetCmd.MarkFlagRequired("id")

	auditListCmd.Flags().StringVar(&auditActor, "actor", "", "Filter by actor user ID")
	auditListCmd.Flags().StringVar(&auditAction, "action", "", "Filter by action")
	auditListCmd.Flags().DurationVar(&auditSince, "since", 0, "Only entries newer than this (e.g. 24h)")
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 50, "Maximum number of entries")

	userCmd.AddCommand(userCreateCmd, userListCmd, userResetCmd)
	auditCmd.AddCommand(auditListCmd)
	rootCmd.AddCommand(userCmd, auditCmd)
}

func main() {
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openContainer(ctx context.Context) (*app.Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	// CLI metrics are never scraped.
	return app.NewContainer(ctx, cfg, prometheus.NewRegistry())
}

// readPassword returns passwordEnv when set, otherwise the first line of the
// command's stdin without its line terminator.
func readPassword(cmd *cobra.Command) (string, error) {
	if value, ok := os.LookupEnv(passwordEnv); ok && value != "" {
		return value, nil
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", fmt.Errorf("password required: set %s or pipe it on stdin", passwordEnv)
	}
	return line, nil
}

func createUser(cmd *cobra.Command, _ []string) error {
	password, err := readPassword(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	c, err := openContainer(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	user, err := c.Services.Users.Create(ctx, usecase.CreateUserInput{
		Email:    email,
		Name:     name,
		Role:     domain.Role(role),
		Password: password,
	}, domain.Origin{UserAgent: "labadmin"})
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Printf("User created: %s (%s, %s)\n", user.ID, user.Email, user.Role)
	return nil
}

func listUsers(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	c, err := openContainer(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	users, err := c.Services.Users.List(ctx, port.UserFilter{
		Role:   domain.Role(filterRole),
		Status: domain.UserStatus(filterStatus),
		Limit:  userLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}
	if len(users) == 0 {
		fmt.Println("No users found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEMAIL\tNAME\tROLE\tSTATUS\tLOCKED UNTIL")
	now := time.Now()
	for _, u := range users {
		locked := "-"
		if u.LockState().IsLocked(now) {
			locked = u.LockUntil.Local().Format(time.DateTime)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", u.ID, u.Email, u.Name, u.Role, u.Status, locked)
	}
	return w.Flush()
}

func resetPassword(cmd *cobra.Command, _ []string) error {
	password, err := readPassword(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	c, err := openContainer(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Services.Users.ResetPassword(ctx, userID, password, domain.Origin{UserAgent: "labadmin"}); err != nil {
		return fmt.Errorf("failed to reset password: %w", err)
	}
	fmt.Println("Password reset; any active lock was cleared")
	return nil
}

func listAudit(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	c, err := openContainer(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	filter := domain.AuditFilter{
		ActorID: auditActor,
		Action:  domain.AuditAction(auditAction),
		Limit:   auditLimit,
	}
	if auditSince > 0 {
		since := time.Now().Add(-auditSince)
		filter.Since = &since
	}

	entries, err := c.Services.Audit.List(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to list audit entries: %w", err)
	}
	if len(entries) == 0 {
		fmt.Println("No audit entries found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTOR\tACTION\tTABLE\tRECORD\tIP")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.Local().Format(time.DateTime),
			deref(e.ActorID, "system"),
			e.Action,
			e.TableName,
			deref(e.RecordID, "-"),
			e.IP,
		)
	}
	return w.Flush()
}

func deref(value *string, fallback string) string {
	if value == nil || *value == "" {
		return fallback
	}
	return *value
}
