package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rxportal/rxcore/internal/audit"
	"github.com/rxportal/rxcore/internal/auth"
	"github.com/rxportal/rxcore/internal/infrastructure/config"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

func newUserCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts from the command line",
	}

	var email, name string
	var passwordStdin bool

	createAdmin := &cobra.Command{
		Use:     "create-admin",
		Short:   "Create an administrator account",
		Example: "rxcore user create-admin --email ops@example.com --name Ops\necho \"$PW\" | rxcore user create-admin --email ops@example.com --name Ops --password-stdin",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			password, err := readAdminPassword(cmd, passwordStdin)
			if err != nil {
				return err
			}

			db, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // process exits next

			admin, err := auth.CreateAdmin(cmd.Context(), auth.NewUserRepository(db.DB),
				auth.NewPasswordHasher(cfg.Security.Password.BcryptCost),
				strings.TrimSpace(email), strings.TrimSpace(name), password)
			if errors.Is(err, auth.ErrEmailTaken) {
				return fmt.Errorf("%s is already registered", email)
			}
			if err != nil {
				return err
			}

			if err := audit.NewSQLiteRepository(db.DB).Create(cmd.Context(), &audit.Entry{
				Action:     audit.ActionCreate,
				EntityType: audit.EntityUser,
				EntityID:   admin.ID,
				Source:     audit.SourceCLI,
				Details:    map[string]any{"role": string(admin.Role)},
			}); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: audit entry not written: %v\n", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "admin %s created (%s)\n", admin.Email, admin.ID)
			return nil
		},
	}
	createAdmin.Flags().StringVar(&email, "email", "", "admin email address")
	createAdmin.Flags().StringVar(&name, "name", "", "admin display name")
	createAdmin.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from standard input")
	_ = createAdmin.MarkFlagRequired("email") //nolint:errcheck // flag is defined above
	_ = createAdmin.MarkFlagRequired("name")  //nolint:errcheck // flag is defined above

	cmd.AddCommand(createAdmin)
	return cmd
}

// readAdminPassword reads the password from stdin, or prompts twice on the
// terminal without echo.
func readAdminPassword(cmd *cobra.Command, fromStdin bool) (string, error) {
	if fromStdin {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("reading password: %w", err)
		}
		password := strings.TrimRight(line, "\r\n")
		if password == "" {
			return "", errors.New("password is required")
		}
		return password, nil
	}

	prompt := func(label string) (string, error) {
		fmt.Fprint(cmd.ErrOrStderr(), label)
		pw, err := readPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(pw), nil
	}

	password, err := prompt("Password: ")
	if err != nil {
		return "", err
	}
	confirm, err := prompt("Confirm password: ")
	if err != nil {
		return "", err
	}
	if password != confirm {
		return "", errors.New("passwords do not match")
	}
	return password, nil
}
