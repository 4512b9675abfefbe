package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/libraryhub/backend/internal/models"
	"github.com/libraryhub/backend/internal/services"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const minPasswordLength = 8

func newUserCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}
	cmd.AddCommand(newUserCreateCommand())
	return cmd
}

func newUserCreateCommand() *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:   "create <username>",
		Short: "Create an account, prompting for the password",
		Long: "Create an account. Self-registration only ever creates members, " +
			"so administrators are created here. The password is read without echo " +
			"from a terminal, or as the first line of stdin otherwise.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if role != models.RoleAdmin && role != models.RoleUser {
				return errors.Errorf("Invalid role %q, want %s or %s", role, models.RoleAdmin, models.RoleUser)
			}

			password, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			db, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			user, err := services.NewAuthService(db, nil).CreateUser(ctx, args[0], password, role)
			if errors.Is(err, services.ErrUsernameTaken) {
				return errors.Errorf("Username %q is taken", strings.ToLower(args[0]))
			}
			if err != nil {
				return errors.Wrap(err, "Cannot create user")
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Created %s %q with ID %d\n", user.Role, user.Username, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", models.RoleAdmin, "account role (admin or user)")
	return cmd
}

// readPassword prompts twice with masking on a terminal and reads a single
// line from anything else
func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Password: ")
		first, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", errors.Wrap(err, "Cannot read password")
		}
		fmt.Fprint(prompt, "Repeat password: ")
		second, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", errors.Wrap(err, "Cannot read password")
		}
		if string(first) != string(second) {
			return "", errors.New("Passwords do not match")
		}
		return checkPassword(strings.TrimSpace(string(first)))
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", errors.Wrap(err, "Cannot read password")
	}
	return checkPassword(strings.TrimSpace(line))
}

func checkPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", errors.Errorf("Password must be at least %d characters", minPasswordLength)
	}
	return password, nil
}
