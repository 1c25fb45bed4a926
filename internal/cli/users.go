package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/fusion/internal/app"
	"github.com/mesh-intelligence/fusion/internal/auth"
	"github.com/mesh-intelligence/fusion/pkg/types"
)

func newUsersCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Inspect and create user accounts",
	}
	cmd.AddCommand(newUsersListCmd(flags))
	cmd.AddCommand(newUsersGetCmd(flags))
	cmd.AddCommand(newUsersCreateCmd(flags))
	return cmd
}

// withUnit opens the app and runs fn inside one unit of work.
func withUnit(cmd *cobra.Command, flags *rootFlags, fn func(context.Context, *app.App, types.UnitOfWork) error) error {
	dir, err := flags.resolveConfigDir()
	if err != nil {
		return err
	}
	a, err := app.Open(cmd.Context(), dir, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Provider.Within(cmd.Context(), func(u types.UnitOfWork) error {
		return fn(cmd.Context(), a, u)
	})
}

func newUsersListCmd(flags *rootFlags) *cobra.Command {
	var skip, limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users in insertion order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if skip < 0 || limit < 0 {
				return userError(errors.New("--skip and --limit must not be negative"))
			}
			return withUnit(cmd, flags, func(ctx context.Context, _ *app.App, u types.UnitOfWork) error {
				users, err := u.List(ctx, skip, limit)
				if err != nil {
					return err
				}
				if flags.jsonMode {
					if users == nil {
						users = []types.User{}
					}
					return writeJSON(cmd.OutOrStdout(), users)
				}
				return printUsers(cmd.OutOrStdout(), users)
			})
		},
	}
	cmd.Flags().IntVar(&skip, "skip", 0, "number of users to skip")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of users to show")
	return cmd
}

func newUsersGetCmd(flags *rootFlags) *cobra.Command {
	var byEmail bool
	cmd := &cobra.Command{
		Use:   "get <username>",
		Short: "Show one user by username, or by email with --email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			field := types.FieldUsername
			if byEmail {
				field = types.FieldEmail
			}
			return withUnit(cmd, flags, func(ctx context.Context, _ *app.App, u types.UnitOfWork) error {
				user, err := u.FindByField(ctx, field, args[0])
				if err != nil {
					return err
				}
				if user == nil {
					return userError(fmt.Errorf("no user with %s %q", field, args[0]))
				}
				if flags.jsonMode {
					return writeJSON(cmd.OutOrStdout(), user)
				}
				return printUsers(cmd.OutOrStdout(), []types.User{*user})
			})
		},
	}
	cmd.Flags().BoolVar(&byEmail, "email", false, "look the user up by email")
	return cmd
}

func newUsersCreateCmd(flags *rootFlags) *cobra.Command {
	var reg auth.Registration
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a user account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUnit(cmd, flags, func(ctx context.Context, a *app.App, u types.UnitOfWork) error {
				user, err := a.Auth.Register(ctx, u, reg)
				if errors.Is(err, auth.ErrValidation) || errors.Is(err, types.ErrDuplicateUser) {
					return userError(err)
				}
				if err != nil {
					return err
				}
				if flags.jsonMode {
					return writeJSON(cmd.OutOrStdout(), user)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (id %s)\n", user.Username, user.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reg.Email, "email", "", "email address")
	cmd.Flags().StringVar(&reg.Username, "username", "", "username")
	cmd.Flags().StringVar(&reg.Password, "password", "", "password")
	cmd.Flags().StringVar(&reg.FullName, "full-name", "", "full name")
	return cmd
}

func printUsers(w io.Writer, users []types.User) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSERNAME\tEMAIL\tACTIVE\tCREATED")
	for _, u := range users {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", u.ID, u.Username, u.Email, u.IsActive, u.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}
