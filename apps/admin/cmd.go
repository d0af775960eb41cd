package main

import (
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/gigglesedu/giggles/core/progress"
	"github.com/gigglesedu/giggles/core/user"
	"github.com/gigglesedu/giggles/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword      // mockable
	gooseRunFunc     = database.RunMigrations // mockable

	errEmptyPassword = errors.New("password cannot be empty")
)

type commandLine struct {
	db          *sqlx.DB
	engine      string
	usrRepo     user.Repository
	progressSvc progress.Service
}

func (cli *commandLine) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "admin",
		Short:        "Giggles administration commands",
		SilenceUsage: true,
	}
	root.AddCommand(
		cli.addUserCmd(),
		cli.resetPasswordCmd(),
		cli.migrateCmd(),
		cli.recomputeCmd(),
	)
	return root
}

func (cli *commandLine) addUserCmd() *cobra.Command {
	var name, email string
	var isAdmin bool

	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create or update a user. The password is prompted next.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pwd, err := promptPassword(cmd)
			if err != nil {
				return err
			}
			usr, err := cli.addUser(cmd.Context(), name, email, pwd, isAdmin)
			if err != nil {
				return err
			}
			cmd.Printf("user %s saved\n", usr.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "full name of the user")
	cmd.Flags().StringVar(&email, "email", "", "email of the user")
	cmd.Flags().BoolVar(&isAdmin, "admin", false, "grant every admin role")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (cli *commandLine) resetPasswordCmd() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "resetpassword",
		Short: "Reset the password of a user. The password is prompted next.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pwd, err := promptPassword(cmd)
			if err != nil {
				return err
			}
			return cli.resetPassword(cmd.Context(), email, pwd)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email of the user")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (cli *commandLine) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [ARGS...]",
		Short: "Run a goose migration command (up, up-to, down, down-to, redo, reset, status, version)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return gooseRunFunc(cli.db.DB, cli.engine, args[0], args[1:]...)
		},
	}
}

func (cli *commandLine) recomputeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recompute",
		Short: "Recompute the course progress of every student",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cnt, err := cli.progressSvc.ReconcileAll(cmd.Context())
			if err != nil {
				return errors.Wrap(err, "recomputing course progress")
			}
			cmd.Printf("%d course progress rows recomputed\n", cnt)
			return nil
		},
	}
}

func promptPassword(cmd *cobra.Command) (string, error) {
	cmd.Print("Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	cmd.Println()
	if err != nil {
		return "", errors.Wrap(err, "reading password")
	}
	if len(pwd) == 0 {
		return "", errEmptyPassword
	}
	return string(pwd), nil
}
