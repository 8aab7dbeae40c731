package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/oiclass/oiclass/core/integration"
	"github.com/oiclass/oiclass/core/user"
	"github.com/oiclass/oiclass/core/video"
)

var (
	readPasswordFunc = term.ReadPassword // mockable
	gooseRunFunc     = goose.RunContext  // mockable

	errHelp = errors.New("help provided")

	// cliActor is who the CLI acts as when a service checks permissions.
	cliActor = user.User{Username: "admin-cli", Roles: []string{user.RoleAdmin}}
)

type commandLine struct {
	db             *sqlx.DB
	usrRepo        user.Repository
	videoRepo      video.Repository
	integrationSvc integration.Service
	out            io.Writer
}

// run executes args, program name included.
func (cli *commandLine) run(args []string) error {
	root := cli.newRootCommand()
	if len(args) > 0 {
		args = args[1:]
	}
	root.SetArgs(args)
	if cli.out != nil {
		root.SetOut(cli.out)
	}
	return root.ExecuteContext(context.Background())
}

func (cli *commandLine) newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "OIClass administration",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			return errHelp
		},
	}

	root.AddCommand(cli.newMigrateCommand())
	root.AddCommand(cli.newAddUserCommand())
	root.AddCommand(cli.newResetPasswordCommand())
	root.AddCommand(cli.newUsersCommand())
	root.AddCommand(cli.newLuoguCommand())
	root.AddCommand(cli.newGespCommand())
	root.AddCommand(cli.newVideosCommand())
	return root
}

// promptPassword reads a password from the terminal without echoing it.
func promptPassword(cmd *cobra.Command, label string) (string, error) {
	fmt.Fprint(cmd.OutOrStdout(), label)
	pwd, err := readPasswordFunc(int(os.Stdin.Fd()))
	fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}
