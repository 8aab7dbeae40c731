package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/oiclass/oiclass/core"
	"github.com/oiclass/oiclass/core/user"
)

func (cli *commandLine) newUsersCommand() *cobra.Command {
	var (
		search string
		roles  []string
	)
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := &user.QueryFilter{Search: search, Roles: roles}
			filter.Clean()
			users, err := cli.usrRepo.QueryUsers(cmd.Context(), filter, []core.DBOrdering{{Field: "username", Ascending: true}})
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(users))
			for _, usr := range users {
				active := "yes"
				if !usr.IsActive {
					active = "no"
				}
				lastLogin := "never"
				if !usr.LastLogin.IsZero() {
					lastLogin = humanize.Time(usr.LastLogin)
				}
				rows = append(rows, []string{usr.ID, usr.Username, usr.Name, usr.Email, strings.Join(usr.Roles, " "), active, lastLogin})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "Username", "Name", "Email", "Roles", "Active", "Last login"}, rows))
			fmt.Fprintf(cmd.OutOrStdout(), "%s users\n", humanize.Comma(int64(len(users))))
			return nil
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "Match name, username or email")
	cmd.Flags().StringSliceVarP(&roles, "role", "r", nil, "Filter by role prefix (repeatable)")
	return cmd
}
