package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/oiclass/oiclass/core/integration"
)

func (cli *commandLine) newLuoguCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "luogu",
		Short: "Luogu integration",
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			return errHelp
		},
	}

	var kpID string
	importCmd := &cobra.Command{
		Use:   "import-problem PID",
		Short: "Import a Luogu problem into a knowledge point",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, created, err := cli.integrationSvc.ImportLuoguProblem(cmd.Context(), cliActor, integration.ImportProblem{
				KnowledgePointID: kpID,
				PID:              args[0],
			})
			if err != nil {
				return err
			}
			action := "updated"
			if created {
				action = "created"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %q (id %s)\n", action, p.SourceID, p.Title, p.ID)
			return nil
		},
	}
	importCmd.Flags().StringVarP(&kpID, "knowledge-point", "k", "", "Target knowledge point ID")
	_ = importCmd.MarkFlagRequired("knowledge-point")

	syncCmd := &cobra.Command{
		Use:   "sync STUDENT_ID",
		Short: "Mark a student's passed Luogu problems as solved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := cli.integrationSvc.SyncLuogu(cmd.Context(), cliActor, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "matched %d, updated %d, unknown %d\n", res.Matched, res.Updated, len(res.Unknown))
			return nil
		},
	}

	cmd.AddCommand(importCmd, syncCmd)
	return cmd
}

func (cli *commandLine) newGespCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gesp",
		Short: "GESP integration",
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			return errHelp
		},
	}

	var candidateID string
	syncCmd := &cobra.Command{
		Use:   "sync STUDENT_ID",
		Short: "Fetch and store a student's GESP exam records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := cli.integrationSvc.SyncGesp(cmd.Context(), cliActor, args[0], integration.SyncGesp{CandidateID: candidateID})
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(records))
			for _, r := range records {
				passed := "no"
				if r.Passed {
					passed = "yes"
				}
				rows = append(rows, []string{
					r.ExamDate, strconv.Itoa(r.Level), r.Language, strconv.FormatFloat(r.Score, 'f', -1, 64), passed,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Exam date", "Level", "Language", "Score", "Passed"}, rows, 1, 3))
			return nil
		},
	}
	syncCmd.Flags().StringVarP(&candidateID, "candidate", "c", "", "GESP candidate ID")
	_ = syncCmd.MarkFlagRequired("candidate")

	cmd.AddCommand(syncCmd)
	return cmd
}
