package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/oiclass/oiclass/core"
	"github.com/oiclass/oiclass/core/video"
)

func (cli *commandLine) newVideosCommand() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "videos",
		Short: "List videos with their transcode status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			page := core.Pagination{Page: 1, PageSize: core.MaxPageSize}
			videos, err := cli.videoRepo.QueryVideos(cmd.Context(), video.QueryFilter{Status: status}, nil, &page)
			if err != nil {
				return err
			}

			var total uint64
			rows := make([][]string, 0, len(videos))
			for _, v := range videos {
				total += uint64(v.SourceSize)
				duration := "-"
				if v.Duration > 0 {
					duration = (time.Duration(v.Duration * float64(time.Second))).Round(time.Second).String()
				}
				rows = append(rows, []string{
					v.ID, v.Title, v.Status, duration, humanize.Bytes(uint64(v.SourceSize)), humanize.Time(v.CreatedAt),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "Title", "Status", "Duration", "Size", "Uploaded"}, rows, 3, 4))
			fmt.Fprintf(cmd.OutOrStdout(), "%d videos, %s\n", len(videos), humanize.Bytes(total))
			return nil
		},
	}
	cmd.Flags().StringVarP(&status, "status", "s", "", "processing, ready or failed")
	return cmd
}
