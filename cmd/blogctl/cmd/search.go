package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jrsteele09/go-blog-client/blog"
)

var clearHistory bool

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search posts and tags",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		res, err := a.service.Search(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		writePosts(out, res.Posts)
		if len(res.Tags) > 0 {
			names := make([]string, len(res.Tags))
			for i, t := range res.Tags {
				names[i] = fmt.Sprintf("%s (%d)", t.Name, t.Count)
			}
			fmt.Fprintf(out, "\ntags: %s\n", strings.Join(names, ", "))
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent searches",
	RunE: func(cmd *cobra.Command, _ []string) error {
		history, err := blog.NewSearchHistory(blog.WithHistoryFile(cfg.GetSearchHistoryFile()))
		if err != nil {
			return err
		}
		if clearHistory {
			return history.Clear()
		}
		for _, e := range history.Entries() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", e.SearchedAt.Local().Format("2006-01-02 15:04"), e.Query)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().BoolVar(&clearHistory, "clear", false, "forget all recent searches")

	rootCmd.AddCommand(searchCmd, historyCmd)
}
