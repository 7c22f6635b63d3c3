package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jrsteele09/go-blog-client/blog"
)

var listOpts blog.ListOptions

var postsCmd = &cobra.Command{
	Use:   "posts",
	Short: "Browse posts",
}

var postsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List posts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		page, err := a.service.ListPosts(cmd.Context(), listOpts)
		if err != nil {
			return err
		}

		writePosts(cmd.OutOrStdout(), page.Items)
		fmt.Fprintf(cmd.OutOrStdout(), "\npage %d, %d of %d posts\n", page.Page, len(page.Items), page.Total)
		return nil
	},
}

var postsGetCmd = &cobra.Command{
	Use:   "get <id|slug>",
	Short: "Show a post with its comments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		p, err := a.service.GetPost(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		comments, err := a.service.ListComments(cmd.Context(), p.ID)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s\n%s\n\n%s\n\n", p.Title, strings.Repeat("=", len(p.Title)), p.Body)
		fmt.Fprintf(out, "tags: %s  likes: %d\n", strings.Join(p.Tags, ", "), p.Likes)
		for _, c := range comments {
			fmt.Fprintf(out, "  - %s: %s\n", c.AuthorID, c.Body)
		}
		return nil
	},
}

func writePosts(w io.Writer, posts []blog.Post) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tTAGS\tLIKES")
	for _, p := range posts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", p.ID, p.Title, strings.Join(p.Tags, ","), p.Likes)
	}
	_ = tw.Flush()
}

func init() {
	postsListCmd.Flags().IntVar(&listOpts.Page, "page", 1, "page number")
	postsListCmd.Flags().IntVar(&listOpts.Limit, "limit", 10, "posts per page")
	postsListCmd.Flags().StringVar(&listOpts.Tag, "tag", "", "only posts with this tag")
	postsListCmd.Flags().StringVar(&listOpts.Category, "category", "", "only posts in this category")
	postsListCmd.Flags().StringVar(&listOpts.AuthorID, "author", "", "only posts by this author ID")

	postsCmd.AddCommand(postsListCmd, postsGetCmd)
	rootCmd.AddCommand(postsCmd)
}
