package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/smallbiznis/invites/pkg/sdk"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "INVITES"

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:          "invitesctl",
		Short:        "invitesctl manages invite codes through the invites API",
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	flags := root.PersistentFlags()
	flags.String("base-url", "http://localhost:8000", "API base URL (env INVITES_BASE_URL)")
	flags.String("api-key", "", "shared secret sent as X-Api-Key (env INVITES_API_KEY)")
	flags.Duration("timeout", 30*time.Second, "request timeout (env INVITES_TIMEOUT)")
	_ = v.BindPFlags(flags)

	newClient := func() *sdk.Client {
		return sdk.New(v.GetString("base-url"),
			sdk.WithAPIKey(v.GetString("api-key")),
			sdk.WithTimeout(v.GetDuration("timeout")),
			sdk.WithUserAgent("invitesctl"),
		)
	}

	root.AddCommand(
		newListCmd(newClient),
		newCreateCmd(newClient),
		newGetCmd(newClient),
		newDeleteCmd(newClient),
		newDeleteAllCmd(newClient),
		newReindexCmd(newClient),
		newStatsCmd(newClient),
	)
	return root
}

type clientFactory func() *sdk.Client

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newListCmd(newClient clientFactory) *cobra.Command {
	var (
		limit  int
		cursor string
		oldest bool
		all    bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List invites, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			params := sdk.ListParams{Cursor: cursor}
			if cmd.Flags().Changed("limit") {
				params.Limit = sdk.Int(limit)
			}
			if oldest {
				params.Reverse = sdk.Bool(false)
			}

			if !all {
				page, err := client.List(cmd.Context(), params)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), page)
			}

			items := []sdk.Invite{}
			for {
				page, err := client.List(cmd.Context(), params)
				if err != nil {
					return err
				}
				items = append(items, page.Items...)
				if page.Cursor == "" {
					break
				}
				params.Cursor = page.Cursor
			}
			return printJSON(cmd.OutOrStdout(), items)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "page size (1-100)")
	cmd.Flags().StringVar(&cursor, "cursor", "", "cursor returned by a previous page")
	cmd.Flags().BoolVar(&oldest, "oldest-first", false, "order by creation time ascending")
	cmd.Flags().BoolVar(&all, "all", false, "follow cursors until every invite is listed")
	return cmd
}

func newCreateCmd(newClient clientFactory) *cobra.Command {
	var (
		size     int
		alphabet string
		count    int
	)
	cmd := &cobra.Command{
		Use:   "create [code]",
		Short: "Create an invite with the given code, or generate one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := sdk.CreateParams{Alphabet: alphabet}
			if len(args) == 1 {
				if count != 1 {
					return fmt.Errorf("--count cannot be combined with an explicit code")
				}
				params.Code = sdk.String(args[0])
			}
			if cmd.Flags().Changed("size") {
				params.Size = sdk.Int(size)
			}

			client := newClient()
			created := make([]*sdk.Invite, 0, count)
			for i := 0; i < count; i++ {
				invite, err := client.Create(cmd.Context(), params)
				if err != nil {
					return err
				}
				created = append(created, invite)
			}
			if len(created) == 1 {
				return printJSON(cmd.OutOrStdout(), created[0])
			}
			return printJSON(cmd.OutOrStdout(), created)
		},
	}
	cmd.Flags().IntVar(&size, "size", 21, "generated code length")
	cmd.Flags().StringVar(&alphabet, "alphabet", "", "characters to generate codes from")
	cmd.Flags().IntVar(&count, "count", 1, "number of codes to generate")
	return cmd
}

func newGetCmd(newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "get <code>",
		Short: "Show one invite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			invite, err := newClient().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), invite)
		},
	}
}

func newDeleteCmd(newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <code>...",
		Short: "Delete one or more invites",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			if len(args) == 1 {
				return client.Delete(cmd.Context(), args[0])
			}
			return client.DeleteMany(cmd.Context(), args)
		},
	}
}

func newDeleteAllCmd(newClient clientFactory) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete-all",
		Short: "Delete every invite",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to delete all invites without --yes")
			}
			return newClient().DeleteAll(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion of all invites")
	return cmd
}

func newReindexCmd(newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the creation-time index",
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := newClient().Reindex(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), msg)
			return err
		},
	}
}

func newStatsCmd(newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Compare primary records with the creation-time index",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := newClient().IndexStats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
}
