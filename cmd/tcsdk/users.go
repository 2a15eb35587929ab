package main

import (
	"context"
	"fmt"

	"transferchain/go-sdk/pkg/models"
	"transferchain/go-sdk/pkg/transferchain"

	"github.com/spf13/cobra"
)

// userSummary is what the CLI prints for a user; keys stay in the store.
type userSummary struct {
	ID            string `json:"id"`
	ParentUserID  string `json:"parent_user_id"`
	Master        bool   `json:"master"`
	MasterAddress string `json:"master_address"`
	Addresses     int    `json:"addresses"`
}

func summarize(u models.User) userSummary {
	return userSummary{
		ID:            u.ID,
		ParentUserID:  u.ParentUserID,
		Master:        u.Master,
		MasterAddress: u.MasterAddress.Key.Address,
		Addresses:     len(u.Addresses),
	}
}

func summarizeAll(users []models.User) []userSummary {
	out := make([]userSummary, 0, len(users))
	for _, u := range users {
		out = append(out, summarize(u))
	}
	return out
}

func newUserCommand(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage the account's users and their addresses",
	}

	master := &cobra.Command{
		Use:   "master",
		Short: "Create the master user, or print it if it already exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, flags, func(ctx context.Context, c *transferchain.Client) error {
				u, err := c.AddMasterUser(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), summarize(u))
			})
		},
	}

	add := &cobra.Command{
		Use:   "add",
		Short: "Create a sub-user under the master user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, flags, func(ctx context.Context, c *transferchain.Client) error {
				u, err := c.AddUser(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), summarize(u))
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, flags, func(_ context.Context, c *transferchain.Client) error {
				users, err := c.LoadUsers()
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), summarizeAll(users))
			})
		},
	}

	var addressCount int
	addresses := &cobra.Command{
		Use:   "addresses <user-id>",
		Short: "Print disposable addresses of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, flags, func(_ context.Context, c *transferchain.Client) error {
				u, err := c.GetUser(args[0])
				if err != nil {
					return err
				}
				for i, a := range u.Addresses {
					if i == 0 {
						continue
					}
					if addressCount > 0 && i > addressCount {
						break
					}
					fmt.Fprintln(cmd.OutOrStdout(), a.Key.Address)
				}
				return nil
			})
		},
	}
	addresses.Flags().IntVar(&addressCount, "count", 0, "print at most this many addresses (0 prints all)")

	restore := &cobra.Command{
		Use:   "restore",
		Short: "Rebuild the master user and every sub-user from the chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, flags, func(ctx context.Context, c *transferchain.Client) error {
				master, err := c.RestoreMasterUser(ctx)
				if err != nil {
					return err
				}
				subs, err := c.RestoreSubUsers(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), summarizeAll(append([]models.User{master}, subs...)))
			})
		},
	}

	cmd.AddCommand(master, add, list, addresses, restore)
	return cmd
}
