package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/ghmirror/pkg/client"
	"github.com/cuemby/ghmirror/pkg/types"
)

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Fetch mirrored resources",
	Long: `Fetch mirrored resources from a running mirror.

Examples:
  # Fetch an organization document
  ghmirror get organization eclipse --key my-api-key

  # Fetch a user-owned repository
  ghmirror get repository jgwest rogue-cloud --user --key my-api-key

  # Fetch a block of issues
  ghmirror get issues eclipse che --start 1 --end 50 --key my-api-key`,
}

func init() {
	getCmd.AddCommand(getOrganizationCmd)
	getCmd.AddCommand(getUserRepositoriesCmd)
	getCmd.AddCommand(getRepositoryCmd)
	getCmd.AddCommand(getIssueCmd)
	getCmd.AddCommand(getIssuesCmd)
	getCmd.AddCommand(getUserCmd)

	addClientFlags(getOrganizationCmd)
	addClientFlags(getUserRepositoriesCmd)
	addClientFlags(getRepositoryCmd)
	addClientFlags(getIssueCmd)
	addClientFlags(getIssuesCmd)
	addClientFlags(getUserCmd)

	getRepositoryCmd.Flags().Bool("user", false, "Owner is a user account, not an organization")
	getIssueCmd.Flags().Bool("user", false, "Owner is a user account, not an organization")
	getIssuesCmd.Flags().Bool("user", false, "Owner is a user account, not an organization")
	getIssuesCmd.Flags().Int("start", 0, "First issue number of the range")
	getIssuesCmd.Flags().Int("end", 0, "Last issue number of the range (inclusive)")
	getIssuesCmd.Flags().IntSlice("numbers", nil, "Explicit issue numbers to fetch")

	addClientFlags(changesCmd)
	changesCmd.Flags().Int64("since", 0, "Only events at or after this epoch-millisecond timestamp")
	changesCmd.Flags().Duration("last", 0, "Only events from the last duration, for example 1h")

	addClientFlags(scanCmd)

	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(changesCmd)
	rootCmd.AddCommand(scanCmd)
}

var getOrganizationCmd = &cobra.Command{
	Use:   "organization NAME",
	Short: "Fetch a mirrored organization",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := mirrorClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		org, found, err := c.GetOrganization(args[0])
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("organization %q is not mirrored", args[0])
		}
		return printJSON(org)
	},
}

var getUserRepositoriesCmd = &cobra.Command{
	Use:   "user-repositories NAME",
	Short: "Fetch a user account's repository list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := mirrorClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		userRepos, found, err := c.GetUserRepositories(args[0])
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("user %q is not mirrored", args[0])
		}
		return printJSON(userRepos)
	},
}

var getRepositoryCmd = &cobra.Command{
	Use:   "repository OWNER NAME",
	Short: "Fetch a mirrored repository",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := mirrorClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		repo, found, err := c.GetRepository(ownerArg(cmd, args[0]), args[1])
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("repository %s/%s is not mirrored", args[0], args[1])
		}
		return printJSON(repo)
	},
}

var getIssueCmd = &cobra.Command{
	Use:   "issue OWNER REPO NUMBER",
	Short: "Fetch a mirrored issue",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		number, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("issue number %q is not a number", args[2])
		}

		c, err := mirrorClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		issue, found, err := c.GetIssue(ownerArg(cmd, args[0]), args[1], number)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("issue %s/%s#%d is not mirrored", args[0], args[1], number)
		}
		return printJSON(issue)
	},
}

var getIssuesCmd = &cobra.Command{
	Use:   "issues OWNER REPO",
	Short: "Fetch a block of mirrored issues",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		numbers, _ := cmd.Flags().GetIntSlice("numbers")
		start, _ := cmd.Flags().GetInt("start")
		end, _ := cmd.Flags().GetInt("end")

		c, err := mirrorClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		owner := ownerArg(cmd, args[0])

		var bulk *types.BulkIssues
		switch {
		case len(numbers) > 0:
			bulk, err = c.GetBulkIssuesList(owner, args[1], numbers)
		case start > 0 && end > 0:
			bulk, err = c.GetBulkIssuesRange(owner, args[1], start, end)
		default:
			return fmt.Errorf("either --numbers or both --start and --end are required")
		}
		if err != nil {
			return err
		}
		return printJSON(bulk)
	},
}

var getUserCmd = &cobra.Command{
	Use:   "user LOGIN",
	Short: "Fetch a mirrored user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := mirrorClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		user, found, err := c.GetUser(args[0])
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("user %q is not mirrored", args[0])
		}
		return printJSON(user)
	},
}

var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "List recent issue changes on the mirror",
	RunE: func(cmd *cobra.Command, args []string) error {
		since, _ := cmd.Flags().GetInt64("since")
		if last, _ := cmd.Flags().GetDuration("last"); last > 0 {
			since = time.Now().Add(-last).UnixMilli()
		}

		c, err := mirrorClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		events, err := c.ResourceChangeEvents(since)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Println("No changes recorded.")
			return nil
		}
		for _, event := range events {
			fmt.Printf("%s  %s/%s #%d\n",
				time.UnixMilli(event.Time).Format(time.RFC3339),
				event.Owner, event.Repo, event.IssueNumber)
		}
		return nil
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Trigger a full scan on the mirror",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := mirrorClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.TriggerFullScan(); err != nil {
			return err
		}
		fmt.Println("✓ Full scan scheduled")
		return nil
	},
}

// Helper functions
func addClientFlags(cmd *cobra.Command) {
	cmd.Flags().String("server", "http://localhost:8080", "Mirror server URL")
	cmd.Flags().String("key", "", "Preshared key for the read API")
	cmd.Flags().Bool("insecure", false, "Skip TLS certificate verification")
}

func mirrorClient(cmd *cobra.Command) (*client.Client, error) {
	server, _ := cmd.Flags().GetString("server")
	key, _ := cmd.Flags().GetString("key")
	insecure, _ := cmd.Flags().GetBool("insecure")

	if insecure {
		return client.NewInsecureClient(server, key)
	}
	return client.NewClient(server, key)
}

func ownerArg(cmd *cobra.Command, name string) types.Owner {
	if asUser, _ := cmd.Flags().GetBool("user"); asUser {
		return types.UserOwner(name)
	}
	return types.OrgOwner(name)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
