package main

import (
	"github.com/spf13/cobra"
)

// Command group IDs
const (
	groupServer  = "server"
	groupUtility = "utility"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "quackquery",
		Short: "Ask questions about CSV files over MCP, behind SQL guardrails",
		Long: `quackquery - question answering over uploaded CSV datasets

Uploaded CSV files become PostgreSQL tables. Every statement, whether written
by a user or generated from a question, passes a guardrail gate first: one
read-only SELECT statement, with its LIMIT injected or capped.`,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // main prints the error
	}

	overrides := bindFlags(root.PersistentFlags())

	root.AddGroup(
		&cobra.Group{ID: groupServer, Title: "Server:"},
		&cobra.Group{ID: groupUtility, Title: "Utility:"},
	)

	serve := newServeCmd(overrides)
	serve.GroupID = groupServer
	root.AddCommand(serve)

	for _, cmd := range []*cobra.Command{newCheckCmd(overrides), newIdentCmd(), newVersionCmd()} {
		cmd.GroupID = groupUtility
		root.AddCommand(cmd)
	}

	return root
}
