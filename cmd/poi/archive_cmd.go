package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/giovannypietro/poi/pkg/store"
)

func runArchiveCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("archive", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		storePath string
		getID     string
		agentID   string
		limit     int
	)

	cmd.StringVar(&storePath, "store", "", "SQLite archive file (REQUIRED)")
	cmd.StringVar(&getID, "get", "", "Print the archived receipt with this id")
	cmd.StringVar(&agentID, "agent", "", "List archived receipts for this agent, newest first")
	cmd.IntVar(&limit, "limit", 20, "Maximum receipts to list with -agent")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if storePath == "" {
		_, _ = fmt.Fprintln(stderr, "Error: -store is required")
		return 2
	}
	if (getID == "") == (agentID == "") {
		_, _ = fmt.Fprintln(stderr, "Error: exactly one of -get or -agent is required")
		return 2
	}

	archive, err := store.Open(storePath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer func() { _ = archive.Close() }()

	ctx := context.Background()

	if getID != "" {
		r, err := archive.GetByID(ctx, getID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				_, _ = fmt.Fprintf(stderr, "Error: no archived receipt %s\n", getID)
				return 1
			}
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		return printJSON(stdout, stderr, r)
	}

	receipts, err := archive.ListByAgent(ctx, agentID, limit)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	return printJSON(stdout, stderr, receipts)
}

func printJSON(stdout, stderr io.Writer, v any) int {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	_, _ = fmt.Fprintln(stdout, string(body))
	return 0
}
