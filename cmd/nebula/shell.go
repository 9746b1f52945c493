package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/c-bata/go-prompt"

	"p2p-nebula/nebula/node"
	"p2p-nebula/nebula/pkg/transfer"
)

type shell struct {
	ctx  context.Context
	node *node.Node
}

func newShell(ctx context.Context, n *node.Node) *prompt.Prompt {
	s := &shell{ctx: ctx, node: n}
	fmt.Println("Nebula Interactive Shell")
	fmt.Println("Type 'help' for commands.")

	return prompt.New(
		s.execute,
		completer,
		prompt.OptionPrefix(fmt.Sprintf("nebula:%d> ", n.Port())),
		prompt.OptionTitle("Nebula Node"),
		prompt.OptionSetExitCheckerOnInput(func(in string, breakline bool) bool {
			cmd := strings.TrimSpace(in)
			return breakline && (cmd == "exit" || cmd == "quit")
		}),
	)
}

// splitCommand returns the command word and the rest of the line as one
// argument, so paths with spaces survive.
func splitCommand(in string) (cmd, arg string) {
	cmd, arg, _ = strings.Cut(strings.TrimSpace(in), " ")
	return strings.ToLower(cmd), strings.TrimSpace(arg)
}

func (s *shell) execute(in string) {
	cmd, arg := splitCommand(in)
	if cmd == "" {
		return
	}

	switch cmd {
	case "exit", "quit":
		fmt.Println("Stopping node...")
	case "add":
		if arg == "" {
			fmt.Println("Usage: add <file_path>")
			return
		}
		id, err := s.node.AddFile(arg)
		if err != nil {
			fmt.Printf("Error adding file: %v\n", err)
			return
		}
		fmt.Printf("File added with ID: %s\n", id)
	case "search":
		if arg == "" {
			fmt.Println("Usage: search <file_id|name>")
			return
		}
		s.search(arg)
	case "peers":
		peers := s.node.Peers()
		if len(peers) == 0 {
			fmt.Println("No known peers.")
			return
		}
		fmt.Println("Known peers:")
		for _, p := range peers {
			fmt.Println("- " + p.String())
		}
	case "files":
		files := s.node.Files()
		if len(files) == 0 {
			fmt.Println("No files stored.")
			return
		}
		for _, f := range files {
			fmt.Printf("%s  %-24s %10s  %s\n", f.ID, f.Name, formatBytes(float64(f.Size)), f.AddedAt.Format(time.DateTime))
		}
	case "status":
		stats := s.node.PoolStats()
		fmt.Printf("Port: %d | Peers: %d | Files: %d | Handlers: %d active, %d done, %d rejected\n",
			s.node.Port(), len(s.node.Peers()), len(s.node.Files()), stats.Active, stats.Completed, stats.Rejected)
	case "help":
		fmt.Println("Available commands:")
		fmt.Println("  add <path>             - Add a local file to the store")
		fmt.Println("  search <id|name>       - Find a file locally or download it from a peer")
		fmt.Println("  peers                  - List known peers")
		fmt.Println("  files                  - List stored files")
		fmt.Println("  status                 - Show node status")
		fmt.Println("  exit                   - Stop node and exit")
	default:
		fmt.Println("Unknown command: " + cmd)
	}
}

func (s *shell) search(term string) {
	progress := &transfer.Progress{}
	renderer := newProgressRenderer(term, progress, true)
	go renderer.Start()

	res, err := s.node.Search(s.ctx, term, progress)
	renderer.StopAndWait(err)
	if err != nil {
		fmt.Printf("Search failed: %v\n", err)
		return
	}
	if res.Local {
		fmt.Printf("Already stored: %s (%s) at %s\n", res.Record.Name, res.Record.ID, res.Record.Path)
		return
	}
	fmt.Printf("Downloaded %s from %s to %s\n", res.Record.Name, res.Peer, res.Record.Path)
}

func completer(d prompt.Document) []prompt.Suggest {
	s := []prompt.Suggest{
		{Text: "add", Description: "Add a file"},
		{Text: "search", Description: "Search and download a file"},
		{Text: "peers", Description: "List known peers"},
		{Text: "files", Description: "List stored files"},
		{Text: "status", Description: "Show node status"},
		{Text: "exit", Description: "Exit the node"},
		{Text: "help", Description: "Show help"},
	}
	return prompt.FilterHasPrefix(s, d.GetWordBeforeCursor(), true)
}
