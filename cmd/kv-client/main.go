// Command kv-client is an interactive REPL against a single backend's
// auxiliary key-value/key-list RPCs — useful for operating a live ring
// by hand.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"tribfs"
	"tribfs/internal/transport"
)

var (
	red   = lipgloss.Color("204")
	dim   = lipgloss.Color("243")
	faint = lipgloss.Color("238")
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, lipgloss.NewStyle().Foreground(red).Render(err.Error()))
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "kv-client",
		Short: "Interactive client for a backend's key-value store",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := transport.Dial(address)
			if err != nil {
				return fmt.Errorf("dial %s: %w", address, err)
			}
			defer client.Close()

			fmt.Printf("connected to %s; type \"help\" for commands, \"quit\" to exit\n", address)
			return repl(client)
		},
	}

	cmd.Flags().StringVarP(&address, "address", "a", "127.0.0.1:9001", "Backend address")
	return cmd
}

func repl(client *transport.Client) error {
	scanner := bufio.NewScanner(os.Stdin)
	ctx := context.Background()
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd, args := fields[0], fields[1:]

		switch cmd {
		case "quit", "exit":
			return nil
		case "help":
			printHelp()
		default:
			if err := dispatch(ctx, client, cmd, args); err != nil {
				fmt.Println(errorStyle().Render(err.Error()))
			}
		}
	}
}

func dispatch(ctx context.Context, client *transport.Client, cmd string, args []string) error {
	switch cmd {
	case "get":
		if len(args) != 1 {
			return usage("get <key>")
		}
		val, ok, err := client.Get(ctx, args[0])
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println(mutedStyle().Render("(not found)"))
			return nil
		}
		fmt.Println(val)
	case "set":
		if len(args) != 2 {
			return usage("set <key> <value>")
		}
		if err := client.Set(ctx, args[0], args[1]); err != nil {
			return err
		}
		fmt.Println(successStyle().Render("ok"))
	case "keys":
		pattern := patternFromArgs(args)
		keys, err := client.Keys(ctx, pattern)
		if err != nil {
			return err
		}
		printList("key", keys)
	case "list-get":
		if len(args) != 1 {
			return usage("list-get <key>")
		}
		vals, err := client.ListGet(ctx, args[0])
		if err != nil {
			return err
		}
		printList("value", vals)
	case "list-append":
		if len(args) != 2 {
			return usage("list-append <key> <value>")
		}
		if err := client.ListAppend(ctx, args[0], args[1]); err != nil {
			return err
		}
		fmt.Println(successStyle().Render("ok"))
	case "list-remove":
		if len(args) != 2 {
			return usage("list-remove <key> <value>")
		}
		if err := client.ListRemove(ctx, args[0], args[1]); err != nil {
			return err
		}
		fmt.Println(successStyle().Render("ok"))
	case "list-keys":
		pattern := patternFromArgs(args)
		keys, err := client.ListKeys(ctx, pattern)
		if err != nil {
			return err
		}
		printList("key", keys)
	case "clock":
		var atLeast uint64
		if len(args) == 1 {
			if _, err := fmt.Sscanf(args[0], "%d", &atLeast); err != nil {
				return usage("clock [at_least]")
			}
		}
		val, err := client.Clock(ctx, atLeast)
		if err != nil {
			return err
		}
		fmt.Println(val)
	default:
		return fmt.Errorf("unknown command %q (type \"help\")", cmd)
	}
	return nil
}

func patternFromArgs(args []string) tribfs.Pattern {
	if len(args) == 0 {
		return tribfs.Pattern{}
	}
	return tribfs.Pattern{Prefix: args[0]}
}

func printList(column string, values tribfs.List) {
	if len(values) == 0 {
		fmt.Println(mutedStyle().Render("(empty)"))
		return
	}
	rows := make([][]string, len(values))
	for i, v := range values {
		rows[i] = []string{v}
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(faint)).
		Headers(column).
		Rows(rows...)
	fmt.Println(t.String())
}

func printHelp() {
	fmt.Println(strings.TrimSpace(`
get <key>                    fetch a string value
set <key> <value>            store a string value
keys [prefix]                list string keys
list-get <key>                fetch an ordered list value
list-append <key> <value>    append a value to a list
list-remove <key> <value>    remove a value from a list
list-keys [prefix]           list keys holding a list value
clock [at_least]             read/bump the backend's Lamport clock
quit                          exit
`))
}

func usage(u string) error {
	return fmt.Errorf("usage: %s", u)
}

func successStyle() lipgloss.Style { return lipgloss.NewStyle().Foreground(lipgloss.Color("76")) }
func errorStyle() lipgloss.Style   { return lipgloss.NewStyle().Foreground(red) }
func mutedStyle() lipgloss.Style   { return lipgloss.NewStyle().Foreground(dim) }
