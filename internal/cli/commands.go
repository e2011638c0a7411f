// Package cli implements the interactive operator console of the
// matchmaking server: live session and queue tables, match history, and
// broadcast notices.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/slonopotamus/Atto/internal/config"
	"github.com/slonopotamus/Atto/internal/events"
	"github.com/slonopotamus/Atto/internal/history"
	"github.com/slonopotamus/Atto/internal/matchmaker"
	"github.com/slonopotamus/Atto/internal/network"
)

// CLI provides an interactive command-line interface.
type CLI struct {
	cfg        *config.Config
	eventBus   *events.EventBus
	matchmaker *matchmaker.Matchmaker
	gameServer *network.Server
	store      *history.Store
}

// NewCLI creates a new CLI handler. The store may be nil when history
// is disabled.
func NewCLI(cfg *config.Config, eventBus *events.EventBus, mm *matchmaker.Matchmaker, gameServer *network.Server, store *history.Store) *CLI {
	return &CLI{
		cfg:        cfg,
		eventBus:   eventBus,
		matchmaker: mm,
		gameServer: gameServer,
		store:      store,
	}
}

// Start begins the interactive CLI loop.
func (c *CLI) Start(ctx context.Context) {
	fmt.Println("\nAtto CLI ready. Type 'help' for available commands.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		fmt.Print("atto> ")
		if !scanner.Scan() {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		if err := c.execute(ctx, cmd, args); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}
}

// execute processes a single CLI command.
func (c *CLI) execute(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "status", "s":
		c.printStatus()
	case "sessions":
		c.printSessions()
	case "queue":
		c.printQueue()
	case "matches":
		return c.printMatches()
	case "notice", "msg":
		if len(args) == 0 {
			return fmt.Errorf("usage: notice <message>")
		}
		c.gameServer.BroadcastNotice(strings.Join(args, " "))
		fmt.Println("Notice sent.")
	case "quit", "exit", "q":
		fmt.Println("Shutting down Atto...")
		c.eventBus.Emit(ctx, events.Event{
			Type:   events.EventShutdown,
			Source: "cli",
		})
	default:
		fmt.Printf("Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return nil
}

// printHelp displays available commands.
func (c *CLI) printHelp() {
	fmt.Println()
	fmt.Println("  status           Show server counters")
	fmt.Println("  sessions         List advertised sessions")
	fmt.Println("  queue            Show matchmaking queue buckets")
	fmt.Println("  matches          Show recent match history")
	fmt.Println("  notice <msg>     Broadcast a notice to all clients")
	fmt.Println("  quit             Shutdown Atto")
	fmt.Println("  help             Show this help message")
	fmt.Println()
}

func (c *CLI) printStatus() {
	fmt.Printf("\n  Uptime:       %s\n", c.gameServer.Uptime().Round(0))
	fmt.Printf("  Connections:  %d\n", c.gameServer.ConnectionCount())
	fmt.Printf("  Sessions:     %d\n", c.matchmaker.SessionCount())
	fmt.Printf("  Queue depth:  %d\n", c.matchmaker.QueueDepth())
	if c.store != nil {
		if count, err := c.store.MatchCount(); err == nil {
			fmt.Printf("  Matches:      %d\n", count)
		}
	}
	fmt.Println()
}

// printSessions displays advertised sessions in a formatted table.
func (c *CLI) printSessions() {
	sessions := c.matchmaker.Sessions()
	if len(sessions) == 0 {
		fmt.Println("No sessions registered.")
		return
	}

	fmt.Println()
	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Owner", "Session ID", "State", "Slots", "Dedicated", "Advertised", "Cooldown"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, s := range sessions {
		tw.Append([]string{
			fmt.Sprintf("%016x", s.OwnerUserID),
			fmt.Sprintf("%016x", s.SessionID),
			s.State,
			fmt.Sprintf("%d/%d", s.OpenSlots, s.TotalSlots),
			fmt.Sprintf("%v", s.IsDedicated),
			fmt.Sprintf("%v", s.Advertised),
			fmt.Sprintf("%.0fs", s.CooldownSecs),
		})
	}

	tw.Render()
	fmt.Println()
}

func (c *CLI) printQueue() {
	buckets := c.matchmaker.QueueSummary()
	if len(buckets) == 0 {
		fmt.Println("Matchmaking queue is empty.")
		return
	}

	fmt.Println()
	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Required Capacity", "Waiting"})
	tw.SetBorder(true)

	for _, b := range buckets {
		tw.Append([]string{
			fmt.Sprintf("%d", b.RequiredCapacity),
			fmt.Sprintf("%d", b.Waiting),
		})
	}

	tw.Render()
	fmt.Println()
}

func (c *CLI) printMatches() error {
	if c.store == nil {
		return fmt.Errorf("match history is disabled")
	}

	matches, err := c.store.RecentMatches(20)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		fmt.Println("No matches recorded.")
		return nil
	}

	fmt.Println()
	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Matched At", "Session ID", "Owner", "Parties", "Players"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, m := range matches {
		tw.Append([]string{
			m.MatchedAt.Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%016x", m.SessionID),
			fmt.Sprintf("%016x", m.OwnerUserID),
			fmt.Sprintf("%d", m.Parties),
			fmt.Sprintf("%d", m.Players),
		})
	}

	tw.Render()
	fmt.Println()
	return nil
}
