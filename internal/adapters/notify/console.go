package notify

// console.go: operator-facing execution log. Keeps the most recent
// execution results and renders them as a table on demand (shutdown, or the
// -summary flag). Clients get the websocket stream; this is for the terminal.

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/polycopy/engine/internal/domain"
)

const consoleHistory = 50

// Console implements ports.Publisher, logging executions to a terminal.
type Console struct {
	out     io.Writer
	mu      sync.Mutex
	results []domain.ExecutionResult
}

// NewConsole creates a console log writing to stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter creates a console log for tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// Publish records execution outcomes and prints a one-liner per event.
func (c *Console) Publish(event domain.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch event.Kind {
	case domain.EventTradeDetected:
		if event.Trade != nil {
			fmt.Fprintf(c.out, "[%s] detected %s %s %.2f @ %.3f (%s) for user %s\n",
				event.At.Format("15:04:05"), event.Trade.Side, event.Trade.Outcome,
				event.Trade.Size, event.Trade.Price, event.Wallet, event.UserID)
		}
	case domain.EventTradeExecuted, domain.EventTradeFailed:
		if event.Result == nil {
			return
		}
		c.results = append(c.results, *event.Result)
		if len(c.results) > consoleHistory {
			c.results = c.results[len(c.results)-consoleHistory:]
		}
		r := event.Result
		if r.Success {
			fmt.Fprintf(c.out, "[%s] executed %.2f @ %.3f on %q for user %s (order %s)\n",
				event.At.Format("15:04:05"), r.Size, r.Price, r.Title, r.UserID, r.OrderID)
		} else {
			fmt.Fprintf(c.out, "[%s] execution failed for user %s: %s (%s)\n",
				event.At.Format("15:04:05"), r.UserID, r.FailureKind, r.Error)
		}
	}
}

// PrintSummary renders the retained execution results as a table.
func (c *Console) PrintSummary() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.results) == 0 {
		fmt.Fprintf(c.out, "[%s] no executions this session\n", time.Now().Format("15:04:05"))
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Time", "User", "Market", "Outcome", "Size", "Price", "Status", "Detail")

	for _, r := range c.results {
		status := "OK"
		detail := r.OrderID
		if !r.Success {
			status = string(r.FailureKind)
			detail = r.Error
		}
		table.Append(
			r.ExecutedAt.Format("15:04:05"),
			r.UserID,
			compactName(r.Title, 30),
			r.Outcome,
			fmt.Sprintf("%.2f", r.Size),
			fmt.Sprintf("%.3f", r.Price),
			status,
			compactName(detail, 40),
		)
	}
	table.Render()
}

// compactName truncates long labels for table cells.
func compactName(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
