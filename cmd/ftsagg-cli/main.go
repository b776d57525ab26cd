// Command ftsagg-cli is a debug client for ftsaggd: it sends one
// SEARCH/AGGREGATE/HYBRID/CURSOR command over HTTP and renders the reply
// as a table. Grounded on cmd/agent/main.go's flag.String/flag.Parse
// shape and initialize.go's pterm.DefaultTable.WithData(pterm.TableData(
// ...)).Render() idiom for tabular stdout.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pterm/pterm"
)

func main() {
	addr := flag.String("addr", "http://127.0.0.1:8080", "ftsaggd base URL")
	verb := flag.String("cmd", "search", "search | aggregate | hybrid | cursor")
	argvFlag := flag.String("argv", "", "space-separated argv tokens, index name first (cursor: READ|DEL, then index)")
	timeout := flag.Duration("timeout", 10*time.Second, "HTTP client timeout")
	flag.Parse()

	argv := strings.Fields(*argvFlag)
	if len(argv) == 0 {
		fmt.Fprintln(os.Stderr, `usage: ftsagg-cli -cmd search -argv "myIdx @title:foo"`)
		os.Exit(2)
	}

	reply, err := run(*addr, *verb, argv, *timeout)
	if err != nil {
		pterm.Error.Printf("%v\n", err)
		os.Exit(1)
	}
	render(reply)
}

type cmdReply struct {
	Rows     []rowReply `json:"rows"`
	CursorID uint64     `json:"cursorId,omitempty"`
	Error    string     `json:"error,omitempty"`
}

type rowReply struct {
	DocID  uint64         `json:"docId"`
	Score  float64        `json:"score"`
	Fields map[string]any `json:"fields,omitempty"`
}

func run(addr, verb string, argv []string, timeout time.Duration) (*cmdReply, error) {
	endpoint, err := endpointFor(addr, verb)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(struct {
		Argv []string `json:"argv"`
	}{Argv: argv})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	client := &http.Client{Timeout: timeout}
	resp, err := client.Post(endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request to %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	var reply cmdReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	if reply.Error != "" {
		return &reply, fmt.Errorf("%s", reply.Error)
	}
	return &reply, nil
}

func endpointFor(addr, verb string) (string, error) {
	switch strings.ToLower(verb) {
	case "search":
		return addr + "/cmd/search", nil
	case "aggregate":
		return addr + "/cmd/aggregate", nil
	case "hybrid":
		return addr + "/cmd/hybrid", nil
	case "cursor":
		return addr + "/cmd/cursor", nil
	default:
		return "", fmt.Errorf("unknown -cmd %q, want search|aggregate|hybrid|cursor", verb)
	}
}

// render prints a reply's rows as a table: one column per field name seen
// across all rows, plus docId and score, matching initialize.go's
// pterm.DefaultTable usage for ad hoc tabular output.
func render(reply *cmdReply) {
	if reply == nil || len(reply.Rows) == 0 {
		pterm.Info.Println("no rows")
		return
	}

	var cols []string
	seen := map[string]bool{}
	for _, r := range reply.Rows {
		for k := range r.Fields {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}

	header := append([]string{"docId", "score"}, cols...)
	tableData := [][]string{header}
	for _, r := range reply.Rows {
		row := make([]string, 0, len(header))
		row = append(row, fmt.Sprintf("%d", r.DocID), fmt.Sprintf("%.4f", r.Score))
		for _, c := range cols {
			row = append(row, fmt.Sprintf("%v", r.Fields[c]))
		}
		tableData = append(tableData, row)
	}

	pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData(tableData)).Render()
	if reply.CursorID != 0 {
		pterm.Info.Printf("cursor %d still open\n", reply.CursorID)
	}
}
