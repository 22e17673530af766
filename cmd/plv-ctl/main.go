package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/gorilla/websocket"
)

var version = "dev"

func main() {
	addr := flag.String("addr", "http://localhost:8080", "presence-liveview API address")
	token := flag.String("token", "", "bearer token (when the API requires auth)")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "version":
		fmt.Printf("plv-ctl %s\n", version)
	case "status":
		cmdStatus(*addr, *token)
	case "self":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: plv-ctl self <key>")
			os.Exit(1)
		}
		cmdSelf(*addr, *token, args[1])
	case "last":
		if len(args) < 2 {
			cmdLastKeys(*addr, *token)
			return
		}
		cmdLast(*addr, *token, args[1])
	case "watch":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: plv-ctl watch <key>")
			os.Exit(1)
		}
		cmdWatch(*addr, *token, args[1])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `plv-ctl - presence live view CLI

Usage:
  plv-ctl [flags] <command> [args]

Commands:
  self <key>      Fetch a one-shot snapshot for a key
  last <key>      Show the last cached snapshot for a key
  last            List keys with cached snapshots
  watch <key>     Stream live snapshots for a key until interrupted
  status          Show sidecar status
  version         Show version

Flags:
  -addr string    API address (default "http://localhost:8080")
  -token string   Bearer token for authenticated APIs`)
}

func get(addr, token, path string) *http.Response {
	req, err := http.NewRequest(http.MethodGet, addr+path, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	return resp
}

func cmdStatus(addr, token string) {
	resp := get(addr, token, "/v1/status")
	defer resp.Body.Close()
	printJSON(resp.Body)
}

func cmdSelf(addr, token, key string) {
	resp := get(addr, token, "/v1/self/"+url.PathEscape(key))
	defer resp.Body.Close()
	printJSON(resp.Body)
}

func cmdLast(addr, token, key string) {
	resp := get(addr, token, "/v1/last/"+url.PathEscape(key))
	defer resp.Body.Close()
	printJSON(resp.Body)
}

func cmdLastKeys(addr, token string) {
	resp := get(addr, token, "/v1/last")
	defer resp.Body.Close()

	var body struct {
		Keys []string `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		fmt.Fprintf(os.Stderr, "error decoding response: %v\n", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY")
	for _, k := range body.Keys {
		fmt.Fprintln(w, k)
	}
	w.Flush()
}

func cmdWatch(addr, token, key string) {
	wsURL := strings.Replace(addr, "http", "ws", 1) + "/v1/liveview/" + url.PathEscape(key)
	if token != "" {
		wsURL += "?token=" + url.QueryEscape(token)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error connecting: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-interrupt
		conn.Close()
	}()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for {
		var snap map[string]interface{}
		if err := conn.ReadJSON(&snap); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return
			}
			fmt.Fprintf(os.Stderr, "stream ended: %v\n", err)
			return
		}
		enc.Encode(snap)
	}
}

func printJSON(r io.Reader) {
	var v interface{}
	if err := json.NewDecoder(r).Decode(&v); err != nil {
		fmt.Fprintf(os.Stderr, "error decoding response: %v\n", err)
		return
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
