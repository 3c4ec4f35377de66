// ABOUTME: Controller CLI for muster-gateway session and command management.
// ABOUTME: Talks to the gateway's /admin HTTP API with optional bearer auth.

package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
)

const banner = `
                      _                          _           _
 _ __ ___  _   _ ___| |_ ___ _ __ ___  __ _  __| |_ __ ___ (_)_ __
| '_ ' _ \| | | / __| __/ _ \ '__/ _ \/ _' |/ _' | '_ ' _ \| | '_ \
| | | | | | |_| \__ \ ||  __/ | |  __/ (_| | (_| | | | | | | | | | |
|_| |_| |_|\__,_|___/\__\___|_|  \___|\__,_|\__,_|_| |_| |_|_|_| |_|
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	baseURL := os.Getenv("MUSTER_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	c := &client{baseURL: baseURL, token: os.Getenv("MUSTER_TOKEN")}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "sessions":
		err = cmdSessions(c)
	case "cmd":
		err = cmdCommand(c, args)
	case "exec":
		err = cmdExec(c, args)
	case "result":
		err = cmdResult(c, args)
	case "chat":
		err = cmdChat(c, args)
	case "history":
		err = cmdHistory(c, args)
	case "frame":
		err = cmdFrame(c, args)
	case "files":
		err = cmdFiles(c)
	case "fetch":
		err = cmdFetch(c, args)
	case "status":
		err = cmdStatus(c, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: muster-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  sessions                    List live agent sessions")
	fmt.Println("  cmd <session> <type> [params]   Queue a command, print its id")
	fmt.Println("  exec <session> <params>     Queue a shell command and wait for the result")
	fmt.Println("  result <cmd-id>             Consume a command's result")
	fmt.Println("  chat <session> <message>    Send a chat message to an agent")
	fmt.Println("  history <session>           Show a session's chat history")
	fmt.Println("  frame <session> [-o file]   Fetch the latest stream frame")
	fmt.Println("  files                       List uploaded files")
	fmt.Println("  fetch <name> [-o file]      Download an uploaded file")
	fmt.Println("  status <session>            Show a session's streaming status")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  MUSTER_URL     Gateway base URL (default: http://localhost:8080)")
	fmt.Println("  MUSTER_TOKEN   Bearer token (required when the gateway enforces auth)")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  muster-admin sessions")
	fmt.Println("  muster-admin exec a1b2c3d4 'uname -a'")
	fmt.Println("  muster-admin chat a1b2c3d4 'status report please'")
	fmt.Println()
}

// client is a minimal HTTP client for the controller API.
type client struct {
	baseURL string
	token   string
}

func (c *client) do(method, path string, body any) (*http.Response, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequest(method, c.baseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("contacting gateway: %w", err)
	}
	return resp, nil
}

// getJSON performs a request and decodes a JSON response, converting
// error bodies into errors.
func (c *client) getJSON(method, path string, body, out any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
			return fmt.Errorf("%s", e.Error)
		}
		return fmt.Errorf("gateway returned %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func cmdSessions(c *client) error {
	var sessions []struct {
		ID       string `json:"id"`
		IP       string `json:"ip"`
		LastSeen int    `json:"last_seen"`
	}
	if err := c.getJSON(http.MethodGet, "/admin/list", nil, &sessions); err != nil {
		return err
	}

	if len(sessions) == 0 {
		fmt.Println("No live sessions.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tADDRESS\tIDLE")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%ds\n", s.ID, s.IP, s.LastSeen)
	}
	return w.Flush()
}

func enqueue(c *client, sessionID, cmdType, params string) (string, error) {
	var resp struct {
		CmdID string `json:"cmd_id"`
	}
	err := c.getJSON(http.MethodPost, "/admin/command", map[string]string{
		"target_id": sessionID,
		"type":      cmdType,
		"params":    params,
	}, &resp)
	return resp.CmdID, err
}

func cmdCommand(c *client, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: muster-admin cmd <session> <type> [params]")
	}
	params := ""
	if len(args) > 2 {
		params = args[2]
	}

	cmdID, err := enqueue(c, args[0], args[1], params)
	if err != nil {
		return err
	}
	fmt.Println(cmdID)
	return nil
}

func cmdExec(c *client, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: muster-admin exec <session> <params>")
	}

	cmdID, err := enqueue(c, args[0], "shell", args[1])
	if err != nil {
		return err
	}
	color.New(color.FgHiBlack).Printf("queued %s, waiting for result...\n", cmdID)

	// The agent has to poll, run, and report, so give it a while.
	deadline := time.Now().Add(2 * time.Minute)
	for time.Now().Before(deadline) {
		output, done, err := consumeResult(c, cmdID)
		if err != nil {
			return err
		}
		if done {
			fmt.Print(output)
			if output != "" && output[len(output)-1] != '\n' {
				fmt.Println()
			}
			return nil
		}
		time.Sleep(time.Second)
	}
	return fmt.Errorf("timed out waiting for result of %s", cmdID)
}

func consumeResult(c *client, cmdID string) (output string, done bool, err error) {
	var resp struct {
		Status string `json:"status"`
		Output string `json:"output"`
	}
	if err := c.getJSON(http.MethodGet, "/admin/response/"+cmdID, nil, &resp); err != nil {
		return "", false, err
	}
	return resp.Output, resp.Status == "done", nil
}

func cmdResult(c *client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: muster-admin result <cmd-id>")
	}

	output, done, err := consumeResult(c, args[0])
	if err != nil {
		return err
	}
	if !done {
		fmt.Println("pending")
		return nil
	}
	fmt.Println(output)
	return nil
}

func cmdChat(c *client, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: muster-admin chat <session> <message>")
	}

	return c.getJSON(http.MethodPost, "/api/chat/send", map[string]string{
		"target_id": args[0],
		"sender":    "admin",
		"message":   args[1],
	}, nil)
}

func cmdHistory(c *client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: muster-admin history <session>")
	}

	var history []struct {
		Sender    string `json:"sender"`
		Message   string `json:"message"`
		Timestamp int64  `json:"timestamp"`
	}
	if err := c.getJSON(http.MethodGet, "/api/chat/history/"+args[0], nil, &history); err != nil {
		return err
	}

	if len(history) == 0 {
		fmt.Println("No chat history.")
		return nil
	}

	senderColor := map[string]*color.Color{
		"admin":  color.New(color.FgCyan),
		"client": color.New(color.FgGreen),
	}
	for _, msg := range history {
		ts := time.Unix(msg.Timestamp, 0).Format("15:04:05")
		cc := senderColor[msg.Sender]
		if cc == nil {
			cc = color.New(color.FgWhite)
		}
		cc.Printf("[%s] %s: ", ts, msg.Sender)
		fmt.Println(msg.Message)
	}
	return nil
}

// fetchToFile streams a controller GET to the given output path, or to a
// default name when out is empty.
func (c *client) fetchToFile(path, out, fallback string) error {
	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
			return fmt.Errorf("%s", e.Error)
		}
		return fmt.Errorf("gateway returned %s", resp.Status)
	}

	if out == "" {
		out = fallback
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}

	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	color.Green("Wrote %s (%d bytes)", out, n)
	return nil
}

func cmdFiles(c *client) error {
	var files []struct {
		Name       string `json:"name"`
		SessionID  string `json:"session_id"`
		Size       int64  `json:"size"`
		UploadedAt string `json:"uploaded_at"`
	}
	if err := c.getJSON(http.MethodGet, "/admin/files", nil, &files); err != nil {
		return err
	}

	if len(files) == 0 {
		fmt.Println("No uploaded files.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSESSION\tSIZE\tUPLOADED")
	for _, f := range files {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", f.Name, f.SessionID, f.Size, f.UploadedAt)
	}
	return w.Flush()
}

func cmdFrame(c *client, args []string) error {
	fs := flag.NewFlagSet("frame", flag.ExitOnError)
	out := fs.String("o", "", "output file (default: <session>.jpg)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: muster-admin frame <session> [-o file]")
	}

	id := fs.Arg(0)
	return c.fetchToFile("/admin/stream_frame/"+id, *out, id+".jpg")
}

func cmdFetch(c *client, args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	out := fs.String("o", "", "output file (default: stored name)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: muster-admin fetch <name> [-o file]")
	}

	name := fs.Arg(0)
	return c.fetchToFile("/admin/download_file/"+name, *out, name)
}

func cmdStatus(c *client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: muster-admin status <session>")
	}

	var resp struct {
		Streaming bool `json:"streaming"`
	}
	if err := c.getJSON(http.MethodGet, "/admin/stream_status/"+args[0], nil, &resp); err != nil {
		return err
	}

	if resp.Streaming {
		color.Green("streaming")
	} else {
		fmt.Println("not streaming")
	}
	return nil
}
