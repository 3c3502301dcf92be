// voxctl sends one control command to the voxd daemon and prints the
// reply. It is short-lived by design: one invocation, one exchange.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/voxlabs/voxd/internal/config"
	"github.com/voxlabs/voxd/internal/control"
	"github.com/voxlabs/voxd/internal/protocol"
)

// Exit codes surfaced to scripts and hotkey bindings.
const (
	exitOK               = 0
	exitError            = 1
	exitBusy             = 2
	exitNotFound         = 3
	exitPermissionDenied = 4
	exitInferenceFailed  = 5
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: voxctl [flags] <command>

Commands:
  start     begin a recording session
  stop      end recording and transcribe
  cancel    abort the current session
  status    print daemon status as JSON
  toggle    start if idle, stop if recording

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	var (
		socketPath string
		action     string
		wait       bool
		timeout    time.Duration
	)
	flag.StringVar(&socketPath, "socket", "", "Control socket path (defaults to the daemon's)")
	flag.StringVar(&action, "action", protocol.ActionType, "Post-processing action for start/toggle: type or copy")
	flag.BoolVar(&wait, "wait", false, "After stop/toggle, poll status until the transcript is ready and print it")
	flag.DurationVar(&timeout, "timeout", 60*time.Second, "How long -wait polls before giving up")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
		os.Exit(exitError)
	}
	verb := flag.Arg(0)
	switch verb {
	case protocol.CmdStart, protocol.CmdStop, protocol.CmdCancel, protocol.CmdStatus, protocol.CmdToggle:
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", verb)
		os.Exit(exitError)
	}
	if action != protocol.ActionType && action != protocol.ActionCopy {
		fmt.Fprintf(os.Stderr, "invalid action %q: must be type or copy\n", action)
		os.Exit(exitError)
	}

	if socketPath == "" {
		socketPath = config.Default().Daemon.SocketPath
	}
	client := control.NewClient(socketPath)

	cmd := protocol.Command{Cmd: verb}
	if verb == protocol.CmdStart || verb == protocol.CmdToggle {
		cmd.Action = action
	}

	resp, err := client.Send(cmd)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, control.ErrPermissionDenied) {
			os.Exit(exitPermissionDenied)
		}
		os.Exit(exitError)
	}

	if !resp.OK {
		fmt.Fprintf(os.Stderr, "%s: %s\n", resp.Code, resp.Error)
		os.Exit(exitCodeFor(resp.Code))
	}

	if verb == protocol.CmdStatus {
		printStatus(resp.Status)
		if resp.Status != nil && resp.Status.LastError != "" {
			os.Exit(exitInferenceFailed)
		}
		return
	}

	fmt.Println(resp.State)

	if wait && resp.State == "transcribing" {
		if !pollResult(client, timeout) {
			os.Exit(exitError)
		}
	}
}

// pollResult polls status until the session resolves, then prints the
// transcript. Reports whether a result was obtained.
func pollResult(client *control.Client, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		time.Sleep(200 * time.Millisecond)
		resp, err := client.Send(protocol.Command{Cmd: protocol.CmdStatus})
		if err != nil || resp.Status == nil {
			continue
		}
		switch resp.Status.State {
		case "transcribing":
			continue
		case "error":
			fmt.Fprintf(os.Stderr, "transcription failed: %s\n", resp.Status.LastError)
			return false
		default:
			fmt.Println(resp.Status.LastResult)
			return true
		}
	}
	fmt.Fprintln(os.Stderr, "timed out waiting for transcript")
	return false
}

func printStatus(status *protocol.Status) {
	if status == nil {
		return
	}
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	fmt.Println(string(data))
}

func exitCodeFor(code string) int {
	switch code {
	case protocol.CodeBusy:
		return exitBusy
	case protocol.CodeNotFound:
		return exitNotFound
	case protocol.CodePermissionDenied:
		return exitPermissionDenied
	case protocol.CodeInferenceFailed:
		return exitInferenceFailed
	default:
		return exitError
	}
}
