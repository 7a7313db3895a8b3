// Command loom drives the orchestrator: loading a plan, running the
// scheduling loop, and inspecting or nudging stage/session state from
// outside the loop's own process.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"
)

func main() {
	if len(os.Args) < 2 {
		die("usage: loom <init|run|status|stage|verify|merge|worktree|graph|sessions|stop> [args...]")
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "init":
		err = runInit(args)
	case "run":
		err = runRun(args)
	case "status":
		err = runStatus(args)
	case "stage":
		err = runStage(args)
	case "verify":
		err = runVerify(args)
	case "merge":
		err = runMerge(args)
	case "worktree":
		err = runWorktree(args)
	case "graph":
		err = runGraph(args)
	case "sessions":
		err = runSessions(args)
	case "stop":
		err = runStop(args)
	default:
		die("unknown command %q", cmd)
	}

	if err != nil {
		die("%v", err)
	}
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, strings.TrimSuffix(format, "\n")+"\n", args...)
	os.Exit(1)
}

func currentRepoRoot() (string, error) {
	return os.Getwd()
}

func timeNow() time.Time { return time.Now() }
