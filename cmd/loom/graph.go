package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"

	"github.com/cosmix/loom-sub004/internal/config"
	"github.com/cosmix/loom-sub004/internal/graph"
	"github.com/cosmix/loom-sub004/internal/stage"
)

func runGraph(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: loom graph <show|edit>")
	}
	action, rest := args[0], args[1:]

	repoRoot, err := currentRepoRoot()
	if err != nil {
		return err
	}
	cfg, err := config.Load(repoRoot)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	switch action {
	case "show":
		fs := flag.NewFlagSet("graph show", flag.ExitOnError)
		if err := fs.Parse(rest); err != nil {
			return err
		}
		stages, err := stage.NewStore(cfg.StagesDir()).LoadAll()
		if err != nil {
			return fmt.Errorf("load stages: %w", err)
		}
		g, err := graph.Build(stages)
		if err != nil {
			return fmt.Errorf("build graph: %w", err)
		}
		for _, n := range g.Nodes() {
			marker := " "
			if n.Held {
				marker = "H"
			}
			fmt.Printf("%s %-24s depth=%-3d status=%-16s deps=%v\n", marker, n.ID, n.Depth, n.Status, n.Dependencies)
		}
		return nil

	case "edit":
		fs := flag.NewFlagSet("graph edit", flag.ExitOnError)
		if err := fs.Parse(rest); err != nil {
			return err
		}
		path := cfg.Project.Plan.SourcePath
		if path == "" {
			return fmt.Errorf("no plan source recorded for this repo; run `loom init <plan.md>` first")
		}
		editor := os.Getenv("EDITOR")
		if editor == "" {
			editor = "vi"
		}
		cmd := exec.Command(editor, path)
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		return cmd.Run()

	default:
		return fmt.Errorf("unknown graph action %q", action)
	}
}
