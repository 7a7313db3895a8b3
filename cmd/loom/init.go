package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cosmix/loom-sub004/internal/config"
	"github.com/cosmix/loom-sub004/internal/plan"
	"github.com/cosmix/loom-sub004/internal/stage"
)

// runInit creates .work/ and, if a plan path is given, loads, validates,
// and materializes its stages.
func runInit(args []string) error {
	repoRoot, err := currentRepoRoot()
	if err != nil {
		return fmt.Errorf("determine working directory: %w", err)
	}

	if err := config.InitWorkDir(repoRoot); err != nil {
		return fmt.Errorf("init .work: %w", err)
	}
	cfg, err := config.Load(repoRoot)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if len(args) == 0 {
		fmt.Println(".work initialized.")
		return nil
	}

	planPath, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolve plan path: %w", err)
	}
	content, err := os.ReadFile(planPath)
	if err != nil {
		return fmt.Errorf("read plan %s: %w", planPath, err)
	}

	p, err := plan.ParseAndValidate(string(content))
	if err != nil {
		return fmt.Errorf("plan is invalid: %w", err)
	}

	store := stage.NewStore(cfg.StagesDir())
	stages := p.ToStages(p.Name, timeNow)
	g := depthByID(stages)
	for _, s := range stages {
		if err := store.Save(s, g[s.ID]); err != nil {
			return fmt.Errorf("persist stage %s: %w", s.ID, err)
		}
	}

	cfg.Project.Plan.SourcePath = planPath
	cfg.Project.Plan.PlanName = p.Name
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Printf("Initialized plan %q with %d stage(s).\n", p.Name, len(stages))
	return nil
}

func depthByID(stages []stage.Stage) map[string]int {
	byID := make(map[string]*stage.Stage, len(stages))
	for i := range stages {
		byID[stages[i].ID] = &stages[i]
	}
	depths := make(map[string]int, len(stages))
	var depth func(id string, seen map[string]bool) int
	depth = func(id string, seen map[string]bool) int {
		s := byID[id]
		if s == nil || len(s.Dependencies) == 0 || seen[id] {
			return 0
		}
		seen[id] = true
		max := 0
		for _, d := range s.Dependencies {
			if v := depth(d, seen) + 1; v > max {
				max = v
			}
		}
		return max
	}
	for _, s := range stages {
		depths[s.ID] = depth(s.ID, map[string]bool{})
	}
	return depths
}
