package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cosmix/loom-sub004/internal/config"
	"github.com/cosmix/loom-sub004/internal/stage"
)

const liveRefreshInterval = time.Second

var (
	statusHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	statusBlockedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	statusDoneStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	statusRunStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
)

type statusModel struct {
	cfg    *config.Config
	stages []stage.Stage
	err    error
}

type statusTickMsg time.Time

func runStatusLive(cfg *config.Config, initial []stage.Stage) error {
	m := statusModel{cfg: cfg, stages: initial}
	p := tea.NewProgram(m)
	_, err := p.Run()
	return err
}

func (m statusModel) Init() tea.Cmd {
	return tea.Tick(liveRefreshInterval, func(t time.Time) tea.Msg { return statusTickMsg(t) })
}

func (m statusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case statusTickMsg:
		stages, err := stage.NewStore(m.cfg.StagesDir()).LoadAll()
		m.stages = stages
		m.err = err
		return m, tea.Tick(liveRefreshInterval, func(t time.Time) tea.Msg { return statusTickMsg(t) })
	}
	return m, nil
}

func (m statusModel) View() string {
	var b strings.Builder
	b.WriteString(statusHeaderStyle.Render("loom — live status (q to quit)"))
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(fmt.Sprintf("error refreshing status: %v\n", m.err))
	}

	stages := append([]stage.Stage{}, m.stages...)
	sort.Slice(stages, func(i, j int) bool { return stages[i].ID < stages[j].ID })

	for _, s := range stages {
		line := fmt.Sprintf("%-24s %s", s.ID, s.Status)
		switch s.Status {
		case stage.Completed:
			line = statusDoneStyle.Render(line)
		case stage.Executing:
			line = statusRunStyle.Render(line)
		case stage.Blocked, stage.MergeBlocked, stage.MergeConflict, stage.NeedsHumanReview:
			line = statusBlockedStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}
