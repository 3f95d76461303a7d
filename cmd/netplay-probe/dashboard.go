// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/netplay/transport"
)

// refreshInterval is how often the dashboard samples the session.
const refreshInterval = 250 * time.Millisecond

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	hintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type refreshMsg struct{}

// dashboard is the --watch view: the status table refreshed on a
// timer, with a spinner while the session is not ready.
type dashboard struct {
	sample  func() status
	current status
	spinner spinner.Model
}

func newDashboard(sample func() status) dashboard {
	return dashboard{
		sample:  sample,
		current: sample(),
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
}

func scheduleRefresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg {
		return refreshMsg{}
	})
}

func (model dashboard) Init() tea.Cmd {
	return tea.Batch(model.spinner.Tick, scheduleRefresh())
}

func (model dashboard) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.KeyMsg:
		switch message.String() {
		case "q", "esc", "ctrl+c":
			return model, tea.Quit
		}
	case refreshMsg:
		model.current = model.sample()
		return model, scheduleRefresh()
	case spinner.TickMsg:
		var command tea.Cmd
		model.spinner, command = model.spinner.Update(message)
		return model, command
	}
	return model, nil
}

func (model dashboard) View() string {
	var builder strings.Builder
	builder.WriteString(titleStyle.Render("netplay-probe"))
	if model.current.State != transport.StateReady && model.current.State != transport.StateDisconnected {
		builder.WriteString(" ")
		builder.WriteString(model.spinner.View())
	}
	builder.WriteString("\n\n")
	builder.WriteString(renderStatus(model.current))
	builder.WriteString("\n\n")
	builder.WriteString(hintStyle.Render("q to quit"))
	builder.WriteString("\n")
	return builder.String()
}
