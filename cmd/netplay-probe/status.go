// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/netplay/transport"
	"github.com/bureau-foundation/netplay/world"
)

var (
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(12)
	readyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	waitingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	downStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

// status is one snapshot of the probe's view of the session.
type status struct {
	Endpoint    string
	State       transport.State
	Identity    world.ID
	Assigned    bool
	LastRTT     time.Duration
	SmoothedRTT time.Duration
	Samples     int
	Entities    int
	Initialized int64
}

func renderStatus(s status) string {
	stateStyle := waitingStyle
	switch s.State {
	case transport.StateReady:
		stateStyle = readyStyle
	case transport.StateDisconnected:
		stateStyle = downStyle
	}

	identity := "unassigned"
	if s.Assigned {
		identity = fmt.Sprintf("%d", s.Identity)
	}
	rtt := "no samples"
	if s.Samples > 0 {
		rtt = fmt.Sprintf("%s (smoothed %s, %d samples)",
			s.LastRTT.Round(time.Microsecond), s.SmoothedRTT.Round(time.Microsecond), s.Samples)
	}

	rows := [][2]string{
		{"endpoint", s.Endpoint},
		{"state", stateStyle.Render(s.State.String())},
		{"identity", identity},
		{"rtt", rtt},
		{"entities", fmt.Sprintf("%d live, %d initialized", s.Entities, s.Initialized)},
	}
	var builder strings.Builder
	for i, row := range rows {
		if i > 0 {
			builder.WriteByte('\n')
		}
		builder.WriteString(labelStyle.Render(row[0]))
		builder.WriteString(row[1])
	}
	return builder.String()
}

// countingLifecycle logs entity transitions and counts initializations.
type countingLifecycle struct {
	logger      *slog.Logger
	initialized atomic.Int64
}

func (l *countingLifecycle) Created(key world.Key) {
	l.logger.Debug("entity created", "key", key)
}

func (l *countingLifecycle) Ready(_ world.Key, data world.Snapshot) bool {
	_, ok := data[world.PropPosition]
	return ok
}

func (l *countingLifecycle) Initialized(key world.Key) {
	l.initialized.Add(1)
	l.logger.Debug("entity initialized", "key", key)
}

func (l *countingLifecycle) Deleted(key world.Key) {
	l.logger.Debug("entity deleted", "key", key)
}

// InitializedCount returns how many entities have been initialized.
func (l *countingLifecycle) InitializedCount() int64 {
	return l.initialized.Load()
}
