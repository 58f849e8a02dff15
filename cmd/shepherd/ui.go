/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/carverauto/shepherd/pkg/models"
)

var (
	accent = lipgloss.Color("99")
	green  = lipgloss.Color("76")
	red    = lipgloss.Color("204")
	yellow = lipgloss.Color("214")
	dim    = lipgloss.Color("243")
	faint  = lipgloss.Color("238")

	successStyle = lipgloss.NewStyle().Foreground(green)
	errorStyle   = lipgloss.NewStyle().Foreground(red)
	warnStyle    = lipgloss.NewStyle().Foreground(yellow)
	labelStyle   = lipgloss.NewStyle().Foreground(dim)
)

func successMsg(format string, a ...any) string {
	return successStyle.Render("✓") + " " + fmt.Sprintf(format, a...)
}

func warnMsg(format string, a ...any) string {
	return warnStyle.Render("!") + " " + fmt.Sprintf(format, a...)
}

func errorMsg(format string, a ...any) string {
	return errorStyle.Render("✗") + " " + fmt.Sprintf(format, a...)
}

func boolText(v bool) string {
	if v {
		return successStyle.Render("yes")
	}

	return errorStyle.Render("no")
}

type kvPair struct {
	key   string
	value string
}

func kv(key, value string) kvPair {
	return kvPair{key: key, value: value}
}

// keyValues renders aligned "key  value" lines, skipping empty values.
func keyValues(pairs ...kvPair) string {
	width := 0
	for _, p := range pairs {
		width = max(width, len(p.key))
	}

	var b strings.Builder

	for _, p := range pairs {
		if p.value == "" {
			continue
		}

		b.WriteString("  ")
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-*s", width, p.key)))
		b.WriteString("  ")
		b.WriteString(p.value)
		b.WriteByte('\n')
	}

	return b.String()
}

// statusStyle colours a display status.
func statusStyle(display string) lipgloss.Style {
	switch display {
	case models.DisplayOnline:
		return successStyle
	case models.DisplayOffline, models.DisplayCaptureFailed:
		return errorStyle
	case models.DisplayStale, models.DisplayDBOffline, models.DisplayCaptured:
		return warnStyle
	default:
		return lipgloss.NewStyle()
	}
}

var deviceHeaders = []string{"TYPE", "MINER", "PORT", "SERIAL", "STATUS", "STATE", "KH/S", "TEMP", "LAST SEEN"}

func deviceRows(snap *models.Snapshot) [][]string {
	rows := make([][]string, 0, len(snap.Devices))

	for i := range snap.Devices {
		v := &snap.Devices[i]

		name := "-"
		if v.MinerID != nil {
			name = *v.MinerID
		}

		seen := "-"
		if v.LastSeen != nil {
			seen = v.LastSeen.Local().Format("2006-01-02 15:04:05")
		}

		rows = append(rows, []string{
			v.Type,
			name,
			v.PortPath,
			v.Serial,
			statusStyle(v.DisplayStatus).Render(v.DisplayStatus),
			v.StateMsg,
			summaryValue(v, models.KeyHashRate),
			summaryValue(v, "Temperature"),
			seen,
		})
	}

	return rows
}

func summaryValue(v *models.ViewModel, key string) string {
	if s, ok := v.Summary[key]; ok && s != "" {
		return s
	}

	return "-"
}

// renderSnapshot draws the device table, preceded by the degraded-mode
// error when the snapshot carries one.
func renderSnapshot(snap *models.Snapshot) string {
	var b strings.Builder

	if snap.Error != "" {
		b.WriteString(warnMsg("%s", snap.Error))
		b.WriteByte('\n')
	}

	if len(snap.Devices) == 0 {
		b.WriteString(labelStyle.Render("no devices attached"))
		b.WriteByte('\n')

		return b.String()
	}

	headerStyle := lipgloss.NewStyle().Foreground(accent).Bold(true).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(faint)).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}

			return cellStyle
		}).
		Headers(deviceHeaders...).
		Rows(deviceRows(snap)...)

	b.WriteString(t.String())
	b.WriteByte('\n')

	return b.String()
}
