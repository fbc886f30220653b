/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package buildmanager

import (
	"fmt"
	"strings"
	"time"

	"chainguard.dev/prbuild/jenkins"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

// maxFailedRows caps the failed test table.
const maxFailedRows = 25

// HumanDuration renders d as 1h:2m:3s, 2m:3s or 3s.
func HumanDuration(d time.Duration) string {
	total := int64(d / time.Second)
	h, m, s := total/3600, (total/60)%60, total%60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh:%dm:%ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm:%ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

type report struct {
	display  string
	url      string
	result   Result
	duration time.Duration
	tests    *jenkins.TestReport

	detailsErr bool
	testsErr   bool
}

func (r report) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "### [%s - Build](%s) status returned **%s**.", r.display, r.url, r.result)

	switch {
	case r.detailsErr:
		sb.WriteString("\nError fetching build details")
		return sb.String()
	case r.result == ResultTimeout:
		sb.WriteString("\n_Build did not finish in time and is still running._")
	default:
		fmt.Fprintf(&sb, "\n%s - Build ran _%s_", r.display, HumanDuration(r.duration))
	}

	sb.WriteString("\n\n")
	switch {
	case r.testsErr:
		sb.WriteString("_Test results could not be fetched_")
	case r.tests == nil:
		sb.WriteString("_No tests were run_")
	default:
		fmt.Fprintf(&sb, "## Test Results:\n**Passed: %d**\n**Failed: %d**\n**Skipped: %d**",
			r.tests.PassCount, r.tests.FailCount, r.tests.SkipCount)
		if failed := r.tests.FailedCases(); len(failed) > 0 {
			sb.WriteString("\n\n")
			writeFailedTable(&sb, r.url, failed)
		}
	}
	return sb.String()
}

func writeFailedTable(sb *strings.Builder, buildURL string, failed []jenkins.TestCase) {
	cfg := tablewriter.Config{
		Header: tw.CellConfig{
			Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			Formatting: tw.CellFormatting{AutoFormat: tw.Off},
		},
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		},
		Behavior: tw.Behavior{TrimSpace: tw.Off},
	}
	table := tablewriter.NewTable(sb,
		tablewriter.WithConfig(cfg),
		tablewriter.WithHeader([]string{"Failed test", "Class"}),
		tablewriter.WithRenderer(renderer.NewBlueprint()),
		tablewriter.WithRendition(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleMarkdown),
			Borders: tw.Border{
				Left:   tw.On,
				Top:    tw.Off,
				Right:  tw.On,
				Bottom: tw.Off,
			},
		}),
		tablewriter.WithRowAutoWrap(tw.WrapNone),
	)

	for i, tc := range failed {
		if i == maxFailedRows {
			break
		}
		_ = table.Append([]string{
			fmt.Sprintf("[%s](%s)", tc.Name, jenkins.CaseURL(buildURL, tc)),
			tc.ClassName,
		})
	}
	_ = table.Render()

	if extra := len(failed) - maxFailedRows; extra > 0 {
		fmt.Fprintf(sb, "\n_and %d more_", extra)
	}
}
