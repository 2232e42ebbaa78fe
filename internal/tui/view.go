package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/wesm/contractlens/internal/query"
	"github.com/wesm/contractlens/internal/snapshot"
)

// Monochrome theme - adaptive for light and dark terminals
var (
	bgBase   = lipgloss.AdaptiveColor{Light: "#ffffff", Dark: "#000000"}
	bgAlt    = lipgloss.AdaptiveColor{Light: "#f0f0f0", Dark: "#181818"}
	bgCursor = lipgloss.AdaptiveColor{Light: "#e0e0e0", Dark: "#282828"}

	titleBarStyle = lipgloss.NewStyle().
			Bold(true).
			Background(lipgloss.AdaptiveColor{Light: "#e0e0e0", Dark: "#333333"}).
			Foreground(lipgloss.AdaptiveColor{Light: "#000000", Dark: "#ffffff"}).
			Padding(0, 1)

	statsStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#555555", Dark: "#999999"}).
			Background(bgBase).
			Padding(0, 1)

	// Spinner style - NOT faint so it's visible
	spinnerStyle = lipgloss.NewStyle().
			Bold(true).
			Background(bgBase)

	tableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Background(bgBase)

	separatorStyle = lipgloss.NewStyle().
			Faint(true).
			Background(bgBase)

	cursorRowStyle = lipgloss.NewStyle().
			Background(bgCursor)

	normalRowStyle = lipgloss.NewStyle().
			Background(bgBase)

	altRowStyle = lipgloss.NewStyle().
			Background(bgAlt)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#555555", Dark: "#999999"}).
			Background(bgBase).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Background(bgBase)

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(1, 2).
			Background(bgBase)

	modalTitleStyle = lipgloss.NewStyle().
			Bold(true)

	flashStyle = lipgloss.NewStyle().
			Italic(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#996600", Dark: "#ffcc00"}).
			Background(bgBase)

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#000000", Dark: "#000000"}).
			Background(lipgloss.AdaptiveColor{Light: "#e8d44d", Dark: "#e8d44d"}).
			Bold(true)
)

// buildTitleBar builds the title bar line (line 1 of the header).
// Format: "contractlens [version] - period [+secondary]"
func (m Model) buildTitleBar() string {
	titleText := "contractlens"
	if m.version != "" && m.version != "dev" && m.version != "unknown" {
		titleText = fmt.Sprintf("contractlens [%s]", m.version)
	}

	periodStr := "All time"
	if p, ok := m.period(); ok {
		periodStr = p.Key
	}
	if m.includeSecondary {
		periodStr += " [+secondary]"
	}

	line := fmt.Sprintf("%s - %s", titleText, periodStr)
	return titleBarStyle.Render(padRight(line, m.width-2)) // -2 for padding
}

// buildBreadcrumb builds the breadcrumb text based on the current navigation level.
func (m Model) buildBreadcrumb() string {
	switch m.level {
	case levelAggregates:
		return dimensionLabel(m.dimension)
	case levelDrillDown:
		return fmt.Sprintf("%s: %s (by %s)", dimensionPrefix(m.drillDimension), truncateRunes(m.drillValue, 30), dimensionLabel(m.dimension))
	case levelContracts:
		parts := make([]string, 0, len(m.pins))
		for _, p := range m.pins {
			parts = append(parts, fmt.Sprintf("%s: %s", dimensionPrefix(p.dimension), truncateRunes(p.name, 24)))
		}
		if len(parts) == 0 {
			return "Contracts"
		}
		return strings.Join(parts, " > ")
	default:
		return ""
	}
}

// buildStatsString summarizes the loaded result for the header.
func (m Model) buildStatsString() string {
	if m.level == levelContracts {
		return fmt.Sprintf("%s contracts", formatCount(m.totalCount))
	}
	if m.globalTotals == nil {
		return ""
	}
	return fmt.Sprintf("%s %s | %s contracts | %s",
		formatCount(m.totalCount),
		strings.ToLower(dimensionLabel(m.dimension))+"s",
		formatCount(m.globalTotals.Count),
		formatAmount(m.globalTotals.Total),
	)
}

// headerView renders a two-level header:
// Line 1: contractlens [version] - period
// Line 2: breadcrumb | stats
func (m Model) headerView() string {
	line1 := m.buildTitleBar()

	breadcrumbStyled := statsStyle.Render(" " + m.buildBreadcrumb() + " ")
	statsStyled := statsStyle.Render(m.buildStatsString() + " ")
	gap := max(m.width-lipgloss.Width(breadcrumbStyled)-lipgloss.Width(statsStyled), 0)
	line2 := breadcrumbStyled + strings.Repeat(" ", gap) + statsStyled

	return line1 + "\n" + line2
}

// sortIndicator marks the column the view is sorted by.
func (m Model) sortIndicator(field query.SortField) string {
	if m.sortField != field {
		return ""
	}
	if m.sortDirection == query.Desc {
		return "↓"
	}
	return "↑"
}

// rowStyle picks the background for row i.
func rowStyle(i int, isCursor bool) lipgloss.Style {
	switch {
	case isCursor:
		return cursorRowStyle
	case i%2 == 0:
		return normalRowStyle
	default:
		return altRowStyle
	}
}

// aggregateTableView renders the aggregate data table.
func (m Model) aggregateTableView() string {
	if m.err != nil {
		return m.fillScreen(errorStyle.Render(padRight(fmt.Sprintf("Error: %v", m.err), m.width)), 1)
	}
	if len(m.rows) == 0 && !m.loading {
		return m.fillScreen(normalRowStyle.Render(padRight("No data", m.width)), 1)
	}

	var sb strings.Builder

	// Rank, count, total, average and share take 50 cells plus the cursor gutter.
	keyWidth := min(max(m.width-53, 16), 60)

	header := "   " + padRight("#", 5) + " " +
		padRight(dimensionLabel(m.dimension)+m.sortIndicator(query.SortName), keyWidth) +
		padLeft("Count"+m.sortIndicator(query.SortCount), 9) +
		padLeft("Total"+m.sortIndicator(query.SortTotal), 12) +
		padLeft("Avg"+m.sortIndicator(query.SortAverage), 12) +
		padLeft("Share", 8)
	sb.WriteString(tableHeaderStyle.Render(padRight(header, m.width)))
	sb.WriteString("\n")
	sb.WriteString(separatorStyle.Render(strings.Repeat("─", m.width)))
	sb.WriteString("\n")

	terms := searchTerms(m.searchQuery)
	endRow := min(m.scrollOffset+m.visibleRows(), len(m.rows))
	for i := m.scrollOffset; i < endRow; i++ {
		row := m.rows[i]
		isCursor := i == m.cursor

		indicator := "   "
		if isCursor {
			indicator = cursorRowStyle.Render("▶  ")
		}

		// Pad the name first so highlight codes don't affect column alignment.
		name := padRight(truncateRunes(row.Name, keyWidth), keyWidth)
		name = highlightTerms(name, terms)

		share := "-"
		if m.globalTotals != nil {
			share = formatShare(row.Total, m.globalTotals.Total)
		}

		line := padRight(fmt.Sprintf("%d", row.Rank), 5) + " " + name +
			padLeft(formatCount(row.Count), 9) +
			padLeft(formatAmount(row.Total), 12) +
			padLeft(formatAmount(row.Average), 12) +
			padLeft(share, 8)

		sb.WriteString(indicator)
		sb.WriteString(rowStyle(i, isCursor).Render(padRight(line, m.width-3)))
		sb.WriteString("\n")
	}

	m.writeFiller(&sb, endRow-m.scrollOffset)
	sb.WriteString(m.renderInfoLine(m.infoContent(), m.loading))
	return sb.String()
}

// contractListView renders the contract list.
func (m Model) contractListView() string {
	if m.err != nil {
		return m.fillScreen(errorStyle.Render(padRight(fmt.Sprintf("Error: %v", m.err), m.width)), 1)
	}
	if len(m.contracts) == 0 && !m.loading {
		return m.fillScreen(normalRowStyle.Render(padRight("No contracts", m.width)), 1)
	}

	var sb strings.Builder

	// Date and amount take 24 cells; the rest is split between the
	// contractor and the title.
	flex := max(m.width-3-24-2, 20)
	contractorWidth := flex * 2 / 5
	titleWidth := flex - contractorWidth

	header := "   " + padRight("Date"+m.sortIndicator(query.SortDate), 11) + " " +
		padRight("Contractor"+m.sortIndicator(query.SortName), contractorWidth) + " " +
		padRight("Title", titleWidth) +
		padLeft("Amount"+m.sortIndicator(query.SortTotal), 12)
	sb.WriteString(tableHeaderStyle.Render(padRight(header, m.width)))
	sb.WriteString("\n")
	sb.WriteString(separatorStyle.Render(strings.Repeat("─", m.width)))
	sb.WriteString("\n")

	terms := searchTerms(m.searchQuery)
	endRow := min(m.scrollOffset+m.visibleRows(), len(m.contracts))
	for i := m.scrollOffset; i < endRow; i++ {
		c := m.contracts[i]
		isCursor := i == m.cursor

		indicator := "   "
		if isCursor {
			indicator = cursorRowStyle.Render("▶  ")
		}

		title := c.AwardTitle
		if title == "" {
			title = c.NoticeTitle
		}
		title = highlightTerms(padRight(truncateRunes(title, titleWidth), titleWidth), terms)

		line := padRight(c.AwardDate.Format(snapshot.DateLayout), 11) + " " +
			padRight(truncateRunes(c.Contractor, contractorWidth), contractorWidth) + " " +
			title +
			padLeft(formatAmount(c.Amount), 12)

		sb.WriteString(indicator)
		sb.WriteString(rowStyle(i, isCursor).Render(padRight(line, m.width-3)))
		sb.WriteString("\n")
	}

	m.writeFiller(&sb, endRow-m.scrollOffset)
	sb.WriteString(m.renderInfoLine(m.infoContent(), m.loading))
	return sb.String()
}

// writeFiller blanks the rows below the last data row.
func (m Model) writeFiller(sb *strings.Builder, used int) {
	for i := used; i < m.visibleRows(); i++ {
		sb.WriteString(normalRowStyle.Render(strings.Repeat(" ", m.width)))
		sb.WriteString("\n")
	}
}

// fillScreen renders content followed by blank rows up to the page size.
func (m Model) fillScreen(content string, usedLines int) string {
	var sb strings.Builder
	sb.WriteString(content)
	sb.WriteString("\n")
	for i := usedLines; i < m.pageSize+1; i++ {
		sb.WriteString(normalRowStyle.Render(strings.Repeat(" ", m.width)))
		sb.WriteString("\n")
	}
	sb.WriteString(m.renderInfoLine(m.infoContent(), m.loading))
	return sb.String()
}

// infoContent is the search bar while typing, then the flash message,
// then the active query and the plan that served it.
func (m Model) infoContent() string {
	switch {
	case m.inlineSearchActive:
		return "/" + m.searchInput.View()
	case m.flashMessage != "":
		return flashStyle.Render(m.flashMessage)
	}
	var parts []string
	if m.searchQuery != "" {
		parts = append(parts, fmt.Sprintf("Search: %q", m.searchQuery))
	}
	if m.plan != nil {
		plan := "plan: " + m.plan.Kind.String()
		if m.plan.Reason != "" {
			plan += " (" + m.plan.Reason + ")"
		}
		parts = append(parts, plan)
	}
	return strings.Join(parts, "  ")
}

// renderInfoLine renders the info line with an optional right-aligned loading spinner.
func (m Model) renderInfoLine(content string, loading bool) string {
	// statsStyle has Padding(0, 1) which adds 2 characters
	contentWidth := max(m.width-2, 1)
	if content == "" && !loading {
		return statsStyle.Render(strings.Repeat(" ", contentWidth))
	}
	if loading {
		indicator := spinnerFrames[m.spinnerFrame%len(spinnerFrames)]
		gap := max(contentWidth-lipgloss.Width(content)-lipgloss.Width(indicator), 1)
		content += strings.Repeat(" ", gap) + spinnerStyle.Render(indicator)
	}
	return statsStyle.Render(padRight(content, contentWidth))
}

// footerView renders the key hints and the cursor position.
func (m Model) footerView() string {
	var keys []string
	var posStr string

	switch m.level {
	case levelAggregates:
		keys = []string{"↑/k", "↓/j", "Enter drill", "a contracts", "g group", "s sort", "t year", "/ search", "? help"}
	case levelDrillDown:
		keys = []string{"↑/k", "↓/j", "Enter contracts", "Esc", "g group", "s sort", "t year", "? help"}
	case levelContracts:
		keys = []string{"↑/k", "↓/j", "Enter details", "Esc", "s sort", "r reverse", "? help"}
	}

	if n := m.rowCount(); n > 0 {
		if m.totalCount > int64(n) {
			posStr = fmt.Sprintf(" %d of %d ", m.cursor+1, m.totalCount)
		} else {
			posStr = fmt.Sprintf(" %d/%d ", m.cursor+1, n)
		}
	}

	keysStr := strings.Join(keys, " │ ")
	gap := max(m.width-lipgloss.Width(keysStr)-lipgloss.Width(posStr)-2, 0)
	return footerStyle.Render(keysStr + strings.Repeat(" ", gap) + posStr)
}

// rawHelpLines contains the help modal content. The first line is the
// title, rendered with modalTitleStyle.
var rawHelpLines = []string{
	"Keyboard Shortcuts",
	"",
	"Navigation",
	"  ↑/k, ↓/j    Move cursor up/down",
	"  PgUp/PgDn   Page up/down",
	"  Home/End    Go to first/last",
	"  Enter       Drill down / list contracts / show details",
	"  a           List the contracts behind a row",
	"  Esc         Go back (clears the search at the top)",
	"",
	"Views & Sorting",
	"  g/Tab       Cycle grouping dimension",
	"  s           Cycle sort field",
	"  r/v         Reverse sort order",
	"",
	"Filters",
	"  /           Search: contractor: org: area: category:",
	"              year: quarter: after: before: min: max:",
	"  t           Cycle year (ignored when the search sets dates)",
	"  x           Include the secondary dataset",
	"",
	"  q           Quit",
	"",
	"[↑/↓] Scroll  [Any other key] Close",
}

// helpMaxVisible returns the max visible lines for the help modal given terminal height.
func (m Model) helpMaxVisible() int {
	return min(max(m.height-6, 1), len(rawHelpLines))
}

func (m Model) renderHelpModal() string {
	maxVisible := m.helpMaxVisible()
	scroll := min(m.helpScroll, len(rawHelpLines)-maxVisible)
	visible := rawHelpLines[scroll : scroll+maxVisible]
	rendered := make([]string, len(visible))
	for i, line := range visible {
		if scroll+i == 0 {
			rendered[i] = modalTitleStyle.Render(line)
		} else {
			rendered[i] = line
		}
	}
	return strings.Join(rendered, "\n")
}

func (m Model) renderQuitConfirmModal() string {
	return modalTitleStyle.Render("Quit contractlens?") + "\n\n[y] Yes  [any other key] No"
}

// renderContractDetailModal shows every field of the contract under the cursor.
func (m Model) renderContractDetailModal() string {
	if m.cursor >= len(m.contracts) {
		return ""
	}
	c := m.contracts[m.cursor]
	width := max(min(m.width-12, 70), 20)
	field := func(label, value string) string {
		if value == "" {
			value = "-"
		}
		return padRight(label, 14) + truncateRunes(value, width-14)
	}
	lines := []string{
		modalTitleStyle.Render(truncateRunes(c.AwardTitle, width)),
		"",
		field("Reference", c.ReferenceID),
		field("Contract no.", c.ContractNumber),
		field("Notice", c.NoticeTitle),
		field("Contractor", c.Contractor),
		field("Organization", c.Organization),
		field("Area", c.Area),
		field("Category", c.Category),
		field("Amount", c.Amount.StringFixed(2)),
		field("Award date", c.AwardDate.Format(snapshot.DateLayout)),
		field("Status", c.Status),
		"",
		"[any key] Close",
	}
	return strings.Join(lines, "\n")
}

// overlayModal renders the active modal centered over background.
func (m Model) overlayModal(background string) string {
	var modalContent string
	switch m.modal {
	case modalQuitConfirm:
		modalContent = m.renderQuitConfirmModal()
	case modalHelp:
		modalContent = m.renderHelpModal()
	case modalContractDetail:
		modalContent = m.renderContractDetailModal()
	}
	if modalContent == "" {
		return background
	}

	modal := modalStyle.Render(modalContent)
	bgLines := strings.Split(background, "\n")
	modalLines := strings.Split(modal, "\n")

	startLine := max((len(bgLines)-len(modalLines))/2, 0)
	modalWidth := lipgloss.Width(modal)
	leftPadding := max((m.width-modalWidth)/2, 0)

	for i, modalLine := range modalLines {
		lineIdx := startLine + i
		if lineIdx >= len(bgLines) {
			break
		}
		bgLine := bgLines[lineIdx]

		var composite strings.Builder
		if leftPadding > 0 {
			leftBg := truncateToWidth(bgLine, leftPadding)
			composite.WriteString(leftBg)
			if w := lipgloss.Width(leftBg); w < leftPadding {
				composite.WriteString(strings.Repeat(" ", leftPadding-w))
			}
		}
		composite.WriteString(modalLine)
		if rightStart := leftPadding + modalWidth; rightStart < lipgloss.Width(bgLine) {
			composite.WriteString(skipToWidth(bgLine, rightStart))
		}
		bgLines[lineIdx] = composite.String()
	}
	return strings.Join(bgLines, "\n")
}
