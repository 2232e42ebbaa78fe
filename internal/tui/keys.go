package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/wesm/contractlens/internal/query"
	"github.com/wesm/contractlens/internal/snapshot"
)

// aggregateSorts is the cycle order of the s key on aggregate views.
var aggregateSorts = []query.SortField{query.SortTotal, query.SortCount, query.SortAverage, query.SortName}

// contractSorts is the cycle order of the s key on the contract list.
var contractSorts = []query.SortField{query.SortDate, query.SortTotal, query.SortName}

// handleKeyPress routes a key to the modal, the search bar or the current level.
func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.modal != modalNone {
		return m.handleModalKeys(msg)
	}
	if m.inlineSearchActive {
		return m.handleInlineSearchKeys(msg)
	}
	if m2, cmd, handled := m.handleGlobalKeys(msg); handled {
		return m2, cmd
	}
	if m.level == levelContracts {
		return m.handleContractListKeys(msg)
	}
	return m.handleAggregateKeys(msg)
}

// handleInlineSearchKeys handles keys when inline search bar is active.
func (m Model) handleInlineSearchKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		return m.commitInlineSearch()
	case "esc":
		m.inlineSearchActive = false
		m.searchInput.Blur()
		m.searchInput.SetValue(m.searchQuery)
		return m, nil
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	return m, cmd
}

// handleGlobalKeys handles keys common to all views (quit, help).
// Returns (model, cmd, true) if the key was handled, or (model, nil, false) otherwise.
func (m Model) handleGlobalKeys(msg tea.KeyMsg) (Model, tea.Cmd, bool) {
	switch msg.String() {
	case "q":
		m.modal = modalQuitConfirm
		return m, nil, true
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit, true
	case "?":
		m.modal = modalHelp
		m.helpScroll = 0
		return m, nil, true
	case "/":
		m.inlineSearchActive = true
		m.searchInput.SetValue(m.searchQuery)
		m.searchInput.CursorEnd()
		cmd := m.searchInput.Focus()
		return m, cmd, true
	case "t":
		m2, cmd := m.cyclePeriod()
		return m2, cmd, true
	case "x":
		m.includeSecondary = !m.includeSecondary
		m2, cmd := m.reload()
		return m2, cmd, true
	}
	return m, nil, false
}

// handleAggregateKeys handles keys in the aggregate and drill-down views.
func (m Model) handleAggregateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.navigateList(msg.String(), len(m.rows)) {
		return m, nil
	}

	switch msg.String() {
	case "enter":
		if row, ok := m.currentRow(); ok {
			return m.enterDrillDown(row)
		}
		return m, nil

	case "a":
		if row, ok := m.currentRow(); ok {
			return m.openContracts(row)
		}
		return m, nil

	case "tab", "g":
		return m.cycleDimension(true)
	case "shift+tab":
		return m.cycleDimension(false)

	case "s":
		m.sortField = nextSort(aggregateSorts, m.sortField)
		m.sortDirection = query.DefaultDirection(m.sortField)
		return m.reload()

	case "r", "v":
		m.sortDirection = reverse(m.sortDirection)
		return m.reload()

	case "esc":
		if len(m.breadcrumbs) > 0 {
			return m.goBack()
		}
		if m.searchQuery != "" {
			m.searchQuery = ""
			m.searchInput.SetValue("")
			return m.reload()
		}
		return m, nil
	}
	return m, nil
}

// handleContractListKeys handles keys in the contract list.
func (m Model) handleContractListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.navigateList(msg.String(), len(m.contracts)) {
		return m, nil
	}

	switch msg.String() {
	case "enter":
		if m.cursor < len(m.contracts) {
			m.modal = modalContractDetail
		}
		return m, nil
	case "s":
		m.sortField = nextSort(contractSorts, m.sortField)
		m.sortDirection = query.DefaultDirection(m.sortField)
		return m.reload()
	case "r", "v":
		m.sortDirection = reverse(m.sortDirection)
		return m.reload()
	case "esc":
		return m.goBack()
	}
	return m, nil
}

// handleModalKeys handles keys when a modal is displayed.
func (m Model) handleModalKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.modal {
	case modalQuitConfirm:
		switch msg.String() {
		case "y", "Y", "q", "enter":
			m.quitting = true
			return m, tea.Quit
		default:
			m.modal = modalNone
			return m, nil
		}

	case modalHelp:
		switch msg.String() {
		case "up", "k":
			if m.helpScroll > 0 {
				m.helpScroll--
			}
			return m, nil
		case "down", "j":
			if m.helpScroll < len(rawHelpLines)-m.helpMaxVisible() {
				m.helpScroll++
			}
			return m, nil
		}
		m.modal = modalNone
		return m, nil

	default:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
		m.modal = modalNone
		return m, nil
	}
}

// currentRow returns the aggregate row under the cursor.
func (m Model) currentRow() (query.AggregateRow, bool) {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return query.AggregateRow{}, false
	}
	return m.rows[m.cursor], true
}

// enterDrillDown ranks the entities of the next dimension that share
// contracts with row.
func (m Model) enterDrillDown(row query.AggregateRow) (tea.Model, tea.Cmd) {
	source, value := m.dimension, row.Name
	if m.level == levelDrillDown {
		// A second Enter lists the contracts behind the pair.
		return m.openContracts(row)
	}
	m.pushBreadcrumb()
	m.level = levelDrillDown
	m.drillDimension = source
	m.drillValue = value
	m.dimension = nextDimension(source, source, true)
	m.cursor = 0
	m.scrollOffset = 0
	m.rows = nil
	return m.reload()
}

// openContracts lists the contracts behind row, keeping any drill pin.
func (m Model) openContracts(row query.AggregateRow) (tea.Model, tea.Cmd) {
	pins := []pin{{dimension: m.dimension, name: row.Name}}
	if m.level == levelDrillDown {
		pins = append([]pin{{dimension: m.drillDimension, name: m.drillValue}}, pins...)
	}
	m.pushBreadcrumb()
	m.level = levelContracts
	m.pins = pins
	m.sortField = query.SortDate
	m.sortDirection = query.Desc
	m.cursor = 0
	m.scrollOffset = 0
	m.contracts = nil
	return m.reload()
}

// cycleDimension switches the grouping dimension. In a drill-down the
// source dimension is skipped.
func (m Model) cycleDimension(forward bool) (tea.Model, tea.Cmd) {
	var skip snapshot.Dimension
	if m.level == levelDrillDown {
		skip = m.drillDimension
	}
	m.dimension = nextDimension(m.dimension, skip, forward)
	m.cursor = 0
	m.scrollOffset = 0
	return m.reload()
}

// cyclePeriod steps through all time and each year of the snapshot.
func (m Model) cyclePeriod() (Model, tea.Cmd) {
	if m.periods == nil || len(m.periods.Years) == 0 {
		m2, cmd := m.showFlash("No periods loaded")
		return m2.(Model), cmd
	}
	m.periodIndex = (m.periodIndex + 1) % (len(m.periods.Years) + 1)
	return m.reload()
}

// commitInlineSearch applies the search bar's query. A query that does
// not parse is reported and left in the bar for editing.
func (m Model) commitInlineSearch() (tea.Model, tea.Cmd) {
	q := m.searchInput.Value()
	prev := m.searchQuery
	m.searchQuery = q
	if _, err := m.chips(); err != nil {
		m.searchQuery = prev
		return m.showFlash("Invalid search: " + err.Error())
	}
	m.inlineSearchActive = false
	m.searchInput.Blur()
	return m.reload()
}

func nextSort(cycle []query.SortField, current query.SortField) query.SortField {
	for i, f := range cycle {
		if f == current {
			return cycle[(i+1)%len(cycle)]
		}
	}
	return cycle[0]
}

func reverse(d query.Direction) query.Direction {
	if d == query.Asc {
		return query.Desc
	}
	return query.Asc
}
