package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/wesm/contractlens/internal/query"
	"github.com/wesm/contractlens/internal/snapshot"
)

// viewLevel represents the current navigation depth.
type viewLevel int

const (
	levelAggregates viewLevel = iota
	levelDrillDown            // Related entities of one drilled entity
	levelContracts
)

// pin restricts the contract list to one entity.
type pin struct {
	dimension snapshot.Dimension
	name      string
}

// viewState encapsulates the state for a specific view (cursor, sort, filters, data).
type viewState struct {
	level         viewLevel
	dimension     snapshot.Dimension // Grouping dimension, or drill target
	sortField     query.SortField
	sortDirection query.Direction
	cursor        int
	scrollOffset  int

	// Drill-down source
	drillDimension snapshot.Dimension
	drillValue     string

	// Entity pins for the contract list
	pins []pin

	// Data
	rows         []query.AggregateRow
	contracts    []query.Contract
	totalCount   int64
	globalTotals *query.Totals
	plan         *query.Plan
}

// navigationSnapshot stores state for navigation history.
type navigationSnapshot struct {
	state viewState
}

// calculateScrollOffset computes the new scroll offset to keep cursor visible within pageSize.
func calculateScrollOffset(cursor, currentOffset, pageSize int) int {
	if cursor < currentOffset {
		return cursor
	}
	if cursor >= currentOffset+pageSize {
		return cursor - pageSize + 1
	}
	return currentOffset
}

// visibleRows is the number of table rows that fit above the info line.
func (m Model) visibleRows() int {
	return max(m.pageSize-1, 1)
}

func (m *Model) ensureCursorVisible() {
	m.scrollOffset = calculateScrollOffset(m.cursor, m.scrollOffset, m.visibleRows())
}

// rowCount returns the number of loaded rows in the current view.
func (m Model) rowCount() int {
	if m.level == levelContracts {
		return len(m.contracts)
	}
	return len(m.rows)
}

// navigateList moves the cursor for a list navigation key. It reports
// whether key was a navigation key.
func (m *Model) navigateList(key string, n int) bool {
	switch key {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < n-1 {
			m.cursor++
		}
	case "pgup", "ctrl+u":
		m.cursor = max(m.cursor-m.visibleRows(), 0)
	case "pgdown", "ctrl+d":
		m.cursor = max(min(m.cursor+m.visibleRows(), n-1), 0)
	case "home":
		m.cursor = 0
	case "end", "G":
		m.cursor = max(n-1, 0)
	default:
		return false
	}
	m.ensureCursorVisible()
	return true
}

// pushBreadcrumb saves the current view so goBack can restore it.
func (m *Model) pushBreadcrumb() {
	m.breadcrumbs = append(m.breadcrumbs, navigationSnapshot{state: m.viewState})
}

// goBack restores the previous view without reloading it.
func (m Model) goBack() (tea.Model, tea.Cmd) {
	if len(m.breadcrumbs) == 0 {
		return m, nil
	}
	bc := m.breadcrumbs[len(m.breadcrumbs)-1]
	m.breadcrumbs = m.breadcrumbs[:len(m.breadcrumbs)-1]
	m.viewState = bc.state

	// Any in-flight load belongs to the view being left.
	m.requestID++
	m.err = nil
	m.loading = false
	return m, nil
}

// nextDimension returns the dimension after d in display order, skipping
// skip when it is set.
func nextDimension(d, skip snapshot.Dimension, forward bool) snapshot.Dimension {
	dims := snapshot.Dimensions
	idx := 0
	for i, x := range dims {
		if x == d {
			idx = i
			break
		}
	}
	step := 1
	if !forward {
		step = len(dims) - 1
	}
	for range dims {
		idx = (idx + step) % len(dims)
		if dims[idx] != skip {
			return dims[idx]
		}
	}
	return d
}
