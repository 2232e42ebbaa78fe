// Package tui provides a terminal user interface for browsing contract
// aggregates: rank entities, drill into related ones and list the
// contracts behind a row.
package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/wesm/contractlens/internal/filter"
	"github.com/wesm/contractlens/internal/query"
	"github.com/wesm/contractlens/internal/search"
	"github.com/wesm/contractlens/internal/snapshot"
)

// aggregateLimit is the maximum number of aggregate rows loaded for
// display. The footer shows "N of M" from the result's total count when
// more rows exist.
const aggregateLimit = filter.MaxLimit

// contractLimit is the maximum number of contracts loaded into a list.
const contractLimit = 500

// Options configuration for TUI.
type Options struct {
	Version string
}

// modalType represents the type of modal dialog.
type modalType int

const (
	modalNone modalType = iota
	modalQuitConfirm
	modalHelp
	modalContractDetail
)

// Model is the main TUI model following the Elm architecture.
type Model struct {
	viewState // Embedded state

	// Query engine for data access
	engine query.Engine

	// Version info for title bar
	version string

	// Navigation
	breadcrumbs []navigationSnapshot

	// Filters shared by every level
	searchQuery      string
	periods          *query.TimeRanges
	periodIndex      int // 0 = all time, i = periods.Years[i-1]
	includeSecondary bool

	// Rows visible per page, including the info line
	pageSize int

	// Modal state
	modal      modalType
	helpScroll int

	// Terminal dimensions
	width  int
	height int

	// Loading state
	loading       bool
	err           error
	spinnerFrame  int
	spinnerActive bool

	// Request tracking to ignore stale async results
	requestID uint64

	// Search state
	searchInput        textinput.Model
	inlineSearchActive bool

	flashMessage string
	flashID      int
	quitting     bool
}

// New creates a model that starts on the contractor ranking.
func New(engine query.Engine, opts Options) Model {
	ti := textinput.New()
	ti.Placeholder = "contractor:acme year:2023 road"
	ti.CharLimit = 500
	ti.Width = 60

	return Model{
		engine:  engine,
		version: opts.Version,
		viewState: viewState{
			level:         levelAggregates,
			dimension:     snapshot.Contractor,
			sortField:     query.SortTotal,
			sortDirection: query.Desc,
		},
		pageSize:      20,
		loading:       true,
		spinnerActive: true,
		searchInput:   ti,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.loadData(),
		m.loadPeriods(),
		spinnerTick(),
	)
}

// dataLoadedMsg is sent when the current view's rows are loaded.
type dataLoadedMsg struct {
	rows         []query.AggregateRow
	contracts    []query.Contract
	totalCount   int64
	globalTotals *query.Totals
	plan         *query.Plan
	err          error
	requestID    uint64 // To detect stale responses
}

// periodsLoadedMsg is sent when the snapshot's periods are loaded.
type periodsLoadedMsg struct {
	periods *query.TimeRanges
	err     error
}

// flashClearMsg clears the flash message it was scheduled for.
type flashClearMsg struct{ id int }

// spinnerTickMsg advances the loading spinner.
type spinnerTickMsg struct{}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const spinnerInterval = 80 * time.Millisecond

const flashDuration = 4 * time.Second

// chips builds the chip set shared by every level from the search query,
// the selected period and the secondary toggle. The period applies only
// when the query sets no dates of its own.
func (m Model) chips() (*filter.ChipSet, error) {
	domain := m.engine.Domain()
	raw, err := search.ParseRaw(m.searchQuery, domain)
	if err != nil {
		return nil, err
	}
	if p, ok := m.period(); ok && len(raw.TimeRanges) == 0 {
		raw.TimeRanges = [][]string{{
			p.Start.Format(snapshot.DateLayout),
			p.End.Format(snapshot.DateLayout),
		}}
	}
	raw.IncludeSecondary = raw.IncludeSecondary || m.includeSecondary
	return filter.Normalize(raw, domain)
}

// period returns the selected year, if any.
func (m Model) period() (query.Period, bool) {
	if m.periods == nil || m.periodIndex <= 0 || m.periodIndex > len(m.periods.Years) {
		return query.Period{}, false
	}
	return m.periods.Years[m.periodIndex-1], true
}

// loadData fetches the rows for the current view.
func (m Model) loadData() tea.Cmd {
	requestID := m.requestID
	state := m.viewState
	engine := m.engine
	chips, chipsErr := m.chips()

	return func() (msg tea.Msg) {
		// Recover from panics to prevent TUI from becoming unresponsive
		defer func() {
			if r := recover(); r != nil {
				msg = dataLoadedMsg{err: fmt.Errorf("query panic: %v", r), requestID: requestID}
			}
		}()
		if chipsErr != nil {
			return dataLoadedMsg{err: chipsErr, requestID: requestID}
		}

		ctx := context.Background()
		out := dataLoadedMsg{requestID: requestID}

		switch state.level {
		case levelAggregates, levelDrillDown:
			var res *query.AggregateResult
			var err error
			window := &filter.Window{Limit: aggregateLimit}
			if state.level == levelDrillDown {
				res, err = engine.RelatedEntities(ctx, query.RelatedRequest{
					Source:    state.drillDimension,
					Value:     state.drillValue,
					Target:    state.dimension,
					Chips:     chips,
					Sort:      state.sortField,
					Direction: state.sortDirection,
					Window:    window,
				})
			} else {
				res, err = engine.Aggregate(ctx, query.Request{
					Chips:     chips,
					Dimension: state.dimension,
					Sort:      state.sortField,
					Direction: state.sortDirection,
					Window:    window,
				})
			}
			if err != nil {
				out.err = err
				return out
			}
			totals := res.GlobalTotals
			out.rows = res.Rows
			out.totalCount = res.TotalCount
			out.globalTotals = &totals
			out.plan = res.Plan

		case levelContracts:
			for _, p := range state.pins {
				chips = chips.WithEntity(p.dimension, p.name)
			}
			res, err := engine.Search(ctx, query.Request{
				Chips:     chips,
				Sort:      state.sortField,
				Direction: state.sortDirection,
				Window:    &filter.Window{Limit: contractLimit},
			})
			if err != nil {
				out.err = err
				return out
			}
			out.contracts = res.Contracts
			out.totalCount = res.TotalCount
			out.plan = res.Plan
		}
		return out
	}
}

// loadPeriods fetches the years and quarters of the snapshot.
func (m Model) loadPeriods() tea.Cmd {
	engine := m.engine
	return func() (msg tea.Msg) {
		defer func() {
			if r := recover(); r != nil {
				msg = periodsLoadedMsg{err: fmt.Errorf("periods panic: %v", r)}
			}
		}()
		periods, err := engine.TimeRanges(context.Background())
		return periodsLoadedMsg{periods: periods, err: err}
	}
}

func spinnerTick() tea.Cmd {
	return tea.Tick(spinnerInterval, func(time.Time) tea.Msg {
		return spinnerTickMsg{}
	})
}

// startSpinner starts the spinner tick loop unless it is already running.
func (m *Model) startSpinner() tea.Cmd {
	if m.spinnerActive {
		return nil
	}
	m.spinnerActive = true
	return spinnerTick()
}

// reload invalidates in-flight loads and fetches the current view again.
func (m Model) reload() (Model, tea.Cmd) {
	m.requestID++
	m.loading = true
	m.err = nil
	spin := m.startSpinner()
	return m, tea.Batch(spin, m.loadData())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = max(msg.Width, 0)
		m.height = max(msg.Height, 0)
		// Reserve space for: title bar (1) + breadcrumb (1) + table header (1) + separator (1) + footer (1) = 5
		m.pageSize = max(m.height-5, 1)
		m.ensureCursorVisible()
		return m, nil

	case dataLoadedMsg:
		// Ignore stale responses from previous loads
		if msg.requestID != m.requestID {
			return m, nil
		}
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.rows = msg.rows
		m.contracts = msg.contracts
		m.totalCount = msg.totalCount
		m.globalTotals = msg.globalTotals
		m.plan = msg.plan
		m.cursor = 0
		m.scrollOffset = 0
		return m, nil

	case periodsLoadedMsg:
		if msg.err == nil {
			m.periods = msg.periods
		}
		return m, nil

	case spinnerTickMsg:
		if !m.loading {
			m.spinnerActive = false
			return m, nil
		}
		m.spinnerFrame = (m.spinnerFrame + 1) % len(spinnerFrames)
		return m, spinnerTick()

	case flashClearMsg:
		if msg.id == m.flashID {
			m.flashMessage = ""
		}
		return m, nil
	}

	if m.inlineSearchActive {
		var cmd tea.Cmd
		m.searchInput, cmd = m.searchInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

// showFlash displays message on the info line for flashDuration.
func (m Model) showFlash(message string) (tea.Model, tea.Cmd) {
	m.flashID++
	m.flashMessage = message
	id := m.flashID
	return m, tea.Tick(flashDuration, func(time.Time) tea.Msg {
		return flashClearMsg{id: id}
	})
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 {
		return "Loading..."
	}

	var body string
	switch m.level {
	case levelContracts:
		body = m.contractListView()
	default:
		body = m.aggregateTableView()
	}
	view := fmt.Sprintf("%s\n%s\n%s", m.headerView(), body, m.footerView())
	if m.modal != modalNone {
		return m.overlayModal(view)
	}
	return view
}

// Run starts the interactive browser on the terminal's alternate screen.
func Run(ctx context.Context, engine query.Engine, opts Options) error {
	p := tea.NewProgram(New(engine, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
