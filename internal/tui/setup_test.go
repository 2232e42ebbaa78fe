package tui

import (
	"regexp"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/shopspring/decimal"
	"github.com/wesm/contractlens/internal/query"
	"github.com/wesm/contractlens/internal/query/querytest"
	"github.com/wesm/contractlens/internal/snapshot"
)

// ansiStart is the escape sequence prefix found in styled terminal output.
const ansiStart = "\x1b["

// colorProfileMu serializes tests that mutate the global lipgloss color profile.
var colorProfileMu sync.Mutex

// forceColorProfile sets lipgloss to ANSI color output for tests that assert
// on styled output and restores the original profile via t.Cleanup.
func forceColorProfile(t *testing.T) {
	t.Helper()
	colorProfileMu.Lock()
	orig := lipgloss.ColorProfile()
	lipgloss.SetColorProfile(termenv.ANSI)
	t.Cleanup(func() {
		lipgloss.SetColorProfile(orig)
		colorProfileMu.Unlock()
	})
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)

func stripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

func date(s string) time.Time {
	t, err := time.Parse(snapshot.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// testRows are contractor rows matching the all-time ACME fixture.
func testRows() []query.AggregateRow {
	return []query.AggregateRow{
		{Rank: 1, Name: "Beta Supplies", Count: 1, Total: money("1000.50"), Average: money("1000.50")},
		{Rank: 2, Name: "Gamma Builders", Count: 2, Total: money("375.25"), Average: money("187.63")},
		{Rank: 3, Name: "ACME CORP", Count: 3, Total: money("350.00"), Average: money("116.67")},
		{Rank: 4, Name: "UNSPECIFIED", Count: 1, Total: money("10.00"), Average: money("10.00")},
	}
}

func testContracts() []query.Contract {
	return []query.Contract{
		{ReferenceID: "R-003", AwardTitle: "Bridge repair", Contractor: "ACME CORP", Organization: "City of Cebu",
			Area: "Cebu", Category: "Civil Works", Amount: money("50.00"), AwardDate: date("2021-01-01")},
		{ReferenceID: "R-002", AwardTitle: "Drainage canal", Contractor: "ACME CORP", Organization: "DPWH Region VII",
			Area: "Bohol", Category: "Civil Works", Amount: money("200.00"), AwardDate: date("2020-07-01")},
	}
}

func newTestEngine() *querytest.MockEngine {
	return &querytest.MockEngine{
		AggregateRows: testRows(),
		Contracts:     testContracts(),
		Totals:        query.Totals{Count: 7, Total: money("1735.75")},
		DomainValue:   snapshot.Domain{Min: date("2020-01-01"), Max: date("2021-12-31")},
		Periods: &query.TimeRanges{
			MinDate: date("2020-01-01"),
			MaxDate: date("2021-12-31"),
			Years: []query.Period{
				{Key: "2020", Start: date("2020-01-01"), End: date("2020-12-31"), RowCount: 4},
				{Key: "2021", Start: date("2021-01-01"), End: date("2021-12-31"), RowCount: 3},
			},
		},
	}
}

// newTestModel returns a 100x24 model over engine with no data loaded.
func newTestModel(engine query.Engine) Model {
	m := New(engine, Options{Version: "test123"})
	m, _ = sendMsg(nil, m, tea.WindowSizeMsg{Width: 100, Height: 24})
	return m
}

// loaded runs the model's pending load synchronously and applies the result.
func loaded(t *testing.T, m Model) Model {
	t.Helper()
	msg := m.loadData()()
	m, _ = sendMsg(t, m, msg)
	if m.err != nil {
		t.Fatalf("load failed: %v", m.err)
	}
	return m
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// sendKey sends a key message to the model and returns the updated concrete Model.
func sendKey(t *testing.T, m Model, k tea.KeyMsg) (Model, tea.Cmd) {
	if t != nil {
		t.Helper()
	}
	newM, cmd := m.Update(k)
	return newM.(Model), cmd
}

// sendMsg sends any tea.Msg through Update and returns the concrete Model.
func sendMsg(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	if t != nil {
		t.Helper()
	}
	newM, cmd := m.Update(msg)
	return newM.(Model), cmd
}

// lastRequest returns the most recent request the engine recorded.
func lastRequest(t *testing.T, eng *querytest.MockEngine) query.Request {
	t.Helper()
	if len(eng.Requests) == 0 {
		t.Fatal("engine recorded no requests")
	}
	return eng.Requests[len(eng.Requests)-1]
}
