package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/taskmill/taskmill/internal/events"
)

// taskRow is the dashboard's view of one task, built up from bus events.
type taskRow struct {
	ID          string
	Description string
	Status      string // "running", "blocked", "completed", "failed"
	WaitingOn   string
	Detail      []string
}

// TaskPaneModel shows every task the scheduler has dispatched: a selectable
// list on the left and a scrollable detail viewport on the right.
type TaskPaneModel struct {
	rows        map[string]*taskRow
	rowOrder    []string // event arrival order for display
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
}

// NewTaskPaneModel creates an empty task pane.
func NewTaskPaneModel() TaskPaneModel {
	return TaskPaneModel{
		rows:     make(map[string]*taskRow),
		viewport: viewport.New(0, 0),
	}
}

// Update handles messages for the task pane.
func (m TaskPaneModel) Update(msg tea.Msg) (TaskPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeViewport()

	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.rowOrder)-1 {
				m.selectedIdx++
				m.refreshViewport()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.refreshViewport()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.TaskStartedEvent:
		row, exists := m.rows[msg.ID]
		if !exists {
			row = &taskRow{ID: msg.ID, Description: msg.Description}
			m.rows[msg.ID] = row
			m.rowOrder = append(m.rowOrder, msg.ID)
		}
		row.Status = "running"
		row.WaitingOn = ""
		if row.Detail == nil {
			row.Detail = []string{msg.Description, ""}
		} else {
			// A re-dispatch after suspension.
			row.Detail = append(row.Detail, "[resumed]")
		}
		row.Detail = append(row.Detail, fmt.Sprintf("[started %s]", msg.Timestamp.Format("15:04:05")))
		m.refreshSelected(msg.ID)

	case events.TaskBlockedEvent:
		if row, exists := m.rows[msg.ID]; exists {
			row.Status = "blocked"
			row.WaitingOn = msg.WaitingOn
			row.Detail = append(row.Detail, fmt.Sprintf("[blocked waiting on %s]", msg.WaitingOn))
			m.refreshSelected(msg.ID)
		}

	case events.TaskCompletedEvent:
		if row, exists := m.rows[msg.ID]; exists {
			row.Status = "completed"
			row.WaitingOn = ""
			if msg.Result != "" {
				row.Detail = append(row.Detail, "", msg.Result)
			}
			row.Detail = append(row.Detail, fmt.Sprintf("[completed in %v]", msg.Duration))
			m.refreshSelected(msg.ID)
		}

	case events.TaskFailedEvent:
		if row, exists := m.rows[msg.ID]; exists {
			row.Status = "failed"
			row.WaitingOn = ""
			row.Detail = append(row.Detail, fmt.Sprintf("[failed: %v]", msg.Err))
			m.refreshSelected(msg.ID)
		}
	}

	return m, cmd
}

// View renders the task pane.
func (m TaskPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	listWidth := 30
	viewportWidth := m.width - listWidth - 4

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderTaskList(listWidth),
		lipgloss.NewStyle().
			Width(viewportWidth).
			Height(m.height-2).
			Render(m.viewport.View()),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m TaskPaneModel) renderTaskList(width int) string {
	var b strings.Builder

	title := StyleTitle.Render("Tasks")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	if len(m.rowOrder) == 0 {
		b.WriteString(StyleStatusPending.Render("Waiting..."))
	} else {
		for i, id := range m.rowOrder {
			row := m.rows[id]
			label := row.ID
			if len(label) > width-6 {
				label = label[:width-9] + "..."
			}
			line := fmt.Sprintf("%s %s", statusIcon(row.Status), label)
			if i == m.selectedIdx {
				line = StyleSelected.Render(line)
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.height - 2).
		Render(b.String())
}

func statusIcon(status string) string {
	switch status {
	case "running":
		return StyleStatusRunning.Render("●")
	case "blocked":
		return StyleStatusBlocked.Render("◌")
	case "completed":
		return StyleStatusComplete.Render("✓")
	case "failed":
		return StyleStatusFailed.Render("✗")
	default:
		return StyleStatusPending.Render("○")
	}
}

func (m TaskPaneModel) selectedID() string {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.rowOrder) {
		return m.rowOrder[m.selectedIdx]
	}
	return ""
}

// refreshSelected updates the viewport when the event concerns the selected
// row, or selects the first row on first arrival.
func (m *TaskPaneModel) refreshSelected(id string) {
	if len(m.rowOrder) == 1 {
		m.selectedIdx = 0
	}
	if m.selectedID() == id {
		m.refreshViewport()
	}
}

func (m *TaskPaneModel) refreshViewport() {
	id := m.selectedID()
	if id == "" {
		m.viewport.SetContent("Waiting for tasks...")
		return
	}
	row := m.rows[id]
	m.viewport.SetContent(strings.Join(row.Detail, "\n"))
	m.viewport.GotoBottom()
}

func (m *TaskPaneModel) resizeViewport() {
	viewportWidth := m.width - 30 - 4
	viewportHeight := m.height - 4

	if viewportWidth < 10 {
		viewportWidth = 10
	}
	if viewportHeight < 5 {
		viewportHeight = 5
	}
	m.viewport.Width = viewportWidth
	m.viewport.Height = viewportHeight
}

// SetSize updates the pane dimensions.
func (m *TaskPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *TaskPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
