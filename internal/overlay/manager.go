package overlay

import (
	"fmt"
	"image"
	"sync"

	"github.com/bryanchriswhite/framerelay/internal/logger"
)

// Manager holds the widgets of one view. Widgets are drawn in the order
// they were added, so later ones land on top.
type Manager struct {
	layers  []Widget
	mu      sync.RWMutex
	enabled bool
}

// NewManager creates an enabled manager with no widgets
func NewManager() *Manager {
	return &Manager{enabled: true}
}

// AddWidget stacks widget above the existing ones. IDs must be unique.
func (m *Manager) AddWidget(widget Widget) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range m.layers {
		if w.ID() == widget.ID() {
			return fmt.Errorf("widget with ID %s already exists", widget.ID())
		}
	}

	m.layers = append(m.layers, widget)
	logger.WithComponent("overlay").Debug().
		Str("widget", widget.ID()).
		Int("layer", len(m.layers)-1).
		Msg("Added widget")
	return nil
}

// Widget looks a widget up by ID
func (m *Manager) Widget(id string) (Widget, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, w := range m.layers {
		if w.ID() == id {
			return w, true
		}
	}
	return nil, false
}

// Widgets returns the widgets bottom layer first
func (m *Manager) Widgets() []Widget {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Widget(nil), m.layers...)
}

// SetEnabled enables or disables the entire overlay
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
}

// IsEnabled returns whether the overlay is enabled
func (m *Manager) IsEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// Render draws every enabled widget onto img, bottom layer first. A widget
// that fails to render is logged and skipped.
func (m *Manager) Render(img *image.RGBA) {
	if !m.IsEnabled() {
		return
	}

	for _, widget := range m.Widgets() {
		if !widget.IsEnabled() {
			continue
		}
		if err := widget.Render(img); err != nil {
			logger.WithComponent("overlay").Warn().
				Err(err).
				Str("widget", widget.ID()).
				Msg("Failed to render widget")
		}
	}
}
