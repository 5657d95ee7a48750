// Package ui renders the single classification page and holds the explicit
// per-session state it depends on.
package ui

import (
	"embed"
	"fmt"
	"html/template"
	"io"
)

//go:embed templates/*.html
var templateFS embed.FS

// Assets holds the stylesheet and script served under /static.
//
//go:embed assets
var Assets embed.FS

// AssetsRoot is the directory inside Assets that maps to /static.
const AssetsRoot = "assets"

// Theme is the page colour scheme.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// ParseTheme maps a stored value to a Theme, defaulting to light.
func ParseTheme(s string) Theme {
	if Theme(s) == ThemeDark {
		return ThemeDark
	}
	return ThemeLight
}

// Toggle returns the other theme.
func (t Theme) Toggle() Theme {
	if t == ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}

// Palette holds the colours the page uses for a theme.
type Palette struct {
	Background template.CSS
	Text       template.CSS
	Heading    template.CSS
	ToggleIcon string
	ToggleHint string
}

// Palette returns the colours of t.
func (t Theme) Palette() Palette {
	if t == ThemeDark {
		return Palette{
			Background: "#121212",
			Text:       "white",
			Heading:    "white",
			ToggleIcon: "☀️",
			ToggleHint: "Switch to light mode",
		}
	}
	return Palette{
		Background: "linear-gradient(135deg, #f5f7fa 0%, #c3cfe2 100%)",
		Text:       "black",
		Heading:    "#2c3e50",
		ToggleIcon: "🌙",
		ToggleHint: "Switch to dark mode",
	}
}

// AppState is everything the page needs to know about the visitor.
type AppState struct {
	Theme Theme
}

type pageData struct {
	State      AppState
	Palette    Palette
	LabelSet   string
	LabelCount int
	Threshold  string
}

// Page renders the classification page.
type Page struct {
	tmpl      *template.Template
	labelSet  string
	labels    int
	threshold string
}

// NewPage parses the embedded template. threshold is shown in the result
// caption; a negative value means every class is listed.
func NewPage(labelSetName string, labelCount int, threshold float64) (*Page, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("ui: parse template: %w", err)
	}
	caption := "all classes"
	if threshold >= 0 {
		caption = fmt.Sprintf("classes above %.1f%%", threshold*100)
	}
	return &Page{tmpl: tmpl, labelSet: labelSetName, labels: labelCount, threshold: caption}, nil
}

// Render writes the page for state to w.
func (p *Page) Render(w io.Writer, state AppState) error {
	return p.tmpl.ExecuteTemplate(w, "index.html", pageData{
		State:      state,
		Palette:    state.Theme.Palette(),
		LabelSet:   p.labelSet,
		LabelCount: p.labels,
		Threshold:  p.threshold,
	})
}
