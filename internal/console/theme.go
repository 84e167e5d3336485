package console

import "github.com/charmbracelet/lipgloss"

// Theme defines the colors of the console.
type Theme struct {
	Primary        lipgloss.Color // title, cursor
	Secondary      lipgloss.Color // selected row text
	Error          lipgloss.Color // errors, jailbroken labels
	Warning        lipgloss.Color // busy indicator, omitted providers
	Success        lipgloss.Color // safe labels, commit receipts
	Text           lipgloss.Color
	TextMuted      lipgloss.Color // hints, notes
	BackgroundElem lipgloss.Color // selected row background
	Border         lipgloss.Color
}

// DarkTheme is the default.
func DarkTheme() Theme {
	return Theme{
		Primary:        lipgloss.Color("#fab283"),
		Secondary:      lipgloss.Color("#5c9cf5"),
		Error:          lipgloss.Color("#e06c75"),
		Warning:        lipgloss.Color("#f5a742"),
		Success:        lipgloss.Color("#7fd88f"),
		Text:           lipgloss.Color("#eeeeee"),
		TextMuted:      lipgloss.Color("#808080"),
		BackgroundElem: lipgloss.Color("#1e1e1e"),
		Border:         lipgloss.Color("#484848"),
	}
}

// LightTheme suits bright terminal backgrounds.
func LightTheme() Theme {
	return Theme{
		Primary:        lipgloss.Color("#b35c00"),
		Secondary:      lipgloss.Color("#0550ae"),
		Error:          lipgloss.Color("#cf222e"),
		Warning:        lipgloss.Color("#bf8700"),
		Success:        lipgloss.Color("#116329"),
		Text:           lipgloss.Color("#1f2328"),
		TextMuted:      lipgloss.Color("#656d76"),
		BackgroundElem: lipgloss.Color("#f6f8fa"),
		Border:         lipgloss.Color("#d0d7de"),
	}
}

// ThemeByName returns a theme by name. Defaults to dark.
func ThemeByName(name string) Theme {
	switch name {
	case "light":
		return LightTheme()
	default:
		return DarkTheme()
	}
}

// styles holds the lipgloss styles derived from a Theme.
type styles struct {
	title      lipgloss.Style
	header     lipgloss.Style
	selected   lipgloss.Style
	busy       lipgloss.Style
	safe       lipgloss.Style
	jailbroken lipgloss.Style
	err        lipgloss.Style
	dim        lipgloss.Style
	text       lipgloss.Style
}

func newStyles(t Theme) styles {
	return styles{
		title:      lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		header:     lipgloss.NewStyle().Foreground(t.Border),
		selected:   lipgloss.NewStyle().Bold(true).Foreground(t.Secondary).Background(t.BackgroundElem),
		busy:       lipgloss.NewStyle().Foreground(t.Warning),
		safe:       lipgloss.NewStyle().Foreground(t.Success),
		jailbroken: lipgloss.NewStyle().Bold(true).Foreground(t.Error),
		err:        lipgloss.NewStyle().Foreground(t.Error),
		dim:        lipgloss.NewStyle().Foreground(t.TextMuted),
		text:       lipgloss.NewStyle().Foreground(t.Text),
	}
}
