package styles

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	JellyfinPurple = lipgloss.Color("#AA5CC3")
	JellyfinBlue   = lipgloss.Color("#00A4DC")
	SlateDark      = lipgloss.Color("#1F2937")
	SlateLight     = lipgloss.Color("#374151")
	DimGray        = lipgloss.Color("#6B7280")
	LightGray      = lipgloss.Color("#9CA3AF")
	White          = lipgloss.Color("#F9FAFB")
	Green          = lipgloss.Color("#10B981")
	Red            = lipgloss.Color("#EF4444")
	Yellow         = lipgloss.Color("#F59E0B")
)

// Borders
var (
	PanelBorder = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(JellyfinPurple).
		Padding(0, 1)
)

// Text styles
var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(White).
			Bold(true)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(LightGray)

	DimStyle = lipgloss.NewStyle().
			Foreground(DimGray)

	AccentStyle = lipgloss.NewStyle().
			Foreground(JellyfinBlue)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Red)

	WarningStyle = lipgloss.NewStyle().
			Foreground(Yellow)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(Green)

	BadgeStyle = lipgloss.NewStyle().
			Foreground(White).
			Background(JellyfinPurple).
			Padding(0, 1)
)

// Progress bar
const (
	BarFilledChar = "━"
	BarEmptyChar  = "─"
	BarHeadChar   = "●"
)

var (
	BarFilledStyle = lipgloss.NewStyle().Foreground(JellyfinBlue)
	BarEmptyStyle  = lipgloss.NewStyle().Foreground(SlateLight)
	BarScrubStyle  = lipgloss.NewStyle().Foreground(Yellow)
)

// State indicators
var (
	PlayingIcon   = SuccessStyle.Render("▶")
	PausedIcon    = AccentStyle.Render("⏸")
	BufferingIcon = WarningStyle.Render("◌")
	StoppedIcon   = DimStyle.Render("■")
	ErrorIcon     = ErrorStyle.Render("✗")
)
