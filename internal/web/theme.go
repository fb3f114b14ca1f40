package web

// Theme is the colour gradient and emoji shown for a vacation.
type Theme struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Emoji string `json:"emoji"`
}

// KnownVacations lists the vacation names of the national calendar, in
// school-year order. The settings surface offers overrides for these.
var KnownVacations = []string{
	"Vacances de la Toussaint",
	"Vacances de Noël",
	"Vacances d'Hiver",
	"Vacances de Printemps",
	"Pont de l'Ascension",
	"Début des Vacances d'Été",
}

var themes = map[string]Theme{
	"Vacances de la Toussaint": {From: "#fb923c", To: "#eab308", Emoji: "🍁"},
	"Vacances de Noël":         {From: "#ef4444", To: "#22c55e", Emoji: "🎄"},
	"Vacances d'Hiver":         {From: "#7dd3fc", To: "#60a5fa", Emoji: "❄️"},
	"Vacances de Printemps":    {From: "#f472b6", To: "#c084fc", Emoji: "🌸"},
	"Pont de l'Ascension":      {From: "#38bdf8", To: "#818cf8", Emoji: "☁️"},
	"Début des Vacances d'Été": {From: "#fde047", To: "#fb923c", Emoji: "☀️"},
}

var defaultTheme = Theme{From: "#a1a1aa", To: "#e4e4e7", Emoji: "📅"}

// ThemeFor returns the theme of a vacation name, or the neutral default.
func ThemeFor(name string) Theme {
	if t, ok := themes[name]; ok {
		return t
	}
	return defaultTheme
}
