package schedule

// Style is the set of utility classes used to draw one goal.
type Style struct {
	Badge string
	Ring  string
	Dot   string
	// Term is a terminal colour for the same goal.
	Term string
}

// Palette is reused cyclically once there are more goals than entries.
var Palette = []Style{
	{Badge: "bg-violet-600/20 border border-violet-500/40 text-violet-200", Ring: "ring-violet-500/40", Dot: "bg-violet-400", Term: "#a78bfa"},
	{Badge: "bg-sky-600/20 border border-sky-500/40 text-sky-200", Ring: "ring-sky-500/40", Dot: "bg-sky-400", Term: "#38bdf8"},
	{Badge: "bg-amber-500/20 border border-amber-400/40 text-amber-100", Ring: "ring-amber-400/40", Dot: "bg-amber-400", Term: "#fbbf24"},
	{Badge: "bg-emerald-600/20 border border-emerald-500/40 text-emerald-100", Ring: "ring-emerald-500/40", Dot: "bg-emerald-400", Term: "#34d399"},
	{Badge: "bg-rose-600/20 border border-rose-500/40 text-rose-100", Ring: "ring-rose-500/40", Dot: "bg-rose-400", Term: "#fb7185"},
	{Badge: "bg-fuchsia-600/20 border border-fuchsia-500/40 text-fuchsia-100", Ring: "ring-fuchsia-500/40", Dot: "bg-fuchsia-400", Term: "#e879f9"},
	{Badge: "bg-cyan-600/20 border border-cyan-500/40 text-cyan-100", Ring: "ring-cyan-500/40", Dot: "bg-cyan-400", Term: "#22d3ee"},
	{Badge: "bg-lime-600/20 border border-lime-500/40 text-lime-100", Ring: "ring-lime-500/40", Dot: "bg-lime-400", Term: "#a3e635"},
}

// FallbackStyle is used for entries whose goal has no palette slot.
var FallbackStyle = Style{
	Badge: "bg-slate-700/50 border border-slate-600/40 text-slate-200",
	Ring:  "ring-slate-600/30",
	Dot:   "bg-slate-400",
	Term:  "#94a3b8",
}

// StyleMap assigns Palette[i % len(Palette)] to the i-th goal. Two goals may
// share a colour once the palette wraps.
func StyleMap(goals []string) map[string]Style {
	m := make(map[string]Style, len(goals))
	for i, g := range goals {
		m[g] = Palette[i%len(Palette)]
	}
	return m
}

func styleFor(m map[string]Style, goal string) Style {
	if s, ok := m[goal]; ok {
		return s
	}
	return FallbackStyle
}
