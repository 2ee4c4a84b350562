package content

const (
	genericDaily  = "✨ Hoy será un día especial lleno de buenas energías para ti. ✨"
	genericWeekly = "✨ Esta semana trae oportunidades maravillosas para tu crecimiento personal. ✨"
)

var fallbacks = map[Subject]struct{ daily, weekly string }{
	"cancer": {
		daily:  "🦀 Querida Cáncer: Hoy es un día especial para conectar con tus emociones y cuidar de quienes amas. Tu sensibilidad será tu mayor fortaleza y te guiará hacia decisiones acertadas. ✨",
		weekly: "🦀 Esta semana las energías lunares te favorecen especialmente. Es momento de nutrir tus relaciones más cercanas y confiar en tu intuición maternal. 🌙",
	},
	"acuario": {
		daily:  "🏺 Hermoso Acuario: Tu espíritu innovador brillará con fuerza especial hoy. Las amistades y conexiones sociales traerán sorpresas maravillosas. Deja que tu creatividad fluya libremente. ✨",
		weekly: "🏺 Semana perfecta para abrazar tu autenticidad completamente. Tu originalidad será reconocida y admirada. Las ideas creativas fluyen y tu visión única inspirará a otros. 💫",
	},
}

// Fallback returns the static text for subject. Both fields are always present.
func Fallback(subject Subject) Result {
	r := Result{Subject: subject, Daily: genericDaily, Weekly: genericWeekly, Source: SourceFallback}
	if fb, ok := fallbacks[subject]; ok {
		r.Daily, r.Weekly = fb.daily, fb.weekly
	}
	return r
}
