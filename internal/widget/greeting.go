package widget

const DefaultLocale = "en"

var greetings = map[string]string{
	"en": "Hi there! How can we help you today?",
	"fa": "سلام! چطور می‌توانیم به شما کمک کنیم؟",
}

// Greeting returns the configured override or the greeting for locale, falling back to English.
func Greeting(locale, override string) string {
	if override != "" {
		return override
	}
	if g, ok := greetings[locale]; ok {
		return g
	}
	return greetings[DefaultLocale]
}
