package window

// defaultContextWindow applies to models missing from knownContextWindows.
const defaultContextWindow = 2049

// knownContextWindows maps completion models to their context window in
// tokens.
var knownContextWindows = map[string]int{
	"gpt-4-32k":          32768,
	"gpt-4-32k-0314":     32768,
	"gpt-4":              8192,
	"gpt-4-0314":         8192,
	"gpt-3.5-turbo":      4096,
	"gpt-3.5-turbo-0301": 4096,
	"text-davinci-003":   4097,
	"text-davinci-002":   4097,
	"code-davinci-002":   8001,
}

// ContextWindowSize returns the context window of engine in tokens.
func ContextWindowSize(engine string) int {
	if size, ok := knownContextWindows[engine]; ok {
		return size
	}
	return defaultContextWindow
}
