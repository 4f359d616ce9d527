package narrate

// ModelInfo describes the context window and indicative pricing of a model.
type ModelInfo struct {
	Name          string
	ContextTokens int
	InputPerK     float64 // USD per 1K prompt tokens
	OutputPerK    float64 // USD per 1K completion tokens
}

// Prices are indicative only; they feed the cost line printed after a draft.
var models = map[string]ModelInfo{
	"openai/gpt-4o-mini":               {"openai/gpt-4o-mini", 128000, 0.0006, 0.0024},
	"openai/gpt-4o":                    {"openai/gpt-4o", 128000, 0.005, 0.015},
	"openai/gpt-4.1-mini":              {"openai/gpt-4.1-mini", 128000, 0.0005, 0.0015},
	"anthropic/claude-3-haiku":         {"anthropic/claude-3-haiku", 200000, 0.00025, 0.00125},
	"google/gemini-1.5-flash":          {"google/gemini-1.5-flash", 1000000, 0.0002, 0.0008},
	"meta-llama/llama-3.1-8b-instruct": {"meta-llama/llama-3.1-8b-instruct", 131072, 0, 0},
	"deepseek/deepseek-r1:free":        {"deepseek/deepseek-r1:free", 128000, 0, 0},
	"llama3:latest":                    {"llama3:latest", 8192, 0, 0},
	"llama3.1:8b-instruct":             {"llama3.1:8b-instruct", 8192, 0, 0},
	"mistral:7b-instruct":              {"mistral:7b-instruct", 8192, 0, 0},
	"phi3:mini-4k-instruct":            {"phi3:mini-4k-instruct", 4096, 0, 0},
}

// LookupModel returns the catalog entry for name.
func LookupModel(name string) (ModelInfo, bool) {
	mi, ok := models[name]
	return mi, ok
}

// EstimateCostUSD prices a call; ok is false for models outside the catalog.
func EstimateCostUSD(model string, promptTokens, completionTokens int) (float64, bool) {
	mi, ok := LookupModel(model)
	if !ok {
		return 0, false
	}
	return float64(promptTokens)/1000*mi.InputPerK + float64(completionTokens)/1000*mi.OutputPerK, true
}
