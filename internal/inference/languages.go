package inference

// languageCodes maps request language names to the model's internal
// language IDs.
var languageCodes = map[string]int{
	"auto":     0,
	"zh":       3,
	"en":       4,
	"yue":      7,
	"ja":       11,
	"ko":       12,
	"nospeech": 13,
}

// languageOrder keeps /languages output stable.
var languageOrder = []string{"auto", "zh", "en", "yue", "ja", "ko", "nospeech"}

// Languages returns the supported language names in a stable order
func Languages() []string {
	out := make([]string, len(languageOrder))
	copy(out, languageOrder)
	return out
}

// LanguageCodes returns the language name to model ID mapping
func LanguageCodes() map[string]int {
	out := make(map[string]int, len(languageCodes))
	for k, v := range languageCodes {
		out[k] = v
	}
	return out
}

// IsSupportedLanguage reports whether name is a valid request language
func IsSupportedLanguage(name string) bool {
	_, ok := languageCodes[name]
	return ok
}
