// Package langdetect identifies the language of transcript text.
package langdetect

import (
	"strings"
	"sync"

	"github.com/pemistahl/lingua-go"
	_ "github.com/pemistahl/lingua-go/language-models/de"
	_ "github.com/pemistahl/lingua-go/language-models/en"
	_ "github.com/pemistahl/lingua-go/language-models/es"
	_ "github.com/pemistahl/lingua-go/language-models/fr"
	_ "github.com/pemistahl/lingua-go/language-models/ja"
	_ "github.com/pemistahl/lingua-go/language-models/ko"
	_ "github.com/pemistahl/lingua-go/language-models/pt"
	_ "github.com/pemistahl/lingua-go/language-models/zh"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

var (
	once     sync.Once
	detector lingua.LanguageDetector
)

// The detector model is large; build it once, on first use, from the
// languages meeting audio realistically contains.
func get() lingua.LanguageDetector {
	once.Do(func() {
		detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(
				lingua.English,
				lingua.Japanese,
				lingua.Chinese,
				lingua.Korean,
				lingua.Spanish,
				lingua.French,
				lingua.German,
				lingua.Portuguese,
			).
			WithPreloadedLanguageModels().
			Build()
	})
	return detector
}

// Detect returns the ISO-639-1 code and English display name for text.
// Returns ("auto", "Unknown") when the text is too short or ambiguous.
func Detect(text string) (code, name string) {
	if strings.TrimSpace(text) == "" {
		return "auto", "Unknown"
	}
	lang, ok := get().DetectLanguageOf(text)
	if !ok {
		return "auto", "Unknown"
	}

	code = strings.ToLower(lang.IsoCode639_1().String())
	tag := language.Make(code)
	name = display.English.Tags().Name(tag)
	if name == "" {
		name = lang.String()
	}
	return code, name
}

// Tagger adapts Detect for the question pipeline, which wants only a
// code and treats empty as undetermined.
type Tagger struct{}

func (Tagger) Detect(text string) string {
	code, _ := Detect(text)
	if code == "auto" {
		return ""
	}
	return code
}
