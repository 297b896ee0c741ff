package domain

import "fmt"

// Language is a supported answer/query language, addressed by ISO 639-1 code
// in URLs.
type Language struct {
	Code string
	Name string
}

var supportedLanguages = map[string]Language{
	"en": {Code: "en", Name: "English"},
	"de": {Code: "de", Name: "German"},
	"fr": {Code: "fr", Name: "French"},
	"es": {Code: "es", Name: "Spanish"},
	"pl": {Code: "pl", Name: "Polish"},
	"hu": {Code: "hu", Name: "Hungarian"},
	"nl": {Code: "nl", Name: "Dutch"},
	"pt": {Code: "pt", Name: "Portuguese"},
}

// ParseLanguage resolves a language path parameter.
func ParseLanguage(code string) (Language, error) {
	lang, ok := supportedLanguages[code]
	if !ok {
		return Language{}, fmt.Errorf("%w: unsupported language code %q", ErrInvalidRequest, code)
	}
	return lang, nil
}
