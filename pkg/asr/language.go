package asr

import (
	"strings"
	"unicode"
)

// languageNames maps lowercase ISO-style codes to the canonical full names
// the recognition engine expects.
var languageNames = map[string]string{
	"zh":  "Chinese",
	"yue": "Cantonese",
	"en":  "English",
	"ja":  "Japanese",
	"ko":  "Korean",
	"de":  "German",
	"fr":  "French",
	"es":  "Spanish",
	"pt":  "Portuguese",
	"ar":  "Arabic",
	"it":  "Italian",
	"hi":  "Hindi",
	"id":  "Indonesian",
	"th":  "Thai",
	"tr":  "Turkish",
	"uk":  "Ukrainian",
	"vi":  "Vietnamese",
	"cs":  "Czech",
	"da":  "Danish",
	"fil": "Filipino",
	"fi":  "Finnish",
	"is":  "Icelandic",
	"ms":  "Malay",
	"no":  "Norwegian",
	"pl":  "Polish",
	"sv":  "Swedish",
	"nl":  "Dutch",
	"fa":  "Persian",
	"el":  "Greek",
	"ro":  "Romanian",
	"hu":  "Hungarian",
	"mk":  "Macedonian",
	"ru":  "Russian",
}

// languageCodes is the reverse map, keyed by lowercase full name.
var languageCodes = func() map[string]string {
	m := make(map[string]string, len(languageNames))
	for code, name := range languageNames {
		m[strings.ToLower(name)] = code
	}
	return m
}()

// NormalizeLanguage converts a client language hint into the form the engine
// expects. "auto" and empty mean no hint. Uppercase-initial strings are
// already full names and pass through. Lowercase ISO codes map to full names;
// unknown codes pass through unchanged.
func NormalizeLanguage(language string) string {
	if language == "" {
		return ""
	}
	if unicode.IsUpper([]rune(language)[0]) {
		return language
	}
	lower := strings.ToLower(language)
	if lower == "auto" {
		return ""
	}
	if name, ok := languageNames[lower]; ok {
		return name
	}
	return language
}

// LanguageCode converts a full language name from the engine back to its ISO
// code for the wire. Unknown or empty names default to "zh".
func LanguageCode(name string) string {
	if code, ok := languageCodes[strings.ToLower(name)]; ok {
		return code
	}
	return "zh"
}
