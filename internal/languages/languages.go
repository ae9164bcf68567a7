// Package languages holds the table of languages human review is open for.
// Keep this list intentionally small and explicit until more languages roll out.
package languages

import "strings"

// Language describes one supported review language.
type Language struct {
	BCP47       string
	ISO639      string
	DisplayName string
	Aliases     []string
}

var Supported = []Language{
	{BCP47: "es-ES", ISO639: "es", DisplayName: "Spanish", Aliases: []string{"spanish", "es", "es-es"}},
	{BCP47: "fr-FR", ISO639: "fr", DisplayName: "French", Aliases: []string{"french", "fr", "fr-fr"}},
	{BCP47: "de-DE", ISO639: "de", DisplayName: "German", Aliases: []string{"german", "de", "de-de"}},
	{BCP47: "it-IT", ISO639: "it", DisplayName: "Italian", Aliases: []string{"italian", "it", "it-it"}},
	{BCP47: "pt-PT", ISO639: "pt", DisplayName: "Portuguese", Aliases: []string{"portuguese", "pt", "pt-pt", "pt-br"}},
	{BCP47: "nl-NL", ISO639: "nl", DisplayName: "Dutch", Aliases: []string{"dutch", "nl", "nl-nl"}},
	{BCP47: "af-ZA", ISO639: "af", DisplayName: "Afrikaans", Aliases: []string{"afrikaans", "af", "af-za"}},
	{BCP47: "zu-ZA", ISO639: "zu", DisplayName: "Zulu", Aliases: []string{"zulu", "zu", "zu-za"}},
	{BCP47: "xh-ZA", ISO639: "xh", DisplayName: "Xhosa", Aliases: []string{"xhosa", "xh", "xh-za"}},
}

// Normalize resolves a user-supplied language string (alias, ISO code or
// BCP 47 tag, any case) to the canonical entry, or nil if unsupported.
func Normalize(input string) *Language {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return nil
	}

	for i := range Supported {
		lang := &Supported[i]
		if strings.ToLower(lang.BCP47) == normalized || strings.ToLower(lang.ISO639) == normalized {
			return lang
		}
		for _, alias := range lang.Aliases {
			if alias == normalized {
				return lang
			}
		}
	}
	return nil
}

// IsSupported reports whether code resolves to a supported language.
func IsSupported(code string) bool {
	return Normalize(code) != nil
}
