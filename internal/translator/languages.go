package translator

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// supportedTargets are the target languages offered in pickers. Not every
// backend takes all of them, see SupportsTarget.
var supportedTargets = []language.Tag{
	language.Bulgarian, language.Czech, language.Danish, language.German,
	language.Greek, language.English, language.Spanish, language.Estonian,
	language.Finnish, language.French, language.Hungarian, language.Indonesian,
	language.Italian, language.Japanese, language.Korean, language.Lithuanian,
	language.Latvian, language.Norwegian, language.Dutch, language.Polish,
	language.Portuguese, language.Romanian, language.Russian, language.Slovak,
	language.Slovenian, language.Swedish, language.Turkish, language.Ukrainian,
	language.Chinese, language.Arabic, language.Hindi,
}

// deeplMissing are supported targets DeepL has no model for.
var deeplMissing = map[language.Base]bool{
	baseOf(language.Hindi): true,
}

func baseOf(tag language.Tag) language.Base {
	base, _ := tag.Base()
	return base
}

// ParseTarget parses a target language code. It accepts "FR", "fr",
// "fr-CA" and the "FR - French" form used in language pickers. A region
// given explicitly is kept, so "en-GB" stays British English.
func ParseTarget(value string) (language.Tag, error) {
	code := strings.TrimSpace(value)
	if i := strings.Index(code, " - "); i > 0 {
		code = code[:i]
	}
	if code == "" {
		return language.Und, fmt.Errorf("target language is required")
	}

	tag, err := language.Parse(code)
	if err != nil {
		return language.Und, fmt.Errorf("invalid target language %q: %w", value, err)
	}

	base, _ := tag.Base()
	for _, supported := range supportedTargets {
		if baseOf(supported) != base {
			continue
		}
		if region, conf := tag.Region(); conf == language.Exact {
			if regional, err := language.Compose(base, region); err == nil {
				return regional, nil
			}
		}
		return supported, nil
	}
	return language.Und, fmt.Errorf("unsupported target language %q", value)
}

// SupportsTarget reports whether service can translate into tag.
func SupportsTarget(service Service, tag language.Tag) bool {
	if service == ServiceDeepL && deeplMissing[baseOf(tag)] {
		return false
	}
	return true
}

// LanguageOption is one "CODE - Name" entry for pickers.
type LanguageOption struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

func (o LanguageOption) String() string {
	return o.Code + " - " + o.Name
}

// SupportedLanguages lists the target languages sorted by code.
func SupportedLanguages() []LanguageOption {
	namer := display.English.Languages()
	options := make([]LanguageOption, 0, len(supportedTargets))
	for _, tag := range supportedTargets {
		options = append(options, LanguageOption{
			Code: Code(tag),
			Name: namer.Name(tag),
		})
	}
	sort.Slice(options, func(i, j int) bool { return options[i].Code < options[j].Code })
	return options
}

// Code is the upper-case base language code, e.g. "FR".
func Code(tag language.Tag) string {
	base, _ := tag.Base()
	return strings.ToUpper(base.String())
}

// DisplayName is the English name of tag, e.g. "French".
func DisplayName(tag language.Tag) string {
	return display.English.Languages().Name(tag)
}
