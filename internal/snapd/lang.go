package snapd

import (
	"fmt"
	"os"
	"strings"
)

// languageNames returns the user's preferred locale names, most preferred
// first, always ending with "C". Each configured locale is expanded into its
// variants (lang_TERRITORY.CODESET@MODIFIER down to lang).
func languageNames(getenv func(string) string) []string {
	if getenv == nil {
		getenv = os.Getenv
	}

	value := ""
	for _, name := range []string{"LANGUAGE", "LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := getenv(name); v != "" {
			value = v
			break
		}
	}
	if value == "" {
		value = "C"
	}

	var names []string
	for _, locale := range strings.Split(value, ":") {
		if locale == "" {
			continue
		}
		names = append(names, localeVariants(locale)...)
	}
	return append(names, "C")
}

func localeVariants(locale string) []string {
	const (
		codeset = 1 << iota
		territory
		modifier
	)

	lang := locale
	var mod, cs, terr string
	var mask int
	if i := strings.IndexByte(lang, '@'); i >= 0 {
		mod, lang = lang[i:], lang[:i]
		mask |= modifier
	}
	if i := strings.IndexByte(lang, '.'); i >= 0 {
		cs, lang = lang[i:], lang[:i]
		mask |= codeset
	}
	if i := strings.IndexByte(lang, '_'); i >= 0 {
		terr, lang = lang[i:], lang[:i]
		mask |= territory
	}

	variants := make([]string, 0, 8)
	for j := 0; j <= mask; j++ {
		i := mask - j
		if i&^mask != 0 {
			continue
		}
		v := lang
		if i&territory != 0 {
			v += terr
		}
		if i&codeset != 0 {
			v += cs
		}
		if i&modifier != 0 {
			v += mod
		}
		variants = append(variants, v)
	}
	return variants
}

// acceptLanguage renders locale names as an Accept-Language header value
// with descending quality values.
func acceptLanguage(names []string) string {
	var langs []string
	for _, name := range names {
		if strings.ContainsAny(name, ".@") || name == "C" {
			continue
		}
		langs = append(langs, strings.ReplaceAll(strings.ToLower(name), "_", "-"))
	}
	if len(langs) == 0 {
		return "en"
	}

	delta := 1
	switch {
	case len(langs) < 10:
		delta = 10
	case len(langs) < 20:
		delta = 5
	}

	var b strings.Builder
	quality := 100
	for i, lang := range langs {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(lang)
		b.WriteString(qualitySuffix(quality))
		quality -= delta
	}
	return b.String()
}

func qualitySuffix(q int) string {
	if q < 0 || q >= 100 {
		return ""
	}
	s := fmt.Sprintf(";q=0.%02d", q)
	if q%10 == 0 {
		s = s[:len(s)-1]
	}
	return s
}
