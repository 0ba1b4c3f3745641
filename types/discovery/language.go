package discovery

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"golang.org/x/text/language"
)

// Unknown is returned by String when there is nothing to resolve
const Unknown = "Unknown"

// LanguageMappedString is a string that is either valid for any language,
// or a map from language tag to string
// e.g. "display_name": "SURFnet bv" or "display_name": {"en": "SURFnet", "nl": "SURFnet bv"}
type LanguageMappedString struct {
	any   string
	byTag map[string]string
}

// NewString creates a language mapped string that is valid for any language
func NewString(s string) LanguageMappedString {
	return LanguageMappedString{any: s}
}

// NewMap creates a language mapped string from a language tag to string map
func NewMap(m map[string]string) LanguageMappedString {
	c := make(map[string]string, len(m))
	for k, v := range m {
		c[k] = v
	}
	return LanguageMappedString{byTag: c}
}

// IsMap returns whether or not the string is a language tag map
func (l LanguageMappedString) IsMap() bool {
	return l.byTag != nil
}

// Values returns the underlying strings
// For a plain string this is a single entry with an empty key
func (l LanguageMappedString) Values() map[string]string {
	if !l.IsMap() {
		return map[string]string{"": l.any}
	}
	return l.byTag
}

// Equal returns whether two language mapped strings have the same kind and contents
func (l LanguageMappedString) Equal(o LanguageMappedString) bool {
	if l.IsMap() != o.IsMap() {
		return false
	}
	if !l.IsMap() {
		return l.any == o.any
	}
	if len(l.byTag) != len(o.byTag) {
		return false
	}
	for k, v := range l.byTag {
		if ov, ok := o.byTag[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// UnmarshalJSON first tries to decode a map and only then a plain string
func (l *LanguageMappedString) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err == nil {
		*l = LanguageMappedString{byTag: m}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*l = LanguageMappedString{any: s}
	return nil
}

// MarshalJSON encodes the string back in the form that it was decoded from
func (l LanguageMappedString) MarshalJSON() ([]byte, error) {
	if l.IsMap() {
		return json.Marshal(l.byTag)
	}
	return json.Marshal(l.any)
}

func (l LanguageMappedString) sortedKeys() []string {
	keys := make([]string, 0, len(l.byTag))
	for k := range l.byTag {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (l LanguageMappedString) firstWithPrefix(keys []string, prefix string) (string, bool) {
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			return l.byTag[k], true
		}
	}
	return "", false
}

// matchTag returns the language code and the language tag that we match against
// e.g. "de" becomes "de-DE" and "zh" with a Hant script becomes "zh-Hant"
// Only explicitly given regions and scripts are appended
func matchTag(tag language.Tag) (string, string) {
	if tag == language.Und {
		return "en", "en"
	}
	base, _ := tag.Base()
	code := base.String()
	if region, conf := tag.Region(); conf == language.Exact {
		return code, code + "-" + region.String()
	}
	if script, conf := tag.Script(); conf == language.Exact {
		return code, code + "-" + script.String()
	}
	return code, code
}

// StringFor resolves the string for a language tag
// The rules are described at https://github.com/eduvpn/documentation/blob/v2/SERVER_DISCOVERY.md#language-matching
// Prefix matches are tried in sorted key order so the result is deterministic
func (l LanguageMappedString) StringFor(tag language.Tag) string {
	if !l.IsMap() {
		return l.any
	}
	code, full := matchTag(tag)
	if v, ok := l.byTag[full]; ok {
		return v
	}
	keys := l.sortedKeys()
	if v, ok := l.firstWithPrefix(keys, full); ok {
		return v
	}
	if v, ok := l.firstWithPrefix(keys, code+"-"); ok {
		return v
	}
	if v, ok := l.byTag["en-US"]; ok {
		return v
	}
	if v, ok := l.firstWithPrefix(keys, "en"); ok {
		return v
	}
	if len(keys) > 0 {
		return l.byTag[keys[0]]
	}
	return Unknown
}

// String resolves the string for English
func (l LanguageMappedString) String() string {
	return l.StringFor(language.English)
}
