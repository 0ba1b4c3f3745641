// Package i18nerr implements errors with internationalization using golang.org/x/text/message
package i18nerr

import (
	"context"
	"errors"
	"sync"

	"github.com/eduvpn/eduvpn-core/internal/log"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	printers sync.Map
	once     sync.Once
)

// TranslatedInner returns the message of the innermost cause of 'inner'
// Errors that happen frequently are translated to 't'
// The boolean reports whether the error is a miscellaneous one that a UI may choose to not show, e.g. a cancel
func TranslatedInner(t language.Tag, inner error) (string, bool) {
	unwrapped := inner
	for errors.Unwrap(unwrapped) != nil {
		unwrapped = errors.Unwrap(unwrapped)
	}

	switch {
	case errors.Is(inner, context.DeadlineExceeded):
		return printerOrNew(t).Sprintf("timeout reached"), false
	case errors.Is(inner, context.Canceled):
		return unwrapped.Error(), true
	}
	return unwrapped.Error(), false
}

// Error wraps an actual error with the translation key
// This translation key is later used to lookup translation
type Error struct {
	key   message.Reference
	args  []interface{}
	inner error
	// Misc is set when the cause is a cancel
	Misc bool
}

// Translated gets the error string in language 't'
func (e *Error) Translated(t language.Tag) string {
	once.Do(initializeLangs)
	p := printerOrNew(t)
	msg := p.Sprintf(e.key, e.args...)
	if e.inner == nil {
		return msg
	}
	cause, _ := TranslatedInner(t, e.inner)
	return msg + " " + p.Sprintf("with cause:") + " " + cause
}

// Error gets the error string in English
func (e *Error) Error() string {
	return e.Translated(language.English)
}

// Translations returns all the translations for the error including the source translation (english)
func (e *Error) Translations() map[string]string {
	translations := make(map[string]string)
	source := e.Error()
	translations[language.English.String()] = source
	for _, t := range message.DefaultCatalog.Languages() {
		if t == language.English {
			continue
		}
		// only add if it differs from the english version
		f := e.Translated(t)
		if f != source {
			translations[t.String()] = f
		}
	}
	return translations
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.inner
}

// printerOrNew gets a message printer from the global printers map using the tag 'tag'
// If the printer cannot be found in the sync map, we return a new printer
func printerOrNew(tag language.Tag) *message.Printer {
	v, ok := printers.Load(tag)
	if !ok {
		return message.NewPrinter(tag)
	}
	p, ok := v.(*message.Printer)
	if !ok {
		log.Logger.Debugf("i18n: could not load printer with tag: '%v' as the type is not correct: '%T'", tag, v)
		return message.NewPrinter(tag)
	}
	return p
}

// New creates a new i18n error using a message reference
func New(key message.Reference) *Error {
	return &Error{key: key}
}

// Newf creates a new i18n error using a message reference and arguments
func Newf(key message.Reference, args ...interface{}) *Error {
	return &Error{key: key, args: args}
}

// Wrap creates a new i18n error using an error to be wrapped 'err' and a prefix message reference 'key'
func Wrap(err error, key message.Reference) *Error {
	_, misc := TranslatedInner(language.English, err)
	return &Error{key: key, inner: err, Misc: misc}
}

// Wrapf creates a new i18n error using an error to be wrapped 'err' and a prefix message reference 'key' with format arguments 'args'
func Wrapf(err error, key message.Reference, args ...interface{}) *Error {
	_, misc := TranslatedInner(language.English, err)
	return &Error{key: key, args: args, inner: err, Misc: misc}
}

// initializeLangs initializes the printers from the default catalog into the sync map
// we cannot do this in init() because the catalog is filled by other init functions
func initializeLangs() {
	log.Logger.Debugf("i18n: initializing languages...")
	for _, t := range message.DefaultCatalog.Languages() {
		printers.Store(t, message.NewPrinter(t))
	}
}
