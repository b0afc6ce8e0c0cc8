// Package validate wraps go-playground/validator with english messages and
// env-style field names so option errors read like the variables operators set
package validate

import (
	stderrs "errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	perr "dayfill/internal/platform/errors"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// Svc holds a singleton validator and translator
type Svc struct {
	Validator  *validator.Validate
	Translator ut.Translator
}

var (
	once sync.Once
	svc  *Svc

	identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)
)

// Get returns the validator singleton, initializing on first use
func Get() *Svc {
	once.Do(func() {
		enLoc := en.New()
		uni := ut.New(enLoc, enLoc)
		trans, _ := uni.GetTranslator("en")

		v := validator.New(validator.WithRequiredStructEnabled())

		// prefer env tag names in messages
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("env")
			if tag == "" || tag == "-" {
				return fld.Name
			}
			return tag
		})

		_ = en_translations.RegisterDefaultTranslations(v, trans)
		registerIdent(v, trans)

		svc = &Svc{Validator: v, Translator: trans}
	})
	return svc
}

// registerIdent adds the "ident" tag: a SQL identifier, optionally db-qualified (db.table)
func registerIdent(v *validator.Validate, trans ut.Translator) {
	_ = v.RegisterValidation("ident", func(fl validator.FieldLevel) bool {
		return identRe.MatchString(fl.Field().String())
	})
	_ = v.RegisterTranslation("ident", trans,
		func(u ut.Translator) error { return u.Add("ident", "{0} must be a plain identifier", true) },
		func(u ut.Translator, fe validator.FieldError) string {
			s, _ := u.T("ident", fe.Field())
			return s
		},
	)
}

// Struct validates s and returns a perr validation error carrying the first offending
// field; the message lists every failure
func Struct(s any) error {
	g := Get()
	err := g.Validator.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !stderrs.As(err, &verrs) || len(verrs) == 0 {
		return perr.Wrap(err, perr.ErrorCodeValidation, "validate")
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fe.Translate(g.Translator))
	}
	return perr.WithField(perr.Validationf("%s", strings.Join(msgs, "; ")), verrs[0].Field())
}
