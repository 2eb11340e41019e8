package user

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Input is a decoded JSON request body. Keys missing from the body are
// missing from the map.
type Input map[string]any

// DecodeInput reads a JSON object. Bodies that are empty, malformed or not an
// object decode to an empty Input so that field rules report what is missing.
func DecodeInput(r io.Reader) Input {
	in := Input{}
	if r == nil {
		return in
	}
	if err := json.NewDecoder(r).Decode(&in); err != nil || in == nil {
		return Input{}
	}
	return in
}

// Has reports whether field was sent, even as null.
func (in Input) Has(field string) bool {
	_, ok := in[field]
	return ok
}

// String returns the normalized string value of field, or "" when the field
// is missing, null or not a string.
func (in Input) String(field string) string {
	s, _ := in.normalized(field).(string)
	return s
}

// normalized trims string values (passwords excepted) and turns empty
// strings into nil.
func (in Input) normalized(field string) any {
	v := in[field]
	s, ok := v.(string)
	if !ok {
		return v
	}
	if field != "password" {
		s = strings.TrimSpace(s)
	}
	if s == "" {
		return nil
	}
	return s
}

// FieldErrors maps a field name to its violation messages.
type FieldErrors map[string][]string

func (fe FieldErrors) Add(field, msg string) {
	fe[field] = append(fe[field], msg)
}

func (fe FieldErrors) Has(field string) bool {
	return len(fe[field]) > 0
}

type fieldRule struct {
	Field string
	Rules string
}

var (
	createRules = []fieldRule{
		{Field: "name", Rules: "required,string,max=255"},
		{Field: "email", Rules: "required,string,email,max=255"},
		{Field: "password", Rules: "required,string,min=8"},
	}
	loginRules = []fieldRule{
		{Field: "email", Rules: "required,email"},
		{Field: "password", Rules: "required,string"},
	}
)

// Validator evaluates field rules. Format checks are delegated to
// go-playground/validator; messages follow the pt-BR wording clients expect.
type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{v: validator.New()}
}

// Check evaluates rules against in. With partial set, fields absent from in
// are skipped. A null value only fails "required"; every other rule is
// evaluated independently so a field may collect several messages.
func (v *Validator) Check(in Input, rules []fieldRule, partial bool) FieldErrors {
	errs := FieldErrors{}
	for _, fr := range rules {
		if partial && !in.Has(fr.Field) {
			continue
		}
		val := in.normalized(fr.Field)
		tags := strings.Split(fr.Rules, ",")
		if val == nil {
			for _, tag := range tags {
				if tag == "required" {
					errs.Add(fr.Field, message(fr.Field, "required", ""))
				}
			}
			continue
		}
		s, isString := val.(string)
		for _, tag := range tags {
			name, param, _ := strings.Cut(tag, "=")
			failed := false
			switch name {
			case "required":
			case "string":
				failed = !isString
			case "email":
				failed = !isString || v.v.Var(s, "email") != nil
			case "min", "max":
				failed = isString && v.v.Var(s, tag) != nil
			}
			if failed {
				errs.Add(fr.Field, message(fr.Field, name, param))
			}
		}
	}
	return errs
}

func message(field, rule, param string) string {
	switch rule {
	case "required":
		return fmt.Sprintf("O campo %s é obrigatório.", field)
	case "string":
		return fmt.Sprintf("O campo %s deve ser uma string.", field)
	case "email":
		return fmt.Sprintf("O campo %s deve ser um endereço de e-mail válido.", field)
	case "max":
		return fmt.Sprintf("O campo %s não pode ser superior a %s caracteres.", field, param)
	case "min":
		return fmt.Sprintf("O campo %s deve ter pelo menos %s caracteres.", field, param)
	case "unique":
		return fmt.Sprintf("O campo %s já está sendo utilizado.", field)
	}
	return fmt.Sprintf("O campo %s é inválido.", field)
}
