package handler

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	// report fields by their form input name
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("form")
	})
}

// FormErrors holds validation errors by input name, plus errors that belong
// to the form as a whole
type FormErrors struct {
	Fields   map[string][]string
	NonField []string
}

// Add appends msg to field, or to the form when field is empty
func (e *FormErrors) Add(field, msg string) {
	if field == "" {
		e.NonField = append(e.NonField, msg)
		return
	}
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

// Any reports whether there are errors
func (e FormErrors) Any() bool {
	return len(e.NonField) > 0 || len(e.Fields) > 0
}

type loginForm struct {
	Username string `form:"login-username" validate:"required,max=254"`
	Password string `form:"login-password" validate:"required"`
}

func bindLogin(v url.Values) loginForm {
	return loginForm{
		Username: strings.TrimSpace(v.Get("login-username")),
		Password: v.Get("login-password"),
	}
}

type registrationForm struct {
	Email     string `form:"registration-email" validate:"required,email,max=254"`
	Password1 string `form:"registration-password1" validate:"required"`
	Password2 string `form:"registration-password2" validate:"required,eqfield=Password1"`
}

func bindRegistration(v url.Values) registrationForm {
	return registrationForm{
		Email:     strings.TrimSpace(v.Get("registration-email")),
		Password1: v.Get("registration-password1"),
		Password2: v.Get("registration-password2"),
	}
}

type passwordResetForm struct {
	Email string `form:"email" validate:"required,email,max=254"`
}

type setPasswordForm struct {
	NewPassword1 string `form:"new_password1" validate:"required"`
	NewPassword2 string `form:"new_password2" validate:"required,eqfield=NewPassword1"`
}

func bindSetPassword(v url.Values) setPasswordForm {
	return setPasswordForm{
		NewPassword1: v.Get("new_password1"),
		NewPassword2: v.Get("new_password2"),
	}
}

type changePasswordForm struct {
	OldPassword  string `form:"old_password" validate:"required"`
	NewPassword1 string `form:"new_password1" validate:"required"`
	NewPassword2 string `form:"new_password2" validate:"required,eqfield=NewPassword1"`
}

func bindChangePassword(v url.Values) changePasswordForm {
	return changePasswordForm{
		OldPassword:  v.Get("old_password"),
		NewPassword1: v.Get("new_password1"),
		NewPassword2: v.Get("new_password2"),
	}
}

type profileForm struct {
	FirstName string `form:"first_name" validate:"max=150"`
	LastName  string `form:"last_name" validate:"max=150"`
	Email     string `form:"email" validate:"required,email,max=254"`
}

func bindProfile(v url.Values) profileForm {
	return profileForm{
		FirstName: strings.TrimSpace(v.Get("first_name")),
		LastName:  strings.TrimSpace(v.Get("last_name")),
		Email:     strings.TrimSpace(v.Get("email")),
	}
}

type deleteProfileForm struct {
	Password string `form:"password" validate:"required"`
}

// validateForm runs the struct tags of form and returns the errors keyed by
// input name
func validateForm(form interface{}) FormErrors {
	var errs FormErrors
	err := validate.Struct(form)
	if err == nil {
		return errs
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		errs.Add("", err.Error())
		return errs
	}
	for _, fe := range validationErrors {
		errs.Add(fe.Field(), formatFieldError(fe))
	}
	return errs
}

// formatFieldError formats a single field validation error
func formatFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "max":
		return fmt.Sprintf("Ensure this value has at most %s characters.", fe.Param())
	case "eqfield":
		return "The two password fields didn't match."
	default:
		return "Enter a valid value."
	}
}

// policyMessage turns a wrapped password policy error into form text: the
// innermost message with its first letter capitalised
func policyMessage(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, ": "); i >= 0 {
		msg = msg[i+2:]
	}
	if msg == "" {
		return msg
	}
	r := []rune(msg)
	r[0] = unicode.ToUpper(r[0])
	return string(r) + "."
}
