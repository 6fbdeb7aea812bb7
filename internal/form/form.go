// Package form validates user input from the HTML forms.
package form

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

const (
	MaxPromptLength   = 1000
	MaxBioLength      = 500
	MaxUsernameLength = 150
	MinPasswordLength = 8

	msgRequired = "This field is required."
)

var (
	validate        = validator.New()
	usernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)
)

// ValidationError collects messages per form field.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+strings.Join(e.Fields[name], " "))
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string][]string{}
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

// Get returns the messages for field; the templates call it.
func (e *ValidationError) Get(field string) []string {
	if e == nil {
		return nil
	}
	return e.Fields[field]
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// NewValidationError is a single-field error.
func NewValidationError(field, msg string) *ValidationError {
	e := &ValidationError{}
	e.Add(field, msg)
	return e
}

func checkLength(errs *ValidationError, field, value string, max int) {
	if err := validate.Var(value, fmt.Sprintf("max=%d", max)); err != nil {
		errs.Add(field, fmt.Sprintf("Ensure this value has at most %d characters (it has %d).", max, utf8.RuneCountInString(value)))
	}
}

func checkRequired(errs *ValidationError, field, value string) bool {
	if err := validate.Var(value, "required"); err != nil {
		errs.Add(field, msgRequired)
		return false
	}
	return true
}

type Prompt struct {
	Text     string
	IsPublic bool
}

func ValidatePrompt(text string, isPublic bool) (Prompt, error) {
	errs := &ValidationError{}
	text = strings.TrimSpace(text)
	if checkRequired(errs, "prompt", text) {
		checkLength(errs, "prompt", text, MaxPromptLength)
	}
	return Prompt{Text: text, IsPublic: isPublic}, errs.orNil()
}

type Registration struct {
	Username string
	Email    string
	Password string
}

func ValidateRegistration(username, email, password1, password2 string) (Registration, error) {
	errs := &ValidationError{}
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	if checkRequired(errs, "username", username) {
		checkLength(errs, "username", username, MaxUsernameLength)
		if !usernamePattern.MatchString(username) {
			errs.Add("username", "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters.")
		}
	}
	if checkRequired(errs, "email", email) {
		if err := validate.Var(email, "email"); err != nil {
			errs.Add("email", "Enter a valid email address.")
		}
	}
	if checkRequired(errs, "password1", password1) {
		if err := validate.Var(password1, fmt.Sprintf("min=%d", MinPasswordLength)); err != nil {
			errs.Add("password1", fmt.Sprintf("This password is too short. It must contain at least %d characters.", MinPasswordLength))
		}
		if err := validate.Var(password1, "numeric"); err == nil {
			errs.Add("password1", "This password is entirely numeric.")
		}
		if strings.EqualFold(password1, username) {
			errs.Add("password1", "The password is too similar to the username.")
		}
	}
	if checkRequired(errs, "password2", password2) && password1 != password2 {
		errs.Add("password2", "The two password fields didn't match.")
	}
	return Registration{Username: username, Email: email, Password: password1}, errs.orNil()
}

type Login struct {
	Username string
	Password string
}

func ValidateLogin(username, password string) (Login, error) {
	errs := &ValidationError{}
	username = strings.TrimSpace(username)
	checkRequired(errs, "username", username)
	checkRequired(errs, "password", password)
	return Login{Username: username, Password: password}, errs.orNil()
}

type ProfileEdit struct {
	Bio string
}

func ValidateProfile(bio string) (ProfileEdit, error) {
	errs := &ValidationError{}
	bio = strings.TrimSpace(bio)
	checkLength(errs, "bio", bio, MaxBioLength)
	return ProfileEdit{Bio: bio}, errs.orNil()
}
