package form

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fieldErrors(t *testing.T, err error) map[string][]string {
	t.Helper()
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr), "expected *ValidationError, got %v", err)
	return vErr.Fields
}

func TestValidatePrompt(t *testing.T) {
	p, err := ValidatePrompt("  a red balloon \n", true)
	require.NoError(t, err)
	assert.Equal(t, "a red balloon", p.Text)
	assert.True(t, p.IsPublic)

	_, err = ValidatePrompt("   ", true)
	assert.Equal(t, []string{msgRequired}, fieldErrors(t, err)["prompt"])

	_, err = ValidatePrompt(strings.Repeat("a", MaxPromptLength), false)
	require.NoError(t, err)

	_, err = ValidatePrompt(strings.Repeat("a", MaxPromptLength+1), false)
	assert.Contains(t, fieldErrors(t, err)["prompt"][0], "at most 1000 characters (it has 1001)")
}

func TestValidatePrompt_CountsRunes(t *testing.T) {
	// 1000 three-byte runes is within the limit.
	_, err := ValidatePrompt(strings.Repeat("気", MaxPromptLength), true)
	require.NoError(t, err)
}

func TestValidateRegistration(t *testing.T) {
	r, err := ValidateRegistration(" alice ", "alice@example.com", "s3cret-pass", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, "alice", r.Username)

	tests := []struct {
		name      string
		username  string
		email     string
		password1 string
		password2 string
		field     string
	}{
		{"missing username", "", "a@example.com", "s3cret-pass", "s3cret-pass", "username"},
		{"bad username chars", "al ice", "a@example.com", "s3cret-pass", "s3cret-pass", "username"},
		{"bad email", "alice", "not-an-email", "s3cret-pass", "s3cret-pass", "email"},
		{"missing email", "alice", "", "s3cret-pass", "s3cret-pass", "email"},
		{"short password", "alice", "a@example.com", "short", "short", "password1"},
		{"numeric password", "alice", "a@example.com", "1234567890", "1234567890", "password1"},
		{"password equals username", "alicealice", "a@example.com", "alicealice", "alicealice", "password1"},
		{"mismatch", "alice", "a@example.com", "s3cret-pass", "s3cret-pasz", "password2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateRegistration(tt.username, tt.email, tt.password1, tt.password2)
			fields := fieldErrors(t, err)
			assert.NotEmpty(t, fields[tt.field], "fields: %v", fields)
		})
	}
}

func TestValidateLogin(t *testing.T) {
	_, err := ValidateLogin("alice", "pw")
	require.NoError(t, err)

	_, err = ValidateLogin("", "")
	fields := fieldErrors(t, err)
	assert.Contains(t, fields, "username")
	assert.Contains(t, fields, "password")
}

func TestValidateProfile(t *testing.T) {
	p, err := ValidateProfile("  I paint with prompts  ")
	require.NoError(t, err)
	assert.Equal(t, "I paint with prompts", p.Bio)

	_, err = ValidateProfile("")
	require.NoError(t, err)

	_, err = ValidateProfile(strings.Repeat("b", MaxBioLength+1))
	assert.NotEmpty(t, fieldErrors(t, err)["bio"])
}

func TestValidationError_Message(t *testing.T) {
	e := &ValidationError{}
	e.Add("b", "second")
	e.Add("a", "first")
	assert.Equal(t, "invalid input: a: first; b: second", e.Error())

	var nilErr *ValidationError
	assert.Nil(t, nilErr.Get("a"))
}
