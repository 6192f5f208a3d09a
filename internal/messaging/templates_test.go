package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeParam_StripsForbiddenCharsAndCollapsesNewlines(t *testing.T) {
	in := "  Bob \"The <b>Builder</b>\" O'Brien & Co\nline2\r\nline3  "
	out := sanitizeParam(in)

	assert.NotContains(t, out, "<")
	assert.NotContains(t, out, ">")
	assert.NotContains(t, out, "\"")
	assert.NotContains(t, out, "'")
	assert.NotContains(t, out, "&")
	assert.NotContains(t, out, "\n")
	assert.NotContains(t, out, "\r")
}

func TestSanitizeParam_CapsAt1000Chars(t *testing.T) {
	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'a'
	}
	out := sanitizeParam(string(long))
	assert.Len(t, out, 1000)
}

func TestRenderTemplate_OTPCode(t *testing.T) {
	body := renderTemplate("otp_code", map[string]string{"code": "654321"})
	assert.Contains(t, body, "654321")
}

func TestRenderTemplate_UnknownTemplateFallsBackToKeyValueDump(t *testing.T) {
	body := renderTemplate("not_a_real_template", map[string]string{"foo": "bar"})
	assert.Contains(t, body, "foo=bar")
}
