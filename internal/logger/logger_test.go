package logger

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestLoggerFiltersByLevel(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	log := New(&buf, WarnLevel)

	log.Info("PAYMENT", "hidden")
	log.Debug("PAYMENT", "hidden too")
	log.Warn("PAYMENT", "shown")
	log.LogSecurity("SIGNATURE_MISMATCH", "order_1")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN ] [PAYMENT] shown")
	assert.Contains(t, out, "[SECURITY] SIGNATURE_MISMATCH order_1")
}

func TestLogPaymentFormat(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	log := New(&buf, DebugLevel)

	log.LogPayment("VERIFIED", "pay_1", "order order_1")

	assert.Contains(t, buf.String(), "[PAYMENT] VERIFIED [pay_1] order order_1")
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   DebugLevel,
		"INFO":    InfoLevel,
		"warning": WarnLevel,
		"error":   ErrorLevel,
		"":        InfoLevel,
		"verbose": InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}
