package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNewDefaultsUnparseableLevelToInfo(t *testing.T) {
	l := New(Config{Level: "not-a-level", Format: "json"})
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
}

func TestNewTextFormatter(t *testing.T) {
	l := New(Config{Level: "debug", Format: "text"})
	_, isText := l.Formatter.(*logrus.TextFormatter)
	assert.True(t, isText)
}

func TestFromContextWithoutRequestFieldsReturnsBareEntry(t *testing.T) {
	l := New(Config{Level: "info", Format: "json"})
	entry := FromContext(context.Background(), l)
	assert.Empty(t, entry.Data)
}

func TestFromContextAttachesRequestFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info", Format: "json"})
	l.SetOutput(&buf)

	ctx := WithRequest(context.Background(), RequestFields{
		PatientID: "PAT-1", SessionID: "SESS-1", AdverseEvent: "CRS",
	})
	FromContext(ctx, l).Info("scoring")

	out := buf.String()
	assert.Contains(t, out, `"patient_id":"PAT-1"`)
	assert.Contains(t, out, `"session_id":"SESS-1"`)
	assert.Contains(t, out, `"adverse_event":"CRS"`)
}

func TestFromContextOmitsBlankFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info", Format: "json"})
	l.SetOutput(&buf)

	ctx := WithRequest(context.Background(), RequestFields{PatientID: "PAT-1"})
	FromContext(ctx, l).Info("scoring")

	assert.Contains(t, buf.String(), `"patient_id":"PAT-1"`)
	assert.NotContains(t, buf.String(), "adverse_event")
}
