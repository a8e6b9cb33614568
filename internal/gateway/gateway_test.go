package gateway

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psp-engine/psp/internal/domain"
)

type stubDoer struct {
	resp *http.Response
	err  error
	n    int
}

func (s *stubDoer) Do(req *http.Request) (*http.Response, error) {
	s.n++
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
	}
}

func TestCallModelUnknownModel(t *testing.T) {
	g := New(&stubDoer{}, nil)
	_, err := g.CallModel(context.Background(), "nope", "hi", "PAT-1", 100, 0.1, 50)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnknownModel))
}

func TestCallModelSuccess(t *testing.T) {
	doer := &stubDoer{resp: jsonResponse(200, `{"usage":{"total_tokens":123},"output":"ok"}`)}
	g := New(doer, nil)
	g.RegisterEndpoint(Endpoint{Model: "gpt-safety-1", URL: "https://example.test/v1/complete", RPM: 10, TPM: 10000})

	resp, err := g.CallModel(context.Background(), "gpt-safety-1", "patient has fever, SSN 123-45-6789", "PAT-1", 200, 0.2, 100)
	require.NoError(t, err)
	assert.Equal(t, 123, resp.TokensUsed)

	log := g.AuditLog()
	require.Len(t, log, 1)
	assert.Equal(t, "success", log[0].Status)
	assert.Contains(t, log[0].Redactions, "ssn")
	assert.NotEmpty(t, log[0].PromptHash)
}

func TestCallModelRateLimited(t *testing.T) {
	doer := &stubDoer{resp: jsonResponse(200, `{}`)}
	g := New(doer, nil)
	g.RegisterEndpoint(Endpoint{Model: "m1", URL: "https://example.test", RPM: 1, TPM: 100000})

	_, err := g.CallModel(context.Background(), "m1", "first", "PAT-1", 10, 0.1, 10)
	require.NoError(t, err)

	_, err = g.CallModel(context.Background(), "m1", "second", "PAT-1", 10, 0.1, 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrRateLimited))
}

func TestCallModelCircuitOpensAfterFailures(t *testing.T) {
	doer := &stubDoer{err: errors.New("boom")}
	g := New(doer, nil)
	g.RegisterEndpoint(Endpoint{Model: "m1", URL: "https://example.test", RPM: 100, TPM: 100000})

	for i := 0; i < 5; i++ {
		_, err := g.CallModel(context.Background(), "m1", "x", "PAT-1", 10, 0.1, 10)
		require.Error(t, err)
	}

	state, ok := g.BreakerState("m1")
	require.True(t, ok)
	assert.Equal(t, Open, state)

	_, err := g.CallModel(context.Background(), "m1", "x", "PAT-1", 10, 0.1, 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrCircuitOpen))
}

func TestCallModelTransportFailureRecordsBreakerFailure(t *testing.T) {
	doer := &stubDoer{resp: jsonResponse(500, `{}`)}
	g := New(doer, nil)
	g.RegisterEndpoint(Endpoint{Model: "m1", URL: "https://example.test", RPM: 100, TPM: 100000})

	_, err := g.CallModel(context.Background(), "m1", "x", "PAT-1", 10, 0.1, 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTransportFailure))

	log := g.AuditLog()
	require.Len(t, log, 1)
	assert.Equal(t, "error", log[0].Status)
}

func TestRegisterEndpointResetsBreakerAndLimiter(t *testing.T) {
	g := New(&stubDoer{err: errors.New("boom")}, nil)
	g.RegisterEndpoint(Endpoint{Model: "m1", URL: "https://example.test", RPM: 100, TPM: 100000})

	for i := 0; i < 5; i++ {
		_, _ = g.CallModel(context.Background(), "m1", "x", "PAT-1", 10, 0.1, 10)
	}
	state, _ := g.BreakerState("m1")
	assert.Equal(t, Open, state)

	g.RegisterEndpoint(Endpoint{Model: "m1", URL: "https://example.test", RPM: 100, TPM: 100000})
	state, _ = g.BreakerState("m1")
	assert.Equal(t, Closed, state)
}

func TestCallModelAllowsRecoveryAfterBreakerTimeout(t *testing.T) {
	doer := &stubDoer{err: errors.New("boom")}
	g := New(doer, nil)
	g.RegisterEndpoint(Endpoint{Model: "m1", URL: "https://example.test", RPM: 100, TPM: 100000})
	g.breakers["m1"] = NewBreaker(1, 10*time.Millisecond)

	_, err := g.CallModel(context.Background(), "m1", "x", "PAT-1", 10, 0.1, 10)
	require.Error(t, err)
	state, _ := g.BreakerState("m1")
	assert.Equal(t, Open, state)

	time.Sleep(20 * time.Millisecond)
	doer.err = nil
	doer.resp = jsonResponse(200, `{}`)
	_, err = g.CallModel(context.Background(), "m1", "x", "PAT-1", 10, 0.1, 10)
	require.NoError(t, err)
}
