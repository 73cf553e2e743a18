package wazero

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/reglet-dev/reglet-lambda/domain/errors"
	"github.com/reglet-dev/reglet-lambda/hostfuncs"
	"github.com/reglet-dev/reglet-lambda/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"
)

// postEcho replies to POST /post with the request body and a
// content-type header.
func postEcho(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Method != http.MethodPost || r.URL.Path != "/post" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Abc", r.Header.Get("abc"))
		_, _ = fmt.Fprintf(w, `{"data":%q}`, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestExperimentalHTTP_PostAllowed(t *testing.T) {
	srv, hits := postEcho(t)
	rt := newRuntime(t)
	require.NoError(t, RegisterExperimentalHTTP(context.Background(), rt, newBridge(t, srv.URL)))

	session := hostfuncs.NewSession(0, nil)
	ctx := hostfuncs.WithSession(context.Background(), session)

	guest := testutil.HTTPGuest{
		URL:          srv.URL + "/post",
		Method:       "POST",
		Headers:      "Content-Type: text/plain\nabc: def\n",
		Body:         "Testing",
		ExpectStatus: 200,
		HeaderName:   "content-type",
		ReadBody:     true,
	}
	mod, err := runStart(t, ctx, rt, guest.Encode())
	require.NoError(t, err)

	n, ok := mod.Memory().ReadUint32Le(testutil.HTTPBodyReadOffset)
	require.True(t, ok)
	body, ok := mod.Memory().Read(testutil.HTTPBodyOutOffset, n)
	require.True(t, ok)
	assert.JSONEq(t, `{"data":"Testing"}`, string(body))

	status, ok := mod.Memory().ReadUint32Le(testutil.HTTPStatusOffset)
	require.True(t, ok)
	assert.Equal(t, uint32(200), status&0xffff)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, 1, session.Requests())
	assert.Equal(t, 0, session.Open(), "guest closed its handle")
	_, denied := session.FirstDenial()
	assert.False(t, denied)
}

func TestExperimentalHTTP_BodyReadKeepsBytesOnFailedWrite(t *testing.T) {
	srv, _ := postEcho(t)
	rt := newRuntime(t)
	require.NoError(t, RegisterExperimentalHTTP(context.Background(), rt, newBridge(t, srv.URL)))

	session := hostfuncs.NewSession(0, nil)
	ctx := hostfuncs.WithSession(context.Background(), session)

	guest := testutil.HTTPGuest{
		URL:         srv.URL + "/post",
		Method:      "POST",
		Body:        "Testing",
		ReadBody:    true,
		ReadCountAt: 70000, // past the single memory page
	}
	_, err := runStart(t, ctx, rt, guest.Encode())
	require.Error(t, err, "guest traps when body_read fails")

	require.Equal(t, 1, session.Open())
	unread, err := session.PeekBody(1, 1024)
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":"Testing"}`, string(unread))
}

func TestExperimentalHTTP_PostDenied(t *testing.T) {
	srv, hits := postEcho(t)
	rt := newRuntime(t)
	require.NoError(t, RegisterExperimentalHTTP(context.Background(), rt, newBridge(t, "https://api.example.com")))

	session := hostfuncs.NewSession(0, nil)
	ctx := hostfuncs.WithSession(context.Background(), session)

	guest := testutil.HTTPGuest{URL: srv.URL + "/post", Method: "POST", Body: "Testing"}
	_, err := runStart(t, ctx, rt, guest.Encode())
	require.Error(t, err, "guest traps when req fails")

	assert.Equal(t, int32(0), hits.Load(), "denied request never reaches the network")
	denial, denied := session.FirstDenial()
	assert.True(t, denied)
	assert.Equal(t, srv.URL+"/post", denial)
}

func TestExperimentalHTTP_WrongStatusTraps(t *testing.T) {
	srv, _ := postEcho(t)
	rt := newRuntime(t)
	require.NoError(t, RegisterExperimentalHTTP(context.Background(), rt, newBridge(t, srv.URL)))

	ctx := hostfuncs.WithSession(context.Background(), hostfuncs.NewSession(0, nil))
	guest := testutil.HTTPGuest{URL: srv.URL + "/missing", Method: "POST", ExpectStatus: 200}
	_, err := runStart(t, ctx, rt, guest.Encode())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}

func TestExperimentalHTTP_NoSession(t *testing.T) {
	srv, hits := postEcho(t)
	rt := newRuntime(t)
	require.NoError(t, RegisterExperimentalHTTP(context.Background(), rt, newBridge(t, srv.URL)))

	_, err := runStart(t, context.Background(), rt, testutil.HTTPGuest{URL: srv.URL + "/post", Method: "POST"}.Encode())
	require.Error(t, err)
	assert.Equal(t, int32(0), hits.Load())
}

func TestExperimentalHTTP_NoGuestMemory(t *testing.T) {
	rt := newRuntime(t)
	require.NoError(t, RegisterExperimentalHTTP(context.Background(), rt, newBridge(t, "*")))

	ctx := hostfuncs.WithSession(context.Background(), hostfuncs.NewSession(0, nil))
	mod, err := rt.InstantiateWithConfig(ctx, testutil.MemorylessHeaderGuest(),
		wazero.NewModuleConfig().WithStartFunctions())
	require.NoError(t, err)
	defer mod.Close(ctx)

	res, err := mod.ExportedFunction("check").Call(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(CodeMemoryNotFound), res[0])
}

func TestHTTPCodeFor(t *testing.T) {
	tests := []struct {
		err  error
		want HTTPErrorCode
	}{
		{nil, CodeOK},
		{&errors.PolicyDeniedError{URL: "https://x"}, CodeDestinationNotAllowed},
		{&errors.ValidationError{Field: "Method", Err: fmt.Errorf("bad")}, CodeInvalidMethod},
		{&errors.ValidationError{Field: "URL", Err: fmt.Errorf("bad")}, CodeInvalidURL},
		{&errors.TooManySessionsError{Limit: 1}, CodeTooManySessions},
		{&errors.InvalidHandleError{Handle: 9}, CodeInvalidHandle},
		{&errors.TransportError{Code: errors.CodeTimeout, Err: fmt.Errorf("timeout")}, CodeRequestError},
		{fmt.Errorf("something else"), CodeRuntimeError},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, httpCodeFor(tt.err))
		})
	}
}

func TestHTTPErrorCode_String(t *testing.T) {
	assert.Equal(t, "destination_not_allowed", CodeDestinationNotAllowed.String())
	assert.Equal(t, "too_many_sessions", CodeTooManySessions.String())
	assert.Equal(t, "code(99)", HTTPErrorCode(99).String())
}
