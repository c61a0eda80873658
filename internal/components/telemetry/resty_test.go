package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
)

func TestInstrumentResty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer server.Close()

	rec := &Recorder{}
	client := resty.New()
	InstrumentResty(client, rec)

	res, err := client.R().Get(server.URL)
	require.NoError(t, err)
	require.Equal(t, http.StatusTeapot, res.StatusCode())

	require.Len(t, rec.Reports("debug", report_resty_request), 1)
	responses := rec.Reports("debug", report_resty_response)
	require.Len(t, responses, 1)
	require.Equal(t, uint64(1), responses[0].Params[0])
	require.Empty(t, rec.Reports("broken", ""))
}

func TestInstrumentRestyTransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	rec := &Recorder{}
	client := resty.New()
	InstrumentResty(client, rec)

	require.NotPanics(t, func() {
		_, err := client.R().Get(url)
		require.Error(t, err)
	})
	require.Len(t, rec.Reports("broken", report_resty_response), 1)
}

func TestFormatHeadersRedactsSecrets(t *testing.T) {
	headers := http.Header{}
	headers.Set("Cookie", ".DOGSECURITY=secret")
	headers.Set("x-csrf-token", "token")
	headers.Set("Accept", "application/json")

	out := formatHeaders(headers)
	require.NotContains(t, out, "secret")
	require.NotContains(t, out, "token\n")
	require.Contains(t, out, "Accept: application/json")
	require.Contains(t, out, "X-Csrf-Token: <redacted>")

	require.Equal(t, "", formatHeaders(http.Header{}))
}

func TestScopedAPI(t *testing.T) {
	rec := &Recorder{}
	scoped := NewScopedAPI("outer", NewScopedAPI("inner", rec))
	scoped.ReportWarning("thing", 1)

	reports := rec.Reports("warning", "thing")
	require.Len(t, reports, 1)
	require.Contains(t, reports[0].Id, "outer")
	require.Contains(t, reports[0].Id, "inner")
}
