package payment

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func callIPN(t *testing.T, router http.Handler, params map[string]string) ipnResponse {
	t.Helper()
	query := url.Values{}
	for k, v := range params {
		query.Set(k, v)
	}
	req := httptest.NewRequest(http.MethodGet, IPNPath+"?"+query.Encode(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var resp ipnResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestIPNHandlerResponseCodes(t *testing.T) {
	f := newPaymentFixture(t)
	link := f.paymentURL(t)

	router := chi.NewRouter()
	NewHandler(f.processor, nil).Routes(router)

	forged, err := f.sim.CallbackForURL(link.URL, "24")
	require.NoError(t, err)
	forged[ParamResponseCode] = ResponseSuccess
	require.Equal(t, "97", callIPN(t, router, forged).RspCode)

	require.Equal(t, "01", callIPN(t, router, f.sim.Callback("missing", 1, ResponseSuccess)).RspCode)
	require.Equal(t, "04", callIPN(t, router, f.sim.Callback(link.TxnRef, 1, ResponseSuccess)).RspCode)

	ok, err := f.sim.CallbackForURL(link.URL, ResponseSuccess)
	require.NoError(t, err)
	resp := callIPN(t, router, ok)
	require.Equal(t, "00", resp.RspCode)
	require.Equal(t, "Confirm Success", resp.Message)

	require.Equal(t, "02", callIPN(t, router, ok).RspCode)
}

func TestIPNResultFallsBackToUnknown(t *testing.T) {
	resp := ipnResult("", errors.New("connection reset"))
	require.Equal(t, "99", resp.RspCode)
}
