package incidentapi

import (
	"net/http"
	"testing"
)

func FuzzSubmitIncident(f *testing.F) {
	f.Add(`{"message":"고속도로 추돌 사고 발생","location":"경부고속도로"}`)
	f.Add(`{"message":"","location":""}`)
	f.Add(`{"message":"x"}`)
	f.Add(`{bad`)
	f.Add(`[]`)
	f.Add(`null`)
	f.Add(`{"message":123,"location":true}`)
	f.Add(`{"message":"\u0000￿","location":"\ud800"}`)

	h := newHarness(f, nil)

	f.Fuzz(func(t *testing.T, body string) {
		rec := h.do(t, http.MethodPost, "/api/incidents", body)
		switch rec.Code {
		case http.StatusOK, http.StatusBadRequest, http.StatusConflict:
		default:
			t.Fatalf("unexpected status %d for body %q: %s", rec.Code, body, rec.Body.String())
		}
	})
}

func FuzzUpdateStatus(f *testing.F) {
	f.Add("1", `{"status":"checking"}`)
	f.Add("-1", `{"status":"resolved"}`)
	f.Add("9223372036854775808", `{}`)
	f.Add("abc", `{"status":""}`)

	h := newHarness(f, nil)
	h.do(f, http.MethodPost, "/api/incidents", `{"message":"차량 고장","location":"A"}`)

	f.Fuzz(func(t *testing.T, id, body string) {
		req := "/api/incidents/" + id + "/status"
		if !validPathSegment(id) {
			t.Skip()
		}
		rec := h.do(t, http.MethodPut, req, body)
		switch rec.Code {
		case http.StatusOK, http.StatusBadRequest, http.StatusNotFound:
		default:
			t.Fatalf("unexpected status %d for id %q body %q", rec.Code, id, body)
		}
	})
}

// validPathSegment rejects ids that would change the route or the URL
// parser's view of the request.
func validPathSegment(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r <= ' ' || r == '/' || r == '?' || r == '#' || r == '%' || r >= 0x7f {
			return false
		}
	}
	return true
}
