package jsonutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusCreated, map[string]int{"count": 3})

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var body map[string]int
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["count"] != 3 {
		t.Errorf("count = %d, want 3", body["count"])
	}
}

func TestJSON_NilBody(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusNoContent, nil)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", rec.Body.String())
	}
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name       string
		write      func(w http.ResponseWriter)
		wantStatus int
		wantError  string
	}{
		{"BadRequest", func(w http.ResponseWriter) { BadRequest(w, "missing field") }, http.StatusBadRequest, "missing field"},
		{"Unauthorized", func(w http.ResponseWriter) { Unauthorized(w, "not logged in") }, http.StatusUnauthorized, "not logged in"},
		{"TooManyRequests", func(w http.ResponseWriter) { TooManyRequests(w, "slow down") }, http.StatusTooManyRequests, "slow down"},
		{"InternalError", func(w http.ResponseWriter) { InternalError(w, "something broke") }, http.StatusInternalServerError, "something broke"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["error"] != tt.wantError {
				t.Errorf("error = %q, want %q", body["error"], tt.wantError)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"apple"}`))

	var payload struct {
		Name string `json:"name"`
	}
	if err := Decode(req, &payload); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if payload.Name != "apple" {
		t.Errorf("name = %q, want apple", payload.Name)
	}

	bad := httptest.NewRequest("POST", "/", strings.NewReader(`{not json`))
	if err := Decode(bad, &payload); err == nil {
		t.Error("Decode() expected error for malformed body")
	}
}
