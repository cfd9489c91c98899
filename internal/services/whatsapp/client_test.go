package whatsapp_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/expertec/ApiSuno-Cantalab-server/internal/services/whatsapp"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		country string
		want    string
		wantErr bool
	}{
		{"already international", "5215512345678", "52", "5215512345678", false},
		{"national gets country code", "5512345678", "52", "525512345678", false},
		{"formatted input", "+52 1 (55) 1234-5678", "52", "5215512345678", false},
		{"too short", "123", "52", "", true},
		{"too long", "123456789012345678", "52", "", true},
		{"no digits", "abc", "52", "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := whatsapp.NormalizePhone(tc.raw, tc.country)
			if tc.wantErr {
				if !errors.Is(err, whatsapp.ErrInvalidPhone) {
					t.Fatalf("expected ErrInvalidPhone, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizePhone failed: %v", err)
			}
			if got != tc.want {
				t.Fatalf("NormalizePhone(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}

func TestSendTextPostsPayload(t *testing.T) {
	var gotBody map[string]any
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("apikey")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client := whatsapp.NewClient(whatsapp.Config{
		BaseURL:  server.URL,
		APIKey:   "secret",
		Instance: "cantalab",
	})
	if err := client.SendText(context.Background(), "5215512345678", "Hola Maria"); err != nil {
		t.Fatalf("SendText failed: %v", err)
	}

	if gotKey != "secret" {
		t.Fatalf("unexpected apikey header: %q", gotKey)
	}
	if gotBody["to"] != "5215512345678" || gotBody["type"] != "text" || gotBody["text"] != "Hola Maria" {
		t.Fatalf("unexpected payload: %v", gotBody)
	}
	if gotBody["instance"] != "cantalab" {
		t.Fatalf("expected instance in payload, got %v", gotBody["instance"])
	}
}

func TestSendRejectsInvalidPhone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("gateway must not be called for invalid numbers")
	}))
	defer server.Close()

	client := whatsapp.NewClient(whatsapp.Config{BaseURL: server.URL})
	err := client.SendText(context.Background(), "123", "hola")
	if !errors.Is(err, whatsapp.ErrInvalidPhone) {
		t.Fatalf("expected ErrInvalidPhone, got %v", err)
	}
}

func TestSendSurfacesGatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"error","error":"session disconnected"}`))
	}))
	defer server.Close()

	client := whatsapp.NewClient(whatsapp.Config{BaseURL: server.URL})
	err := client.SendAudio(context.Background(), "5215512345678", "https://cdn.example/a.mp3")
	if err == nil {
		t.Fatal("expected gateway error")
	}
}
