package transcode

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCreateAssetFromURL(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/asset/upload/url" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"asset": map[string]any{"id": "a1", "playbackId": "pb1"},
		})
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, APIKey: "test-key", Logger: quietLogger()})
	asset, err := c.CreateAssetFromURL(context.Background(), "clip", "https://cdn.example.com/clip.mp4", true)
	if err != nil {
		t.Fatalf("CreateAssetFromURL: %v", err)
	}
	if asset.ID != "a1" || asset.PlaybackID != "pb1" {
		t.Errorf("asset = %+v", asset)
	}
	if gotBody["url"] != "https://cdn.example.com/clip.mp4" {
		t.Errorf("request url = %v", gotBody["url"])
	}
	if gotBody["staticMp4"] != true {
		t.Errorf("staticMp4 = %v, want true", gotBody["staticMp4"])
	}
}

func TestGetAssetAcceptsBarePayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/asset/a1" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "a1",
			"status": map[string]any{"phase": "processing", "progress": 42.0},
		})
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, Logger: quietLogger()})
	asset, err := c.GetAsset(context.Background(), "a1")
	if err != nil {
		t.Fatalf("GetAsset: %v", err)
	}
	if asset.Status.Phase != "processing" || asset.Status.Progress != 42 {
		t.Errorf("status = %+v", asset.Status)
	}
}

func TestGetAssetErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, Logger: quietLogger()})
	if _, err := c.GetAsset(context.Background(), "a1"); err == nil {
		t.Fatal("expected error on 500 response")
	}
}

func TestRequestUploadRequiresURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"asset": map[string]any{"id": "a1"}})
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, Logger: quietLogger()})
	if _, err := c.RequestUpload(context.Background(), "clip"); err == nil {
		t.Fatal("expected error when response omits upload URL")
	}
}
