package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAnalyze(t *testing.T) {
	var gotAuth, gotSymbol string
	worker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var req struct {
			Symbol string `json:"symbol"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotSymbol = req.Symbol
		json.NewEncoder(w).Encode(Analysis{
			Signal:     SignalBuy,
			Confidence: 0.82,
			Summary:    "momentum building",
		})
	}))
	defer worker.Close()

	client := NewWorkerClient(worker.URL, "test-key", time.Second)
	analysis, err := client.Analyze(context.Background(), " btcusdt ", Options{Model: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("auth header=%q, expected bearer key", gotAuth)
	}
	if gotSymbol != "BTCUSDT" {
		t.Fatalf("sent symbol=%q, expected normalized BTCUSDT", gotSymbol)
	}
	if analysis.Symbol != "BTCUSDT" {
		t.Fatalf("symbol=%q, expected backfilled BTCUSDT", analysis.Symbol)
	}
	if analysis.Signal != SignalBuy || analysis.Confidence != 0.82 {
		t.Fatalf("analysis=%+v, expected worker verdict", analysis)
	}
}

func TestAnalyzeEmptySymbol(t *testing.T) {
	client := NewWorkerClient("http://localhost:0", "", time.Second)
	_, err := client.Analyze(context.Background(), "  ", Options{})
	if !errors.Is(err, ErrAnalysis) {
		t.Fatalf("err=%v, expected ErrAnalysis", err)
	}
}

func TestAnalyzeWorkerError(t *testing.T) {
	worker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer worker.Close()

	client := NewWorkerClient(worker.URL, "", time.Second)
	_, err := client.Analyze(context.Background(), "BTCUSDT", Options{})
	if !errors.Is(err, ErrAnalysis) {
		t.Fatalf("err=%v, expected ErrAnalysis", err)
	}
}

func TestAnalyzeRejectsBadResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown signal", `{"signal":"MAYBE","confidence":0.5}`},
		{"confidence above one", `{"signal":"BUY","confidence":1.5}`},
		{"negative confidence", `{"signal":"BUY","confidence":-0.1}`},
		{"not json", `<html>oops</html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			worker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer worker.Close()

			client := NewWorkerClient(worker.URL, "", time.Second)
			_, err := client.Analyze(context.Background(), "BTCUSDT", Options{})
			if !errors.Is(err, ErrAnalysis) {
				t.Fatalf("err=%v, expected ErrAnalysis", err)
			}
		})
	}
}

func TestAnalyzeTimeout(t *testing.T) {
	worker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer worker.Close()

	client := NewWorkerClient(worker.URL, "", 20*time.Millisecond)
	_, err := client.Analyze(context.Background(), "BTCUSDT", Options{})
	if !errors.Is(err, ErrAnalysis) {
		t.Fatalf("err=%v, expected ErrAnalysis on timeout", err)
	}
}
