//go:build integration

package bus

import (
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"
)

func skipWithoutNATS(t *testing.T) string {
	t.Helper()
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set, skipping integration test")
	}
	return url
}

func TestIntegration_PubSub(t *testing.T) {
	natsURL := skipWithoutNATS(t)
	logger := slog.Default()

	client, err := NewClient(ClientConfig{URL: natsURL, Token: os.Getenv("NATS_TOKEN")}, logger)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer client.Close()

	received := make(chan Alert, 1)

	err = client.Subscribe(SubjectAlertGuardian, func(subject string, data []byte) {
		var a Alert
		json.Unmarshal(data, &a)
		received <- a
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	// Give subscription time to propagate
	time.Sleep(100 * time.Millisecond)

	alerter := NewAlerter(client, logger)
	alerter.NotifyGuardian("sustained distress beyond threshold")

	select {
	case a := <-received:
		if a.Kind != "guardian" {
			t.Errorf("kind = %q, want guardian", a.Kind)
		}
		if a.Reason == "" {
			t.Error("reason missing")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for alert")
	}
}
