package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNewWritesJSONWithFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "workbookd.log")

	logger, err := New(path, Options{Profile: "main", Program: "workbookd"})
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("relay connected", zap.String("topic", "admin-inbox"))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	line := strings.TrimSpace(string(data))
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v: %q", err, line)
	}
	for key, want := range map[string]string{"msg": "relay connected", "profile": "main", "program": "workbookd", "topic": "admin-inbox"} {
		if entry[key] != want {
			t.Errorf("%s = %v, want %q", key, entry[key], want)
		}
	}
	if _, ok := entry["ts"]; !ok {
		t.Error("missing ts field")
	}
}
