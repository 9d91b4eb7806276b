package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

// SetupがJSON形式でログを出力すること
func TestSetup_OutputsJSON(t *testing.T) {
	var buf bytes.Buffer
	log := Setup(&buf, slog.LevelInfo)

	log.Info("テストメッセージ", slog.String("key", "value"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("ログ出力がJSONとしてパースできない: %v", err)
	}
	if entry["msg"] != "テストメッセージ" {
		t.Errorf("msg = %v, want %q", entry["msg"], "テストメッセージ")
	}
	if entry["key"] != "value" {
		t.Errorf("key = %v, want %q", entry["key"], "value")
	}
}

// 指定レベル未満のログが出力されないこと
func TestSetup_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := Setup(&buf, slog.LevelInfo)

	log.Debug("デバッグメッセージ")

	if buf.Len() != 0 {
		t.Errorf("InfoレベルのロガーはDebugを出力してはならない: %s", buf.String())
	}
}
