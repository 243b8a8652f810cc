package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"verbose", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInitialize_SilentWithoutLevel(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "")
	t.Cleanup(func() { SetLogger(nil) })

	if err := Initialize(""); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if GetLogger().Core().Enabled(zapcore.ErrorLevel) {
		t.Error("logger should be a no-op when no level is configured")
	}
}

func TestInitializeFileOnly(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil) })
	path := filepath.Join(t.TempDir(), "groundlink.log")

	InitializeFileOnly("warn", &FileOptions{Path: path, MaxSizeMB: 1})
	Info("not written")
	Warn("written", zap.String("link", "udp"))
	Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(data)
	if strings.Contains(out, "not written") {
		t.Error("info entry written below warn level")
	}
	if !strings.Contains(out, `"msg":"written"`) || !strings.Contains(out, `"link":"udp"`) {
		t.Errorf("log file = %q", out)
	}

	InitializeFileOnly("info", nil)
	if GetLogger().Core().Enabled(zapcore.ErrorLevel) {
		t.Error("file-only logger without a file should be a no-op")
	}
}

func TestLogRawBytes(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })

	LogRawBytes("frame", []byte{0xFE, 'A', 0x00})

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["hex"] != "fe4100" {
		t.Errorf("hex = %v, want fe4100", fields["hex"])
	}
	if fields["ascii"] != ".A." {
		t.Errorf("ascii = %v, want .A.", fields["ascii"])
	}
}

func TestHexDump_Truncates(t *testing.T) {
	data := make([]byte, 300)
	got := hexDump(data)
	if !strings.HasSuffix(got, "...") || len(got) != 256*2+3 {
		t.Errorf("hexDump length = %d", len(got))
	}
	if hexDump(nil) != "" || asciiDump(nil) != "" {
		t.Error("empty input should produce empty dumps")
	}
}

func TestLogLinkEvent(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })

	LogLinkEvent("udp", "opened", zap.String("remote", "10.0.0.1:14550"))

	entries := logs.FilterMessage("Link event").All()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	m := entries[0].ContextMap()
	if m["link"] != "udp" || m["event"] != "opened" || m["remote"] != "10.0.0.1:14550" {
		t.Errorf("fields = %v", m)
	}
}
