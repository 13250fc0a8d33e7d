package logger

import (
	"os"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]string{
		"debug": "DEBUG",
		"info":  "INFO",
		"warn":  "WARN",
		"error": "ERROR",
		"bogus": "INFO",
		"":      "INFO",
	}
	for input, want := range cases {
		got := parseLevel(input).String()
		if got != want {
			t.Errorf("parseLevel(%q) = %s, want %s", input, got, want)
		}
	}
}

func TestNewWritesToFile(t *testing.T) {
	dir := t.TempDir()
	log, err := New("info", dir+"/out.log")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Info("hello")

	data, err := os.ReadFile(dir + "/out.log")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"hello"`) {
		t.Errorf("log file = %q, want it to contain the hello record", data)
	}
}
