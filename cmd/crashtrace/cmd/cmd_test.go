package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/crashtrace/internal/stack"
	"github.com/hugo-lorenzo-mato/crashtrace/internal/wire"
)

func TestRootCmd_Structure(t *testing.T) {
	if rootCmd.Use != "crashtrace" {
		t.Errorf("expected 'crashtrace', got '%s'", rootCmd.Use)
	}
	if rootCmd.Short == "" {
		t.Error("expected non-empty short description")
	}
}

func TestCommandsRegistered(t *testing.T) {
	expected := []string{
		"capture",
		"resolve ADDRESS...",
		"symbols",
		"decode [FILE]",
		"serve",
		"selftest",
		"reports",
		"export ID",
		"init",
		"version",
	}
	for _, use := range expected {
		found := false
		for _, cmd := range rootCmd.Commands() {
			if cmd.Use == use {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("command %q not registered", use)
		}
	}
}

func TestReportsSubcommandsRegistered(t *testing.T) {
	expected := []string{"show ID", "delete ID", "prune"}
	for _, use := range expected {
		found := false
		for _, cmd := range reportsCmd.Commands() {
			if cmd.Use == use {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("reports subcommand %q not registered", use)
		}
	}
}

func TestCaptureCmd_Flags(t *testing.T) {
	var captureCommand *cobra.Command
	for _, cmd := range rootCmd.Commands() {
		if cmd.Use == "capture" {
			captureCommand = cmd
			break
		}
	}
	if captureCommand == nil {
		t.Fatal("capture command not found")
	}
	for _, flagName := range []string{"scope", "format", "output"} {
		if captureCommand.Flags().Lookup(flagName) == nil {
			t.Errorf("capture command missing flag: %s", flagName)
		}
	}
}

func TestSetVersion(t *testing.T) {
	SetVersion("1.0.0", "abc123", "2024-01-01")
	if appVersion != "1.0.0" {
		t.Errorf("expected version '1.0.0', got '%s'", appVersion)
	}
	if appCommit != "abc123" {
		t.Errorf("expected commit 'abc123', got '%s'", appCommit)
	}
	if appDate != "2024-01-01" {
		t.Errorf("expected date '2024-01-01', got '%s'", appDate)
	}
	if GetVersion() != "1.0.0" {
		t.Errorf("GetVersion = %s, want 1.0.0", GetVersion())
	}
}

func TestDecode_FrameSequence(t *testing.T) {
	seq := stack.Sequence{
		{Addr: 0x401000, Function: "main.run", File: "main.go", Line: 42},
		{Addr: 0x401200, Function: "main.main", File: "main.go", Line: 12},
	}
	payload := wire.PackFrames(seq)

	var out bytes.Buffer
	decodeCmd.SetIn(bytes.NewReader(payload))
	decodeCmd.SetOut(&out)
	defer decodeCmd.SetIn(nil)
	defer decodeCmd.SetOut(nil)

	if err := runDecode(decodeCmd, nil); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(out.String(), "main.run") {
		t.Errorf("output missing frame: %q", out.String())
	}
}

func TestDecode_Tree(t *testing.T) {
	tree := stack.Merge([]stack.Sequence{
		{{Addr: 0x1, Function: "worker.loop"}},
		{{Addr: 0x1, Function: "worker.loop"}},
	})
	payload := wire.PackTree(tree)

	tmp := filepath.Join(t.TempDir(), "tree.bin")
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	decodeCmd.SetOut(&out)
	defer decodeCmd.SetOut(nil)

	if err := runDecode(decodeCmd, []string{tmp}); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(out.String(), "worker.loop") {
		t.Errorf("output missing frame: %q", out.String())
	}
	if !strings.Contains(out.String(), "(x2)") {
		t.Errorf("output missing contributor count: %q", out.String())
	}
}

func TestDecode_Garbage(t *testing.T) {
	var out bytes.Buffer
	decodeCmd.SetIn(bytes.NewReader([]byte{0xde, 0xad, 0xbe, 0xef}))
	decodeCmd.SetOut(&out)
	defer decodeCmd.SetIn(nil)
	defer decodeCmd.SetOut(nil)

	if err := runDecode(decodeCmd, nil); err == nil {
		t.Error("expected error for garbage payload")
	}
}

func TestInit_WritesConfig(t *testing.T) {
	t.Chdir(t.TempDir())

	var out bytes.Buffer
	initCmd.SetOut(&out)
	defer initCmd.SetOut(nil)

	if err := runInit(initCmd, nil); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := os.Stat(".crashtrace.yaml"); err != nil {
		t.Errorf("config file not written: %v", err)
	}

	// A second run without --force must refuse.
	initForce = false
	if err := runInit(initCmd, nil); err == nil {
		t.Error("expected error when config already exists")
	}
}

func TestWriteOutput_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	if err := writeOutput(path, []byte("hello")); err != nil {
		t.Fatalf("writeOutput: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Errorf("content = %q, want hello", data)
	}
}
