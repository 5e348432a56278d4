package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestPrinterPrintf(t *testing.T) {
	var buf bytes.Buffer
	p := New(WithOutput(&buf))

	p.Printf("merged %d files", 3)
	if !strings.Contains(buf.String(), "merged 3 files") {
		t.Errorf("Printf output = %q, want to contain 'merged 3 files'", buf.String())
	}
}

func TestPrinterQuietSuppressesOutput(t *testing.T) {
	var buf bytes.Buffer
	p := New(WithOutput(&buf), WithQuiet(true))

	p.Printf("hello")
	p.Success("done")
	p.Info("note")
	if buf.Len() != 0 {
		t.Errorf("quiet mode should produce no output, got %q", buf.String())
	}
}

func TestPrinterJSONModeSuppressesText(t *testing.T) {
	var buf bytes.Buffer
	p := New(WithOutput(&buf), WithJSON(true))

	p.Printf("hello")
	p.Success("done")
	if buf.Len() != 0 {
		t.Errorf("json mode should suppress text output, got %q", buf.String())
	}
}

func TestPrinterErrorGoesToErrOut(t *testing.T) {
	var out, errOut bytes.Buffer
	p := New(WithOutput(&out), WithErrOutput(&errOut), WithNoColor(true))

	p.Error("upload failed")
	if out.Len() != 0 {
		t.Errorf("errors should not go to stdout, got %q", out.String())
	}
	if !strings.Contains(errOut.String(), "upload failed") {
		t.Errorf("Error output = %q, want to contain 'upload failed'", errOut.String())
	}
}

func TestPrinterJSON(t *testing.T) {
	var buf bytes.Buffer
	p := New(WithOutput(&buf))

	if err := p.JSON(map[string]string{"jobId": "abc"}); err != nil {
		t.Fatalf("JSON() error = %v", err)
	}

	var result map[string]string
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON output: %v", err)
	}
	if result["jobId"] != "abc" {
		t.Errorf("JSON output jobId = %q, want 'abc'", result["jobId"])
	}
}

func TestTableRender(t *testing.T) {
	var buf bytes.Buffer
	table := NewTableWriter(&buf, []string{"ID", "Status"}, false)
	table.Append([]string{"abc12345", "pending"})
	table.Append([]string{"def", "completed"})
	table.Render()

	out := buf.String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines: %q", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "ID") {
		t.Errorf("header line = %q", lines[0])
	}
	if !strings.Contains(lines[2], "completed") {
		t.Errorf("second row = %q, want to contain 'completed'", lines[2])
	}
}

func TestTableQuiet(t *testing.T) {
	var buf bytes.Buffer
	table := NewTableWriter(&buf, []string{"ID"}, true)
	table.Append([]string{"abc"})
	table.Render()
	if buf.Len() != 0 {
		t.Errorf("quiet table should render nothing, got %q", buf.String())
	}
}

func TestByteProgressCountsWrites(t *testing.T) {
	p := NewByteProgress(10, "test", true)
	n, err := p.Write([]byte("hello"))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if n != 5 {
		t.Errorf("Write() = %d, want 5", n)
	}
	p.Finish()
}
