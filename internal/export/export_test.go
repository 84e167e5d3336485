package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pennh4i/tentacool/internal/backend"
)

const (
	promptsCSV   = "id,text,note\n1,\"hello, world\",\n2,\"multi\nline\",n\n"
	responsesCSV = "id,prompt_id,llm,response,jailbroken,note\n10,1,openai:gpt-4o,hi,false,\n"
)

func TestWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	res, err := Write(dir, &backend.CSVExport{
		Prompts:        promptsCSV,
		Responses:      responsesCSV,
		PromptsCount:   2,
		ResponsesCount: 1,
	})
	if err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	if res.Prompts.Rows != 2 || res.Prompts.Expected != 2 {
		t.Errorf("prompts = %+v", res.Prompts)
	}
	if res.Responses.Rows != 1 || res.Responses.Expected != 1 {
		t.Errorf("responses = %+v", res.Responses)
	}

	got, err := os.ReadFile(filepath.Join(dir, PromptsFile))
	if err != nil {
		t.Fatalf("reading prompts.csv: %v", err)
	}
	if string(got) != promptsCSV {
		t.Errorf("prompts.csv = %q", got)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("directory has %d entries, want 2 (no temp files left)", len(entries))
	}
}

func TestWrite_Empty(t *testing.T) {
	if _, err := Write(t.TempDir(), &backend.CSVExport{}); !errors.Is(err, ErrEmpty) {
		t.Errorf("got %v, want ErrEmpty", err)
	}
	if _, err := Write(t.TempDir(), nil); !errors.Is(err, ErrEmpty) {
		t.Errorf("nil: got %v, want ErrEmpty", err)
	}
}

func TestWrite_Malformed(t *testing.T) {
	dir := t.TempDir()
	_, err := Write(dir, &backend.CSVExport{Prompts: "id,text\n1,\"unterminated\n"})
	if err == nil {
		t.Fatal("expected error for malformed csv")
	}
	if _, statErr := os.Stat(filepath.Join(dir, PromptsFile)); !os.IsNotExist(statErr) {
		t.Error("malformed table should not be written")
	}
}

type fakeSource struct {
	data *backend.CSVExport
	err  error
}

func (f fakeSource) DownloadCSV(ctx context.Context) (*backend.CSVExport, error) {
	return f.data, f.err
}

func TestDownload(t *testing.T) {
	dir := t.TempDir()
	res, err := Download(context.Background(), fakeSource{data: &backend.CSVExport{Responses: responsesCSV, ResponsesCount: 1}}, dir)
	if err != nil {
		t.Fatalf("Download() error: %v", err)
	}
	if res.Prompts.Rows != 0 || res.Responses.Rows != 1 {
		t.Errorf("result = %+v", res)
	}

	boom := errors.New("boom")
	if _, err := Download(context.Background(), fakeSource{err: boom}, dir); !errors.Is(err, boom) {
		t.Errorf("got %v, want wrapped boom", err)
	}
}
