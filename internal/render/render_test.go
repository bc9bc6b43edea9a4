package render

import (
	"strings"
	"testing"

	"github.com/pbrown/claude-recall/internal/models"
)

func TestToHTMLRendersGFMTable(t *testing.T) {
	md := "| a | b |\n|---|---|\n| 1 | 2 |\n"
	out, err := ToHTML(md)
	if err != nil {
		t.Fatalf("ToHTML: %v", err)
	}
	if !strings.Contains(out, "<table>") {
		t.Fatalf("expected GFM table extension to render a <table>, got:\n%s", out)
	}
}

func TestToHTMLEscapesRawHTML(t *testing.T) {
	out, err := ToHTML("plain *text*")
	if err != nil {
		t.Fatalf("ToHTML: %v", err)
	}
	if !strings.Contains(out, "<em>text</em>") {
		t.Fatalf("expected emphasis rendering, got:\n%s", out)
	}
}

func TestPageIncludesLessonsAndHandoffs(t *testing.T) {
	l := models.NewLesson("L001", "pattern", "retry flaky calls", "wrap with backoff")
	h := models.NewHandoff("hf-1234567", "migrate config loader")

	out, err := Page([]*models.Lesson{l}, []*models.Handoff{h})
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if !strings.Contains(out, "L001") || !strings.Contains(out, "hf-1234567") {
		t.Fatalf("expected both lesson and handoff IDs present, got:\n%s", out)
	}
	if !strings.Contains(out, "<!DOCTYPE html>") {
		t.Fatalf("expected full HTML document")
	}
}

func TestPageEscapesTitles(t *testing.T) {
	l := models.NewLesson("L002", "pattern", "<script>alert(1)</script>", "body")
	out, err := Page([]*models.Lesson{l}, nil)
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if strings.Contains(out, "<script>alert(1)</script>") {
		t.Fatalf("expected title to be HTML-escaped, got:\n%s", out)
	}
}
