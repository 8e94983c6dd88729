package search

import (
	"strings"
	"testing"
)

func TestKnowledgeBase_Lookup(t *testing.T) {
	kb := NewKnowledgeBase(fixedNow)
	tests := []struct {
		query  string
		want   string
		wantOK bool
	}{
		{"What is the capital of France?", "The capital of France is Paris.", true},
		{"capital of SOUTH AFRICA", "The capital of South Africa is Cape Town, Pretoria, and Bloemfontein.", true},
		{"capital of the USA", "The capital of Usa is Washington, D.C.", true},
		{"GE90 thrust", "The GE90 is a family of turbofan engines.", true},
		{"boiling point of water", "Water boils at 100°C", true},
		{"how tall is mount everest", "Mount Everest is 8,848.86 meters", true},
		{"what is learning", "Machine learning is a subset of AI", true},
		{"what is the date today", "Today's date is March 05, 2026.", true},
		{"quantum chromodynamics", "I don't have specific information about 'quantum chromodynamics'", false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, ok := kb.Lookup(tt.query)
			if ok != tt.wantOK {
				t.Errorf("found = %v, want %v", ok, tt.wantOK)
			}
			if !strings.HasPrefix(got, tt.want) {
				t.Errorf("Lookup(%q) = %q, want prefix %q", tt.query, got, tt.want)
			}
		})
	}
}

func TestKnowledgeBase_CapitalNeedsKeyword(t *testing.T) {
	kb := NewKnowledgeBase(fixedNow)
	if got, ok := kb.Lookup("tell me about france"); ok {
		t.Errorf("country without 'capital' should not match, got %q", got)
	}
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"plain   text\n here", "plain text here"},
		{"The <strong>GE90</strong> engine", "The GE90 engine"},
		{"Fish &amp; chips", "Fish & chips"},
		{"line<br>break", "line break"},
		{"<script>alert(1)</script>safe", "safe"},
	}
	for _, tt := range tests {
		if got := CleanText(tt.in); got != tt.want {
			t.Errorf("CleanText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
