package filter

import (
	"testing"
)

func TestFilter_Allows_IncludeMode(t *testing.T) {
	f, err := New(Options{Include: []string{"^INBOX", "^Archive/"}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if !f.Allows("INBOX") {
		t.Error("Expected INBOX to be allowed")
	}
	if !f.Allows("Archive/2023") {
		t.Error("Expected Archive/2023 to be allowed")
	}
	if f.Allows("Spam") {
		t.Error("Expected Spam to be filtered out")
	}
}

func TestFilter_Allows_ExcludeMode(t *testing.T) {
	f, err := New(Options{Exclude: []string{"(?i)junk|spam", "^Trash$"}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if !f.Allows("INBOX") {
		t.Error("Expected INBOX to be allowed")
	}
	if f.Allows("Junk") {
		t.Error("Expected Junk to be filtered out")
	}
	if f.Allows("Trash") {
		t.Error("Expected Trash to be filtered out")
	}
	if !f.Allows("Trash/Kept") {
		t.Error("Expected Trash/Kept to be allowed")
	}
}

func TestFilter_MutuallyExclusive(t *testing.T) {
	_, err := New(Options{Include: []string{"a"}, Exclude: []string{"b"}})
	if err == nil {
		t.Error("Expected error when both include and exclude are specified")
	}
}

func TestFilter_InvalidPattern(t *testing.T) {
	_, err := New(Options{Include: []string{"("}})
	if err == nil {
		t.Error("Expected error for invalid pattern")
	}
}

func TestFilter_NoFilters(t *testing.T) {
	f, err := New(Options{Include: []string{"  "}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if f.Active() {
		t.Error("Expected blank patterns to be ignored")
	}
	if !f.Allows("Anything") {
		t.Error("Expected mailbox to be allowed when no filters are active")
	}

	var nilFilter *Filter
	if !nilFilter.Allows("Anything") {
		t.Error("Expected nil filter to allow everything")
	}
}
