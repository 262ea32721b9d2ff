package validation

import (
	"errors"
	"testing"

	apperrors "go-scantron-grader/internal/errors"
)

func appMessage(t *testing.T, err error) string {
	t.Helper()
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("Expected AppError, got: %T", err)
	}
	if appErr.Type != apperrors.ErrorTypeValidation {
		t.Errorf("Expected validation error, got %s", appErr.Type)
	}
	return appErr.Message
}

func TestNewURLValidator(t *testing.T) {
	validator := NewURLValidator()

	for _, scheme := range []string{"http", "https", "azblob"} {
		if !validator.isSchemeAllowed(scheme) {
			t.Errorf("Expected %s scheme to be allowed", scheme)
		}
	}
	for _, scheme := range []string{"ftp", "file", "data"} {
		if validator.isSchemeAllowed(scheme) {
			t.Errorf("Expected %s scheme to be disallowed", scheme)
		}
	}
}

func TestValidatePageURL_ValidURLs(t *testing.T) {
	validator := NewURLValidator()

	validURLs := []string{
		"http://scanner.local/batch/page-001.png",
		"https://example.com/scans/page.jpg",
		"http://192.168.1.1/page.png",
		"azblob://scans/period3/page-007.png",
	}

	for _, url := range validURLs {
		if err := validator.ValidatePageURL(url); err != nil {
			t.Errorf("Expected valid URL %s to pass validation, got error: %v", url, err)
		}
	}
}

func TestValidatePageURL_Rejections(t *testing.T) {
	validator := NewURLValidator()

	tests := []struct {
		url     string
		message string
	}{
		{"", "URL cannot be empty"},
		{"   ", "URL cannot be empty"},
		{"://missing-scheme", "Invalid URL format"},
		{"not-a-url", "URL scheme not allowed"},
		{"ftp://example.com/page.png", "URL scheme not allowed"},
		{"file://local/path/page.png", "URL scheme not allowed"},
		{"http://", "URL must have a valid host"},
		{"http:///path", "URL must have a valid host"},
		{"azblob://scans", "Blob URL must name a blob"},
	}

	for _, tt := range tests {
		err := validator.ValidatePageURL(tt.url)
		if err == nil {
			t.Errorf("Expected %q to fail validation", tt.url)
			continue
		}
		if got := appMessage(t, err); got != tt.message {
			t.Errorf("%q: expected %q, got %q", tt.url, tt.message, got)
		}
	}
}

func TestValidatePageURL_RestrictedHosts(t *testing.T) {
	validator := NewURLValidatorWithOptions([]string{"https", "azblob"}, []string{"scans.example.com", "scans"})

	for _, url := range []string{"https://scans.example.com/p1.png", "azblob://scans/p1.png"} {
		if err := validator.ValidatePageURL(url); err != nil {
			t.Errorf("Expected allowed host URL '%s' to pass validation, got error: %v", url, err)
		}
	}

	err := validator.ValidatePageURL("https://untrusted.com/p1.png")
	if err == nil {
		t.Fatal("Expected disallowed host to fail validation")
	}
	if got := appMessage(t, err); got != "URL host not allowed" {
		t.Errorf("Expected 'URL host not allowed' error, got: %s", got)
	}
}

func TestValidatePageURLs(t *testing.T) {
	validator := NewURLValidator()

	if err := validator.ValidatePageURLs(nil); err == nil {
		t.Error("Expected empty batch to fail validation")
	}
	if err := validator.ValidatePageURLs([]string{"https://a.com/1.png", "ftp://a.com/2.png"}); err == nil {
		t.Error("Expected batch with a bad URL to fail validation")
	}
	if err := validator.ValidatePageURLs([]string{"https://a.com/1.png", "azblob://c/2.png"}); err != nil {
		t.Errorf("Expected batch to pass, got %v", err)
	}
}
