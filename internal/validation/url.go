package validation

import (
	"fmt"
	"net/url"
	"strings"
)

// URLValidationError reports which field held the bad URL.
type URLValidationError struct {
	Field   string
	Message string
	URL     string
}

func (e URLValidationError) Error() string {
	return fmt.Sprintf("%s: %s (url: %s)", e.Field, e.Message, e.URL)
}

// ValidateURL checks that a URL is a well-formed absolute http(s) URL.
// Empty input passes so optional fields validate cleanly.
func ValidateURL(urlString, fieldName string, requireHTTPS bool) error {
	if urlString == "" {
		return nil
	}

	parsed, err := url.Parse(urlString)
	if err != nil {
		return URLValidationError{Field: fieldName, Message: "invalid URL format", URL: urlString}
	}
	if parsed.Scheme == "" {
		return URLValidationError{Field: fieldName, Message: "URL must include a scheme (http:// or https://)", URL: urlString}
	}
	if parsed.Host == "" {
		return URLValidationError{Field: fieldName, Message: "URL must include a host", URL: urlString}
	}

	scheme := strings.ToLower(parsed.Scheme)
	if requireHTTPS && scheme != "https" {
		return URLValidationError{Field: fieldName, Message: "URL must use HTTPS", URL: urlString}
	}
	if scheme != "http" && scheme != "https" {
		return URLValidationError{Field: fieldName, Message: "URL scheme must be http or https", URL: urlString}
	}
	return nil
}

// ValidateBaseURL checks a URL used as a prefix when building absolute
// links. Beyond ValidateURL it rejects paths, query parameters, and
// fragments.
func ValidateBaseURL(urlString, fieldName string, requireHTTPS bool) error {
	if err := ValidateURL(urlString, fieldName, requireHTTPS); err != nil {
		return err
	}
	if urlString == "" {
		return nil
	}

	parsed, _ := url.Parse(urlString)
	if parsed.Path != "" && parsed.Path != "/" {
		return URLValidationError{Field: fieldName, Message: "base URL must not contain a path", URL: urlString}
	}
	if parsed.RawQuery != "" {
		return URLValidationError{Field: fieldName, Message: "base URL must not contain query parameters", URL: urlString}
	}
	if parsed.Fragment != "" {
		return URLValidationError{Field: fieldName, Message: "base URL must not contain a fragment", URL: urlString}
	}
	return nil
}
