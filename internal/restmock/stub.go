package restmock

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Stub declares a canned response for requests matching a method and path
// pattern. Patterns use chi syntax, so "/users/{id}" matches "/users/42".
type Stub struct {
	// Name identifies the stub in diagnostics and the inspection console.
	// Optional; defaults to "METHOD path".
	Name string `yaml:"name,omitempty"`

	// Method is the HTTP method to match (GET, POST, ...).
	Method string `yaml:"method"`

	// Path is the chi route pattern to match.
	Path string `yaml:"path"`

	// Status is the response status code. Defaults to 200.
	Status int `yaml:"status,omitempty"`

	// Headers are set on the response verbatim.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Body is the response body.
	Body string `yaml:"body,omitempty"`

	// Delay is an artificial response delay ("50ms", "2s").
	// Used for timeout and retry tests.
	Delay string `yaml:"delay,omitempty"`

	// Times limits how often the stub answers. After the limit, requests to
	// this route get the unmatched-request diagnostic. 0 means unlimited.
	Times int `yaml:"times,omitempty"`

	// Responses is an ordered sequence of responses, consumed one per
	// request; the last entry repeats. When set, Status/Headers/Body above
	// are ignored.
	Responses []StubResponse `yaml:"responses,omitempty"`
}

// StubResponse is one entry in a response sequence.
type StubResponse struct {
	Status  int               `yaml:"status,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Body    string            `yaml:"body,omitempty"`
}

// StubFile is the on-disk stub collection format.
type StubFile struct {
	Stubs []Stub `yaml:"stubs"`
}

var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true,
	"DELETE": true, "HEAD": true, "OPTIONS": true,
}

// validate normalizes the stub and returns its parsed delay.
func (s *Stub) validate() (time.Duration, error) {
	s.Method = strings.ToUpper(s.Method)
	if !knownMethods[s.Method] {
		return 0, fmt.Errorf("invalid method %q", s.Method)
	}
	if !strings.HasPrefix(s.Path, "/") {
		return 0, fmt.Errorf("path %q must start with /", s.Path)
	}
	if strings.HasPrefix(s.Path, consolePrefix) {
		return 0, fmt.Errorf("path %q collides with the inspection console", s.Path)
	}
	if s.Status == 0 {
		s.Status = 200
	}
	if s.Status < 100 || s.Status > 599 {
		return 0, fmt.Errorf("invalid status %d", s.Status)
	}
	for i := range s.Responses {
		if s.Responses[i].Status == 0 {
			s.Responses[i].Status = 200
		}
		if s.Responses[i].Status < 100 || s.Responses[i].Status > 599 {
			return 0, fmt.Errorf("responses[%d]: invalid status %d", i, s.Responses[i].Status)
		}
	}
	if s.Times < 0 {
		return 0, fmt.Errorf("times must be non-negative")
	}
	if s.Name == "" {
		s.Name = s.Method + " " + s.Path
	}

	if s.Delay == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.Delay)
	if err != nil {
		return 0, fmt.Errorf("invalid delay %q: %w", s.Delay, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("delay must be non-negative")
	}
	return d, nil
}

// ParseStubs parses a stub file with strict field validation.
func ParseStubs(data []byte) ([]Stub, error) {
	var file StubFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields (catches typos)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(file.Stubs) == 0 {
		return nil, fmt.Errorf("stubs list is required and must be non-empty")
	}
	return file.Stubs, nil
}

// LoadStubs reads a stub file and registers every stub on the server.
func (s *Server) LoadStubs(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read stub file: %w", err)
	}
	stubs, err := ParseStubs(data)
	if err != nil {
		return fmt.Errorf("invalid stub file %s: %w", path, err)
	}
	for i, stub := range stubs {
		if err := s.Stub(stub); err != nil {
			return fmt.Errorf("stub[%d] (%s): %w", i, stub.Name, err)
		}
	}
	return nil
}
