package extractor

import (
	"context"
	"encoding/json"
)

// StaticStub is a TextExtractor and StructuredExtractor used in worker
// tests, returning scripted results (keyed by file type for ExtractText and
// by source name for ExtractStructured) rather than calling an LLM.
type StaticStub struct {
	Text       map[string]string
	TextErr    map[string]error
	Structured map[string]map[string]interface{}
	Err        map[string]error
	Calls      []string
}

// NewStaticStub returns an empty StaticStub; callers populate its maps
// before use.
func NewStaticStub() *StaticStub {
	return &StaticStub{
		Text:       make(map[string]string),
		TextErr:    make(map[string]error),
		Structured: make(map[string]map[string]interface{}),
		Err:        make(map[string]error),
	}
}

func (s *StaticStub) ExtractText(_ context.Context, _ []byte, fileType string) (string, error) {
	if err, ok := s.TextErr[fileType]; ok && err != nil {
		return "", err
	}
	return s.Text[fileType], nil
}

func (s *StaticStub) ExtractStructured(_ context.Context, chunk string, sourceName string) ([]byte, error) {
	s.Calls = append(s.Calls, sourceName)
	if err, ok := s.Err[sourceName]; ok && err != nil {
		return nil, err
	}
	payload := s.Structured[sourceName]
	if payload == nil {
		payload = map[string]interface{}{}
	}
	payload["source_document"] = sourceName
	return json.Marshal(payload)
}
