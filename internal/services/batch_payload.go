package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// BatchInputMIMEType is the MIME type of an uploaded request bundle.
const BatchInputMIMEType = "application/vnd.google.generativeai.jsonl"

// BatchInput is one image to be sent in a request bundle.
type BatchInput struct {
	Key      string // input filename, echoed back in the result record
	MIMEType string
	Data     []byte
}

// Request bundle lines. The service expects snake_case here.
type batchRequestLine struct {
	Key     string         `json:"key"`
	Request contentRequest `json:"request"`
}

type contentRequest struct {
	Contents []requestContent `json:"contents"`
}

type requestContent struct {
	Parts []requestPart `json:"parts"`
}

type requestPart struct {
	InlineData *requestBlob `json:"inline_data,omitempty"`
	Text       string       `json:"text,omitempty"`
}

type requestBlob struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"` // base64 on the wire
}

// EncodeBatchRequests renders one JSONL line per input, each asking the model
// to apply instruction to the inline image.
func EncodeBatchRequests(inputs []BatchInput, instruction string) ([]byte, error) {
	var buf bytes.Buffer
	for i, in := range inputs {
		line := batchRequestLine{
			Key: in.Key,
			Request: contentRequest{Contents: []requestContent{{
				Parts: []requestPart{
					{InlineData: &requestBlob{MIMEType: in.MIMEType, Data: in.Data}},
					{Text: instruction},
				},
			}}},
		}
		b, err := json.Marshal(line)
		if err != nil {
			return nil, fmt.Errorf("encode request for %s: %w", in.Key, err)
		}
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.Write(b)
	}
	return buf.Bytes(), nil
}

// BatchResultLine is one record of a downloaded result bundle.
type BatchResultLine struct {
	Key      string          `json:"key"`
	Response *resultResponse `json:"response"`
	Error    *resultError    `json:"error"`
}

type resultError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type resultResponse struct {
	Candidates []resultCandidate `json:"candidates"`
}

type resultCandidate struct {
	Content      *resultContent `json:"content"`
	FinishReason string         `json:"finishReason"`
}

type resultContent struct {
	Parts []resultPart `json:"parts"`
}

type resultPart struct {
	InlineData      *ResultImage `json:"inlineData"`
	InlineDataSnake *ResultImage `json:"inline_data"`
	Text            string       `json:"text"`
}

// ResultImage is an inline image returned by the model.
type ResultImage struct {
	MIMEType      string `json:"mimeType"`
	MIMETypeSnake string `json:"mime_type"`
	Data          []byte `json:"data"`
}

// Type returns the declared MIME type of the image.
func (r ResultImage) Type() string {
	if r.MIMEType != "" {
		return r.MIMEType
	}
	return r.MIMETypeSnake
}

// ParseResultLine decodes one line of a result bundle.
func ParseResultLine(line []byte) (BatchResultLine, error) {
	var rec BatchResultLine
	if err := json.Unmarshal(line, &rec); err != nil {
		return BatchResultLine{}, fmt.Errorf("malformed result record: %w", err)
	}
	return rec, nil
}

// Images returns the inline images of every candidate, in order.
func (l BatchResultLine) Images() []ResultImage {
	var images []ResultImage
	l.eachPart(func(p resultPart) {
		switch {
		case p.InlineData != nil:
			images = append(images, *p.InlineData)
		case p.InlineDataSnake != nil:
			images = append(images, *p.InlineDataSnake)
		}
	})
	return images
}

// Texts returns the text parts of every candidate, in order.
func (l BatchResultLine) Texts() []string {
	var texts []string
	l.eachPart(func(p resultPart) {
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
	})
	return texts
}

func (l BatchResultLine) eachPart(fn func(resultPart)) {
	if l.Response == nil {
		return
	}
	for _, c := range l.Response.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			fn(p)
		}
	}
}

// OutputFileName names the index-th (1-based) image produced for key:
// "<base>_upscaled.png" for PNG data, ".jpg" for anything else, with "_<n>"
// appended to the stem from the second image on.
func OutputFileName(key, mimeType string, index int) string {
	base := filepath.Base(key)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	ext := ".jpg"
	if strings.EqualFold(mimeType, "image/png") {
		ext = ".png"
	}

	name := stem + "_upscaled"
	if index > 1 {
		name = fmt.Sprintf("%s_%d", name, index)
	}
	return name + ext
}
