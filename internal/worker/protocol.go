package worker

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

const (
	DefaultMIME     = "application/pdf"
	DefaultJobTitle = "Không cung cấp"

	maxTraceFrames = 3
)

// Request is one line of input.
type Request struct {
	ID       json.RawMessage `json:"id"`
	MIME     string          `json:"mime"`
	JobTitle string          `json:"job_title"`
	DataB64  string          `json:"data_b64" validate:"required_without=ObjectKey"`
	// ObjectKey names the document in the object store. It is only read
	// when data_b64 is absent.
	ObjectKey string `json:"object_key"`
}

// Response is one line of output. ID is written as null when absent.
type Response struct {
	ID       json.RawMessage `json:"id"`
	OK       bool            `json:"ok"`
	Data     any             `json:"data,omitempty"`
	Warnings []string        `json:"warnings,omitempty"`
	Error    string          `json:"error,omitempty"`
	Trace    string          `json:"trace,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func parseRequest(line []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return nil, errors.Wrap(err, "invalid request JSON")
	}
	if err := validate.Struct(&req); err != nil {
		return &req, errors.New("missing data_b64")
	}
	req.MIME = strings.TrimSpace(req.MIME)
	if req.MIME == "" {
		req.MIME = DefaultMIME
	}
	req.JobTitle = strings.TrimSpace(req.JobTitle)
	if req.JobTitle == "" {
		req.JobTitle = DefaultJobTitle
	}
	return &req, nil
}

// recoverID pulls the id out of a line that failed to parse, or returns nil.
func recoverID(line []byte) json.RawMessage {
	id := gjson.GetBytes(line, "id")
	if !id.Exists() || !gjson.Valid(id.Raw) {
		return nil
	}
	return json.RawMessage(id.Raw)
}

// decodeBase64 accepts padded or unpadded standard base64 with embedded
// whitespace.
func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	}
	if err != nil {
		return nil, errors.Wrap(err, "invalid data_b64")
	}
	return data, nil
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// trace renders up to three frames of the innermost stack attached to err.
func trace(err error) string {
	var st errors.StackTrace
	for e := err; e != nil; e = errors.Unwrap(e) {
		if s, ok := e.(stackTracer); ok {
			st = s.StackTrace()
		}
	}
	lines := make([]string, 0, maxTraceFrames)
	for _, f := range st {
		name := fmt.Sprintf("%n", f)
		full := fmt.Sprintf("%+s", f)
		if strings.HasPrefix(full, "runtime.") {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s:%d %s", f, f, name))
		if len(lines) == maxTraceFrames {
			break
		}
	}
	return strings.Join(lines, "\n")
}

func failure(id json.RawMessage, err error) *Response {
	return &Response{ID: id, OK: false, Error: err.Error(), Trace: trace(err)}
}

// encodeLine writes resp as compact JSON without HTML escaping and without
// the trailing newline.
func encodeLine(resp *Response) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(resp); err != nil {
		return nil, errors.Wrap(err, "encode response")
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// WriteResponse writes resp to w as a single line.
func WriteResponse(w io.Writer, resp *Response) error {
	line, err := encodeLine(resp)
	if err != nil {
		return err
	}
	_, err = w.Write(append(line, '\n'))
	return errors.Wrap(err, "write response")
}
