package app

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/fetchcore/internal/client/fetch"
	"github.com/oshokin/fetchcore/internal/engine"
	"github.com/oshokin/fetchcore/internal/logger"
	"github.com/oshokin/fetchcore/internal/utils"
)

// OutputFormat selects how a result is rendered.
type OutputFormat string

const (
	// OutputJSON renders the whole result as indented JSON.
	OutputJSON OutputFormat = "json"
	// OutputYAML renders the whole result as YAML.
	OutputYAML OutputFormat = "yaml"
	// OutputRaw writes only the response body.
	OutputRaw OutputFormat = "raw"
)

const (
	// bodyEncodingText marks a body rendered as UTF-8 text.
	bodyEncodingText = "text"
	// bodyEncodingBase64 marks a body rendered as base64 because it was kept as raw bytes.
	bodyEncodingBase64 = "base64"
)

// ErrUnknownOutputFormat indicates that an output format name is not recognized.
var ErrUnknownOutputFormat = errors.New("unknown output format")

// ParseOutputFormat converts a format name, case-insensitively. An empty name selects OutputJSON.
func ParseOutputFormat(value string) (OutputFormat, error) {
	switch format := OutputFormat(strings.ToLower(strings.TrimSpace(value))); format {
	case "":
		return OutputJSON, nil
	case OutputJSON, OutputYAML, OutputRaw:
		return format, nil
	default:
		return "", fmt.Errorf("%w: '%s'", ErrUnknownOutputFormat, value)
	}
}

// headerView is the rendered form of one header pair.
type headerView struct {
	Name  string `json:"name"  yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// resultView is the rendered form of a result.
type resultView struct {
	Status       int          `json:"status"        yaml:"status"`
	StatusText   string       `json:"status_text"   yaml:"status_text"`
	Headers      []headerView `json:"headers"       yaml:"headers"`
	Body         string       `json:"body"          yaml:"body"`
	BodyEncoding string       `json:"body_encoding" yaml:"body_encoding"`
	URL          string       `json:"url"           yaml:"url"`
	Redirected   bool         `json:"redirected"    yaml:"redirected"`
	Type         string       `json:"type"          yaml:"type"`
}

func newResultView(result *engine.Result) *resultView {
	view := &resultView{
		Status:     result.Status,
		StatusText: result.StatusText,
		Headers: utils.Map(result.Headers, func(header engine.Header) headerView {
			return headerView{Name: header.Name, Value: header.Value}
		}),
		URL:        result.URL,
		Redirected: result.Redirected,
		Type:       result.Type,
	}

	if result.Body.Mode() == engine.BodyModeBytes {
		view.Body = base64.StdEncoding.EncodeToString(result.Body.Bytes())
		view.BodyEncoding = bodyEncodingBase64
	} else {
		view.Body = result.Body.Text()
		view.BodyEncoding = bodyEncodingText
	}

	return view
}

// ExecuteFetchCommand performs one request through client and writes the result to w.
func ExecuteFetchCommand(
	ctx context.Context,
	client fetch.Client,
	req engine.Request,
	format OutputFormat,
	w io.Writer,
) error {
	logger.DebugKV(ctx, "Fetching", "method", req.Method, "url", req.URL, "headers", len(req.Headers))

	result, err := client.Fetch(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to fetch '%s': %w", req.URL, err)
	}

	return WriteResult(w, result, format)
}

// WriteResult renders result to w in the given format.
func WriteResult(w io.Writer, result *engine.Result, format OutputFormat) error {
	switch format {
	case OutputRaw:
		if _, err := w.Write(result.Body.Bytes()); err != nil {
			return fmt.Errorf("failed to write body: %w", err)
		}

		return nil
	case OutputYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)

		if err := encoder.Encode(newResultView(result)); err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}

		return encoder.Close()
	case OutputJSON, "":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		encoder.SetEscapeHTML(false)

		if err := encoder.Encode(newResultView(result)); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}

		return nil
	default:
		return fmt.Errorf("%w: '%s'", ErrUnknownOutputFormat, format)
	}
}
