package providers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	xhttp "ChainWatch/pkg/http"
)

// classifyHTTPError maps transport and decode errors from the shared HTTP
// client onto the failure taxonomy. Raw network errors pass through for the
// gateway to classify.
func classifyHTTPError(provider string, err error) error {
	var se *xhttp.StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == http.StatusTooManyRequests:
			return &Failure{Kind: KindRateLimited, Provider: provider, Err: err}
		case se.Code >= 500:
			return &Failure{Kind: KindUnavailable, Provider: provider, Transient: true, Err: err}
		default:
			return &Failure{Kind: KindUnavailable, Provider: provider, Err: err}
		}
	}

	// A payload cut off mid-stream decodes to io.ErrUnexpectedEOF rather
	// than a json.SyntaxError; both are parse failures.
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &Failure{Kind: KindParse, Provider: provider, Err: err}
	}

	return err
}
