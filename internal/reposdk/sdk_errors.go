package reposdk

import (
	"errors"
	"fmt"

	"github.com/imroc/req/v3"
)

var (
	ErrNoServerURL      = errors.New("sdk: server url missing")
	ErrInvalidServerURL = errors.New("sdk: invalid server url")
)

const (
	CodeInvalidRequest         = "E_INVALID_REQUEST"
	CodeRateLimited            = "E_RATE_LIMITED"
	CodeInternalError          = "E_INTERNAL_ERROR"
	CodeNotFound               = "E_NOT_FOUND"
	CodeAuthInvalidCredentials = "E_AUTH_INVALID_CREDENTIALS"
	CodeNodeNotFound           = "E_NODE_NOT_FOUND"
	CodeNoSuchRevision         = "E_NO_SUCH_REVISION"
	CodePathExists             = "E_PATH_EXISTS"
	CodeNotDirectory           = "E_NOT_DIRECTORY"
	CodeUnknownError           = "E_UNKNOWN_ERR"
)

// APIError is the error body returned by the repository api
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
	Status  int    `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: %s - %s", e.Code, e.Message)
}

// IsCode reports whether err carries an APIError with the given code
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

func IsNotFound(err error) bool {
	return IsCode(err, CodeNodeNotFound)
}

func IsAuthError(err error) bool {
	return IsCode(err, CodeAuthInvalidCredentials)
}

// handleAPIError turns transport failures and api error bodies into errors
func handleAPIError(resp *req.Response, requestErr error, operation string) error {
	if requestErr != nil {
		return fmt.Errorf("http request error: %s: %w", operation, requestErr)
	}

	if resp.IsErrorState() {
		if err, ok := resp.ErrorResult().(*APIError); ok && err.Code != "" {
			err.Status = resp.StatusCode
			return fmt.Errorf("%s: %w", operation, err)
		}
		return fmt.Errorf("%s: %w", operation, &APIError{
			Code:    CodeUnknownError,
			Message: resp.Status,
			Status:  resp.StatusCode,
		})
	}

	return nil
}
