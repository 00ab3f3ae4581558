package api

const (
	// Generic request/server errors
	CodeInvalidRequest = "E_INVALID_REQUEST" // bad or invalid request
	CodeRateLimited    = "E_RATE_LIMITED"    // rate limit exceeded
	CodeInternalError  = "E_INTERNAL_ERROR"  // internal server error
	CodeNotFound       = "E_NOT_FOUND"       // no such route

	// Auth errors
	CodeAuthInvalidCredentials = "E_AUTH_INVALID_CREDENTIALS" // authentication credentials (e.g., token) are invalid, expired, or malformed.

	// Repository errors
	CodeNodeNotFound   = "E_NODE_NOT_FOUND"   // the path does not exist in the requested revision.
	CodeNoSuchRevision = "E_NO_SUCH_REVISION" // the revision is younger than the youngest revision.
	CodePathExists     = "E_PATH_EXISTS"      // a commit tried to create a path that already exists.
	CodeNotDirectory   = "E_NOT_DIRECTORY"    // a commit tried to create a path below a file.
	CodeCommitFailed   = "E_COMMIT_FAILED"    // the commit could not be applied.
)
