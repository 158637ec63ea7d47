// Package dbresult defines the uniform envelope every Database Service
// operation returns (spec C5): success flag, HTTP-style status code,
// optional error message, and an operation-specific payload.
package dbresult

import crosscloudkiterrors "github.com/bkio/crosscloudkit/pkg/errors"

// ReturnBehavior controls whether a write operation echoes back item state
// and which version of it (spec §4.3's ReturnOldValues/ReturnNewValues
// option on Put/Update/Delete). Increment, AddToArray and RemoveFromArray
// take no ReturnBehavior: Increment returns the new numeric value, and
// AddToArray/RemoveFromArray always return the item as it is after the
// write.
type ReturnBehavior int

const (
	DoNotReturnValues ReturnBehavior = iota
	ReturnOldValues
	ReturnNewValues
)

// Result is the envelope returned by every Database Service operation.
// Data holds the operation-specific payload (an Item map, a bool, an
// int64 or float64, a list of Items, a database.Page, ...) and is nil when the
// operation has no payload to report.
type Result struct {
	Success      bool
	StatusCode   int
	ErrorMessage string
	Data         any
}

// Ok builds a successful Result carrying data (may be nil for operations
// like Delete/DropTable that report nothing beyond success).
func Ok(statusCode int, data any) Result {
	return Result{Success: true, StatusCode: statusCode, Data: data}
}

// Fail builds a failed Result from err, deriving the status code from the
// error's taxonomy (pkg/errors.StatusCode); use FailWithCode to set the
// status code explicitly.
func Fail(err error) Result {
	return Result{
		Success:      false,
		StatusCode:   crosscloudkiterrors.StatusCode(err),
		ErrorMessage: err.Error(),
	}
}

// FailWithCode builds a failed Result with an explicit status code,
// overriding whatever pkg/errors.StatusCode would have derived.
func FailWithCode(statusCode int, err error) Result {
	return Result{Success: false, StatusCode: statusCode, ErrorMessage: err.Error()}
}

// Item returns Data as a decoded Item map, or (nil, false) if Data is not
// an Item-shaped payload.
func (r Result) Item() (map[string]any, bool) {
	item, ok := r.Data.(map[string]any)
	return item, ok
}

// Items returns Data as a list of decoded Item maps, or (nil, false)
// otherwise.
func (r Result) Items() ([]map[string]any, bool) {
	items, ok := r.Data.([]map[string]any)
	return items, ok
}

// Bool returns Data as a bool, or (false, false) otherwise.
func (r Result) Bool() (bool, bool) {
	b, ok := r.Data.(bool)
	return b, ok
}

// Int64 returns Data as an int64, or (0, false) otherwise.
func (r Result) Int64() (int64, bool) {
	n, ok := r.Data.(int64)
	return n, ok
}
