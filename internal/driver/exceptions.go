package driver

import (
	"encoding/json"
	"os"

	gateerrors "reach/gate/internal/errors"
	"reach/gate/internal/exception"
)

// loadExceptions reads the optional exceptions file (see Options.ExceptionsPath).
// An absent path is not an error — it simply means no suppressions apply.
func loadExceptions(path string) ([]exception.Record, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, gateerrors.Wrap(err, gateerrors.CodeArgInvalid, "read exceptions file").WithContext("path", path)
	}
	var records []exception.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, gateerrors.Wrap(err, gateerrors.CodeArgInvalid, "parse exceptions file").WithContext("path", path)
	}
	return records, nil
}
