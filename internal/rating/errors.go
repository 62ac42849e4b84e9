package rating

import (
	"errors"
	"fmt"
)

var (
	// ErrRatingFailed wraps every error returned by Rate.
	ErrRatingFailed = errors.New("rating failed")
	// ErrInvalidSession is returned when the session does not end after it starts.
	ErrInvalidSession = errors.New("rating: invalid session")
	// ErrInsufficientMeteringData is returned when fewer than two usable readings
	// exist or readings fall outside the session.
	ErrInsufficientMeteringData = errors.New("rating: insufficient metering data")
	// ErrNoTariffAvailable is returned when neither candidates nor the CDR carry a tariff.
	ErrNoTariffAvailable = errors.New("rating: no tariff available")
	// ErrImputationFailed is returned when a missing boundary value has no anchor.
	ErrImputationFailed = errors.New("rating: imputation failed")
	// ErrInvalidRestriction is returned for malformed restriction values.
	// Restriction boundaries outside the session are clipped, not reported.
	ErrInvalidRestriction = errors.New("rating: invalid restriction")
)

// failed wraps err so that it matches both ErrRatingFailed and its own kind.
func failed(cdrID string, err error) error {
	return fmt.Errorf("%w: cdr %s: %w", ErrRatingFailed, cdrID, err)
}

var kinds = []struct {
	err  error
	name string
}{
	{ErrInvalidSession, "invalid_session"},
	{ErrInsufficientMeteringData, "insufficient_metering_data"},
	{ErrNoTariffAvailable, "no_tariff_available"},
	{ErrImputationFailed, "imputation_failed"},
	{ErrInvalidRestriction, "invalid_restriction"},
}

// Kind returns a short label for the rating error kind err matches, or
// "unknown" when it matches none. A nil err has no kind.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "unknown"
}
