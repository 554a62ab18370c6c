package apperr

import (
	"testing"

	"github.com/cockroachdb/errors"
)

func TestKindOf(t *testing.T) {
	if KindOf(nil) != KindUnknown {
		t.Error("nil error should be KindUnknown")
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Error("plain error should be KindUnknown")
	}
	if KindOf(Validation("bad input")) != KindValidation {
		t.Error("Validation kind lost")
	}
	// The kind survives wrapping.
	wrapped := errors.Wrap(NotFound("no such row"), "loading thing")
	if KindOf(wrapped) != KindNotFound {
		t.Error("kind lost through wrap")
	}
}

func TestWithKindNil(t *testing.T) {
	if WithKind(nil, KindConflict) != nil {
		t.Error("WithKind(nil) should be nil")
	}
}

func TestInnermostKindWins(t *testing.T) {
	// errors.As finds the outermost marker; rewrapping reclassifies.
	err := WithKind(Transient(errors.New("timeout")), KindUnrecoverableDownload)
	if !IsUnrecoverable(err) {
		t.Error("outer kind should win after reclassification")
	}
}

func TestDownloadKinds(t *testing.T) {
	if !IsUnrecoverable(Unrecoverable(errors.New("404"))) {
		t.Error("Unrecoverable not detected")
	}
	if IsUnrecoverable(Transient(errors.New("503"))) {
		t.Error("Transient misdetected as unrecoverable")
	}
	if KindOf(WROLDenied("dump")) != KindWROLModeDenied {
		t.Error("WROLDenied kind wrong")
	}
	if KindOf(VersionMismatch("stale")) != KindVersionMismatch {
		t.Error("VersionMismatch kind wrong")
	}
}
