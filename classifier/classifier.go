// Package classifier derives the request fields used by the rule engine from
// a bare URL.
//
// The resource type is guessed from the URL suffix because classification
// happens before any network round trip, so no Content-Type is available.
// The source URL is a fixed default until page context is propagated from the
// rendering surface; both are known approximations.
package classifier

import (
	"fmt"
	"strings"

	"github.com/AdguardTeam/golibs/errors"

	"zillafilter/adblock"
)

// ErrMalformedURL is wrapped by ClassificationError.
const ErrMalformedURL errors.Error = "malformed url"

// ClassificationError reports a URL that cannot be classified.
type ClassificationError struct {
	URL string
	Err error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classify %q: %v", e.URL, e.Err)
}

func (e *ClassificationError) Unwrap() error {
	return e.Err
}

// suffixRule maps a URL suffix to a resource type.
type suffixRule struct {
	suffix string
	typ    adblock.ResourceType
}

// suffixTable is checked in order against the raw URL string. The check is
// case-sensitive and includes any query string.
var suffixTable = []suffixRule{
	{suffix: ".css", typ: adblock.ResourceStyle},
	{suffix: ".js", typ: adblock.ResourceScript},
}

// fallbackType applies when no suffix matches.
const fallbackType = adblock.ResourceImage

// ResourceTypeFor returns the resource type for rawURL. It is total.
func ResourceTypeFor(rawURL string) adblock.ResourceType {
	for _, r := range suffixTable {
		if strings.HasSuffix(rawURL, r.suffix) {
			return r.typ
		}
	}
	return fallbackType
}

// Classify builds the ClassifiedRequest for rawURL, using defaultSourceURL as
// the originating page.
func Classify(rawURL, defaultSourceURL string) (*adblock.ClassifiedRequest, error) {
	if _, ok := adblock.ParseTarget(rawURL); !ok {
		return nil, &ClassificationError{URL: rawURL, Err: ErrMalformedURL}
	}
	return &adblock.ClassifiedRequest{
		TargetURL:    rawURL,
		SourceURL:    defaultSourceURL,
		ResourceType: ResourceTypeFor(rawURL),
	}, nil
}
