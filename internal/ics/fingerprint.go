package ics

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Properties that servers rewrite on every store and that must not count as
// content changes when comparing events.
var volatileProps = map[string]bool{
	"DTSTAMP":       true,
	"SEQUENCE":      true,
	"LAST-MODIFIED": true,
	"CREATED":       true,
}

// Fingerprint returns a stable hash of the event's content, ignoring
// volatile bookkeeping properties. Two events with equal fingerprints need
// no update during reconciliation.
func (e *Event) Fingerprint() string {
	comp := e.Component()

	var lines []string
	for name, props := range comp.Props {
		if volatileProps[name] {
			continue
		}
		for _, prop := range props {
			var params []string
			for pname, values := range prop.Params {
				params = append(params, fmt.Sprintf("%s=%s", pname, strings.Join(values, ",")))
			}
			sort.Strings(params)
			line := name
			if len(params) > 0 {
				line += ";" + strings.Join(params, ";")
			}
			lines = append(lines, line+":"+prop.Value)
		}
	}
	sort.Strings(lines)

	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}
