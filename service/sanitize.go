package service

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// chatPolicy strips all markup from chat fields before they are stored
// or relayed. Safe for concurrent use.
var chatPolicy = bluemonday.StrictPolicy()

func sanitize(s string) string {
	return strings.TrimSpace(chatPolicy.Sanitize(s))
}
