package mqcore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrors_Prefix(t *testing.T) {
	errors := []error{
		ErrNilClient,
		ErrNilMessage,
		ErrNilHandler,
		ErrClosed,
		ErrBadHeader,
	}

	for _, err := range errors {
		assert.True(t, strings.HasPrefix(err.Error(), "mq:"),
			"error %q should have 'mq:' prefix", err.Error())
	}
}
