package portal

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsRecoverable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, true},
		{"entity not found", &EntityNotFoundError{Name: "A"}, true},
		{"element not found", &ElementNotFoundError{Selector: "#x"}, true},
		{"timeout", &TimeoutError{Step: "modal", After: time.Second}, true},
		{"wrapped timeout", fmt.Errorf("credit unit 2: %w", &TimeoutError{Step: "save"}), true},
		{"auth", &AuthError{Message: "bad password"}, false},
		{"session", &SessionError{Message: "tab closed"}, false},
		{"canceled", context.Canceled, false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRecoverable(tt.err))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	cause := errors.New("no such node")

	assert.Equal(t, `entity "A" not found`, (&EntityNotFoundError{Name: "A"}).Error())
	assert.Equal(t, `entity "A" is ambiguous: 2 matches`, (&EntityNotFoundError{Name: "A", Matches: 2}).Error())
	assert.Equal(t, "element #x not found: no such node", (&ElementNotFoundError{Selector: "#x", Cause: cause}).Error())
	assert.Equal(t, "timed out after 1s waiting for search results", (&TimeoutError{Step: "search results", After: time.Second}).Error())
	assert.Equal(t, "authentication failed: url unchanged", (&AuthError{Message: "url unchanged"}).Error())

	assert.ErrorIs(t, &ElementNotFoundError{Selector: "#x", Cause: cause}, cause)
}
