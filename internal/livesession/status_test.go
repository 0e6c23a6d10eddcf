package livesession

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lk2023060901/danmu-live-session/pkg/util/merr"
)

func TestStatus(t *testing.T) {
	for _, st := range []Status{StatusReady, StatusOpened, StatusBreaked, StatusClosed} {
		parsed, err := ParseStatus(st.String())
		assert.NoError(t, err)
		assert.Equal(t, st, parsed)
	}
	parsed, err := ParseStatus(" opened ")
	assert.NoError(t, err)
	assert.Equal(t, StatusOpened, parsed)

	_, err = ParseStatus("paused")
	assert.ErrorIs(t, err, merr.ErrParameterInvalid)
	assert.Equal(t, "UNKNOWN", Status(42).String())

	assert.True(t, StatusBreaked.Live())
	assert.False(t, StatusClosed.Live())
}
