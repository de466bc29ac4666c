package backends

import (
	"net/http"
	"testing"

	"github.com/go-go-golems/synthgen/pkg/turns"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		status int
		kind   Kind
	}{
		{http.StatusTooManyRequests, KindRateLimited},
		{http.StatusInternalServerError, KindServerFault},
		{http.StatusServiceUnavailable, KindServerFault},
		{529, KindServerFault},
		{http.StatusRequestTimeout, KindServerFault},
		{0, KindServerFault},
		{http.StatusBadRequest, KindClientFault},
		{http.StatusUnauthorized, KindClientFault},
		{http.StatusNotFound, KindClientFault},
		{http.StatusFound, KindMalformedResponse},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.kind, Classify(tt.status), "status %d", tt.status)
	}
}

func TestKindOfSeesThroughWrapping(t *testing.T) {
	err := errors.Wrap(FromStatus(http.StatusTooManyRequests, "{}", nil), "call failed")
	assert.Equal(t, KindRateLimited, KindOf(err))
	assert.True(t, IsRetryable(err))

	assert.Equal(t, KindServerFault, KindOf(errors.New("plain")))
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(NewError(KindClientFault, 400, "", nil)))
	assert.False(t, IsRetryable(NewError(KindMalformedResponse, 200, "", nil)))
}

func TestErrorMessage(t *testing.T) {
	e := FromStatus(http.StatusBadGateway, "", errors.New("upstream"))
	assert.Equal(t, "server-fault (status 502): upstream", e.Error())
}

func TestRequestValidate(t *testing.T) {
	assert.NoError(t, Request{Role: turns.RoleUser, Prompt: "p", MaxTokens: 1}.Validate())
	assert.Equal(t, KindClientFault, KindOf(Request{Role: turns.RoleUser, Prompt: "p"}.Validate()))
	assert.Equal(t, KindClientFault, KindOf(Request{Role: turns.RoleUser, Prompt: " ", MaxTokens: 1}.Validate()))
	assert.Equal(t, KindClientFault, KindOf(Request{Role: "robot", Prompt: "p", MaxTokens: 1}.Validate()))
}
