package transport

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategorizeStatus(t *testing.T) {
	cases := []struct {
		status int
		want   Category
	}{
		{http.StatusUnauthorized, CategoryUnauthorized},
		{http.StatusPaymentRequired, CategoryUsageLimit},
		{http.StatusForbidden, CategoryForbidden},
		{http.StatusUpgradeRequired, CategoryUpgradeRequired},
		{http.StatusTooManyRequests, CategoryRateLimit},
		{http.StatusInternalServerError, CategoryUnknown},
		{http.StatusBadRequest, CategoryUnknown},
	}

	for _, tc := range cases {
		se := CategorizeStatus(tc.status)
		require.NotNil(t, se, "status %d", tc.status)
		assert.Equal(t, tc.want, se.Category)
		assert.Equal(t, tc.status, se.Status)
		assert.NotEmpty(t, se.UserMessage())
		assert.Contains(t, se.Error(), se.Message)
	}
}

func TestCategorizeStatusAcceptsSuccess(t *testing.T) {
	assert.Nil(t, CategorizeStatus(http.StatusOK))
	assert.Nil(t, CategorizeStatus(http.StatusNoContent))
	assert.Nil(t, CategorizeStatus(http.StatusPermanentRedirect))
}
