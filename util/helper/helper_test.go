package helper_util

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext(target string) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", target, nil)
	return c
}

func TestGetPageSize(t *testing.T) {
	size, err := GetPageSize(testContext("/x"), 50, 100)
	require.NoError(t, err)
	assert.Equal(t, 50, size)

	size, err = GetPageSize(testContext("/x?pageSize=20"), 50, 100)
	require.NoError(t, err)
	assert.Equal(t, 20, size)

	_, err = GetPageSize(testContext("/x?pageSize=abc"), 50, 100)
	assert.Error(t, err)
	_, err = GetPageSize(testContext("/x?pageSize=500"), 50, 100)
	assert.Error(t, err)
}

func TestGetListParam(t *testing.T) {
	c := testContext("/x?types=Patient,%20Booking&types=Doctor&types=")
	assert.Equal(t, []string{"Patient", "Booking", "Doctor"}, GetListParam(c, "types"))
	assert.Nil(t, GetListParam(testContext("/x"), "types"))
}

func TestParseOptionalTime(t *testing.T) {
	ts, err := ParseOptionalTime("")
	require.NoError(t, err)
	assert.True(t, ts.IsZero())

	ts, err = ParseOptionalTime("2024-03-01T09:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), ts)

	_, err = ParseOptionalTime("yesterday")
	assert.Error(t, err)
}
