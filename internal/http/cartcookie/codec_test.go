package cartcookie

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	c := New([]byte("secret"), "cart", false, 0)

	id, err := c.Decode(c.Encode("abc"))
	require.NoError(t, err)
	assert.Equal(t, "abc", id)

	other := New([]byte("other"), "cart", false, 0)
	_, err = other.Decode(c.Encode("abc"))
	assert.ErrorIs(t, err, ErrInvalid)

	for _, v := range []string{"", "abc", ".sig", "a.b.c"} {
		_, err := c.Decode(v)
		assert.ErrorIs(t, err, ErrInvalid, v)
	}
}

func TestEnsureCartID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c := New([]byte("secret"), "cart", true, 0)

	w := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(w)
	ctx.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	id := c.EnsureCartID(ctx)
	require.NotEmpty(t, id)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)

	w2 := httptest.NewRecorder()
	ctx2, _ := gin.CreateTestContext(w2)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	ctx2.Request = req

	assert.Equal(t, id, c.EnsureCartID(ctx2))
	assert.Empty(t, w2.Result().Cookies())
}
