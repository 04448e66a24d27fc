package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripHTML(t *testing.T) {
	t.Run("plain text passes through", func(t *testing.T) {
		assert.Equal(t, "just text", StripHTML("just text"))
	})

	t.Run("tags are removed", func(t *testing.T) {
		assert.Equal(t, "bold and italic", StripHTML("<p><b>bold</b> and <i>italic</i></p>"))
	})

	t.Run("nested markup", func(t *testing.T) {
		got := StripHTML(`<div class="x"><span>a</span><ul><li>b</li></ul></div>`)
		assert.Equal(t, "ab", got)
	})

	t.Run("empty string", func(t *testing.T) {
		assert.Equal(t, "", StripHTML(""))
	})
}
