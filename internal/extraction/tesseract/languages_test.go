package tesseract

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLanguagesMapsPaddleCodes(t *testing.T) {
	require.Equal(t, []string{"eng", "deu", "chi_sim"}, Languages([]string{"en", " DE ", "ch", "eng", ""}))
	require.Equal(t, []string{"osd"}, Languages([]string{"osd"}))
	require.Empty(t, Languages(nil))
}
