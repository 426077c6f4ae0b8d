package tokenizer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	clsID = 2
	sepID = 3
)

func loadTestTokenizer(t *testing.T) *Tokenizer {
	t.Helper()
	tk, err := Load("testdata/tokenizer.json")
	require.NoError(t, err)
	return tk
}

func TestEncodeAddsSpecialTokens(t *testing.T) {
	tk := loadTestTokenizer(t)

	enc, err := tk.Encode("the great movie")
	require.NoError(t, err)
	assert.Equal(t, []int64{clsID, 9, 5, 6, sepID}, enc.IDs)
	assert.Equal(t, []int64{1, 1, 1, 1, 1}, enc.AttentionMask)
}

func TestEncodeSubwordsAndUnknown(t *testing.T) {
	tk := loadTestTokenizer(t)

	enc, err := tk.Encode("bad movies!")
	require.NoError(t, err)
	require.Len(t, enc.AttentionMask, len(enc.IDs))
	assert.Equal(t, []int64{clsID, 7, 6, 8, 10, sepID}, enc.IDs)

	enc, err = tk.Encode("zebra")
	require.NoError(t, err)
	assert.Equal(t, []int64{clsID, 1, sepID}, enc.IDs)
	assert.Len(t, enc.AttentionMask, 3)
}

func TestLoadMissingArtifact(t *testing.T) {
	_, err := Load("testdata/missing.json")
	assert.Error(t, err)
}

func TestEncodeConcurrent(t *testing.T) {
	tk := loadTestTokenizer(t)
	want, err := tk.Encode("the great movie")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := tk.Encode("the great movie")
			if assert.NoError(t, err) {
				assert.Equal(t, want, got)
			}
		}()
	}
	wg.Wait()
}

func TestWiden(t *testing.T) {
	assert.Equal(t, []int64{0, 7, -1}, widen([]int{0, 7, -1}))
	assert.Empty(t, widen(nil))
}
