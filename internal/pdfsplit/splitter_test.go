package pdfsplit

import (
	"testing"

	"github.com/dgallion1/taxgest/internal/pdfsplit/pdftest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func markers(t *testing.T, data []byte) []string {
	t.Helper()
	texts, err := PageTexts(data)
	require.NoError(t, err)
	out := make([]string, 0, len(texts))
	for _, pt := range texts {
		out = append(out, pt.Text)
	}
	return out
}

func TestPageCount(t *testing.T) {
	s := New(nil)
	for _, n := range []int{1, 5, 21, 90} {
		got, err := s.PageCount(pdftest.New(n))
		require.NoError(t, err)
		assert.Equal(t, n, got)
	}
}

func TestPageCount_Malformed(t *testing.T) {
	s := New(nil)
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"not a pdf", []byte("hello, this is a text file")},
		{"truncated", pdftest.New(3)[:40]},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.PageCount(tc.data)
			require.ErrorIs(t, err, ErrMalformedDocument)
		})
	}
}

func TestExtractPages_RequestedOrder(t *testing.T) {
	s := New(nil)
	src := pdftest.New(6)

	out, err := s.ExtractPages(src, []int{5, 2, 6})
	require.NoError(t, err)

	n, err := s.PageCount(out)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got := markers(t, out)
	require.Len(t, got, 3)
	assert.Contains(t, got[0], pdftest.Marker(5, 6))
	assert.Contains(t, got[1], pdftest.Marker(2, 6))
	assert.Contains(t, got[2], pdftest.Marker(6, 6))
}

func TestExtractPages_OutOfRange(t *testing.T) {
	s := New(nil)
	src := pdftest.New(4)

	for _, pages := range [][]int{{0}, {1, 5}, {-1}, {}} {
		_, err := s.ExtractPages(src, pages)
		require.ErrorIs(t, err, ErrPageIndexOutOfRange, "pages %v", pages)
	}
}

func TestExtractPages_MalformedSource(t *testing.T) {
	s := New(nil)
	_, err := s.ExtractPages([]byte("garbage"), []int{1})
	require.ErrorIs(t, err, ErrMalformedDocument)
}

func TestSplitIntoChunks_FitsReturnsOriginal(t *testing.T) {
	s := New(nil)
	src := pdftest.New(5)

	chunks, err := s.SplitIntoChunks(src, 40)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, src, chunks[0])

	chunks, err = s.SplitIntoChunks(src, 5)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, src, chunks[0])
}

func TestSplitIntoChunks_Partitions(t *testing.T) {
	s := New(nil)
	const n, k = 11, 4
	src := pdftest.New(n)

	chunks, err := s.SplitIntoChunks(src, k)
	require.NoError(t, err)
	require.Len(t, chunks, (n+k-1)/k)

	sum := 0
	var order []string
	for _, c := range chunks {
		count, err := s.PageCount(c)
		require.NoError(t, err)
		assert.LessOrEqual(t, count, k)
		sum += count
		order = append(order, markers(t, c)...)
	}
	assert.Equal(t, n, sum)

	require.Len(t, order, n)
	for i, text := range order {
		assert.Contains(t, text, pdftest.Marker(i+1, n))
	}
}

func TestSplitIntoChunks_InvalidSize(t *testing.T) {
	s := New(nil)
	_, err := s.SplitIntoChunks(pdftest.New(2), 0)
	require.Error(t, err)
}

func TestPageTexts(t *testing.T) {
	texts, err := PageTexts(pdftest.WithTexts("Form 1040 U.S. Individual Income Tax Return 2023", "Schedule A"))
	require.NoError(t, err)
	require.Len(t, texts, 2)
	assert.Equal(t, 1, texts[0].Page)
	assert.Contains(t, texts[0].Text, "Form 1040")
	assert.Contains(t, texts[1].Text, "Schedule A")
}

func TestPageTexts_Malformed(t *testing.T) {
	_, err := PageTexts([]byte("not a pdf"))
	require.ErrorIs(t, err, ErrMalformedDocument)
}

func TestPageText_Preview(t *testing.T) {
	pt := PageText{Page: 1, Text: "Form 1040 U.S. Individual\nsecond line"}
	assert.Equal(t, "Form 1040 U.S. Individual", pt.Preview(40))
	assert.Equal(t, "Form...", pt.Preview(4))
	assert.Equal(t, "", PageText{}.Preview(10))
}
