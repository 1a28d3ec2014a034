package asr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssembleMergesContinuations(t *testing.T) {
	cases := []struct {
		name     string
		segments []string
		want     string
	}{
		{
			name:     "empty input",
			segments: nil,
			want:     "",
		},
		{
			name:     "single segment",
			segments: []string{"外观正常 打18分"},
			want:     "外观正常 打18分",
		},
		{
			name:     "later segment extends earlier",
			segments: []string{"smell", "smell is excellent"},
			want:     "smell is excellent",
		},
		{
			name:     "earlier segment already contains later",
			segments: []string{"weight score 19", "weight"},
			want:     "weight score 19",
		},
		{
			name:     "duplicate segments collapse",
			segments: []string{"包装完好", "包装完好"},
			want:     "包装完好",
		},
		{
			name:     "distinct segments join with spaces",
			segments: []string{"外观正常", "打18分"},
			want:     "外观正常 打18分",
		},
		{
			name:     "whitespace normalized per segment",
			segments: []string{"  smell \t ok ", "", "   "},
			want:     "smell ok",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Assemble(tc.segments))
		})
	}
}

func TestEncodeWAVHeaderFields(t *testing.T) {
	pcm := make([]byte, 640)
	out := EncodeWAV(pcm, SampleRate, 1)
	require.Len(t, out, 44+len(pcm))
	require.Equal(t, "fmt ", string(out[12:16]))
	require.Equal(t, "data", string(out[36:40]))
	// byte rate = 16000 * 1 * 2
	require.Equal(t, byte(0x00), out[28])
	require.Equal(t, byte(0x7d), out[29])
}
