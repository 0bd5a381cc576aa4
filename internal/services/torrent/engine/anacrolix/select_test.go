package anacrolix

import "testing"

func TestPickPlaybackFile(t *testing.T) {
	cases := []struct {
		name  string
		files []fileCandidate
		want  int
	}{
		{
			name: "largest video wins",
			files: []fileCandidate{
				{path: "sample/sample.mp4", length: 50 << 20},
				{path: "movie/movie.mkv", length: 700 << 20},
				{path: "movie/subs.srt", length: 100 << 10},
			},
			want: 1,
		},
		{
			name: "video preferred over larger non-video",
			files: []fileCandidate{
				{path: "extras/data.iso", length: 4 << 30},
				{path: "movie.mp4", length: 700 << 20},
			},
			want: 1,
		},
		{
			name: "fallback to largest overall",
			files: []fileCandidate{
				{path: "album/track01.flac", length: 40 << 20},
				{path: "album/track02.flac", length: 55 << 20},
			},
			want: 1,
		},
		{
			name:  "single file",
			files: []fileCandidate{{path: "movie.avi", length: 1 << 30}},
			want:  0,
		},
		{
			name:  "empty",
			files: nil,
			want:  -1,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := pickPlaybackFile(tc.files); got != tc.want {
				t.Fatalf("pickPlaybackFile = %d, want %d", got, tc.want)
			}
		})
	}
}
