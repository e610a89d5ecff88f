// Package audio merges synthesized speech clips and knows which upload
// formats the recognition providers accept.
package audio

import "fmt"

// Concat joins encoded clips byte-for-byte in order. The clips must share a
// container and encoding that tolerates naive concatenation (constant-bitrate
// MP3 frames); no re-encoding or header rewriting is done.
//
// An empty list or an empty clip is a programming error: callers only merge
// after every turn has synthesized successfully.
func Concat(clips [][]byte) []byte {
	if len(clips) == 0 {
		panic("audio: Concat called with no clips")
	}
	total := 0
	for i, c := range clips {
		if len(c) == 0 {
			panic(fmt.Sprintf("audio: Concat clip %d is empty", i))
		}
		total += len(c)
	}
	out := make([]byte, 0, total)
	for _, c := range clips {
		out = append(out, c...)
	}
	return out
}
