package rdb

import (
	"errors"
	"fmt"
)

var errLZF = errors.New("lzf: corrupt input")

// maxLZFRatio bounds the expansion: the longest back reference is 3 input
// bytes producing 264 output bytes
const maxLZFRatio = 88

// lzfDecompress expands an LZF block into exactly outLen bytes.
//
// Each control byte either starts a literal run (ctrl < 32, ctrl+1 bytes
// follow) or a back reference whose length lives in the top three bits,
// extended by one more byte when they are all set.
func lzfDecompress(in []byte, outLen int) ([]byte, error) {
	if outLen > len(in)*maxLZFRatio {
		return nil, fmt.Errorf("%w: %d input bytes cannot expand to %d", errLZF, len(in), outLen)
	}
	out := make([]byte, 0, outLen)

	for ip := 0; ip < len(in); {
		ctrl := int(in[ip])
		ip++

		if ctrl < 32 {
			run := ctrl + 1
			if ip+run > len(in) {
				return nil, fmt.Errorf("%w: literal run past end of input", errLZF)
			}
			if len(out)+run > outLen {
				return nil, fmt.Errorf("%w: output larger than %d bytes", errLZF, outLen)
			}
			out = append(out, in[ip:ip+run]...)
			ip += run
			continue
		}

		length := ctrl >> 5
		if length == 7 {
			if ip >= len(in) {
				return nil, fmt.Errorf("%w: missing extended length", errLZF)
			}
			length += int(in[ip])
			ip++
		}
		length += 2

		if ip >= len(in) {
			return nil, fmt.Errorf("%w: missing back reference offset", errLZF)
		}
		ref := len(out) - ((ctrl&0x1f)<<8 + int(in[ip])) - 1
		ip++

		if ref < 0 {
			return nil, fmt.Errorf("%w: back reference before start of output", errLZF)
		}
		if len(out)+length > outLen {
			return nil, fmt.Errorf("%w: output larger than %d bytes", errLZF, outLen)
		}
		// byte by byte: the reference may overlap the bytes being produced
		for i := 0; i < length; i++ {
			out = append(out, out[ref+i])
		}
	}

	if len(out) != outLen {
		return nil, fmt.Errorf("%w: expanded to %d bytes, want %d", errLZF, len(out), outLen)
	}
	return out, nil
}
