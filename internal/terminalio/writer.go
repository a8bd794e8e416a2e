// Package terminalio encodes control-channel text for the remote terminal.
// Transfer payloads never pass through here.
package terminalio

import (
	"io"
	"unicode"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Writer encodes UTF-8 text before handing it to the underlying writer.
type Writer struct {
	w io.Writer
	t transform.Transformer
}

// NewWriter wraps w for the named encoding ("utf8", "cp437" or "ascii").
// UTF-8 and unknown names return w unchanged.
func NewWriter(w io.Writer, encoding string) io.Writer {
	switch encoding {
	case "cp437":
		return &Writer{w: w, t: cp437Transformer()}
	case "ascii":
		return &Writer{w: w, t: asciiTransformer()}
	default:
		return w
	}
}

// cp437Transformer maps runes with no CP437 glyph to '?' before encoding.
func cp437Transformer() transform.Transformer {
	unsupported := runes.Map(func(r rune) rune {
		if _, ok := charmap.CodePage437.EncodeRune(r); ok {
			return r
		}
		return '?'
	})
	return transform.Chain(unsupported, charmap.CodePage437.NewEncoder())
}

// asciiTransformer strips accents ("café" -> "cafe") and replaces anything
// still outside 7-bit ASCII with '?'.
func asciiTransformer() transform.Transformer {
	return transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Map(func(r rune) rune {
			if r > unicode.MaxASCII {
				return '?'
			}
			return r
		}),
	)
}

// Write encodes p in one pass. Each call is expected to carry whole runes,
// which holds for the session's string writes.
func (tw *Writer) Write(p []byte) (int, error) {
	out, _, err := transform.Bytes(tw.t, p)
	if err != nil {
		return 0, err
	}
	if _, err := tw.w.Write(out); err != nil {
		return 0, err
	}
	return len(p), nil
}
