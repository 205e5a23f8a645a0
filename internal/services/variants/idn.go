package variants

import "golang.org/x/net/idna"

// ASCII converts a candidate to the form used on the wire: punycode for
// internationalised labels, unchanged for plain ASCII names. Display-only
// lookalikes (for example those containing '@') return an error.
func ASCII(candidate string) (string, error) {
	return idna.Lookup.ToASCII(candidate)
}
