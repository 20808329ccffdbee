package lexer

// SanitizeKey applies the same rules to key that Run applies to the key of a line.
func SanitizeKey(key string) string {
	out := make([]byte, 0, len(key))
	inSpace := false
	for i := 0; i < len(key); i++ {
		b := key[i]
		switch {
		case isSpace(b):
			if !inSpace {
				out = append(out, '_')
				inSpace = true
			}
			continue
		case b == '/':
			out = append(out, '-')
		case isKeyChar(b):
			out = append(out, b)
		}
		inSpace = false
	}
	return string(out)
}
