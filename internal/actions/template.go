package actions

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingSlot is returned when a template references a slot other than
// {user1} or {user2}, or has an unterminated brace.
var ErrMissingSlot = errors.New("template slot missing")

// Render substitutes {user1} with actor and {user2} with target.
// "{{" and "}}" produce literal braces. Nothing is rendered on error.
func Render(template, actor, target string) (string, error) {
	slots := map[string]string{"user1": actor, "user2": target}

	var b strings.Builder
	b.Grow(len(template) + len(actor) + len(target))

	for i := 0; i < len(template); i++ {
		ch := template[i]
		switch {
		case ch == '{' && i+1 < len(template) && template[i+1] == '{':
			b.WriteByte('{')
			i++
		case ch == '}' && i+1 < len(template) && template[i+1] == '}':
			b.WriteByte('}')
			i++
		case ch == '{':
			end := strings.IndexByte(template[i+1:], '}')
			if end < 0 {
				return "", fmt.Errorf("%w: unterminated brace at %d", ErrMissingSlot, i)
			}
			name := template[i+1 : i+1+end]
			val, ok := slots[name]
			if !ok {
				return "", fmt.Errorf("%w: {%s}", ErrMissingSlot, name)
			}
			b.WriteString(val)
			i += end + 1
		default:
			b.WriteByte(ch)
		}
	}
	return b.String(), nil
}
