package prompt

import (
	"regexp"
	"strings"
)

// placeholder 는 $$, $name, ${name}, 그리고 짝이 맞지 않는 $ 를 찾는다.
// 이름 규칙은 [_a-zA-Z][_a-zA-Z0-9]*.
var placeholder = regexp.MustCompile(`\$(?:(\$)|([_a-zA-Z][_a-zA-Z0-9]*)|\{([_a-zA-Z][_a-zA-Z0-9]*)\}|())`)

// SafeSubstitute 는 text 안의 placeholder 를 vars 로 치환한다.
//
//   - $$              → $
//   - $name, ${name}  → vars[name] (vars 에 없으면 원문 그대로)
//   - 그 외의 $       → 그대로
//
// 치환은 한 번만 스캔하므로 치환된 값 안의 "${...}" 는 다시 해석되지 않는다.
// 어떤 입력에도 에러를 내지 않는다.
func SafeSubstitute(text string, vars map[string]string) string {
	idx := placeholder.FindAllStringSubmatchIndex(text, -1)
	if len(idx) == 0 {
		return text
	}

	var sb strings.Builder
	sb.Grow(len(text))

	last := 0
	for _, m := range idx {
		sb.WriteString(text[last:m[0]])
		last = m[1]

		switch {
		case m[2] >= 0: // $$
			sb.WriteByte('$')
		case m[4] >= 0: // $name
			name := text[m[4]:m[5]]
			if v, ok := vars[name]; ok {
				sb.WriteString(v)
			} else {
				sb.WriteString(text[m[0]:m[1]])
			}
		case m[6] >= 0: // ${name}
			name := text[m[6]:m[7]]
			if v, ok := vars[name]; ok {
				sb.WriteString(v)
			} else {
				sb.WriteString(text[m[0]:m[1]])
			}
		default:
			sb.WriteString(text[m[0]:m[1]])
		}
	}
	sb.WriteString(text[last:])

	return sb.String()
}
