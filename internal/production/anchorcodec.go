package production

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/comalice/anchorflow/spatial"
)

// FormatVersion is the version written in the header of canonical files.
const FormatVersion = "v1"

const headerPrefix = "# anchorflow objects "

// FormatHeader is the first line of a canonical anchor objects file.
const FormatHeader = headerPrefix + FormatVersion

// EncodePositions writes the canonical form: the header, then one "x,y,z"
// line per position using the shortest decimal that round-trips exactly.
func EncodePositions(w io.Writer, positions []spatial.Vec3) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(FormatHeader + "\n"); err != nil {
		return err
	}
	for i, p := range positions {
		if !p.IsFinite() {
			return fmt.Errorf("position %d %v is not finite", i, p)
		}
		if _, err := bw.WriteString(FormatPosition(p) + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// FormatPosition renders one canonical record line.
func FormatPosition(p spatial.Vec3) string {
	return strconv.FormatFloat(p.X, 'g', -1, 64) + "," +
		strconv.FormatFloat(p.Y, 'g', -1, 64) + "," +
		strconv.FormatFloat(p.Z, 'g', -1, 64)
}

// DecodePositions reads canonical or legacy content. Blank lines and
// comments are skipped; a header naming another version is rejected.
func DecodePositions(r io.Reader) ([]spatial.Vec3, error) {
	out := []spatial.Vec3{}
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		if strings.HasPrefix(text, "#") {
			if version, ok := strings.CutPrefix(text, headerPrefix); ok && strings.TrimSpace(version) != FormatVersion {
				return nil, &FormatError{Line: line, Text: text, Err: fmt.Errorf("unsupported version %q", version)}
			}
			continue
		}
		p, err := ParsePosition(text)
		if err != nil {
			var fe *FormatError
			if errors.As(err, &fe) {
				fe.Line = line
				return nil, fe
			}
			return nil, err
		}
		out = append(out, p)
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, &FormatError{Line: line + 1, Text: "line too long", Err: err}
		}
		return nil, fmt.Errorf("%w: %w", ErrStorageRead, err)
	}
	return out, nil
}

// ParsePosition parses one record line. Besides the canonical "x,y,z" it
// accepts the parenthesised vector form "(x, y, z)", including files written
// under a comma-decimal locale ("(1,5, 2,0, 3,0)") or with ';' separators.
func ParsePosition(line string) (spatial.Vec3, error) {
	s := strings.TrimSpace(line)
	if strings.HasPrefix(s, "(") {
		end := strings.Index(s, ")")
		if end < 0 {
			return spatial.Vec3{}, &FormatError{Text: line, Err: errors.New("missing closing parenthesis")}
		}
		if rest := strings.TrimSpace(s[end+1:]); rest != "" {
			return spatial.Vec3{}, &FormatError{Text: line, Err: fmt.Errorf("unexpected trailing %q", rest)}
		}
		s = s[1:end]
	}

	parts, err := splitComponents(s)
	if err != nil {
		return spatial.Vec3{}, &FormatError{Text: line, Err: err}
	}

	var c [3]float64
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return spatial.Vec3{}, &FormatError{Text: line, Err: fmt.Errorf("component %d: %w", i, err)}
		}
		c[i] = f
	}
	v := spatial.Vec3{X: c[0], Y: c[1], Z: c[2]}
	if !v.IsFinite() {
		return spatial.Vec3{}, &FormatError{Text: line, Err: errors.New("non-finite component")}
	}
	return v, nil
}

func splitComponents(s string) ([]string, error) {
	if strings.Contains(s, ";") {
		parts := strings.Split(s, ";")
		if len(parts) != 3 {
			return nil, fmt.Errorf("want 3 components, got %d", len(parts))
		}
		for i := range parts {
			parts[i] = strings.ReplaceAll(strings.TrimSpace(parts[i]), ",", ".")
		}
		return parts, nil
	}

	parts := strings.Split(s, ",")
	if len(parts) == 3 {
		return parts, nil
	}

	// Comma decimal separator with ", " between components.
	parts = strings.Split(s, ", ")
	if len(parts) == 3 {
		for i := range parts {
			parts[i] = strings.ReplaceAll(strings.TrimSpace(parts[i]), ",", ".")
		}
		return parts, nil
	}
	return nil, fmt.Errorf("want 3 components, got %d", len(strings.Split(s, ",")))
}
