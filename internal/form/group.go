package form

import (
	"fmt"
	"io"
	"strings"
)

// labelWidth is the width of the label column; unlabelled groups are offset by it.
const labelWidth = 20

// Group binds an optional label to a control. It has no state.
type Group struct {
	For   string
	Label string
}

// Render writes the label and the control lines.
func (g Group) Render(w io.Writer, lines ...string) error {
	if len(lines) == 0 {
		lines = []string{""}
	}
	indent := strings.Repeat(" ", labelWidth+1)
	for i, line := range lines {
		prefix := indent
		if i == 0 && g.Label != "" {
			prefix = fmt.Sprintf("%-*s ", labelWidth, g.Label)
		}
		if _, err := io.WriteString(w, strings.TrimRight(prefix+line, " ")+"\n"); err != nil {
			return err
		}
	}
	return nil
}
