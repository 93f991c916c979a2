package site

import (
	"fmt"
	"os"
	"strings"
)

// ExportEnvironment generates a bash script that recreates the driver's
// current environment on a worker. Exported bash functions are re-exported;
// everything else becomes a quoted export statement.
func ExportEnvironment() string {
	var b strings.Builder
	for _, kv := range os.Environ() {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || key == "DISPLAY" {
			continue
		}
		if strings.HasPrefix(val, "() {") {
			// "Two parentheses, a single space, and a brace" is exactly the
			// criterion bash uses to recognise an exported function. Bash
			// stores these as BASH_FUNC_<name>%% (older versions used
			// BASH_FUNC_<name>()).
			name := key
			name = strings.TrimPrefix(name, "BASH_FUNC_")
			name = strings.TrimSuffix(name, "%%")
			name = strings.TrimSuffix(name, "()")
			fmt.Fprintf(&b, "%s %s\nexport -f %s\n", name, val, name)
			continue
		}
		fmt.Fprintf(&b, "export %s='%s'\n", key, strings.ReplaceAll(val, "'", `'"'"'`))
	}
	return b.String()
}
