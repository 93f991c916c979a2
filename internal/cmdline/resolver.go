// Package cmdline resolves symbolic placeholders in planner-supplied command
// lines into concrete, shell-ready strings.
//
// Three placeholder forms are recognised:
//
//	{field}       job-local variable, resolved once from job metadata
//	<ENV:NAME>    environment variable, rewritten to ${NAME} and left for
//	              the shell to resolve at execution time
//	<FILE:NAME>   named file, resolved against the job's file-path table
//	              at submission time
//
// File paths may themselves embed further <ENV:...> or <FILE:...> tokens, so
// ENV/FILE substitution iterates to a fixed point.
package cmdline

import (
	"fmt"
	"regexp"
)

// fieldRegex captures an optional leading dollar sign so that ${NAME} shell
// references, including the ones the ENV pass itself emits, are never
// mistaken for {field} placeholders. Resolution stays idempotent.
var (
	fieldRegex = regexp.MustCompile(`(\$?)\{([A-Za-z_][A-Za-z0-9_]*)\}`)
	envRegex   = regexp.MustCompile(`<ENV:([^<>\s]+)>`)
	fileRegex  = regexp.MustCompile(`<FILE:([^<>\s]+)>`)
)

// maxPasses bounds the fixed-point loop. A configuration whose file paths
// form a placeholder cycle would otherwise never terminate.
const maxPasses = 64

// Resolve replaces every placeholder in command. Job-local {field} values are
// substituted in a single pass from values; <ENV:NAME> and <FILE:NAME> tokens
// are then substituted repeatedly until a pass changes nothing.
//
// An unknown {field} or <FILE:NAME> key is an error: a command line must
// never be handed to the execution engine with unresolved symbols.
func Resolve(command string, values map[string]string, files map[string]string) (string, error) {
	var err error

	command = fieldRegex.ReplaceAllStringFunc(command, func(match string) string {
		sub := fieldRegex.FindStringSubmatch(match)
		if sub[1] == "$" {
			// ${NAME} is deferred shell text, not a job variable.
			return match
		}
		v, ok := values[sub[2]]
		if !ok {
			if err == nil {
				err = fmt.Errorf("unresolved job variable %q in command line", sub[2])
			}
			return match
		}
		return v
	})
	if err != nil {
		return "", err
	}

	prev := command
	for pass := 0; ; pass++ {
		if pass >= maxPasses {
			return "", fmt.Errorf("command resolution did not converge after %d passes (placeholder cycle?): %s", maxPasses, command)
		}

		// Defer environment lookups to the shell.
		command = envRegex.ReplaceAllString(command, "${$1}")

		command = replaceAll(fileRegex, command, func(name string) (string, bool) {
			v, ok := files[name]
			return v, ok
		}, "file", &err)
		if err != nil {
			return "", err
		}

		if command == prev {
			break
		}
		prev = command
	}
	return command, nil
}

// replaceAll substitutes every match of re in s using lookup, recording the
// first missing key in errp.
func replaceAll(re *regexp.Regexp, s string, lookup func(string) (string, bool), kind string, errp *error) string {
	return re.ReplaceAllStringFunc(s, func(match string) string {
		name := re.FindStringSubmatch(match)[1]
		v, ok := lookup(name)
		if !ok {
			if *errp == nil {
				*errp = fmt.Errorf("unresolved %s %q in command line", kind, name)
			}
			return match
		}
		return v
	})
}

// FormatFields substitutes {field} placeholders from values, resolving
// unknown fields to the empty string. Used for log sub-directory templates,
// where templates routinely carry fields that not every job defines.
// ${NAME} shell references pass through untouched.
func FormatFields(template string, values map[string]string) string {
	return fieldRegex.ReplaceAllStringFunc(template, func(match string) string {
		sub := fieldRegex.FindStringSubmatch(match)
		if sub[1] == "$" {
			return match
		}
		return values[sub[2]]
	})
}
