package runner

import "github.com/sylas-dev/sylas/internal/common/logger"

// toolArgs renders StartOptions' tool allow/deny policy as the
// `--allowed-tools`/`--disallowed-tools` flag pair every spawned-CLI
// adapter accepts (spec.md §3's independent `disallow_all_tools`/
// `allowed_tools`/`disallowed_tools` subroutine policy flags, applied
// uniformly regardless of which CLI is underneath).
func toolArgs(opts StartOptions) []string {
	var args []string
	if opts.DisallowAllTools {
		args = append(args, "--allowed-tools", "")
	} else if len(opts.AllowedTools) > 0 {
		args = append(args, "--allowed-tools", joinComma(opts.AllowedTools))
	}
	if len(opts.DisallowedTools) > 0 {
		args = append(args, "--disallowed-tools", joinComma(opts.DisallowedTools))
	}
	return args
}

// RunPostToolHooks invokes every configured PostToolHook for a tool-use
// event, feeding any returned instruction text back into the runner via
// inject so a later model turn sees it (internal/relay attaches the
// attachment-upload guidance hook this way, spec.md §4.7).
func RunPostToolHooks(hooks []PostToolHook, ev Event, inject func(string) error, log *logger.Logger) {
	for _, hook := range hooks {
		text := hook(ev)
		if text == "" {
			continue
		}
		if err := inject(text); err != nil {
			log.WithError(err).Warn("failed injecting post-tool hook instruction text")
		}
	}
}
