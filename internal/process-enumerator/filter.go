package process_enumerator

import (
	"fmt"
	"regexp"

	"github.com/cybozu-go/avd-usage-collector/internal/common"
)

// DefaultExcludedImages lists processes that never belong to an interactive
// user, whatever session they run in.
var DefaultExcludedImages = []string{
	"idle",
	"system",
	"registry",
	"smss",
	"csrss",
	"wininit",
	"winlogon",
	"services",
	"lsass",
	"fontdrvhost",
	"dwm",
	"memory compression",
}

// DefaultSystemAccountPatterns match owners of service processes.
var DefaultSystemAccountPatterns = []string{
	`^NT AUTHORITY\\`,
	`^NT SERVICE\\`,
	`^Window Manager\\`,
	`^Font Driver Host\\`,
	`^(SYSTEM|LOCAL SERVICE|NETWORK SERVICE)$`,
	`^(DWM|UMFD)-\d+$`,
	`\$$`,
}

// Reasons an entry is excluded.
const (
	ReasonSession = "session"
	ReasonAccount = "account"
	ReasonImage   = "image"
)

// Filter decides which raw process entries are kept.
type Filter struct {
	images   map[string]bool
	accounts []*regexp.Regexp
}

// NewFilter compiles a filter. Account patterns are case-insensitive and
// image names are compared without the .exe suffix.
func NewFilter(images, accountPatterns []string) (*Filter, error) {
	f := &Filter{
		images:   make(map[string]bool, len(images)),
		accounts: make([]*regexp.Regexp, 0, len(accountPatterns)),
	}
	for _, img := range images {
		f.images[common.ImageBaseName(img)] = true
	}
	for _, p := range accountPatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("invalid account pattern %q: %w", p, err)
		}
		f.accounts = append(f.accounts, re)
	}
	return f, nil
}

// NewDefaultFilter returns the filter with the built-in lists.
func NewDefaultFilter() *Filter {
	f, err := NewFilter(DefaultExcludedImages, DefaultSystemAccountPatterns)
	if err != nil {
		panic(err)
	}
	return f
}

// Exclude reports whether p must be dropped, and why.
func (f *Filter) Exclude(p common.RawProcessEntry) (string, bool) {
	if p.SessionID <= 0 {
		return ReasonSession, true
	}
	if f.images[common.ImageBaseName(p.Name)] {
		return ReasonImage, true
	}
	for _, re := range f.accounts {
		if re.MatchString(p.Owner) {
			return ReasonAccount, true
		}
	}
	return "", false
}
