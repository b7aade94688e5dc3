package proxy

import (
	"net/http"
	"strings"
)

// HeaderRule rewrites one outbound header. prior is the header's current
// value on the outbound request, with multiple lines joined by ", ";
// empty if unset.
type HeaderRule struct {
	Name  string
	Value func(rc *RequestContext, prior string) string
}

// RewriteSet is an ordered list of header rules applied to every outbound
// request. Immutable after construction.
type RewriteSet struct {
	rules []HeaderRule
}

func NewRewriteSet(rules ...HeaderRule) *RewriteSet {
	return &RewriteSet{rules: rules}
}

// DefaultRewriteSet carries the standard forwarding headers: X-Real-IP,
// X-Forwarded-For (appended to any existing chain), and X-Forwarded-Proto.
func DefaultRewriteSet() *RewriteSet {
	return NewRewriteSet(
		HeaderRule{
			Name: "X-Real-IP",
			Value: func(rc *RequestContext, _ string) string {
				return rc.ClientIP
			},
		},
		HeaderRule{
			Name: "X-Forwarded-For",
			Value: func(rc *RequestContext, prior string) string {
				if prior == "" {
					return rc.ClientIP
				}
				return prior + ", " + rc.ClientIP
			},
		},
		HeaderRule{
			Name: "X-Forwarded-Proto",
			Value: func(rc *RequestContext, _ string) string {
				return rc.Scheme
			},
		},
	)
}

// Apply rewrites the outbound request in rule order and preserves the
// inbound Host for the upstream.
func (s *RewriteSet) Apply(out *http.Request, rc *RequestContext) {
	out.Host = rc.Host

	for _, rule := range s.rules {
		prior := strings.Join(out.Header.Values(rule.Name), ", ")
		out.Header.Set(rule.Name, rule.Value(rc, prior))
	}
}
