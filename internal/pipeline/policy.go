package pipeline

import "github.com/chrissnell/tmdtools/internal/errkind"

// Policy decides whether a failed trip stops the batch.
type Policy struct {
	continueOn          map[errkind.Kind]bool
	abortOnUnclassified bool
}

// NewPolicy continues after the failure classes in continueOn. Unclassified
// failures abort unless abortOnUnclassified is false or continueOn lists
// errkind.Unclassified.
func NewPolicy(continueOn []errkind.Kind, abortOnUnclassified bool) Policy {
	p := Policy{continueOn: make(map[errkind.Kind]bool), abortOnUnclassified: abortOnUnclassified}
	for _, k := range continueOn {
		p.continueOn[k] = true
	}
	return p
}

// Continue reports whether the batch goes on after err.
func (p Policy) Continue(err error) bool {
	kind := errkind.Classify(err)
	if p.continueOn[kind] {
		return true
	}
	return kind == errkind.Unclassified && !p.abortOnUnclassified
}
