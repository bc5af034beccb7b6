// Package policy decides whether a rendered response may be stored as a page
// artifact. Markers classify a request (and later its origin response) into a
// RequestContext; Policy runs the cheap short-circuit checks first, then the
// compiled ExclusionSet, then the registered allow hooks.
package policy
