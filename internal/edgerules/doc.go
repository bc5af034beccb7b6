// Package edgerules renders web-server configuration that lets the edge serve
// cached assets directly: browser cache headers, next-gen image negotiation
// and the private-subtree lockdown.
//
// Each server flavour is a Dialect registered by key. Render is a pure function
// of Input; Generator persists the rendered text, merging between BEGIN/END
// markers for dialects that share a file with other configuration and fully
// overwriting dedicated files for the others.
package edgerules
