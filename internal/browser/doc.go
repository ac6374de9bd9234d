// Package browser implements the surface interfaces on top of a Chromium
// instance driven by go-rod.
//
// A Session owns one browser process and one page. Every call takes its
// deadline from the context it is given, so a stuck element lookup or
// click can never outlive the export attempt that issued it. Downloads are
// captured into a private directory and moved into place by the caller.
package browser
